package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	imf "github.com/mebox/imfdemux"
	"github.com/mebox/imfdemux/demux/mp4"
	"github.com/mebox/imfdemux/xmldom"
)

func main() {
	confPathFromEnv := os.Getenv("IMFDEMUX_CONFIG_FILE")
	configPath := flag.String("config", confPathFromEnv, "YAML config file (optional)")
	cplPath := flag.String("cpl", "", "path or URL to the Composition Playlist")
	assetMaps := flag.String("assetmaps", "", "comma-separated asset map paths or URLs (default: <cpl_dir>/ASSETMAP.xml)")
	logLevel := flag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	flag.Parse()

	cfg := fileConfig{CPL: *cplPath, AssetMaps: *assetMaps, LogLevel: *logLevel}
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, "imfdemux:", err)
			os.Exit(1)
		}
	}
	if cfg.CPL == "" {
		fmt.Fprintln(os.Stderr, "imfdemux: -cpl is required")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	go waitTerm(cancel)

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("imfdemux failed")
		os.Exit(1)
	}
}

// waitTerm blocks until SIGINT/SIGTERM, then calls cancel.
func waitTerm(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}

func run(ctx context.Context, cfg fileConfig, log zerolog.Logger) error {
	opener := mp4.NewOpener(openLocalFile).WithLogger(log)

	d, err := imf.Open(ctx, cfg.CPL, imf.Options{
		AssetMaps:  cfg.AssetMaps,
		Opener:     opener,
		ByteStream: localByteStreamOpener{},
		Parser:     parseXML,
		Log:        log,
	})
	if err != nil {
		return fmt.Errorf("opening composition: %w", err)
	}
	defer d.Close()

	for _, s := range d.Streams() {
		log.Info().
			Int("stream_id", s.ID).
			Str("codec", s.CodecParameters.CodecTag).
			Int64("time_base_num", s.TimeBaseNum).
			Int64("time_base_den", s.TimeBaseDen).
			Int64("duration", s.Duration).
			Msg("published stream")
	}

	var packetCount int
	for {
		pkt, streamID, err := d.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, imf.ErrEOF) {
				break
			}
			return fmt.Errorf("reading packet: %w", err)
		}
		packetCount++
		log.Debug().
			Int("stream_id", streamID).
			Int64("pts", pkt.PTS).
			Int64("dts", pkt.DTS).
			Int("bytes", len(pkt.Data)).
			Msg("packet")
	}

	log.Info().Int("packet_count", packetCount).Msg("composition exhausted")
	return nil
}

// parseXML adapts xmldom.Parse to imf.DocumentParser: xmldom.Parse returns
// its own concrete *xmldom.Node, which satisfies imf.Element but is not a
// named DocumentParser value on its own.
func parseXML(r io.Reader) (imf.Element, error) {
	return xmldom.Parse(r)
}

// openLocalFile is the mp4.FileOpener used for plain filesystem paths.
func openLocalFile(_ context.Context, absoluteURI string) (io.ReadSeekCloser, error) {
	return os.Open(absoluteURI)
}

// localByteStreamOpener reads CPL and asset map documents from the local
// filesystem.
type localByteStreamOpener struct{}

func (localByteStreamOpener) OpenByteStream(_ context.Context, absoluteURI string) (io.ReadCloser, error) {
	return os.Open(absoluteURI)
}
