// Package imf implements the core of an IMF (Interoperable Master Format)
// Composition demuxer: given a CPL and one or more Asset Maps, it
// reconstructs a playable multi-stream timeline and emits decoded packets
// per virtual track, with timestamps rewritten onto the composition
// timeline.
package imf

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mebox/imfdemux/demux"
)

// DocumentParser builds an Element tree from an XML byte stream. The
// concrete implementation lives in the xmldom package; imf never imports
// it directly so the dependency runs consumer -> interface, not the other
// way around.
type DocumentParser func(r io.Reader) (Element, error)

// OutputStream is one published stream, one per virtual track (spec §6).
type OutputStream struct {
	// ID equals the virtual track's index.
	ID int
	// CodecParameters are inherited from the track's first resource's
	// first media stream.
	CodecParameters demux.CodecParameters
	TimeBaseNum     int64
	TimeBaseDen     int64
	// Duration is expressed in units of TimeBaseNum/TimeBaseDen.
	Duration int64
}

// Demuxer is one open IMF composition (component 4.G).
type Demuxer struct {
	opener     demux.Opener
	byteStream demux.ByteStreamOpener
	parse      DocumentParser
	log        zerolog.Logger

	cpl     *Composition
	assets  *AssetLocatorMap
	tracks  []*VirtualTrackPlaybackCtx
	streams []OutputStream
}

// Options configures Open.
type Options struct {
	// AssetMaps is a comma-separated list of asset map paths or URLs. If
	// empty, "<cpl_dirname>/ASSETMAP.xml" is used (spec §6).
	AssetMaps string
	// Opener constructs child demuxers for track-file resources.
	Opener demux.Opener
	// ByteStream reads CPL and asset map documents. It is required: Open
	// fails with ErrInvalidData when it is nil, and Opener is never used
	// to read these documents.
	ByteStream demux.ByteStreamOpener
	// Parser turns a CPL or asset map byte stream into an Element tree.
	Parser DocumentParser
	// Log receives structured diagnostics. The zero value is a disabled
	// logger.
	Log zerolog.Logger
}

// Open reads cplURL's CPL, resolves its asset maps, and builds every
// virtual track's playback context (component 4.G).
func Open(ctx context.Context, cplURL string, opts Options) (*Demuxer, error) {
	if opts.Opener == nil {
		return nil, fmt.Errorf("%w: Options.Opener is required", ErrInvalidData)
	}
	if opts.ByteStream == nil {
		return nil, fmt.Errorf("%w: Options.ByteStream is required", ErrInvalidData)
	}
	if opts.Parser == nil {
		return nil, fmt.Errorf("%w: Options.Parser is required", ErrInvalidData)
	}

	d := &Demuxer{opener: opts.Opener, byteStream: opts.ByteStream, parse: opts.Parser, log: opts.Log}

	cplDoc, err := d.readDocument(ctx, cplURL)
	if err != nil {
		return nil, fmt.Errorf("reading CPL %s: %w", cplURL, err)
	}
	cpl, err := ParseCPL(cplDoc, d.log)
	if err != nil {
		return nil, fmt.Errorf("parsing CPL %s: %w", cplURL, err)
	}
	d.cpl = cpl
	d.log.Debug().Str("cpl_id", cpl.ID.String()).Msg("parsed CPL")

	baseURL := dirname(cplURL)
	assetMapPaths := opts.AssetMaps
	if assetMapPaths == "" {
		assetMapPaths = joinURL(baseURL, "ASSETMAP.xml")
		d.log.Debug().Str("path", assetMapPaths).Msg("no asset maps provided, using default ASSETMAP.xml")
	}

	d.assets = NewAssetLocatorMap()
	for _, amPath := range strings.Split(assetMapPaths, ",") {
		amPath = strings.TrimSpace(amPath)
		if amPath == "" {
			continue
		}
		amDoc, err := d.readDocument(ctx, amPath)
		if err != nil {
			return nil, fmt.Errorf("reading asset map %s: %w", amPath, err)
		}
		if err := ParseAssetMap(d.assets, amDoc, dirname(amPath), d.log); err != nil {
			return nil, fmt.Errorf("parsing asset map %s: %w", amPath, err)
		}
	}
	d.log.Debug().Int("asset_count", d.assets.Len()).Msg("parsed asset maps")

	if err := d.openCPLTracks(ctx); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

// readDocument is the glue between the byte-stream collaborator and the
// DOM parser the caller supplied via Options.Parser.
func (d *Demuxer) readDocument(ctx context.Context, url string) (Element, error) {
	rc, err := d.byteStream.OpenByteStream(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer rc.Close()
	root, err := d.parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return root, nil
}

func (d *Demuxer) openCPLTracks(ctx context.Context) error {
	var index int32

	if d.cpl.Image2D != nil {
		track, err := buildTrack(ctx, index, d.cpl.Image2D.ID, d.cpl.Image2D.Resources, d.assets, d.opener, d.log)
		if err != nil {
			return fmt.Errorf("opening image track %s: %w", d.cpl.Image2D.ID, err)
		}
		d.tracks = append(d.tracks, track)
		index++
	}

	for i := range d.cpl.Audios {
		audio := &d.cpl.Audios[i]
		track, err := buildTrack(ctx, index, audio.ID, audio.Resources, d.assets, d.opener, d.log)
		if err != nil {
			return fmt.Errorf("opening audio track %s: %w", audio.ID, err)
		}
		d.tracks = append(d.tracks, track)
		index++
	}

	return d.publishStreams()
}

// publishStreams builds one OutputStream per track, copying codec
// parameters and time base from the first resource's first stream (spec
// §6/§4.G).
func (d *Demuxer) publishStreams() error {
	for _, track := range d.tracks {
		first := track.Resources[0]
		streams := first.childDemuxer.Streams()
		if len(streams) == 0 {
			return fmt.Errorf("%w: track %d's first resource has no streams", ErrStreamNotFound, track.Index)
		}
		src := streams[0]
		timeBase := NewRational(src.TimeBaseNum, src.TimeBaseDen)
		duration := track.Duration.Mul(timeBase.Inv())

		d.streams = append(d.streams, OutputStream{
			ID:              int(track.Index),
			CodecParameters: src.CodecParameters.Clone(),
			TimeBaseNum:     src.TimeBaseNum,
			TimeBaseDen:     src.TimeBaseDen,
			Duration:        duration.Num() / max64(duration.Den(), 1),
		})
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Streams returns the published output streams, one per virtual track,
// image first then audios in declaration order.
func (d *Demuxer) Streams() []OutputStream { return d.streams }

// ReadPacket returns the next packet belonging to the track whose
// composition clock is smallest, or ErrEOF when every track is exhausted
// (component 4.F, driven through Open's assembled tracks).
func (d *Demuxer) ReadPacket(ctx context.Context) (demux.Packet, int, error) {
	pkt, track, err := readPacket(ctx, d.opener, d.tracks, d.log)
	if err != nil {
		return demux.Packet{}, 0, err
	}
	return pkt, int(track.Index), nil
}

// Close tears down every resource's child demuxer. No error is ever
// returned (spec §4.G: "No errors are propagated from close").
func (d *Demuxer) Close() error {
	for _, track := range d.tracks {
		closeTrack(track, d.log)
	}
	return nil
}

func dirname(url string) string {
	if strings.Contains(url, "://") {
		idx := strings.LastIndex(url, "/")
		if idx < 0 {
			return url
		}
		return url[:idx]
	}
	return path.Dir(url)
}

func joinURL(base, elem string) string {
	if strings.Contains(base, "://") {
		return strings.TrimSuffix(base, "/") + "/" + elem
	}
	return path.Join(base, elem)
}
