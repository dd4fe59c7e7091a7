// Package mp4 is a concrete demux.Opener/demux.ChildDemuxer backing for
// MP4-packaged IMF track files, built on github.com/Eyevinn/mp4ff for box
// parsing and github.com/bluenviron/mediacommon for codec parameter
// extraction. It follows the open/ReadHead/ReadPacket/SeekTime shape the
// host framework's own MP4 demuxer uses, adapted to the demux package's
// context-aware interfaces.
package mp4

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
	"github.com/rs/zerolog"

	"github.com/mebox/imfdemux/demux"
)

// FileOpener opens a local or URL-addressed MP4 track file as an
// io.ReadSeekCloser. cmd/imfdemux wires a plain os.Open for local paths;
// a network-backed implementation can be substituted without touching
// this package.
type FileOpener func(ctx context.Context, absoluteURI string) (io.ReadSeekCloser, error)

// Opener is the demux.Opener implementation for MP4 track files.
type Opener struct {
	openFile FileOpener
	log      zerolog.Logger
}

// NewOpener returns an Opener using open to turn a URI into a readable,
// seekable file handle. Diagnostics (malformed parameter sets, codec
// metadata disagreements) are discarded until WithLogger is called.
func NewOpener(open FileOpener) *Opener {
	return &Opener{openFile: open, log: zerolog.Nop()}
}

// WithLogger attaches log to o and returns o, for the builder-style
// cmd/imfdemux.run wiring.
func (o *Opener) WithLogger(log zerolog.Logger) *Opener {
	o.log = log
	return o
}

var _ demux.Opener = (*Opener)(nil)

// Open satisfies demux.Opener.
func (o *Opener) Open(ctx context.Context, absoluteURI string) (demux.ChildDemuxer, error) {
	f, err := o.openFile(ctx, absoluteURI)
	if err != nil {
		return nil, fmt.Errorf("mp4: opening %s: %w", absoluteURI, err)
	}

	file, err := mp4.DecodeFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mp4: decoding %s: %w", absoluteURI, err)
	}
	if file.Moov == nil {
		f.Close()
		return nil, fmt.Errorf("mp4: %s has no moov box", absoluteURI)
	}

	d := &Demuxer{uri: absoluteURI, file: f}
	for _, trak := range file.Moov.Traks {
		track, err := buildTrack(trak, o.log)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mp4: %s: %w", absoluteURI, err)
		}
		d.tracks = append(d.tracks, track)
	}
	if len(d.tracks) == 0 {
		f.Close()
		return nil, fmt.Errorf("mp4: %s declares no tracks", absoluteURI)
	}

	return d, nil
}

// Demuxer is one open MP4 track file (component 4.D's child demuxer).
type Demuxer struct {
	uri   string
	file  io.ReadSeekCloser
	tracks []*trackState
	// active is the track this demuxer was opened to serve. IMF track
	// files carry exactly one elementary stream; multi-track containers
	// serve only the first track. Every track is still parsed at Open, and
	// a track that cannot be parsed makes Open fail.
	active int
}

var _ demux.ChildDemuxer = (*Demuxer)(nil)

// sample is one decoded entry of a track's sample table, with its file
// offset and size resolved.
type sample struct {
	offset   uint64
	size     uint32
	dts      uint64
	duration uint32
	ctsDelta int32
}

type trackState struct {
	stream  demux.Stream
	samples []sample
	nextIdx int
}

// Streams returns the first track's stream, per spec §4.D ("the imf
// package only reads Streams()[0]").
func (d *Demuxer) Streams() []demux.Stream {
	if len(d.tracks) == 0 {
		return nil
	}
	return []demux.Stream{d.tracks[d.active].stream}
}

// SeekMicroseconds seeks the active track to the sample covering us,
// using "any" seek semantics (nearest sample at or before us).
func (d *Demuxer) SeekMicroseconds(ctx context.Context, us int64) error {
	track := d.tracks[d.active]
	target := uint64(us) * uint64(track.stream.TimeBaseDen) / (uint64(track.stream.TimeBaseNum) * 1_000_000)

	idx := sort.Search(len(track.samples), func(i int) bool {
		return track.samples[i].dts >= target
	})
	if idx > 0 && (idx == len(track.samples) || track.samples[idx].dts > target) {
		idx--
	}
	track.nextIdx = idx
	return nil
}

// ReadPacket returns the active track's next sample, reading its bytes
// directly from the underlying file at the sample table's recorded
// offset, or io.EOF when the sample table is exhausted.
func (d *Demuxer) ReadPacket(ctx context.Context) (demux.Packet, error) {
	if err := ctx.Err(); err != nil {
		return demux.Packet{}, err
	}

	track := d.tracks[d.active]
	if track.nextIdx >= len(track.samples) {
		return demux.Packet{}, io.EOF
	}
	s := track.samples[track.nextIdx]
	track.nextIdx++

	buf := make([]byte, s.size)
	if _, err := d.file.Seek(int64(s.offset), io.SeekStart); err != nil {
		return demux.Packet{}, fmt.Errorf("mp4: %s: seeking sample: %w", d.uri, err)
	}
	if _, err := io.ReadFull(d.file, buf); err != nil {
		return demux.Packet{}, fmt.Errorf("mp4: %s: reading sample: %w", d.uri, err)
	}

	dts := int64(s.dts)
	return demux.Packet{
		DTS:      dts,
		PTS:      dts + int64(s.ctsDelta),
		Duration: int64(s.duration),
		Data:     buf,
	}, nil
}

// Close releases the underlying file handle.
func (d *Demuxer) Close() error {
	if c, ok := d.file.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// buildTrack flattens trak's sample tables into a linear, randomly
// seekable sample list and extracts its codec parameters.
func buildTrack(trak *mp4.TrakBox, log zerolog.Logger) (*trackState, error) {
	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil || stbl.Stsz == nil || stbl.Stco == nil && stbl.Co64 == nil {
		return nil, fmt.Errorf("track %d has no sample table", trak.Tkhd.TrackID)
	}

	chunkOffsets := chunkOffsets(stbl)
	sampleToChunk := expandStsc(stbl.Stsc, len(chunkOffsets))
	durations := expandStts(stbl.Stts)
	ctsDeltas := expandCtts(stbl.Ctts, len(durations))

	samples := make([]sample, 0, stbl.Stsz.SampleNumber)

	chunkCursor := map[uint32]uint64{}
	var dts uint64
	for i := uint32(0); i < stbl.Stsz.SampleNumber; i++ {
		chunkIdx := sampleToChunk[i]
		offsetInChunk, ok := chunkCursor[chunkIdx]
		if !ok {
			offsetInChunk = 0
		}
		offset := chunkOffsets[chunkIdx] + offsetInChunk

		size := stbl.Stsz.GetSampleSize(int(i) + 1)
		chunkCursor[chunkIdx] = offsetInChunk + uint64(size)

		duration := uint32(1)
		if i < uint32(len(durations)) {
			duration = durations[i]
		}
		var ctsDelta int32
		if i < uint32(len(ctsDeltas)) {
			ctsDelta = ctsDeltas[i]
		}

		samples = append(samples, sample{offset: offset, size: size, dts: dts, duration: duration, ctsDelta: ctsDelta})
		dts += uint64(duration)
	}

	stream, err := codecParameters(trak, stbl, log)
	if err != nil {
		return nil, err
	}

	return &trackState{stream: stream, samples: samples}, nil
}

func chunkOffsets(stbl *mp4.StblBox) []uint64 {
	if stbl.Stco != nil {
		out := make([]uint64, len(stbl.Stco.ChunkOffset))
		for i, o := range stbl.Stco.ChunkOffset {
			out[i] = uint64(o)
		}
		return out
	}
	return stbl.Co64.ChunkOffset
}

// expandStsc maps each sample index to its containing chunk index,
// following the sample-to-chunk run-length table (ISO/IEC 14496-12 §8.7.4).
func expandStsc(stsc *mp4.StscBox, chunkCount int) []uint32 {
	out := make([]uint32, 0)
	for entryIdx, entry := range stsc.Entries {
		chunkEnd := uint32(chunkCount) + 1
		if entryIdx+1 < len(stsc.Entries) {
			chunkEnd = stsc.Entries[entryIdx+1].FirstChunk
		}
		for chunk := entry.FirstChunk; chunk < chunkEnd; chunk++ {
			for s := uint32(0); s < entry.SamplesPerChunk; s++ {
				out = append(out, chunk-1)
			}
		}
	}
	return out
}

func expandStts(stts *mp4.SttsBox) []uint32 {
	if stts == nil {
		return nil
	}
	out := make([]uint32, 0)
	for i, count := range stts.SampleCount {
		delta := stts.SampleTimeDelta[i]
		for c := uint32(0); c < count; c++ {
			out = append(out, delta)
		}
	}
	return out
}

func expandCtts(ctts *mp4.CttsBox, sampleCount int) []int32 {
	if ctts == nil {
		return nil
	}
	out := make([]int32, 0, sampleCount)
	for i := 0; i < ctts.NrSampleCount(); i++ {
		offset := ctts.SampleOffset[i]
		for c := uint32(0); c < ctts.SampleCount(i); c++ {
			out = append(out, offset)
		}
	}
	return out
}

// codecParameters derives demux.CodecParameters from the track's sample
// description box and its time base from the media header's timescale
// (1/timescale seconds per tick), using mediacommon to decode
// the codec-specific configuration records into CodecParameters (component
// 4.D step 2's "copy codec parameters verbatim").
func codecParameters(trak *mp4.TrakBox, stbl *mp4.StblBox, log zerolog.Logger) (demux.Stream, error) {
	timescale := trak.Mdia.Mdhd.Timescale
	stsd := stbl.Stsd
	if stsd == nil || len(stsd.Children) == 0 {
		return demux.Stream{}, fmt.Errorf("track %d has no sample description", trak.Tkhd.TrackID)
	}

	switch entry := stsd.Children[0].(type) {
	case *mp4.VisualSampleEntryBox:
		params := demux.CodecParameters{
			Width:  int(entry.Width),
			Height: int(entry.Height),
		}
		switch entry.Type() {
		case "avc1", "avc3":
			params.CodecTag = "avc1"
			if entry.AvcC != nil {
				var buf bytes.Buffer
				if err := entry.AvcC.Encode(&buf); err == nil {
					params.ExtraData = buf.Bytes()
				}
				decodeH264Params(entry.AvcC, &params, log)
			}
		case "hvc1", "hev1":
			params.CodecTag = "hvc1"
			if entry.HvcC != nil {
				var buf bytes.Buffer
				if err := entry.HvcC.Encode(&buf); err == nil {
					params.ExtraData = buf.Bytes()
				}
				decodeH265Params(entry.HvcC, &params, log)
			}
		default:
			params.CodecTag = entry.Type()
		}
		return demux.Stream{
			CodecParameters: params,
			TimeBaseNum:     1,
			TimeBaseDen:     int64(timescale),
		}, nil

	case *mp4.AudioSampleEntryBox:
		params := demux.CodecParameters{
			SampleRate:    int(entry.SampleRate),
			ChannelCount:  int(entry.ChannelCount),
			BitsPerSample: int(entry.SampleSize),
		}
		params.CodecTag = entry.Type()
		if entry.Esds != nil {
			var buf bytes.Buffer
			if err := entry.Esds.Encode(&buf); err == nil {
				params.ExtraData = buf.Bytes()
			}
			decodeAACParams(entry.Esds, &params, log)
		}
		return demux.Stream{
			CodecParameters: params,
			TimeBaseNum:     1,
			TimeBaseDen:     int64(timescale),
		}, nil
	}

	return demux.Stream{}, fmt.Errorf("track %d has an unsupported sample entry", trak.Tkhd.TrackID)
}

// decodeH264Params parses avcC's first SPS with mediacommon's AVC decoder
// and copies its profile_idc/level_idc into params. A malformed parameter
// set is logged and otherwise tolerated — the sample entry's own
// Width/Height fields remain authoritative and are only cross-checked
// against the SPS's own reported dimensions.
func decodeH264Params(avcC *mp4.AvcCBox, params *demux.CodecParameters, log zerolog.Logger) {
	for _, nalu := range avcC.SPSnalus {
		var sps h264.SPS
		if err := sps.Unmarshal(nalu); err != nil {
			log.Warn().Err(err).Msg("mp4: failed to parse H.264 SPS, profile/level unavailable")
			return
		}
		params.Profile = int(sps.ProfileIdc)
		params.Level = int(sps.LevelIdc)
		if w, h := sps.Width(), sps.Height(); w != params.Width || h != params.Height {
			log.Warn().
				Int("sps_width", w).Int("sps_height", h).
				Int("stsd_width", params.Width).Int("stsd_height", params.Height).
				Msg("mp4: avcC SPS dimensions disagree with stsd VisualSampleEntry")
		}
		return
	}
}

// decodeH265Params is decodeH264Params's HEVC counterpart: it decodes the
// first VPS-referenced SPS out of hvcC's NAL unit arrays.
func decodeH265Params(hvcC *mp4.HvcCBox, params *demux.CodecParameters, log zerolog.Logger) {
	for _, arr := range hvcC.NaluArrays {
		if arr.NaluType() != hevc.NALU_SPS {
			continue
		}
		for _, nalu := range arr.Nalus {
			var sps h265.SPS
			if err := sps.Unmarshal(nalu); err != nil {
				log.Warn().Err(err).Msg("mp4: failed to parse H.265 SPS, profile/level unavailable")
				return
			}
			params.Profile = int(sps.ProfileTierLevel.GeneralProfileIdc)
			params.Level = int(sps.ProfileTierLevel.GeneralLevelIdc)
			if w, h := sps.Width(), sps.Height(); w != params.Width || h != params.Height {
				log.Warn().
					Int("sps_width", w).Int("sps_height", h).
					Int("stsd_width", params.Width).Int("stsd_height", params.Height).
					Msg("mp4: hvcC SPS dimensions disagree with stsd VisualSampleEntry")
			}
			return
		}
	}
}

// decodeAACParams decodes esds's AudioSpecificConfig and prefers its
// sample rate/channel count over the stsd AudioSampleEntry's, which
// encoders using SBR/PS commonly leave at a legacy, halved value. A
// malformed config is logged and the stsd values are kept.
func decodeAACParams(esds *mp4.EsdsBox, params *demux.CodecParameters, log zerolog.Logger) {
	info := esds.DecConfigDescriptor.DecSpecificInfo
	if info == nil {
		return
	}
	var cfg mpeg4audio.Config
	if err := cfg.Unmarshal(info.DecConfig); err != nil {
		log.Warn().Err(err).Msg("mp4: failed to parse AAC AudioSpecificConfig, keeping stsd sample rate/channels")
		return
	}
	if cfg.SampleRate != params.SampleRate || cfg.ChannelCount != params.ChannelCount {
		log.Warn().
			Int("asc_sample_rate", cfg.SampleRate).Int("asc_channels", cfg.ChannelCount).
			Int("stsd_sample_rate", params.SampleRate).Int("stsd_channels", params.ChannelCount).
			Msg("mp4: AudioSpecificConfig disagrees with stsd AudioSampleEntry, using AudioSpecificConfig")
	}
	params.SampleRate = cfg.SampleRate
	params.ChannelCount = cfg.ChannelCount
}
