// Package demux declares the contracts this module treats as external
// collaborators (spec §1): the host media framework that supplies
// byte-stream I/O, child-demuxer construction, codec-parameter copying,
// and packet-reading primitives. The imf package depends only on these
// interfaces; demux/mp4 is one concrete implementation for MP4-packaged
// track files.
package demux

import (
	"context"
	"io"
)

// CodecParameters is an opaque, clonable bundle of codec configuration
// (extradata, codec tag, sample rate/channels or width/height) copied
// verbatim from a resource's first stream onto the composition's output
// stream.
type CodecParameters struct {
	CodecTag  string
	ExtraData []byte

	Width, Height int
	// Profile and Level are the codec's own profile_idc/level_idc (H.264)
	// or general_profile_idc/general_level_idc (H.265) values, decoded
	// from the sample entry's parameter sets. Zero for audio streams.
	Profile, Level int

	SampleRate    int
	ChannelCount  int
	BitsPerSample int
}

// Clone returns a deep copy, so the output stream does not alias the
// resource's stream after the resource's child demuxer is closed.
func (c CodecParameters) Clone() CodecParameters {
	out := c
	if c.ExtraData != nil {
		out.ExtraData = make([]byte, len(c.ExtraData))
		copy(out.ExtraData, c.ExtraData)
	}
	return out
}

// Stream is one elementary stream exposed by a ChildDemuxer. This module
// only ever looks at a child demuxer's first stream (spec §4.D/§4.G).
type Stream struct {
	CodecParameters CodecParameters
	// TimeBaseNum/TimeBaseDen express the stream's time base as
	// TimeBaseNum/TimeBaseDen seconds per tick.
	TimeBaseNum, TimeBaseDen int64
}

// Packet is one elementary stream packet as read from a child demuxer,
// in the child's own time base, before the scheduler rewrites it onto the
// composition timeline.
type Packet struct {
	PTS, DTS    int64
	Duration    int64
	StreamIndex int
	Data        []byte
}

// ChildDemuxer is a single open container file backing one resource
// instance. The imf package never shares a ChildDemuxer across resources
// or tracks (spec §5: "at most one child demuxer per track").
type ChildDemuxer interface {
	// Streams returns the container's elementary streams. The imf package
	// only reads Streams()[0].
	Streams() []Stream
	// SeekMicroseconds seeks to the given offset, in microseconds, using
	// "any" seek semantics (component 4.D step 3).
	SeekMicroseconds(ctx context.Context, us int64) error
	// ReadPacket returns the next packet, or io.EOF when the container is
	// exhausted.
	ReadPacket(ctx context.Context) (Packet, error)
	// Close releases the underlying byte stream and any buffers.
	Close() error
}

// Opener constructs a ChildDemuxer bound to a resolved absolute URI,
// inheriting whatever I/O policy (whitelist/blacklist, custom I/O flags)
// the host wants applied uniformly to every child demuxer it opens
// (component 4.D step 1).
type Opener interface {
	Open(ctx context.Context, absoluteURI string) (ChildDemuxer, error)
}

// ByteStreamOpener is the byte-stream-only half of the host collaborator,
// used by the imf package itself to read CPL and Asset Map documents
// (spec §1: "the host media framework that supplies byte-stream I/O").
type ByteStreamOpener interface {
	OpenByteStream(ctx context.Context, absoluteURI string) (io.ReadCloser, error)
}
