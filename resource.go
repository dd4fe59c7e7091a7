package imf

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mebox/imfdemux/demux"
)

// ResourcePlaybackCtx is one runtime instance of a declared TrackFileResource
// (spec §3). Repeat expansion produces one ResourcePlaybackCtx per repeat,
// each with its own, independently opened demuxer handle.
type ResourcePlaybackCtx struct {
	Locator  *AssetLocator
	Resource *TrackFileResource

	childDemuxer demux.ChildDemuxer
}

// IsOpen reports whether the resource currently owns an open child demuxer.
func (r *ResourcePlaybackCtx) IsOpen() bool { return r.childDemuxer != nil }

// openResource opens a child demuxer for r at its resource's entry point
// (component 4.D). If a child demuxer is already open, this is a no-op.
func openResource(ctx context.Context, opener demux.Opener, r *ResourcePlaybackCtx, log zerolog.Logger) error {
	if r.IsOpen() {
		return nil
	}

	child, err := opener.Open(ctx, r.Locator.AbsoluteURI)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrIO, r.Locator.AbsoluteURI, err)
	}

	streams := child.Streams()
	if len(streams) == 0 {
		child.Close()
		return fmt.Errorf("%w: %s has no streams", ErrStreamNotFound, r.Locator.AbsoluteURI)
	}

	editRate := r.Resource.EditRate
	streamTimeBase := NewRational(streams[0].TimeBaseNum, streams[0].TimeBaseDen)
	if streamTimeBase.Cmp(editRate.Inv()) != 0 {
		log.Warn().
			Str("uri", r.Locator.AbsoluteURI).
			Str("stream_time_base", streamTimeBase.String()).
			Str("resource_edit_rate", editRate.String()).
			Msg("source stream time base is incoherent with resource edit rate")
	}

	entryPointUs := int64(r.Resource.EntryPoint) * editRate.Den() * 1_000_000 / editRate.Num()
	if entryPointUs > 0 {
		if err := child.SeekMicroseconds(ctx, entryPointUs); err != nil {
			child.Close()
			return fmt.Errorf("%w: seeking %s to %dus: %v", ErrIO, r.Locator.AbsoluteURI, entryPointUs, err)
		}
	}

	r.childDemuxer = child
	return nil
}

// closeResource closes r's child demuxer, if any. Errors are logged, not
// returned: close paths never propagate errors (spec §4.G).
func closeResource(r *ResourcePlaybackCtx, log zerolog.Logger) {
	if r.childDemuxer == nil {
		return
	}
	if err := r.childDemuxer.Close(); err != nil {
		log.Warn().Err(err).Str("uri", r.Locator.AbsoluteURI).Msg("error closing child demuxer")
	}
	r.childDemuxer = nil
}
