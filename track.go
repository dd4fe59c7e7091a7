package imf

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mebox/imfdemux/demux"
)

// VirtualTrackPlaybackCtx is the runtime state of one image or audio
// virtual track (spec §3).
type VirtualTrackPlaybackCtx struct {
	Index            int32
	CurrentTimestamp Rational
	Duration         Rational

	Resources             []*ResourcePlaybackCtx
	CurrentResourceIndex  int

	LastPTS int64

	// lastEmittedDTS is this track's output stream's most recently
	// emitted DTS, substituting for the host's per-stream DTS
	// bookkeeping the original compares against (see DESIGN.md's DTS
	// monotonicity decision).
	lastEmittedDTS int64
	hasEmitted     bool
}

// buildTrack expands declared into a VirtualTrackPlaybackCtx (component
// 4.E): every declared resource is looked up in assets and expanded by its
// RepeatCount into independent runtime resource contexts, with only the
// very first one (across the whole track) opened eagerly.
func buildTrack(ctx context.Context, index int32, trackID UUID, declared []TrackFileResource, assets *AssetLocatorMap, opener demux.Opener, log zerolog.Logger) (*VirtualTrackPlaybackCtx, error) {
	track := &VirtualTrackPlaybackCtx{
		Index:            index,
		CurrentTimestamp: Zero(),
		Duration:         Zero(),
	}

	eagerOpened := false
	for i := range declared {
		res := &declared[i]
		locator, ok := assets.Lookup(res.TrackFileUUID)
		if !ok {
			return nil, fmt.Errorf("%w: no asset locator for track file %s", ErrInvalidData, res.TrackFileUUID)
		}

		repeatCount := res.RepeatCount
		if repeatCount == 0 {
			repeatCount = 1
		}
		for r := uint64(0); r < repeatCount; r++ {
			rc := &ResourcePlaybackCtx{Locator: &locator, Resource: res}
			if !eagerOpened {
				if err := openResource(ctx, opener, rc, log); err != nil {
					return nil, err
				}
				eagerOpened = true
			}
			track.Resources = append(track.Resources, rc)

			editUnit := res.EditRate.Inv()
			track.Duration = track.Duration.Add(editUnit.Mul(NewRational(int64(res.Duration), 1)))
		}
	}

	if len(track.Resources) == 0 {
		return nil, fmt.Errorf("%w: virtual track %s has no resources", ErrInvalidData, trackID)
	}

	return track, nil
}

// closeTrack closes every resource's child demuxer.
func closeTrack(track *VirtualTrackPlaybackCtx, log zerolog.Logger) {
	for _, r := range track.Resources {
		closeResource(r, log)
	}
}
