package imf

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/mebox/imfdemux/demux"
)

// pickNextTrack selects the track with the smallest CurrentTimestamp,
// ties broken by ascending Index (component 4.F step 1).
func pickNextTrack(tracks []*VirtualTrackPlaybackCtx) *VirtualTrackPlaybackCtx {
	var urgent *VirtualTrackPlaybackCtx
	for _, t := range tracks {
		if urgent == nil || t.CurrentTimestamp.Cmp(urgent.CurrentTimestamp) < 0 {
			urgent = t
		}
	}
	return urgent
}

// locateActiveResource finds the resource index active at track's current
// timestamp (component 4.F step 3). It returns ErrEOF when no resource
// matches and less than one edit unit remains before the track's declared
// duration, and
// ErrStreamNotFound when the declared duration and resource list disagree.
func locateActiveResource(track *VirtualTrackPlaybackCtx) (int, error) {
	editUnit := track.Resources[0].Resource.EditRate.Inv()
	cumulated := Zero()

	for i, r := range track.Resources {
		resourceDuration := editUnit.Mul(NewRational(int64(r.Resource.Duration), 1))
		cumulated = cumulated.Add(resourceDuration)
		if track.CurrentTimestamp.Add(editUnit).Cmp(cumulated) <= 0 {
			return i, nil
		}
	}

	if track.CurrentTimestamp.Add(editUnit).Cmp(track.Duration) > 0 {
		return 0, ErrEOF
	}
	return 0, ErrStreamNotFound
}

// readPacket implements the per-request scheduler algorithm (component
// 4.F). It returns the rewritten packet and the track it was emitted on.
func readPacket(ctx context.Context, opener demux.Opener, tracks []*VirtualTrackPlaybackCtx, log zerolog.Logger) (demux.Packet, *VirtualTrackPlaybackCtx, error) {
	if err := ctx.Err(); err != nil {
		return demux.Packet{}, nil, ErrEOF
	}

	track := pickNextTrack(tracks)
	if track == nil {
		return demux.Packet{}, nil, ErrEOF
	}

	if track.CurrentTimestamp.Cmp(track.Duration) == 0 {
		return demux.Packet{}, nil, ErrEOF
	}

	activeIdx, err := locateActiveResource(track)
	if err != nil {
		return demux.Packet{}, nil, err
	}
	if err := switchResource(ctx, opener, track, activeIdx, log); err != nil {
		return demux.Packet{}, nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return demux.Packet{}, nil, ErrEOF
		}

		active := track.Resources[track.CurrentResourceIndex]
		streams := active.childDemuxer.Streams()
		if len(streams) == 0 {
			return demux.Packet{}, nil, fmt.Errorf("%w: resource has no streams", ErrStreamNotFound)
		}
		streamTimeBase := NewRational(streams[0].TimeBaseNum, streams[0].TimeBaseDen)

		pkt, err := active.childDemuxer.ReadPacket(ctx)
		if err == nil {
			rewritePacket(&pkt, track, active)
			track.CurrentTimestamp = track.CurrentTimestamp.Add(
				streamTimeBase.Mul(NewRational(pkt.Duration, 1)),
			)
			track.LastPTS += pkt.Duration
			track.lastEmittedDTS = pkt.DTS
			track.hasEmitted = true
			return pkt, track, nil
		}
		if !errors.Is(err, io.EOF) {
			return demux.Packet{}, nil, fmt.Errorf("%w: reading packet from %s: %v", ErrIO, active.Locator.AbsoluteURI, err)
		}

		// Underlying EOF before the timeline-derived resource boundary: a
		// container can legitimately end a few ticks early. Force a
		// switch to the next declared resource and keep reading.
		if track.CurrentResourceIndex+1 >= len(track.Resources) {
			closeResource(active, log)
			return demux.Packet{}, nil, ErrEOF
		}
		if err := switchResource(ctx, opener, track, track.CurrentResourceIndex+1, log); err != nil {
			return demux.Packet{}, nil, err
		}
	}
}

// switchResource closes the track's currently open resource (if different
// from target) and opens the resource at targetIdx (component 4.F step 4).
func switchResource(ctx context.Context, opener demux.Opener, track *VirtualTrackPlaybackCtx, targetIdx int, log zerolog.Logger) error {
	if targetIdx == track.CurrentResourceIndex && track.Resources[targetIdx].IsOpen() {
		return nil
	}
	closeResource(track.Resources[track.CurrentResourceIndex], log)
	if err := openResource(ctx, opener, track.Resources[targetIdx], log); err != nil {
		return err
	}
	track.CurrentResourceIndex = targetIdx
	return nil
}

// rewritePacket applies component 4.F step 6's timestamp rewriting.
func rewritePacket(pkt *demux.Packet, track *VirtualTrackPlaybackCtx, active *ResourcePlaybackCtx) {
	if pkt.DTS < track.lastEmittedDTS && track.hasEmitted && track.LastPTS > 0 {
		pkt.DTS = track.lastEmittedDTS
	}
	pkt.PTS = track.LastPTS
	pkt.DTS -= int64(active.Resource.EntryPoint)
	pkt.StreamIndex = int(track.Index)
}
