package imf

import (
	"fmt"

	"github.com/rs/zerolog"
)

// BaseResource is the timed reference shared by every resource kind
// (spec §3).
type BaseResource struct {
	EditRate    Rational
	EntryPoint  uint64
	Duration    uint64
	RepeatCount uint64
}

// TrackFileResource is a BaseResource pointing at a source container.
type TrackFileResource struct {
	BaseResource
	TrackFileUUID UUID
}

// Marker is a labeled instant within a resource's timeline.
type Marker struct {
	Label  string
	Scope  string
	Offset uint64
}

// DefaultMarkerScope is used when a Marker/Label element carries no scope
// attribute (the IMF standard marker label scope).
const DefaultMarkerScope = "http://www.smpte-ra.org/schemas/2067-3/2016#standard-markers"

// MarkerResource is a BaseResource plus its ordered markers.
type MarkerResource struct {
	BaseResource
	Markers []Marker
}

// TrackFileVirtualTrack is a virtual track composed of TrackFileResource
// entries — the image-2D track or one audio track.
type TrackFileVirtualTrack struct {
	ID        UUID
	Resources []TrackFileResource
}

// MarkerVirtualTrack is the virtual track composed of MarkerResource
// entries.
type MarkerVirtualTrack struct {
	ID        UUID
	Resources []MarkerResource
}

// Composition is the parsed CPL (spec §3).
type Composition struct {
	ID           UUID
	ContentTitle string
	EditRate     Rational

	Markers *MarkerVirtualTrack
	Image2D *TrackFileVirtualTrack
	Audios  []TrackFileVirtualTrack
}

// ParseCPL builds a Composition from the root CompositionPlaylist element
// (component 4.B). No partial composition is ever returned: on any error
// the caller gets a nil *Composition and a wrapped ErrInvalidData, or a
// wrapped ErrOutOfMemory when a list exceeds maxListLength.
func ParseCPL(root Element, log zerolog.Logger) (*Composition, error) {
	if root == nil || root.LocalName() != "CompositionPlaylist" {
		return nil, fmt.Errorf("%w: root element is not CompositionPlaylist", ErrInvalidData)
	}

	idEl := ChildByLocalName(root, "Id")
	id, err := ReadUUID(idEl)
	if err != nil {
		return nil, fmt.Errorf("CompositionPlaylist/Id: %w", err)
	}

	editRateEl := ChildByLocalName(root, "EditRate")
	editRate, err := ReadRational(editRateEl)
	if err != nil {
		return nil, fmt.Errorf("CompositionPlaylist/EditRate: %w", err)
	}
	if editRate.Num() <= 0 || editRate.Den() <= 0 {
		return nil, fmt.Errorf("%w: CompositionPlaylist/EditRate must be strictly positive", ErrInvalidData)
	}

	cpl := &Composition{ID: id, EditRate: editRate}
	if titleEl := ChildByLocalName(root, "ContentTitle"); titleEl != nil {
		cpl.ContentTitle = titleEl.Text()
	}

	segmentList := ChildByLocalName(root, "SegmentList")
	if segmentList == nil {
		return nil, fmt.Errorf("%w: CompositionPlaylist missing SegmentList", ErrInvalidData)
	}

	audioByID := map[UUID]*TrackFileVirtualTrack{}
	var audioOrder []UUID

	segments := ChildrenByLocalName(segmentList, "Segment")
	if err := checkListLength(len(segments), "SegmentList"); err != nil {
		return nil, err
	}
	for _, segment := range segments {
		sequenceList := ChildByLocalName(segment, "SequenceList")
		if sequenceList == nil {
			continue
		}
		sequences := sequenceList.Children()
		if err := checkListLength(len(sequences), "SequenceList"); err != nil {
			return nil, err
		}
		for _, seq := range sequences {
			switch seq.LocalName() {
			case "MainImageSequence":
				resources, err := parseTrackFileResources(seq)
				if err != nil {
					return nil, fmt.Errorf("MainImageSequence: %w", err)
				}
				if cpl.Image2D == nil {
					trackID, err := readSequenceTrackID(seq)
					if err != nil {
						return nil, err
					}
					cpl.Image2D = &TrackFileVirtualTrack{ID: trackID}
				} else if trackID, err := readSequenceTrackID(seq); err != nil {
					return nil, err
				} else if trackID != cpl.Image2D.ID {
					return nil, fmt.Errorf("%w: multiple MainImageSequence virtual tracks", ErrInvalidData)
				}
				cpl.Image2D.Resources = append(cpl.Image2D.Resources, resources...)

			case "MainAudioSequence":
				trackID, err := readSequenceTrackID(seq)
				if err != nil {
					return nil, err
				}
				resources, err := parseTrackFileResources(seq)
				if err != nil {
					return nil, fmt.Errorf("MainAudioSequence: %w", err)
				}
				track, ok := audioByID[trackID]
				if !ok {
					track = &TrackFileVirtualTrack{ID: trackID}
					audioByID[trackID] = track
					audioOrder = append(audioOrder, trackID)
				}
				track.Resources = append(track.Resources, resources...)

			case "MarkerSequence":
				resources, err := parseMarkerResources(seq)
				if err != nil {
					return nil, fmt.Errorf("MarkerSequence: %w", err)
				}
				if cpl.Markers == nil {
					trackID, err := readSequenceTrackID(seq)
					if err != nil {
						return nil, err
					}
					cpl.Markers = &MarkerVirtualTrack{ID: trackID}
				} else if trackID, err := readSequenceTrackID(seq); err != nil {
					return nil, err
				} else if trackID != cpl.Markers.ID {
					return nil, fmt.Errorf("%w: multiple MarkerSequence virtual tracks", ErrInvalidData)
				}
				cpl.Markers.Resources = append(cpl.Markers.Resources, resources...)

			default:
				log.Debug().Str("sequence", seq.LocalName()).Msg("ignoring unknown sequence kind")
			}
		}
	}

	for _, id := range audioOrder {
		cpl.Audios = append(cpl.Audios, *audioByID[id])
	}

	return cpl, nil
}

func readSequenceTrackID(seq Element) (UUID, error) {
	trackIDEl := ChildByLocalName(seq, "TrackId")
	id, err := ReadUUID(trackIDEl)
	if err != nil {
		return UUID{}, fmt.Errorf("%s/TrackId: %w", seq.LocalName(), err)
	}
	return id, nil
}

func parseBaseResource(resEl Element) (BaseResource, error) {
	editRateEl := ChildByLocalName(resEl, "EditRate")
	editRate, err := ReadRational(editRateEl)
	if err != nil {
		return BaseResource{}, fmt.Errorf("Resource/EditRate: %w", err)
	}
	if editRate.Num() <= 0 || editRate.Den() <= 0 {
		return BaseResource{}, fmt.Errorf("%w: Resource/EditRate must be strictly positive", ErrInvalidData)
	}

	var entryPoint uint64
	if entryEl := ChildByLocalName(resEl, "EntryPoint"); entryEl != nil {
		entryPoint, err = ReadULong(entryEl)
		if err != nil {
			return BaseResource{}, fmt.Errorf("Resource/EntryPoint: %w", err)
		}
	}

	durationEl := ChildByLocalName(resEl, "SourceDuration")
	if durationEl == nil {
		return BaseResource{}, fmt.Errorf("%w: Resource missing SourceDuration", ErrInvalidData)
	}
	duration, err := ReadULong(durationEl)
	if err != nil {
		return BaseResource{}, fmt.Errorf("Resource/SourceDuration: %w", err)
	}
	if duration == 0 {
		return BaseResource{}, fmt.Errorf("%w: Resource/SourceDuration must be positive", ErrInvalidData)
	}

	repeatCount := uint64(1)
	if repEl := ChildByLocalName(resEl, "RepeatCount"); repEl != nil {
		repeatCount, err = ReadULong(repEl)
		if err != nil {
			return BaseResource{}, fmt.Errorf("Resource/RepeatCount: %w", err)
		}
		if repeatCount == 0 {
			repeatCount = 1
		}
	}

	return BaseResource{
		EditRate:    editRate,
		EntryPoint:  entryPoint,
		Duration:    duration,
		RepeatCount: repeatCount,
	}, nil
}

func parseTrackFileResources(seq Element) ([]TrackFileResource, error) {
	resourceList := ChildByLocalName(seq, "ResourceList")
	if resourceList == nil {
		return nil, fmt.Errorf("%w: sequence missing ResourceList", ErrInvalidData)
	}

	resourceEls := ChildrenByLocalName(resourceList, "Resource")
	if err := checkListLength(len(resourceEls), "ResourceList"); err != nil {
		return nil, err
	}
	var out []TrackFileResource
	for _, resEl := range resourceEls {
		base, err := parseBaseResource(resEl)
		if err != nil {
			return nil, err
		}
		trackFileIDEl := ChildByLocalName(resEl, "TrackFileId")
		trackFileID, err := ReadUUID(trackFileIDEl)
		if err != nil {
			return nil, fmt.Errorf("Resource/TrackFileId: %w", err)
		}
		out = append(out, TrackFileResource{BaseResource: base, TrackFileUUID: trackFileID})
	}
	return out, nil
}

func parseMarkerResources(seq Element) ([]MarkerResource, error) {
	resourceList := ChildByLocalName(seq, "ResourceList")
	if resourceList == nil {
		return nil, fmt.Errorf("%w: MarkerSequence missing ResourceList", ErrInvalidData)
	}

	resourceEls := ChildrenByLocalName(resourceList, "Resource")
	if err := checkListLength(len(resourceEls), "MarkerSequence/ResourceList"); err != nil {
		return nil, err
	}
	var out []MarkerResource
	for _, resEl := range resourceEls {
		base, err := parseBaseResource(resEl)
		if err != nil {
			return nil, err
		}
		markerEls := ChildrenByLocalName(resEl, "Marker")
		if err := checkListLength(len(markerEls), "Resource/Marker"); err != nil {
			return nil, err
		}
		var markers []Marker
		for _, markerEl := range markerEls {
			labelEl := ChildByLocalName(markerEl, "Label")
			if labelEl == nil {
				return nil, fmt.Errorf("%w: Marker missing Label", ErrInvalidData)
			}
			scope, ok := labelEl.Attr("scope")
			if !ok {
				scope = DefaultMarkerScope
			}
			offsetEl := ChildByLocalName(markerEl, "Offset")
			offset, err := ReadULong(offsetEl)
			if err != nil {
				return nil, fmt.Errorf("Marker/Offset: %w", err)
			}
			markers = append(markers, Marker{Label: labelEl.Text(), Scope: scope, Offset: offset})
		}
		out = append(out, MarkerResource{BaseResource: base, Markers: markers})
	}
	return out, nil
}
