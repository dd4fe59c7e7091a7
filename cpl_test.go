package imf

import (
	"errors"
	"testing"
)

const testUUID1 = "urn:uuid:e9da0a1f-bc74-49da-809b-1a1f5ff3b5ec"
const testUUID2 = "urn:uuid:0f1e2d3c-4b5a-4968-8777-665544332211"
const testTrackImage = "urn:uuid:11111111-1111-4111-8111-111111111111"
const testTrackAudio = "urn:uuid:22222222-2222-4222-8222-222222222222"

func trackFileResourceEl(editRate, entryPoint, duration, repeat, trackFileID string) *fakeElement {
	children := []*fakeElement{
		rationalElFrom(editRate),
		el("SourceDuration", duration),
		el("TrackFileId", trackFileID),
	}
	if entryPoint != "" {
		children = append(children, el("EntryPoint", entryPoint))
	}
	if repeat != "" {
		children = append(children, el("RepeatCount", repeat))
	}
	return el("Resource", "", children...)
}

func rationalElFrom(spec string) *fakeElement {
	return el("EditRate", spec)
}

func imageSequenceEl(trackID string, resources ...*fakeElement) *fakeElement {
	return el("MainImageSequence", "",
		el("TrackId", trackID),
		el("ResourceList", "", resources...),
	)
}

func audioSequenceEl(trackID string, resources ...*fakeElement) *fakeElement {
	return el("MainAudioSequence", "",
		el("TrackId", trackID),
		el("ResourceList", "", resources...),
	)
}

func baseCPL(id string, sequences ...*fakeElement) *fakeElement {
	return el("CompositionPlaylist", "",
		el("Id", id),
		el("EditRate", "24 1"),
		el("SegmentList", "",
			el("Segment", "",
				el("SequenceList", "", sequences...),
			),
		),
	)
}

func TestParseCPLBasic(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		cpl := baseCPL(testUUID1,
			imageSequenceEl(testTrackImage, trackFileResourceEl("24 1", "", "48", "", testUUID2)),
			audioSequenceEl(testTrackAudio, trackFileResourceEl("48000 1", "", "96000", "", testUUID2)),
		)

		got, err := ParseCPL(cpl, discardLogger())
		if err != nil {
			t.Fatalf("ParseCPL: %v", err)
		}
		if got.Image2D == nil || len(got.Image2D.Resources) != 1 {
			t.Fatalf("expected one image resource, got %+v", got.Image2D)
		}
		if got.Image2D.Resources[0].Duration != 48 {
			t.Errorf("image duration = %d, want 48", got.Image2D.Resources[0].Duration)
		}
		if len(got.Audios) != 1 || len(got.Audios[0].Resources) != 1 {
			t.Fatalf("expected one audio track with one resource, got %+v", got.Audios)
		}
	})
}

func TestParseCPLMalformedUUID(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		cpl := el("CompositionPlaylist", "",
			el("Id", "urn:uuid:zzzz"),
			el("EditRate", "24 1"),
			el("SegmentList", "", el("Segment", "", el("SequenceList", ""))),
		)
		_, err := ParseCPL(cpl, discardLogger())
		if err == nil {
			t.Fatal("expected error for malformed CPL Id")
		}
		if !errors.Is(err, ErrInvalidData) {
			t.Errorf("error = %v, want ErrInvalidData", err)
		}
	})
}

func TestParseCPLWrongRoot(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		_, err := ParseCPL(el("AssetMap", ""), discardLogger())
		if !errors.Is(err, ErrInvalidData) {
			t.Errorf("error = %v, want ErrInvalidData", err)
		}
	})
}

func TestParseCPLTooManyResourcesIsOutOfMemory(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		resources := make([]*fakeElement, maxListLength+1)
		for i := range resources {
			resources[i] = trackFileResourceEl("24 1", "", "48", "", testUUID2)
		}
		cpl := baseCPL(testUUID1, imageSequenceEl(testTrackImage, resources...))

		_, err := ParseCPL(cpl, discardLogger())
		if !errors.Is(err, ErrOutOfMemory) {
			t.Errorf("ParseCPL error = %v, want ErrOutOfMemory", err)
		}
	})
}

func TestParseCPLRepeatedAudioSequencesMerge(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		cpl := baseCPL(testUUID1,
			audioSequenceEl(testTrackAudio, trackFileResourceEl("48000 1", "", "48000", "", testUUID2)),
			audioSequenceEl(testTrackAudio, trackFileResourceEl("48000 1", "", "48000", "", testUUID2)),
		)
		got, err := ParseCPL(cpl, discardLogger())
		if err != nil {
			t.Fatalf("ParseCPL: %v", err)
		}
		if len(got.Audios) != 1 {
			t.Fatalf("expected sequences sharing a TrackId to merge into one virtual track, got %d", len(got.Audios))
		}
		if len(got.Audios[0].Resources) != 2 {
			t.Errorf("expected 2 merged resources, got %d", len(got.Audios[0].Resources))
		}
	})
}
