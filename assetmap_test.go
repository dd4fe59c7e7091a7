package imf

import (
	"errors"
	"testing"
)

func chunkListEl(path string) *fakeElement {
	return el("ChunkList", "", el("Chunk", "", el("Path", path)))
}

func assetEl(id, path string) *fakeElement {
	return el("Asset", "", el("Id", id), chunkListEl(path))
}

func assetMapEl(assets ...*fakeElement) *fakeElement {
	return el("AssetMap", "", el("AssetList", "", assets...))
}

func TestParseAssetMapResolvesRelativePath(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		doc := assetMapEl(assetEl(testUUID2, "sub/x.mxf"))
		m := NewAssetLocatorMap()
		if err := ParseAssetMap(m, doc, "http://h/base", discardLogger()); err != nil {
			t.Fatalf("ParseAssetMap: %v", err)
		}
		id, err := ParseUUID(testUUID2)
		if err != nil {
			t.Fatalf("ParseUUID: %v", err)
		}
		loc, ok := m.Lookup(id)
		if !ok {
			t.Fatal("expected asset to be found")
		}
		if loc.AbsoluteURI != "http://h/base/sub/x.mxf" {
			t.Errorf("resolved URI = %q, want http://h/base/sub/x.mxf", loc.AbsoluteURI)
		}
	})
}

func TestParseAssetMapAbsolutePathUntouched(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		doc := assetMapEl(assetEl(testUUID2, "/abs/x.mxf"))
		m := NewAssetLocatorMap()
		if err := ParseAssetMap(m, doc, "http://h/base", discardLogger()); err != nil {
			t.Fatalf("ParseAssetMap: %v", err)
		}
		id, _ := ParseUUID(testUUID2)
		loc, _ := m.Lookup(id)
		if loc.AbsoluteURI != "/abs/x.mxf" {
			t.Errorf("got %q, want /abs/x.mxf unchanged", loc.AbsoluteURI)
		}
	})
}

func TestParseAssetMapUnknownUUIDLookupMiss(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		m := NewAssetLocatorMap()
		id, _ := ParseUUID(testUUID1)
		if _, ok := m.Lookup(id); ok {
			t.Fatal("expected lookup miss on empty map")
		}
	})
}

func TestParseAssetMapMultipleChunksWarnsAndUsesFirst(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		asset := el("Asset", "", el("Id", testUUID2),
			el("ChunkList", "",
				el("Chunk", "", el("Path", "first.mxf")),
				el("Chunk", "", el("Path", "second.mxf")),
			),
		)
		doc := assetMapEl(asset)
		m := NewAssetLocatorMap()
		if err := ParseAssetMap(m, doc, "", discardLogger()); err != nil {
			t.Fatalf("ParseAssetMap: %v", err)
		}
		id, _ := ParseUUID(testUUID2)
		loc, _ := m.Lookup(id)
		if loc.AbsoluteURI != "first.mxf" {
			t.Errorf("got %q, want only the first chunk's path", loc.AbsoluteURI)
		}
	})
}

func TestParseAssetMapDuplicateUUIDLastWriteWins(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		m := NewAssetLocatorMap()
		doc1 := assetMapEl(assetEl(testUUID2, "one.mxf"))
		doc2 := assetMapEl(assetEl(testUUID2, "two.mxf"))
		if err := ParseAssetMap(m, doc1, "", discardLogger()); err != nil {
			t.Fatalf("ParseAssetMap doc1: %v", err)
		}
		if err := ParseAssetMap(m, doc2, "", discardLogger()); err != nil {
			t.Fatalf("ParseAssetMap doc2: %v", err)
		}
		id, _ := ParseUUID(testUUID2)
		loc, _ := m.Lookup(id)
		if loc.AbsoluteURI != "two.mxf" {
			t.Errorf("got %q, want the second asset map's path to win", loc.AbsoluteURI)
		}
	})
}

func TestParseAssetMapTooManyAssetsIsOutOfMemory(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		assets := make([]*fakeElement, maxListLength+1)
		for i := range assets {
			assets[i] = el("Asset", "")
		}
		doc := assetMapEl(assets...)
		m := NewAssetLocatorMap()
		err := ParseAssetMap(m, doc, "", discardLogger())
		if !errors.Is(err, ErrOutOfMemory) {
			t.Errorf("ParseAssetMap error = %v, want ErrOutOfMemory", err)
		}
	})
}

func TestParseAssetMapWrongRoot(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		m := NewAssetLocatorMap()
		if err := ParseAssetMap(m, el("CompositionPlaylist", ""), "", discardLogger()); err == nil {
			t.Fatal("expected error for wrong root element")
		}
	})
}
