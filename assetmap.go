package imf

import (
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

// AssetLocator resolves one asset UUID to its absolute URI (spec §3).
type AssetLocator struct {
	UUID        UUID
	AbsoluteURI string
}

// AssetLocatorMap is the merged UUID→URI table built from one or more
// asset maps (component 4.C).
type AssetLocatorMap struct {
	byUUID map[UUID]AssetLocator
}

// NewAssetLocatorMap returns an empty map ready for ParseAssetMap calls.
func NewAssetLocatorMap() *AssetLocatorMap {
	return &AssetLocatorMap{byUUID: make(map[UUID]AssetLocator)}
}

// Lookup returns the locator for id, or false if no asset map declared it.
func (m *AssetLocatorMap) Lookup(id UUID) (AssetLocator, bool) {
	loc, ok := m.byUUID[id]
	return loc, ok
}

// Len reports the number of distinct asset UUIDs in the map.
func (m *AssetLocatorMap) Len() int { return len(m.byUUID) }

func (m *AssetLocatorMap) insert(loc AssetLocator, log zerolog.Logger) {
	if existing, ok := m.byUUID[loc.UUID]; ok && existing.AbsoluteURI != loc.AbsoluteURI {
		log.Warn().
			Str("uuid", loc.UUID.String()).
			Str("existing_uri", existing.AbsoluteURI).
			Str("new_uri", loc.AbsoluteURI).
			Msg("duplicate asset UUID across asset maps, last write wins")
	}
	m.byUUID[loc.UUID] = loc
}

// ParseAssetMap reads one AssetMap document's root element and merges its
// assets into m. baseURL is the directory of the asset map document's own
// URI, used to resolve relative Path values (component 4.C).
func ParseAssetMap(m *AssetLocatorMap, root Element, baseURL string, log zerolog.Logger) error {
	if root == nil || root.LocalName() != "AssetMap" {
		return fmt.Errorf("%w: root element is not AssetMap", ErrInvalidData)
	}

	assetList := ChildByLocalName(root, "AssetList")
	if assetList == nil {
		return fmt.Errorf("%w: AssetMap missing AssetList", ErrInvalidData)
	}

	assetEls := ChildrenByLocalName(assetList, "Asset")
	if err := checkListLength(len(assetEls), "AssetList"); err != nil {
		return err
	}
	for _, assetEl := range assetEls {
		idEl := ChildByLocalName(assetEl, "Id")
		id, err := ReadUUID(idEl)
		if err != nil {
			return fmt.Errorf("Asset/Id: %w", err)
		}

		chunkList := ChildByLocalName(assetEl, "ChunkList")
		if chunkList == nil {
			return fmt.Errorf("%w: Asset missing ChunkList", ErrInvalidData)
		}
		chunks := ChildrenByLocalName(chunkList, "Chunk")
		if err := checkListLength(len(chunks), "ChunkList"); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return fmt.Errorf("%w: ChunkList missing Chunk", ErrInvalidData)
		}
		if len(chunks) > 1 {
			log.Warn().
				Str("uuid", id.String()).
				Int("chunk_count", len(chunks)).
				Msg("asset has multiple chunks, only the first is used")
		}

		pathEl := ChildByLocalName(chunks[0], "Path")
		if pathEl == nil {
			return fmt.Errorf("%w: Chunk missing Path", ErrInvalidData)
		}

		absoluteURI := resolveAssetPath(pathEl.Text(), baseURL)
		m.insert(AssetLocator{UUID: id, AbsoluteURI: absoluteURI}, log)
	}
	return nil
}

func isURL(p string) bool {
	return strings.Contains(p, "://")
}

func isPOSIXAbsolute(p string) bool {
	return strings.HasPrefix(p, "/")
}

func isDOSAbsolute(p string) bool {
	if len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		return true
	}
	return strings.HasPrefix(p, `\\`)
}

// resolveAssetPath classifies p and, if relative, resolves it against
// baseURL (component 4.C step 4).
func resolveAssetPath(p, baseURL string) string {
	if isURL(p) || isPOSIXAbsolute(p) || isDOSAbsolute(p) {
		return p
	}
	if baseURL == "" {
		return p
	}
	if isURL(baseURL) {
		return strings.TrimSuffix(baseURL, "/") + "/" + p
	}
	return path.Join(baseURL, p)
}
