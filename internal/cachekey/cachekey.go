// Package cachekey builds deterministic cache keys from asset identities.
//
// Keys are plain strings so durable rows stay inspectable. Unordered inputs
// (an avatar's equipped item set) are sorted before joining, so permutations
// of the same logical identity always land on the same key.
package cachekey

import (
	"sort"
	"strconv"
	"strings"

	"github.com/karstlight/assetcache/asset"
)

const sep = "/"

// Entity builds the key for an entity-scoped asset variant.
func Entity(category asset.Category, entityID int, variant string) string {
	return join(string(category), strconv.Itoa(entityID), variant)
}

// Avatar builds the key for one composed avatar look and animation. The
// look's item ids are sorted ascending so logically identical looks share
// one key regardless of input order.
func Avatar(category asset.Category, look asset.Look, animation string) string {
	items := append([]int(nil), look.ItemIDs...)
	sort.Ints(items)
	parts := make([]string, 0, len(items))
	for _, id := range items {
		parts = append(parts, strconv.Itoa(id))
	}
	return join(
		string(category),
		strconv.Itoa(look.BodyID),
		strings.Join(parts, ","),
		strconv.Itoa(look.PaletteID),
		animation,
	)
}

// Path builds the key for a path-addressed asset.
func Path(category asset.Category, path string) string {
	return join(string(category), strings.TrimPrefix(path, sep))
}

// Image builds the key for a generic image asset.
func Image(assetType string, entityID int, variant string) string {
	return join(string(asset.CategoryImage), assetType, strconv.Itoa(entityID), variant)
}

// ForRef builds the key for any Ref.
func ForRef(ref asset.Ref) string {
	switch ref.Category {
	case asset.CategoryAvatarAnimation:
		if ref.Look == nil {
			return join(string(ref.Category), ref.Variant)
		}
		return Avatar(ref.Category, *ref.Look, ref.Variant)
	case asset.CategoryMusic, asset.CategoryUISound:
		return Path(ref.Category, ref.Path)
	case asset.CategoryImage:
		return Image(ref.AssetType, ref.EntityID, ref.Variant)
	default:
		return Entity(ref.Category, ref.EntityID, ref.Variant)
	}
}

func join(parts ...string) string {
	trimmed := parts[:0]
	for _, part := range parts {
		if part != "" {
			trimmed = append(trimmed, part)
		}
	}
	return strings.Join(trimmed, sep)
}
