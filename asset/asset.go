// Package asset defines the asset categories, identity references, and
// decoded handles shared by the cache tiers.
//
// A Ref names one logical asset: which category it belongs to plus the
// category-specific identity and variant. Refs are values; they carry no
// connection state and are safe to copy.
package asset

import (
	"errors"
	"strings"
)

// Category groups asset kinds that share one decode strategy and one durable
// collection.
type Category string

const (
	CategoryEntityAnimation Category = "entity_animation"
	CategoryAvatarAnimation Category = "avatar_animation"
	CategoryMusic           Category = "music"
	CategoryEntitySound     Category = "entity_sound"
	CategoryUISound         Category = "ui_sound"
	CategoryImage           Category = "image"
)

// Categories returns all supported categories in stable order.
func Categories() []Category {
	return []Category{
		CategoryEntityAnimation,
		CategoryAvatarAnimation,
		CategoryMusic,
		CategoryEntitySound,
		CategoryUISound,
		CategoryImage,
	}
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEntityAnimation, CategoryAvatarAnimation, CategoryMusic,
		CategoryEntitySound, CategoryUISound, CategoryImage:
		return true
	}
	return false
}

var (
	// ErrCategoryInvalid reports an unknown asset category.
	ErrCategoryInvalid = errors.New("asset category is invalid")
	// ErrRefIncomplete reports a Ref missing required identity fields.
	ErrRefIncomplete = errors.New("asset ref is incomplete")
)

// Look describes one composed avatar appearance. ItemIDs is an unordered
// set: two Looks with the same ids in different order describe the same
// appearance.
type Look struct {
	BodyID    int
	ItemIDs   []int
	PaletteID int
}

// Ref identifies one logical asset. Only the fields relevant to the
// category are set; use the constructor for the category at hand.
type Ref struct {
	Category Category

	// EntityID identifies entity-scoped assets (animations, sounds, images).
	EntityID int
	// Variant is the animation name, sound kind, or image variant.
	Variant string
	// Path identifies path-addressed assets (music tracks, UI sounds).
	Path string
	// AssetType namespaces generic images (e.g. "items", "maps").
	AssetType string
	// Look is set for avatar-composite animations.
	Look *Look
}

// EntityAnimationRef names one animation of one entity.
func EntityAnimationRef(entityID int, animation string) Ref {
	return Ref{Category: CategoryEntityAnimation, EntityID: entityID, Variant: animation}
}

// AvatarAnimationRef names one animation of one composed avatar look.
func AvatarAnimationRef(look Look, animation string) Ref {
	return Ref{Category: CategoryAvatarAnimation, Look: &look, Variant: animation}
}

// MusicRef names one music track by path.
func MusicRef(path string) Ref {
	return Ref{Category: CategoryMusic, Path: path}
}

// EntitySoundRef names one sound effect of one entity.
func EntitySoundRef(entityID int, kind string) Ref {
	return Ref{Category: CategoryEntitySound, EntityID: entityID, Variant: kind}
}

// UISoundRef names one interface sound by path.
func UISoundRef(path string) Ref {
	return Ref{Category: CategoryUISound, Path: path}
}

// ImageRef names one generic image by type, id, and variant.
func ImageRef(assetType string, entityID int, variant string) Ref {
	return Ref{Category: CategoryImage, AssetType: assetType, EntityID: entityID, Variant: variant}
}

// Validate reports whether the Ref carries the identity its category needs.
func (r Ref) Validate() error {
	if !r.Category.Valid() {
		return ErrCategoryInvalid
	}
	switch r.Category {
	case CategoryEntityAnimation, CategoryEntitySound:
		if r.EntityID == 0 || strings.TrimSpace(r.Variant) == "" {
			return ErrRefIncomplete
		}
	case CategoryAvatarAnimation:
		if r.Look == nil || r.Look.BodyID == 0 || strings.TrimSpace(r.Variant) == "" {
			return ErrRefIncomplete
		}
	case CategoryMusic, CategoryUISound:
		if strings.TrimSpace(r.Path) == "" {
			return ErrRefIncomplete
		}
	case CategoryImage:
		if strings.TrimSpace(r.AssetType) == "" || r.EntityID == 0 {
			return ErrRefIncomplete
		}
	}
	return nil
}
