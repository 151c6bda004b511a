package asset

import (
	"errors"
	"testing"
)

func TestRefValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ref  Ref
		want error
	}{
		{"entity animation", EntityAnimationRef(100100, "stand"), nil},
		{"entity animation missing variant", EntityAnimationRef(100100, ""), ErrRefIncomplete},
		{"entity animation missing id", EntityAnimationRef(0, "stand"), ErrRefIncomplete},
		{"avatar", AvatarAnimationRef(Look{BodyID: 3, ItemIDs: []int{1}}, "walk"), nil},
		{"avatar missing body", AvatarAnimationRef(Look{}, "walk"), ErrRefIncomplete},
		{"music", MusicRef("themes/battle.ogg"), nil},
		{"music empty path", MusicRef("  "), ErrRefIncomplete},
		{"ui sound", UISoundRef("click"), nil},
		{"image", ImageRef("items", 42, "icon"), nil},
		{"image missing type", ImageRef("", 42, "icon"), ErrRefIncomplete},
		{"unknown category", Ref{Category: Category("video")}, ErrCategoryInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.ref.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCategoriesAreValid(t *testing.T) {
	t.Parallel()

	for _, category := range Categories() {
		if !category.Valid() {
			t.Fatalf("category %q reported invalid", category)
		}
	}
	if Category("video").Valid() {
		t.Fatal("unknown category reported valid")
	}
}
