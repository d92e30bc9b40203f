package cloudstore

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestAssetRefRoundtrip(t *testing.T) {
	entryID := uuid.New()

	for _, variant := range []string{VariantFull, VariantThumb} {
		ref := MakeAssetRef(entryID, variant)
		gotID, gotVariant, err := ParseAssetRef(ref)
		if err != nil {
			t.Fatalf("parse %q: %v", ref, err)
		}
		if gotID != entryID || gotVariant != variant {
			t.Fatalf("roundtrip %q -> %s/%s", ref, gotID, gotVariant)
		}
	}
}

func TestParseAssetRefRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"no-separator",
		"|full",
		uuid.NewString(),
		uuid.NewString() + "|",
		uuid.NewString() + "|original", // unknown variant
		"not-a-uuid|full",
	}
	for _, ref := range cases {
		if _, _, err := ParseAssetRef(ref); !errors.Is(err, ErrInvalidAssetRef) {
			t.Errorf("ParseAssetRef(%q) err = %v, want ErrInvalidAssetRef", ref, err)
		}
	}
}

func TestS3KeyLayout(t *testing.T) {
	s := &S3Store{bucket: "b", prefix: "photos"}
	entryID := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	want := "photos/11111111-2222-3333-4444-555555555555-full.jpg"
	if got := s.key(entryID, VariantFull); got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}
