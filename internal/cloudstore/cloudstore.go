// Package cloudstore defines the remote photo blob store contract used by
// the sync engine, and its S3 implementation.
package cloudstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrAssetNotFound means the reference points at nothing remotely.
	ErrAssetNotFound = errors.New("cloud asset not found")
	// ErrInvalidAssetRef means the reference string is malformed.
	ErrInvalidAssetRef = errors.New("invalid asset reference")
)

// Variant names embedded in asset references.
const (
	VariantFull  = "full"
	VariantThumb = "thumb"
)

// UploadedRefs carries the opaque locators returned by an upload.
type UploadedRefs struct {
	FullAssetRef  string
	ThumbAssetRef string
}

// Store is the remote blob store consumed by the sync engine. Upload is
// keyed by entry identity: re-uploading the same entry overwrites rather
// than duplicates.
type Store interface {
	Upload(ctx context.Context, entryID uuid.UUID, fullJPEG, thumbJPEG []byte) (UploadedRefs, error)
	Download(ctx context.Context, assetRef string) ([]byte, error)
}

// MakeAssetRef builds the opaque "<entryID>|<variant>" locator stored on
// photo asset rows.
func MakeAssetRef(entryID uuid.UUID, variant string) string {
	return fmt.Sprintf("%s|%s", entryID, variant)
}

// ParseAssetRef splits a locator back into its entry ID and variant.
func ParseAssetRef(ref string) (uuid.UUID, string, error) {
	parts := strings.SplitN(ref, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return uuid.Nil, "", ErrInvalidAssetRef
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", ErrInvalidAssetRef
	}
	if parts[1] != VariantFull && parts[1] != VariantThumb {
		return uuid.Nil, "", ErrInvalidAssetRef
	}
	return id, parts[1], nil
}
