// Package recognition produces a text description of a meal from its
// photos.
package recognition

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey means no credential is configured.
	ErrNoAPIKey = errors.New("recognition: no api key configured")
	// ErrNetwork covers transport failures before an HTTP status arrived.
	ErrNetwork = errors.New("recognition: network error")
	// ErrDecoding means the provider answered but the payload was unusable.
	ErrDecoding = errors.New("recognition: response decoding failed")
)

// HTTPError is a non-2xx answer from the provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("recognition: http %d", e.StatusCode)
}

// Describer turns meal photos plus optional user notes into a short text
// description.
type Describer interface {
	Describe(ctx context.Context, images [][]byte, notes string) (string, error)
}

// Mock is a canned Describer for tests and offline mode.
type Mock struct {
	Description string
	Err         error
}

func (m Mock) Describe(ctx context.Context, images [][]byte, notes string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Description != "" {
		return m.Description, nil
	}
	return "Meal description unavailable in mock mode.", nil
}
