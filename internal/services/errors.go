package services

import (
	"errors"
	"fmt"

	"github.com/igor-kupczynski/foodbuddy/internal/model"
)

// Validation failures surfaced to callers. None of them leaves partial
// state behind. Each wraps the matching model sentinel so callers can
// match on the category without importing this package.
var (
	ErrMissingMealType     = fmt.Errorf("meal type %w", model.ErrNotFound)
	ErrMissingMeal         = fmt.Errorf("meal %w", model.ErrNotFound)
	ErrEmptyCaptureSession = fmt.Errorf("%w: capture session has no images", model.ErrValidation)
	ErrCapturePhotoLimit   = fmt.Errorf("%w: capture session exceeds the photo limit", model.ErrValidation)
	ErrInvalidTypeName     = fmt.Errorf("%w: meal type name is empty", model.ErrValidation)
	ErrDuplicateTypeName   = fmt.Errorf("%w: meal type name already in use", model.ErrConflict)

	// ErrReassignmentRequired is returned when a logged-time edit crosses a
	// day boundary and the caller has not confirmed moving the entry to
	// another meal. Nothing is mutated.
	ErrReassignmentRequired = errors.New("logged-time edit requires meal reassignment confirmation")
)
