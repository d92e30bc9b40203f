package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

// DefaultTypeNames are seeded once into an empty catalog.
var DefaultTypeNames = []string{
	"Breakfast",
	"Lunch",
	"Dinner",
	"Afternoon Snack",
	"Snack",
	"Workout Fuel",
	"Protein Shake",
}

// MealTypeService manages the meal-type catalog.
type MealTypeService struct {
	store store.Store
	now   func() time.Time
	newID func() uuid.UUID
	loc   *time.Location
}

func NewMealTypeService(s store.Store, opts ...Option) *MealTypeService {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &MealTypeService{store: s, now: o.now, newID: o.newID, loc: o.loc}
}

// BootstrapDefaultTypes seeds the system defaults when the catalog is
// empty. Idempotent.
func (s *MealTypeService) BootstrapDefaultTypes(ctx context.Context) error {
	existing, err := s.store.MealTypes().List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := s.now()
	for _, name := range DefaultTypeNames {
		t := &model.MealType{
			ID:          s.newID(),
			DisplayName: name,
			IsSystem:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.MealTypes().Create(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *MealTypeService) List(ctx context.Context) ([]*model.MealType, error) {
	return s.store.MealTypes().List(ctx)
}

func (s *MealTypeService) Get(ctx context.Context, id uuid.UUID) (*model.MealType, error) {
	t, err := s.store.MealTypes().Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrMissingMealType
	}
	return t, err
}

// SuggestForTime picks a type from the time of day, falling back to the
// snack type and then to the first catalog entry.
func (s *MealTypeService) SuggestForTime(ctx context.Context, at time.Time) (*model.MealType, error) {
	hour := at.In(s.loc).Hour()

	var name string
	switch {
	case hour < 11:
		name = "Breakfast"
	case hour < 15:
		name = "Lunch"
	case hour < 18:
		name = "Afternoon Snack"
	default:
		name = "Dinner"
	}

	if t, err := s.findByName(ctx, name); err != nil {
		return nil, err
	} else if t != nil {
		return t, nil
	}
	return s.FallbackSnackType(ctx)
}

// FallbackSnackType returns the "Snack" type, or the first catalog entry,
// or nil on an empty catalog.
func (s *MealTypeService) FallbackSnackType(ctx context.Context) (*model.MealType, error) {
	if t, err := s.findByName(ctx, "Snack"); err != nil {
		return nil, err
	} else if t != nil {
		return t, nil
	}

	all, err := s.store.MealTypes().List(ctx)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

// CreateCustomType adds a user-defined type. The name must be non-empty
// after trimming and unique case-insensitively.
func (s *MealTypeService) CreateCustomType(ctx context.Context, rawName string) (*model.MealType, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return nil, ErrInvalidTypeName
	}

	if dup, err := s.findByName(ctx, name); err != nil {
		return nil, err
	} else if dup != nil {
		return nil, ErrDuplicateTypeName
	}

	now := s.now()
	t := &model.MealType{
		ID:          s.newID(),
		DisplayName: name,
		IsSystem:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.MealTypes().Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Rename changes a type's display name, enforcing the same uniqueness rule.
func (s *MealTypeService) Rename(ctx context.Context, typeID uuid.UUID, rawName string) error {
	t, err := s.Get(ctx, typeID)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(rawName)
	if name == "" {
		return ErrInvalidTypeName
	}

	if dup, err := s.findByName(ctx, name); err != nil {
		return err
	} else if dup != nil && dup.ID != t.ID {
		return ErrDuplicateTypeName
	}

	if t.DisplayName == name {
		return nil
	}

	t.DisplayName = name
	t.UpdatedAt = s.now()
	return s.store.MealTypes().Update(ctx, t)
}

func (s *MealTypeService) findByName(ctx context.Context, rawName string) (*model.MealType, error) {
	normalized := model.NormalizeMealTypeName(rawName)
	if normalized == "" {
		return nil, nil
	}

	all, err := s.store.MealTypes().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if model.NormalizeMealTypeName(t.DisplayName) == normalized {
			return t, nil
		}
	}
	return nil, nil
}
