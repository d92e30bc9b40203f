package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

// MealService resolves the unique meal for a (type, calendar day) pair and
// owns day-boundary and pruning rules.
type MealService struct {
	store store.Store
	now   func() time.Time
	newID func() uuid.UUID
	loc   *time.Location
}

func NewMealService(s store.Store, opts ...Option) *MealService {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &MealService{store: s, now: o.now, newID: o.newID, loc: o.loc}
}

// Get returns a meal by ID, mapping absence to ErrMissingMeal.
func (s *MealService) Get(ctx context.Context, id uuid.UUID) (*model.Meal, error) {
	m, err := s.store.Meals().Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrMissingMeal
	}
	return m, err
}

// Resolve finds the meal for (typeID, day of loggedAt) or builds a new,
// not yet persisted one. The created flag tells the caller whether the
// meal still needs inserting.
func (s *MealService) Resolve(ctx context.Context, typeID uuid.UUID, loggedAt time.Time) (*model.Meal, bool, error) {
	day := s.StartOfDay(loggedAt)
	existing, err := s.store.Meals().FindByTypeAndDay(ctx, typeID, day)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}

	now := s.now()
	return &model.Meal{
		ID:             s.newID(),
		TypeID:         typeID,
		CreatedAt:      day,
		UpdatedAt:      now,
		AnalysisStatus: model.AnalysisNone,
	}, true, nil
}

// Ensure is Resolve plus persistence of a newly built meal.
func (s *MealService) Ensure(ctx context.Context, typeID uuid.UUID, loggedAt time.Time) (*model.Meal, error) {
	meal, created, err := s.Resolve(ctx, typeID, loggedAt)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.store.Meals().Create(ctx, meal); err != nil {
			return nil, err
		}
	}
	return meal, nil
}

// RequiresReassignment reports whether moving an entry of meal to
// newLoggedAt would cross a calendar-day boundary.
func (s *MealService) RequiresReassignment(meal *model.Meal, newLoggedAt time.Time) bool {
	return !meal.CreatedAt.Equal(s.StartOfDay(newLoggedAt))
}

// Touch bumps the meal's updatedAt.
func (s *MealService) Touch(ctx context.Context, id uuid.UUID) error {
	return s.store.Meals().Touch(ctx, id, s.now())
}

// PruneIfEmpty deletes the meal when its last entry is gone.
func (s *MealService) PruneIfEmpty(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.Meals().DeleteIfEmpty(ctx, id)
}

// StartOfDay buckets a timestamp to its calendar day in the service's
// location.
func (s *MealService) StartOfDay(t time.Time) time.Time {
	local := t.In(s.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
