package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/igor-kupczynski/foodbuddy/internal/model"
)

// Store exposes persistence operations required by services and the sync
// engine. Implementations live under internal/store/<driver>/.
//
// The store assumes a single logical writer. Compound operations that must
// be atomic (ingest batches, entry deletion with meal pruning, the analysis
// claim) are implemented inside one transaction by the driver.
type Store interface {
	MealTypes() MealTypes
	Meals() Meals
	Entries() Entries
	PhotoAssets() PhotoAssets
}

type MealTypes interface {
	Create(ctx context.Context, t *model.MealType) error
	Get(ctx context.Context, id uuid.UUID) (*model.MealType, error)
	// List returns all types ordered by display name.
	List(ctx context.Context) ([]*model.MealType, error)
	Update(ctx context.Context, t *model.MealType) error
}

type Meals interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Meal, error)
	// FindByTypeAndDay resolves the unique meal for a (type, day bucket)
	// pair, or model.ErrNotFound.
	FindByTypeAndDay(ctx context.Context, typeID uuid.UUID, dayStart time.Time) (*model.Meal, error)
	Create(ctx context.Context, m *model.Meal) error
	Update(ctx context.Context, m *model.Meal) error
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	// DeleteIfEmpty removes the meal when it has no entries left and
	// reports whether it did.
	DeleteIfEmpty(ctx context.Context, id uuid.UUID) (bool, error)
	// ClaimNextPendingAnalysis atomically flips the oldest-updated pending
	// meal to analyzing and returns it, or model.ErrNotFound when no meal
	// is pending. A meal already analyzing is never returned.
	ClaimNextPendingAnalysis(ctx context.Context, now time.Time) (*model.Meal, error)
	// SetAnalysisResult records the outcome of an analysis attempt.
	// description is stored only when non-nil.
	SetAnalysisResult(ctx context.Context, id uuid.UUID, status model.AnalysisStatus, description *string, now time.Time) error
}

type Entries interface {
	Get(ctx context.Context, id uuid.UUID) (*model.MealEntry, error)
	List(ctx context.Context) ([]*model.MealEntry, error)
	ListByMeal(ctx context.Context, mealID uuid.UUID) ([]*model.MealEntry, error)
	Update(ctx context.Context, e *model.MealEntry) error
	// Delete removes the entry; its photo asset row goes with it via the
	// schema's cascade.
	Delete(ctx context.Context, id uuid.UUID) error
	// InsertBatch writes an ingest batch in one transaction: the meal when
	// createMeal is set, the meal's notes/analysis fields otherwise via a
	// separate Update, and every entry with its photo asset.
	InsertBatch(ctx context.Context, meal *model.Meal, createMeal bool, entries []*model.MealEntry, assets []*model.EntryPhotoAsset) error
	// Move reparents the entry onto another meal, optionally rewriting its
	// logged time, in one transaction.
	Move(ctx context.Context, entryID, toMealID uuid.UUID, loggedAt *time.Time, now time.Time) error
}

type PhotoAssets interface {
	Create(ctx context.Context, a *model.EntryPhotoAsset) error
	// Get looks up an asset by its ID, which equals the owning entry's ID.
	Get(ctx context.Context, id uuid.UUID) (*model.EntryPhotoAsset, error)
	// List returns all assets ordered by updatedAt descending.
	List(ctx context.Context) ([]*model.EntryPhotoAsset, error)
	Update(ctx context.Context, a *model.EntryPhotoAsset) error
	// ResetFailed flips every failed asset back to pending with
	// nextRetryAt = now, returning the number of rows changed.
	ResetFailed(ctx context.Context, now time.Time) (int, error)
}
