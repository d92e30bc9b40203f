package services

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/igor-kupczynski/foodbuddy/internal/imagestore"
	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/recognition"
	"github.com/igor-kupczynski/foodbuddy/internal/secret"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

// PendingMealAnalysis is one claimed unit of analysis work: the meal plus
// the local filenames of its photos, ordered by logged time.
type PendingMealAnalysis struct {
	MealID         uuid.UUID
	ImageFilenames []string
	Notes          string
}

// AnalysisModelStore mediates between the analysis queue in the database
// and the coordinator. Claiming is atomic: a meal handed out here is in
// the analyzing state and will not be handed out again until its outcome
// is recorded.
type AnalysisModelStore struct {
	store store.Store
	now   func() time.Time
}

func NewAnalysisModelStore(s store.Store, opts ...Option) *AnalysisModelStore {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &AnalysisModelStore{store: s, now: o.now}
}

// ClaimNextPendingMeal flips the oldest pending meal to analyzing and
// assembles its work unit. Returns (nil, nil) when the queue is empty.
//
// For each entry the asset's full-image filename is preferred over the
// entry's own filename pointer, since the asset reflects hydration.
func (a *AnalysisModelStore) ClaimNextPendingMeal(ctx context.Context) (*PendingMealAnalysis, error) {
	meal, err := a.store.Meals().ClaimNextPendingAnalysis(ctx, a.now())
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, err := a.store.Entries().ListByMeal(ctx, meal.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LoggedAt.Before(entries[j].LoggedAt)
	})

	work := &PendingMealAnalysis{MealID: meal.ID}
	if meal.UserNotes != nil {
		work.Notes = *meal.UserNotes
	}
	for _, e := range entries {
		name := e.ImageFilename
		if asset, err := a.store.PhotoAssets().Get(ctx, e.ID); err == nil &&
			asset.FullImageFilename != nil && *asset.FullImageFilename != "" {
			name = *asset.FullImageFilename
		}
		if name != "" {
			work.ImageFilenames = append(work.ImageFilenames, name)
		}
	}
	return work, nil
}

// MarkCompleted records a successful analysis and its description.
func (a *AnalysisModelStore) MarkCompleted(ctx context.Context, mealID uuid.UUID, description string) error {
	return a.store.Meals().SetAnalysisResult(ctx, mealID, model.AnalysisCompleted, &description, a.now())
}

// MarkFailed records a failed attempt. Any stale description is kept.
func (a *AnalysisModelStore) MarkFailed(ctx context.Context, mealID uuid.UUID) error {
	return a.store.Meals().SetAnalysisResult(ctx, mealID, model.AnalysisFailed, nil, a.now())
}

// Requeue puts a failed meal back in the pending queue so the next run
// retries it.
func (a *AnalysisModelStore) Requeue(ctx context.Context, mealID uuid.UUID) error {
	meal, err := a.store.Meals().Get(ctx, mealID)
	if errors.Is(err, model.ErrNotFound) {
		return ErrMissingMeal
	}
	if err != nil {
		return err
	}
	if meal.AnalysisStatus != model.AnalysisFailed {
		return nil
	}
	return a.store.Meals().SetAnalysisResult(ctx, mealID, model.AnalysisPending, nil, a.now())
}

// AnalysisCoordinator drains the analysis queue one meal at a time. It is
// meant to be driven by the scheduler; concurrent invocations are guarded
// there, so the coordinator itself stays single-flight and simple.
type AnalysisCoordinator struct {
	models    *AnalysisModelStore
	images    *imagestore.Store
	describer recognition.Describer
	apiKey    secret.Store
	log       zerolog.Logger
}

func NewAnalysisCoordinator(
	models *AnalysisModelStore,
	images *imagestore.Store,
	describer recognition.Describer,
	apiKey secret.Store,
	log zerolog.Logger,
) *AnalysisCoordinator {
	return &AnalysisCoordinator{
		models:    models,
		images:    images,
		describer: describer,
		apiKey:    apiKey,
		log:       log,
	}
}

// ProcessPendingMeals drains the queue. Without a configured credential it
// is a no-op so pending meals survive until a key shows up. A failure on
// one meal is recorded on that meal and the loop moves on; only storage
// errors abort the run.
func (c *AnalysisCoordinator) ProcessPendingMeals(ctx context.Context) error {
	if c.apiKey != nil {
		key, err := c.apiKey.Get()
		if err != nil {
			return err
		}
		if strings.TrimSpace(key) == "" {
			c.log.Debug().Msg("analysis: no api key configured, leaving queue pending")
			return nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		work, err := c.models.ClaimNextPendingMeal(ctx)
		if err != nil {
			return err
		}
		if work == nil {
			return nil
		}

		if err := c.analyzeOne(ctx, work); err != nil {
			c.log.Error().Err(err).
				Str("meal", work.MealID.String()).
				Int("images", len(work.ImageFilenames)).
				Str("failure", classifyAnalysisError(err)).
				Msg("meal analysis failed")
			if err := c.models.MarkFailed(ctx, work.MealID); err != nil {
				return err
			}
			continue
		}
	}
}

func (c *AnalysisCoordinator) analyzeOne(ctx context.Context, work *PendingMealAnalysis) error {
	var images [][]byte
	for _, name := range work.ImageFilenames {
		data, ok, err := c.images.LoadBytes(name)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("analysis: image file missing: " + name)
		}
		images = append(images, data)
	}

	description, err := c.describer.Describe(ctx, images, work.Notes)
	if err != nil {
		return err
	}

	if err := c.models.MarkCompleted(ctx, work.MealID, description); err != nil {
		return err
	}
	c.log.Info().
		Str("meal", work.MealID.String()).
		Int("images", len(images)).
		Msg("meal analysis completed")
	return nil
}

// classifyAnalysisError buckets failures for the log line so recurring
// problems are visible without reading stack traces.
func classifyAnalysisError(err error) string {
	var httpErr *recognition.HTTPError
	var urlErr *url.Error
	switch {
	case errors.Is(err, recognition.ErrNoAPIKey):
		return "no_api_key"
	case errors.Is(err, recognition.ErrNetwork), errors.As(err, &urlErr):
		return "network"
	case errors.Is(err, recognition.ErrDecoding):
		return "decoding"
	case errors.As(err, &httpErr):
		return "http"
	default:
		return "other"
	}
}
