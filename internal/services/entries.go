package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/igor-kupczynski/foodbuddy/internal/imageproc"
	"github.com/igor-kupczynski/foodbuddy/internal/imagestore"
	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
)

// MaxCapturePhotos bounds one ingest batch.
const MaxCapturePhotos = 8

// IngestRequest is one capture session: raw JPEG images plus the meal
// metadata they belong to.
type IngestRequest struct {
	Images          [][]byte
	MealTypeID      uuid.UUID
	LoggedAt        time.Time
	Notes           string
	RequestAnalysis bool
}

// MealEntryService orchestrates ingestion, deletion, and reassignment of
// entries. Every operation is all-or-nothing: persistence happens in one
// transaction, and files written before a failed commit are cleaned up.
type MealEntryService struct {
	store  store.Store
	images *imagestore.Store
	proc   *imageproc.Processor
	meals  *MealService
	log    zerolog.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

func NewMealEntryService(
	s store.Store,
	images *imagestore.Store,
	proc *imageproc.Processor,
	meals *MealService,
	log zerolog.Logger,
	opts ...Option,
) *MealEntryService {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &MealEntryService{
		store:  s,
		images: images,
		proc:   proc,
		meals:  meals,
		log:    log,
		now:    o.now,
		newID:  o.newID,
	}
}

// Ingest processes a capture session into one entry plus photo asset per
// image, grouped under the meal for (type, day of loggedAt). All files are
// written before the single commit; on any failure every file written by
// this call is deleted and the original error returned.
func (s *MealEntryService) Ingest(ctx context.Context, req IngestRequest) ([]*model.MealEntry, error) {
	if len(req.Images) == 0 {
		return nil, ErrEmptyCaptureSession
	}
	if len(req.Images) > MaxCapturePhotos {
		return nil, ErrCapturePhotoLimit
	}

	if _, err := s.store.MealTypes().Get(ctx, req.MealTypeID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrMissingMealType
		}
		return nil, err
	}

	meal, createMeal, err := s.meals.Resolve(ctx, req.MealTypeID, req.LoggedAt)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var written []string
	cleanup := func() {
		for _, name := range written {
			if err := s.images.DeleteFile(name); err != nil {
				s.log.Warn().Err(err).Str("file", name).Msg("ingest rollback: delete file")
			}
		}
	}

	entries := make([]*model.MealEntry, 0, len(req.Images))
	assets := make([]*model.EntryPhotoAsset, 0, len(req.Images))
	for _, raw := range req.Images {
		processed, err := s.proc.PreprocessJPEG(raw)
		if err != nil {
			cleanup()
			return nil, err
		}

		entryID := s.newID()
		fullName, err := s.images.SaveBytes(processed.FullJPEG, fmt.Sprintf("%s-full.jpg", entryID))
		if err != nil {
			cleanup()
			return nil, err
		}
		written = append(written, fullName)

		thumbName, err := s.images.SaveBytes(processed.ThumbnailJPEG, fmt.Sprintf("%s-thumb.jpg", entryID))
		if err != nil {
			cleanup()
			return nil, err
		}
		written = append(written, thumbName)

		assetID := entryID
		entries = append(entries, &model.MealEntry{
			ID:            entryID,
			MealID:        meal.ID,
			PhotoAssetID:  &assetID,
			ImageFilename: fullName,
			CapturedAt:    now,
			LoggedAt:      req.LoggedAt,
			UpdatedAt:     now,
		})
		assets = append(assets, &model.EntryPhotoAsset{
			ID:                assetID,
			EntryID:           entryID,
			FullImageFilename: &fullName,
			ThumbnailFilename: &thumbName,
			State:             model.SyncPending,
			UpdatedAt:         now,
		})
	}

	meal.UpdatedAt = now
	if notes := req.Notes; notes != "" {
		meal.UserNotes = &notes
	}
	if req.RequestAnalysis {
		meal.AnalysisStatus = model.AnalysisPending
	}

	if err := s.store.Entries().InsertBatch(ctx, meal, createMeal, entries, assets); err != nil {
		cleanup()
		return nil, err
	}

	s.log.Info().
		Int("entries", len(entries)).
		Str("meal", meal.ID.String()).
		Bool("analysis_requested", req.RequestAnalysis).
		Msg("capture session ingested")
	return entries, nil
}

// Delete removes an entry, its photo files, and its asset row, touching
// the owning meal and pruning it when it becomes empty. File deletion is
// idempotent.
func (s *MealEntryService) Delete(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.store.Entries().Get(ctx, entryID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, name := range s.entryFilenames(ctx, entry) {
		if err := s.images.DeleteFile(name); err != nil {
			return err
		}
	}

	if err := s.store.Entries().Delete(ctx, entry.ID); err != nil {
		return err
	}
	if err := s.meals.Touch(ctx, entry.MealID); err != nil {
		return err
	}
	_, err = s.meals.PruneIfEmpty(ctx, entry.MealID)
	return err
}

// UpdateLoggedAt rewrites an entry's logged time. A new time on a
// different calendar day moves the entry to the meal for that day, which
// requires allowReassignment; without it ErrReassignmentRequired is
// returned and nothing changes.
func (s *MealEntryService) UpdateLoggedAt(ctx context.Context, entryID uuid.UUID, newLoggedAt time.Time, allowReassignment bool) error {
	entry, err := s.store.Entries().Get(ctx, entryID)
	if err != nil {
		return mapEntryErr(err)
	}
	meal, err := s.meals.Get(ctx, entry.MealID)
	if err != nil {
		return err
	}

	if !s.meals.RequiresReassignment(meal, newLoggedAt) {
		if err := s.store.Entries().Move(ctx, entry.ID, meal.ID, &newLoggedAt, s.now()); err != nil {
			return err
		}
		return s.meals.Touch(ctx, meal.ID)
	}

	if !allowReassignment {
		return ErrReassignmentRequired
	}

	target, err := s.meals.Ensure(ctx, meal.TypeID, newLoggedAt)
	if err != nil {
		return err
	}
	if err := s.store.Entries().Move(ctx, entry.ID, target.ID, &newLoggedAt, s.now()); err != nil {
		return err
	}
	if err := s.meals.Touch(ctx, target.ID); err != nil {
		return err
	}
	if err := s.meals.Touch(ctx, meal.ID); err != nil {
		return err
	}
	_, err = s.meals.PruneIfEmpty(ctx, meal.ID)
	return err
}

// ReassignMealType moves an entry to the meal of another type on its
// existing day. Resolving to the same meal is a no-op.
func (s *MealEntryService) ReassignMealType(ctx context.Context, entryID, newTypeID uuid.UUID) error {
	entry, err := s.store.Entries().Get(ctx, entryID)
	if err != nil {
		return mapEntryErr(err)
	}
	if _, err := s.store.MealTypes().Get(ctx, newTypeID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrMissingMealType
		}
		return err
	}

	target, err := s.meals.Ensure(ctx, newTypeID, entry.LoggedAt)
	if err != nil {
		return err
	}
	if target.ID == entry.MealID {
		return nil
	}

	origin := entry.MealID
	if err := s.store.Entries().Move(ctx, entry.ID, target.ID, nil, s.now()); err != nil {
		return err
	}
	if err := s.meals.Touch(ctx, target.ID); err != nil {
		return err
	}
	if err := s.meals.Touch(ctx, origin); err != nil {
		return err
	}
	_, err = s.meals.PruneIfEmpty(ctx, origin)
	return err
}

// entryFilenames collects every local file the entry references, without
// duplicates: the asset's full and thumbnail files plus the entry's own
// filename pointer.
func (s *MealEntryService) entryFilenames(ctx context.Context, entry *model.MealEntry) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	add(entry.ImageFilename)
	if asset, err := s.store.PhotoAssets().Get(ctx, entry.ID); err == nil {
		if asset.FullImageFilename != nil {
			add(*asset.FullImageFilename)
		}
		if asset.ThumbnailFilename != nil {
			add(*asset.ThumbnailFilename)
		}
	}
	return out
}

func mapEntryErr(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: entry", model.ErrNotFound)
	}
	return err
}
