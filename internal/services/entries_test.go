package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/igor-kupczynski/foodbuddy/internal/imageproc"
	"github.com/igor-kupczynski/foodbuddy/internal/imagestore"
	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
	"github.com/igor-kupczynski/foodbuddy/internal/store/sqlite"
)

type entryEnv struct {
	store     store.Store
	images    *imagestore.Store
	imagesDir string
	mealTypes *MealTypeService
	meals     *MealService
	entries   *MealEntryService
	now       time.Time
}

func newEntryEnv(t *testing.T) *entryEnv {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e := &entryEnv{
		store:     sqlite.New(db),
		imagesDir: t.TempDir(),
		now:       time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}
	e.images = imagestore.New(e.imagesDir)
	clock := func() time.Time { return e.now }
	opts := []Option{WithClock(clock), WithLocation(time.UTC)}

	e.mealTypes = NewMealTypeService(e.store, opts...)
	e.meals = NewMealService(e.store, opts...)
	e.entries = NewMealEntryService(e.store, e.images, imageproc.NewProcessor(), e.meals, zerolog.Nop(), opts...)

	if err := e.mealTypes.BootstrapDefaultTypes(context.Background()); err != nil {
		t.Fatalf("bootstrap types: %v", err)
	}
	return e
}

func (e *entryEnv) typeNamed(t *testing.T, name string) *model.MealType {
	t.Helper()
	types, err := e.mealTypes.List(context.Background())
	if err != nil {
		t.Fatalf("list types: %v", err)
	}
	for _, mt := range types {
		if mt.DisplayName == name {
			return mt
		}
	}
	t.Fatalf("type %q not found", name)
	return nil
}

func (e *entryEnv) fileCount(t *testing.T) int {
	t.Helper()
	files, err := os.ReadDir(e.imagesDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("read images dir: %v", err)
	}
	return len(files)
}

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 48, 32)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func (e *entryEnv) ingest(t *testing.T, n int, typeID uuid.UUID) []*model.MealEntry {
	t.Helper()
	images := make([][]byte, n)
	for i := range images {
		images[i] = testImage(t)
	}
	entries, err := e.entries.Ingest(context.Background(), IngestRequest{
		Images: images, MealTypeID: typeID, LoggedAt: e.now,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return entries
}

func TestIngestCreatesEntriesAssetsAndOneMeal(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")

	entries := e.ingest(t, 3, lunch.ID)
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}

	mealID := entries[0].MealID
	for _, entry := range entries {
		if entry.MealID != mealID {
			t.Fatalf("entries split across meals")
		}
		asset, err := e.store.PhotoAssets().Get(ctx, entry.ID)
		if err != nil {
			t.Fatalf("asset for %s: %v", entry.ID, err)
		}
		if asset.State != model.SyncPending {
			t.Fatalf("asset state = %s, want pending", asset.State)
		}
		if !e.images.FileExists(*asset.FullImageFilename) || !e.images.FileExists(*asset.ThumbnailFilename) {
			t.Fatalf("asset files missing on disk")
		}
	}

	meal, err := e.store.Meals().Get(ctx, mealID)
	if err != nil {
		t.Fatalf("meal: %v", err)
	}
	if !meal.CreatedAt.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("meal day bucket = %v", meal.CreatedAt)
	}

	// a second ingest on the same day lands in the same meal
	more := e.ingest(t, 1, lunch.ID)
	if more[0].MealID != mealID {
		t.Fatalf("same-day ingest created a second meal")
	}
}

func TestIngestOverPhotoLimitWritesNothing(t *testing.T) {
	e := newEntryEnv(t)
	lunch := e.typeNamed(t, "Lunch")

	images := make([][]byte, 9)
	for i := range images {
		images[i] = testImage(t)
	}
	_, err := e.entries.Ingest(context.Background(), IngestRequest{
		Images: images, MealTypeID: lunch.ID, LoggedAt: e.now,
	})
	if !errors.Is(err, ErrCapturePhotoLimit) {
		t.Fatalf("err = %v, want ErrCapturePhotoLimit", err)
	}
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err = %v, want a validation error", err)
	}
	if n := e.fileCount(t); n != 0 {
		t.Fatalf("wrote %d files, want 0", n)
	}
}

func TestIngestEmptySessionRejected(t *testing.T) {
	e := newEntryEnv(t)
	lunch := e.typeNamed(t, "Lunch")

	_, err := e.entries.Ingest(context.Background(), IngestRequest{MealTypeID: lunch.ID, LoggedAt: e.now})
	if !errors.Is(err, ErrEmptyCaptureSession) {
		t.Fatalf("err = %v, want ErrEmptyCaptureSession", err)
	}
}

func TestIngestUnknownMealType(t *testing.T) {
	e := newEntryEnv(t)

	_, err := e.entries.Ingest(context.Background(), IngestRequest{
		Images: [][]byte{testImage(t)}, MealTypeID: uuid.New(), LoggedAt: e.now,
	})
	if !errors.Is(err, ErrMissingMealType) {
		t.Fatalf("err = %v, want ErrMissingMealType", err)
	}
	if n := e.fileCount(t); n != 0 {
		t.Fatalf("wrote %d files, want 0", n)
	}
}

func TestIngestBadImageRollsBackFiles(t *testing.T) {
	e := newEntryEnv(t)
	lunch := e.typeNamed(t, "Lunch")

	// second image is not decodable; files from the first must be removed
	_, err := e.entries.Ingest(context.Background(), IngestRequest{
		Images: [][]byte{testImage(t), []byte("not a jpeg")}, MealTypeID: lunch.ID, LoggedAt: e.now,
	})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if n := e.fileCount(t); n != 0 {
		t.Fatalf("rollback left %d files", n)
	}
}

func TestIngestSetsNotesAndAnalysisStatus(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")

	entries, err := e.entries.Ingest(ctx, IngestRequest{
		Images: [][]byte{testImage(t)}, MealTypeID: lunch.ID, LoggedAt: e.now,
		Notes: "extra cheese", RequestAnalysis: true,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	meal, err := e.store.Meals().Get(ctx, entries[0].MealID)
	if err != nil {
		t.Fatalf("meal: %v", err)
	}
	if meal.UserNotes == nil || *meal.UserNotes != "extra cheese" {
		t.Fatalf("notes = %v", meal.UserNotes)
	}
	if meal.AnalysisStatus != model.AnalysisPending {
		t.Fatalf("analysis status = %s, want pending", meal.AnalysisStatus)
	}
}

func TestDeleteEntryRemovesFilesAndPrunesMeal(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")

	entries := e.ingest(t, 1, lunch.ID)
	entry := entries[0]

	if err := e.entries.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if n := e.fileCount(t); n != 0 {
		t.Fatalf("delete left %d files", n)
	}
	if _, err := e.store.Entries().Get(ctx, entry.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("entry still present: %v", err)
	}
	if _, err := e.store.Meals().Get(ctx, entry.MealID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("empty meal not pruned: %v", err)
	}

	// deleting again is a no-op
	if err := e.entries.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeleteKeepsMealWithRemainingEntries(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")

	entries := e.ingest(t, 2, lunch.ID)
	if err := e.entries.Delete(ctx, entries[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := e.store.Meals().Get(ctx, entries[1].MealID); err != nil {
		t.Fatalf("meal pruned while entries remain: %v", err)
	}
}

func TestUpdateLoggedAtAcrossDayBoundary(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")

	entry := e.ingest(t, 1, lunch.ID)[0]
	originMeal := entry.MealID
	nextDay := e.now.Add(24 * time.Hour)

	// without permission: sentinel, nothing mutated
	err := e.entries.UpdateLoggedAt(ctx, entry.ID, nextDay, false)
	if !errors.Is(err, ErrReassignmentRequired) {
		t.Fatalf("err = %v, want ErrReassignmentRequired", err)
	}
	got, err := e.store.Entries().Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got.MealID != originMeal {
		t.Fatal("entry moved without permission")
	}

	// with permission: entry moves to a meal on the new day, origin pruned
	if err := e.entries.UpdateLoggedAt(ctx, entry.ID, nextDay, true); err != nil {
		t.Fatalf("update logged at: %v", err)
	}
	got, err = e.store.Entries().Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got.MealID == originMeal {
		t.Fatal("entry did not move")
	}
	newMeal, err := e.store.Meals().Get(ctx, got.MealID)
	if err != nil {
		t.Fatalf("new meal: %v", err)
	}
	if !newMeal.CreatedAt.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("new meal day = %v", newMeal.CreatedAt)
	}
	if _, err := e.store.Meals().Get(ctx, originMeal); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("origin meal not pruned: %v", err)
	}
}

func TestUpdateLoggedAtSameDayJustMovesTime(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")

	entry := e.ingest(t, 1, lunch.ID)[0]
	later := e.now.Add(2 * time.Hour)

	if err := e.entries.UpdateLoggedAt(ctx, entry.ID, later, false); err != nil {
		t.Fatalf("update logged at: %v", err)
	}
	got, err := e.store.Entries().Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got.MealID != entry.MealID {
		t.Fatal("same-day edit moved the entry")
	}
	if !got.LoggedAt.Equal(later) {
		t.Fatalf("logged at = %v, want %v", got.LoggedAt, later)
	}
}

func TestReassignMealTypeMovesEntryAndPrunesOrigin(t *testing.T) {
	e := newEntryEnv(t)
	ctx := context.Background()
	lunch := e.typeNamed(t, "Lunch")
	dinner := e.typeNamed(t, "Dinner")

	entry := e.ingest(t, 1, lunch.ID)[0]
	originMeal := entry.MealID

	if err := e.entries.ReassignMealType(ctx, entry.ID, dinner.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	got, err := e.store.Entries().Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	newMeal, err := e.store.Meals().Get(ctx, got.MealID)
	if err != nil {
		t.Fatalf("new meal: %v", err)
	}
	if newMeal.TypeID != dinner.ID {
		t.Fatalf("meal type = %s, want dinner", newMeal.TypeID)
	}
	if _, err := e.store.Meals().Get(ctx, originMeal); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("origin meal not pruned: %v", err)
	}

	// reassigning to the type it already has is a no-op
	if err := e.entries.ReassignMealType(ctx, entry.ID, dinner.ID); err != nil {
		t.Fatalf("no-op reassign: %v", err)
	}
}
