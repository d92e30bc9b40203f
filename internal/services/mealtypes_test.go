package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/igor-kupczynski/foodbuddy/internal/model"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
	"github.com/igor-kupczynski/foodbuddy/internal/store/sqlite"
)

func newTypeService(t *testing.T) (*MealTypeService, store.Store) {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st := sqlite.New(db)
	return NewMealTypeService(st, WithLocation(time.UTC)), st
}

func TestBootstrapDefaultTypesIsIdempotent(t *testing.T) {
	svc, _ := newTypeService(t)
	ctx := context.Background()

	if err := svc.BootstrapDefaultTypes(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := svc.BootstrapDefaultTypes(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	types, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(types) != len(DefaultTypeNames) {
		t.Fatalf("got %d types, want %d", len(types), len(DefaultTypeNames))
	}
	for _, mt := range types {
		if !mt.IsSystem {
			t.Fatalf("default type %q not marked system", mt.DisplayName)
		}
	}
}

func TestCreateCustomTypeRejectsDuplicates(t *testing.T) {
	svc, _ := newTypeService(t)
	ctx := context.Background()
	if err := svc.BootstrapDefaultTypes(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// uniqueness is case- and whitespace-insensitive
	_, err := svc.CreateCustomType(ctx, "  breakfast ")
	if !errors.Is(err, ErrDuplicateTypeName) {
		t.Fatalf("err = %v, want ErrDuplicateTypeName", err)
	}
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("err = %v, want a conflict error", err)
	}

	_, err = svc.CreateCustomType(ctx, "   ")
	if !errors.Is(err, ErrInvalidTypeName) {
		t.Fatalf("err = %v, want ErrInvalidTypeName", err)
	}
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err = %v, want a validation error", err)
	}

	created, err := svc.CreateCustomType(ctx, "Second Dinner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.IsSystem {
		t.Fatal("custom type marked system")
	}
}

func TestRenameEnforcesUniqueness(t *testing.T) {
	svc, _ := newTypeService(t)
	ctx := context.Background()
	if err := svc.BootstrapDefaultTypes(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	custom, err := svc.CreateCustomType(ctx, "Midnight Snack")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Rename(ctx, custom.ID, "Lunch"); !errors.Is(err, ErrDuplicateTypeName) {
		t.Fatalf("err = %v, want ErrDuplicateTypeName", err)
	}
	// renaming to its own name is allowed and a no-op
	if err := svc.Rename(ctx, custom.ID, "midnight snack"); err != nil {
		t.Fatalf("self rename: %v", err)
	}
	if err := svc.Rename(ctx, custom.ID, "Late Snack"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	got, err := svc.Get(ctx, custom.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != "Late Snack" {
		t.Fatalf("display name = %q", got.DisplayName)
	}
}

func TestSuggestForTimeOfDay(t *testing.T) {
	svc, _ := newTypeService(t)
	ctx := context.Background()
	if err := svc.BootstrapDefaultTypes(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	cases := []struct {
		hour int
		want string
	}{
		{7, "Breakfast"},
		{10, "Breakfast"},
		{11, "Lunch"},
		{14, "Lunch"},
		{15, "Afternoon Snack"},
		{17, "Afternoon Snack"},
		{18, "Dinner"},
		{23, "Dinner"},
	}
	for _, c := range cases {
		at := time.Date(2025, 6, 1, c.hour, 0, 0, 0, time.UTC)
		got, err := svc.SuggestForTime(ctx, at)
		if err != nil {
			t.Fatalf("suggest at %d: %v", c.hour, err)
		}
		if got.DisplayName != c.want {
			t.Errorf("hour %d: got %q, want %q", c.hour, got.DisplayName, c.want)
		}
	}
}

func TestSuggestFallsBackToSnack(t *testing.T) {
	svc, _ := newTypeService(t)
	ctx := context.Background()

	// only two custom types, neither matching the suggestion table
	if _, err := svc.CreateCustomType(ctx, "Snack"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateCustomType(ctx, "Workout Fuel"); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.SuggestForTime(ctx, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if got.DisplayName != "Snack" {
		t.Fatalf("fallback = %q, want Snack", got.DisplayName)
	}
}
