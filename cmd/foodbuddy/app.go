package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/igor-kupczynski/foodbuddy/internal/cloudstore"
	"github.com/igor-kupczynski/foodbuddy/internal/config"
	"github.com/igor-kupczynski/foodbuddy/internal/imageproc"
	"github.com/igor-kupczynski/foodbuddy/internal/imagestore"
	"github.com/igor-kupczynski/foodbuddy/internal/photosync"
	"github.com/igor-kupczynski/foodbuddy/internal/recognition"
	"github.com/igor-kupczynski/foodbuddy/internal/scheduler"
	"github.com/igor-kupczynski/foodbuddy/internal/secret"
	"github.com/igor-kupczynski/foodbuddy/internal/services"
	"github.com/igor-kupczynski/foodbuddy/internal/store"
	"github.com/igor-kupczynski/foodbuddy/internal/store/sqlite"
)

// app wires every component from the configuration. Commands build one,
// use what they need, and Close it.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	db     *sql.DB
	store  store.Store
	images *imagestore.Store
	keys   secret.Store

	mealTypes *services.MealTypeService
	meals     *services.MealService
	entries   *services.MealEntryService
	analysis  *services.AnalysisCoordinator
	models    *services.AnalysisModelStore
	engine    *photosync.Engine
	sched     *scheduler.Scheduler
}

func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := sqlite.New(db)

	images := imagestore.New(cfg.ImagesDir)
	proc := imageproc.NewProcessor()
	keys := secret.NewFileStore(cfg.APIKeyPath)

	var cloud cloudstore.Store
	if cfg.CloudSyncEnabled {
		s3store, err := cloudstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			db.Close()
			return nil, err
		}
		cloud = s3store
	}

	var mistralOpts []recognition.MistralOption
	if cfg.MistralBaseURL != "" {
		mistralOpts = append(mistralOpts, recognition.WithBaseURL(cfg.MistralBaseURL))
	}
	if cfg.MistralModel != "" {
		mistralOpts = append(mistralOpts, recognition.WithModel(cfg.MistralModel))
	}
	describer := recognition.NewMistralClient(keys, mistralOpts...)

	mealTypes := services.NewMealTypeService(st, services.WithLocation(loc))
	meals := services.NewMealService(st, services.WithLocation(loc))
	entries := services.NewMealEntryService(st, images, proc, meals, log)
	models := services.NewAnalysisModelStore(st)
	analysis := services.NewAnalysisCoordinator(models, images, describer, keys, log)
	engine := photosync.NewEngine(st, images, proc, cloud, log)
	sched := scheduler.New(engine, analysis, cfg.SyncInterval(), log)

	if err := mealTypes.BootstrapDefaultTypes(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap meal types: %w", err)
	}

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		store:     st,
		images:    images,
		keys:      keys,
		mealTypes: mealTypes,
		meals:     meals,
		entries:   entries,
		analysis:  analysis,
		models:    models,
		engine:    engine,
		sched:     sched,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close database")
	}
}
