package cmd

import (
	"context"
	"fmt"

	"site-controller/core/config"
	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/loader"
	"site-controller/core/logger"
	"site-controller/core/storage"
	"site-controller/core/tracing"

	"site-controller/feature/attestation"
	"site-controller/feature/ibpartition"
	"site-controller/feature/networksegment"
	"site-controller/feature/powershelf"
	"site-controller/feature/rack"
	"site-controller/feature/switches"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *gorm.DB
	tracing  *tracing.Provider
	features *loader.Manager
}

// setup loads the configuration and connects the database, object storage
// and tracing exporter. Features are registered but not yet migrated.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logg = logg.With(zap.String("site", cfg.Server.Site))

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logg.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	services := &controller.Services{DB: db, Bucket: cfg.Storage.Bucket}
	if cfg.Controller.IsEnabled(attestation.Kind) {
		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx, store, cfg.Storage.Bucket); err != nil {
			logg.Warn("Evidence bucket unavailable", zap.Error(err))
		}
		services.Storage = store
	}

	deps := controller.Dependencies{
		Config:   cfg.Controller,
		Services: services,
		Logger:   logg,
		Tracer:   tp.Tracer(),
	}
	return &app{
		cfg:      cfg,
		logger:   logg,
		db:       db,
		tracing:  tp,
		features: buildFeatures(cfg, deps),
	}, nil
}

func buildFeatures(cfg *config.Config, deps controller.Dependencies) *loader.Manager {
	mgr := loader.NewManager()
	mgr.Register(rack.NewFeature(deps))
	mgr.Register(switches.NewFeature(deps))
	mgr.Register(powershelf.NewFeature(deps))
	mgr.Register(networksegment.NewFeature(deps))
	mgr.Register(ibpartition.NewFeature(deps))
	mgr.Register(attestation.NewFeature(deps, cfg.Attestation.Handler()))
	return mgr
}

// prepare migrates the tables of all enabled features and returns their
// controllers.
func (a *app) prepare(ctx context.Context) (*controller.Registry, error) {
	if err := a.features.MigrateAll(ctx, a.db); err != nil {
		return nil, err
	}
	if err := a.features.VerifyAll(a.db); err != nil {
		return nil, err
	}
	return a.features.Registry()
}

func (a *app) close(ctx context.Context) {
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("Failed to flush traces", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}
