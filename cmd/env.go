package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trendwatch/internal/dataset"
	"github.com/sells-group/trendwatch/internal/model"
	"github.com/sells-group/trendwatch/internal/store"
)

// initStore opens the configured run-ledger backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Ledger.Driver {
	case "sqlite":
		path := cfg.Ledger.Path
		if path == "" {
			path = "trendwatch.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Ledger.DatabaseURL, cfg.Ledger.Pool)
	default:
		return nil, eris.Errorf("unsupported ledger driver: %s", cfg.Ledger.Driver)
	}
}

// initFileStore builds the dataset file store from config.
func initFileStore() *dataset.FileStore {
	return dataset.NewFileStore(cfg.Data.Dir, cfg.Data.Stem)
}

// loadEntities reads and validates the tracked-entities file.
func loadEntities(path string) ([]model.Entity, error) {
	if path == "" {
		path = cfg.Entities.File
	}
	entities, err := model.LoadEntitiesFile(path)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateEntities(entities); err != nil {
		return nil, err
	}
	return entities, nil
}
