/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore"
	badgerstore "github.com/suparena/docstore/datastore/badger"
	"github.com/suparena/docstore/datastore/ddb"
	"github.com/suparena/docstore/datastore/memory"
	mongostore "github.com/suparena/docstore/datastore/mongo"
	"github.com/suparena/docstore/datastore/sqlite"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

func init() {
	registry.RegisterDriver(config.DriverMemory, openMemory)
	registry.RegisterDriver(config.DriverSQLite, openSQLite)
	registry.RegisterDriver(config.DriverBadger, openBadger)
	registry.RegisterDriver(config.DriverDynamoDB, openDynamoDB)
	registry.RegisterDriver(config.DriverMongo, openMongo)
}

func openMemory(_ context.Context, _ config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error) {
	return memory.New(memory.WithLogger(logger)), nil
}

func openSQLite(_ context.Context, cfg config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	opts := []sqlite.Option{sqlite.WithLogger(logger)}
	if cfg.Table != "" {
		opts = append(opts, sqlite.WithTable(cfg.Table))
	}
	a, err := sqlite.Open(dsn, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openBadger(_ context.Context, cfg config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error) {
	a, err := badgerstore.Open(cfg.DSN, badgerstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openDynamoDB(ctx context.Context, cfg config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error) {
	opts := []ddb.Option{ddb.WithLogger(logger)}
	if cfg.Index != "" {
		gsi, ok := ddb.GetGSIConfig(cfg.Index)
		if !ok {
			return nil, fmt.Errorf("unknown DynamoDB index %q", cfg.Index)
		}
		opts = append(opts, ddb.WithGSI(gsi))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, ddb.WithScanOptions(storagemodels.WithMaxRetries(cfg.MaxRetries)))
	}

	ctx, cancel := withTimeout(ctx, cfg)
	defer cancel()
	a, err := ddb.Open(ctx, ddb.ClientConfig{
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	}, cfg.Table, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openMongo(ctx context.Context, cfg config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error) {
	opts := []mongostore.Option{mongostore.WithLogger(logger)}
	if cfg.Collection != "" {
		opts = append(opts, mongostore.WithCollection(cfg.Collection))
	}

	ctx, cancel := withTimeout(ctx, cfg)
	defer cancel()
	a, err := mongostore.Connect(ctx, cfg.URI, cfg.Database, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func withTimeout(ctx context.Context, cfg config.AdapterConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}
