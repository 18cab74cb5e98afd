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
	"github.com/suparena/docstore/processor"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/schema"
)

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	notifier    datastore.Notifier
	logger      *slog.Logger
	definitions map[string]schema.Definition
}

// WithNotifier shares one Notifier between every store. By default each store
// gets its own Emitter.
func WithNotifier(n datastore.Notifier) OpenOption {
	return func(o *openOptions) {
		o.notifier = n
	}
}

// WithLogger overrides the logger built from the logging configuration.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithDefinition supplies the schema of an entity in code. It takes
// precedence over schema files and the OpenAPI document.
func WithDefinition(def schema.Definition) OpenOption {
	return func(o *openOptions) {
		o.definitions[def.Name] = def
	}
}

// Open builds a Manager holding one store per configured entity. On error
// everything opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, opts ...OpenOption) (*Manager, error) {
	o := &openOptions{definitions: make(map[string]schema.Definition)}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = config.NewLogger(cfg.Logging)
	}

	var shared map[string]schema.Definition
	if cfg.OpenAPI != "" {
		defs, err := processor.LoadFile(cfg.Resolve(cfg.OpenAPI))
		if err != nil {
			return nil, err
		}
		shared = make(map[string]schema.Definition, len(defs))
		for _, def := range defs {
			shared[def.Name] = def
		}
	}

	m := NewManager()
	for _, e := range cfg.Entities {
		store, err := openEntity(ctx, cfg, e, o, shared, m, logger)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		if err := m.Register(e.Name, store); err != nil {
			_ = m.Close()
			return nil, err
		}
		logger.Info("Entity store opened", "entity", e.Name, "driver", e.Adapter.Driver,
			"tenant", e.Tenant.Enabled, "per_tenant", e.Adapter.PerTenant)
	}
	return m, nil
}

func openEntity(ctx context.Context, cfg *config.Config, e config.EntityConfig, o *openOptions,
	shared map[string]schema.Definition, m *Manager, logger *slog.Logger) (datastore.Store, error) {
	def, err := definitionFor(cfg, e, o, shared)
	if err != nil {
		return nil, err
	}
	s, err := schema.New(def)
	if err != nil {
		return nil, err
	}

	open, err := registry.GetDriver(e.Adapter.Driver)
	if err != nil {
		return nil, err
	}

	adapterCfg := e.Adapter
	if (adapterCfg.Driver == config.DriverSQLite || adapterCfg.Driver == config.DriverBadger) &&
		adapterCfg.DSN != ":memory:" {
		adapterCfg.DSN = cfg.Resolve(adapterCfg.DSN)
	}
	adapterLogger := logger.With("entity", e.Name)

	var source datastore.AdapterSource
	if adapterCfg.PerTenant {
		pool := newTenantPool(ctx, e.Name, e.Tenant.Identifier, adapterCfg, open, adapterLogger)
		m.track(pool)
		source = pool
	} else {
		a, err := open(ctx, adapterCfg, adapterLogger)
		if err != nil {
			return nil, err
		}
		m.track(a)
		source = datastore.Fixed(a)
	}

	ds, err := datastore.New(datastore.Config{
		Schema:   s,
		Adapter:  source,
		Notifier: o.notifier,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if !e.Tenant.Enabled {
		return ds, nil
	}
	return datastore.NewTenantAware(ds, datastore.TenantConfig{
		Identifier: e.Tenant.Identifier,
		Logger:     logger,
	}), nil
}

// definitionFor picks, in order: a WithDefinition schema, the entity's schema
// file, the OpenAPI document, or a permissive schema.
func definitionFor(cfg *config.Config, e config.EntityConfig, o *openOptions, shared map[string]schema.Definition) (schema.Definition, error) {
	if def, ok := o.definitions[e.Name]; ok {
		return def, nil
	}
	if e.Schema != "" {
		def, err := schema.LoadDefinitionFile(cfg.SchemaPath(e))
		if err != nil {
			return schema.Definition{}, err
		}
		def.Name = e.Name
		return def, nil
	}
	if def, ok := shared[e.Name]; ok {
		return def, nil
	}
	return schema.Definition{Name: e.Name}, nil
}
