/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

// Tenant ids end up in file names, table names and database names.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// tenantPool opens one adapter per tenant on first use and keeps it for the
// lifetime of the pool.
type tenantPool struct {
	ctx        context.Context
	entity     string
	identifier string
	cfg        config.AdapterConfig
	open       registry.DriverFunc
	logger     *slog.Logger

	mu       sync.Mutex
	adapters map[string]datastore.Adapter
}

func newTenantPool(ctx context.Context, entity, identifier string, cfg config.AdapterConfig, open registry.DriverFunc, logger *slog.Logger) *tenantPool {
	return &tenantPool{
		ctx:        context.WithoutCancel(ctx),
		entity:     entity,
		identifier: identifier,
		cfg:        cfg,
		open:       open,
		logger:     logger,
		adapters:   make(map[string]datastore.Adapter),
	}
}

// Resolve implements datastore.AdapterSource.
func (p *tenantPool) Resolve(opts storagemodels.Options) (datastore.Adapter, error) {
	tenant, err := p.tenant(opts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.adapters[tenant]; ok {
		return a, nil
	}
	if p.adapters == nil {
		return nil, fmt.Errorf("%s adapters for tenant %q: pool is closed", p.entity, tenant)
	}

	a, err := p.open(p.ctx, p.cfg.ForTenant(tenant), p.logger.With("tenant", tenant))
	if err != nil {
		return nil, fmt.Errorf("opening %s adapter for tenant %q: %w", p.entity, tenant, err)
	}
	p.adapters[tenant] = a
	p.logger.Debug("Tenant adapter opened", "tenant", tenant, "driver", p.cfg.Driver)
	return a, nil
}

func (p *tenantPool) tenant(opts storagemodels.Options) (string, error) {
	v, ok := opts.MetaValue(p.identifier)
	if !ok || v == nil {
		return "", errors.NewPreconditionError(fmt.Sprintf("meta.%s is required to select the %s adapter", p.identifier, p.entity))
	}
	tenant := fmt.Sprint(v)
	if !tenantPattern.MatchString(tenant) || strings.Contains(tenant, "..") {
		return "", errors.NewPreconditionError(fmt.Sprintf("meta.%s %q is not a valid tenant id", p.identifier, tenant))
	}
	return tenant, nil
}

// Tenants lists the tenants with an open adapter.
func (p *tenantPool) Tenants() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	tenants := make([]string, 0, len(p.adapters))
	for t := range p.adapters {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return tenants
}

// Close closes every pooled adapter. Later Resolve calls fail.
func (p *tenantPool) Close() error {
	p.mu.Lock()
	adapters := p.adapters
	p.adapters = nil
	p.mu.Unlock()

	var errs []error
	for tenant, a := range adapters {
		c, ok := a.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s adapter for tenant %q: %w", p.entity, tenant, err))
		}
	}
	return stderrors.Join(errs...)
}
