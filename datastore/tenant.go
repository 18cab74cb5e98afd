/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// DefaultTenantIdentifier is the document field and Options.Meta key holding the tenant.
const DefaultTenantIdentifier = "tenantId"

// TenantConfig configures a TenantAware store.
type TenantConfig struct {
	// Identifier defaults to DefaultTenantIdentifier.
	Identifier string
	Logger     *slog.Logger
}

// TenantAware confines every operation of a Store to the tenant named in
// opts.Meta. Documents are stamped with the tenant on insert and update,
// filters are narrowed to it, and id-based operations only reach ids the
// tenant owns. Ids owned by another tenant behave as missing.
//
// Callers with opts.Meta["ignoreTenantId"] == true bypass all of this.
type TenantAware struct {
	base       Store
	identifier string
	logger     *slog.Logger
}

var _ Store = (*TenantAware)(nil)

// NewTenantAware wraps base.
func NewTenantAware(base Store, cfg TenantConfig) *TenantAware {
	identifier := cfg.Identifier
	if identifier == "" {
		identifier = DefaultTenantIdentifier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantAware{
		base:       base,
		identifier: identifier,
		logger:     logger.With("component", "tenant", "entity", base.Name()),
	}
}

// Name returns the entity type name.
func (t *TenantAware) Name() string {
	return t.base.Name()
}

// Identifier returns the tenant field name.
func (t *TenantAware) Identifier() string {
	return t.identifier
}

// Base returns the wrapped store.
func (t *TenantAware) Base() Store {
	return t.base
}

func (t *TenantAware) bypass(opts storagemodels.Options) bool {
	v, ok := opts.MetaValue(storagemodels.IgnoreTenantKey)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// AssertTenant returns the tenant from opts, or a *errors.PreconditionError
// when it is missing. Bypassing callers get a nil tenant and no error.
func (t *TenantAware) AssertTenant(opts storagemodels.Options) (any, error) {
	if t.bypass(opts) {
		return nil, nil
	}
	tenant, ok := opts.MetaValue(t.identifier)
	if !ok || tenant == nil {
		return nil, errors.NewPreconditionError(fmt.Sprintf("meta.%s is missing in options", t.identifier))
	}
	return tenant, nil
}

func (t *TenantAware) stamp(doc storagemodels.Document, tenant any) storagemodels.Document {
	out := make(storagemodels.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[t.identifier] = tenant
	return out
}

func (t *TenantAware) scope(filter storagemodels.Filter, tenant any) storagemodels.Filter {
	out := filter.Clone()
	out[t.identifier] = tenant
	return out
}

// scopeUpdate re-asserts the tenant as an implicit $set entry, which takes
// precedence over a caller supplied $set value.
func (t *TenantAware) scopeUpdate(update map[string]any, tenant any) map[string]any {
	out := make(map[string]any, len(update)+1)
	for k, v := range update {
		out[k] = v
	}
	out[t.identifier] = tenant
	return out
}

// OwnedIDs returns the subset of ids whose documents belong to the tenant in
// opts, in one read of the wrapped store.
func (t *TenantAware) OwnedIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	filter := storagemodels.Filter{
		storagemodels.SelectKey: storagemodels.IDField,
		storagemodels.IDField:   map[string]any{query.OpIn: ids},
	}
	if !t.bypass(opts) {
		filter[t.identifier] = tenant
	}
	docs, err := t.base.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	owned := make([]string, 0, len(docs))
	for _, d := range docs {
		if id := d.ID(); id != "" {
			owned = append(owned, id)
		}
	}
	if len(owned) < len(ids) {
		t.logger.Debug("ids outside tenant filtered", "requested", len(ids), "owned", len(owned))
	}
	return owned, nil
}

func (t *TenantAware) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.InsertOne(ctx, doc, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return nil, err
	}
	return t.base.InsertOne(ctx, t.stamp(doc, tenant), opts)
}

func (t *TenantAware) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.InsertMany(ctx, docs, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return nil, err
	}
	stamped := make([]storagemodels.Document, len(docs))
	for i, d := range docs {
		stamped[i] = t.stamp(d, tenant)
	}
	return t.base.InsertMany(ctx, stamped, opts)
}

func (t *TenantAware) UpdateByID(ctx context.Context, id string, update map[string]any, opts storagemodels.Options) (storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.UpdateByID(ctx, id, update, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return nil, err
	}
	if _, err := ConvertUpdate(update); err != nil {
		return nil, err
	}
	owned, err := t.OwnedIDs(ctx, []string{id}, opts)
	if err != nil || len(owned) == 0 {
		return nil, err
	}
	return t.base.UpdateByID(ctx, owned[0], t.scopeUpdate(update, tenant), opts)
}

func (t *TenantAware) UpdateMany(ctx context.Context, filter storagemodels.Filter, update map[string]any, opts storagemodels.Options) (int64, error) {
	if t.bypass(opts) {
		return t.base.UpdateMany(ctx, filter, update, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return 0, err
	}
	if _, err := ConvertUpdate(update); err != nil {
		return 0, err
	}
	return t.base.UpdateMany(ctx, t.scope(filter, tenant), t.scopeUpdate(update, tenant), opts)
}

func (t *TenantAware) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	if t.bypass(opts) {
		return t.base.DeleteByID(ctx, id, opts)
	}
	owned, err := t.OwnedIDs(ctx, []string{id}, opts)
	if err != nil || len(owned) == 0 {
		return "", err
	}
	return t.base.DeleteByID(ctx, owned[0], opts)
}

func (t *TenantAware) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	if t.bypass(opts) {
		return t.base.DeleteByIDs(ctx, ids, opts)
	}
	owned, err := t.OwnedIDs(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []string{}, nil
	}
	return t.base.DeleteByIDs(ctx, owned, opts)
}

func (t *TenantAware) DeleteMany(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (int64, error) {
	if t.bypass(opts) {
		return t.base.DeleteMany(ctx, filter, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return 0, err
	}
	return t.base.DeleteMany(ctx, t.scope(filter, tenant), opts)
}

func (t *TenantAware) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.FindByID(ctx, id, opts)
	}
	owned, err := t.OwnedIDs(ctx, []string{id}, opts)
	if err != nil || len(owned) == 0 {
		return nil, err
	}
	return t.base.FindByID(ctx, owned[0], opts)
}

func (t *TenantAware) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.FindByIDs(ctx, ids, opts)
	}
	owned, err := t.OwnedIDs(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []storagemodels.Document{}, nil
	}
	return t.base.FindByIDs(ctx, owned, opts)
}

func (t *TenantAware) FindOne(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.FindOne(ctx, filter, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return nil, err
	}
	return t.base.FindOne(ctx, t.scope(filter, tenant), opts)
}

func (t *TenantAware) Find(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if t.bypass(opts) {
		return t.base.Find(ctx, filter, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return nil, err
	}
	return t.base.Find(ctx, t.scope(filter, tenant), opts)
}

func (t *TenantAware) Count(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (int64, error) {
	if t.bypass(opts) {
		return t.base.Count(ctx, filter, opts)
	}
	tenant, err := t.AssertTenant(opts)
	if err != nil {
		return 0, err
	}
	return t.base.Count(ctx, t.scope(filter, tenant), opts)
}
