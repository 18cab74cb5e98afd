/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/datastore/memory"
	"github.com/suparena/docstore/datastore/mock"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

func tenantOpts(tenant string) storagemodels.Options {
	return storagemodels.Options{Meta: map[string]any{"tenantId": tenant}}
}

func adminOpts() storagemodels.Options {
	return storagemodels.Options{Meta: map[string]any{storagemodels.IgnoreTenantKey: true}}
}

func newTenantStore(t *testing.T) (*datastore.TenantAware, *memory.Adapter) {
	t.Helper()
	a := memory.New()
	ds, err := datastore.New(datastore.Config{Schema: userSchema(), Adapter: datastore.Fixed(a), Notifier: &mock.Notifier{}})
	require.NoError(t, err)
	return datastore.NewTenantAware(ds, datastore.TenantConfig{}), a
}

func seed(t *testing.T, store *datastore.TenantAware) {
	t.Helper()
	ctx := context.Background()
	_, err := store.InsertMany(ctx, []storagemodels.Document{
		{"id": "a1", "name": "a1", "total": 1},
		{"id": "a2", "name": "a2", "total": 2},
	}, tenantOpts("t1"))
	require.NoError(t, err)
	_, err = store.InsertMany(ctx, []storagemodels.Document{
		{"id": "b1", "name": "b1", "total": 3},
	}, tenantOpts("t2"))
	require.NoError(t, err)
}

func TestTenantRequiresTenant(t *testing.T) {
	ctx := context.Background()
	store, a := newTenantStore(t)

	_, err := store.InsertOne(ctx, storagemodels.Document{"name": "x"}, storagemodels.Options{})
	assert.ErrorIs(t, err, errors.ErrPrecondition)

	_, err = store.FindByID(ctx, "x", storagemodels.Options{})
	assert.True(t, errors.IsPrecondition(err))

	_, err = store.Count(ctx, storagemodels.Filter{}, storagemodels.Options{Meta: map[string]any{"other": 1}})
	assert.True(t, errors.IsPrecondition(err))

	assert.Equal(t, 0, a.Len())
}

func TestTenantStampsDocuments(t *testing.T) {
	ctx := context.Background()
	store, _ := newTenantStore(t)

	doc, err := store.InsertOne(ctx, storagemodels.Document{"name": "x", "tenantId": "spoofed"}, tenantOpts("t1"))
	require.NoError(t, err)
	assert.Equal(t, "t1", doc["tenantId"])

	raw, err := store.Base().FindByID(ctx, doc.ID(), storagemodels.Options{})
	require.NoError(t, err)
	assert.Equal(t, "t1", raw["tenantId"])
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTenantStore(t)
	seed(t, store)
	t1 := tenantOpts("t1")

	doc, err := store.FindByID(ctx, "b1", t1)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = store.FindByID(ctx, "a1", t1)
	require.NoError(t, err)
	assert.Equal(t, "a1", doc.ID())

	docs, err := store.FindByIDs(ctx, []string{"a1", "b1", "a2"}, t1)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.Find(ctx, storagemodels.Filter{"tenantId": "t2"}, t1)
	require.NoError(t, err)
	assert.Len(t, docs, 2, "caller supplied tenant must be overridden")

	one, err := store.FindOne(ctx, storagemodels.Filter{"name": "b1"}, t1)
	require.NoError(t, err)
	assert.Nil(t, one)

	count, err := store.Count(ctx, storagemodels.Filter{}, tenantOpts("t2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTenantMutations(t *testing.T) {
	ctx := context.Background()
	store, a := newTenantStore(t)
	seed(t, store)
	t1 := tenantOpts("t1")

	updated, err := store.UpdateByID(ctx, "b1", map[string]any{"name": "hijack"}, t1)
	require.NoError(t, err)
	assert.Nil(t, updated)

	updated, err = store.UpdateByID(ctx, "a1", map[string]any{"$set": map[string]any{"tenantId": "t2"}, "$inc": map[string]any{"total": 5}}, t1)
	require.NoError(t, err)
	assert.Equal(t, "t1", updated["tenantId"], "tenant cannot be moved by an update")
	assert.Equal(t, 6, updated["total"])

	n, err := store.UpdateMany(ctx, storagemodels.Filter{}, map[string]any{"name": "bulk"}, t1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	b1, err := store.FindByID(ctx, "b1", tenantOpts("t2"))
	require.NoError(t, err)
	assert.Equal(t, "b1", b1["name"])

	id, err := store.DeleteByID(ctx, "b1", t1)
	require.NoError(t, err)
	assert.Empty(t, id)

	ids, err := store.DeleteByIDs(ctx, []string{"a1", "b1"}, t1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)

	n, err = store.DeleteMany(ctx, storagemodels.Filter{}, t1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, a.Len())

	_, err = store.UpdateByID(ctx, "b1", map[string]any{}, tenantOpts("t2"))
	assert.True(t, errors.IsInvalidUpdate(err))
}

func TestTenantBypass(t *testing.T) {
	ctx := context.Background()
	store, _ := newTenantStore(t)
	seed(t, store)

	docs, err := store.Find(ctx, storagemodels.Filter{}, adminOpts())
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	doc, err := store.FindByID(ctx, "b1", adminOpts())
	require.NoError(t, err)
	assert.Equal(t, "b1", doc.ID())

	inserted, err := store.InsertOne(ctx, storagemodels.Document{"name": "global"}, adminOpts())
	require.NoError(t, err)
	assert.NotContains(t, inserted, "tenantId")

	notBypass := storagemodels.Options{Meta: map[string]any{storagemodels.IgnoreTenantKey: "true"}}
	_, err = store.Find(ctx, storagemodels.Filter{}, notBypass)
	assert.True(t, errors.IsPrecondition(err), "only a boolean true bypasses")
}

func TestTenantNeverReachesBaseForForeignIDs(t *testing.T) {
	ctx := context.Background()
	a := mock.New()
	ds, _ := newStore(t, a)
	store := datastore.NewTenantAware(ds, datastore.TenantConfig{})

	a.On("Find", anyArg, testifymock.MatchedBy(func(q *query.Query) bool {
		in, _ := q.Predicate["id"].(map[string]any)
		return q.Filters.Select == "id" && q.Predicate["tenantId"] == "t1" && in != nil
	}), anyArg).Return([]storagemodels.Document{}, nil)

	doc, err := store.FindByID(ctx, "owned-by-t2", tenantOpts("t1"))
	require.NoError(t, err)
	assert.Nil(t, doc)

	a.AssertNotCalled(t, "FindByID", anyArg, "owned-by-t2", anyArg)
	a.AssertNumberOfCalls(t, "Find", 1)
}

func TestTenantBypassSkipsOwnership(t *testing.T) {
	ctx := context.Background()
	a := mock.New()
	ds, _ := newStore(t, a)
	store := datastore.NewTenantAware(ds, datastore.TenantConfig{})

	a.On("FindByID", anyArg, "x", anyArg).Return(storagemodels.Document{"id": "x"}, nil)

	doc, err := store.FindByID(ctx, "x", adminOpts())
	require.NoError(t, err)
	assert.Equal(t, "x", doc.ID())
	a.AssertNotCalled(t, "Find", anyArg, anyArg, anyArg)
}

func TestTenantCustomIdentifier(t *testing.T) {
	ctx := context.Background()
	a := memory.New()
	ds, err := datastore.New(datastore.Config{Schema: userSchema(), Adapter: datastore.Fixed(a), Notifier: &mock.Notifier{}})
	require.NoError(t, err)
	store := datastore.NewTenantAware(ds, datastore.TenantConfig{Identifier: "org"})
	assert.Equal(t, "org", store.Identifier())

	doc, err := store.InsertOne(ctx, storagemodels.Document{"name": "x"}, storagemodels.Options{Meta: map[string]any{"org": "acme"}})
	require.NoError(t, err)
	assert.Equal(t, "acme", doc["org"])

	_, err = store.InsertOne(ctx, storagemodels.Document{"name": "x"}, tenantOpts("t1"))
	assert.True(t, errors.IsPrecondition(err))
}

func TestTenantRejectsEmptyUpdatesBeforeScoping(t *testing.T) {
	ctx := context.Background()
	a := mock.New()
	n := &mock.Notifier{}
	ds, err := datastore.New(datastore.Config{Schema: userSchema(), Adapter: datastore.Fixed(a), Notifier: n})
	require.NoError(t, err)
	store := datastore.NewTenantAware(ds, datastore.TenantConfig{})
	t1 := tenantOpts("t1")

	for _, update := range []map[string]any{
		{},
		{"$set": map[string]any{}},
		{"$bogus": 1},
		{"$set": map[string]any{}, "$inc": map[string]any{}},
	} {
		_, err := store.UpdateByID(ctx, "a1", update, t1)
		assert.True(t, errors.IsInvalidUpdate(err), "UpdateByID %v: %v", update, err)

		_, err = store.UpdateMany(ctx, storagemodels.Filter{}, update, t1)
		assert.True(t, errors.IsInvalidUpdate(err), "UpdateMany %v: %v", update, err)
	}

	assert.Empty(t, a.Calls)
	assert.Empty(t, n.Events())
}
