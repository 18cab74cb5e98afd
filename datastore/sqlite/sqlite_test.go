/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/schema"
	"github.com/suparena/docstore/storagemodels"
)

var none storagemodels.Options

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Init(context.Background(), schema.MustNew(schema.Definition{Name: "order-item"})))
	return a
}

func seed(t *testing.T, a *Adapter) {
	t.Helper()
	_, err := a.InsertMany(context.Background(), []storagemodels.Document{
		{"id": "1", "name": "apple", "qty": 3, "tags": []any{"fruit", "red"}, "address": map[string]any{"city": "Sydney"}, "active": true},
		{"id": "2", "name": "banana", "qty": 10, "tags": []any{"fruit"}, "address": map[string]any{"city": "Perth"}, "active": false},
		{"id": "3", "name": "carrot", "qty": 7, "tags": []any{"veg"}, "active": true},
		{"id": "4", "name": "date", "qty": 1, "note": nil},
	}, none)
	require.NoError(t, err)
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "docs.db")
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	require.NoError(t, a.Init(context.Background(), schema.MustNew(schema.Definition{Name: "user"})))
	assert.Equal(t, "user", a.Table())
}

func TestInitRejectsBadTableName(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "x.db"), WithTable("users; DROP"))
	require.NoError(t, err)
	defer a.Close()

	err = a.Init(context.Background(), schema.MustNew(schema.Definition{Name: "user"}))
	assert.Error(t, err)
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	assert.Equal(t, "order_item", a.Table())

	doc, err := a.InsertOne(ctx, storagemodels.Document{"name": "x", "nested": map[string]any{"n": 1}}, none)
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID())

	got, err := a.FindByID(ctx, doc.ID(), none)
	require.NoError(t, err)
	assert.Equal(t, "x", got["name"])
	assert.Equal(t, map[string]any{"n": float64(1)}, got["nested"])

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": doc.ID()}, none)
	assert.True(t, errors.IsAlreadyExists(err))

	missing, err := a.FindByID(ctx, "missing", none)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertNumericID(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	doc, err := a.InsertOne(ctx, storagemodels.Document{"id": 42, "name": "x"}, none)
	require.NoError(t, err)
	assert.Equal(t, "42", doc.ID())

	got, err := a.FindByID(ctx, "42", none)
	require.NoError(t, err)
	assert.Equal(t, "x", got["name"])

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": map[string]any{"a": 1}}, none)
	assert.True(t, errors.IsValidationError(err))
}

func TestInsertManyRollsBack(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	_, err := a.InsertMany(ctx, []storagemodels.Document{{"id": "1"}, {"id": "1"}}, none)
	assert.True(t, errors.IsAlreadyExists(err))

	n, err := a.Count(ctx, nil, none)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindPredicates(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	seed(t, a)

	tests := []struct {
		name   string
		filter storagemodels.Filter
		want   []string
	}{
		{"all", storagemodels.Filter{}, []string{"1", "2", "3", "4"}},
		{"equality", storagemodels.Filter{"name": "banana"}, []string{"2"}},
		{"number equality", storagemodels.Filter{"qty": 7}, []string{"3"}},
		{"bool", storagemodels.Filter{"active": true}, []string{"1", "3"}},
		{"null", storagemodels.Filter{"note": nil}, []string{"4"}},
		{"nested", storagemodels.Filter{"address.city": "Perth"}, []string{"2"}},
		{"array contains", storagemodels.Filter{"tags": "fruit"}, []string{"1", "2"}},
		{"array equality", storagemodels.Filter{"tags": []any{"veg"}}, []string{"3"}},
		{"id", storagemodels.Filter{"id": "4"}, []string{"4"}},
		{"in", storagemodels.Filter{"id": map[string]any{"$in": []string{"1", "3", "9"}}}, []string{"1", "3"}},
		{"nin", storagemodels.Filter{"name": map[string]any{"$nin": []any{"apple", "date"}}}, []string{"2", "3"}},
		{"range", storagemodels.Filter{"qty": map[string]any{"$gt": 1, "$lte": 7}}, []string{"1", "3"}},
		{"string compare", storagemodels.Filter{"name": map[string]any{"$lt": "c"}}, []string{"1", "2"}},
		{"ne includes missing", storagemodels.Filter{"active": map[string]any{"$ne": true}}, []string{"2", "4"}},
		{"exists", storagemodels.Filter{"address": map[string]any{"$exists": true}}, []string{"1", "2"}},
		{"not exists", storagemodels.Filter{"tags": map[string]any{"$exists": false}}, []string{"4"}},
		{"like", storagemodels.Filter{"name": map[string]any{"$like": "%an%"}}, []string{"2"}},
		{"or", storagemodels.Filter{"$or": []any{map[string]any{"qty": 1}, map[string]any{"name": "apple"}}}, []string{"1", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := a.Find(ctx, query.MustParse(tt.filter), none)
			require.NoError(t, err)
			ids := make([]string, len(docs))
			for i, d := range docs {
				ids[i] = d.ID()
			}
			assert.Equal(t, tt.want, ids)

			n, err := a.Count(ctx, query.MustParse(tt.filter), none)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), n)
		})
	}
}

func TestFindSortPageProject(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	seed(t, a)

	docs, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"$sort": "-qty", "$offset": 1, "$limit": 2, "$select": "name"}), none)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, storagemodels.Document{"id": "3", "name": "carrot"}, docs[0])
	assert.Equal(t, storagemodels.Document{"id": "1", "name": "apple"}, docs[1])

	docs, err = a.Find(ctx, query.MustParse(storagemodels.Filter{"$offset": 3}), none)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "4", docs[0].ID())

	one, err := a.FindOne(ctx, query.MustParse(storagemodels.Filter{"$sort": "name", "active": true}), none)
	require.NoError(t, err)
	assert.Equal(t, "1", one.ID())

	_, err = a.Find(ctx, query.MustParse(storagemodels.Filter{"qty": map[string]any{"$gt": true}}), none)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = a.Find(ctx, query.MustParse(storagemodels.Filter{`bad"field`: 1}), none)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestFindByIDsKeepsRequestOrder(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	seed(t, a)

	docs, err := a.FindByIDs(ctx, []string{"3", "x", "1"}, none)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "3", docs[0].ID())
	assert.Equal(t, "1", docs[1].ID())
}

func TestUpdates(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	seed(t, a)

	doc, err := a.UpdateByID(ctx, "1", storagemodels.Update{
		Set: map[string]any{"address.zip": "2000"},
		Inc: map[string]any{"qty": 2},
	}, none)
	require.NoError(t, err)
	assert.Equal(t, float64(5), doc["qty"])
	assert.Equal(t, map[string]any{"city": "Sydney", "zip": "2000"}, doc["address"])

	missing, err := a.UpdateByID(ctx, "nope", storagemodels.Update{Set: map[string]any{"a": 1}}, none)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = a.UpdateByID(ctx, "1", storagemodels.Update{Inc: map[string]any{"name": 1}}, none)
	assert.True(t, errors.IsInvalidUpdate(err))

	n, err := a.UpdateMany(ctx, query.MustParse(storagemodels.Filter{"tags": "fruit"}), storagemodels.Update{Set: map[string]any{"checked": true}}, none)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = a.Count(ctx, query.MustParse(storagemodels.Filter{"checked": true}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeletes(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	seed(t, a)

	id, err := a.DeleteByID(ctx, "1", none)
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	id, err = a.DeleteByID(ctx, "1", none)
	require.NoError(t, err)
	assert.Empty(t, id)

	ids, err := a.DeleteByIDs(ctx, []string{"3", "1", "2"}, none)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, ids)

	n, err := a.DeleteMany(ctx, query.MustParse(storagemodels.Filter{"qty": 1}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = a.Count(ctx, nil, none)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCallerTransaction(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	tx, err := a.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	opts := storagemodels.Options{Tx: tx}

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": "t1"}, opts)
	require.NoError(t, err)
	_, err = a.InsertMany(ctx, []storagemodels.Document{{"id": "t2"}}, opts)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := a.Count(ctx, nil, none)
	require.NoError(t, err)
	assert.Zero(t, n)
}
