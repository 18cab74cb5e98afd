/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/schema"
	"github.com/suparena/docstore/storagemodels"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	n := 0
	a := New(WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}))
	require.NoError(t, a.Init(context.Background(), schema.MustNew(schema.Definition{Name: "item"})))
	return a
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	var none storagemodels.Options

	doc, err := a.InsertOne(ctx, storagemodels.Document{"name": "a"}, none)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", doc.ID())

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": "gen-1"}, none)
	assert.True(t, errors.IsAlreadyExists(err))

	found, err := a.FindByID(ctx, "gen-1", none)
	require.NoError(t, err)
	assert.Equal(t, "a", found["name"])

	found["name"] = "mutated"
	again, _ := a.FindByID(ctx, "gen-1", none)
	assert.Equal(t, "a", again["name"], "returned documents must be copies")

	missing, err := a.FindByID(ctx, "nope", none)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertKeepsCallerIDs(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	var none storagemodels.Options

	doc, err := a.InsertOne(ctx, storagemodels.Document{"id": 42, "name": "a"}, none)
	require.NoError(t, err)
	assert.Equal(t, "42", doc.ID())

	found, err := a.FindByID(ctx, "42", none)
	require.NoError(t, err)
	assert.Equal(t, "a", found["name"])

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": true}, none)
	assert.True(t, errors.IsValidationError(err))

	_, err = a.InsertMany(ctx, []storagemodels.Document{{"name": "b"}, {"id": 1.5}}, none)
	assert.True(t, errors.IsValidationError(err))
	n, err := a.Count(ctx, query.MustParse(storagemodels.Filter{}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a rejected batch stores nothing")
}

func TestInsertManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	var none storagemodels.Options

	_, err := a.InsertMany(ctx, []storagemodels.Document{{"id": "1"}, {"id": "1"}}, none)
	assert.True(t, errors.IsAlreadyExists(err))
	assert.Equal(t, 0, a.Len())

	docs, err := a.InsertMany(ctx, []storagemodels.Document{{"id": "1"}, {"name": "x"}}, none)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "gen-1", docs[1].ID())
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	var none storagemodels.Options

	_, err := a.InsertMany(ctx, []storagemodels.Document{
		{"id": "1", "kind": "x", "total": 1, "address": map[string]any{"city": "A"}},
		{"id": "2", "kind": "x", "total": 5},
		{"id": "3", "kind": "y", "total": 9},
	}, none)
	require.NoError(t, err)

	updated, err := a.UpdateByID(ctx, "1", storagemodels.Update{
		Set: map[string]any{"address.city": "B", "id": "ignored"},
		Inc: map[string]any{"total": 2},
	}, none)
	require.NoError(t, err)
	assert.Equal(t, 3, updated["total"])
	assert.Equal(t, map[string]any{"city": "B"}, updated["address"])
	assert.Equal(t, "1", updated.ID())

	missing, err := a.UpdateByID(ctx, "nope", storagemodels.Update{Set: map[string]any{"a": 1}}, none)
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := a.UpdateMany(ctx, query.MustParse(storagemodels.Filter{"kind": "x"}), storagemodels.Update{Set: map[string]any{"done": true}}, none)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := a.Count(ctx, query.MustParse(storagemodels.Filter{"done": true, "$limit": 1}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = a.UpdateByID(ctx, "1", storagemodels.Update{Inc: map[string]any{"kind": 1}}, none)
	assert.True(t, errors.IsInvalidUpdate(err))
}

func TestFindQueries(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	var none storagemodels.Options

	for i := 1; i <= 5; i++ {
		_, err := a.InsertOne(ctx, storagemodels.Document{"id": fmt.Sprint(i), "n": i, "even": i%2 == 0}, none)
		require.NoError(t, err)
	}

	docs, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"even": false, "$sort": "-n", "$select": "n"}), none)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, storagemodels.Document{"id": "5", "n": 5}, docs[0])

	one, err := a.FindOne(ctx, query.MustParse(storagemodels.Filter{"n": map[string]any{"$gt": 3}}), none)
	require.NoError(t, err)
	assert.Equal(t, "4", one.ID())

	none1, err := a.FindOne(ctx, query.MustParse(storagemodels.Filter{"n": 99}), none)
	require.NoError(t, err)
	assert.Nil(t, none1)

	byIDs, err := a.FindByIDs(ctx, []string{"3", "missing", "1"}, none)
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "3", byIDs[0].ID())

	all, err := a.Find(ctx, nil, none)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	var none storagemodels.Options

	_, err := a.InsertMany(ctx, []storagemodels.Document{{"id": "1", "k": "a"}, {"id": "2", "k": "a"}, {"id": "3", "k": "b"}, {"id": "4", "k": "b"}}, none)
	require.NoError(t, err)

	id, err := a.DeleteByID(ctx, "1", none)
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	id, err = a.DeleteByID(ctx, "1", none)
	require.NoError(t, err)
	assert.Empty(t, id)

	ids, err := a.DeleteByIDs(ctx, []string{"2", "9"}, none)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)

	n, err := a.DeleteMany(ctx, query.MustParse(storagemodels.Filter{"k": "b"}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, a.Len())
}
