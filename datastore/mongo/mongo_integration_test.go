//go:build integration

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/schema"
	"github.com/suparena/docstore/storagemodels"
)

func setupAdapter(t *testing.T) *Adapter {
	t.Helper()
	uri := os.Getenv("DOCSTORE_MONGO_URI")
	if uri == "" {
		t.Skip("DOCSTORE_MONGO_URI not set")
	}

	ctx := context.Background()
	db := fmt.Sprintf("docstore_it_%d", time.Now().UnixNano())
	a, err := Connect(ctx, uri, db)
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx, schema.MustNew(schema.Definition{Name: "user"})))
	t.Cleanup(func() {
		a.db.Drop(context.Background())
		a.Close()
	})
	return a
}

func TestMongo(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()
	var none storagemodels.Options

	docs, err := a.InsertMany(ctx, []storagemodels.Document{
		{"id": "u1", "name": "Ann", "age": 30, "tags": []any{"admin"}},
		{"id": "u2", "name": "Bob", "age": 20},
		{"name": "Cid", "age": 40},
	}, none)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	_, err = a.InsertMany(ctx, []storagemodels.Document{{"id": "u9"}, {"id": "u1"}}, none)
	assert.True(t, errors.IsAlreadyExists(err))
	gone, err := a.FindByID(ctx, "u9", none)
	require.NoError(t, err)
	assert.Nil(t, gone, "partial insert rolled back")

	found, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"age": map[string]any{"$gte": 25}, "$sort": "-age", "$select": "name"}), none)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Cid", found[0]["name"])
	assert.NotContains(t, found[0], "age")
	assert.NotEmpty(t, found[0].ID())

	admins, err := a.Count(ctx, query.MustParse(storagemodels.Filter{"tags": "admin"}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)

	updated, err := a.UpdateByID(ctx, "u2", storagemodels.Update{Inc: map[string]any{"age": 1}, Set: map[string]any{"address.city": "Perth"}}, none)
	require.NoError(t, err)
	assert.EqualValues(t, 21, updated["age"])
	assert.Equal(t, map[string]any{"city": "Perth"}, updated["address"])

	n, err := a.UpdateMany(ctx, query.MustParse(storagemodels.Filter{"name": map[string]any{"$like": "%n%"}}), storagemodels.Update{Set: map[string]any{"flag": true}}, none)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	byIDs, err := a.FindByIDs(ctx, []string{"u2", "missing", "u1"}, none)
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "u2", byIDs[0].ID())

	deleted, err := a.DeleteMany(ctx, query.MustParse(storagemodels.Filter{"flag": true}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	id, err := a.DeleteByID(ctx, "u2", none)
	require.NoError(t, err)
	assert.Equal(t, "u2", id)
}
