/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/schema"
	"github.com/suparena/docstore/storagemodels"
)

var none storagemodels.Options

func newTestAdapter(t *testing.T, client API, kind string, opts ...Option) *Adapter {
	t.Helper()
	a := New(client, "docstore-test", opts...)
	require.NoError(t, a.Init(context.Background(), schema.MustNew(schema.Definition{Name: kind})))
	return a
}

func TestInitRequiresPrimaryKey(t *testing.T) {
	a := New(newFakeDynamo(), "t", WithIndexMap(map[string]string{"PK": "X#{id}"}))
	err := a.Init(context.Background(), schema.MustNew(schema.Definition{Name: "x"}))
	assert.ErrorContains(t, err, "must define PK and SK")
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "user")

	doc, err := a.InsertOne(ctx, storagemodels.Document{"id": "u1", "name": "Ann", "score": 1}, none)
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID())

	item := fake.Item("USER#u1", "USER#u1")
	require.NotNil(t, item)
	assert.Equal(t, "user", attrString(item[EntityTypeAttribute]))

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": "u1"}, none)
	assert.True(t, errors.IsAlreadyExists(err))

	got, err := a.FindByID(ctx, "u1", none)
	require.NoError(t, err)
	assert.Equal(t, storagemodels.Document{"id": "u1", "name": "Ann", "score": float64(1)}, got)

	updated, err := a.UpdateByID(ctx, "u1", storagemodels.Update{
		Set: map[string]any{"name": "Anne"},
		Inc: map[string]any{"score": 2},
	}, none)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls("UpdateItem"))
	assert.Equal(t, "Anne", updated["name"])
	assert.Equal(t, float64(3), updated["score"])

	nested, err := a.UpdateByID(ctx, "u1", storagemodels.Update{Set: map[string]any{"address.city": "Sydney"}}, none)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls("UpdateItem"), "nested paths are read-modify-write")
	assert.Equal(t, map[string]any{"city": "Sydney"}, nested["address"])
	assert.Equal(t, float64(3), nested["score"])

	missing, err := a.UpdateByID(ctx, "nope", storagemodels.Update{Set: map[string]any{"name": "x"}}, none)
	require.NoError(t, err)
	assert.Nil(t, missing)

	id, err := a.DeleteByID(ctx, "u1", none)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	id, err = a.DeleteByID(ctx, "u1", none)
	require.NoError(t, err)
	assert.Empty(t, id)

	got, err = a.FindByID(ctx, "u1", none)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGeneratesIDs(t *testing.T) {
	a := newTestAdapter(t, newFakeDynamo(), "note")
	doc, err := a.InsertOne(context.Background(), storagemodels.Document{"text": "hi"}, none)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID())
}

func TestInsertNumericID(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, newFakeDynamo(), "note")

	doc, err := a.InsertOne(ctx, storagemodels.Document{"id": 42, "text": "hi"}, none)
	require.NoError(t, err)
	assert.Equal(t, "42", doc.ID())

	got, err := a.FindByID(ctx, "42", none)
	require.NoError(t, err)
	assert.Equal(t, "hi", got["text"])

	_, err = a.InsertOne(ctx, storagemodels.Document{"id": 4.2}, none)
	assert.True(t, errors.IsValidationError(err))
}

func TestInsertManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "item")

	_, err := a.InsertOne(ctx, storagemodels.Document{"id": "2"}, none)
	require.NoError(t, err)

	_, err = a.InsertMany(ctx, []storagemodels.Document{{"id": "1"}, {"id": "2"}}, none)
	var exists *errors.AlreadyExistsError
	require.True(t, stderrors.As(err, &exists))
	assert.Equal(t, "2", exists.Key)

	got, err := a.FindByID(ctx, "1", none)
	require.NoError(t, err)
	assert.Nil(t, got)

	docs, err := a.InsertMany(ctx, []storagemodels.Document{{"id": "3"}, {"id": "4"}}, none)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func seed(t *testing.T, a *Adapter, n int) {
	t.Helper()
	docs := make([]storagemodels.Document, n)
	for i := range docs {
		docs[i] = storagemodels.Document{"id": string(rune('a' + i)), "rank": i, "even": i%2 == 0}
	}
	_, err := a.InsertMany(context.Background(), docs, none)
	require.NoError(t, err)
}

func TestFindUsesQueryWhenKeyIsBound(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "item")
	seed(t, a, 3)

	docs, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"id": "b"}), none)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, fake.Calls("Query"))
	assert.Equal(t, 0, fake.Calls("Scan"))

	docs, err = a.Find(ctx, query.MustParse(storagemodels.Filter{"even": true, "$sort": "-rank"}), none)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID())
	assert.Equal(t, "a", docs[1].ID())
	assert.Equal(t, 1, fake.Calls("Scan"))
}

func TestFindOnGSI(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "order",
		WithIndexMap(map[string]string{
			"PK":  "ORDER#{id}",
			"SK":  "ORDER#{id}",
			"PK1": "CUSTOMER#{customerId}",
			"SK1": "ORDER#{id}",
		}),
		WithGSI(DefaultGSIConfigs["GSI1"]),
	)

	_, err := a.InsertMany(ctx, []storagemodels.Document{
		{"id": "o1", "customerId": "c1", "total": 10},
		{"id": "o2", "customerId": "c2", "total": 20},
		{"id": "o3", "customerId": "c1", "total": 30},
		{"id": "o4", "total": 40},
	}, none)
	require.NoError(t, err)
	assert.NotContains(t, fake.Item("ORDER#o4", "ORDER#o4"), "PK1", "sparse index attribute")

	docs, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"customerId": "c1", "total": map[string]any{"$gt": 15}}), none)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "o3", docs[0].ID())
	assert.Equal(t, 1, fake.Calls("Query"))
	assert.NotContains(t, docs[0], "PK1")
}

func TestKeysFromOtherFields(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "player", WithIndexMap(map[string]string{
		"PK": "CLUB#{clubId}",
		"SK": "PLAYER#{id}",
	}))

	_, err := a.InsertOne(ctx, storagemodels.Document{"id": "p1", "clubId": "north", "name": "Lee"}, none)
	require.NoError(t, err)

	got, err := a.FindByID(ctx, "p1", none)
	require.NoError(t, err)
	assert.Equal(t, "Lee", got["name"])
	assert.Equal(t, 0, fake.Calls("GetItem"))

	moved, err := a.UpdateByID(ctx, "p1", storagemodels.Update{Set: map[string]any{"clubId": "south"}}, none)
	require.NoError(t, err)
	assert.Equal(t, "south", moved["clubId"])
	assert.Nil(t, fake.Item("CLUB#north", "PLAYER#p1"))
	assert.NotNil(t, fake.Item("CLUB#south", "PLAYER#p1"))

	_, err = a.InsertOne(ctx, storagemodels.Document{"name": "no club"}, none)
	assert.True(t, errors.IsValidationError(err))

	id, err := a.DeleteByID(ctx, "p1", none)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
}

func TestEntitiesShareTable(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	users := newTestAdapter(t, fake, "user")
	teams := newTestAdapter(t, fake, "team")

	seed(t, users, 3)
	seed(t, teams, 2)

	n, err := users.Count(ctx, nil, none)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = teams.Count(ctx, query.MustParse(storagemodels.Filter{"even": true}), none)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := teams.FindByID(ctx, "c", none)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPagingAndCursors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "item", WithScanOptions(storagemodels.WithPageSize(2)))
	seed(t, a, 5)

	all, err := a.Find(ctx, nil, none)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, 3, fake.Calls("Scan"))

	first, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"$limit": 2}), none)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 4, fake.Calls("Scan"), "an unsorted limited query stops after the first page")

	cursor, err := a.Cursor(first[1])
	require.NoError(t, err)
	next, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"$startCursor": cursor, "$limit": 2}), none)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "c", next[0].ID())
	assert.Equal(t, "d", next[1].ID())

	end, err := a.Cursor(storagemodels.Document{"id": "e"})
	require.NoError(t, err)
	bounded, err := a.Find(ctx, query.MustParse(storagemodels.Filter{"$startCursor": cursor, "$endCursor": end}), none)
	require.NoError(t, err)
	assert.Len(t, bounded, 2)

	_, err = a.Find(ctx, query.MustParse(storagemodels.Filter{"$startCursor": "%%%"}), none)
	assert.True(t, errors.IsValidationError(err))
}

func TestRetriesThrottling(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "item", WithScanOptions(
		storagemodels.WithMaxRetries(3),
		storagemodels.WithRetryBackoff(time.Millisecond),
	))
	seed(t, a, 2)

	fake.throttle = 2
	n, err := a.Count(ctx, nil, none)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 3, fake.Calls("Scan"))

	fake.throttle = 10
	_, err = a.Count(ctx, nil, none)
	var pte *types.ProvisionedThroughputExceededException
	assert.True(t, stderrors.As(err, &pte))
}

func TestFindByIDsAndDeleteByIDs(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, newFakeDynamo(), "item")
	seed(t, a, 3)

	docs, err := a.FindByIDs(ctx, []string{"c", "x", "a"}, none)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID())
	assert.Equal(t, "a", docs[1].ID())

	ids, err := a.DeleteByIDs(ctx, []string{"a", "x", "b"}, none)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	one, err := a.FindOne(ctx, nil, none)
	require.NoError(t, err)
	assert.Equal(t, "c", one.ID())
}

func TestDeleteByIDsReportsPartialProgress(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	a := newTestAdapter(t, fake, "item")
	seed(t, a, 3)

	fake.deleteErr = stderrors.New("connection reset")
	fake.deletesLeft = 1
	ids, err := a.DeleteByIDs(ctx, []string{"a", "b", "c"}, none)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"a"}, ids)

	fake.deleteErr = nil
	left, err := a.FindByIDs(ctx, []string{"a", "b", "c"}, none)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "b", left[0].ID())
}

func TestBulkMutationsAreNotImplemented(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, newFakeDynamo(), "item")

	_, err := a.UpdateMany(ctx, query.All(), storagemodels.Update{Set: map[string]any{"a": 1}}, none)
	assert.True(t, errors.IsNotImplemented(err))

	_, err = a.DeleteMany(ctx, query.All(), none)
	assert.True(t, errors.IsNotImplemented(err))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(fmt.Errorf("wrapped: %w", &types.RequestLimitExceeded{})))
	assert.True(t, isRetryableError(&types.InternalServerError{}))
	assert.False(t, isRetryableError(&types.ResourceNotFoundException{}))
	assert.False(t, isRetryableError(stderrors.New("boom")))
}
