/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

type page struct {
	items []map[string]types.AttributeValue
	last  map[string]types.AttributeValue
}

// visitFunc receives each item of the entity; returning false stops the walk.
type visitFunc func(item map[string]types.AttributeValue, doc storagemodels.Document) bool

// plan picks the first index, the table before any GSI, whose partition key
// template is fully bound by equality predicates of pred.
func (a *Adapter) plan(pred storagemodels.Filter) (GSIConfig, string, bool) {
	for _, idx := range append([]GSIConfig{primaryIndex}, a.indexes...) {
		template, ok := a.indexMap[idx.PartitionKeyName]
		if !ok {
			continue
		}
		bound := make(map[string]any)
		for _, f := range macros(template) {
			v, ok := pred[f]
			if !ok || !isScalar(v) {
				bound = nil
				break
			}
			bound[f] = v
		}
		if bound == nil {
			continue
		}
		if pk, ok := expand(template, bound); ok && pk != "" {
			return idx, pk, true
		}
	}
	return primaryIndex, "", false
}

// walk visits the items of the entity matching the pushed-down part of pred,
// page by page, starting after startCursor and stopping before endCursor.
func (a *Adapter) walk(ctx context.Context, pred storagemodels.Filter, startCursor, endCursor string, visit visitFunc) error {
	e := newExpression()
	idx, pk, useQuery := a.plan(pred)

	var keyCond string
	if useQuery {
		ph, err := e.value(pk)
		if err != nil {
			return err
		}
		keyCond = fmt.Sprintf("%s = %s", e.name(idx.PartitionKeyName), ph)
	}

	kind, err := e.value(a.kind)
	if err != nil {
		return err
	}
	filter := fmt.Sprintf("%s = %s", e.name(EntityTypeAttribute), kind)
	pushed, err := e.filter(pred)
	if err != nil {
		return err
	}
	if pushed != "" {
		filter += " AND " + pushed
	}

	var start map[string]types.AttributeValue
	if startCursor != "" {
		keys, err := decodeCursor(startCursor)
		if err != nil {
			return err
		}
		start = cursorKey(keys, idx)
	}
	var end map[string]string
	if endCursor != "" {
		if end, err = decodeCursor(endCursor); err != nil {
			return err
		}
	}

	var indexName *string
	if idx.IndexName != "" {
		indexName = aws.String(idx.IndexName)
	}
	a.logger.Debug("Walking table", "table", a.table, "index", idx.IndexName, "query", useQuery, "filter", filter)

	for {
		p, err := retry(ctx, a.scan, func() (page, error) {
			if useQuery {
				out, err := a.client.Query(ctx, &sdk.QueryInput{
					TableName:                 &a.table,
					IndexName:                 indexName,
					KeyConditionExpression:    &keyCond,
					FilterExpression:          &filter,
					ExpressionAttributeNames:  e.attributeNames(),
					ExpressionAttributeValues: e.attributeValues(),
					ExclusiveStartKey:         start,
					Limit:                     aws.Int32(a.scan.PageSize),
				})
				if err != nil {
					return page{}, err
				}
				return page{items: out.Items, last: out.LastEvaluatedKey}, nil
			}
			out, err := a.client.Scan(ctx, &sdk.ScanInput{
				TableName:                 &a.table,
				FilterExpression:          &filter,
				ExpressionAttributeNames:  e.attributeNames(),
				ExpressionAttributeValues: e.attributeValues(),
				ExclusiveStartKey:         start,
				Limit:                     aws.Int32(a.scan.PageSize),
			})
			if err != nil {
				return page{}, err
			}
			return page{items: out.Items, last: out.LastEvaluatedKey}, nil
		})
		if err != nil {
			return fmt.Errorf("query error: %w", err)
		}

		for _, item := range p.items {
			if end != nil && atKey(item, end) {
				return nil
			}
			if !a.ownItem(item) {
				continue
			}
			doc, err := a.fromItem(item)
			if err != nil {
				return err
			}
			if !visit(item, doc) {
				return nil
			}
		}
		if len(p.last) == 0 {
			return nil
		}
		start = p.last
	}
}

func cursorKey(keys map[string]string, idx GSIConfig) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue)
	for _, attr := range idx.keyAttributes() {
		if v, ok := keys[attr]; ok {
			out[attr] = &types.AttributeValueMemberS{Value: v}
		}
	}
	return out
}

func atKey(item map[string]types.AttributeValue, keys map[string]string) bool {
	return attrString(item[registry.PartitionKey]) == keys[registry.PartitionKey] &&
		attrString(item[registry.SortKey]) == keys[registry.SortKey]
}

// matching walks the entity and collects up to want documents satisfying q;
// want < 0 collects all of them.
func (a *Adapter) matching(ctx context.Context, q *query.Query, want int) ([]storagemodels.Document, error) {
	if q == nil {
		q = query.All()
	}
	var (
		docs     []storagemodels.Document
		matchErr error
	)
	err := a.walk(ctx, q.Predicate, q.Filters.StartCursor, q.Filters.EndCursor, func(_ map[string]types.AttributeValue, doc storagemodels.Document) bool {
		ok, err := q.Matches(doc)
		if err != nil {
			matchErr = err
			return false
		}
		if ok {
			docs = append(docs, doc)
		}
		return want < 0 || len(docs) < want
	})
	if err != nil {
		return nil, err
	}
	return docs, matchErr
}

func (a *Adapter) FindOne(ctx context.Context, q *query.Query, opts storagemodels.Options) (storagemodels.Document, error) {
	one := 1
	limited := query.All()
	if q != nil {
		*limited = *q
	}
	limited.Filters.Limit = &one

	docs, err := a.Find(ctx, limited, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Find stops reading pages early when the query is unsorted and limited.
// Cursors position the walk in the key order of the chosen index.
func (a *Adapter) Find(ctx context.Context, q *query.Query, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if q == nil {
		q = query.All()
	}
	want := -1
	if f := q.Filters; f.Limit != nil && f.Sort == "" {
		want = *f.Limit
		if f.Offset != nil {
			want += *f.Offset
		}
		if want == 0 {
			return []storagemodels.Document{}, nil
		}
	}

	docs, err := a.matching(ctx, q, want)
	if err != nil {
		return nil, err
	}
	return query.Apply(docs, q)
}

// Count ignores $limit and $offset.
func (a *Adapter) Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	docs, err := a.matching(ctx, q, -1)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// retry runs fn, retrying throttling and transient server errors with linear backoff.
func retry[T any](ctx context.Context, opts storagemodels.ScanOptions, fn func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return zero, err
		}

		// Don't sleep after last attempt
		if attempt < opts.MaxRetries {
			backoff := time.Duration(attempt+1) * opts.RetryBackoff
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return zero, fmt.Errorf("failed after %d retries: %w", opts.MaxRetries, lastErr)
}

// isRetryableError determines if a DynamoDB error is retryable
func isRetryableError(err error) bool {
	var (
		pte *types.ProvisionedThroughputExceededException
		rle *types.RequestLimitExceeded
		ise *types.InternalServerError
	)
	if stderrors.As(err, &pte) || stderrors.As(err, &rle) || stderrors.As(err, &ise) {
		return true
	}

	var retryable interface{ IsRetryable() bool }
	if stderrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}
