/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/internal/flat"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/storagemodels"
)

// EntityTypeAttribute is injected into every item so entities can share a table.
const EntityTypeAttribute = "EntityType"

// maxTransactItems is the DynamoDB limit of items per TransactWriteItems call.
const maxTransactItems = 100

// Option configures an Adapter.
type Option func(*Adapter)

// WithIndexMap overrides the index map registered for the entity.
func WithIndexMap(indexMap map[string]string) Option {
	return func(a *Adapter) {
		a.indexMap = indexMap
	}
}

// WithGSI makes global secondary indexes available to queries, tried in order
// after the table itself.
func WithGSI(indexes ...GSIConfig) Option {
	return func(a *Adapter) {
		a.indexes = append(a.indexes, indexes...)
	}
}

// WithScanOptions tunes page size and retry behaviour.
func WithScanOptions(opts ...storagemodels.ScanOption) Option {
	return func(a *Adapter) {
		for _, opt := range opts {
			opt(&a.scan)
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter implements datastore.Adapter on a single DynamoDB table.
type Adapter struct {
	client   API
	table    string
	kind     string
	indexMap map[string]string
	indexes  []GSIConfig
	scan     storagemodels.ScanOptions
	logger   *slog.Logger
}

var _ datastore.Adapter = (*Adapter)(nil)

// New creates an adapter storing documents in table.
func New(client API, table string, opts ...Option) *Adapter {
	a := &Adapter{
		client: client,
		table:  table,
		scan:   storagemodels.DefaultScanOptions(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default().With("component", "dynamodb")
	}
	return a
}

// Open creates a client from cfg and an adapter on table.
func Open(ctx context.Context, cfg ClientConfig, table string, opts ...Option) (*Adapter, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
	}
	a := New(client, table, opts...)
	a.logger.Info("DynamoDB client initialized", "table", table, "region", cfg.Region)
	return a, nil
}

// Table returns the table name.
func (a *Adapter) Table() string {
	return a.table
}

// IndexMap returns the key templates in use.
func (a *Adapter) IndexMap() map[string]string {
	return a.indexMap
}

// Init resolves the index map of the entity.
func (a *Adapter) Init(ctx context.Context, s datastore.Schema) error {
	a.kind = s.Name()
	if a.indexMap == nil {
		a.indexMap = registry.IndexMapFor(a.kind)
	}
	if a.indexMap[registry.PartitionKey] == "" || a.indexMap[registry.SortKey] == "" {
		return fmt.Errorf("index map of %s must define %s and %s", a.kind, registry.PartitionKey, registry.SortKey)
	}
	return nil
}

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// macros returns the document fields a template references.
func macros(template string) []string {
	var fields []string
	for _, m := range macroPattern.FindAllStringSubmatch(template, -1) {
		fields = append(fields, m[1])
	}
	return fields
}

// expand replaces each {field} of template with the document value. It reports
// false when a referenced field is missing or not a scalar.
func expand(template string, doc map[string]any) (string, bool) {
	ok := true
	res := macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
		v, present := flat.Get(doc, strings.Trim(macro, "{}"))
		s, scalar := keyString(v)
		if !present || !scalar {
			ok = false
			return ""
		}
		return s
	})
	return res, ok
}

func keyString(v any) (string, bool) {
	switch tv := normalize(v).(type) {
	case string:
		return tv, true
	case bool:
		return strconv.FormatBool(tv), true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(tv), true
	}
	return "", false
}

// keyAttributes expands every template of the index map against doc. Secondary
// attributes whose fields are missing are left out, keeping the item out of that index.
func (a *Adapter) keyAttributes(doc map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(a.indexMap))
	for attr, template := range a.indexMap {
		v, ok := expand(template, doc)
		if !ok || v == "" {
			if attr == registry.PartitionKey || attr == registry.SortKey {
				return nil, errors.NewFieldValidationError(attr, fmt.Sprintf("cannot expand %q from document", template))
			}
			continue
		}
		out[attr] = v
	}
	return out, nil
}

// keyForID returns the primary key of id when PK and SK derive from the id alone.
func (a *Adapter) keyForID(id string) (map[string]types.AttributeValue, bool) {
	doc := map[string]any{storagemodels.IDField: id}
	key := make(map[string]types.AttributeValue, 2)
	for _, attr := range []string{registry.PartitionKey, registry.SortKey} {
		template := a.indexMap[attr]
		for _, f := range macros(template) {
			if f != storagemodels.IDField {
				return nil, false
			}
		}
		v, _ := expand(template, doc)
		key[attr] = &types.AttributeValueMemberS{Value: v}
	}
	return key, true
}

func primaryKey(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		registry.PartitionKey: item[registry.PartitionKey],
		registry.SortKey:      item[registry.SortKey],
	}
}

func (a *Adapter) toItem(doc storagemodels.Document) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(normalize(map[string]any(doc)))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	keys, err := a.keyAttributes(doc)
	if err != nil {
		return nil, err
	}
	for k, v := range keys {
		item[k] = &types.AttributeValueMemberS{Value: v}
	}
	item[EntityTypeAttribute] = &types.AttributeValueMemberS{Value: a.kind}
	return item, nil
}

// ownItem reports whether item belongs to this entity.
func (a *Adapter) ownItem(item map[string]types.AttributeValue) bool {
	et, ok := item[EntityTypeAttribute].(*types.AttributeValueMemberS)
	return ok && et.Value == a.kind
}

func (a *Adapter) fromItem(item map[string]types.AttributeValue) (storagemodels.Document, error) {
	if len(item) == 0 {
		return nil, nil
	}
	fields := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if _, isKey := a.indexMap[k]; isKey || k == EntityTypeAttribute {
			continue
		}
		fields[k] = v
	}
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(fields, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return storagemodels.Document(doc), nil
}

// Cursor returns an opaque $startCursor/$endCursor value positioned at doc.
func (a *Adapter) Cursor(doc storagemodels.Document) (string, error) {
	keys, err := a.keyAttributes(doc)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(cursor string) (map[string]string, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, errors.NewFieldValidationError(storagemodels.StartCursorKey, "malformed cursor")
	}
	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, errors.NewFieldValidationError(storagemodels.StartCursorKey, "malformed cursor")
	}
	return keys, nil
}

func conditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return stderrors.As(err, &cfe)
}

func (a *Adapter) prepare(doc storagemodels.Document) (storagemodels.Document, map[string]types.AttributeValue, error) {
	out := doc.Clone()
	if out == nil {
		out = storagemodels.Document{}
	}
	if err := datastore.AssignID(out, uuid.NewString); err != nil {
		return nil, nil, err
	}
	item, err := a.toItem(out)
	if err != nil {
		return nil, nil, err
	}
	return out, item, nil
}

func (a *Adapter) notExists() (*string, map[string]string) {
	return aws.String("attribute_not_exists(#pk)"), map[string]string{"#pk": registry.PartitionKey}
}

func (a *Adapter) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	out, item, err := a.prepare(doc)
	if err != nil {
		return nil, err
	}
	cond, names := a.notExists()
	_, err = a.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                &a.table,
		Item:                     item,
		ConditionExpression:      cond,
		ExpressionAttributeNames: names,
	})
	if err != nil {
		if conditionFailed(err) {
			return nil, errors.NewAlreadyExistsError(a.kind, out.ID())
		}
		return nil, fmt.Errorf("PutItem failed: %w", err)
	}
	return out, nil
}

// InsertMany writes documents in transactions of up to 100 items; each
// transaction is atomic.
func (a *Adapter) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	out := make([]storagemodels.Document, 0, len(docs))
	for start := 0; start < len(docs); start += maxTransactItems {
		end := min(start+maxTransactItems, len(docs))
		chunk := make([]storagemodels.Document, 0, end-start)
		writes := make([]types.TransactWriteItem, 0, end-start)
		for _, d := range docs[start:end] {
			prepared, item, err := a.prepare(d)
			if err != nil {
				return nil, err
			}
			cond, names := a.notExists()
			chunk = append(chunk, prepared)
			writes = append(writes, types.TransactWriteItem{Put: &types.Put{
				TableName:                &a.table,
				Item:                     item,
				ConditionExpression:      cond,
				ExpressionAttributeNames: names,
			}})
		}

		_, err := a.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: writes})
		if err != nil {
			var tce *types.TransactionCanceledException
			if stderrors.As(err, &tce) {
				for i, r := range tce.CancellationReasons {
					if aws.ToString(r.Code) == "ConditionalCheckFailed" && i < len(chunk) {
						return nil, errors.NewAlreadyExistsError(a.kind, chunk[i].ID())
					}
				}
			}
			return nil, fmt.Errorf("TransactWriteItems failed: %w", err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// findItem locates the stored item of id, by key when possible and by query otherwise.
func (a *Adapter) findItem(ctx context.Context, id string) (map[string]types.AttributeValue, error) {
	if key, ok := a.keyForID(id); ok {
		out, err := a.client.GetItem(ctx, &sdk.GetItemInput{
			TableName:      &a.table,
			Key:            key,
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("GetItem error: %w", err)
		}
		if len(out.Item) == 0 || !a.ownItem(out.Item) {
			return nil, nil
		}
		return out.Item, nil
	}

	var found map[string]types.AttributeValue
	err := a.walk(ctx, storagemodels.Filter{storagemodels.IDField: id}, "", "", func(item map[string]types.AttributeValue, doc storagemodels.Document) bool {
		if doc.ID() == id {
			found = item
			return false
		}
		return true
	})
	return found, err
}

func (a *Adapter) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	item, err := a.findItem(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	return a.fromItem(item)
}

func (a *Adapter) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	out := make([]storagemodels.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := a.FindByID(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

// UpdateByID uses a native UpdateItem when the update is flat and leaves the
// keys untouched, and a conditional read-modify-write otherwise.
func (a *Adapter) UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error) {
	if key, ok := a.keyForID(id); ok && !a.touchesKeys(u) {
		e := newExpression()
		expr, native, err := e.update(u)
		if err != nil {
			return nil, err
		}
		if native {
			return a.updateItem(ctx, key, e, expr)
		}
	}

	item, err := a.findItem(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	doc, err := a.fromItem(item)
	if err != nil {
		return nil, err
	}
	if err := datastore.ApplyUpdate(doc, u); err != nil {
		return nil, err
	}
	next, err := a.toItem(doc)
	if err != nil {
		return nil, err
	}
	found, err := a.replace(ctx, item, next)
	if err != nil || !found {
		return nil, err
	}
	return doc, nil
}

// touchesKeys reports whether u changes a field any key template references.
func (a *Adapter) touchesKeys(u storagemodels.Update) bool {
	for _, template := range a.indexMap {
		for _, f := range macros(template) {
			for _, m := range []map[string]any{u.Set, u.Inc} {
				for p := range m {
					if p == f || strings.HasPrefix(p, f+".") || strings.HasPrefix(f, p+".") {
						return true
					}
				}
			}
		}
	}
	return false
}

func (a *Adapter) updateItem(ctx context.Context, key map[string]types.AttributeValue, e *expression, expr string) (storagemodels.Document, error) {
	cond := fmt.Sprintf("attribute_exists(%s)", e.name(registry.PartitionKey))
	out, err := a.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 &a.table,
		Key:                       key,
		UpdateExpression:          &expr,
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  e.attributeNames(),
		ExpressionAttributeValues: e.attributeValues(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if conditionFailed(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("UpdateItem failed: %w", err)
	}
	return a.fromItem(out.Attributes)
}

// replace overwrites prev with next, moving the item when its primary key
// changed. It reports false when prev no longer exists.
func (a *Adapter) replace(ctx context.Context, prev, next map[string]types.AttributeValue) (bool, error) {
	exists := aws.String("attribute_exists(#pk)")
	names := map[string]string{"#pk": registry.PartitionKey}

	if attrString(prev[registry.PartitionKey]) == attrString(next[registry.PartitionKey]) &&
		attrString(prev[registry.SortKey]) == attrString(next[registry.SortKey]) {
		_, err := a.client.PutItem(ctx, &sdk.PutItemInput{
			TableName:                &a.table,
			Item:                     next,
			ConditionExpression:      exists,
			ExpressionAttributeNames: names,
		})
		if conditionFailed(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("PutItem failed: %w", err)
		}
		return true, nil
	}

	notExists, _ := a.notExists()
	_, err := a.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{
		{Delete: &types.Delete{TableName: &a.table, Key: primaryKey(prev), ConditionExpression: exists, ExpressionAttributeNames: names}},
		{Put: &types.Put{TableName: &a.table, Item: next, ConditionExpression: notExists, ExpressionAttributeNames: names}},
	}})
	if err == nil {
		return true, nil
	}
	var tce *types.TransactionCanceledException
	if !stderrors.As(err, &tce) {
		return false, fmt.Errorf("TransactWriteItems failed: %w", err)
	}
	reasons := tce.CancellationReasons
	if len(reasons) > 1 && aws.ToString(reasons[0].Code) != "ConditionalCheckFailed" &&
		aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
		return false, errors.NewConditionFailedError("updateById", "target key already in use")
	}
	return false, nil
}

func attrString(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (a *Adapter) UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error) {
	return 0, errors.NewNotImplementedError("dynamodb", "updateMany")
}

func (a *Adapter) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	key, ok := a.keyForID(id)
	if !ok {
		item, err := a.findItem(ctx, id)
		if err != nil || item == nil {
			return "", err
		}
		key = primaryKey(item)
	}

	cond := aws.String("#et = :kind")
	out, err := a.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName:                 &a.table,
		Key:                       key,
		ConditionExpression:       cond,
		ExpressionAttributeNames:  map[string]string{"#et": EntityTypeAttribute},
		ExpressionAttributeValues: map[string]types.AttributeValue{":kind": &types.AttributeValueMemberS{Value: a.kind}},
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		if conditionFailed(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to delete item in DynamoDB: %w", err)
	}
	if len(out.Attributes) == 0 {
		return "", nil
	}
	return id, nil
}

// DeleteByIDs deletes item by item; DynamoDB offers no conditional batch
// delete. When a delete fails midway the ids already removed are returned
// together with the error.
func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		got, err := a.DeleteByID(ctx, id, opts)
		if err != nil {
			return deleted, err
		}
		if got != "" {
			deleted = append(deleted, got)
		}
	}
	return deleted, nil
}

func (a *Adapter) DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	return 0, errors.NewNotImplementedError("dynamodb", "deleteMany")
}
