/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory table understanding the expressions the adapter
// renders for keys, conditions and updates. Filter expressions are ignored.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	calls    map[string]int
	throttle int

	// deleteErr fails every DeleteItem once deletesLeft reaches zero.
	deleteErr   error
	deletesLeft int
}

var _ API = (*fakeDynamo)(nil)

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		items: make(map[string]map[string]types.AttributeValue),
		calls: make(map[string]int),
	}
}

func (f *fakeDynamo) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeDynamo) Item(pk, sk string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[pk+"|"+sk]
}

func itemKey(item map[string]types.AttributeValue) string {
	return attrString(item["PK"]) + "|" + attrString(item["SK"])
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) check(cond *string, names map[string]string, values, existing map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	c := *cond
	switch {
	case strings.HasPrefix(c, "attribute_not_exists"):
		return existing == nil
	case strings.HasPrefix(c, "attribute_exists"):
		return existing != nil
	}
	parts := strings.SplitN(c, " = ", 2)
	return existing != nil && len(parts) == 2 && attrString(existing[names[parts[0]]]) == attrString(values[parts[1]])
}

func conditionalFailure() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetItem"]++
	return &sdk.GetItemOutput{Item: copyItem(f.items[itemKey(in.Key)])}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutItem"]++
	key := itemKey(in.Item)
	if !f.check(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, f.items[key]) {
		return nil, conditionalFailure()
	}
	f.items[key] = copyItem(in.Item)
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateItem"]++
	key := itemKey(in.Key)
	existing := f.items[key]
	if !f.check(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, existing) {
		return nil, conditionalFailure()
	}
	item := copyItem(existing)
	names, values := in.ExpressionAttributeNames, in.ExpressionAttributeValues

	expr := aws.ToString(in.UpdateExpression)
	setPart, addPart := expr, ""
	if i := strings.Index(expr, "ADD "); i >= 0 {
		setPart, addPart = strings.TrimSpace(expr[:i]), expr[i+len("ADD "):]
	}
	if strings.HasPrefix(setPart, "SET ") {
		for _, clause := range strings.Split(strings.TrimPrefix(setPart, "SET "), ", ") {
			lhs, rhs, _ := strings.Cut(clause, " = ")
			item[names[lhs]] = values[rhs]
		}
	}
	if addPart != "" {
		for _, clause := range strings.Split(addPart, ", ") {
			lhs, rhs, _ := strings.Cut(clause, " ")
			var sum float64
			if n, ok := item[names[lhs]].(*types.AttributeValueMemberN); ok {
				sum, _ = strconv.ParseFloat(n.Value, 64)
			}
			delta, _ := strconv.ParseFloat(values[rhs].(*types.AttributeValueMemberN).Value, 64)
			item[names[lhs]] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(sum+delta, 'f', -1, 64)}
		}
	}
	f.items[key] = item
	return &sdk.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteItem"]++
	if f.deleteErr != nil {
		if f.deletesLeft == 0 {
			return nil, f.deleteErr
		}
		f.deletesLeft--
	}
	key := itemKey(in.Key)
	existing := f.items[key]
	if !f.check(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, existing) {
		return nil, conditionalFailure()
	}
	delete(f.items, key)
	return &sdk.DeleteItemOutput{Attributes: existing}, nil
}

func (f *fakeDynamo) sorted() []map[string]types.AttributeValue {
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = copyItem(f.items[k])
	}
	return out
}

func (f *fakeDynamo) page(items []map[string]types.AttributeValue, start map[string]types.AttributeValue, limit *int32) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	if len(start) > 0 {
		for i, item := range items {
			if itemKey(item) == itemKey(start) {
				items = items[i+1:]
				break
			}
		}
	}
	if limit == nil || int(*limit) >= len(items) {
		return items, nil
	}
	items = items[:*limit]
	last := items[len(items)-1]
	return items, map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
}

func (f *fakeDynamo) throttled() error {
	if f.throttle > 0 {
		f.throttle--
		return &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	}
	return nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Query"]++
	if err := f.throttled(); err != nil {
		return nil, err
	}
	lhs, rhs, _ := strings.Cut(aws.ToString(in.KeyConditionExpression), " = ")
	attr, want := in.ExpressionAttributeNames[lhs], attrString(in.ExpressionAttributeValues[rhs])

	var matched []map[string]types.AttributeValue
	for _, item := range f.sorted() {
		if attrString(item[attr]) == want {
			matched = append(matched, item)
		}
	}
	items, last := f.page(matched, in.ExclusiveStartKey, in.Limit)
	return &sdk.QueryOutput{Items: items, LastEvaluatedKey: last}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Scan"]++
	if err := f.throttled(); err != nil {
		return nil, err
	}
	items, last := f.page(f.sorted(), in.ExclusiveStartKey, in.Limit)
	return &sdk.ScanOutput{Items: items, LastEvaluatedKey: last}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, _ ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["TransactWriteItems"]++

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, w := range in.TransactItems {
		ok := true
		switch {
		case w.Put != nil:
			ok = f.check(w.Put.ConditionExpression, w.Put.ExpressionAttributeNames, w.Put.ExpressionAttributeValues, f.items[itemKey(w.Put.Item)])
		case w.Delete != nil:
			ok = f.check(w.Delete.ConditionExpression, w.Delete.ExpressionAttributeNames, w.Delete.ExpressionAttributeValues, f.items[itemKey(w.Delete.Key)])
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, w := range in.TransactItems {
		switch {
		case w.Put != nil:
			f.items[itemKey(w.Put.Item)] = copyItem(w.Put.Item)
		case w.Delete != nil:
			delete(f.items, itemKey(w.Delete.Key))
		}
	}
	return &sdk.TransactWriteItemsOutput{}, nil
}
