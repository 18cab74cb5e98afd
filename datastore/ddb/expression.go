/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/docstore/internal/flat"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// maxPushdownList bounds the $in lists rendered into a filter expression.
const maxPushdownList = 25

// expression accumulates attribute name and value placeholders shared by the
// key condition, filter, condition and update expressions of one request.
type expression struct {
	names  map[string]string
	nameOf map[string]string
	values map[string]types.AttributeValue
}

func newExpression() *expression {
	return &expression{
		names:  make(map[string]string),
		nameOf: make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// name returns the placeholder path for a dotted document path.
func (e *expression) name(path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		ph, ok := e.nameOf[p]
		if !ok {
			ph = fmt.Sprintf("#n%d", len(e.names))
			e.names[ph] = p
			e.nameOf[p] = ph
		}
		parts[i] = ph
	}
	return strings.Join(parts, ".")
}

func (e *expression) value(v any) (string, error) {
	av, err := attributevalue.Marshal(normalize(v))
	if err != nil {
		return "", fmt.Errorf("failed to marshal expression value: %w", err)
	}
	ph := fmt.Sprintf(":v%d", len(e.values))
	e.values[ph] = av
	return ph, nil
}

func (e *expression) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) attributeValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

// filter renders the part of pred DynamoDB can evaluate. The result may match
// more items than pred does; callers re-check every returned item.
func (e *expression) filter(pred storagemodels.Filter) (string, error) {
	keys := make([]string, 0, len(pred))
	for k := range pred {
		if !strings.HasPrefix(k, "$") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var clauses []string
	for _, key := range keys {
		cond := pred[key]
		ops, isOps := query.Operators(cond)
		if !isOps {
			c, err := e.equals(key, cond)
			if err != nil {
				return "", err
			}
			if c != "" {
				clauses = append(clauses, c)
			}
			continue
		}

		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)
		for _, op := range opNames {
			c, err := e.operator(key, op, ops[op])
			if err != nil {
				return "", err
			}
			if c != "" {
				clauses = append(clauses, c)
			}
		}
	}
	return strings.Join(clauses, " AND "), nil
}

// equals also matches list attributes containing the value.
func (e *expression) equals(key string, v any) (string, error) {
	if !isScalar(v) {
		return "", nil
	}
	n := e.name(key)
	ph, err := e.value(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s = %s OR contains(%s, %s))", n, ph, n, ph), nil
}

func (e *expression) operator(key, op string, arg any) (string, error) {
	switch op {
	case query.OpExists:
		want, ok := arg.(bool)
		if !ok {
			return "", nil
		}
		if want {
			return fmt.Sprintf("attribute_exists(%s)", e.name(key)), nil
		}
		return fmt.Sprintf("attribute_not_exists(%s)", e.name(key)), nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		if !isOrdered(arg) {
			return "", nil
		}
		ph, err := e.value(arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", e.name(key), comparators[op], ph), nil
	case query.OpIn:
		list, ok := query.ToList(arg)
		if !ok || len(list) == 0 || len(list) > maxPushdownList {
			return "", nil
		}
		branches := make([]string, 0, len(list))
		for _, v := range list {
			c, err := e.equals(key, v)
			if err != nil {
				return "", err
			}
			if c == "" {
				return "", nil
			}
			branches = append(branches, c)
		}
		return "(" + strings.Join(branches, " OR ") + ")", nil
	case query.OpLike:
		pattern, ok := arg.(string)
		if !ok {
			return "", nil
		}
		prefix, ok := likePrefix(pattern)
		if !ok {
			return "", nil
		}
		ph, err := e.value(prefix)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", e.name(key), ph), nil
	}
	return "", nil
}

var comparators = map[string]string{
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// likePrefix reports the literal prefix of a "abc%" pattern.
func likePrefix(pattern string) (string, bool) {
	if !strings.HasSuffix(pattern, "%") {
		return "", false
	}
	prefix := strings.TrimSuffix(pattern, "%")
	if prefix == "" || strings.ContainsAny(prefix, "%_") {
		return "", false
	}
	return prefix, true
}

// update renders u as a native update expression. It reports false when u
// touches nested paths or assigns and increments the same field, which the
// adapter then applies by read-modify-write.
func (e *expression) update(u storagemodels.Update) (string, bool, error) {
	setPaths := sortedKeys(u.Set)
	incPaths := sortedKeys(u.Inc)
	for _, p := range append(append([]string{}, setPaths...), incPaths...) {
		if strings.Contains(p, ".") {
			return "", false, nil
		}
	}
	for _, p := range incPaths {
		if _, ok := u.Set[p]; ok {
			return "", false, nil
		}
	}

	var set, add []string
	for _, p := range setPaths {
		if p == storagemodels.IDField {
			continue
		}
		ph, err := e.value(u.Set[p])
		if err != nil {
			return "", false, err
		}
		set = append(set, fmt.Sprintf("%s = %s", e.name(p), ph))
	}
	for _, p := range incPaths {
		if p == storagemodels.IDField {
			continue
		}
		ph, err := e.value(u.Inc[p])
		if err != nil {
			return "", false, err
		}
		add = append(add, fmt.Sprintf("%s %s", e.name(p), ph))
	}

	var clauses []string
	if len(set) > 0 {
		clauses = append(clauses, "SET "+strings.Join(set, ", "))
	}
	if len(add) > 0 {
		clauses = append(clauses, "ADD "+strings.Join(add, ", "))
	}
	if len(clauses) == 0 {
		return "", false, nil
	}
	return strings.Join(clauses, " "), true, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	return isNumber(v)
}

func isOrdered(v any) bool {
	_, ok := v.(string)
	return ok || isNumber(v)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

// normalize turns json.Number into float64 so it marshals as N rather than S.
func normalize(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if f, err := tv.Float64(); err == nil {
			return f
		}
		return tv.String()
	case storagemodels.Document:
		return normalize(map[string]any(tv))
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = normalize(e)
		}
		return out
	}
	if m, ok := flat.AsMap(v); ok {
		return normalize(m)
	}
	return v
}
