/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// where compiles predicates into a SQL boolean expression over the data
// column, collecting bind arguments in order.
type where struct {
	args []any
}

func (w *where) arg(v any) string {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			v = f
		}
	}
	w.args = append(w.args, v)
	return "?"
}

// jsonPath converts a dotted field into a SQLite JSON path ($."a"."b").
func jsonPath(field string) (string, error) {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		if seg == "" || strings.ContainsAny(seg, `"\`) {
			return "", errors.NewFieldValidationError(field, "invalid field name")
		}
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

func (w *where) predicate(pred storagemodels.Filter) (string, error) {
	if len(pred) == 0 {
		return "1", nil
	}

	keys := make([]string, 0, len(pred))
	for k := range pred {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, key := range keys {
		cond := pred[key]
		if key == query.OpOr {
			branches, err := query.Predicates(cond)
			if err != nil {
				return "", err
			}
			parts := make([]string, 0, len(branches))
			for _, b := range branches {
				p, err := w.predicate(b)
				if err != nil {
					return "", err
				}
				parts = append(parts, "("+p+")")
			}
			if len(parts) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
			continue
		}
		if strings.HasPrefix(key, "$") {
			return "", errors.NewFieldValidationError(key, "unsupported top-level operator")
		}

		path, err := jsonPath(key)
		if err != nil {
			return "", err
		}
		ops, isOps := query.Operators(cond)
		if !isOps {
			eq, err := w.equal(key, path, cond)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, eq)
			continue
		}

		opKeys := make([]string, 0, len(ops))
		for op := range ops {
			opKeys = append(opKeys, op)
		}
		sort.Strings(opKeys)
		for _, op := range opKeys {
			c, err := w.operator(key, path, op, ops[op])
			if err != nil {
				return "", err
			}
			clauses = append(clauses, c)
		}
	}
	return strings.Join(clauses, " AND "), nil
}

// equal matches the field against value; a scalar also matches an element of
// an array field.
func (w *where) equal(key, path string, value any) (string, error) {
	if key == storagemodels.IDField {
		if s, ok := value.(string); ok {
			return "id = " + w.arg(s), nil
		}
	}

	switch tv := value.(type) {
	case nil:
		return fmt.Sprintf("json_type(data, %s) = 'null'", w.arg(path)), nil
	case bool:
		lit := "false"
		if tv {
			lit = "true"
		}
		return fmt.Sprintf("json_type(data, %s) = '%s'", w.arg(path), lit), nil
	case string:
		return w.scalarEqual(path, tv), nil
	}
	if isNumber(value) {
		return w.scalarEqual(path, value), nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", errors.NewFieldValidationError(key, fmt.Sprintf("unsupported value: %v", err))
	}
	return fmt.Sprintf("json_extract(data, %s) = json(%s)", w.arg(path), w.arg(string(raw))), nil
}

func (w *where) scalarEqual(path string, value any) string {
	return fmt.Sprintf(
		"(json_extract(data, %s) = %s OR (json_type(data, %s) = 'array' AND EXISTS (SELECT 1 FROM json_each(data, %s) WHERE json_each.value = %s)))",
		w.arg(path), w.arg(value), w.arg(path), w.arg(path), w.arg(value),
	)
}

func (w *where) operator(key, path, op string, arg any) (string, error) {
	switch op {
	case query.OpExists:
		want, ok := arg.(bool)
		if !ok {
			return "", errors.NewFieldValidationError(key, "$exists takes a boolean")
		}
		if want {
			return fmt.Sprintf("json_type(data, %s) IS NOT NULL", w.arg(path)), nil
		}
		return fmt.Sprintf("json_type(data, %s) IS NULL", w.arg(path)), nil

	case query.OpNe:
		eq, err := w.equal(key, path, arg)
		if err != nil {
			return "", err
		}
		return "NOT coalesce((" + eq + "), 0)", nil

	case query.OpIn, query.OpNin:
		list, ok := query.ToList(arg)
		if !ok {
			return "", errors.NewFieldValidationError(key, op+" takes a list")
		}
		parts := make([]string, 0, len(list))
		for _, e := range list {
			eq, err := w.equal(key, path, e)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+eq+")")
		}
		in := "0"
		if len(parts) > 0 {
			in = strings.Join(parts, " OR ")
		}
		if op == query.OpIn {
			return "coalesce((" + in + "), 0)", nil
		}
		return "NOT coalesce((" + in + "), 0)", nil

	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		cmp := map[string]string{query.OpGt: ">", query.OpGte: ">=", query.OpLt: "<", query.OpLte: "<="}[op]
		var types string
		switch {
		case isNumber(arg):
			types = "'integer', 'real'"
		case isString(arg):
			types = "'text'"
		default:
			return "", errors.NewFieldValidationError(key, op+" takes a number or a string")
		}
		return fmt.Sprintf("(json_type(data, %s) IN (%s) AND json_extract(data, %s) %s %s)",
			w.arg(path), types, w.arg(path), cmp, w.arg(arg)), nil

	case query.OpLike:
		pattern, ok := arg.(string)
		if !ok {
			return "", errors.NewFieldValidationError(key, "$like takes a string")
		}
		return fmt.Sprintf("(json_type(data, %s) = 'text' AND json_extract(data, %s) LIKE %s)",
			w.arg(path), w.arg(path), w.arg(pattern)), nil
	}
	return "", errors.NewFieldValidationError(key, fmt.Sprintf("unsupported operator %s", op))
}

// orderBy compiles sort fields; insertion order breaks ties.
func (w *where) orderBy(fields []query.SortField) (string, error) {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		path, err := jsonPath(f.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("json_extract(data, %s) %s", w.arg(path), dir))
	}
	parts = append(parts, "rowid ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (w *where) page(f query.Filters) string {
	if f.Limit == nil && f.Offset == nil {
		return ""
	}
	limit := -1
	if f.Limit != nil {
		limit = *f.Limit
	}
	clause := " LIMIT " + w.arg(limit)
	if f.Offset != nil {
		clause += " OFFSET " + w.arg(*f.Offset)
	}
	return clause
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}
