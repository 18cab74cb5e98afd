/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/internal/flat"
	"github.com/suparena/docstore/storagemodels"
)

// Operator keys.
const (
	OpIn     = "$in"
	OpNin    = "$nin"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpNe     = "$ne"
	OpExists = "$exists"
	OpLike   = "$like"
	OpOr     = "$or"
)

// Match reports whether doc satisfies every condition of pred.
func Match(doc map[string]any, pred storagemodels.Filter) (bool, error) {
	for key, cond := range pred {
		if key == OpOr {
			ok, err := matchOr(doc, cond)
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return false, errors.NewFieldValidationError(key, "unsupported top-level operator")
		}

		value, present := flat.Get(doc, key)
		ops, isOps := Operators(cond)
		if !isOps {
			if !present || !equalOrContains(value, cond) {
				return false, nil
			}
			continue
		}
		for op, arg := range ops {
			ok, err := matchOp(op, key, value, present, arg)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

// Operators returns cond as an operator map when every key is an operator.
func Operators(cond any) (map[string]any, bool) {
	m, ok := flat.AsMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// Predicates returns the branches of an $or condition.
func Predicates(cond any) ([]storagemodels.Filter, error) {
	list, ok := ToList(cond)
	if !ok {
		return nil, errors.NewFieldValidationError(OpOr, "must be a list of predicates")
	}
	out := make([]storagemodels.Filter, 0, len(list))
	for _, e := range list {
		m, ok := flat.AsMap(e)
		if !ok {
			return nil, errors.NewFieldValidationError(OpOr, "must be a list of predicates")
		}
		out = append(out, storagemodels.Filter(m))
	}
	return out, nil
}

func matchOr(doc map[string]any, cond any) (bool, error) {
	branches, err := Predicates(cond)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		ok, err := Match(doc, b)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchOp(op, key string, value any, present bool, arg any) (bool, error) {
	switch op {
	case OpExists:
		want, ok := arg.(bool)
		if !ok {
			return false, errors.NewFieldValidationError(key, "$exists takes a boolean")
		}
		return present == want, nil
	case OpNe:
		return !present || !equalOrContains(value, arg), nil
	case OpIn, OpNin:
		list, ok := ToList(arg)
		if !ok {
			return false, errors.NewFieldValidationError(key, op+" takes a list")
		}
		found := false
		if present {
			for _, e := range list {
				if equalOrContains(value, e) {
					found = true
					break
				}
			}
		}
		if op == OpIn {
			return found, nil
		}
		return !found, nil
	case OpGt, OpGte, OpLt, OpLte:
		if !present || value == nil || !sameRank(value, arg) {
			return false, nil
		}
		c := Compare(value, arg)
		switch op {
		case OpGt:
			return c > 0, nil
		case OpGte:
			return c >= 0, nil
		case OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case OpLike:
		pattern, ok := arg.(string)
		if !ok {
			return false, errors.NewFieldValidationError(key, "$like takes a string")
		}
		s, ok := value.(string)
		if !present || !ok {
			return false, nil
		}
		re, err := LikePattern(pattern)
		if err != nil {
			return false, errors.NewFieldValidationError(key, err.Error())
		}
		return re.MatchString(s), nil
	}
	return false, errors.NewFieldValidationError(key, fmt.Sprintf("unsupported operator %s", op))
}

// LikePattern compiles a SQL LIKE pattern into an anchored, case-sensitive regexp.
func LikePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Equal compares decoded values; numbers compare by value regardless of kind.
func Equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	am, aIsMap := flat.AsMap(a)
	bm, bIsMap := flat.AsMap(b)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			if bv, ok := bm[k]; !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	al, aIsList := ToList(a)
	bl, bIsList := ToList(b)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// equalOrContains also matches a scalar condition against an array field.
func equalOrContains(value, cond any) bool {
	if Equal(value, cond) {
		return true
	}
	if _, condIsList := ToList(cond); condIsList {
		return false
	}
	if list, ok := ToList(value); ok {
		for _, e := range list {
			if Equal(e, cond) {
				return true
			}
		}
	}
	return false
}

// Compare orders values: nil first, then booleans (false < true), numbers,
// strings, and anything else by its printed form.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 2:
		fa, _ := number(a)
		fb, _ := number(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func sameRank(a, b any) bool {
	return rank(a) == rank(b)
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	}
	if _, ok := number(v); ok {
		return 2
	}
	return 4
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch tv := v.(type) {
	case int:
		return float64(tv), true
	case int8:
		return float64(tv), true
	case int16:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case uint:
		return float64(tv), true
	case uint8:
		return float64(tv), true
	case uint16:
		return float64(tv), true
	case uint32:
		return float64(tv), true
	case uint64:
		return float64(tv), true
	case float32:
		return float64(tv), true
	case float64:
		return tv, true
	case json.Number:
		f, err := tv.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToList returns v as a list when it is a slice other than []byte.
func ToList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Sort orders docs in place by fields; ties keep their input order.
func Sort(docs []storagemodels.Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := flat.Get(docs[i], f.Field)
			b, _ := flat.Get(docs[j], f.Field)
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Project returns a copy of doc restricted to fields. The id is always kept;
// no fields means the whole document.
func Project(doc storagemodels.Document, fields []string) storagemodels.Document {
	if doc == nil || len(fields) == 0 {
		return doc
	}
	out := storagemodels.Document{}
	if id, ok := doc[storagemodels.IDField]; ok {
		out[storagemodels.IDField] = id
	}
	for _, f := range fields {
		if v, ok := flat.Get(doc, f); ok {
			flat.Set(out, f, v)
		}
	}
	return out
}

// Page applies offset and limit; nil means unbounded.
func Page(docs []storagemodels.Document, offset, limit *int) []storagemodels.Document {
	if offset != nil {
		if *offset >= len(docs) {
			return []storagemodels.Document{}
		}
		docs = docs[*offset:]
	}
	if limit != nil && *limit < len(docs) {
		docs = docs[:*limit]
	}
	return docs
}

// Apply filters, sorts, pages and projects docs the way a backend would.
func Apply(docs []storagemodels.Document, q *Query) ([]storagemodels.Document, error) {
	if q == nil {
		q = All()
	}
	matched := make([]storagemodels.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := q.Matches(d)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}
	Sort(matched, q.Filters.SortFields())
	matched = Page(matched, q.Filters.Offset, q.Filters.Limit)

	fields := q.Filters.Fields()
	if len(fields) > 0 {
		for i, d := range matched {
			matched[i] = Project(d, fields)
		}
	}
	return matched, nil
}
