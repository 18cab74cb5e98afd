/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

// SortField is one token of a $sort expression.
type SortField struct {
	Field string
	Desc  bool
}

// Filters holds the control metadata of a filter.
type Filters struct {
	Select      string
	Limit       *int
	Offset      *int
	StartCursor string
	EndCursor   string
	Sort        string
}

// Fields returns the projected field names, or nil for every field.
func (f Filters) Fields() []string {
	return splitList(f.Select)
}

// SortFields parses Sort. "-name" sorts descending, "+name" and "name" ascending.
func (f Filters) SortFields() []SortField {
	tokens := splitList(f.Sort)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]SortField, 0, len(tokens))
	for _, tok := range tokens {
		switch tok[0] {
		case '-':
			out = append(out, SortField{Field: tok[1:], Desc: true})
		case '+':
			out = append(out, SortField{Field: tok[1:]})
		default:
			out = append(out, SortField{Field: tok})
		}
	}
	return out
}

// Map returns the control metadata in its raw filter form.
func (f Filters) Map() map[string]any {
	out := make(map[string]any)
	if f.Select != "" {
		out[storagemodels.SelectKey] = f.Select
	}
	if f.Limit != nil {
		out[storagemodels.LimitKey] = *f.Limit
	}
	if f.Offset != nil {
		out[storagemodels.OffsetKey] = *f.Offset
	}
	if f.StartCursor != "" {
		out[storagemodels.StartCursorKey] = f.StartCursor
	}
	if f.EndCursor != "" {
		out[storagemodels.EndCursorKey] = f.EndCursor
	}
	if f.Sort != "" {
		out[storagemodels.SortKey] = f.Sort
	}
	return out
}

// Query is a parsed filter.
type Query struct {
	Filters   Filters
	Predicate storagemodels.Filter
}

// All returns a query matching every document.
func All() *Query {
	return &Query{Predicate: storagemodels.Filter{}}
}

// Parse splits filter into control metadata and predicate. filter is not modified.
func Parse(filter storagemodels.Filter) (*Query, error) {
	q := &Query{Predicate: make(storagemodels.Filter, len(filter))}

	for k, v := range filter {
		switch k {
		case storagemodels.SelectKey:
			q.Filters.Select = joinList(v)
		case storagemodels.SortKey:
			q.Filters.Sort = joinList(v)
		case storagemodels.StartCursorKey:
			q.Filters.StartCursor = toString(v)
		case storagemodels.EndCursorKey:
			q.Filters.EndCursor = toString(v)
		case storagemodels.LimitKey:
			n, err := toCount(k, v)
			if err != nil {
				return nil, err
			}
			q.Filters.Limit = n
		case storagemodels.OffsetKey:
			n, err := toCount(k, v)
			if err != nil {
				return nil, err
			}
			q.Filters.Offset = n
		default:
			q.Predicate[k] = v
		}
	}
	return q, nil
}

// MustParse is like Parse but panics on error.
func MustParse(filter storagemodels.Filter) *Query {
	q, err := Parse(filter)
	if err != nil {
		panic(err)
	}
	return q
}

// Filter reassembles the raw filter form of q.
func (q *Query) Filter() storagemodels.Filter {
	if q == nil {
		return storagemodels.Filter{}
	}
	out := storagemodels.Filter(q.Filters.Map())
	for k, v := range q.Predicate {
		out[k] = v
	}
	return out
}

// Matches reports whether doc satisfies the predicate. A nil query matches everything.
func (q *Query) Matches(doc map[string]any) (bool, error) {
	if q == nil {
		return true, nil
	}
	return Match(doc, q.Predicate)
}

// toCount coerces a $limit/$offset value to a non-negative integer.
func toCount(key string, v any) (*int, error) {
	var n int
	switch tv := v.(type) {
	case nil:
		return nil, nil
	case int:
		n = tv
	case int32:
		n = int(tv)
	case int64:
		n = int(tv)
	case float64:
		n = int(tv)
	case float32:
		n = int(tv)
	case json.Number:
		f, err := tv.Float64()
		if err != nil {
			return nil, invalidCount(key, v)
		}
		n = int(f)
	case string:
		parsed, ok := leadingInt(tv)
		if !ok {
			return nil, invalidCount(key, v)
		}
		n = parsed
	default:
		return nil, invalidCount(key, v)
	}
	if n < 0 {
		n = -n
	}
	return &n, nil
}

// leadingInt parses the integer prefix of s ("10", " -3", "12px").
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func invalidCount(key string, v any) error {
	return errors.NewFieldValidationError(key, fmt.Sprintf("must be an integer, got %v", v))
}

func toString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	default:
		return fmt.Sprint(tv)
	}
}

// joinList accepts "a,b" or a list of names.
func joinList(v any) string {
	switch tv := v.(type) {
	case []string:
		return strings.Join(tv, ",")
	case []any:
		parts := make([]string, 0, len(tv))
		for _, e := range tv {
			parts = append(parts, toString(e))
		}
		return strings.Join(parts, ",")
	default:
		return toString(v)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
