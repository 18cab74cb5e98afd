/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/internal/flat"
	"github.com/suparena/docstore/storagemodels"
)

const (
	setKey = "$set"
	incKey = "$inc"
)

const emptyUpdate = "update is empty; at least one field required"

// Converted is a normalized update.
type Converted struct {
	// Update is what adapters receive: flat dotted paths in both buckets.
	Update storagemodels.Update
	// Validate is the nested union of both buckets, checked against the schema.
	Validate map[string]any
}

// ConvertUpdate normalizes a user update into the adapter form.
//
// $set values deep-merge, $inc replaces, and keys not starting with "$" are
// implicit $set entries. Other operator keys are ignored.
//
//	{name: "a", $set: {suburb: "c"}, $inc: {total: 10}}
//	=> Update{Set: {name: "a", suburb: "c"}, Inc: {total: 10}}
func ConvertUpdate(update map[string]any) (*Converted, error) {
	if len(update) == 0 {
		return nil, errors.NewInvalidUpdateError(emptyUpdate)
	}

	var set, inc map[string]any
	if raw, ok := update[setKey]; ok && raw != nil {
		m, ok := flat.AsMap(raw)
		if !ok {
			return nil, errors.NewInvalidUpdateError("$set must be an object")
		}
		set = flat.Merge(nil, m)
	}
	if raw, ok := update[incKey]; ok && raw != nil {
		m, ok := flat.AsMap(raw)
		if !ok {
			return nil, errors.NewInvalidUpdateError("$inc must be an object")
		}
		inc = m
	}
	for k, v := range update {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if set == nil {
			set = make(map[string]any)
		}
		set[k] = v
	}

	flatSet, err := flat.Flatten(set)
	if err != nil {
		return nil, errors.NewInvalidUpdateError(err.Error())
	}
	flatInc, err := flat.Flatten(inc)
	if err != nil {
		return nil, errors.NewInvalidUpdateError(err.Error())
	}
	out := storagemodels.Update{Set: flatSet, Inc: flatInc}
	if out.IsEmpty() {
		return nil, errors.NewInvalidUpdateError(emptyUpdate)
	}
	if err := checkIncrements(out.Inc); err != nil {
		return nil, err
	}

	union := make(map[string]any, len(out.Set)+len(out.Inc))
	for k, v := range out.Set {
		union[k] = v
	}
	for k, v := range out.Inc {
		union[k] = v
	}
	if len(out.Set) == 0 {
		out.Set = nil
	}
	if len(out.Inc) == 0 {
		out.Inc = nil
	}

	validate, err := flat.Unflatten(union)
	if err != nil {
		return nil, errors.NewInvalidUpdateError(err.Error())
	}
	return &Converted{Update: out, Validate: validate}, nil
}

func checkIncrements(inc map[string]any) error {
	keys := make([]string, 0, len(inc))
	for k := range inc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch inc[k].(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		default:
			return errors.NewInvalidUpdateError(fmt.Sprintf("$inc.%s must be a number", k))
		}
	}
	return nil
}

// ApplyUpdate applies a normalized update to doc in place. It is used by
// backends that evaluate updates in process. The id field is never changed.
func ApplyUpdate(doc storagemodels.Document, u storagemodels.Update) error {
	keys := make([]string, 0, len(u.Inc))
	for k := range u.Inc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == storagemodels.IDField {
			continue
		}
		cur, ok := flat.Get(doc, k)
		if !ok || cur == nil {
			flat.Set(doc, k, u.Inc[k])
			continue
		}
		sum, ok := addNumbers(cur, u.Inc[k])
		if !ok {
			return errors.NewInvalidUpdateError(fmt.Sprintf("cannot increment non-numeric field %s", k))
		}
		flat.Set(doc, k, sum)
	}

	for k, v := range u.Set {
		if k == storagemodels.IDField {
			continue
		}
		flat.Set(doc, k, v)
	}
	return nil
}

func addNumbers(a, b any) (any, bool) {
	ai, aInt := integer(a)
	bi, bInt := integer(b)
	if aInt && bInt {
		if _, ok := a.(int); ok {
			if _, ok := b.(int); ok {
				return int(ai + bi), true
			}
		}
		return ai + bi, true
	}
	af, ok := float(a)
	if !ok {
		return nil, false
	}
	bf, ok := float(b)
	if !ok {
		return nil, false
	}
	return af + bf, true
}

func integer(v any) (int64, bool) {
	switch tv := v.(type) {
	case int:
		return int64(tv), true
	case int8:
		return int64(tv), true
	case int16:
		return int64(tv), true
	case int32:
		return int64(tv), true
	case int64:
		return tv, true
	case uint8:
		return int64(tv), true
	case uint16:
		return int64(tv), true
	case uint32:
		return int64(tv), true
	case json.Number:
		i, err := tv.Int64()
		return i, err == nil
	}
	return 0, false
}

func float(v any) (float64, bool) {
	if i, ok := integer(v); ok {
		return float64(i), true
	}
	switch tv := v.(type) {
	case uint:
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
