/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mongo

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

const idField = "_id"

// objectID stores 24-hex ids as ObjectIDs and any other id as a string.
func objectID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func fieldName(path string) string {
	if path == storagemodels.IDField {
		return idField
	}
	return path
}

// toBSON converts a document for storage, moving id to _id.
func toBSON(doc storagemodels.Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if k == storagemodels.IDField {
			if id, ok := v.(string); ok {
				out[idField] = objectID(id)
				continue
			}
		}
		out[k] = normalize(v)
	}
	return out
}

// fromBSON converts a stored document back, exposing _id as id.
func fromBSON(m bson.M) storagemodels.Document {
	out := make(storagemodels.Document, len(m))
	for k, v := range m {
		if k == idField {
			out[storagemodels.IDField] = idString(v)
			continue
		}
		out[k] = plain(v)
	}
	return out
}

func idString(v any) string {
	switch tv := v.(type) {
	case primitive.ObjectID:
		return tv.Hex()
	case string:
		return tv
	}
	return fmt.Sprint(v)
}

// plain turns driver types into the shapes the other adapters return.
func plain(v any) any {
	switch tv := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = plain(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(tv))
		for _, e := range tv {
			out[e.Key] = plain(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = plain(e)
		}
		return out
	case primitive.ObjectID:
		return tv.Hex()
	case primitive.DateTime:
		return tv.Time().UTC().Format(time.RFC3339Nano)
	case int32:
		return int64(tv)
	}
	return v
}

// normalize turns json.Number into float64 and documents into plain maps.
func normalize(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if f, err := tv.Float64(); err == nil {
			return f
		}
		return tv.String()
	case storagemodels.Document:
		return normalize(map[string]any(tv))
	case storagemodels.Filter:
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
	return v
}

func idValue(v any) any {
	if s, ok := v.(string); ok {
		return objectID(s)
	}
	return normalize(v)
}

// toFilter translates a predicate into a MongoDB query document.
func toFilter(pred storagemodels.Filter) (bson.M, error) {
	out := bson.M{}
	for key, cond := range pred {
		if key == query.OpOr {
			branches, err := query.Predicates(cond)
			if err != nil {
				return nil, err
			}
			or := make(bson.A, 0, len(branches))
			for _, b := range branches {
				f, err := toFilter(b)
				if err != nil {
					return nil, err
				}
				or = append(or, f)
			}
			out["$or"] = or
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, errors.NewFieldValidationError(key, "unsupported top-level operator")
		}

		value := normalize
		if key == storagemodels.IDField {
			value = idValue
		}

		ops, isOps := query.Operators(cond)
		if !isOps {
			out[fieldName(key)] = value(cond)
			continue
		}
		translated := bson.M{}
		for op, arg := range ops {
			switch op {
			case query.OpGt, query.OpGte, query.OpLt, query.OpLte, query.OpNe:
				translated[op] = value(arg)
			case query.OpExists:
				if _, ok := arg.(bool); !ok {
					return nil, errors.NewFieldValidationError(key, "$exists takes a boolean")
				}
				translated[op] = arg
			case query.OpIn, query.OpNin:
				list, ok := query.ToList(arg)
				if !ok {
					return nil, errors.NewFieldValidationError(key, op+" takes a list")
				}
				vals := make(bson.A, len(list))
				for i, e := range list {
					vals[i] = value(e)
				}
				translated[op] = vals
			case query.OpLike:
				pattern, ok := arg.(string)
				if !ok {
					return nil, errors.NewFieldValidationError(key, "$like takes a string")
				}
				re, err := query.LikePattern(pattern)
				if err != nil {
					return nil, errors.NewFieldValidationError(key, err.Error())
				}
				translated["$regex"] = primitive.Regex{Pattern: re.String()}
			default:
				return nil, errors.NewFieldValidationError(key, fmt.Sprintf("unsupported operator %s", op))
			}
		}
		out[fieldName(key)] = translated
	}
	return out, nil
}

// toUpdate renders a normalized update; id is never changed.
func toUpdate(u storagemodels.Update) bson.M {
	out := bson.M{}
	if set := withoutID(u.Set); len(set) > 0 {
		out["$set"] = set
	}
	if inc := withoutID(u.Inc); len(inc) > 0 {
		out["$inc"] = inc
	}
	return out
}

func withoutID(m map[string]any) bson.M {
	out := make(bson.M, len(m))
	for k, v := range m {
		if k == storagemodels.IDField {
			continue
		}
		out[k] = normalize(v)
	}
	return out
}

func toSort(fields []query.SortField) bson.D {
	if len(fields) == 0 {
		return nil
	}
	out := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: fieldName(f.Field), Value: dir})
	}
	return out
}

// toProjection always keeps _id.
func toProjection(fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}
	out := bson.M{}
	for _, f := range fields {
		if f == storagemodels.IDField {
			continue
		}
		out[f] = 1
	}
	if len(out) == 0 {
		out[idField] = 1
	}
	return out
}
