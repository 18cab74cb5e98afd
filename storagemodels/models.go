/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

// IDField is the identifier key every document exchanged with the datastore uses.
const IDField = "id"

// Control keys recognised in a Filter. They never reach an adapter as predicates.
const (
	SelectKey      = "$select"
	LimitKey       = "$limit"
	OffsetKey      = "$offset"
	StartCursorKey = "$startCursor"
	EndCursorKey   = "$endCursor"
	SortKey        = "$sort"
)

// ControlKeys lists every filter key that is metadata rather than a predicate.
var ControlKeys = []string{SelectKey, LimitKey, OffsetKey, StartCursorKey, EndCursorKey, SortKey}

// IgnoreTenantKey is the Options.Meta flag that lets trusted callers bypass tenant scoping.
const IgnoreTenantKey = "ignoreTenantId"

// Document is a schema-conformant entity: field name to value, identified by "id".
type Document map[string]any

// ID returns the document identifier, or "" when it is absent or not a string.
func (d Document) ID() string {
	if d == nil {
		return ""
	}
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a deep copy of nested maps and slices.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// Filter is a raw query: control metadata ($select, $limit, ...) mixed with predicate fields.
//
// Predicates are equality by default and may nest one level to use operators:
//
//	Filter{"state": "NSW", "age": map[string]any{"$gte": 18}, "$sort": "-age,name"}
type Filter map[string]any

// Clone returns a shallow copy of the filter.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Update is the canonical, adapter-facing update descriptor. Both maps use
// flat dotted paths ("address.city").
type Update struct {
	Set map[string]any `json:"$set,omitempty"`
	Inc map[string]any `json:"$inc,omitempty"`
}

// IsEmpty reports whether the descriptor carries no mutation.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Inc) == 0
}

// Options carries per-call hints to the datastore and its adapter.
type Options struct {
	// Meta holds out-of-band call metadata such as the tenant identifier.
	Meta map[string]any
	// Tx is a backend specific transaction handle (for example *sql.Tx).
	Tx any
}

// MetaValue returns Meta[key] and whether it was present.
func (o Options) MetaValue(key string) (any, bool) {
	if o.Meta == nil {
		return nil, false
	}
	v, ok := o.Meta[key]
	return v, ok
}

// WithMeta returns a copy of o with Meta[key] = value.
func (o Options) WithMeta(key string, value any) Options {
	meta := make(map[string]any, len(o.Meta)+1)
	for k, v := range o.Meta {
		meta[k] = v
	}
	meta[key] = value
	o.Meta = meta
	return o
}

// EventData is the payload of a lifecycle event.
type EventData struct {
	Entities      []Document `json:"entities,omitempty"`
	IDs           []string   `json:"ids,omitempty"`
	Filter        Filter     `json:"filter,omitempty"`
	InsertedCount int64      `json:"insertedCount,omitempty"`
	UpdatedCount  int64      `json:"updatedCount,omitempty"`
	DeletedCount  int64      `json:"deletedCount,omitempty"`
}

// Clone returns a deep copy, detached from the documents and filter the
// operation hands back to its caller.
func (e EventData) Clone() EventData {
	out := e
	if e.Entities != nil {
		out.Entities = make([]Document, len(e.Entities))
		for i, d := range e.Entities {
			out.Entities[i] = d.Clone()
		}
	}
	if e.IDs != nil {
		out.IDs = append([]string(nil), e.IDs...)
	}
	if e.Filter != nil {
		out.Filter = Filter(cloneMap(e.Filter))
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneMap(tv)
	case Document:
		return Document(cloneMap(tv))
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
