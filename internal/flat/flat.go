/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package flat converts between nested documents and dotted-path maps.
package flat

import (
	"strings"

	nqdflat "github.com/nqd/flat"

	"github.com/suparena/docstore/storagemodels"
)

// Separator joins path segments.
const Separator = "."

// AsMap returns v as a plain map when it is one of the map shapes documents use.
func AsMap(v any) (map[string]any, bool) {
	switch tv := v.(type) {
	case map[string]any:
		return tv, true
	case storagemodels.Document:
		return map[string]any(tv), true
	case storagemodels.Filter:
		return map[string]any(tv), true
	}
	return nil, false
}

// Flatten returns a single level map keyed by dotted paths. Slices and empty
// maps are leaves.
func Flatten(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	return nqdflat.Flatten(plain(m), &nqdflat.Options{Delimiter: Separator, Safe: true})
}

// Unflatten expands dotted keys into nested maps. When a scalar and a nested
// path collide, the nested path wins.
func Unflatten(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}
	in := make(map[string]any, len(m))
	for k, v := range m {
		// a scalar parent would otherwise collide with its nested paths
		if !hasChild(m, k) {
			in[k] = v
		}
	}
	return nqdflat.Unflatten(in, &nqdflat.Options{Delimiter: Separator})
}

func hasChild(m map[string]any, key string) bool {
	prefix := key + Separator
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// plain rebuilds the nested map shapes as map[string]any, the only shape the
// flattener descends into.
func plain(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := AsMap(v); ok {
			out[k] = plain(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Merge deep-merges src into dst; nested maps merge, everything else overwrites.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		srcMap, srcIsMap := AsMap(v)
		dstMap, dstIsMap := AsMap(dst[k])
		if srcIsMap && dstIsMap {
			dst[k] = Merge(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			dst[k] = Merge(nil, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}

// Get resolves a dotted path inside a nested map.
func Get(m map[string]any, path string) (any, bool) {
	if v, ok := m[path]; ok {
		return v, true
	}
	parts := strings.Split(path, Separator)
	var cur any = m
	for _, p := range parts {
		cm, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = cm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at a dotted path, creating intermediate maps and replacing
// non-map values found on the way.
func Set(m map[string]any, path string, value any) {
	parts := strings.Split(path, Separator)
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := AsMap(cur[p])
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Delete removes the value at a dotted path, if present.
func Delete(m map[string]any, path string) {
	parts := strings.Split(path, Separator)
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := AsMap(cur[p])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
