/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/suparena/docstore/registry"
	"github.com/suparena/docstore/schema"
)

// Vendor extensions read from each component schema.
const (
	ExtEntityName = "x-entity-name"
	ExtValidators = "x-validators"
	ExtIndexMap   = "x-dynamodb-indexmap"
)

const refPrefix = "#/components/schemas/"

type document struct {
	Components struct {
		Schemas map[string]map[string]any `yaml:"schemas"`
	} `yaml:"components"`
}

// LoadFile reads an OpenAPI document from disk. See Load.
func LoadFile(path string) ([]schema.Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening openapi document: %w", err)
	}
	defer f.Close()

	defs, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Load turns every components.schemas entry of an OpenAPI document (YAML or
// JSON) into a schema definition, sorted by entity name. Local $ref pointers
// are inlined and OpenAPI 3.0 nullable flags become a "null" type. Index maps
// found in x-dynamodb-indexmap are registered under the entity name.
func Load(r io.Reader) ([]schema.Definition, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding openapi document: %w", err)
	}

	res := &resolver{schemas: doc.Components.Schemas, active: make(map[string]bool)}

	names := make([]string, 0, len(doc.Components.Schemas))
	for name := range doc.Components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]schema.Definition, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, component := range names {
		raw := doc.Components.Schemas[component]

		def, indexMap, err := res.definition(component, raw)
		if err != nil {
			return nil, fmt.Errorf("components.schemas.%s: %w", component, err)
		}
		if other, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("components.schemas.%s: entity name %q already used by %s", component, def.Name, other)
		}
		seen[def.Name] = component

		if indexMap != nil {
			registry.RegisterIndexMap(def.Name, indexMap)
		}
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

type resolver struct {
	schemas map[string]map[string]any
	active  map[string]bool
}

func (r *resolver) definition(component string, raw map[string]any) (schema.Definition, map[string]string, error) {
	def := schema.Definition{Name: strings.ToLower(component)}

	if v, ok := raw[ExtEntityName]; ok {
		name, ok := v.(string)
		if !ok || name == "" {
			return def, nil, fmt.Errorf("%s must be a non-empty string", ExtEntityName)
		}
		def.Name = name
	}

	r.active[component] = true
	entity, err := r.resolve(raw)
	delete(r.active, component)
	if err != nil {
		return def, nil, err
	}
	def.Entity = entity.(map[string]any)

	if v, ok := raw[ExtValidators]; ok {
		validators, ok := v.(map[string]any)
		if !ok {
			return def, nil, fmt.Errorf("%s must be an object", ExtValidators)
		}
		if def.Validators.OnCreate, err = r.ruleSet(validators, "onCreate"); err != nil {
			return def, nil, err
		}
		if def.Validators.OnUpdate, err = r.ruleSet(validators, "onUpdate"); err != nil {
			return def, nil, err
		}
	}

	var indexMap map[string]string
	if v, ok := raw[ExtIndexMap]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return def, nil, fmt.Errorf("%s must be an object", ExtIndexMap)
		}
		indexMap = make(map[string]string, len(m))
		for attr, tmpl := range m {
			s, ok := tmpl.(string)
			if !ok {
				return def, nil, fmt.Errorf("%s.%s must be a string", ExtIndexMap, attr)
			}
			indexMap[attr] = s
		}
	}

	return def, indexMap, nil
}

func (r *resolver) ruleSet(validators map[string]any, key string) (map[string]any, error) {
	v, ok := validators[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s.%s must be an object", ExtValidators, key)
	}
	out, err := r.resolve(m)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", ExtValidators, key, err)
	}
	return out.(map[string]any), nil
}

// resolve copies a schema fragment, dropping vendor extensions, inlining
// local references and rewriting nullable.
func (r *resolver) resolve(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := t["$ref"].(string); ok {
			return r.inline(ref)
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			if strings.HasPrefix(k, "x-") || k == "nullable" {
				continue
			}
			resolved, err := r.resolve(val)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		if nullable, _ := t["nullable"].(bool); nullable {
			addNull(out)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			resolved, err := r.resolve(val)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *resolver) inline(ref string) (any, error) {
	name, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return nil, fmt.Errorf("unsupported $ref %q", ref)
	}
	target, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("unresolved $ref %q", ref)
	}
	if r.active[name] {
		return nil, fmt.Errorf("recursive $ref %q", ref)
	}
	r.active[name] = true
	defer delete(r.active, name)
	return r.resolve(target)
}

func addNull(m map[string]any) {
	switch t := m["type"].(type) {
	case string:
		m["type"] = []any{t, "null"}
	case []any:
		for _, v := range t {
			if v == "null" {
				return
			}
		}
		m["type"] = append(t, "null")
	}
}
