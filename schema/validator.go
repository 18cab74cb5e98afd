/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/internal/flat"
)

const resourceURL = "docstore://schema.json"

var printer = message.NewPrinter(language.English)

// Validator checks values against a compiled JSON schema document and fills
// in declared defaults.
type Validator struct {
	compiled *jsonschema.Schema
	raw      map[string]any
}

// Compile builds a Validator from a decoded schema document. An empty or nil
// document accepts every value.
func Compile(def map[string]any) (*Validator, error) {
	raw := map[string]any{}
	if len(def) > 0 {
		doc, err := normalize(def)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		m, ok := doc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: document must be an object")
		}
		raw = m
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.AssertFormat()
	registerFormats(c, strfmt.Default)
	if err := c.AddResource(resourceURL, raw); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &Validator{compiled: compiled, raw: raw}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(def map[string]any) *Validator {
	v, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks data and returns it, with schema defaults written into it in
// place. Every violation is reported in a single *errors.ValidationError.
func (v *Validator) Validate(data any) (any, error) {
	applyDefaults(v.raw, data)

	inst, err := normalize(data)
	if err != nil {
		return nil, errors.NewValidationError(errors.FieldError{
			Keyword: "type",
			Message: err.Error(),
		})
	}
	err = v.compiled.Validate(inst)
	if err == nil {
		return data, nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, err
	}

	var violations []errors.FieldError
	collect(verr, &violations)
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return nil, errors.NewValidationError(violations...)
}

// registerFormats asserts every format the registry knows; unknown formats are
// left to the compiler's own set.
func registerFormats(c *jsonschema.Compiler, reg strfmt.Registry) {
	for _, name := range []string{
		"date", "date-time", "duration", "email", "hostname", "ipv4", "ipv6",
		"uri", "uuid", "uuid3", "uuid4", "uuid5", "mac", "cidr", "byte",
		"password", "isbn", "creditcard", "hexcolor", "rgbcolor", "ssn",
		"bsonobjectid",
	} {
		if !reg.ContainsName(name) {
			continue
		}
		c.RegisterFormat(&jsonschema.Format{
			Name: name,
			Validate: func(v any) error {
				s, ok := v.(string)
				if !ok || reg.Validates(name, s) {
					return nil
				}
				return fmt.Errorf("%q is not valid %s", s, name)
			},
		})
	}
}

// collect flattens the error tree into leaf violations. Combinators report
// themselves instead of the failures of each branch.
func collect(e *jsonschema.ValidationError, out *[]errors.FieldError) {
	keyword := lastKeyword(e.ErrorKind.KeywordPath())
	if len(e.Causes) > 0 && keyword != "anyOf" && keyword != "oneOf" {
		for _, c := range e.Causes {
			collect(c, out)
		}
		return
	}

	path := pointer(e.InstanceLocation)
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			*out = append(*out, errors.FieldError{
				Keyword: "required",
				Path:    path,
				Params:  map[string]any{"missingProperty": name},
				Message: (&kind.Required{Missing: []string{name}}).LocalizedString(printer),
			})
		}
		return
	case *kind.AdditionalProperties:
		for _, name := range k.Properties {
			*out = append(*out, errors.FieldError{
				Keyword: "additionalProperties",
				Path:    path,
				Params:  map[string]any{"additionalProperty": name},
				Message: (&kind.AdditionalProperties{Properties: []string{name}}).LocalizedString(printer),
			})
		}
		return
	}

	fe := errors.FieldError{
		Keyword: keyword,
		Path:    path,
		Message: e.ErrorKind.LocalizedString(printer),
	}
	switch k := e.ErrorKind.(type) {
	case *kind.Type:
		fe.Params = map[string]any{"type": strings.Join(k.Want, ",")}
	case *kind.Format:
		fe.Params = map[string]any{"format": k.Want}
	case *kind.Pattern:
		fe.Params = map[string]any{"pattern": k.Want}
	}
	*out = append(*out, fe)
}

func lastKeyword(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

func pointer(location []string) string {
	if len(location) == 0 {
		return ""
	}
	parts := make([]string, len(location))
	for i, p := range location {
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(p, "~", "~0"), "/", "~1")
	}
	return "/" + strings.Join(parts, "/")
}

// normalize re-decodes v into the plain JSON shapes the compiler accepts,
// keeping numbers exact.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// applyDefaults writes missing property defaults into data, following
// properties, items and allOf. anyOf, oneOf and not are speculative and never
// contribute defaults.
func applyDefaults(s map[string]any, data any) {
	if len(s) == 0 {
		return
	}
	if m, ok := flat.AsMap(data); ok {
		props, _ := s["properties"].(map[string]any)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sub, _ := props[name].(map[string]any)
			if sub == nil {
				continue
			}
			if _, present := m[name]; !present {
				if def, ok := sub["default"]; ok {
					m[name] = copyDefault(def)
				}
			}
			if val, present := m[name]; present {
				applyDefaults(sub, val)
			}
		}
	}
	if list, ok := data.([]any); ok {
		if items, ok := s["items"].(map[string]any); ok {
			for _, e := range list {
				applyDefaults(items, e)
			}
		}
	}
	if all, ok := s["allOf"].([]any); ok {
		for _, e := range all {
			if sub, ok := e.(map[string]any); ok {
				applyDefaults(sub, data)
			}
		}
	}
}

// copyDefault prevents documents from sharing the schema's default maps and
// slices. Decoded numbers become int64 or float64.
func copyDefault(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = copyDefault(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = copyDefault(e)
		}
		return out
	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i
		}
		if f, err := tv.Float64(); err == nil {
			return f
		}
	}
	return v
}
