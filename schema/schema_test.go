/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/docstore/errors"
)

func userDefinition() Definition {
	return Definition{
		Name: "user",
		Entity: map[string]any{
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name":   map[string]any{"type": "string", "minLength": 1},
				"status": map[string]any{"type": "string", "default": "active"},
			},
		},
	}
}

func TestNewRequiresName(t *testing.T) {
	_, err := New(Definition{})
	assert.Error(t, err)
}

func TestSchemaCreateUsesEntityByDefault(t *testing.T) {
	s := MustNew(userDefinition())
	assert.Equal(t, "user", s.Name())

	_, err := s.Validate(map[string]any{}, false)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	doc := map[string]any{"name": "ann"}
	_, err = s.Validate(doc, false)
	require.NoError(t, err)
	assert.Equal(t, "active", doc["status"])
}

func TestSchemaUpdateIsPermissiveByDefault(t *testing.T) {
	s := MustNew(userDefinition())

	_, err := s.Validate(map[string]any{"anything": 1}, true)
	assert.NoError(t, err)

	_, err = s.ValidateEntity(map[string]any{"anything": 1})
	assert.Error(t, err)
}

func TestSchemaCustomValidators(t *testing.T) {
	def := userDefinition()
	def.Validators = Validators{
		OnCreate: map[string]any{"required": []any{"name", "email"}},
		OnUpdate: map[string]any{
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
		},
	}
	s := MustNew(def)

	_, err := s.Validate(map[string]any{"name": "ann"}, false)
	assert.Error(t, err)

	_, err = s.Validate(map[string]any{"name": 1}, true)
	assert.Error(t, err)

	_, err = s.Validate(map[string]any{"name": "bob"}, true)
	assert.NoError(t, err)
}

func TestLoadDefinition(t *testing.T) {
	src := `
name: task
entity:
  type: object
  required: [title]
  properties:
    title: { type: string }
    done:  { type: boolean, default: false }
validators:
  onUpdate:
    properties:
      title: { type: string }
`
	def, err := LoadDefinition(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "task", def.Name)
	require.NotNil(t, def.Validators.OnUpdate)

	s, err := New(def)
	require.NoError(t, err)

	doc := map[string]any{"title": "write"}
	_, err = s.Validate(doc, false)
	require.NoError(t, err)
	assert.Equal(t, false, doc["done"])
}

func TestLoadDefinitionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"user","entity":{"type":"object"}}`), 0o600))

	def, err := LoadDefinitionFile(path)
	require.NoError(t, err)
	assert.Equal(t, "user", def.Name)

	_, err = LoadDefinitionFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
