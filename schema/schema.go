/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative form of an entity schema, as written in
// definition files or embedded in configuration.
type Definition struct {
	// Name is the entity type name; it prefixes lifecycle event names.
	Name string `yaml:"name" json:"name"`
	// Entity is the full entity shape. Used on create unless Validators.OnCreate is set.
	Entity map[string]any `yaml:"entity" json:"entity"`
	// Validators holds optional rule sets that replace the defaults.
	Validators Validators `yaml:"validators" json:"validators"`
}

// Validators holds the create and update specific rule sets.
type Validators struct {
	OnCreate map[string]any `yaml:"onCreate" json:"onCreate"`
	OnUpdate map[string]any `yaml:"onUpdate" json:"onUpdate"`
}

// Schema validates entities of one type. Create-time rules default to the
// entity shape, update-time rules default to an empty, permissive schema so
// updates may omit fields required on create.
type Schema struct {
	def    Definition
	entity *Validator
	create *Validator
	update *Validator
}

// New compiles a Definition.
func New(def Definition) (*Schema, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("schema: name is required")
	}

	entity, err := Compile(def.Entity)
	if err != nil {
		return nil, fmt.Errorf("schema %q: entity: %w", def.Name, err)
	}

	create := entity
	if def.Validators.OnCreate != nil {
		if create, err = Compile(def.Validators.OnCreate); err != nil {
			return nil, fmt.Errorf("schema %q: onCreate: %w", def.Name, err)
		}
	}

	update, err := Compile(def.Validators.OnUpdate)
	if err != nil {
		return nil, fmt.Errorf("schema %q: onUpdate: %w", def.Name, err)
	}

	return &Schema{def: def, entity: entity, create: create, update: update}, nil
}

// MustNew is like New but panics on error.
func MustNew(def Definition) *Schema {
	s, err := New(def)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the entity type name.
func (s *Schema) Name() string {
	return s.def.Name
}

// Definition returns the definition the schema was compiled from.
func (s *Schema) Definition() Definition {
	return s.def
}

// Validate checks data against the update rules when isUpdate is set, the
// create rules otherwise.
func (s *Schema) Validate(data any, isUpdate bool) (any, error) {
	if isUpdate {
		return s.update.Validate(data)
	}
	return s.create.Validate(data)
}

// ValidateEntity checks data against the full entity shape.
func (s *Schema) ValidateEntity(data any) (any, error) {
	return s.entity.Validate(data)
}

// LoadDefinition decodes a YAML or JSON definition.
func LoadDefinition(r io.Reader) (Definition, error) {
	var def Definition
	if err := yaml.NewDecoder(r).Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("decoding schema definition: %w", err)
	}
	return def, nil
}

// LoadDefinitionFile reads a definition from path.
func LoadDefinitionFile(path string) (Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, fmt.Errorf("opening schema definition: %w", err)
	}
	defer f.Close()
	return LoadDefinition(f)
}
