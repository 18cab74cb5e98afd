/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.yaml"), []byte(`
entity:
  type: object
  properties:
    name: {type: string, minLength: 2}
    age: {type: integer}
  required: [name]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docstore.yaml"), []byte(`
logging: {level: error}
entities:
  - name: user
    schema: user.yaml
    tenant: {enabled: true}
    adapter: {driver: sqlite, dsn: data/docstore.db}
`), 0o600))
	return filepath.Join(dir, "docstore.yaml")
}

func cli(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI(t *testing.T) {
	cfg := setup(t)
	base := []string{"-config", cfg, "-entity", "user", "-tenant", "t1"}

	code, out, errOut := cli(t, append(base, "-op", "insertOne", "-data", `{"name":"Ada","age":36}`)...)
	require.Equal(t, 0, code, errOut)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Ada", doc["name"])
	assert.Equal(t, "t1", doc["tenantId"])
	id := doc["id"].(string)

	code, _, errOut = cli(t, append(base, "-op", "insertMany", "-data", `[{"name":"Bob","age":20},{"name":"Cy","age":50}]`)...)
	require.Equal(t, 0, code, errOut)

	code, out, _ = cli(t, append(base, "-op", "count", "-filter", `{"age":{"$gte":30}}`)...)
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"count":2}`, out)

	code, out, _ = cli(t, append(base, "-op", "find", "-filter", `{"$sort":"-age","$select":"name"}`)...)
	require.Equal(t, 0, code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 3)
	assert.Equal(t, "Cy", docs[0]["name"])

	code, out, _ = cli(t, append(base, "-op", "updateById", "-id", id, "-data", `{"$inc":{"age":1}}`)...)
	require.Equal(t, 0, code)
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.EqualValues(t, 37, doc["age"])

	// Another tenant sees nothing; the admin flag sees everything.
	code, out, _ = cli(t, "-config", cfg, "-entity", "user", "-tenant", "t2", "-op", "findById", "-id", id)
	require.Equal(t, 0, code)
	assert.Equal(t, "null\n", out)

	code, out, _ = cli(t, "-config", cfg, "-entity", "user", "-admin", "-op", "count")
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"count":3}`, out)

	code, out, _ = cli(t, append(base, "-op", "deleteMany", "-filter", `{"age":{"$lt":30}}`)...)
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"deletedCount":1}`, out)

	code, out, _ = cli(t, append(base, "-op", "deleteById", "-id", id)...)
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"id":"`+id+`"}`, out)
}

func TestCLIValidationError(t *testing.T) {
	cfg := setup(t)

	code, out, errOut := cli(t, "-config", cfg, "-entity", "user", "-tenant", "t1",
		"-op", "insertOne", "-data", `{"name":"A","age":"old"}`)
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "Error:")
	assert.Contains(t, errOut, "/name")
	assert.Contains(t, errOut, "/age")
}

func TestCLIErrors(t *testing.T) {
	cfg := setup(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing op", []string{"-config", cfg, "-entity", "user"}, "-entity and -op are required"},
		{"unknown op", []string{"-config", cfg, "-entity", "user", "-op", "upsert"}, `unknown operation "upsert"`},
		{"unknown entity", []string{"-config", cfg, "-entity", "club", "-op", "count"}, `datastore with key "club" not found`},
		{"missing tenant", []string{"-config", cfg, "-entity", "user", "-op", "count"}, "precondition failed"},
		{"bad data", []string{"-config", cfg, "-entity", "user", "-tenant", "t1", "-op", "insertOne", "-data", "{"}, "parsing -data"},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "-entity", "user", "-op", "count"}, "Error:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := cli(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestCLIVersion(t *testing.T) {
	code, out, _ := cli(t, "-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "docstore version")
	assert.Contains(t, out, "sqlite")
}

func TestCLIBadFlag(t *testing.T) {
	code, _, errOut := cli(t, "-nope")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "flag provided but not defined")
}
