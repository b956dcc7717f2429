// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
)

func writeProject(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestInitThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "statins")

	created, err := Init(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "statins", created.Name)

	for _, sub := range []string{"pdfs", "metadata"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "statins", p.Name)
	assert.Equal(t, dir, p.Dir())
	assert.Equal(t, filepath.Join(dir, "bfs_queue.json"), p.StatePath())
	assert.Equal(t, filepath.Join(dir, "dataset.db"), p.DatasetPath())
	assert.Equal(t, filepath.Join(dir, DefaultSchemaFile), p.SchemaPath())

	schema, err := p.LoadSchema()
	require.NoError(t, err)
	require.NotNil(t, schema)
	assert.NoError(t, schema.Validate(json.RawMessage(`[{"value":"x"}]`)))
	assert.Error(t, schema.Validate(json.RawMessage(`[{"context":"no value"}]`)))
}

func TestInitRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir, "one")
	require.NoError(t, err)

	_, err = Init(dir, "two")
	assert.True(t, crawlerr.HasCode(err, crawlerr.CodeProjectLoad))

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "one", p.Name)
}

func TestInitKeepsExistingSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSchemaFile), []byte(`{"type":"object"}`), 0o644))

	_, err := Init(dir, "keep")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, DefaultSchemaFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object"}`, string(got))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "missing file", errMsg: "citation-crawler init"},
		{name: "malformed yaml", content: "name: [unclosed", errMsg: "parsing"},
		{
			name:    "missing criteria",
			content: "name: x\nextraction_instructions: y\n",
			errMsg:  "RelevanceCriteria",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if tc.content != "" {
				writeProject(t, dir, tc.content)
			}
			_, err := Load(dir)
			require.Error(t, err)
			assert.True(t, crawlerr.HasCode(err, crawlerr.CodeProjectLoad))
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestLoadSchema(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		dir := t.TempDir()
		writeProject(t, dir, "name: x\nrelevance_criteria: a\nextraction_instructions: b\n")
		p, err := Load(dir)
		require.NoError(t, err)
		s, err := p.LoadSchema()
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		writeProject(t, dir, "name: x\nrelevance_criteria: a\nextraction_instructions: b\nschema_file: gone.json\n")
		p, err := Load(dir)
		require.NoError(t, err)
		_, err = p.LoadSchema()
		assert.True(t, crawlerr.HasCode(err, crawlerr.CodeProjectLoad))
	})

	t.Run("invalid schema", func(t *testing.T) {
		dir := t.TempDir()
		writeProject(t, dir, "name: x\nrelevance_criteria: a\nextraction_instructions: b\nschema_file: s.json\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "s.json"), []byte(`{not json`), 0o644))
		p, err := Load(dir)
		require.NoError(t, err)
		_, err = p.LoadSchema()
		assert.True(t, crawlerr.HasCode(err, crawlerr.CodeProjectLoad))
	})
}
