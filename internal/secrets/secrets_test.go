// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "openalex-email", "  user@example.com \n")
				writeFile(t, dir, "anthropic-api-key", "sk-ant-123")
				return dir
			},
			want: map[string]string{
				"openalex-email":    "user@example.com",
				"anthropic-api-key": "sk-ant-123",
			},
		},
		{
			name: "missing directory is empty",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty and whitespace-only files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "anthropic-api-key", "valid-key")
				writeFile(t, dir, "openalex-email", "")
				writeFile(t, dir, "blank", "   \n\t  ")
				return dir
			},
			want: map[string]string{"anthropic-api-key": "valid-key"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden", "secret")
				writeFile(t, dir, "openalex-email", "me@example.org")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))
				return dir
			},
			want: map[string]string{"openalex-email": "me@example.org"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	writeFile(t, dir, "openalex-email", "me@example.org")
	bad := filepath.Join(dir, "anthropic-api-key")
	require.NoError(t, os.WriteFile(bad, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(bad, 0o600) })

	var buf bytes.Buffer
	got, err := Load(dir, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openalex-email": "me@example.org"}, got)
	assert.Contains(t, buf.String(), "skipping unreadable secret")
}

func TestLoadWarnsOnWorldReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anthropic-api-key")
	require.NoError(t, os.WriteFile(path, []byte("sk"), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))

	var buf bytes.Buffer
	got, err := Load(dir, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	assert.Equal(t, "sk", got["anthropic-api-key"])
	assert.Contains(t, buf.String(), "readable by other users")
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Names(map[string]string{"b": "2", "a": "1"}))
	assert.Empty(t, Names(nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}
