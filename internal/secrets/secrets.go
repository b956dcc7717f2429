// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads credentials from a directory of plain-text files.
// The file name is the key and the trimmed contents are the value, e.g.
// .secrets/openalex-email and .secrets/anthropic-api-key.
package secrets

import (
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Dir is the conventional secrets directory, relative to the working
// directory.
const Dir = ".secrets"

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty map. Unreadable files are logged and skipped, and files
// other users can read are logged but still loaded.
func Load(dir string, log *slog.Logger) (map[string]string, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("skipping unreadable secret", "name", name, "error", err)
			continue
		}
		if info, err := entry.Info(); err == nil && worldReadable(info.Mode()) {
			log.Warn("secret file is readable by other users", "path", path, "mode", info.Mode().Perm().String())
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Names returns the loaded key names in sorted order, for logging without
// the values.
func Names(secrets map[string]string) []string {
	return slices.Sorted(maps.Keys(secrets))
}

func worldReadable(mode fs.FileMode) bool {
	return mode.Perm()&0o004 != 0
}
