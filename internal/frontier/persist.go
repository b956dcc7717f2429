// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package frontier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/citation-crawler/internal/paperid"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// renameFile is swapped in tests to simulate a crash between writing the
// temp file and replacing the canonical one.
var renameFile = os.Rename

// Load reads the traversal state at path without opening a Store. A missing
// file is an empty state. Unreadable, malformed or inconsistent content
// returns an error coded state.load.corrupt.
func Load(path string) (types.StateFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return emptyState(), nil
	}
	if err != nil {
		return types.StateFile{}, crawlerr.Wrap(err, crawlerr.CodeStateCorrupt,
			"reading traversal state", crawlerr.Field("path", path))
	}
	return decode(path, data)
}

func decode(path string, data []byte) (types.StateFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return types.StateFile{}, crawlerr.New(crawlerr.CodeStateCorrupt,
			"traversal state file is empty", crawlerr.Field("path", path))
	}
	var st types.StateFile
	if err := json.Unmarshal(data, &st); err != nil {
		return types.StateFile{}, crawlerr.Wrap(err, crawlerr.CodeStateCorrupt,
			"decoding traversal state", crawlerr.Field("path", path))
	}
	st, err := canonicalize(normalizeState(st))
	if err == nil {
		err = validate(st)
	}
	if err != nil {
		return types.StateFile{}, crawlerr.Wrap(err, crawlerr.CodeStateCorrupt,
			"traversal state violates disjointness", crawlerr.Field("path", path))
	}
	return st, nil
}

// canonicalize normalizes every stored id so lookups agree with the
// normalized ids Enqueue and Complete receive. Two keys of one map that
// collapse to the same id are an error; collisions across collections are
// left to validate.
func canonicalize(st types.StateFile) (types.StateFile, error) {
	ids := func(in []string) []string {
		out := make([]string, len(in))
		for i, id := range in {
			out[i] = string(paperid.Normalize(id))
		}
		return out
	}
	reasons := func(in map[string]string, coll string) (map[string]string, error) {
		out := make(map[string]string, len(in))
		for raw, reason := range in {
			id := string(paperid.Normalize(raw))
			if _, dup := out[id]; dup {
				return nil, fmt.Errorf("%s appears twice in %s", id, coll)
			}
			out[id] = reason
		}
		return out, nil
	}

	var err error
	st.Queue = ids(st.Queue)
	st.Processed = ids(st.Processed)
	if st.Skipped, err = reasons(st.Skipped, "skipped"); err != nil {
		return st, err
	}
	if st.Failed, err = reasons(st.Failed, "failed"); err != nil {
		return st, err
	}
	return st, nil
}

// validate checks that no id appears twice across or within collections.
func validate(st types.StateFile) error {
	where := make(map[string]string, len(st.Queue)+len(st.Processed)+len(st.Skipped)+len(st.Failed))
	claim := func(id, coll string) error {
		if id == "" {
			return fmt.Errorf("empty id in %s", coll)
		}
		if prev, ok := where[id]; ok {
			return fmt.Errorf("%s appears in both %s and %s", id, prev, coll)
		}
		where[id] = coll
		return nil
	}
	for _, id := range st.Queue {
		if err := claim(id, "queue"); err != nil {
			return err
		}
	}
	for _, id := range st.Processed {
		if err := claim(id, "processed"); err != nil {
			return err
		}
	}
	for id := range st.Skipped {
		if err := claim(id, "skipped"); err != nil {
			return err
		}
	}
	for id := range st.Failed {
		if err := claim(id, "failed"); err != nil {
			return err
		}
	}
	return nil
}

// save writes st to path atomically: temp file in the same directory,
// fsync, close, rename. On any failure the canonical file is untouched.
func save(path string, st types.StateFile) error {
	data, err := json.MarshalIndent(normalizeState(st), "", "  ")
	if err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeStatePersist, "encoding traversal state")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeStatePersist, "creating temp state file")
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return crawlerr.Wrap(err, crawlerr.CodeStatePersist, "writing temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return crawlerr.Wrap(err, crawlerr.CodeStatePersist, "syncing temp state file")
	}
	if err := tmp.Close(); err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeStatePersist, "closing temp state file")
	}
	if err := renameFile(tmpPath, path); err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeStatePersist, "replacing traversal state",
			crawlerr.Field("path", path))
	}

	success = true
	return nil
}

// moveAside renames a corrupt state file so a fresh one can take its place.
func moveAside(path string) (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, aside); err != nil {
		return "", fmt.Errorf("moving corrupt state aside: %w", err)
	}
	return aside, nil
}

func emptyState() types.StateFile {
	return types.StateFile{
		Queue:     []string{},
		Processed: []string{},
		Skipped:   map[string]string{},
		Failed:    map[string]string{},
	}
}

// normalizeState replaces nil collections so they encode as [] and {}.
func normalizeState(st types.StateFile) types.StateFile {
	if st.Queue == nil {
		st.Queue = []string{}
	}
	if st.Processed == nil {
		st.Processed = []string{}
	}
	if st.Skipped == nil {
		st.Skipped = map[string]string{}
	}
	if st.Failed == nil {
		st.Failed = map[string]string{}
	}
	return st
}

func cloneState(st types.StateFile) types.StateFile {
	out := types.StateFile{
		Queue:     append(make([]string, 0, len(st.Queue)+8), st.Queue...),
		Processed: append(make([]string, 0, len(st.Processed)+1), st.Processed...),
		Skipped:   make(map[string]string, len(st.Skipped)+1),
		Failed:    make(map[string]string, len(st.Failed)+1),
	}
	for k, v := range st.Skipped {
		out.Skipped[k] = v
	}
	for k, v := range st.Failed {
		out.Failed[k] = v
	}
	return out
}
