// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package frontier

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	return s
}

func claimAndComplete(t *testing.T, s *Store, res types.Result) []types.PaperID {
	t.Helper()
	id, ok := s.Claim()
	require.True(t, ok)
	require.Equal(t, res.ID, id)
	added, err := s.Complete(res)
	require.NoError(t, err)
	return added
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s := openTemp(t)
	assert.Equal(t, types.Counts{}, s.Counts())

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "nothing written until the first mutation")
}

func TestEnqueue_NormalizesAndDedups(t *testing.T) {
	s := openTemp(t)

	added, err := s.Enqueue("https://openalex.org/W1", "w2", "W1", "", "  ")
	require.NoError(t, err)
	assert.Equal(t, []types.PaperID{"W1", "W2"}, added)

	added, err = s.Enqueue("W2", "W3")
	require.NoError(t, err)
	assert.Equal(t, []types.PaperID{"W3"}, added)

	assert.Equal(t, []string{"W1", "W2", "W3"}, s.Snapshot().Queue)
}

func TestEnqueue_NothingNewDoesNotWrite(t *testing.T) {
	s := openTemp(t)
	added, err := s.Enqueue("", " ")
	require.NoError(t, err)
	assert.Empty(t, added)

	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestClaim_FIFOAndExclusive(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W1", "W2")
	require.NoError(t, err)

	a, ok := s.Claim()
	require.True(t, ok)
	b, ok := s.Claim()
	require.True(t, ok)
	_, ok = s.Claim()
	assert.False(t, ok, "all queued ids are in flight")

	assert.Equal(t, types.PaperID("W1"), a)
	assert.Equal(t, types.PaperID("W2"), b)
	assert.Equal(t, 2, s.Counts().InFlight)

	s.Release(a)
	c, ok := s.Claim()
	require.True(t, ok)
	assert.Equal(t, a, c)
}

func TestClaim_ConcurrentNeverDuplicates(t *testing.T) {
	s := openTemp(t)
	var ids []types.PaperID
	for i := 0; i < 100; i++ {
		ids = append(ids, types.PaperID(fmt.Sprintf("W%d", i)))
	}
	_, err := s.Enqueue(ids...)
	require.NoError(t, err)

	var mu sync.Mutex
	claimed := map[types.PaperID]int{}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok := s.Claim()
				if !ok {
					return
				}
				mu.Lock()
				claimed[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 100)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "id %s claimed more than once", id)
	}
}

func TestComplete_FailedNoPDF(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W1")
	require.NoError(t, err)

	claimAndComplete(t, s, types.Result{ID: "W1", Outcome: types.OutcomeFailed, Reason: types.ReasonNoPDF})

	st, err := Load(s.Path())
	require.NoError(t, err)
	assert.Empty(t, st.Queue)
	assert.Empty(t, st.Processed)
	assert.Empty(t, st.Skipped)
	assert.Equal(t, map[string]string{"W1": "no_pdf"}, st.Failed)
}

func TestComplete_SkippedIgnoresNeighbors(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W2")
	require.NoError(t, err)

	added := claimAndComplete(t, s, types.Result{
		ID: "W2", Outcome: types.OutcomeSkipped, Reason: "review article",
		Neighbors: []types.PaperID{"W10"},
	})
	assert.Empty(t, added)

	st := s.Snapshot()
	assert.Equal(t, map[string]string{"W2": "review article"}, st.Skipped)
	assert.Empty(t, st.Queue)
}

func TestComplete_ProcessedEnqueuesOnlyUnseen(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W4")
	require.NoError(t, err)
	claimAndComplete(t, s, types.Result{ID: "W4", Outcome: types.OutcomeFailed, Reason: types.ReasonNoPDF})

	_, err = s.Enqueue("W3")
	require.NoError(t, err)
	added := claimAndComplete(t, s, types.Result{
		ID: "W3", Outcome: types.OutcomeProcessed,
		Neighbors: []types.PaperID{"W4", "W5", "W3", "https://openalex.org/W5"},
	})
	assert.Equal(t, []types.PaperID{"W5"}, added)

	st, err := Load(s.Path())
	require.NoError(t, err)
	assert.Equal(t, []string{"W3"}, st.Processed)
	assert.Equal(t, []string{"W5"}, st.Queue)
	assert.Equal(t, map[string]string{"W4": "no_pdf"}, st.Failed)
}

func TestComplete_ConcurrentDiscoveryEnqueuesOnce(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W7", "W8")
	require.NoError(t, err)

	a, _ := s.Claim()
	b, _ := s.Claim()

	var wg sync.WaitGroup
	for _, id := range []types.PaperID{a, b} {
		wg.Add(1)
		go func(id types.PaperID) {
			defer wg.Done()
			_, err := s.Complete(types.Result{ID: id, Outcome: types.OutcomeProcessed, Neighbors: []types.PaperID{"W9"}})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, []string{"W9"}, s.Snapshot().Queue)
}

func TestComplete_RequiresClaim(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W1")
	require.NoError(t, err)

	_, err = s.Complete(types.Result{ID: "W1", Outcome: types.OutcomeProcessed})
	assert.Error(t, err)
	_, err = s.Complete(types.Result{ID: "W99", Outcome: types.OutcomeProcessed})
	assert.Error(t, err)
}

func TestComplete_WriteFailureLeavesStateUnchanged(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W1", "W2")
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	id, ok := s.Claim()
	require.True(t, ok)

	renameFile = func(string, string) error { return errors.New("disk gone") }
	t.Cleanup(func() { renameFile = os.Rename })

	_, err = s.Complete(types.Result{ID: id, Outcome: types.OutcomeProcessed, Neighbors: []types.PaperID{"W3"}})
	require.Error(t, err)
	assert.True(t, crawlerr.HasCode(err, crawlerr.CodeStatePersist))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "canonical file keeps the prior valid state")
	assert.Equal(t, []string{"W1", "W2"}, s.Snapshot().Queue)

	m, _, _ := s.Lookup("W3")
	assert.Equal(t, types.MemberNone, m)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file cleaned up")
}

func TestCrashAtomicity_FileAlwaysValid(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W0")
	require.NoError(t, err)

	// Interrupt every other write at the swap point and check the file on
	// disk always decodes to a consistent state.
	var n int
	renameFile = func(from, to string) error {
		n++
		if n%2 == 0 {
			return errors.New("crash")
		}
		return os.Rename(from, to)
	}
	t.Cleanup(func() { renameFile = os.Rename })

	for i := 1; i <= 20; i++ {
		_, _ = s.Enqueue(types.PaperID(fmt.Sprintf("W%d", i)))
		st, err := Load(s.Path())
		require.NoError(t, err)
		assert.Equal(t, st.Queue, s.Snapshot().Queue, "disk and memory agree after write %d", i)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	states := []types.StateFile{
		emptyState(),
		{
			Queue:     []string{"W5", "W6"},
			Processed: []string{"W3", "W1"},
			Skipped:   map[string]string{"W2": "review article"},
			Failed:    map[string]string{"W4": "no_pdf", "W7": "extraction failed: bad json"},
		},
	}
	for _, st := range states {
		require.NoError(t, save(path, st))
		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
}

func TestSaveLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, save(path, types.StateFile{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"queue": [], "processed": [], "skipped": {}, "failed": {}}`, string(data))
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"queue": ["W1"`},
		{"empty file", ``},
		{"wrong type", `{"queue": {"W1": 1}}`},
		{"overlap queue processed", `{"queue": ["W1"], "processed": ["W1"], "skipped": {}, "failed": {}}`},
		{"overlap skipped failed", `{"queue": [], "processed": [], "skipped": {"W1": "x"}, "failed": {"W1": "y"}}`},
		{"duplicate queue", `{"queue": ["W1", "W1"], "processed": [], "skipped": {}, "failed": {}}`},
		{"forms of one id across sets", `{"queue": ["w1"], "processed": ["https://openalex.org/W1"], "skipped": {}, "failed": {}}`},
		{"forms of one id in a map", `{"queue": [], "processed": [], "skipped": {"W1": "x", "https://openalex.org/W1": "y"}, "failed": {}}`},
		{"blank id", `{"queue": ["  "], "processed": [], "skipped": {}, "failed": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, crawlerr.IsCorrupt(err))

			_, err = Open(path)
			assert.True(t, crawlerr.IsCorrupt(err), "open refuses corrupt state")
		})
	}
}

func TestLoad_NullCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"queue": ["W1"]}`), 0o644))

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"W1"}, st.Queue)
	assert.NotNil(t, st.Processed)
	assert.NotNil(t, st.Skipped)
	assert.NotNil(t, st.Failed)
}

func TestOpen_NormalizesStoredIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{
  "queue": ["openalex:w9"],
  "processed": ["https://openalex.org/W1", "w2"],
  "skipped": {"https://api.openalex.org/works/W3": "not relevant"},
  "failed": {"w4": "no_pdf"}
}`), 0o644))

	s, err := Open(path)
	require.NoError(t, err)

	added, err := s.Enqueue("W1", "W2", "W3", "W4", "W9", "W5")
	require.NoError(t, err)
	assert.Equal(t, []types.PaperID{"W5"}, added)

	snap := s.Snapshot()
	assert.Equal(t, []string{"W9", "W5"}, snap.Queue)
	assert.Equal(t, []string{"W1", "W2"}, snap.Processed)
	assert.Equal(t, map[string]string{"W3": "not relevant"}, snap.Skipped)
	assert.Equal(t, map[string]string{"W4": "no_pdf"}, snap.Failed)

	member, reason, _ := s.Lookup("W4")
	assert.Equal(t, types.MemberFailed, member)
	assert.Equal(t, "no_pdf", reason)
}

func TestOpen_ResetCorruptMovesAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	s, err := Open(path, WithResetCorrupt(true))
	require.NoError(t, err)
	assert.Equal(t, types.Counts{}, s.Counts())

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "not json", string(data))
}

func TestLookup(t *testing.T) {
	s := openTemp(t)
	_, err := s.Enqueue("W1", "W2", "W3")
	require.NoError(t, err)
	claimAndComplete(t, s, types.Result{ID: "W1", Outcome: types.OutcomeSkipped, Reason: "off topic"})
	_, ok := s.Claim()
	require.True(t, ok)

	m, reason, _ := s.Lookup("https://openalex.org/W1")
	assert.Equal(t, types.MemberSkipped, m)
	assert.Equal(t, "off topic", reason)

	m, _, pos := s.Lookup("W2")
	assert.Equal(t, types.MemberInFlight, m)
	assert.Equal(t, 0, pos)

	m, _, pos = s.Lookup("W3")
	assert.Equal(t, types.MemberQueued, m)
	assert.Equal(t, 1, pos)

	m, _, pos = s.Lookup("W404")
	assert.Equal(t, types.MemberNone, m)
	assert.Equal(t, -1, pos)
}

// Random sequences of operations must keep the four collections pairwise
// disjoint and never re-queue a seen id.
func TestInvariants_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := openTemp(t)
	ever := map[types.PaperID]bool{}

	randID := func() types.PaperID { return types.PaperID(fmt.Sprintf("W%d", rng.IntN(60))) }
	outcomes := []types.Outcome{types.OutcomeProcessed, types.OutcomeSkipped, types.OutcomeFailed}

	for step := 0; step < 400; step++ {
		switch rng.IntN(3) {
		case 0:
			added, err := s.Enqueue(randID(), randID())
			require.NoError(t, err)
			for _, id := range added {
				assert.False(t, ever[id], "id %s re-queued", id)
				ever[id] = true
			}
		default:
			id, ok := s.Claim()
			if !ok {
				continue
			}
			res := types.Result{ID: id, Outcome: outcomes[rng.IntN(3)], Reason: "r"}
			if res.Outcome == types.OutcomeProcessed {
				res.Neighbors = []types.PaperID{randID(), randID(), randID()}
			}
			added, err := s.Complete(res)
			require.NoError(t, err)
			for _, n := range added {
				assert.False(t, ever[n], "id %s re-queued", n)
				ever[n] = true
			}
		}
		require.NoError(t, validate(s.Snapshot()))
	}

	st, err := Load(s.Path())
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), st)
}
