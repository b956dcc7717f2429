// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package frontier is the durable traversal state: the FIFO queue and the
// processed, skipped and failed sets. It is the single source of truth for
// whether a paper has been seen. Every mutation is persisted atomically
// before it becomes visible.
package frontier

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/internal/paperid"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// DefaultFileName is the state file inside a project directory.
const DefaultFileName = "bfs_queue.json"

// Store guards the traversal state. Claims are in memory only: a claimed
// id stays in the persisted queue until Complete commits its outcome, so a
// crash mid-stage re-processes it on the next run.
type Store struct {
	mu       sync.Mutex
	path     string
	state    types.StateFile
	members  map[types.PaperID]types.Membership
	inFlight map[types.PaperID]bool

	resetCorrupt bool
	log          *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithResetCorrupt lets Open move a corrupt state file aside and start
// empty instead of refusing to open.
func WithResetCorrupt(reset bool) Option {
	return func(s *Store) { s.resetCorrupt = reset }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open loads the state at path into memory. A missing file starts an empty
// state that is first written on the first mutation.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		inFlight: map[types.PaperID]bool{},
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	st, err := Load(path)
	if err != nil {
		if !crawlerr.IsCorrupt(err) || !s.resetCorrupt {
			return nil, err
		}
		aside, mvErr := moveAside(path)
		if mvErr != nil {
			return nil, fmt.Errorf("%w (reset failed: %v)", err, mvErr)
		}
		s.log.Warn("traversal state was corrupt; starting empty", "path", path, "moved_to", aside, "error", err)
		st = emptyState()
	}

	s.state = st
	s.members = index(st)
	s.publish()
	return s, nil
}

func index(st types.StateFile) map[types.PaperID]types.Membership {
	m := make(map[types.PaperID]types.Membership, len(st.Queue)+len(st.Processed)+len(st.Skipped)+len(st.Failed))
	for _, id := range st.Queue {
		m[types.PaperID(id)] = types.MemberQueued
	}
	for _, id := range st.Processed {
		m[types.PaperID(id)] = types.MemberProcessed
	}
	for id := range st.Skipped {
		m[types.PaperID(id)] = types.MemberSkipped
	}
	for id := range st.Failed {
		m[types.PaperID(id)] = types.MemberFailed
	}
	return m
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Enqueue normalizes ids and appends the ones never seen before, in order.
// It returns the ids actually added; the state is persisted only when that
// list is non-empty.
func (s *Store) Enqueue(ids ...types.PaperID) ([]types.PaperID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.fresh(ids, "")
	if len(added) == 0 {
		return nil, nil
	}

	next := cloneState(s.state)
	for _, id := range added {
		next.Queue = append(next.Queue, string(id))
	}
	if err := save(s.path, next); err != nil {
		return nil, err
	}

	s.state = next
	for _, id := range added {
		s.members[id] = types.MemberQueued
	}
	s.publish()
	return added, nil
}

// fresh returns the normalized ids that are in none of the four
// collections, skipping exclude and duplicates within ids. Caller holds mu.
func (s *Store) fresh(ids []types.PaperID, exclude types.PaperID) []types.PaperID {
	var out []types.PaperID
	batch := map[types.PaperID]bool{}
	for _, raw := range ids {
		id := paperid.Normalize(string(raw))
		if id.IsZero() || id == exclude || batch[id] {
			continue
		}
		if _, seen := s.members[id]; seen {
			continue
		}
		batch[id] = true
		out = append(out, id)
	}
	return out
}

// Claim returns the first queued id that is not already in flight and
// marks it in flight. ok is false when every queued id is claimed.
func (s *Store) Claim() (id types.PaperID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range s.state.Queue {
		pid := types.PaperID(raw)
		if s.inFlight[pid] {
			continue
		}
		s.inFlight[pid] = true
		s.publish()
		return pid, true
	}
	return "", false
}

// Release drops the in-flight mark without recording an outcome, leaving
// the id queued.
func (s *Store) Release(id types.PaperID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	s.publish()
}

// Complete commits a terminal outcome for a claimed id: the id leaves the
// queue for its terminal set and unseen neighbors are appended. The new
// state is persisted before it replaces the in-memory one; on a write
// failure nothing changes and the error is returned. It returns the
// neighbors that were enqueued.
func (s *Store) Complete(res types.Result) ([]types.PaperID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := res.ID
	if s.members[id] != types.MemberQueued || !s.inFlight[id] {
		return nil, fmt.Errorf("completing %s: not claimed", id)
	}

	next := cloneState(s.state)
	if i := slices.Index(next.Queue, string(id)); i >= 0 {
		next.Queue = slices.Delete(next.Queue, i, i+1)
	}

	var member types.Membership
	switch res.Outcome {
	case types.OutcomeProcessed:
		next.Processed = append(next.Processed, string(id))
		member = types.MemberProcessed
	case types.OutcomeSkipped:
		next.Skipped[string(id)] = res.Reason
		member = types.MemberSkipped
	case types.OutcomeFailed:
		next.Failed[string(id)] = res.Reason
		member = types.MemberFailed
	default:
		return nil, fmt.Errorf("completing %s: unknown outcome %q", id, res.Outcome)
	}

	var added []types.PaperID
	if res.Outcome == types.OutcomeProcessed {
		added = s.fresh(res.Neighbors, id)
		for _, n := range added {
			next.Queue = append(next.Queue, string(n))
		}
	}

	if err := save(s.path, next); err != nil {
		return nil, err
	}

	s.state = next
	s.members[id] = member
	for _, n := range added {
		s.members[n] = types.MemberQueued
	}
	delete(s.inFlight, id)
	s.publish()
	return added, nil
}

// Counts returns the current collection sizes. Pending includes in-flight
// ids, which are still queued.
func (s *Store) Counts() types.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

func (s *Store) countsLocked() types.Counts {
	c := s.state.Counts()
	c.InFlight = len(s.inFlight)
	return c
}

// Snapshot returns a deep copy of the committed state.
func (s *Store) Snapshot() types.StateFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Lookup reports where id sits. For queued ids position is its 0-based
// queue index; for skipped and failed ids reason is the recorded reason.
func (s *Store) Lookup(id types.PaperID) (member types.Membership, reason string, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = paperid.Normalize(string(id))
	m, ok := s.members[id]
	if !ok {
		return types.MemberNone, "", -1
	}
	switch m {
	case types.MemberQueued:
		if s.inFlight[id] {
			m = types.MemberInFlight
		}
		return m, "", slices.Index(s.state.Queue, string(id))
	case types.MemberSkipped:
		return m, s.state.Skipped[string(id)], -1
	case types.MemberFailed:
		return m, s.state.Failed[string(id)], -1
	}
	return m, "", -1
}

func (s *Store) publish() {
	if s.metrics == nil {
		return
	}
	s.metrics.Frontier(s.countsLocked())
}
