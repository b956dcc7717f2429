// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

type fakeGraph struct {
	works     map[types.PaperID]types.Work
	citing    map[types.PaperID][]types.PaperID
	citingErr error
	getErr    error
}

func (g *fakeGraph) GetWork(_ context.Context, id types.PaperID) (types.Work, error) {
	if g.getErr != nil {
		return types.Work{}, g.getErr
	}
	w, ok := g.works[id]
	if !ok {
		return types.Work{}, crawlerr.New(crawlerr.CodeGraphNotFound, "not found")
	}
	return w, nil
}

func (g *fakeGraph) FindCitingWorks(_ context.Context, id types.PaperID, _ int) ([]types.PaperID, error) {
	if g.citingErr != nil {
		return nil, g.citingErr
	}
	return g.citing[id], nil
}

// fakeFetcher writes a file for works that have at least one candidate.
type fakeFetcher struct{ dir string }

func (f fakeFetcher) Fetch(_ context.Context, w types.Work) (types.PaperMetadata, error) {
	if len(w.ContentURLs) == 0 {
		return types.PaperMetadata{}, crawlerr.New(crawlerr.CodeContentUnavailable, "no content")
	}
	path := filepath.Join(f.dir, string(w.ID)+".pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		return types.PaperMetadata{}, err
	}
	return types.PaperMetadata{Work: w, PDFPath: path, SourceURL: w.ContentURLs[0]}, nil
}

type memSink struct {
	mu      sync.Mutex
	records []types.ExtractionRecord
	err     error
}

func (s *memSink) PutRecord(_ context.Context, rec types.ExtractionRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func relevantJudge() JudgeFunc {
	return func(context.Context, types.RelevanceRequest) (types.Verdict, error) {
		return types.Verdict{Relevant: true, Reason: "on topic"}, nil
	}
}

func staticExtractor(out string) ExtractFunc {
	return func(context.Context, types.ExtractionRequest) (json.RawMessage, error) {
		return json.RawMessage(out), nil
	}
}

func newTestExecutor(t *testing.T, g *fakeGraph, judge RelevanceJudge, ex Extractor, sink RecordSink, opts Options) *Executor {
	t.Helper()
	return NewExecutor(g, fakeFetcher{dir: t.TempDir()}, judge, ex, sink, opts)
}

func TestProcess_DownloadFailureIsNoPDF(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1"}}}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[]`), nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.Result{ID: "W1", Outcome: types.OutcomeFailed, Reason: "no_pdf"}, res)
}

func TestProcess_NotRelevantIsSkippedWithoutNeighbors(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{
		"W2": {ID: "W2", ContentURLs: []string{"u"}, ReferencedWorks: []types.PaperID{"W10"}},
	}}
	var extracted bool
	judge := JudgeFunc(func(_ context.Context, req types.RelevanceRequest) (types.Verdict, error) {
		assert.Equal(t, "must study birds", req.Criteria)
		return types.Verdict{Relevant: false, Reason: "review article"}, nil
	})
	ex := ExtractFunc(func(context.Context, types.ExtractionRequest) (json.RawMessage, error) {
		extracted = true
		return nil, nil
	})
	e := newTestExecutor(t, g, judge, ex, nil, Options{Criteria: "must study birds"})

	res := e.Process(context.Background(), "W2")
	assert.Equal(t, types.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "review article", res.Reason)
	assert.Empty(t, res.Neighbors)
	assert.False(t, extracted)
}

func TestProcess_EmptyExtractionStillProcessed(t *testing.T) {
	g := &fakeGraph{
		works: map[types.PaperID]types.Work{
			"W3": {ID: "W3", Title: "Three", ContentURLs: []string{"u"},
				ReferencedWorks: []types.PaperID{"W4"}, RelatedWorks: []types.PaperID{"W6"}},
		},
		citing: map[types.PaperID][]types.PaperID{"W3": {"W5"}},
	}
	sink := &memSink{}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[]`), sink, Options{RunID: "run-1"})

	res := e.Process(context.Background(), "W3")
	assert.Equal(t, types.OutcomeProcessed, res.Outcome)
	assert.Equal(t, []types.PaperID{"W4", "W6", "W5"}, res.Neighbors, "references, related, citing")

	require.Len(t, sink.records, 1)
	assert.Equal(t, 0, sink.records[0].Items)
	assert.Equal(t, "run-1", sink.records[0].RunID)
	assert.Equal(t, "Three", sink.records[0].Title)
}

func TestProcess_NotFound(t *testing.T) {
	e := newTestExecutor(t, &fakeGraph{}, relevantJudge(), staticExtractor(`[]`), nil, Options{})
	res := e.Process(context.Background(), "W404")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, types.ReasonNotFound, res.Reason)
}

func TestProcess_MetadataFailure(t *testing.T) {
	g := &fakeGraph{getErr: crawlerr.New(crawlerr.CodeGraphTransient, "HTTP 503 after 5 attempts")}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[]`), nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, "metadata_fetch_failed: HTTP 503 after 5 attempts", res.Reason)
}

func TestProcess_JudgeError(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	judge := JudgeFunc(func(context.Context, types.RelevanceRequest) (types.Verdict, error) {
		return types.Verdict{}, errors.New("model overloaded")
	})
	e := newTestExecutor(t, g, judge, staticExtractor(`[]`), nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, "relevance_check_failed: model overloaded", res.Reason)
}

func TestProcess_JudgeTimeout(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	judge := JudgeFunc(func(ctx context.Context, _ types.RelevanceRequest) (types.Verdict, error) {
		<-ctx.Done()
		return types.Verdict{}, ctx.Err()
	})
	e := newTestExecutor(t, g, judge, staticExtractor(`[]`), nil, Options{CapabilityTimeout: 10 * time.Millisecond})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "deadline exceeded")
}

func TestProcess_ExtractionErrorReasonPassesThrough(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	ex := ExtractFunc(func(_ context.Context, req types.ExtractionRequest) (json.RawMessage, error) {
		assert.Equal(t, []byte("%PDF-1.4"), req.Content)
		return nil, errors.New("pdf has no text layer")
	})
	e := newTestExecutor(t, g, relevantJudge(), ex, nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.Result{ID: "W1", Outcome: types.OutcomeFailed, Reason: "pdf has no text layer"}, res)
}

func TestProcess_SchemaMismatchFails(t *testing.T) {
	schema, err := CompileSchema([]byte(`{
		"type": "array",
		"items": {"type": "object", "required": ["species"], "properties": {"species": {"type": "string"}}}
	}`))
	require.NoError(t, err)

	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	sink := &memSink{}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[{"count": 3}]`), sink, Options{Schema: schema})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, ReasonSchemaInvalid)
	assert.Empty(t, sink.records)
}

func TestProcess_InvalidJSONFails(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`{"oops"`), nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "invalid JSON")
}

func TestProcess_RecordPersistFailure(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[1]`), &memSink{err: errors.New("disk full")}, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, "record_persist_failed: disk full", res.Reason)
}

func TestProcess_CitingFailureStillProcessed(t *testing.T) {
	g := &fakeGraph{
		works: map[types.PaperID]types.Work{
			"W1": {ID: "W1", ContentURLs: []string{"u"}, ReferencedWorks: []types.PaperID{"W2"}},
		},
		citingErr: errors.New("rate limited"),
	}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[]`), nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeProcessed, res.Outcome)
	assert.Equal(t, []types.PaperID{"W2"}, res.Neighbors)
}

func TestProcess_CitingDisabled(t *testing.T) {
	g := &fakeGraph{
		works:  map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}},
		citing: map[types.PaperID][]types.PaperID{"W1": {"W9"}},
	}
	e := newTestExecutor(t, g, relevantJudge(), staticExtractor(`[]`), nil, Options{CitingLimit: -1})

	res := e.Process(context.Background(), "W1")
	assert.Empty(t, res.Neighbors)
}

func TestProcess_PanicBecomesInternalError(t *testing.T) {
	g := &fakeGraph{works: map[types.PaperID]types.Work{"W1": {ID: "W1", ContentURLs: []string{"u"}}}}
	judge := JudgeFunc(func(context.Context, types.RelevanceRequest) (types.Verdict, error) {
		panic("nil map")
	})
	e := newTestExecutor(t, g, judge, staticExtractor(`[]`), nil, Options{})

	res := e.Process(context.Background(), "W1")
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Equal(t, "internal_error: nil map", res.Reason)
}

func TestCountItems(t *testing.T) {
	assert.Equal(t, 0, countItems(json.RawMessage(`null`)))
	assert.Equal(t, 0, countItems(json.RawMessage(`[]`)))
	assert.Equal(t, 2, countItems(json.RawMessage(`[1, 2]`)))
	assert.Equal(t, 3, countItems(json.RawMessage(`{"rows": [1, 2, 3], "n": 3}`)))
	assert.Equal(t, 1, countItems(json.RawMessage(`{"n": 3}`)))
	assert.Equal(t, 0, countItems(json.RawMessage(`{}`)))
}

func TestSchemaValidate(t *testing.T) {
	s, err := CompileSchema([]byte(`{"type": "object", "required": ["n"], "properties": {"n": {"type": "integer"}}}`))
	require.NoError(t, err)

	assert.NoError(t, s.Validate(json.RawMessage(`{"n": 4}`)))
	assert.Error(t, s.Validate(json.RawMessage(`{"n": "four"}`)))
	assert.Error(t, s.Validate(json.RawMessage(`{}`)))

	var none *Schema
	assert.NoError(t, none.Validate(json.RawMessage(`{"anything": true}`)))
	assert.Error(t, none.Validate(json.RawMessage(`{`)))

	_, err = CompileSchema([]byte("  "))
	assert.Error(t, err)
}
