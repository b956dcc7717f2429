// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one paper through its stages: metadata, download,
// relevance check, extraction and expansion. Every per-paper error ends as
// a terminal outcome with a reason; nothing escapes to the caller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pdiddy/citation-crawler/internal/metrics"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// Stage names one step of the per-paper pipeline.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageMetadata   Stage = "metadata"
	StageDownload   Stage = "downloading"
	StageRelevance  Stage = "relevance_check"
	StageExtract    Stage = "extracting"
	StageExpand     Stage = "expanding"
)

// Failure reasons specific to extraction and record keeping.
const (
	ReasonExtractionFailed = "extraction_failed"
	ReasonSchemaInvalid    = "schema_validation_failed"
	ReasonRecordFailed     = "record_persist_failed"
	reasonNotRelevant      = "not relevant"
)

const (
	defaultCitingLimit       = 200
	defaultCapabilityTimeout = 5 * time.Minute
	defaultCallTimeout       = 2 * time.Minute
)

// Options carries the project inputs and per-call deadlines.
type Options struct {
	// Criteria is passed to the relevance judge.
	Criteria string
	// Instructions and Schema are passed to the extractor.
	Instructions string
	Schema       *Schema

	// CitingLimit caps the citing works fetched during expansion. A
	// negative value disables the citing lookup.
	CitingLimit int

	CapabilityTimeout time.Duration
	CallTimeout       time.Duration

	// RunID tags extraction records.
	RunID string
}

// Executor runs the stage machine. It is safe for concurrent use when its
// collaborators are.
type Executor struct {
	graph   Graph
	fetcher Fetcher
	judge   RelevanceJudge
	extract Extractor
	sink    RecordSink
	opts    Options

	log     *slog.Logger
	metrics *metrics.Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor wires the collaborators. sink may be nil when records need
// not be kept.
func NewExecutor(graph Graph, fetcher Fetcher, judge RelevanceJudge, extract Extractor, sink RecordSink, opts Options, eopts ...ExecutorOption) *Executor {
	if opts.CitingLimit == 0 {
		opts.CitingLimit = defaultCitingLimit
	}
	if opts.CapabilityTimeout <= 0 {
		opts.CapabilityTimeout = defaultCapabilityTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	e := &Executor{
		graph:   graph,
		fetcher: fetcher,
		judge:   judge,
		extract: extract,
		sink:    sink,
		opts:    opts,
		log:     slog.Default(),
	}
	for _, o := range eopts {
		o(e)
	}
	return e
}

// Process drives id to a terminal outcome. Neighbors are only set for a
// processed paper. A panic in any stage becomes a failed outcome.
func (e *Executor) Process(ctx context.Context, id types.PaperID) (res types.Result) {
	log := e.log.With("paper_id", id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("stage panicked", "panic", r, "stack", string(debug.Stack()))
			res = failed(id, fmt.Sprintf("%s: %v", types.ReasonInternalError, r))
		}
	}()
	log.Debug("stage", "stage", StageDiscovered)

	work, err := e.metadata(ctx, id)
	if err != nil {
		if crawlerr.IsNotFound(err) {
			return failed(id, types.ReasonNotFound)
		}
		return failed(id, withCause(types.ReasonMetadataFailed, err))
	}

	meta, err := e.download(ctx, work)
	if err != nil {
		log.Info("no usable content", "candidates", len(work.ContentURLs), "error", err)
		return failed(id, types.ReasonNoPDF)
	}

	verdict, err := e.relevance(ctx, work)
	if err != nil {
		return failed(id, withCause(types.ReasonRelevanceError, err))
	}
	if !verdict.Relevant {
		reason := strings.TrimSpace(verdict.Reason)
		if reason == "" {
			reason = reasonNotRelevant
		}
		log.Info("skipped", "reason", reason)
		return types.Result{ID: id, Outcome: types.OutcomeSkipped, Reason: reason}
	}

	if reason, ok := e.extraction(ctx, id, work, meta); !ok {
		return failed(id, reason)
	}

	neighbors := e.expand(ctx, work)
	log.Info("processed", "neighbors", len(neighbors))
	return types.Result{ID: id, Outcome: types.OutcomeProcessed, Neighbors: neighbors}
}

func (e *Executor) metadata(ctx context.Context, id types.PaperID) (types.Work, error) {
	defer e.timed(StageMetadata)()
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return e.graph.GetWork(ctx, id)
}

func (e *Executor) download(ctx context.Context, work types.Work) (types.PaperMetadata, error) {
	defer e.timed(StageDownload)()
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return e.fetcher.Fetch(ctx, work)
}

func (e *Executor) relevance(ctx context.Context, work types.Work) (types.Verdict, error) {
	defer e.timed(StageRelevance)()
	ctx, cancel := context.WithTimeout(ctx, e.opts.CapabilityTimeout)
	defer cancel()
	return e.judge.Judge(ctx, types.RelevanceRequest{
		ID:       work.ID,
		Title:    work.Title,
		Abstract: work.Abstract,
		Criteria: e.opts.Criteria,
	})
}

// extraction runs the extractor, validates its output and persists the
// record. It returns the failure reason when the paper cannot proceed.
func (e *Executor) extraction(ctx context.Context, id types.PaperID, work types.Work, meta types.PaperMetadata) (string, bool) {
	defer e.timed(StageExtract)()

	content, err := os.ReadFile(meta.PDFPath)
	if err != nil {
		e.log.Warn("reading downloaded content", "paper_id", id, "path", meta.PDFPath, "error", err)
		return types.ReasonNoPDF, false
	}

	cctx, cancel := context.WithTimeout(ctx, e.opts.CapabilityTimeout)
	defer cancel()
	data, err := e.extract.Extract(cctx, types.ExtractionRequest{
		ID:           id,
		Content:      content,
		Instructions: e.opts.Instructions,
		Schema:       e.opts.Schema.Raw(),
	})
	if err != nil {
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = ReasonExtractionFailed
		}
		return reason, false
	}
	if err := e.opts.Schema.Validate(data); err != nil {
		return withCause(ReasonSchemaInvalid, err), false
	}

	rec := types.ExtractionRecord{
		PaperID:     id,
		Title:       work.Title,
		Data:        data,
		Items:       countItems(data),
		RunID:       e.opts.RunID,
		ExtractedAt: time.Now().UTC(),
	}
	if e.sink != nil {
		if err := e.sink.PutRecord(ctx, rec); err != nil {
			return withCause(ReasonRecordFailed, err), false
		}
	}
	if rec.Items == 0 {
		e.log.Info("extraction found no data points", "paper_id", id)
	}
	return "", true
}

// expand collects references, then related works, then citing works. A
// failed citing lookup is logged and expansion continues without it.
func (e *Executor) expand(ctx context.Context, work types.Work) []types.PaperID {
	defer e.timed(StageExpand)()

	neighbors := make([]types.PaperID, 0, len(work.ReferencedWorks)+len(work.RelatedWorks))
	neighbors = append(neighbors, work.ReferencedWorks...)
	neighbors = append(neighbors, work.RelatedWorks...)

	if e.opts.CitingLimit > 0 {
		cctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()
		citing, err := e.graph.FindCitingWorks(cctx, work.ID, e.opts.CitingLimit)
		if err != nil {
			e.log.Warn("citing lookup failed", "paper_id", work.ID, "error", err)
		}
		neighbors = append(neighbors, citing...)
	}
	return neighbors
}

func (e *Executor) timed(stage Stage) func() {
	start := time.Now()
	return func() { e.metrics.Stage(string(stage), time.Since(start)) }
}

func failed(id types.PaperID, reason string) types.Result {
	return types.Result{ID: id, Outcome: types.OutcomeFailed, Reason: reason}
}

func withCause(reason string, err error) string {
	return reason + ": " + err.Error()
}
