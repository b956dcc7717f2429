// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package crawl owns the traversal run loop: it claims queued papers from
// the frontier, runs them through a bounded pool of stage executors and
// commits each outcome before taking more work.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopCancelled StopReason = "cancelled"
	StopBudget    StopReason = "budget"
	StopError     StopReason = "error"
)

const defaultWorkers = 5

// Frontier is the state store the engine drives.
type Frontier interface {
	Claim() (types.PaperID, bool)
	Complete(res types.Result) ([]types.PaperID, error)
	Release(id types.PaperID)
	Counts() types.Counts
}

// Processor runs one paper to a terminal outcome.
type Processor interface {
	Process(ctx context.Context, id types.PaperID) types.Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, id types.PaperID) types.Result

func (f ProcessorFunc) Process(ctx context.Context, id types.PaperID) types.Result {
	return f(ctx, id)
}

// Options bounds a run.
type Options struct {
	// Workers is the pool width W.
	Workers int
	// MaxPapers stops dispatch once this many papers were claimed; 0 means
	// no budget.
	MaxPapers int
	// RunID tags log lines; a fresh UUID is used when empty.
	RunID string
	// Metrics counts committed outcomes; nil disables it.
	Metrics *metrics.Metrics
}

// Summary reports what a run did.
type Summary struct {
	RunID     string        `json:"run_id"`
	Claimed   int           `json:"claimed"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Enqueued  int           `json:"enqueued"`
	Stop      StopReason    `json:"stop"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining types.Counts  `json:"remaining"`
}

// Engine drives one run at a time; Run must not be called concurrently.
type Engine struct {
	frontier Frontier
	proc     Processor
	opts     Options
	log      *slog.Logger

	// OnResult, when set, is called after each outcome is committed. It is
	// called from worker goroutines.
	OnResult func(res types.Result, enqueued []types.PaperID)
}

// NewEngine wires a frontier to a processor.
func NewEngine(f Frontier, p Processor, opts Options, log *slog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{frontier: f, proc: p, opts: opts, log: log}
}

// Run dispatches work until the queue is empty with nothing in flight, the
// budget is spent, ctx is cancelled, or an outcome cannot be persisted.
// In-flight papers always finish and commit before Run returns; they run
// on a context that ignores the cancellation of ctx.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	runID := e.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := e.log.With("run_id", runID)
	start := time.Now()

	sum := Summary{RunID: runID}
	var mu sync.Mutex // guards sum counters and fatal

	var fatal error
	failFatal := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if fatal == nil {
			fatal = err
		}
	}
	fatalErr := func() error {
		mu.Lock()
		defer mu.Unlock()
		return fatal
	}

	sem := semaphore.NewWeighted(int64(e.opts.Workers))
	workCtx := context.WithoutCancel(ctx)
	wake := make(chan struct{}, 1)
	var inflight atomic.Int64
	var wg sync.WaitGroup

	stop := StopExhausted
	log.Info("run started", "workers", e.opts.Workers, "max_papers", e.opts.MaxPapers, "pending", e.frontier.Counts().Pending)

	for {
		if fatalErr() != nil {
			stop = StopError
			break
		}
		if ctx.Err() != nil {
			stop = StopCancelled
			break
		}
		if e.opts.MaxPapers > 0 && sum.Claimed >= e.opts.MaxPapers {
			stop = StopBudget
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			stop = StopCancelled
			break
		}
		if fatalErr() != nil {
			sem.Release(1)
			stop = StopError
			break
		}

		// Read before claiming: a unit finishing between a failed claim and
		// this load may already have enqueued neighbors.
		running := inflight.Load()
		id, ok := e.frontier.Claim()
		if !ok {
			sem.Release(1)
			if running == 0 {
				stop = StopExhausted
				break
			}
			// A running unit may still enqueue neighbors.
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				stop = StopCancelled
			}
			break
		}

		mu.Lock()
		sum.Claimed++
		mu.Unlock()
		inflight.Add(1)
		wg.Add(1)
		go func(id types.PaperID) {
			defer wg.Done()
			defer sem.Release(1)

			if err := e.runOne(workCtx, log, id, &sum, &mu); err != nil {
				failFatal(err)
			}
			inflight.Add(-1)
			select {
			case wake <- struct{}{}:
			default:
			}
		}(id)
	}

	wg.Wait()
	if fatalErr() != nil {
		stop = StopError
	}

	sum.Stop = stop
	sum.Elapsed = time.Since(start)
	sum.Remaining = e.frontier.Counts()

	log.Info("run finished", "stop", stop, "claimed", sum.Claimed,
		"processed", sum.Processed, "skipped", sum.Skipped, "failed", sum.Failed,
		"enqueued", sum.Enqueued, "pending", sum.Remaining.Pending, "elapsed", sum.Elapsed.Round(time.Millisecond))

	if fatal != nil {
		return sum, fmt.Errorf("run %s stopped: %w", runID, fatal)
	}
	return sum, nil
}

// runOne processes id and commits the outcome. Only a commit failure is
// returned; every per-paper problem is already folded into the result.
func (e *Engine) runOne(ctx context.Context, log *slog.Logger, id types.PaperID, sum *Summary, mu *sync.Mutex) error {
	res := e.process(ctx, log, id)
	res.ID = id

	added, err := e.frontier.Complete(res)
	if err != nil {
		log.Error("committing outcome", "paper_id", id, "outcome", res.Outcome, "error", err)
		e.frontier.Release(id)
		return fmt.Errorf("committing %s: %w", id, err)
	}

	e.opts.Metrics.Outcome(res.Outcome)

	mu.Lock()
	switch res.Outcome {
	case types.OutcomeProcessed:
		sum.Processed++
	case types.OutcomeSkipped:
		sum.Skipped++
	case types.OutcomeFailed:
		sum.Failed++
	}
	sum.Enqueued += len(added)
	mu.Unlock()

	log.Info("paper done", "paper_id", id, "outcome", res.Outcome, "reason", res.Reason, "enqueued", len(added))
	if e.OnResult != nil {
		e.OnResult(res, added)
	}
	return nil
}

// process guards the processor so a panic outside the executor's own
// recovery still ends as a failed outcome.
func (e *Engine) process(ctx context.Context, log *slog.Logger, id types.PaperID) (res types.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("processor panicked", "paper_id", id, "panic", r)
			res = types.Result{ID: id, Outcome: types.OutcomeFailed, Reason: fmt.Sprintf("%s: %v", types.ReasonInternalError, r)}
		}
	}()
	res = e.proc.Process(ctx, id)
	if res.Outcome == "" {
		res = types.Result{ID: id, Outcome: types.OutcomeFailed, Reason: types.ReasonInternalError + ": no outcome"}
	}
	return res
}

// ErrNothingQueued is returned by callers that refuse to run on an empty
// frontier.
var ErrNothingQueued = errors.New("nothing queued: seed the frontier first")
