// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-crawler/internal/acquire"
	"github.com/pdiddy/citation-crawler/internal/config"
	"github.com/pdiddy/citation-crawler/internal/crawl"
	"github.com/pdiddy/citation-crawler/internal/dataset"
	"github.com/pdiddy/citation-crawler/internal/frontier"
	"github.com/pdiddy/citation-crawler/internal/llm"
	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/internal/pipeline"
	"github.com/pdiddy/citation-crawler/internal/project"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl the frontier until it is empty or a limit is reached",
	Long: `Run claims queued papers and drives each through metadata lookup,
download, relevance check and extraction with a pool of workers. Relevant
papers enqueue their references, related works and citing works.

The run stops when the queue is empty, --max-papers papers were taken,
--timeout elapsed, or on Ctrl-C. Papers already in flight finish and are
recorded before the command exits. Every outcome is saved to
bfs_queue.json immediately, so a later run resumes where this one stopped.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("workers", 0, "concurrent papers (default from config, 5)")
	runCmd.Flags().Int("max-papers", 0, "stop after taking this many papers (0: no limit)")
	runCmd.Flags().Duration("timeout", 0, "stop dispatching after this long (0: no limit)")
	runCmd.Flags().Bool("reset-corrupt", false, "move an unreadable state file aside and start empty")
	runCmd.Flags().String("metrics-out", "", "write Prometheus metrics to this file when the run ends")
	runCmd.Flags().Bool("json", false, "print the run summary as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	p, err := project.Load(projectDir(cmd))
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Crawl.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("max-papers") {
		cfg.Crawl.MaxPapers, _ = cmd.Flags().GetInt("max-papers")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	schema, err := p.LoadSchema()
	if err != nil {
		return err
	}

	resetCorrupt, _ := cmd.Flags().GetBool("reset-corrupt")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	metricsOut, _ := cmd.Flags().GetString("metrics-out")
	asJSON, _ := cmd.Flags().GetBool("json")

	runID := uuid.NewString()
	log := slog.Default().With("run_id", runID)
	m := metrics.New(nil)

	store, err := frontier.Open(p.StatePath(),
		frontier.WithResetCorrupt(resetCorrupt),
		frontier.WithLogger(log),
		frontier.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	if store.Counts().Pending == 0 {
		return crawl.ErrNothingQueued
	}

	ai, err := llm.New(cfg.AI, llm.WithLogger(log))
	if err != nil {
		return err
	}
	db, err := dataset.Open(p.DatasetPath())
	if err != nil {
		return err
	}
	defer db.Close()

	graph := newGraphClient(cfg.Graph, m, log)
	downloader := acquire.NewDownloader(p.ContentRoot(), cfg.Acquisition,
		acquire.WithMetrics(m),
		acquire.WithLogger(log),
	)
	exec := pipeline.NewExecutor(graph, downloader, ai, ai, db, pipeline.Options{
		Criteria:          p.RelevanceCriteria,
		Instructions:      p.ExtractionInstructions,
		Schema:            schema,
		CitingLimit:       cfg.Graph.CitingLimit,
		CapabilityTimeout: cfg.Crawl.CapabilityTimeout,
		CallTimeout:       cfg.Crawl.CallTimeout,
		RunID:             runID,
	}, pipeline.WithLogger(log), pipeline.WithMetrics(m))

	engine := crawl.NewEngine(store, exec, crawl.Options{
		Workers:   cfg.Crawl.Workers,
		MaxPapers: cfg.Crawl.MaxPapers,
		RunID:     runID,
		Metrics:   m,
	}, log)
	out := cmd.OutOrStdout()
	engine.OnResult = progressPrinter(out)

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}

	// The journal uses a fresh context so the final row lands after Ctrl-C.
	bg := context.WithoutCancel(ctx)
	if err := db.StartRun(bg, dataset.Run{
		ID:        runID,
		StartedAt: time.Now(),
		Workers:   cfg.Crawl.Workers,
		MaxPapers: cfg.Crawl.MaxPapers,
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %s: %d pending, %d workers\n", runID, store.Counts().Pending, cfg.Crawl.Workers)
	sum, runErr := engine.Run(ctx)

	if err := db.FinishRun(bg, journalEntry(sum)); err != nil {
		log.Error("recording run summary", "error", err)
	}
	if metricsOut != "" {
		if err := m.WriteTextfile(metricsOut); err != nil {
			log.Error("writing metrics", "path", metricsOut, "error", err)
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
	} else {
		printSummary(out, sum)
	}
	return runErr
}

// progressPrinter writes one line per committed outcome. Results arrive
// from worker goroutines.
func progressPrinter(w io.Writer) func(types.Result, []types.PaperID) {
	var mu sync.Mutex
	return func(res types.Result, enqueued []types.PaperID) {
		mu.Lock()
		defer mu.Unlock()
		switch res.Outcome {
		case types.OutcomeProcessed:
			fmt.Fprintf(w, "  processed %-14s +%d queued\n", res.ID, len(enqueued))
		default:
			fmt.Fprintf(w, "  %-9s %-14s %s\n", res.Outcome, res.ID, truncate(res.Reason, 80))
		}
	}
}

func printSummary(w io.Writer, s crawl.Summary) {
	fmt.Fprintf(w, "\nRun %s stopped: %s after %s\n", s.RunID, s.Stop, s.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "  claimed:   %d\n", s.Claimed)
	fmt.Fprintf(w, "  processed: %d\n", s.Processed)
	fmt.Fprintf(w, "  skipped:   %d\n", s.Skipped)
	fmt.Fprintf(w, "  failed:    %d\n", s.Failed)
	fmt.Fprintf(w, "  enqueued:  %d\n", s.Enqueued)
	fmt.Fprintf(w, "Frontier: %d pending, %d processed, %d skipped, %d failed\n",
		s.Remaining.Pending, s.Remaining.Processed, s.Remaining.Skipped, s.Remaining.Failed)
}

func journalEntry(s crawl.Summary) dataset.Run {
	return dataset.Run{
		ID:        s.RunID,
		Stop:      string(s.Stop),
		Claimed:   s.Claimed,
		Processed: s.Processed,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
		Enqueued:  s.Enqueued,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
