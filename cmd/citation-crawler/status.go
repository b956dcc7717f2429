// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-crawler/internal/dataset"
	"github.com/pdiddy/citation-crawler/internal/frontier"
	"github.com/pdiddy/citation-crawler/internal/project"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show frontier counts and dataset size",
	Long: `Status reads bfs_queue.json and the dataset database without
contacting any service. --reasons groups skipped and failed papers by the
leading part of their reason.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("reasons", false, "group skipped and failed papers by reason")
	statusCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(statusCmd)
}

// ReasonCount is one row of a reason breakdown.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type statusReport struct {
	Project string              `json:"project"`
	Counts  types.Counts        `json:"counts"`
	Dataset dataset.RecordStats `json:"dataset"`
	LastRun *dataset.Run        `json:"last_run,omitempty"`
	Skipped []ReasonCount       `json:"skipped_reasons,omitempty"`
	Failed  []ReasonCount       `json:"failed_reasons,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := project.Load(projectDir(cmd))
	if err != nil {
		return err
	}
	st, err := frontier.Load(p.StatePath())
	if err != nil {
		return err
	}
	withReasons, _ := cmd.Flags().GetBool("reasons")
	asJSON, _ := cmd.Flags().GetBool("json")

	report := statusReport{Project: p.Name, Counts: st.Counts()}
	if withReasons {
		report.Skipped = groupReasons(st.Skipped)
		report.Failed = groupReasons(st.Failed)
	}

	db, err := openDatasetIfExists(p)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		ctx := context.Background()
		if report.Dataset, err = db.Stats(ctx); err != nil {
			return err
		}
		runs, err := db.Runs(ctx, 1)
		if err != nil {
			return err
		}
		if len(runs) == 1 {
			report.LastRun = &runs[0]
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStatus(out, report)
	return nil
}

func printStatus(w io.Writer, r statusReport) {
	c := r.Counts
	fmt.Fprintf(w, "Project %s\n", r.Project)
	fmt.Fprintf(w, "  pending:   %d\n", c.Pending)
	fmt.Fprintf(w, "  processed: %d\n", c.Processed)
	fmt.Fprintf(w, "  skipped:   %d\n", c.Skipped)
	fmt.Fprintf(w, "  failed:    %d\n", c.Failed)
	fmt.Fprintf(w, "  total:     %d\n", c.Total())
	fmt.Fprintf(w, "Dataset: %d records, %d data points\n", r.Dataset.Records, r.Dataset.Items)
	if lr := r.LastRun; lr != nil {
		stop := lr.Stop
		if stop == "" {
			stop = "unfinished"
		}
		fmt.Fprintf(w, "Last run %s (%s): %s, %d processed, %d skipped, %d failed\n",
			lr.ID, lr.StartedAt.Local().Format("2006-01-02 15:04"), stop, lr.Processed, lr.Skipped, lr.Failed)
	}

	printReasons(w, "Skipped", r.Skipped)
	printReasons(w, "Failed", r.Failed)
}

func printReasons(w io.Writer, title string, rows []ReasonCount) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s by reason:\n", title)
	for _, rc := range rows {
		fmt.Fprintf(w, "  %6d  %s\n", rc.Count, rc.Reason)
	}
}

// groupReasons counts reasons by their leading token, the part before the
// first colon, so "metadata_fetch_failed: <detail>" rows collapse. Rows
// are ordered by count, then reason.
func groupReasons(m map[string]string) []ReasonCount {
	counts := make(map[string]int)
	for _, reason := range m {
		key, _, _ := strings.Cut(reason, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			key = "(none)"
		}
		counts[key]++
	}
	rows := make([]ReasonCount, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, ReasonCount{Reason: k, Count: n})
	}
	slices.SortFunc(rows, func(a, b ReasonCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	return rows
}
