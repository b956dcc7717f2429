// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-crawler/internal/bibliography"
	"github.com/pdiddy/citation-crawler/internal/frontier"
	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/internal/paperid"
	"github.com/pdiddy/citation-crawler/internal/project"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

const defaultSeedResults = 25

var seedCmd = &cobra.Command{
	Use:   "seed [ids...]",
	Short: "Add starting papers to the frontier",
	Long: `Seed enqueues starting papers. Explicit identifiers may be OpenAlex
work ids (W2741809807), OpenAlex URLs or DOIs; they are resolved against
OpenAlex and unknown ones are reported. Without identifiers, or with
--query, the top search results for the query (default: search_query from
project.yaml) are enqueued. Papers already known to the frontier are
ignored. --dry-run prints the resolved works as CSL-YAML instead of
enqueueing them.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().String("query", "", "search query (default: search_query from project.yaml)")
	seedCmd.Flags().Int("max-results", defaultSeedResults, "number of search results to enqueue")
	seedCmd.Flags().Bool("dry-run", false, "print the works as CSL-YAML without enqueueing")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	p, err := project.Load(projectDir(cmd))
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) == 0 {
		query = p.SearchQuery
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if len(args) == 0 && query == "" {
		return crawlerr.New(crawlerr.CodeCLIInputInvalid,
			"nothing to seed: pass identifiers, --query, or set search_query in project.yaml")
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	log := slog.Default()
	graph := newGraphClient(cfg.Graph, metrics.New(nil), log)
	out := cmd.OutOrStdout()

	var works []types.Work
	if len(args) > 0 {
		requested := paperid.NormalizeAll(args)
		found, err := graph.BatchGetWorks(ctx, requested)
		if err != nil {
			return fmt.Errorf("resolving identifiers: %w", err)
		}
		for _, id := range requested {
			w, ok := found[id]
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "  not found: %s\n", id)
				continue
			}
			works = append(works, w)
		}
	}
	if query != "" {
		hits, err := graph.Search(ctx, query, maxResults)
		if err != nil {
			return fmt.Errorf("searching %q: %w", query, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Search %q returned %d works\n", query, len(hits))
		works = append(works, hits...)
	}

	if dryRun {
		return bibliography.WriteCSL(out, works)
	}
	seeds := make([]types.PaperID, len(works))
	for i, w := range works {
		seeds[i] = w.ID
	}

	store, err := frontier.Open(p.StatePath(), frontier.WithLogger(log))
	if err != nil {
		return err
	}
	added, err := store.Enqueue(seeds...)
	if err != nil {
		return err
	}

	c := store.Counts()
	fmt.Fprintf(out, "Enqueued %d new papers (%d already known). Queue: %d pending.\n",
		len(added), len(seeds)-len(added), c.Pending)
	return nil
}
