// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-crawler/internal/dataset"
	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/internal/openalex"
	"github.com/pdiddy/citation-crawler/internal/project"
	"github.com/pdiddy/citation-crawler/internal/ratelimit"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// signalContext is cancelled on the first SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newGraphClient(cfg types.GraphConfig, m *metrics.Metrics, log *slog.Logger) *openalex.Client {
	limiter := ratelimit.New(cfg.Rate, cfg.ContactEmail, ratelimit.WithMetrics(m))
	log.Info("graph client ready", "base_url", cfg.BaseURL, "tier", limiter.Tier(), "rps", limiter.Rate())
	return openalex.New(cfg, limiter,
		openalex.WithMetrics(m),
		openalex.WithLogger(log),
	)
}

// openDatasetIfExists opens the project database without creating it.
// It returns nil when no run has created it yet.
func openDatasetIfExists(p *project.Project) (*dataset.Store, error) {
	if _, err := os.Stat(p.DatasetPath()); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return dataset.Open(p.DatasetPath())
}
