// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"
	"database/sql"
	"time"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
)

// Run is one entry of the run journal.
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Workers    int        `json:"workers"`
	MaxPapers  int        `json:"max_papers"`
	Stop       string     `json:"stop,omitempty"`
	Claimed    int        `json:"claimed"`
	Processed  int        `json:"processed"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Enqueued   int        `json:"enqueued"`
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, workers, max_papers) VALUES (?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.Workers, r.MaxPapers)
	if err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "recording run start",
			crawlerr.Field("run_id", r.ID))
	}
	return nil
}

// FinishRun stores the final tallies and stop reason of a started run.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	at := time.Now()
	if r.FinishedAt != nil {
		at = *r.FinishedAt
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, stop = ?, claimed = ?, processed = ?,
			skipped = ?, failed = ?, enqueued = ?
		WHERE run_id = ?`,
		at.UTC().Format(time.RFC3339Nano), r.Stop, r.Claimed, r.Processed,
		r.Skipped, r.Failed, r.Enqueued, r.ID)
	if err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "recording run finish",
			crawlerr.Field("run_id", r.ID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return crawlerr.New(crawlerr.CodeDatasetFailure, "run was never started",
			crawlerr.Field("run_id", r.ID))
	}
	return nil
}

// Runs returns the journal, most recent first. limit <= 0 returns all runs.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT run_id, started_at, finished_at, workers, max_papers, stop,
			claimed, processed, skipped, failed, enqueued
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "listing runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
			stop     sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Workers, &r.MaxPapers, &stop,
			&r.Claimed, &r.Processed, &r.Skipped, &r.Failed, &r.Enqueued); err != nil {
			return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "scanning run")
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "parsing started_at")
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "parsing finished_at")
			}
			r.FinishedAt = &t
		}
		r.Stop = stop.String
		out = append(out, r)
	}
	return out, rows.Err()
}
