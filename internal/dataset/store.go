// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dataset persists extraction records and the run journal in a
// SQLite database inside the project directory.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// DBFile is the database file name inside a project directory.
const DBFile = "dataset.db"

// Store manages the dataset SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and creates the schema if it
// does not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "creating dataset directory")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "opening database")
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "creating schema")
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			paper_id TEXT PRIMARY KEY,
			title TEXT,
			data TEXT NOT NULL,
			items INTEGER NOT NULL,
			run_id TEXT,
			extracted_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			workers INTEGER,
			max_papers INTEGER,
			stop TEXT,
			claimed INTEGER DEFAULT 0,
			processed INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			enqueued INTEGER DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// PutRecord inserts or replaces the record for rec.PaperID. A paper that is
// extracted again in a later run keeps only its latest record.
func (s *Store) PutRecord(ctx context.Context, rec types.ExtractionRecord) error {
	if rec.PaperID == "" {
		return crawlerr.New(crawlerr.CodeDatasetFailure, "record has no paper id")
	}
	if !json.Valid(rec.Data) {
		return crawlerr.New(crawlerr.CodeDatasetFailure, "record data is not valid JSON",
			crawlerr.FieldPaper(string(rec.PaperID)))
	}
	at := rec.ExtractedAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (paper_id, title, data, items, run_id, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			title = excluded.title,
			data = excluded.data,
			items = excluded.items,
			run_id = excluded.run_id,
			extracted_at = excluded.extracted_at`,
		string(rec.PaperID), rec.Title, string(rec.Data), rec.Items, rec.RunID,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "writing record",
			crawlerr.FieldPaper(string(rec.PaperID)))
	}
	return nil
}

// Record returns the stored record for id. The boolean is false when no
// record exists.
func (s *Store) Record(ctx context.Context, id types.PaperID) (types.ExtractionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT paper_id, title, data, items, run_id, extracted_at FROM records WHERE paper_id = ?`,
		string(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ExtractionRecord{}, false, nil
	}
	if err != nil {
		return types.ExtractionRecord{}, false, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "reading record",
			crawlerr.FieldPaper(string(id)))
	}
	return rec, true, nil
}

// Records returns every stored record ordered by extraction time.
func (s *Store) Records(ctx context.Context) ([]types.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id, title, data, items, run_id, extracted_at FROM records ORDER BY extracted_at, paper_id`)
	if err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "listing records")
	}
	defer rows.Close()

	var out []types.ExtractionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "scanning record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordStats holds aggregate counts over the records table.
type RecordStats struct {
	Records int `json:"records"`
	Items   int `json:"items"`
}

// Stats returns the number of records and the sum of their item counts.
func (s *Store) Stats(ctx context.Context) (RecordStats, error) {
	var st RecordStats
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(sum(items), 0) FROM records`).Scan(&st.Records, &st.Items)
	if err != nil {
		return RecordStats{}, crawlerr.Wrap(err, crawlerr.CodeDatasetFailure, "counting records")
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (types.ExtractionRecord, error) {
	var (
		id, data, at string
		title, runID sql.NullString
		rec          types.ExtractionRecord
	)
	if err := sc.Scan(&id, &title, &data, &rec.Items, &runID, &at); err != nil {
		return types.ExtractionRecord{}, err
	}
	rec.PaperID = types.PaperID(id)
	rec.Title = title.String
	rec.Data = json.RawMessage(data)
	rec.RunID = runID.String
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return types.ExtractionRecord{}, fmt.Errorf("parsing extracted_at %q: %w", at, err)
	}
	rec.ExtractedAt = t
	return rec, nil
}
