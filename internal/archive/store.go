// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive keeps completed research runs in a SQLite database so
// reports can be listed and re-exported later. Only finished results are
// stored; chat sessions never outlive their run.
package archive

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

	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNotFound is returned by Get when no run matches.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguousID is returned by Get when an ID prefix matches several runs.
var ErrAmbiguousID = errors.New("run ID prefix is ambiguous")

const defaultListLimit = 20

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the run archive database.
type Store struct {
	db *sql.DB
}

// RunSummary is one row of List output.
type RunSummary struct {
	ID         string    `json:"id" yaml:"id"`
	Question   string    `json:"question" yaml:"question"`
	Rounds     int       `json:"rounds" yaml:"rounds"`
	Batches    int       `json:"batches" yaml:"batches"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Open opens or creates the archive at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("archive path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			rounds INTEGER NOT NULL,
			report TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			query TEXT NOT NULL,
			summary TEXT NOT NULL,
			key_points TEXT NOT NULL,
			sources TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save stores r, replacing any earlier copy with the same ID.
func (s *Store) Save(ctx context.Context, r *types.ResearchResult) error {
	if r.ID == "" {
		return errors.New("result has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, question, rounds, report, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			question=excluded.question, rounds=excluded.rounds, report=excluded.report,
			started_at=excluded.started_at, finished_at=excluded.finished_at`,
		r.ID, r.Question, r.RoundsExecuted, r.ReportMarkdown,
		formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE run_id = ?`, r.ID); err != nil {
		return fmt.Errorf("deleting old batches: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO batches (run_id, position, query, summary, key_points, sources)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, b := range r.Batches {
		keyPoints, err := json.Marshal(nonNil(b.KeyPoints))
		if err != nil {
			return fmt.Errorf("encoding key points: %w", err)
		}
		sources, err := json.Marshal(nonNil(b.Sources))
		if err != nil {
			return fmt.Errorf("encoding sources: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, i, b.Query, b.SummaryMarkdown, string(keyPoints), string(sources)); err != nil {
			return fmt.Errorf("inserting batch %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs first, at most limit of them (20 when
// limit <= 0).
func (s *Store) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.question, r.rounds, r.started_at, r.finished_at,
			(SELECT count(*) FROM batches b WHERE b.run_id = r.id)
		 FROM runs r
		 ORDER BY r.started_at DESC, r.id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var started, finished string
		if err := rows.Scan(&rs.ID, &rs.Question, &rs.Rounds, &started, &finished, &rs.Batches); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rs.StartedAt = parseTime(started)
		rs.FinishedAt = parseTime(finished)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Get loads a run by ID or by a unique ID prefix.
func (s *Store) Get(ctx context.Context, id string) (*types.ResearchResult, error) {
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	r := &types.ResearchResult{ID: fullID}
	var started, finished string
	err = s.db.QueryRowContext(ctx,
		`SELECT question, rounds, report, started_at, finished_at FROM runs WHERE id = ?`, fullID,
	).Scan(&r.Question, &r.RoundsExecuted, &r.ReportMarkdown, &started, &finished)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", fullID, err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)

	rows, err := s.db.QueryContext(ctx,
		`SELECT query, summary, key_points, sources FROM batches WHERE run_id = ? ORDER BY position`, fullID)
	if err != nil {
		return nil, fmt.Errorf("loading batches: %w", err)
	}
	defer rows.Close()

	r.Batches = []types.ResearchBatch{}
	for rows.Next() {
		var b types.ResearchBatch
		var keyPoints, sources string
		if err := rows.Scan(&b.Query, &b.SummaryMarkdown, &keyPoints, &sources); err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		if err := json.Unmarshal([]byte(keyPoints), &b.KeyPoints); err != nil {
			return nil, fmt.Errorf("decoding key points: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &b.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources: %w", err)
		}
		r.Batches = append(r.Batches, b)
	}
	return r, rows.Err()
}

func (s *Store) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id = ? OR substr(id, 1, length(?)) = ? ORDER BY id LIMIT 2`, id, id, id)
	if err != nil {
		return "", fmt.Errorf("resolving run ID: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("scanning run ID: %w", err)
		}
		if m == id {
			return m, nil
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
