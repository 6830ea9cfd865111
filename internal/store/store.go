// Package store handles SQLite persistence.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrRunNotFound is returned when no run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// Store wraps SQLite access for optimize runs and cached corpus tables.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			strategy TEXT NOT NULL,
			objective TEXT NOT NULL,
			seed INTEGER NOT NULL,
			restarts INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			depth INTEGER NOT NULL,
			corpus_path TEXT NOT NULL,
			initial_layout TEXT NOT NULL,
			final_layout TEXT NOT NULL,
			initial_score REAL NOT NULL,
			score REAL NOT NULL,
			swaps INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			cancelled INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_scores (
			run_id TEXT NOT NULL,
			restart INTEGER NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (run_id, restart)
		);`,
		`CREATE TABLE IF NOT EXISTS table_cache (
			cache_key TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			data BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a finished run and its restart scores. An empty ID is
// replaced with a new UUID; the stored ID is returned.
func (s *Store) InsertRun(ctx context.Context, run model.RunRecord, scores []float64) (id string, err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	cancelled := 0
	if run.Cancelled {
		cancelled = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, strategy, objective, seed, restarts, workers, depth, corpus_path, initial_layout, final_layout, initial_score, score, swaps, duration_ms, cancelled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.Format(time.RFC3339Nano),
		run.EndedAt.Format(time.RFC3339Nano),
		run.Strategy,
		run.Objective,
		run.Seed,
		run.Restarts,
		run.Workers,
		run.Depth,
		run.CorpusPath,
		run.Initial,
		run.Final,
		run.InitialScore,
		run.Score,
		int64(run.Swaps),
		run.DurationMs,
		cancelled,
	)
	if err != nil {
		return "", err
	}

	if len(scores) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_scores (run_id, restart, score) VALUES (?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, v := range scores {
			if _, err := stmt.ExecContext(ctx, run.ID, i, v); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

const runColumns = `id, started_at, ended_at, strategy, objective, seed, restarts, workers, depth, corpus_path,
	initial_layout, final_layout, initial_score, score, swaps, duration_ms, cancelled`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.RunRecord, error) {
	var run model.RunRecord
	var startedAt, endedAt string
	var swaps int64
	var cancelled int
	if err := row.Scan(&run.ID, &startedAt, &endedAt, &run.Strategy, &run.Objective, &run.Seed,
		&run.Restarts, &run.Workers, &run.Depth, &run.CorpusPath, &run.Initial, &run.Final,
		&run.InitialScore, &run.Score, &swaps, &run.DurationMs, &cancelled); err != nil {
		return run, err
	}
	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return run, err
	}
	if run.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return run, err
	}
	run.Swaps = uint64(swaps)
	run.Cancelled = cancelled != 0
	return run, nil
}

// ListRuns returns runs filtered by cfg, oldest first. Last keeps only the
// most recent runs.
func (s *Store) ListRuns(ctx context.Context, cfg model.RunsConfig) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Strategy != "" {
		clauses = append(clauses, "strategy = ?")
		args = append(args, cfg.Strategy)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT * FROM (
		SELECT %s FROM runs
		WHERE %s
		ORDER BY ended_at DESC
		LIMIT ?
	) ORDER BY ended_at ASC`, runColumns, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns the run with id. A unique prefix of the ID is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	if id == "" {
		return model.RunRecord{}, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM runs WHERE id LIKE ? || '%%' LIMIT 2`, runColumns), id)
	if err != nil {
		return model.RunRecord{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var found []model.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return model.RunRecord{}, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return model.RunRecord{}, err
	}
	switch len(found) {
	case 0:
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	default:
		return model.RunRecord{}, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListRunScores returns the restart scores of a run in restart order.
func (s *Store) ListRunScores(ctx context.Context, runID string) ([]model.RunScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT restart, score FROM run_scores WHERE run_id = ? ORDER BY restart ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var scores []model.RunScore
	for rows.Next() {
		var sc model.RunScore
		if err := rows.Scan(&sc.Restart, &sc.Score); err != nil {
			return nil, err
		}
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

// SaveTables stores zstd-compressed frequency tables under key, replacing
// any previous entry.
func (s *Store) SaveTables(ctx context.Context, key string, tables *freq.Tables) error {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := tables.Encode(zw); err != nil {
		if cerr := zw.Close(); cerr != nil {
			// Best-effort close after encode failure.
			_ = cerr
		}
		return fmt.Errorf("failed to encode tables: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush zstd writer: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO table_cache (cache_key, created_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET created_at = excluded.created_at, data = excluded.data`,
		key, time.Now().UTC().Format(time.RFC3339Nano), buf.Bytes())
	return err
}

// LoadTables returns the tables cached under key. ok is false when no
// entry exists.
func (s *Store) LoadTables(ctx context.Context, key string) (tables *freq.Tables, ok bool, err error) {
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM table_cache WHERE cache_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()
	tables, err = freq.Decode(zr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cached tables: %w", err)
	}
	return tables, true, nil
}

// PruneTables deletes cached tables older than cutoff and returns the
// number of deleted entries.
func (s *Store) PruneTables(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM table_cache WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
