// runlog.go records build runs and their per-stage outcomes in an on-disk SQLite ledger.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the ledger's name inside the outputs directory.
const FileName = "runs.sqlite"

const (
	createRunsStmt = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    command TEXT,
    branch TEXT,
    toolchain TEXT,
    exit_code INTEGER,
    error TEXT
);`
	createStageResultsStmt = `
CREATE TABLE IF NOT EXISTS stage_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id),
    build_type TEXT,
    stage TEXT,
    exit_code INTEGER,
    fatal INTEGER,
    duration_ms INTEGER,
    error TEXT,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_results_run ON stage_results(run_id);`
	insertStageStmt = `INSERT INTO stage_results(run_id, build_type, stage, exit_code, fatal, duration_ms, error, recorded_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`
)

// Run is one ledger row of the runs table.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Command    string
	Branch     string
	Toolchain  string
	ExitCode   int
	Error      string
}

// StageResult is one executed (build type, stage) pair.
type StageResult struct {
	RunID     int64
	BuildType string
	Stage     string
	ExitCode  int
	Fatal     bool
	Duration  time.Duration
	Error     string
}

// Ledger persists runs into SQLite.
type Ledger struct {
	db     *sql.DB
	insert *sql.Stmt
	now    func() time.Time
}

// Open creates (if needed) and opens the ledger at path.
func Open(path string) (*Ledger, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("ledger path cannot be empty")
	}
	dir := filepath.Dir(p)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, stmt := range []string{`PRAGMA busy_timeout=5000;`, createRunsStmt, createStageResultsStmt} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	stmt, err := db.PrepareContext(ctx, insertStageStmt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert statement: %w", err)
	}
	return &Ledger{db: db, insert: stmt, now: time.Now}, nil
}

// Close releases database resources.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	if l.insert != nil {
		err = errors.Join(err, l.insert.Close())
	}
	if l.db != nil {
		err = errors.Join(err, l.db.Close())
	}
	return err
}

// Begin inserts a run row and returns its id.
func (l *Ledger) Begin(ctx context.Context, command, branch string) (int64, error) {
	if l == nil {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx, `INSERT INTO runs(started_at, command, branch) VALUES(?, ?, ?)`,
		l.now().UTC().Format(time.RFC3339Nano), command, branch)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// SetToolchain records the toolchain root a run resolved.
func (l *Ledger) SetToolchain(ctx context.Context, runID int64, root string) error {
	if l == nil || runID == 0 {
		return nil
	}
	_, err := l.db.ExecContext(ctx, `UPDATE runs SET toolchain = ? WHERE id = ?`, root, runID)
	return err
}

// Record stores one stage result.
func (l *Ledger) Record(ctx context.Context, r StageResult) error {
	if l == nil || r.RunID == 0 {
		return nil
	}
	fatal := 0
	if r.Fatal {
		fatal = 1
	}
	_, err := l.insert.ExecContext(ctx, r.RunID, r.BuildType, r.Stage, r.ExitCode, fatal, r.Duration.Milliseconds(), r.Error, l.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert stage result: %w", err)
	}
	return nil
}

// Finish closes a run with its exit code and error text.
func (l *Ledger) Finish(ctx context.Context, runID int64, exitCode int, runErr error) error {
	if l == nil || runID == 0 {
		return nil
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := l.db.ExecContext(ctx, `UPDATE runs SET finished_at = ?, exit_code = ?, error = ? WHERE id = ?`,
		l.now().UTC().Format(time.RFC3339Nano), exitCode, msg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `SELECT id, started_at, COALESCE(finished_at, ''), COALESCE(command, ''), COALESCE(branch, ''), COALESCE(toolchain, ''), COALESCE(exit_code, -1), COALESCE(error, '') FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Command, &r.Branch, &r.Toolchain, &r.ExitCode, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stages returns the stage results of runID in execution order.
func (l *Ledger) Stages(ctx context.Context, runID int64) ([]StageResult, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT run_id, COALESCE(build_type, ''), COALESCE(stage, ''), exit_code, fatal, duration_ms, COALESCE(error, '') FROM stage_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()
	var out []StageResult
	for rows.Next() {
		var r StageResult
		var fatal int
		var ms int64
		if err := rows.Scan(&r.RunID, &r.BuildType, &r.Stage, &r.ExitCode, &fatal, &ms, &r.Error); err != nil {
			return nil, err
		}
		r.Fatal = fatal != 0
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
