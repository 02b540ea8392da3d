package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/dshills/revgate/internal/review"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store records finished runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		path,
	)
	return openDSN(dsn)
}

func openDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// Migrations and saves share a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Meta is run context that lives outside the report.
type Meta struct {
	Head     string
	Branch   string
	Provider string
	Model    string
}

// Run is one stored run without its verdicts.
type Run struct {
	ID               string
	StartedAt        time.Time
	Stage            review.Stage
	Overall          review.Overall
	Interrupted      bool
	Duration         time.Duration
	Head             string
	Branch           string
	Provider         string
	Model            string
	VerdictCount     int
	RejectCount      int
	SkippedCount     int
	UnavailableCount int
}

// Save stores a finalized report and its verdicts in one transaction.
func (s *Store) Save(ctx context.Context, r *review.RunReport, meta Meta) error {
	if !r.Finalized() {
		return fmt.Errorf("save run %s: report is not finalized", r.RunID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	const runQuery = `
		INSERT INTO runs (id, started_at, stage, overall, interrupted, duration_ms,
			head, branch, skipped_count, unavailable_count, provider, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, runQuery,
		r.RunID, r.Timestamp.UTC().Format(timeLayout), string(r.Stage), string(r.OverallDecision),
		boolInt(r.Interrupted), r.Duration.Milliseconds(),
		meta.Head, meta.Branch, len(r.Skipped), len(r.Unavailable), meta.Provider, meta.Model,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	const verdictQuery = `
		INSERT INTO verdicts (run_id, position, paths, decision, critical, truncated, cached, rationale, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, v := range r.Verdicts {
		_, err := tx.ExecContext(ctx, verdictQuery,
			r.RunID, i, strings.Join(v.SubjectPaths, "\n"), string(v.Decision),
			boolInt(v.Critical), boolInt(v.Truncated), boolInt(v.Cached),
			v.Rationale, v.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert verdict %d of run %s: %w", i, r.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT r.id, r.started_at, r.stage, r.overall, r.interrupted, r.duration_ms,
			r.head, r.branch, r.provider, r.model, r.skipped_count, r.unavailable_count,
			COUNT(v.position),
			COALESCE(SUM(CASE WHEN v.decision = 'REJECT' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN verdicts v ON v.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run         Run
			startedAt   string
			stage       string
			overall     string
			interrupted int
			durationMs  int64
		)
		err := rows.Scan(
			&run.ID, &startedAt, &stage, &overall, &interrupted, &durationMs,
			&run.Head, &run.Branch, &run.Provider, &run.Model, &run.SkippedCount, &run.UnavailableCount,
			&run.VerdictCount, &run.RejectCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		run.Stage = review.Stage(stage)
		run.Overall = review.Overall(overall)
		run.Interrupted = interrupted != 0
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Verdicts returns the stored verdicts of a run in report order.
func (s *Store) Verdicts(ctx context.Context, runID string) ([]review.Verdict, error) {
	const query = `
		SELECT paths, decision, critical, truncated, cached, rationale, duration_ms
		FROM verdicts
		WHERE run_id = ?
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []review.Verdict
	for rows.Next() {
		var (
			v                          review.Verdict
			paths, decision            string
			critical, truncated, cache int
			durationMs                 int64
		)
		if err := rows.Scan(&paths, &decision, &critical, &truncated, &cache, &v.Rationale, &durationMs); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v.SubjectPaths = strings.Split(paths, "\n")
		v.Decision = review.Decision(decision)
		v.Critical = critical != 0
		v.Truncated = truncated != 0
		v.Cached = cache != 0
		v.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, v)
	}
	return out, rows.Err()
}

// Prune deletes runs older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
