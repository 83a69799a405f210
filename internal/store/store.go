package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/santhosh-tekuri/jsonschema/v5"
	_ "modernc.org/sqlite"

	"github.com/dshills/prsum/internal/logging"
	"github.com/dshills/prsum/internal/summary"
)

//go:embed report.schema.json
var reportSchema string

var schema = jsonschema.MustCompileString("report.schema.json", reportSchema)

// ErrNotFound is returned when no stored report matches.
var ErrNotFound = errors.New("report not found")

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// lockRetry is how often Lock polls while another process holds the lock.
const lockRetry = 100 * time.Millisecond

// Store persists reports in SQLite.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
	log  *slog.Logger
}

// RunInfo summarises one stored report for listings.
type RunInfo struct {
	ID            string
	RepoRoot      string
	BaseBranch    string
	CurrentBranch string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Files         int
	Failed        int
}

// Open creates or opens the database at path and applies migrations.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{
		db:   db,
		path: path,
		lock: flock.New(path + ".lock"),
		log:  logging.Component(log, "store"),
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			repo_root TEXT NOT NULL,
			base_branch TEXT NOT NULL,
			current_branch TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			file_count INTEGER NOT NULL,
			failed_count INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS reports_repo_created ON reports (repo_root, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lock takes the store's cross-process lock and returns its release func.
// Commands that load, mutate and save a report hold it for the whole
// sequence.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	ok, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire store lock: %s is held by another process", s.lock.Path())
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("failed to release store lock", "error", err)
		}
	}, nil
}

// Save inserts or replaces the report.
func (s *Store) Save(ctx context.Context, report *summary.Report) error {
	snap := report.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := ValidatePayload(payload); err != nil {
		return err
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, repo_root, base_branch, current_branch, created_at, updated_at, file_count, failed_count, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			file_count = excluded.file_count,
			failed_count = excluded.failed_count,
			payload_json = excluded.payload_json
	`,
		snap.RunID,
		snap.Repo.Root,
		snap.BaseBranch,
		snap.CurrentBranch,
		snap.CreatedAt.UTC().Format(timeLayout),
		now,
		len(snap.Files),
		len(snap.Failed),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	s.log.Debug("report saved", logging.FieldRunID, snap.RunID, "failed", len(snap.Failed))
	return nil
}

// Load returns the report whose ID equals id or, failing that, the single
// report whose ID starts with id.
func (s *Store) Load(ctx context.Context, id string) (*summary.Report, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload_json FROM reports WHERE id = ? OR id LIKE ? || '%' ORDER BY id = ? DESC LIMIT 2`,
		id, id, id)
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	type match struct{ id, payload string }
	var found []match
	for rows.Next() {
		var m match
		if err := rows.Scan(&m.id, &m.payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case found[0].id == id || len(found) == 1:
		return Decode([]byte(found[0].payload))
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Latest returns the newest report for repoRoot. An empty repoRoot matches
// any repository.
func (s *Store) Latest(ctx context.Context, repoRoot string) (*summary.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM reports WHERE ? = '' OR repo_root = ? ORDER BY created_at DESC LIMIT 1`,
		repoRoot, repoRoot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest report: %w", err)
	}
	return Decode([]byte(payload))
}

// List returns the newest reports first. A non-positive limit lists all.
func (s *Store) List(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_root, base_branch, current_branch, created_at, updated_at, file_count, failed_count
		FROM reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info             RunInfo
			created, updated string
		)
		if err := rows.Scan(&info.ID, &info.RepoRoot, &info.BaseBranch, &info.CurrentBranch,
			&created, &updated, &info.Files, &info.Failed); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		info.CreatedAt = parseTime(created)
		info.UpdatedAt = parseTime(updated)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a stored report.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ValidatePayload checks a serialised report against the report schema.
func ValidatePayload(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid report JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("report failed schema validation: %w", err)
	}
	return nil
}

// Decode validates and decodes a serialised report.
func Decode(data []byte) (*summary.Report, error) {
	if err := ValidatePayload(data); err != nil {
		return nil, err
	}
	report := &summary.Report{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if err := report.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("stored report is inconsistent: %w", err)
	}
	return report, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
