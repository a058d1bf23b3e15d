// Package trace records dispatched calls and service snapshots in SQLite
// for later audit. Stub calls are recorded like any other so audits can
// tell acknowledged no-ops from implemented behavior.
package trace

import (
	"context"
	"database/sql"
	"encoding/hex"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/result"
	"github.com/wippyai/hle/service"
)

// Store is a call trace backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and creates if needed) the trace database at path.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseStore, "trace path is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "create trace directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindNotInitialized, err, "open sqlite")
	}
	// a single connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.PhaseStore, errors.KindNotInitialized, err, "set busy_timeout")
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Bootstrap creates tables and indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
  id          TEXT PRIMARY KEY,
  registry    TEXT NOT NULL,
  service     TEXT NOT NULL,
  command     INTEGER NOT NULL,
  name        TEXT,
  known       INTEGER NOT NULL,
  stub        INTEGER NOT NULL,
  result      INTEGER NOT NULL,
  duration_ns INTEGER NOT NULL,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
  id         TEXT PRIMARY KEY,
  registry   TEXT NOT NULL,
  digest     TEXT NOT NULL,
  state      BLOB NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS calls_service_command_idx ON calls(service, command);`,
		`CREATE INDEX IF NOT EXISTS snapshots_registry_idx ON snapshots(registry);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.PhaseStore, errors.KindNotInitialized, err, "bootstrap sqlite")
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Call is one recorded dispatch.
type Call struct {
	CreatedAt time.Time
	ID        string
	Registry  string
	Service   string
	Name      string
	Command   uint32
	Result    result.Code
	Duration  time.Duration
	Known     bool
	Stub      bool
}

// Record stores one dispatch.
func (s *Store) Record(ctx context.Context, registry string, info service.CallInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, registry, service, command, name, known, stub, result, duration_ns, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), registry, info.Service, int64(info.Command), info.Name,
		boolInt(info.Known), boolInt(info.Stub), int64(info.Result), info.Duration.Nanoseconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "insert call")
	}
	return nil
}

// Observer returns a call observer that records into the store under
// registry. Write failures are logged, never surfaced to the guest.
func (s *Store) Observer(registry uuid.UUID) service.CallObserver {
	return &observer{store: s, registry: registry.String()}
}

type observer struct {
	store    *Store
	registry string
}

func (o *observer) OnCall(ctx context.Context, info service.CallInfo) {
	if err := o.store.Record(ctx, o.registry, info); err != nil {
		o.store.logger.Warn("trace write failed", zap.Error(err))
	}
}

// Calls returns the most recent calls, newest first.
func (s *Store) Calls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, registry, service, command, name, known, stub, result, duration_ns, created_at
FROM calls ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "query calls")
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var (
			c                       Call
			name                    sql.NullString
			command, rc, durationNs int64
			known, stub             int
			created                 string
		)
		if err := rows.Scan(&c.ID, &c.Registry, &c.Service, &command, &name, &known, &stub, &rc, &durationNs, &created); err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "scan call")
		}
		c.Command = uint32(command)
		c.Name = name.String
		c.Known, c.Stub = known != 0, stub != 0
		c.Result = result.Code(rc)
		c.Duration = time.Duration(durationNs)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CommandCount aggregates calls to one command.
type CommandCount struct {
	Service string
	Name    string
	Command uint32
	Count   int
}

// StubCounts returns how often each stubbed command was called, most
// frequent first.
func (s *Store) StubCounts(ctx context.Context) ([]CommandCount, error) {
	return s.counts(ctx, `SELECT service, command, COALESCE(name, ''), COUNT(*) AS n FROM calls
WHERE stub = 1 GROUP BY service, command ORDER BY n DESC, service, command`)
}

// UnknownCounts returns how often each unimplemented command was called.
func (s *Store) UnknownCounts(ctx context.Context) ([]CommandCount, error) {
	return s.counts(ctx, `SELECT service, command, '', COUNT(*) AS n FROM calls
WHERE known = 0 GROUP BY service, command ORDER BY n DESC, service, command`)
}

func (s *Store) counts(ctx context.Context, query string) ([]CommandCount, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "query counts")
	}
	defer rows.Close()

	var out []CommandCount
	for rows.Next() {
		var c CommandCount
		var command int64
		if err := rows.Scan(&c.Service, &command, &c.Name, &c.Count); err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "scan count")
		}
		c.Command = uint32(command)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveSnapshot stores an encoded registry snapshot and returns its digest.
func (s *Store) SaveSnapshot(ctx context.Context, registry string, state []byte) (string, error) {
	sum := blake3.Sum256(state)
	digest := "blake3:" + hex.EncodeToString(sum[:])
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, registry, digest, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), registry, digest, state, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "insert snapshot")
	}
	return digest, nil
}

// LatestSnapshot returns the newest snapshot stored for registry.
func (s *Store) LatestSnapshot(ctx context.Context, registry string) ([]byte, string, error) {
	var state []byte
	var digest string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, digest FROM snapshots WHERE registry = ? ORDER BY rowid DESC LIMIT 1`,
		registry).Scan(&state, &digest)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, "", errors.NotFound(errors.PhaseStore, "snapshot for registry", registry)
	}
	if err != nil {
		return nil, "", errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "query snapshot")
	}
	return state, digest, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
