package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Store keeps the wallet, the transaction log, live sessions and sync
// bookkeeping in one SQLite file.
type Store struct {
	db *sql.DB

	idMu         sync.Mutex
	entropy      *rand.Rand
	lastRevision int64
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}

	s.idMu.Lock()
	defer s.idMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

// nextRevision is wall-clock based so writers in other processes on the same
// device never reuse a revision for a destination.
func (s *Store) nextRevision() int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	rev := time.Now().UnixNano()
	if rev <= s.lastRevision {
		rev = s.lastRevision + 1
	}
	s.lastRevision = rev
	return rev
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallet (
		id      INTEGER PRIMARY KEY CHECK (id = 1),
		balance INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO wallet (id, balance) VALUES (1, 0);

	CREATE TABLE IF NOT EXISTS transactions (
		id      TEXT PRIMARY KEY,
		sync_id TEXT NOT NULL UNIQUE,
		ts      INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		amount  INTEGER NOT NULL,
		meta    TEXT,
		origin  TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts);

	CREATE TABLE IF NOT EXISTS sessions (
		destination TEXT PRIMARY KEY,
		data        TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pack_chains (
		destination TEXT PRIMARY KEY,
		count       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS consumption_log (
		id            TEXT PRIMARY KEY,
		ts            INTEGER NOT NULL,
		destination   TEXT NOT NULL,
		policy        TEXT NOT NULL,
		duration_ms   INTEGER NOT NULL,
		debt          INTEGER NOT NULL,
		justification TEXT NOT NULL DEFAULT '',
		allowed_url   TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sync_cursors (
		peer   TEXT PRIMARY KEY,
		cursor INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
