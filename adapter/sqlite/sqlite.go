// Package sqlite implements adapter.Transactor over a single-writer
// embedded SQLite database (pure-Go driver, no CGO), giving cache.Cache,
// lock.Lock, and sharedlock.SharedLock a file-backed storage option for
// single-binary deployments via adapter/sqlshim.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/adapter/sqlshim"
	"github.com/prn-tf/warden/config"
)

// AdapterTag is the stable string tag this package exports for serde
// eligibility checks.
const AdapterTag adapter.AdapterTag = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS warden_rows (
	key        TEXT PRIMARY KEY,
	value      BLOB,
	owner      TEXT NOT NULL DEFAULT '',
	row_limit  INTEGER NOT NULL DEFAULT 0,
	slots      TEXT,
	expiration TEXT
)`

// DB wraps a sql.DB pool pinned to a single connection, so at most one
// transaction runs at a time. It implements adapter.Transactor, so it
// can be handed directly to sqlshim.NewCache, sqlshim.NewLock, or
// sqlshim.NewSharedLock.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and creates, if absent) the database file at cfg.Path
// with pragmas tuned for single-writer concurrency.
func Open(ctx context.Context, cfg config.SQLiteConfig, logger zerolog.Logger) (*DB, error) {
	connStr := fmt.Sprintf(
		"%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON",
		cfg.Path, cfg.JournalMode, cfg.BusyTimeout,
	)

	sqlDB, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// SQLite works best with a single writer; pinning the pool to one
	// connection serializes every transaction in this process and
	// avoids SQLITE_BUSY churn.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	logger.Info().Str("path", cfg.Path).Str("journal_mode", cfg.JournalMode).Msg("connected to SQLite")
	return &DB{db: sqlDB, logger: logger.With().Str("component", "adapter.sqlite").Logger()}, nil
}

// NewCacheAdapter wraps db as an adapter.CacheAdapter.
func NewCacheAdapter(db *DB) *sqlshim.CacheShim {
	return sqlshim.NewCache(db)
}

// NewLockAdapter wraps db as an adapter.LockAdapter.
func NewLockAdapter(db *DB) *sqlshim.LockShim {
	return sqlshim.NewLock(db)
}

// NewSharedLockAdapter wraps db as an adapter.SharedLockAdapter.
func NewSharedLockAdapter(db *DB) *sqlshim.SharedLockShim {
	return sqlshim.NewSharedLock(db)
}

// Init creates the backing table if it doesn't already exist.
func (db *DB) Init(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

// DeInit closes the database connection.
func (db *DB) DeInit(ctx context.Context) error {
	db.logger.Info().Msg("closing SQLite connection")
	return db.db.Close()
}

// Transaction runs fn inside a database/sql transaction opened with
// sql.LevelSerializable. It does not request BEGIN IMMEDIATE; one
// transaction at a time is guaranteed by the single-connection pool
// Open sets up, since a second Transaction call waits for that
// connection until the first commits or rolls back.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Tx) error) error {
	sqlTx, err := db.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	wrapped := &tx{sqlTx: sqlTx}
	if err := fn(ctx, wrapped); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("rollback failed after body error")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// RemoveAllExpired deletes every row past its expiration.
func (db *DB) RemoveAllExpired(ctx context.Context) (int64, error) {
	res, err := db.db.ExecContext(ctx, `DELETE FROM warden_rows WHERE expiration IS NOT NULL AND expiration < ?`, nowRFC3339())
	if err != nil {
		return 0, fmt.Errorf("sqlite: remove expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) Find(ctx context.Context, key string) (*adapter.Record, bool, error) {
	row := t.sqlTx.QueryRowContext(ctx, `SELECT value, owner, row_limit, slots, expiration FROM warden_rows WHERE key = ?`, key)

	var value []byte
	var owner string
	var limit int
	var slotsText *string
	var expirationText *string

	if err := row.Scan(&value, &owner, &limit, &slotsText, &expirationText); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlite: find: %w", err)
	}

	rec := &adapter.Record{Value: value, Owner: owner, Limit: limit}
	if expirationText != nil {
		parsed, err := time.Parse(time.RFC3339Nano, *expirationText)
		if err != nil {
			return nil, false, fmt.Errorf("sqlite: parse expiration: %w", err)
		}
		rec.Expiration = &parsed
	}
	if slotsText != nil {
		slots, err := decodeSlots(*slotsText)
		if err != nil {
			return nil, false, err
		}
		rec.Slots = slots
	}
	return rec, true, nil
}

func (t *tx) Upsert(ctx context.Context, key string, rec adapter.Record) error {
	var slotsText *string
	if rec.Slots != nil {
		encoded, err := encodeSlots(rec.Slots)
		if err != nil {
			return err
		}
		slotsText = &encoded
	}
	var expirationText *string
	if rec.Expiration != nil {
		s := rec.Expiration.UTC().Format(time.RFC3339Nano)
		expirationText = &s
	}

	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO warden_rows (key, value, owner, row_limit, slots, expiration)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			owner = excluded.owner,
			row_limit = excluded.row_limit,
			slots = excluded.slots,
			expiration = excluded.expiration`,
		key, rec.Value, rec.Owner, rec.Limit, slotsText, expirationText)
	if err != nil {
		return fmt.Errorf("sqlite: upsert: %w", err)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, key string) error {
	if _, err := t.sqlTx.ExecContext(ctx, `DELETE FROM warden_rows WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return nil
}

func (t *tx) DeleteByKeyPrefix(ctx context.Context, prefix string) error {
	if _, err := t.sqlTx.ExecContext(ctx, `DELETE FROM warden_rows WHERE key LIKE ? ESCAPE '\'`, escapeLikePattern(prefix)+"%"); err != nil {
		return fmt.Errorf("sqlite: delete by prefix: %w", err)
	}
	return nil
}

// escapeLikePattern backslash-escapes the LIKE metacharacters %, _ and \
// in prefix so a caller-controlled key prefix is matched literally
// instead of as a wildcard pattern.
func escapeLikePattern(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func encodeSlots(slots map[string]*time.Time) (string, error) {
	b, err := json.Marshal(slots)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode slots: %w", err)
	}
	return string(b), nil
}

func decodeSlots(s string) (map[string]*time.Time, error) {
	var slots map[string]*time.Time
	if err := json.Unmarshal([]byte(s), &slots); err != nil {
		return nil, fmt.Errorf("sqlite: decode slots: %w", err)
	}
	return slots, nil
}

var (
	_ adapter.Transactor = (*DB)(nil)
	_ adapter.Tx         = (*tx)(nil)
)
