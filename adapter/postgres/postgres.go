// Package postgres implements adapter.Transactor over a pgx connection
// pool, giving cache.Cache, lock.Lock, and sharedlock.SharedLock a
// PostgreSQL-backed storage option via adapter/sqlshim.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/warden/adapter"
	"github.com/prn-tf/warden/adapter/sqlshim"
	"github.com/prn-tf/warden/config"
)

// AdapterTag is the stable string tag this package exports for serde
// eligibility checks.
const AdapterTag adapter.AdapterTag = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS warden_rows (
	key         TEXT PRIMARY KEY,
	value       BYTEA,
	owner       TEXT NOT NULL DEFAULT '',
	row_limit   INTEGER NOT NULL DEFAULT 0,
	slots       JSONB,
	expiration  TIMESTAMPTZ
)`

// DB wraps a pgx connection pool. It implements adapter.Transactor, so
// it can be handed directly to sqlshim.NewCache, sqlshim.NewLock, or
// sqlshim.NewSharedLock, and via those, used as a CacheAdapter,
// LockAdapter, or SharedLockAdapter.
type DB struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open creates a connection pool from cfg and verifies connectivity.
func Open(ctx context.Context, cfg config.PostgresConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("database", cfg.Database).Msg("connected to PostgreSQL")
	return &DB{pool: pool, logger: logger.With().Str("component", "adapter.postgres").Logger()}, nil
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
	_, err := db.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("postgres: init schema: %w", err)
	}
	return nil
}

// DeInit closes the connection pool.
func (db *DB) DeInit(ctx context.Context) error {
	db.pool.Close()
	db.logger.Info().Msg("connection pool closed")
	return nil
}

// Transaction runs fn inside a SERIALIZABLE transaction, committing on
// success and rolling back on any error or panic.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx adapter.Tx) error) error {
	pgxTx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = pgxTx.Rollback(ctx)
			panic(p)
		}
	}()

	wrapped := &tx{pgxTx: pgxTx}
	if err := fn(ctx, wrapped); err != nil {
		if rbErr := pgxTx.Rollback(ctx); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("rollback failed after body error")
		}
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// RemoveAllExpired deletes every row past its expiration, outside any
// caller-visible transaction — used by cache.Sweeper.
func (db *DB) RemoveAllExpired(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM warden_rows WHERE expiration IS NOT NULL AND expiration < now()`)
	if err != nil {
		return 0, fmt.Errorf("postgres: remove expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// tx adapts a pgx.Tx to adapter.Tx.
type tx struct {
	pgxTx pgx.Tx
}

func (t *tx) Find(ctx context.Context, key string) (*adapter.Record, bool, error) {
	row := t.pgxTx.QueryRow(ctx, `SELECT value, owner, row_limit, slots, expiration FROM warden_rows WHERE key = $1`, key)

	var value []byte
	var owner string
	var limit int
	var slotsJSON []byte
	var expiration *time.Time

	if err := row.Scan(&value, &owner, &limit, &slotsJSON, &expiration); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres: find: %w", err)
	}

	rec := &adapter.Record{Value: value, Owner: owner, Limit: limit, Expiration: expiration}
	if slotsJSON != nil {
		slots, err := decodeSlots(slotsJSON)
		if err != nil {
			return nil, false, err
		}
		rec.Slots = slots
	}
	return rec, true, nil
}

func (t *tx) Upsert(ctx context.Context, key string, rec adapter.Record) error {
	var slotsJSON []byte
	if rec.Slots != nil {
		encoded, err := encodeSlots(rec.Slots)
		if err != nil {
			return err
		}
		slotsJSON = encoded
	}

	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO warden_rows (key, value, owner, row_limit, slots, expiration)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			owner = EXCLUDED.owner,
			row_limit = EXCLUDED.row_limit,
			slots = EXCLUDED.slots,
			expiration = EXCLUDED.expiration`,
		key, rec.Value, rec.Owner, rec.Limit, slotsJSON, rec.Expiration)
	if err != nil {
		return fmt.Errorf("postgres: upsert: %w", err)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, key string) error {
	_, err := t.pgxTx.Exec(ctx, `DELETE FROM warden_rows WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

func (t *tx) DeleteByKeyPrefix(ctx context.Context, prefix string) error {
	_, err := t.pgxTx.Exec(ctx, `DELETE FROM warden_rows WHERE key LIKE $1 ESCAPE '\'`, escapeLikePattern(prefix)+"%")
	if err != nil {
		return fmt.Errorf("postgres: delete by prefix: %w", err)
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

func encodeSlots(slots map[string]*time.Time) ([]byte, error) {
	b, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode slots: %w", err)
	}
	return b, nil
}

func decodeSlots(b []byte) (map[string]*time.Time, error) {
	var slots map[string]*time.Time
	if err := json.Unmarshal(b, &slots); err != nil {
		return nil, fmt.Errorf("postgres: decode slots: %w", err)
	}
	return slots, nil
}

var (
	_ adapter.Transactor = (*DB)(nil)
	_ adapter.Tx         = (*tx)(nil)
)
