// Package store implements C3: the durable, transactional, single-writer
// record store for sessions, approvals, prompts, checkpoints and stall
// alerts, grounded on the generic sql helper style this codebase already
// uses elsewhere for SQLite-backed components.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Config configures the on-disk database file.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
}

// Store wraps a single-writer SQLite connection pool. Open caps it at one
// open connection unless cfg.MaxOpenConns is larger, so by default every
// statement, reads included, is serialized through that one connection.
type Store struct {
	conn *sql.DB
	log  zerolog.Logger
	mu   sync.Mutex
}

// Open creates the parent directory for cfg.Path if needed, opens the
// SQLite file with WAL journaling and foreign keys on, and runs every
// registered migration idempotently.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if err := ensureDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("cannot create database directory: %w", err)
	}

	dsn := cfg.Path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot ping database: %w", err)
	}

	if err := runMigrations(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot run migrations: %w", err)
	}

	logger.Info().Str("path", cfg.Path).Msg("store opened")
	return &Store{conn: conn, log: logger}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the raw *sql.DB for components that need ad-hoc queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// WithTx serializes writers: the store-wide mutex is held for the duration
// of the transaction so concurrent writers queue rather than interleave.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
