package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Store is the room database: agents, personas, life days, intersections
// and settings in one SQLite file.
type Store struct {
	db   *sqlx.DB
	once sync.Once
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serialises writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			description TEXT NOT NULL DEFAULT '',
			api_key TEXT NOT NULL UNIQUE,
			claim_token TEXT NOT NULL,
			claim_status TEXT NOT NULL,
			owner_email TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			last_active INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_last_active ON agents(last_active);`,
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL UNIQUE REFERENCES agents(id) ON DELETE CASCADE,
			agent_name TEXT NOT NULL,
			display_name TEXT NOT NULL,
			birth_place_json TEXT NOT NULL,
			birth_date INTEGER NOT NULL,
			framework_json TEXT NOT NULL,
			framework_version INTEGER NOT NULL,
			history_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS life_days (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			agent_name TEXT NOT NULL,
			round_number INTEGER NOT NULL,
			fictional_date INTEGER NOT NULL,
			fictional_age INTEGER NOT NULL,
			city TEXT NOT NULL,
			country TEXT NOT NULL,
			lat REAL,
			lon REAL,
			narrative TEXT NOT NULL,
			photo_json TEXT NOT NULL,
			thought_bubble TEXT NOT NULL,
			interactions_json TEXT NOT NULL,
			is_deviation INTEGER NOT NULL,
			deviation_context TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			UNIQUE (agent_id, round_number)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_life_days_agent_name ON life_days(agent_name COLLATE NOCASE);`,
		`CREATE INDEX IF NOT EXISTS idx_life_days_created ON life_days(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_life_days_fictional ON life_days(fictional_date);`,
		`CREATE TABLE IF NOT EXISTS intersections (
			id TEXT PRIMARY KEY,
			initiating_agent TEXT NOT NULL,
			other_agent TEXT NOT NULL,
			initiating_life_day_id TEXT NOT NULL,
			other_life_day_id TEXT NOT NULL,
			fictional_date_approx TEXT NOT NULL,
			location TEXT NOT NULL,
			type TEXT NOT NULL,
			narrative TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_intersections_agents ON intersections(initiating_agent, other_agent);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			flickr_api_key TEXT,
			updated_at INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
