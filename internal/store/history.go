// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store persists conversation history in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/provider"
	"github.com/traylinx/tess/internal/util"
)

// HistoryTable holds one row per message.
const HistoryTable = "tess_history"

// HistoryStore keeps the messages of each session in sequence order.
type HistoryStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the database described by cfg and creates the schema. A relative
// sqlite path is resolved against the state directory.
func Open(ctx context.Context, cfg config.HistoryConfig, state *util.StateDir) (*HistoryStore, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case config.HistoryPostgres:
		driverName, dsn = "pgx", cfg.DSN
	case config.HistorySQLite:
		path := filepath.Join(state.Root(), "history.db")
		if cfg.DSN != "" {
			path = state.Resolve(cfg.DSN)
		}
		if err := util.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		driverName, dsn = "sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000"
	default:
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	s := New(db, cfg.Driver)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. driver selects the placeholder style.
func New(db *sql.DB, driver string) *HistoryStore {
	return &HistoryStore{db: db, driver: driver}
}

// bind rewrites ? placeholders to $n for postgres.
func (s *HistoryStore) bind(query string) string {
	if s.driver != config.HistoryPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Init creates the history table when it does not exist.
func (s *HistoryStore) Init(ctx context.Context) error {
	schema := `CREATE TABLE IF NOT EXISTS ` + HistoryTable + ` (
		session_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Load returns up to limit of the most recent messages of sessionID, oldest first.
func (s *HistoryStore) Load(ctx context.Context, sessionID string, limit int) ([]provider.Message, error) {
	query := "SELECT role, content FROM " + HistoryTable + " WHERE session_id = ? ORDER BY seq DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, s.bind(query), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var out []provider.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, provider.Message{Role: provider.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Append stores msgs after the existing messages of sessionID. When limit is positive,
// older messages beyond the newest limit are deleted in the same transaction.
func (s *HistoryStore) Append(ctx context.Context, sessionID string, limit int, msgs ...provider.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	query := "SELECT COALESCE(MAX(seq), 0) FROM " + HistoryTable + " WHERE session_id = ?"
	if err := tx.QueryRowContext(ctx, s.bind(query), sessionID).Scan(&last); err != nil {
		return fmt.Errorf("failed to read history sequence: %w", err)
	}

	insert := s.bind("INSERT INTO " + HistoryTable + " (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	now := time.Now().UTC()
	for i, m := range msgs {
		if _, err := tx.ExecContext(ctx, insert, sessionID, last+int64(i)+1, string(m.Role), m.Content, now); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	if cutoff := last + int64(len(msgs)) - int64(limit); limit > 0 && cutoff > 0 {
		trim := "DELETE FROM " + HistoryTable + " WHERE session_id = ? AND seq <= ?"
		if _, err := tx.ExecContext(ctx, s.bind(trim), sessionID, cutoff); err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// Clear deletes every message of sessionID.
func (s *HistoryStore) Clear(ctx context.Context, sessionID string) error {
	query := "DELETE FROM " + HistoryTable + " WHERE session_id = ?"
	if _, err := s.db.ExecContext(ctx, s.bind(query), sessionID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
