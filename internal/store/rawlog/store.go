package rawlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// RawLogStore keeps every webhook body exactly as it arrived, before any
// repair or normalization. It exists so malformed payloads can be
// replayed when the parser changes.
type RawLogStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// Entry is one raw webhook delivery.
type Entry struct {
	ID         int64  `json:"id"`
	TS         int64  `json:"ts"`
	Broker     string `json:"broker"`
	Identifier string `json:"identifier"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Body       string `json:"body"`
	ParseError string `json:"parse_error,omitempty"`
}

// Query filters Recent. Zero values match everything.
type Query struct {
	Broker     string
	Identifier string
	OnlyFailed bool
	Limit      int
}

// NewRawLogStore opens the audit database.
func NewRawLogStore(path string) (*RawLogStore, error) {
	if path == "" {
		return nil, fmt.Errorf("raw log path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &RawLogStore{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB reuses an already-open SQLite connection to avoid lock
// contention between stores sharing one file.
func (s *RawLogStore) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("raw log store not initialized")
	}
	if db == nil {
		return fmt.Errorf("external db required")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close closes the underlying DB.
func (s *RawLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record appends one delivery. parseErr may be empty.
func (s *RawLogStore) Record(ctx context.Context, e Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, fmt.Errorf("raw log store closed")
	}
	ts := e.TS
	if ts == 0 {
		ts = time.Now().Unix()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_webhook_logs (ts, broker, identifier, remote_addr, body, parse_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, strings.ToLower(e.Broker), e.Identifier, e.RemoteAddr, e.Body, e.ParseError, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("record raw webhook failed: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns deliveries newest first.
func (s *RawLogStore) Recent(ctx context.Context, q Query) ([]Entry, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("raw log store closed")
	}

	var (
		conds []string
		args  []any
	)
	if q.Broker != "" {
		conds = append(conds, "broker = ?")
		args = append(args, strings.ToLower(q.Broker))
	}
	if q.Identifier != "" {
		conds = append(conds, "identifier = ?")
		args = append(args, q.Identifier)
	}
	if q.OnlyFailed {
		conds = append(conds, "parse_error != ''")
	}
	query := `SELECT id, ts, broker, identifier, remote_addr, body, parse_error FROM raw_webhook_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query raw webhook logs failed: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TS, &e.Broker, &e.Identifier, &e.RemoteAddr, &e.Body, &e.ParseError); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS raw_webhook_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			broker TEXT,
			identifier TEXT,
			remote_addr TEXT,
			body TEXT,
			parse_error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_raw_webhook_logs_ts_id ON raw_webhook_logs(ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_raw_webhook_logs_broker_ts ON raw_webhook_logs(broker, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure raw log schema failed: %w", err)
		}
	}
	return nil
}
