package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is the SQLite expansion history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
// The file is readable by the owner only.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; WAL lets the CLI read while the daemon records.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Record appends one expansion and returns its ID. A zero At means now.
func (s *Store) Record(ctx context.Context, e Expansion) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if err := e.validate(); err != nil {
		return 0, err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO expansions (shortcut, replacement, source, at_ns)
		VALUES (?, ?, ?, ?)`,
		e.Shortcut, e.Replacement, string(e.Source), e.At.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert expansion: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit expansions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Expansion, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shortcut, replacement, source, at_ns
		FROM expansions
		ORDER BY at_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query expansions: %w", err)
	}
	defer rows.Close()

	var out []Expansion
	for rows.Next() {
		var e Expansion
		var source string
		var atNs int64
		if err := rows.Scan(&e.ID, &e.Shortcut, &e.Replacement, &source, &atNs); err != nil {
			return nil, fmt.Errorf("scan expansion: %w", err)
		}
		e.Source = Source(source)
		e.At = time.Unix(0, atNs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats summarizes the log and returns the top most-used shortcuts.
func (s *Store) Stats(ctx context.Context, top int) (*Stats, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	st := &Stats{BySource: make(map[Source]int64)}

	var first, last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(at_ns), MAX(at_ns) FROM expansions`,
	).Scan(&st.Retained, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("count expansions: %w", err)
	}
	if first.Valid {
		st.First = time.Unix(0, first.Int64)
	}
	if last.Valid {
		st.Last = time.Unix(0, last.Int64)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(uses), 0) FROM shortcut_usage`,
	).Scan(&st.AllTime); err != nil {
		return nil, fmt.Errorf("sum usage: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM expansions GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("group by source: %w", err)
	}
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		st.BySource[Source(source)] = n
	}
	rows.Close()

	if top > 0 {
		st.Top, err = s.topShortcuts(ctx, top)
		if err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Store) topShortcuts(ctx context.Context, n int) ([]ShortcutUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shortcut, replacement, uses, last_used_ns
		FROM shortcut_usage
		ORDER BY uses DESC, shortcut ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []ShortcutUsage
	for rows.Next() {
		var u ShortcutUsage
		var lastNs int64
		if err := rows.Scan(&u.Shortcut, &u.Replacement, &u.Uses, &lastNs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.LastUsed = time.Unix(0, lastNs)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Prune deletes log rows older than before. All-time usage is kept.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM expansions WHERE at_ns < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune expansions: %w", err)
	}
	return result.RowsAffected()
}

// PruneRetention applies a retention window in days. Zero keeps everything.
func (s *Store) PruneRetention(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	return s.Prune(ctx, time.Now().AddDate(0, 0, -days))
}
