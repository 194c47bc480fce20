// Package sqlite stores recording metadata in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// Open opens the database file at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		address TEXT NOT NULL,
		created_at_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_created_at ON recordings(created_at_ns);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Insert(ctx context.Context, rec recording.Recording) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	query := `
	INSERT INTO recordings (id, name, duration_ns, address, created_at_ns)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		duration_ns = excluded.duration_ns,
		address = excluded.address,
		created_at_ns = excluded.created_at_ns
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.Name, int64(rec.Duration), rec.Address, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert recording %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, rec recording.Recording) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, rec.ID.String())
	if err != nil {
		return fmt.Errorf("delete recording %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recording %s: %w", rec.ID, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, order store.Sort) ([]recording.Recording, error) {
	return s.Fetch(ctx, store.Everything, order)
}

func (s *Store) Fetch(ctx context.Context, match store.Predicate, order store.Sort) ([]recording.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	query := `SELECT id, name, duration_ns, address, created_at_ns FROM recordings ORDER BY ` + orderClause(order)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recordings := make([]recording.Recording, 0)
	for rows.Next() {
		var (
			id         string
			durationNs int64
			createdNs  int64
			rec        recording.Recording
		)
		if err := rows.Scan(&id, &rec.Name, &durationNs, &rec.Address, &createdNs); err != nil {
			return nil, err
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("decode recording id %q: %w", id, err)
		}
		rec.Duration = time.Duration(durationNs)
		rec.CreatedAt = time.Unix(0, createdNs)

		if match == nil || match(rec) {
			recordings = append(recordings, rec)
		}
	}
	return recordings, rows.Err()
}

func orderClause(order store.Sort) string {
	column := "created_at_ns"
	switch order.Field {
	case store.ByName:
		column = "name"
	case store.ByDuration:
		column = "duration_ns"
	}
	direction := "ASC"
	if order.Descending {
		direction = "DESC"
	}
	return column + " " + direction + ", id " + direction
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
