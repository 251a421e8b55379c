// Package storage persists the ingestion registry and question history in
// SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	location   TEXT NOT NULL,
	chunks     INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	chunk_ids  TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
`

// Store wraps a SQLite database holding sources and interactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and ensures the
// schema exists. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "catgpt.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Sources ---

func (s *Store) SaveSource(src Source) error {
	createdAt := src.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO sources (id, kind, location, chunks, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		src.ID, src.Kind, src.Location, src.Chunks, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSource(id string) (Source, error) {
	var src Source
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, kind, location, chunks, created_at
		FROM sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.Kind, &src.Location, &src.Chunks, &createdAt)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Source{}, fmt.Errorf("parsing created_at: %w", err)
	}
	src.CreatedAt = t
	return src, nil
}

func (s *Store) ListSources(limit int) ([]Source, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, location, chunks, created_at
		FROM sources ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Source
	for rows.Next() {
		var src Source
		var createdAt string
		if err := rows.Scan(&src.ID, &src.Kind, &src.Location, &src.Chunks, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		src.CreatedAt = t
		results = append(results, src)
	}
	return results, rows.Err()
}

func (s *Store) CountSources() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&n)
	return n, err
}

// --- Interactions ---

func (s *Store) SaveInteraction(i Interaction) error {
	createdAt := i.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	chunkIDs := i.ChunkIDs
	if chunkIDs == "" {
		chunkIDs = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, question, answer, chunk_ids, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		i.ID, i.Question, i.Answer, chunkIDs, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	var i Interaction
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, question, answer, chunk_ids, created_at
		FROM interactions WHERE id = ?`, id,
	).Scan(&i.ID, &i.Question, &i.Answer, &i.ChunkIDs, &createdAt)
	if err == sql.ErrNoRows {
		return Interaction{}, ErrNotFound
	}
	if err != nil {
		return Interaction{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

func (s *Store) RecentInteractions(limit int) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT id, question, answer, chunk_ids, created_at
		FROM interactions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &i.Question, &i.Answer, &i.ChunkIDs, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		i.CreatedAt = t
		results = append(results, i)
	}
	return results, rows.Err()
}
