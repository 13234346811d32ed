package spacetraveling

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists generated pages in SQLite so a restarted server keeps
// serving the last good version of every page.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets page reads proceed while a regeneration writes.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS pages (
    route TEXT PRIMARY KEY,
    content_type TEXT NOT NULL,
    body BLOB NOT NULL,
    generated_at TEXT NOT NULL
);
`)
	return err
}

// LoadPage returns the stored page for route, or ErrPageNotStored.
func (s *Store) LoadPage(route string) (Page, error) {
	var p Page
	var generatedAt string
	err := s.db.QueryRow(`SELECT content_type, body, generated_at FROM pages WHERE route = ?`, route).
		Scan(&p.ContentType, &p.Body, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrPageNotStored
	}
	if err != nil {
		return Page{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, generatedAt)
	if err != nil {
		return Page{}, fmt.Errorf("page %s: parse generated_at: %w", route, err)
	}
	p.Route = route
	p.GeneratedAt = t
	return p, nil
}

// SavePage upserts a generated page.
func (s *Store) SavePage(p Page) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO pages (route, content_type, body, generated_at) VALUES (?, ?, ?, ?)`,
		p.Route, p.ContentType, p.Body, p.GeneratedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// DeletePage removes a page, e.g. after its post was unpublished.
func (s *Store) DeletePage(route string) error {
	_, err := s.db.Exec(`DELETE FROM pages WHERE route = ?`, route)
	return err
}

// ListRoutes returns the routes of all stored pages, oldest first.
func (s *Store) ListRoutes() ([]string, error) {
	rows, err := s.db.Query(`SELECT route FROM pages ORDER BY generated_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}
