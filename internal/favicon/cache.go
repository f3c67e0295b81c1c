package favicon

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// CacheFile is the cache database name inside the settings folder.
const CacheFile = "favicons.db"

const schema = `
CREATE TABLE IF NOT EXISTS favicons (
	host       TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
)`

// Entry records where a host's favicon was last stored.
type Entry struct {
	Host      string
	Path      string
	FetchedAt time.Time
}

// Cache remembers fetched favicons per host.
type Cache struct {
	db *sql.DB
}

// OpenCache opens or creates the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; keep a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create favicon cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get looks up host. ok is false when the host was never fetched.
func (c *Cache) Get(host string) (e Entry, ok bool, err error) {
	var fetched int64
	err = c.db.QueryRow(
		`SELECT host, path, fetched_at FROM favicons WHERE host = ?`, host,
	).Scan(&e.Host, &e.Path, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e.FetchedAt = time.Unix(fetched, 0)
	return e, true, nil
}

// Put inserts or replaces the entry for e.Host.
func (c *Cache) Put(e Entry) error {
	_, err := c.db.Exec(`
		INSERT INTO favicons (host, path, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET path = excluded.path, fetched_at = excluded.fetched_at`,
		e.Host, e.Path, e.FetchedAt.Unix(),
	)
	return err
}

// Delete forgets host.
func (c *Cache) Delete(host string) error {
	_, err := c.db.Exec(`DELETE FROM favicons WHERE host = ?`, host)
	return err
}

func (c *Cache) Close() error {
	return c.db.Close()
}
