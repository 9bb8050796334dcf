// Package dexcache remembers container verification outcomes, keyed by a
// digest of the container bytes, in a SQLite database.
package dexcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

var log = commonlog.GetLogger("dexvm.dexcache")

// ErrRejected reports a container the cache has seen fail verification.
var ErrRejected = errors.New("container previously failed verification")

const schema = `
CREATE TABLE IF NOT EXISTS verification (
	digest   TEXT PRIMARY KEY,
	verified INTEGER NOT NULL,
	error    TEXT NOT NULL DEFAULT '',
	classes  INTEGER NOT NULL DEFAULT 0,
	checked  INTEGER NOT NULL
)`

// Entry is the recorded outcome for one container.
type Entry struct {
	Verified bool
	Error    string
	Classes  int
	Checked  time.Time
}

// Cache is a verification cache backed by a SQLite file.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache at path. ":memory:" gives a private
// in-memory cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	log.Debugf("opened verification cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Path returns the database path the cache was opened with.
func (c *Cache) Path() string {
	return c.path
}

// Lookup returns the entry recorded for digest.
func (c *Cache) Lookup(digest string) (Entry, bool, error) {
	var (
		e        Entry
		verified int
		checked  int64
	)
	row := c.db.QueryRow(`SELECT verified, error, classes, checked FROM verification WHERE digest = ?`, digest)
	switch err := row.Scan(&verified, &e.Error, &e.Classes, &checked); {
	case errors.Is(err, sql.ErrNoRows):
		return Entry{}, false, nil
	case err != nil:
		return Entry{}, false, fmt.Errorf("looking up %s: %w", short(digest), err)
	}
	e.Verified = verified != 0
	e.Checked = time.Unix(0, checked)
	return e, true, nil
}

// Record stores the outcome for digest, replacing any earlier entry. A
// zero Checked time is set to now.
func (c *Cache) Record(digest string, e Entry) error {
	if e.Checked.IsZero() {
		e.Checked = time.Now()
	}
	verified := 0
	if e.Verified {
		verified = 1
	}
	_, err := c.db.Exec(`INSERT OR REPLACE INTO verification (digest, verified, error, classes, checked) VALUES (?, ?, ?, ?, ?)`,
		digest, verified, e.Error, e.Classes, e.Checked.UnixNano())
	if err != nil {
		return fmt.Errorf("recording %s: %w", short(digest), err)
	}
	log.Debugf("recorded %s verified=%t", short(digest), e.Verified)
	return nil
}

// Len returns the number of recorded entries.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM verification`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Digest returns the cache key for container bytes.
func Digest(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
