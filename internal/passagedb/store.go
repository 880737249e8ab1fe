package passagedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// PassageCount is the number of passages in the full collection, i.e. the
// number of lines in its identifier hash file.
const PassageCount = 116838987

const (
	tableName = "passage_ids"

	createTableSQL = `CREATE TABLE IF NOT EXISTS passage_ids (id TEXT PRIMARY KEY NOT NULL) WITHOUT ROWID`
	lookupSQL      = `SELECT 1 FROM passage_ids WHERE id = ?`
	countSQL       = `SELECT COUNT(*) FROM passage_ids`
)

var (
	// ErrOpen wraps every failure to open or initialise a store file.
	ErrOpen = errors.New("open passage store")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("passage store is closed")

	// ErrReadOnly is returned by Populate on a store opened with OpenReadOnly.
	ErrReadOnly = errors.New("passage store is read-only")
)

// Store is a file-backed set of passage identifiers.
//
// A store is either being populated or being served, never both: Populate
// needs the single-connection writer returned by Open, while OpenReadOnly
// hands out a pool of read connections safe for concurrent Validate calls.
type Store struct {
	path     string
	readOnly bool

	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens a store for writing. The identifier table is created
// if it does not exist yet.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}

	// Bulk pragmas are per connection, so the writer keeps exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: create table: %v", ErrOpen, path, err)
	}

	return &Store{path: path, db: db}, nil
}

// OpenReadOnly opens an existing, populated store for serving lookups.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=true", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}

	return &Store{path: path, db: db, readOnly: true}, nil
}

// DefaultPath returns the store path conventionally derived from a hash
// file: same directory and base name, .sqlite3 extension.
func DefaultPath(hashFile string) string {
	return strings.TrimSuffix(hashFile, filepath.Ext(hashFile)) + ".sqlite3"
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// conn returns the live handle or ErrClosed.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// Validate reports, for each id in order, whether it is in the store.
// Malformed ids are simply absent.
func (s *Store) Validate(ctx context.Context, ids []string) ([]bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	results := make([]bool, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	stmt, err := db.PrepareContext(ctx, lookupSQL)
	if err != nil {
		return nil, fmt.Errorf("validate: prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		var one int
		err := stmt.QueryRowContext(ctx, id).Scan(&one)
		switch {
		case err == nil:
			results[i] = true
		case errors.Is(err, sql.ErrNoRows):
			results[i] = false
		default:
			return nil, fmt.Errorf("validate %q: %w", id, err)
		}
	}
	return results, nil
}

// RowCount returns the number of identifiers in the store.
func (s *Store) RowCount(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("row count: %w", err)
	}
	return n, nil
}

// Close releases the database handle. Calling Close more than once is safe.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
