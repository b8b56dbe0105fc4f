package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/franz/medialib/internal/util"
)

// DBTX is the common surface of *sql.DB and *sql.Tx. Catalogue methods
// take a DBTX so they compose into larger transactions.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Options holds options for opening a database
type Options struct {
	StmtCacheSize int // prepared-statement LRU bound; 0 means default (32)
}

// Store owns the on-disk catalogue. One writable connection serialised
// by a mutex, plus a pool of read connections running under WAL so
// readers never block on the writer.
type Store struct {
	write   *sql.DB
	read    *sql.DB
	writeMu sync.Mutex

	stmts    *stmtCache
	identity *IdentityMap
	path     string
}

// Open opens or creates a SQLite database at the given path with default
// options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database and migrates it to
// the current schema version
func OpenWithOptions(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	cacheSize := opts.StmtCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultStmtCacheSize
	}

	// Recursive triggers keep the presence cascade flowing
	// device -> folder -> file -> media.
	dsn := fmt.Sprintf("file:%s", path)
	pragmas := "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)&_pragma=recursive_triggers(1)"

	write, err := sql.Open("sqlite", dsn+pragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)
	write.SetConnMaxLifetime(0)

	read, err := sql.Open("sqlite", dsn+pragmas+"&_pragma=query_only(1)")
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("failed to open read connection: %w", err)
	}

	s := &Store{
		write:    write,
		read:     read,
		path:     path,
		identity: NewIdentityMap(),
	}
	s.stmts = newStmtCache(read, cacheSize)

	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Close closes both connections
func (s *Store) Close() error {
	s.stmts.close()
	rerr := s.read.Close()
	werr := s.write.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Path returns the database file path
func (s *Store) Path() string { return s.path }

// Identity returns the identity map shared by all catalogue entities
func (s *Store) Identity() *IdentityMap { return s.identity }

// Exec runs a write statement outside a transaction
func (s *Store) Exec(query string, args ...any) (sql.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write.Exec(query, args...)
}

// Query runs a read query through the prepared-statement cache
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	stmt, err := s.stmts.get(query)
	if err != nil {
		return nil, err
	}
	return stmt.Query(args...)
}

// QueryRow runs a single-row read query through the statement cache.
// Statement preparation errors surface on Scan.
func (s *Store) QueryRow(query string, args ...any) *sql.Row {
	stmt, err := s.stmts.get(query)
	if err != nil {
		return s.read.QueryRow(query, args...)
	}
	return stmt.QueryRow(args...)
}

// Transaction executes fn inside a write transaction. The transaction is
// rolled back on error or panic and committed otherwise.
func (s *Store) Transaction(fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.write.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var savepointSeq uint64

// Savepoint nests a unit of work inside an open transaction. On error the
// savepoint is rolled back and the outer transaction stays usable.
func Savepoint(tx *sql.Tx, fn func(tx *sql.Tx) error) error {
	savepointSeq++
	name := fmt.Sprintf("sp_%d", savepointSeq)

	if _, err := tx.Exec("SAVEPOINT " + name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.Exec("ROLLBACK TO " + name); rbErr != nil {
			util.ErrorLog("store: savepoint rollback failed: %v", rbErr)
		}
		tx.Exec("RELEASE " + name)
		return err
	}
	if _, err := tx.Exec("RELEASE " + name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.read.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// NullableID maps the foreign-key sentinel: id 0 becomes NULL so triggers
// and optional references behave.
func NullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
