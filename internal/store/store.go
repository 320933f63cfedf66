// Package store resolves the compressed program a ribbit run executes: the
// compiled-in default, or a row fetched from a SQL-backed catalog. Exactly
// one program is resolved per run — this package has no notion of loading
// more than one.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// bootstrapProgram is the reference compressed literal, taken verbatim from
// the reference source's `@@(replace ... (encode 92))@@` bootstrap comment.
// Its decoded instruction graph builds closures over the putc and pop
// primitives and applies them to the bytes of "HELLO!\n" in turn; it never
// calls getc.
const bootstrapProgram = ");'u?>vD?>vRD?>vRA?>vRA?>vR:?>vR=!(:lkm!':lkv6y"

// ProgramStore resolves a named program to its raw compressed bytes. Bytes
// are returned unchanged — no transcoding, per spec.md §6's "bytes are raw
// octets" rule.
type ProgramStore interface {
	LoadProgram(ctx context.Context, name string) ([]byte, error)
}

// EmbeddedStore always returns the compiled-in default program, ignoring
// name. It is the store cmd/ribbit uses unless -program-store selects a SQL
// driver.
type EmbeddedStore struct{}

// LoadProgram returns the embedded bootstrap program.
func (EmbeddedStore) LoadProgram(_ context.Context, _ string) ([]byte, error) {
	return []byte(bootstrapProgram), nil
}

// SQLProgramStore looks up named programs in a `ribbit_programs` table over
// one of four drivers, mirroring the reference stack's db_manager.go
// driver-name switch at connect time.
type SQLProgramStore struct {
	db     *sql.DB
	driver string
}

// supportedDrivers maps the -program-store flag's accepted values to the
// database/sql driver name that must be registered (via blank import above)
// to serve it.
var supportedDrivers = map[string]string{
	"sqlite3":   "sqlite3",
	"mysql":     "mysql",
	"postgres":  "postgres",
	"sqlserver": "sqlserver",
}

// Open connects to dsn using the named driver ("sqlite3", "mysql",
// "postgres", or "sqlserver") and verifies the connection with a ping.
func Open(driver, dsn string) (*SQLProgramStore, error) {
	name, ok := supportedDrivers[driver]
	if !ok {
		return nil, fmt.Errorf("store: unsupported program-store driver %q", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", driver)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "store: ping %s", driver)
	}

	return &SQLProgramStore{db: db, driver: driver}, nil
}

// placeholder returns the driver's positional-parameter syntax for the
// single lookup query this store issues.
func (s *SQLProgramStore) placeholder() string {
	if s.driver == "postgres" {
		return "$1"
	}
	if s.driver == "sqlserver" {
		return "@p1"
	}
	return "?"
}

// LoadProgram fetches the named program's bytecode column unchanged.
func (s *SQLProgramStore) LoadProgram(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf("SELECT bytecode FROM ribbit_programs WHERE name = %s", s.placeholder())

	var program []byte
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&program); err != nil {
		return nil, errors.Wrapf(err, "store: load program %q", name)
	}
	return program, nil
}

// Close releases the pooled connection.
func (s *SQLProgramStore) Close() error {
	return s.db.Close()
}
