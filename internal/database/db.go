package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by lookups
var (
	ErrSurveyNotFound   = errors.New("survey not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrInvalidWindow    = errors.New("trend window must not be negative")
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB represents the database connection
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// New opens a database with traced statements. A PostgreSQL connection
// string ("host=... user=... dbname=..." or "postgres://...") selects
// PostgreSQL; anything else is a SQLite file path, or ":memory:".
func New(dsn string) (*DB, error) {
	d := dialectFor(dsn)

	driver := "sqlite"
	if d == dialectPostgres {
		driver = "postgres"
	}

	if d == dialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := otelsql.Open(driver, dsn,
		otelsql.WithAttributes(attribute.String("db.system", driver)),
		otelsql.WithSpanOptions(otelsql.SpanOptions{OmitConnResetSession: true}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == dialectSQLite {
		// a single connection keeps :memory: databases shared
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, dialect: d}, nil
}

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return dialectPostgres
	}
	return dialectSQLite
}

// sqliteDSN applies connection pragmas through the DSN so every pooled
// connection gets them
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	return path + sep + pragmas
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
