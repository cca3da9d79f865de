// Package refdb runs SQL text functions in a real database, to cross-check local results.
// Supported database types: sqlite, postgres, mysql
package refdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here

	"github.com/umputun/sqltext/pkg/textops"
)

// ErrUnsupported is returned when the database can't express the call with the same semantics,
// e.g. sqlite and mysql count negative positions from the end of the string.
var ErrUnsupported = errors.New("not supported by database")

// Engine evaluates POSITION, SUBSTRING, OVERLAY and length functions in a database.
type Engine struct {
	db     *sql.DB
	dbType string
}

// DBType detects the database type from the connection string:
// postgres://... is postgres, user:pass@tcp(host:port)/db is mysql,
// file:..., :memory: and *.db or *.sqlite files are sqlite.
func DBType(conn string) (string, error) {
	if strings.HasPrefix(conn, "postgres://") {
		return "postgres", nil
	}
	if strings.Contains(conn, "@tcp(") {
		return "mysql", nil
	}
	if strings.HasPrefix(conn, "file:") || conn == ":memory:" || strings.HasSuffix(conn, ".sqlite") || strings.HasSuffix(conn, ".db") {
		return "sqlite", nil
	}
	return "", errors.New("unsupported database type in connection string")
}

// New creates a new Engine for the connection string, see DBType for supported formats.
func New(conn string) (*Engine, error) {
	dbt, err := DBType(conn)
	if err != nil {
		return nil, fmt.Errorf("can't determine database type: %w", err)
	}

	db, err := sql.Open(dbt, conn)
	if err != nil {
		return nil, fmt.Errorf("error opening reference database: %w", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't connect to reference database: %w", err)
	}
	log.Printf("[INFO] reference engine: using %s database", dbt)
	return &Engine{db: db, dbType: dbt}, nil
}

// Type returns database type, one of sqlite, postgres or mysql
func (e *Engine) Type() string {
	return e.dbType
}

// Close closes the database
func (e *Engine) Close() error {
	return e.db.Close()
}

// Position returns 1-based position of needle in haystack, 0 if not found.
func (e *Engine) Position(ctx context.Context, mode textops.Mode, needle, haystack []byte) (int, error) {
	var query string
	var args []any
	switch e.dbType {
	case "sqlite":
		query, args = "SELECT instr(?, ?)", []any{bindArg(mode, haystack), bindArg(mode, needle)}
	case "postgres":
		query = fmt.Sprintf("SELECT position($1::%[1]s in $2::%[1]s)", pgType(mode))
		args = []any{bindArg(mode, needle), bindArg(mode, haystack)}
	case "mysql":
		query = fmt.Sprintf("SELECT LOCATE(%[1]s, %[1]s)", myCast(mode))
		args = []any{bindArg(mode, needle), bindArg(mode, haystack)}
	default:
		return 0, fmt.Errorf("unsupported database type: %s", e.dbType)
	}
	return e.queryInt(ctx, query, args...)
}

// Substring returns SUBSTRING(target FROM pos [FOR length]), FOR clause is added if useLen is set.
func (e *Engine) Substring(ctx context.Context, mode textops.Mode, target []byte, pos, length int, useLen bool) ([]byte, error) {
	var query string
	args := []any{bindArg(mode, target), pos}
	if useLen {
		args = append(args, length)
	}

	switch e.dbType {
	case "sqlite":
		if pos < 0 || (useLen && length < 0) {
			return nil, ErrUnsupported
		}
		// substr of an empty blob is NULL
		query = fmt.Sprintf("SELECT ifnull(substr(?, ?), %s)", liteEmpty(mode))
		if useLen {
			query = fmt.Sprintf("SELECT ifnull(substr(?, ?, ?), %s)", liteEmpty(mode))
		}
	case "postgres":
		query = fmt.Sprintf("SELECT substring($1::%s from $2::int)", pgType(mode))
		if useLen {
			query = fmt.Sprintf("SELECT substring($1::%s from $2::int for $3::int)", pgType(mode))
		}
	case "mysql":
		if pos < 1 || (useLen && length < 0) {
			return nil, ErrUnsupported
		}
		query = fmt.Sprintf("SELECT SUBSTRING(%s, ?)", myCast(mode))
		if useLen {
			query = fmt.Sprintf("SELECT SUBSTRING(%s, ?, ?)", myCast(mode))
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", e.dbType)
	}
	return e.queryBytes(ctx, query, args...)
}

// Overlay returns OVERLAY(target PLACING placing FROM start FOR length).
func (e *Engine) Overlay(ctx context.Context, mode textops.Mode, target, placing []byte, start, length int) ([]byte, error) {
	var query string
	var args []any
	switch e.dbType {
	case "sqlite":
		// no overlay in sqlite, built from substr the same way the standard defines it
		if start < 1 || length > math.MaxInt-start || start+length < 0 {
			return nil, ErrUnsupported
		}
		query = fmt.Sprintf("SELECT ifnull(substr(?, 1, ?), %[1]s) || ? || ifnull(substr(?, ?), %[1]s)", liteEmpty(mode))
		if mode == textops.ModeBinary {
			query = fmt.Sprintf("SELECT CAST(ifnull(substr(?, 1, ?), %[1]s) || ? || ifnull(substr(?, ?), %[1]s) AS BLOB)", liteEmpty(mode))
		}
		args = []any{bindArg(mode, target), start - 1, bindArg(mode, placing), bindArg(mode, target), start + length}
	case "postgres":
		query = fmt.Sprintf("SELECT overlay($1::%[1]s placing $2::%[1]s from $3::int for $4::int)", pgType(mode))
		args = []any{bindArg(mode, target), bindArg(mode, placing), start, length}
	case "mysql":
		// INSERT leaves the string as is when start is out of it, overlay appends
		ops, err := textops.ForMode(mode)
		if err != nil {
			return nil, err
		}
		if start < 1 || length < 0 || start > ops.Length(textops.NewView(target)) {
			return nil, ErrUnsupported
		}
		query = fmt.Sprintf("SELECT INSERT(%[1]s, ?, ?, %[1]s)", myCast(mode))
		args = []any{bindArg(mode, target), start, length, bindArg(mode, placing)}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", e.dbType)
	}
	return e.queryBytes(ctx, query, args...)
}

// Length returns number of bytes in binary mode and number of characters in char mode.
func (e *Engine) Length(ctx context.Context, mode textops.Mode, v []byte) (int, error) {
	var query string
	switch e.dbType {
	case "sqlite":
		query = "SELECT length(?)"
	case "postgres":
		query = fmt.Sprintf("SELECT char_length($1::%s)", pgType(mode))
		if mode == textops.ModeBinary {
			query = "SELECT octet_length($1::bytea)"
		}
	case "mysql":
		query = fmt.Sprintf("SELECT CHAR_LENGTH(%s)", myCast(mode))
		if mode == textops.ModeBinary {
			query = fmt.Sprintf("SELECT LENGTH(%s)", myCast(mode))
		}
	default:
		return 0, fmt.Errorf("unsupported database type: %s", e.dbType)
	}
	return e.queryInt(ctx, query, bindArg(mode, v))
}

// bindArg binds bytes as a blob in binary mode and as text in char mode
func bindArg(mode textops.Mode, v []byte) any {
	if mode == textops.ModeBinary {
		if v == nil {
			return []byte{}
		}
		return v
	}
	return string(v)
}

func (e *Engine) queryInt(ctx context.Context, query string, args ...any) (int, error) {
	log.Printf("[DEBUG] %s query %q", e.dbType, query)
	var res sql.NullInt64
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&res); err != nil {
		return 0, fmt.Errorf("error running %s query: %w", e.dbType, err)
	}
	if !res.Valid {
		return 0, fmt.Errorf("%s query returned NULL", e.dbType)
	}
	return int(res.Int64), nil
}

func (e *Engine) queryBytes(ctx context.Context, query string, args ...any) ([]byte, error) {
	log.Printf("[DEBUG] %s query %q", e.dbType, query)
	var res any
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&res); err != nil {
		return nil, fmt.Errorf("error running %s query: %w", e.dbType, err)
	}
	switch v := res.(type) {
	case nil:
		return nil, fmt.Errorf("%s query returned NULL", e.dbType)
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unexpected %s result type %T", e.dbType, res)
	}
}

// liteEmpty is sqlite literal of an empty value
func liteEmpty(mode textops.Mode) string {
	if mode == textops.ModeBinary {
		return "x''"
	}
	return "''"
}

func pgType(mode textops.Mode) string {
	if mode == textops.ModeBinary {
		return "bytea"
	}
	return "text"
}

func myCast(mode textops.Mode) string {
	if mode == textops.ModeBinary {
		return "CAST(? AS BINARY)"
	}
	return "CONVERT(? USING utf8mb4)"
}
