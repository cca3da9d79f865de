package secrets

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/umputun/sqltext/pkg/refdb"
)

const (
	nonceSize = 24
	saltSize  = 16
)

// Store keeps secrets encrypted in a database table. Values are sealed with nacl secretbox,
// the box key is derived from the store key with argon2id and a random salt per value.
// Supported database types are the same as for the reference engine: sqlite, postgres, mysql.
type Store struct {
	db     *sql.DB
	key    []byte
	dbType string
}

// NewStore opens the secrets database and creates the table if missing.
func NewStore(ctx context.Context, conn string, key []byte) (*Store, error) {
	if len(key) == 0 {
		return nil, errors.New("empty secrets key")
	}
	dbt, err := refdb.DBType(conn)
	if err != nil {
		return nil, fmt.Errorf("can't determine database type: %w", err)
	}

	db, err := sql.Open(dbt, conn)
	if err != nil {
		return nil, fmt.Errorf("error opening secrets database: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sqltext_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't create secrets table: %w", err)
	}
	log.Printf("[DEBUG] secrets store: using %s database", dbt)
	return &Store{db: db, dbType: dbt, key: key}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads a secret and decrypts it
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var sealed string
	err := s.db.QueryRowContext(ctx, s.bind("SELECT sval FROM sqltext_secrets WHERE skey = ?"), key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("can't load secret %q: %w", key, err)
	}

	res, err := s.decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("can't decrypt secret %q: %w", key, err)
	}
	return res, nil
}

// Set encrypts and stores a secret, replacing the existing one
func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("can't encrypt secret %q: %w", key, err)
	}

	var query string
	switch s.dbType {
	case "sqlite":
		query = "INSERT OR REPLACE INTO sqltext_secrets (skey, sval) VALUES (?, ?)"
	case "postgres":
		query = "INSERT INTO sqltext_secrets (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = EXCLUDED.sval"
	case "mysql":
		query = "REPLACE INTO sqltext_secrets (skey, sval) VALUES (?, ?)"
	default:
		return fmt.Errorf("unsupported database type: %s", s.dbType)
	}
	if _, err = s.db.ExecContext(ctx, query, key, sealed); err != nil {
		return fmt.Errorf("can't store secret %q: %w", key, err)
	}
	return nil
}

// Delete removes a secret, returns ErrNotFound if the key is not set
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, s.bind("DELETE FROM sqltext_secrets WHERE skey = ?"), key)
	if err != nil {
		return fmt.Errorf("can't delete secret %q: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't check deleted rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return nil
}

// List returns sorted keys with the given prefix, all keys for empty or "*" prefix
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	query, args := "SELECT skey FROM sqltext_secrets ORDER BY skey", []any{}
	if prefix != "" && prefix != "*" {
		query, args = s.bind("SELECT skey FROM sqltext_secrets WHERE skey LIKE ? ORDER BY skey"), []any{prefix + "%"}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("can't list secrets: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("can't scan secret key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't list secrets: %w", err)
	}
	return keys, nil
}

// bind replaces the single ? placeholder with $1 for postgres
func (s *Store) bind(query string) string {
	if s.dbType != "postgres" {
		return query
	}
	return strings.Replace(query, "?", "$1", 1)
}

// encrypt seals data with a random nonce and salt, the result is base64(nonce | salt | box)
func (s *Store) encrypt(data string) (string, error) {
	buf := make([]byte, nonceSize+saltSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	nonce := new([nonceSize]byte)
	copy(nonce[:], buf[:nonceSize])

	sealed := secretbox.Seal(buf, []byte(data), nonce, s.boxKey(buf[nonceSize:]))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+saltSize+secretbox.Overhead {
		return "", errors.New("sealed value too short")
	}
	nonce := new([nonceSize]byte)
	copy(nonce[:], sealed[:nonceSize])

	res, ok := secretbox.Open(nil, sealed[nonceSize+saltSize:], nonce, s.boxKey(sealed[nonceSize:nonceSize+saltSize]))
	if !ok {
		return "", errors.New("failed to decrypt")
	}
	return string(res), nil
}

// boxKey derives 32-byte secretbox key with argon2id, 1 pass, 64MiB, 4 threads
func (s *Store) boxKey(salt []byte) *[32]byte {
	res := new([32]byte)
	copy(res[:], argon2.IDKey(s.key, salt, 1, 64*1024, 4, 32))
	return res
}
