package migrations

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	devenv "pricewise-backend/dev/env"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects the database ingestion writes to. A non-empty Url connects to
// a remote libsql/turso database, otherwise File is opened as a local sqlite
// database (it may be prefixed with <dev_state>).
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB opens a local sqlite database, ":memory:" is allowed.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// sqlite only allows one writer at a time, see
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	_, err = db.Exec("PRAGMA foreign_keys=ON")
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	return db, nil
}

func openRemote(config Config) (*sql.DB, error) {
	u, err := url.Parse(config.Url)
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	if config.AuthToken != "" {
		query := u.Query()
		query.Set("authToken", config.AuthToken)
		u.RawQuery = query.Encode()
	}
	db, err := sql.Open("libsql", u.String())
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return db, nil
}

// Open opens the configured database without touching its schema.
func (config Config) Open() (*sql.DB, error) {
	if config.Url != "" {
		return openRemote(config)
	}
	if config.File == "" {
		return nil, wrapOpenDB(fmt.Errorf("neither a file nor a url was specified"))
	}
	path, err := devenv.ResolvePath(config.File)
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return OpenDB(path)
}

func wrapOpenAndMigrate(err error) error {
	return fmt.Errorf("open and migrate db: %w", err)
}

// Migrate applies schema, which must only contain idempotent statements
// ("create ... if not exists").
func Migrate(db *sql.DB, schema string) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// OpenAndMigrate opens the configured database and applies schema to it.
func (config Config) OpenAndMigrate(schema string) (*sql.DB, error) {
	db, err := config.Open()
	if err != nil {
		return nil, wrapOpenAndMigrate(err)
	}
	err = Migrate(db, schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenAndMigrate(err)
	}
	return db, nil
}
