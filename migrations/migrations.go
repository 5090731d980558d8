// Package migrations carries the embedded schema migrations for the briefly
// article database and applies them with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS holds the migration SQL, embedded so the binary needs no files on disk.
// The migrate command reads it directly for down and status operations.
//
//go:embed *.sql
var FS embed.FS

// Run brings the database schema up to the latest version. It is called on
// every startup; already-applied migrations are skipped.
func Run(db *sql.DB) error {
	goose.SetBaseFS(FS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
