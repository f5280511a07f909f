// internal/output/sqlite.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type sqliteDialect struct{}

// NewSQLiteStore opens (creating if needed) a SQLite database file.
// ConnectionString is the file path, or ":memory:".
func NewSQLiteStore(ctx context.Context, opts SQLOptions) (*SQLStore, error) {
	path := opts.ConnectionString
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}

	// Create directory if it doesn't exist
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	if !strings.Contains(path, "?") {
		opts.ConnectionString = path + "?_busy_timeout=5000"
	}
	return newSQLStore(ctx, sqliteDialect{}, opts)
}

func (sqliteDialect) name() StoreType { return StoreSQLite }

func (sqliteDialect) driver() string { return "sqlite3" }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) createTable(table string) string {
	return createTableSQL(table, func(kind int) string {
		switch kind {
		case kindInt:
			return "INTEGER"
		case kindFloat:
			return "REAL"
		}
		return "TEXT"
	})
}

func (d sqliteDialect) upsert(table string, columns []string) string {
	var sets []string
	for _, c := range upsertColumns(columns) {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(url_key) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), placeholders(d, len(columns)), strings.Join(sets, ", "))
}

// configure keeps one connection: SQLite works best with a single writer
// and every connection to ":memory:" would see its own database.
func (sqliteDialect) configure(db *sql.DB, _ int) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
}
