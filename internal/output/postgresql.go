// internal/output/postgresql.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type postgresDialect struct{}

// NewPostgreSQLStore connects to PostgreSQL and creates the table if needed.
func NewPostgreSQLStore(ctx context.Context, opts SQLOptions) (*SQLStore, error) {
	return newSQLStore(ctx, postgresDialect{}, opts)
}

func (postgresDialect) name() StoreType { return StorePostgreSQL }

func (postgresDialect) driver() string { return "postgres" }

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) createTable(table string) string {
	return createTableSQL(table, func(kind int) string {
		switch kind {
		case kindInt:
			return "INTEGER"
		case kindFloat:
			return "DOUBLE PRECISION"
		}
		return "TEXT"
	})
}

func (d postgresDialect) upsert(table string, columns []string) string {
	var sets []string
	for _, c := range upsertColumns(columns) {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (url_key) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), placeholders(d, len(columns)), strings.Join(sets, ", "))
}

func (postgresDialect) configure(db *sql.DB, maxOpen int) {
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}
