// internal/output/mysql.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

// NewMySQLStore connects to MySQL and creates the table if needed. The DSN
// gets utf8mb4 and a dial timeout unless it sets its own.
func NewMySQLStore(ctx context.Context, opts SQLOptions) (*SQLStore, error) {
	dsn, err := buildMySQLDSN(opts.ConnectionString)
	if err != nil {
		return nil, err
	}
	opts.ConnectionString = dsn
	return newSQLStore(ctx, mysqlDialect{}, opts)
}

// buildMySQLDSN fills in the connection parameters the store relies on
func buildMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	// the driver moves charset out of Params when parsing
	if !strings.Contains(dsn, "charset=") {
		cfg.Params["charset"] = "utf8mb4"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) name() StoreType { return StoreMySQL }

func (mysqlDialect) driver() string { return "mysql" }

func (mysqlDialect) placeholder(int) string { return "?" }

func (mysqlDialect) createTable(table string) string {
	return createTableSQL(table, func(kind int) string {
		switch kind {
		case kindKey:
			return "VARCHAR(768)" // utf8mb4 index limit
		case kindInt:
			return "INT"
		case kindFloat:
			return "DOUBLE"
		}
		return "TEXT"
	}) + " DEFAULT CHARSET=utf8mb4"
}

func (d mysqlDialect) upsert(table string, columns []string) string {
	var sets []string
	for _, c := range upsertColumns(columns) {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(columns, ", "), placeholders(d, len(columns)), strings.Join(sets, ", "))
}

func (mysqlDialect) configure(db *sql.DB, maxOpen int) {
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
}
