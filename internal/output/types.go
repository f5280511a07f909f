// internal/output/types.go

// Package output holds the record stores vehicles are delivered to: MongoDB,
// SQL databases, an in-memory store and file exporters.
package output

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// StoreType names a store implementation.
type StoreType string

const (
	StoreMemory     StoreType = "memory"
	StoreMongoDB    StoreType = "mongodb"
	StorePostgreSQL StoreType = "postgres"
	StoreMySQL      StoreType = "mysql"
	StoreSQLite     StoreType = "sqlite"
	StoreJSON       StoreType = "json"
	StoreCSV        StoreType = "csv"
	StoreExcel      StoreType = "excel"
)

// ValidStoreTypes returns all valid store type values
func ValidStoreTypes() []StoreType {
	return []StoreType{StoreMemory, StoreMongoDB, StorePostgreSQL, StoreMySQL, StoreSQLite, StoreJSON, StoreCSV, StoreExcel}
}

// IsValid reports whether t names a known store.
func (t StoreType) IsValid() bool {
	for _, valid := range ValidStoreTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// Store is the persistence collaborator. Upsert is keyed by source URL and
// idempotent; the first discovery time of a vehicle is kept.
type Store interface {
	Upsert(ctx context.Context, rec vehicle.Record) error

	// FindBySourceURL returns nil, nil when no record has that URL
	FindBySourceURL(ctx context.Context, sourceURL string) (*vehicle.Record, error)

	Find(ctx context.Context, q Query) ([]vehicle.Record, error)
	Distinct(ctx context.Context, field string, q Query) ([]string, error)
	Count(ctx context.Context, q Query) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Query filters records. Zero fields do not filter.
type Query struct {
	Make     string
	Model    string
	Dealer   string
	Region   string
	MinYear  int
	MaxYear  int
	MinPrice float64
	MaxPrice float64
	Limit    int
}

// Matches applies the query to one record in memory.
func (q Query) Matches(rec vehicle.Record) bool {
	if q.Make != "" && !strings.EqualFold(rec.Make, q.Make) {
		return false
	}
	if q.Model != "" && !strings.EqualFold(rec.Model, q.Model) {
		return false
	}
	if q.Dealer != "" && rec.Dealer.Name != q.Dealer {
		return false
	}
	if q.Region != "" && rec.Dealer.Region != q.Region {
		return false
	}
	if q.MinYear > 0 && (rec.Year == nil || *rec.Year < q.MinYear) {
		return false
	}
	if q.MaxYear > 0 && (rec.Year == nil || *rec.Year > q.MaxYear) {
		return false
	}
	if q.MinPrice > 0 && (rec.Price == nil || *rec.Price < q.MinPrice) {
		return false
	}
	if q.MaxPrice > 0 && (rec.Price == nil || *rec.Price > q.MaxPrice) {
		return false
	}
	return true
}

// distinctField describes a field Distinct accepts: its SQL column, its
// document path and how to read it from a record.
type distinctField struct {
	column string
	path   string
	value  func(vehicle.Record) string
}

var distinctFields = map[string]distinctField{
	"make":           {"make", "make", func(r vehicle.Record) string { return r.Make }},
	"model":          {"model", "model", func(r vehicle.Record) string { return r.Model }},
	"year":           {"year", "year", func(r vehicle.Record) string { return optionalInt(r.Year) }},
	"body_style":     {"body_style", "body_style", func(r vehicle.Record) string { return r.BodyStyle }},
	"fuel_type":      {"fuel_type", "fuel_type", func(r vehicle.Record) string { return r.FuelType }},
	"transmission":   {"transmission", "transmission", func(r vehicle.Record) string { return r.Transmission }},
	"drivetrain":     {"drivetrain", "drivetrain", func(r vehicle.Record) string { return r.Drivetrain }},
	"platform":       {"platform", "platform", func(r vehicle.Record) string { return string(r.Platform) }},
	"dealer":         {"dealer_name", "dealer.name", func(r vehicle.Record) string { return r.Dealer.Name }},
	"region":         {"dealer_region", "dealer.region", func(r vehicle.Record) string { return r.Dealer.Region }},
	"exterior_color": {"exterior_color", "exterior_color", func(r vehicle.Record) string { return r.ExteriorColor }},
}

func lookupDistinct(field string) (distinctField, error) {
	f, ok := distinctFields[field]
	if !ok {
		return distinctField{}, fmt.Errorf("unsupported distinct field: %q", field)
	}
	return f, nil
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// SQL identifier validation
var (
	// SQL identifier regex: starts with letter or underscore, contains letters, digits, underscores
	sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	// Reserved words shared by the supported dialects that are plausible table names
	reservedWords = map[string]bool{
		"ALL": true, "AND": true, "AS": true, "ASC": true, "BY": true, "CASE": true, "CHECK": true,
		"COLUMN": true, "CONSTRAINT": true, "CREATE": true, "CROSS": true, "DEFAULT": true, "DELETE": true,
		"DESC": true, "DISTINCT": true, "DROP": true, "ELSE": true, "END": true, "EXISTS": true, "FOR": true,
		"FOREIGN": true, "FROM": true, "GROUP": true, "HAVING": true, "IN": true, "INDEX": true, "INNER": true,
		"INSERT": true, "INTO": true, "IS": true, "JOIN": true, "KEY": true, "LEFT": true, "LIKE": true,
		"LIMIT": true, "NOT": true, "NULL": true, "ON": true, "OR": true, "ORDER": true, "PRIMARY": true,
		"REFERENCES": true, "RIGHT": true, "SELECT": true, "SET": true, "TABLE": true, "THEN": true, "TO": true,
		"UNION": true, "UNIQUE": true, "UPDATE": true, "USER": true, "USING": true, "VALUES": true,
		"WHEN": true, "WHERE": true, "WITH": true,
	}
)

// Database-specific identifier limits
const (
	MaxPostgreSQLIdentifierLength = 63
	MaxMySQLIdentifierLength      = 64
	MaxSQLiteIdentifierLength     = 999
)

// ValidateSQLIdentifier validates that a string is a safe table name for
// the dialect. Unknown dialects get the PostgreSQL limit, the strictest.
func ValidateSQLIdentifier(identifier string, dialect StoreType) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	maxLen := MaxPostgreSQLIdentifierLength
	switch dialect {
	case StoreMySQL:
		maxLen = MaxMySQLIdentifierLength
	case StoreSQLite:
		maxLen = MaxSQLiteIdentifierLength
	}
	if len(identifier) > maxLen {
		return fmt.Errorf("identifier too long (max %d characters): %s", maxLen, identifier)
	}

	if !sqlIdentifierRegex.MatchString(identifier) {
		return fmt.Errorf("invalid identifier format: %s", identifier)
	}

	if reservedWords[strings.ToUpper(identifier)] {
		return fmt.Errorf("identifier is a reserved SQL keyword: %s", identifier)
	}

	return nil
}
