// internal/output/sql.go
package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valpere/CarScrapexter/internal/dedup"
	"github.com/valpere/CarScrapexter/internal/utils"
	"github.com/valpere/CarScrapexter/internal/vehicle"
)

// dialect captures what differs between the SQL databases.
type dialect interface {
	name() StoreType
	driver() string
	placeholder(n int) string
	createTable(table string) string
	upsert(table string, columns []string) string
	configure(db *sql.DB, maxOpen int)
}

// recordColumns is the fixed column order of the vehicles table. url_key
// is the canonical source URL and the primary key.
var recordColumns = []string{
	"url_key", "source_url", "make", "model", "year", "price", "mileage", "vin",
	"transmission", "fuel_type", "drivetrain", "body_style",
	"exterior_color", "interior_color", "stock_number", "description",
	"features", "photos", "photo_count", "has_multiple_photos",
	"completeness", "detailed", "dealer_name", "dealer_url", "dealer_region",
	"platform", "discovered_at", "updated_at",
}

// SQLStore persists records to PostgreSQL, MySQL or SQLite through
// database/sql. Times are stored as RFC 3339 text so every dialect
// round-trips them exactly.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	table   string
	logger  utils.Logger
}

// SQLOptions configures an SQLStore.
type SQLOptions struct {
	ConnectionString string
	Table            string
	MaxOpenConns     int
}

func newSQLStore(ctx context.Context, d dialect, opts SQLOptions) (*SQLStore, error) {
	if opts.ConnectionString == "" {
		return nil, fmt.Errorf("%s connection string is required", d.name())
	}
	if opts.Table == "" {
		opts.Table = "vehicles"
	}
	if err := ValidateSQLIdentifier(opts.Table, d.name()); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	db, err := sql.Open(d.driver(), opts.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.name(), err)
	}
	d.configure(db, opts.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.name(), err)
	}

	store := &SQLStore{
		db:      db,
		dialect: d,
		table:   opts.Table,
		logger:  utils.NewComponentLogger(string(d.name()) + "-store"),
	}
	if _, err := db.ExecContext(ctx, d.createTable(opts.Table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", opts.Table, err)
	}
	store.logger.Infof("using table %s", opts.Table)
	return store, nil
}

// Upsert inserts rec or replaces the row with the same source URL, keeping
// its discovery time.
func (s *SQLStore) Upsert(ctx context.Context, rec vehicle.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert(s.table, recordColumns), args...); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.SourceURL, err)
	}
	return nil
}

// FindBySourceURL returns the row stored under sourceURL, or nil.
func (s *SQLStore) FindBySourceURL(ctx context.Context, sourceURL string) (*vehicle.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE url_key = %s",
		strings.Join(recordColumns, ", "), s.table, s.dialect.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, dedup.Key(sourceURL))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Find returns matching rows ordered by source URL.
func (s *SQLStore) Find(ctx context.Context, q Query) ([]vehicle.Record, error) {
	where, args := buildWhere(q, s.dialect)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY url_key", strings.Join(recordColumns, ", "), s.table, where)
	if q.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []vehicle.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Distinct returns the sorted, non-empty values of field among matching rows.
func (s *SQLStore) Distinct(ctx context.Context, field string, q Query) ([]string, error) {
	f, err := lookupDistinct(field)
	if err != nil {
		return nil, err
	}
	where, args := buildWhere(q, s.dialect)
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s%s", f.column, s.table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s: %w", field, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid && v.String != "" {
			out = append(out, v.String)
		}
	}
	sort.Strings(out)
	return out, rows.Err()
}

// Count returns the number of matching rows.
func (s *SQLStore) Count(ctx context.Context, q Query) (int64, error) {
	where, args := buildWhere(q, s.dialect)
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table, where), args...).Scan(&n)
	return n, err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// buildWhere renders q as a WHERE clause with dialect placeholders.
func buildWhere(q Query, d dialect) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, d.placeholder(len(args))))
	}

	if q.Make != "" {
		add("LOWER(make) = LOWER(%s)", q.Make)
	}
	if q.Model != "" {
		add("LOWER(model) = LOWER(%s)", q.Model)
	}
	if q.Dealer != "" {
		add("dealer_name = %s", q.Dealer)
	}
	if q.Region != "" {
		add("dealer_region = %s", q.Region)
	}
	if q.MinYear > 0 {
		add("year >= %s", q.MinYear)
	}
	if q.MaxYear > 0 {
		add("year <= %s", q.MaxYear)
	}
	if q.MinPrice > 0 {
		add("price >= %s", q.MinPrice)
	}
	if q.MaxPrice > 0 {
		add("price <= %s", q.MaxPrice)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// recordArgs flattens rec in recordColumns order.
func recordArgs(rec vehicle.Record) ([]interface{}, error) {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	photos, err := json.Marshal(rec.Photos)
	if err != nil {
		return nil, fmt.Errorf("failed to encode photos: %w", err)
	}

	return []interface{}{
		dedup.Key(rec.SourceURL), rec.SourceURL, rec.Make, rec.Model,
		nullInt(rec.Year), nullFloat(rec.Price), nullInt(rec.Mileage), rec.VIN,
		rec.Transmission, rec.FuelType, rec.Drivetrain, rec.BodyStyle,
		rec.ExteriorColor, rec.InteriorColor, rec.StockNumber, rec.Description,
		string(features), string(photos), rec.PhotoCount, boolInt(rec.HasMultiplePhotos),
		rec.Completeness, boolInt(rec.Detailed), rec.Dealer.Name, rec.Dealer.URL, rec.Dealer.Region,
		string(rec.Platform), formatTime(rec.DiscoveredAt), formatTime(rec.UpdatedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (vehicle.Record, error) {
	var (
		rec                     vehicle.Record
		key                     string
		year, mileage           sql.NullInt64
		price                   sql.NullFloat64
		features, photos        string
		multiple, detailed      int
		platform                string
		discoveredAt, updatedAt string
	)
	err := row.Scan(
		&key, &rec.SourceURL, &rec.Make, &rec.Model, &year, &price, &mileage, &rec.VIN,
		&rec.Transmission, &rec.FuelType, &rec.Drivetrain, &rec.BodyStyle,
		&rec.ExteriorColor, &rec.InteriorColor, &rec.StockNumber, &rec.Description,
		&features, &photos, &rec.PhotoCount, &multiple,
		&rec.Completeness, &detailed, &rec.Dealer.Name, &rec.Dealer.URL, &rec.Dealer.Region,
		&platform, &discoveredAt, &updatedAt,
	)
	if err != nil {
		return vehicle.Record{}, err
	}

	if year.Valid {
		rec.Year = vehicle.IntPtr(int(year.Int64))
	}
	if price.Valid {
		rec.Price = vehicle.FloatPtr(price.Float64)
	}
	if mileage.Valid {
		rec.Mileage = vehicle.IntPtr(int(mileage.Int64))
	}
	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return vehicle.Record{}, fmt.Errorf("failed to decode features: %w", err)
	}
	if err := json.Unmarshal([]byte(photos), &rec.Photos); err != nil {
		return vehicle.Record{}, fmt.Errorf("failed to decode photos: %w", err)
	}
	rec.HasMultiplePhotos = multiple != 0
	rec.Detailed = detailed != 0
	rec.Platform = vehicle.Platform(platform)
	rec.DiscoveredAt = parseTime(discoveredAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// upsertColumns are the columns an upsert rewrites; discovered_at keeps the
// first value.
func upsertColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != "url_key" && c != "discovered_at" {
			out = append(out, c)
		}
	}
	return out
}

func placeholders(d dialect, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// column kinds, mapped to a type by each dialect
const (
	kindKey = iota
	kindText
	kindInt
	kindFloat
)

var columnKinds = map[string]int{
	"url_key":             kindKey,
	"year":                kindInt,
	"mileage":             kindInt,
	"photo_count":         kindInt,
	"has_multiple_photos": kindInt,
	"detailed":            kindInt,
	"price":               kindFloat,
	"completeness":        kindFloat,
}

// createTableSQL builds the vehicles table from recordColumns.
func createTableSQL(table string, typeFor func(kind int) string) string {
	defs := make([]string, 0, len(recordColumns))
	for _, c := range recordColumns {
		kind, ok := columnKinds[c]
		if !ok {
			kind = kindText
		}
		def := c + " " + typeFor(kind)
		switch kind {
		case kindKey:
			def += " PRIMARY KEY"
		case kindText:
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))
}
