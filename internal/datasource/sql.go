package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/netmap/internal/types"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "modernc.org/sqlite"             // SQLite driver
)

const (
	// DefaultPageSize is the keyset page size used to load a full region.
	DefaultPageSize = 5000

	locationColumns = "id, network, subnetwork, city, zip, county, region, lat, lng, active, name, phone, description, industry"
)

// SQLStore reads locations from SQLite or PostgreSQL.
type SQLStore struct {
	db       *sql.DB
	driver   string
	pageSize int
	logger   *slog.Logger
}

// OpenSQL opens a location database. driver is "sqlite" or "postgres".
// The schema is created if it doesn't exist.
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var driverName string
	switch driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres", "pgx":
		driver, driverName = "postgres", "pgx"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// One connection; WAL keeps readers cheap.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA cache_size = 50000",
			"PRAGMA temp_store = MEMORY",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
			}
		}
	}

	s := &SQLStore{db: db, driver: driver, pageSize: DefaultPageSize, logger: logger.With("store", driver)}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// createSchema creates the locations table and its indexes.
func (s *SQLStore) createSchema(ctx context.Context) error {
	realType, boolType := "REAL", "INTEGER"
	if s.driver == "postgres" {
		realType, boolType = "DOUBLE PRECISION", "BOOLEAN"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS locations (
			id          TEXT PRIMARY KEY,
			network     TEXT NOT NULL,
			subnetwork  TEXT NOT NULL DEFAULT '',
			city        TEXT NOT NULL DEFAULT '',
			zip         TEXT NOT NULL DEFAULT '',
			county      TEXT NOT NULL DEFAULT '',
			region      TEXT NOT NULL,
			lat         %[1]s NOT NULL,
			lng         %[1]s NOT NULL,
			active      %[2]s NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			industry    TEXT NOT NULL DEFAULT ''
		)`, realType, boolType),
		`CREATE INDEX IF NOT EXISTS idx_locations_region_bounds ON locations (region, lat, lng)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
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

// FetchRegionLocations loads a region page by page in id order.
func (s *SQLStore) FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error) {
	query := s.rebind("SELECT " + locationColumns + " FROM locations WHERE region = ? AND active = ? AND id > ? ORDER BY id LIMIT ?")

	var out []types.Location
	after := ""
	for {
		page, err := s.query(ctx, query, region, true, after, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load region %q: %w", region, err)
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	return sanitize(out, s.logger), nil
}

// FetchViewportLocations returns the active locations of a region inside bbox.
func (s *SQLStore) FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	query := s.rebind("SELECT " + locationColumns + " FROM locations WHERE region = ? AND active = ? AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ? ORDER BY id")
	locs, err := s.query(ctx, query, region, true, bbox.South, bbox.North, bbox.West, bbox.East)
	if err != nil {
		return nil, fmt.Errorf("failed to load viewport %s: %w", bbox, err)
	}
	return sanitize(locs, s.logger), nil
}

// Count returns the number of stored locations of a region.
func (s *SQLStore) Count(ctx context.Context, region string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM locations WHERE region = ?"), region).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}
	return n, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]types.Location, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []types.Location
	for rows.Next() {
		var (
			l       types.Location
			network string
		)
		if err := rows.Scan(&l.ID, &network, &l.Subnetwork, &l.City, &l.Zip, &l.County, &l.Region,
			&l.Lat, &l.Lng, &l.Active, &l.Name, &l.Phone, &l.Description, &l.Industry); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		l.Network = types.Category(network)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
