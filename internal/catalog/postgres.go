package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"

	"github.com/lib/pq"
)

const (
	serviceColumns = `code, name, description, synonyms, min_price, max_price, avg_rating, total_bookings`
	zoneColumns    = `code, name, COALESCE(parent_code, ''), level, latitude, longitude, radius_km`
)

// Schema creates the catalog tables. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS services (
	code           TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	synonyms       TEXT[] NOT NULL DEFAULT '{}',
	min_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_rating     DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_bookings INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS zones (
	code        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	parent_code TEXT REFERENCES zones (code),
	level       TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude   DOUBLE PRECISION NOT NULL DEFAULT 0,
	radius_km   DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS service_zone_availability (
	service_code         TEXT NOT NULL REFERENCES services (code),
	zone_code            TEXT NOT NULL REFERENCES zones (code),
	avg_response_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
	active               BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (service_code, zone_code)
);
`

// PostgresCatalog reads the catalog tables. Free-text search goes to the
// configured Searcher and falls back to token scoring over all services.
type PostgresCatalog struct {
	db       *sql.DB
	searcher Searcher
	logger   logger.Logger
}

func NewPostgresCatalog(db *sql.DB, searcher Searcher, log logger.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		db:       db,
		searcher: searcher,
		logger:   logger.Component(log, "catalog"),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row rowScanner) (models.Service, error) {
	var s models.Service
	var synonyms pq.StringArray
	err := row.Scan(&s.Code, &s.Name, &s.Description, &synonyms, &s.MinPrice, &s.MaxPrice, &s.AvgRating, &s.TotalBookings)
	s.Synonyms = []string(synonyms)
	return s, err
}

func scanZone(row rowScanner) (models.Zone, error) {
	var z models.Zone
	var level string
	err := row.Scan(&z.Code, &z.Name, &z.ParentCode, &level, &z.Latitude, &z.Longitude, &z.RadiusKm)
	z.Level = models.ZoneLevel(level)
	return z, err
}

func (c *PostgresCatalog) GetService(ctx context.Context, code string) (models.Service, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE code = $1`, code)
	s, err := scanService(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Service{}, notFound("services", code)
	}
	if err != nil {
		return models.Service{}, errors.NewDatabaseError("get service", err)
	}
	return s, nil
}

func (c *PostgresCatalog) GetZone(ctx context.Context, code string) (models.Zone, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+zoneColumns+` FROM zones WHERE code = $1`, code)
	z, err := scanZone(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Zone{}, notFound("zones", code)
	}
	if err != nil {
		return models.Zone{}, errors.NewDatabaseError("get zone", err)
	}
	return z, nil
}

func (c *PostgresCatalog) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY code`)
	if err != nil {
		return nil, errors.NewDatabaseError("list services", err)
	}
	defer rows.Close()

	var out []models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan service", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list services", err)
	}
	return out, nil
}

func (c *PostgresCatalog) ListZones(ctx context.Context) ([]models.Zone, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+zoneColumns+` FROM zones ORDER BY code`)
	if err != nil {
		return nil, errors.NewDatabaseError("list zones", err)
	}
	defer rows.Close()

	var out []models.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan zone", err)
		}
		out = append(out, z)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list zones", err)
	}
	return out, nil
}

func (c *PostgresCatalog) SearchServices(ctx context.Context, query string, limit int) ([]ServiceMatch, error) {
	if c.searcher != nil {
		matches, err := c.searcher.Search(ctx, query, limit)
		if err == nil {
			return matches, nil
		}
		c.logger.Warn("search backend failed, scoring locally", map[string]interface{}{
			"error": err,
			"query": query,
		})
	}

	services, err := c.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	return ScoreServices(services, query, limit), nil
}

func (c *PostgresCatalog) IsServiceAvailable(ctx context.Context, serviceCode, zoneCode string) (bool, error) {
	var ok bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM service_zone_availability WHERE service_code = $1 AND zone_code = $2 AND active)`,
		serviceCode, zoneCode,
	).Scan(&ok)
	if err != nil {
		return false, errors.NewDatabaseError("check availability", err)
	}
	return ok, nil
}

func (c *PostgresCatalog) ZoneAvailability(ctx context.Context, zoneCode string) ([]models.Availability, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT service_code, zone_code, avg_response_minutes, active FROM service_zone_availability WHERE zone_code = $1 AND active ORDER BY service_code`,
		zoneCode,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("zone availability", err)
	}
	defer rows.Close()

	var out []models.Availability
	for rows.Next() {
		var a models.Availability
		if err := rows.Scan(&a.ServiceCode, &a.ZoneCode, &a.AvgResponseMinutes, &a.Active); err != nil {
			return nil, errors.NewDatabaseError("scan availability", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("zone availability", err)
	}
	return out, nil
}

func (c *PostgresCatalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewDatabaseError("create catalog schema", err)
	}
	return nil
}

// Import upserts a seed in a single transaction.
func (c *PostgresCatalog) Import(ctx context.Context, seed *Seed) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError("begin import", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, s := range seed.Services {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO services (`+serviceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			synonyms = EXCLUDED.synonyms, min_price = EXCLUDED.min_price, max_price = EXCLUDED.max_price,
			avg_rating = EXCLUDED.avg_rating, total_bookings = EXCLUDED.total_bookings`,
			s.Code, s.Name, s.Description, pq.Array(s.Synonyms), s.MinPrice, s.MaxPrice, s.AvgRating, s.TotalBookings,
		); err != nil {
			return errors.NewDatabaseError(fmt.Sprintf("upsert service %s", s.Code), err)
		}
	}

	for _, z := range seed.Zones {
		var parent interface{}
		if z.ParentCode != "" {
			parent = z.ParentCode
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zones (code, name, parent_code, level, latitude, longitude, radius_km) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, parent_code = EXCLUDED.parent_code, level = EXCLUDED.level,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, radius_km = EXCLUDED.radius_km`,
			z.Code, z.Name, parent, string(z.Level), z.Latitude, z.Longitude, z.RadiusKm,
		); err != nil {
			return errors.NewDatabaseError(fmt.Sprintf("upsert zone %s", z.Code), err)
		}
	}

	for _, a := range seed.Availability {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_zone_availability (service_code, zone_code, avg_response_minutes, active) VALUES ($1, $2, $3, $4)
			ON CONFLICT (service_code, zone_code) DO UPDATE SET avg_response_minutes = EXCLUDED.avg_response_minutes, active = EXCLUDED.active`,
			a.ServiceCode, a.ZoneCode, a.AvgResponseMinutes, a.Active,
		); err != nil {
			return errors.NewDatabaseError(fmt.Sprintf("upsert availability %s/%s", a.ServiceCode, a.ZoneCode), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("commit import", err)
	}
	return nil
}
