package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"

	"service-intake/internal/common/errors"
	"service-intake/internal/common/logger"
	"service-intake/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int) ([]ServiceMatch, error) {
	return nil, stderrors.New("connection refused")
}

var serviceRowColumns = []string{"code", "name", "description", "synonyms", "min_price", "max_price", "avg_rating", "total_bookings"}

func setupPostgres(t *testing.T, searcher Searcher) (*PostgresCatalog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresCatalog(db, searcher, logger.NewTestLogger(t)), mock
}

func TestPostgresCatalog_GetService(t *testing.T) {
	c, mock := setupPostgres(t, nil)

	mock.ExpectQuery("SELECT (.+) FROM services WHERE code = \\$1").
		WithArgs("plomberie").
		WillReturnRows(sqlmock.NewRows(serviceRowColumns).
			AddRow("plomberie", "Plomberie", "Fuites", "{plombier,fuite}", 5000.0, 30000.0, 4.5, 120))

	svc, err := c.GetService(context.Background(), "plomberie")
	require.NoError(t, err)
	assert.Equal(t, []string{"plombier", "fuite"}, svc.Synonyms)
	assert.Equal(t, 120, svc.TotalBookings)

	mock.ExpectQuery("SELECT (.+) FROM services WHERE code = \\$1").
		WithArgs("plombrie").
		WillReturnError(sql.ErrNoRows)

	_, err = c.GetService(context.Background(), "plombrie")
	assert.True(t, IsNotFound(err))

	mock.ExpectQuery("SELECT (.+) FROM services WHERE code = \\$1").
		WithArgs("menage").
		WillReturnError(stderrors.New("driver: bad connection"))

	_, err = c.GetService(context.Background(), "menage")
	assert.Equal(t, errors.KindDatabase, errors.KindOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_GetZone(t *testing.T) {
	c, mock := setupPostgres(t, nil)

	mock.ExpectQuery("SELECT (.+) FROM zones WHERE code = \\$1").
		WithArgs("akwa").
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "parent_code", "level", "latitude", "longitude", "radius_km"}).
			AddRow("akwa", "Akwa", "douala", "district", 4.0469, 9.7046, 2.0))

	z, err := c.GetZone(context.Background(), "akwa")
	require.NoError(t, err)
	assert.Equal(t, models.ZoneDistrict, z.Level)
	assert.Equal(t, "douala", z.ParentCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_SearchFallsBackToTokenScoring(t *testing.T) {
	c, mock := setupPostgres(t, failingSearcher{})

	mock.ExpectQuery("SELECT (.+) FROM services ORDER BY code").
		WillReturnRows(sqlmock.NewRows(serviceRowColumns).
			AddRow("menage", "Ménage", "Nettoyage de maison", "{nettoyage}", 3000.0, 15000.0, 4.6, 200).
			AddRow("plomberie", "Plomberie", "Réparation de fuite d'eau", "{fuite}", 5000.0, 30000.0, 4.5, 120))

	matches, err := c.SearchServices(context.Background(), "fuite", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "plomberie", matches[0].Service.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Availability(t *testing.T) {
	c, mock := setupPostgres(t, nil)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("plomberie", "akwa").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := c.IsServiceAvailable(context.Background(), "plomberie", "akwa")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT service_code, zone_code, avg_response_minutes, active FROM service_zone_availability").
		WithArgs("akwa").
		WillReturnRows(sqlmock.NewRows([]string{"service_code", "zone_code", "avg_response_minutes", "active"}).
			AddRow("electricite", "akwa", 35.0, true).
			AddRow("plomberie", "akwa", 90.0, true))

	rows, err := c.ZoneAvailability(context.Background(), "akwa")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_Import(t *testing.T) {
	c, mock := setupPostgres(t, nil)

	seed := &Seed{
		Services:     []models.Service{{Code: "plomberie", Name: "Plomberie", Synonyms: []string{"fuite"}}},
		Zones:        []models.Zone{{Code: "douala", Name: "Douala", Level: models.ZoneCity}},
		Availability: []models.Availability{{ServiceCode: "plomberie", ZoneCode: "douala", Active: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO services").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO zones").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO service_zone_availability").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, c.Import(context.Background(), seed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_ImportRollsBack(t *testing.T) {
	c, mock := setupPostgres(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO services").WillReturnError(stderrors.New("unique violation"))
	mock.ExpectRollback()

	err := c.Import(context.Background(), &Seed{Services: []models.Service{{Code: "x"}}})
	require.Error(t, err)
	assert.Equal(t, errors.KindDatabase, errors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_EnsureSchema(t *testing.T) {
	c, mock := setupPostgres(t, nil)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS services").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, c.EnsureSchema(context.Background()))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS services").WillReturnError(stderrors.New("permission denied for schema public"))
	err := c.EnsureSchema(context.Background())
	assert.Equal(t, errors.KindDatabase, errors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
