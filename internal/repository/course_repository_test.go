package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCourseRepositoryCourseSettings(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	lat, lon, radius := -6.914744, 107.609810, 80.0
	duration := 45
	rows := sqlmock.NewRows([]string{
		"id", "name", "owner_user_id", "geofence_lat", "geofence_lon", "geofence_radius_m", "tolerance_m", "session_duration_minutes",
	}).AddRow("course-1", "Distributed Systems", "teacher-1", lat, lon, radius, nil, duration)

	mock.ExpectQuery("SELECT id, name, owner_user_id").
		WithArgs("course-1").
		WillReturnRows(rows)

	settings, err := repo.CourseSettings(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", settings.OwnerUserID)

	fence, ok := settings.DefaultGeofence()
	require.True(t, ok)
	assert.InDelta(t, lat, fence.Center.Latitude, 1e-6)
	assert.InDelta(t, radius, fence.RadiusMeters, 0.1)
	require.NotNil(t, settings.DurationMinutes)
	assert.Equal(t, 45, *settings.DurationMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCourseSettingsNotFound(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT id, name, owner_user_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.CourseSettings(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryActiveRoster(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "email", "full_name"}).
		AddRow("stu-1", "ana@example.com", "Ana").
		AddRow("stu-2", "ben@example.com", "Ben")

	mock.ExpectQuery("SELECT e.student_id, u.email, u.full_name").
		WithArgs("course-1").
		WillReturnRows(rows)

	roster, err := repo.ActiveRoster(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Ana", roster[0].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}
