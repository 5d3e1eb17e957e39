package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryRecordUpsert(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	openedAt := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	method := models.MethodOTP
	record := &models.AttendanceRecord{
		CourseID:        "course-1",
		StudentID:       "stu-1",
		SessionOpenedAt: openedAt,
		Status:          models.StatusPresent,
		Method:          &method,
		RecordedAt:      openedAt.Add(2 * time.Minute),
	}

	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "course-1", "stu-1", openedAt, models.StatusPresent, &method, record.RecordedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(context.Background(), record))
	assert.NotEmpty(t, record.ID, "an id is assigned when missing")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryExists(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	openedAt := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("course-1", "stu-1", openedAt, models.StatusPresent).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "course-1", "stu-1", openedAt, models.StatusPresent)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryList(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	openedAt := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	status := models.StatusAbsent

	rows := sqlmock.NewRows([]string{
		"id", "course_id", "student_id", "session_opened_at", "status", "method", "recorded_at",
		"student_name", "student_email",
	}).AddRow("rec-1", "course-1", "stu-1", openedAt, status, nil, openedAt.Add(10*time.Minute), "Ana", "ana@example.com")

	mock.ExpectQuery("SELECT ar.id, ar.course_id, ar.student_id").
		WithArgs("course-1", status).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM attendance_records").
		WithArgs("course-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	result, total, err := repo.List(context.Background(), models.AttendanceFilter{
		CourseID: "course-1",
		Status:   &status,
		Page:     1,
		PageSize: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, result, 1)
	assert.Equal(t, "Ana", result[0].StudentName)
	assert.Equal(t, models.StatusAbsent, result[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
