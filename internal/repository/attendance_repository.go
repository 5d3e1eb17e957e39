package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

// AttendanceRepository handles persistence for per-session attendance
// records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Record upserts one attendance outcome. The (course, student, session) triple
// is unique; a waiting placeholder is promoted in place, and a stored PRESENT
// is never downgraded.
func (r *AttendanceRepository) Record(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	query := `INSERT INTO attendance_records (id, course_id, student_id, session_opened_at, status, method, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (course_id, student_id, session_opened_at)
DO UPDATE SET status = EXCLUDED.status, method = EXCLUDED.method, recorded_at = EXCLUDED.recorded_at
WHERE attendance_records.status <> 'PRESENT'`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.CourseID, record.StudentID, record.SessionOpenedAt,
		record.Status, record.Method, record.RecordedAt); err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	return nil
}

// Exists reports whether a record with the given status is already stored for
// the session entry.
func (r *AttendanceRepository) Exists(ctx context.Context, courseID, studentID string, sessionOpenedAt time.Time, status models.AttendanceStatus) (bool, error) {
	query := `SELECT EXISTS (
SELECT 1 FROM attendance_records
WHERE course_id = $1 AND student_id = $2 AND session_opened_at = $3 AND status = $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, courseID, studentID, sessionOpenedAt, status); err != nil {
		return false, fmt.Errorf("check attendance record: %w", err)
	}
	return exists, nil
}

// List returns attendance rows with student metadata matching the filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRow, int, error) {
	base := `FROM attendance_records ar
JOIN users u ON u.id = ar.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("ar.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.session_opened_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.session_opened_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 10000 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.course_id, ar.student_id, ar.session_opened_at, ar.status, ar.method, ar.recorded_at,
        u.full_name AS student_name, u.email AS student_email
        %s WHERE %s
        ORDER BY ar.session_opened_at %s, u.full_name ASC
        LIMIT %d OFFSET %d`, base, whereClause, order, size, offset)

	var rows []models.AttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}
