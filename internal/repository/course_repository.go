package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rollcall-dev/rollcall-api/internal/models"
)

// CourseRepository loads course configuration and enrollment rosters.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// CourseSettings loads the attendance configuration for one course. Returns
// sql.ErrNoRows when the course does not exist.
func (r *CourseRepository) CourseSettings(ctx context.Context, courseID string) (*models.CourseSettings, error) {
	query := `SELECT id, name, owner_user_id, geofence_lat, geofence_lon, geofence_radius_m, tolerance_m, session_duration_minutes
FROM courses WHERE id = $1`
	var settings models.CourseSettings
	if err := r.db.GetContext(ctx, &settings, query, courseID); err != nil {
		return nil, fmt.Errorf("get course settings: %w", err)
	}
	return &settings, nil
}

// ActiveRoster returns the students actively enrolled in the course, ordered
// by name for stable session snapshots.
func (r *CourseRepository) ActiveRoster(ctx context.Context, courseID string) ([]models.RosterStudent, error) {
	query := `SELECT e.student_id, u.email, u.full_name
FROM enrollments e
JOIN users u ON u.id = e.student_id
WHERE e.course_id = $1 AND e.active = TRUE AND u.active = TRUE
ORDER BY u.full_name ASC`
	var roster []models.RosterStudent
	if err := r.db.SelectContext(ctx, &roster, query, courseID); err != nil {
		return nil, fmt.Errorf("list active roster: %w", err)
	}
	return roster, nil
}
