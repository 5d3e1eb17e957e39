package models

import "time"

// AttendanceStatus is the persisted status of an attendance record.
type AttendanceStatus string

const (
	StatusWaiting AttendanceStatus = "WAITING"
	StatusPresent AttendanceStatus = "PRESENT"
	StatusAbsent  AttendanceStatus = "ABSENT"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusPresent, StatusAbsent:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the entry lifecycle.
func (s AttendanceStatus) Terminal() bool {
	return s == StatusPresent || s == StatusAbsent
}

// AttendanceRecord is one persisted per-student outcome for a session. The
// (course, student, session_opened_at) triple is unique; writes are upserts so
// the waiting placeholder written at open time is promoted in place.
type AttendanceRecord struct {
	ID              string           `db:"id" json:"id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	SessionOpenedAt time.Time        `db:"session_opened_at" json:"session_opened_at"`
	Status          AttendanceStatus `db:"status" json:"status"`
	Method          *CheckInMethod   `db:"method" json:"method,omitempty"`
	RecordedAt      time.Time        `db:"recorded_at" json:"recorded_at"`
}

// AttendanceRow extends a record with student metadata for report listings.
type AttendanceRow struct {
	AttendanceRecord
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// AttendanceFilter scopes report listing queries.
type AttendanceFilter struct {
	CourseID  string
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}
