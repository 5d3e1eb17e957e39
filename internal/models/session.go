package models

import "time"

// CheckInMethod identifies how an entry was resolved.
type CheckInMethod string

const (
	MethodOTP    CheckInMethod = "OTP"
	MethodQR     CheckInMethod = "QR"
	MethodManual CheckInMethod = "MANUAL"
)

// EntryStatus is the per-student state within a session. Waiting is the only
// non-terminal state; Present and Absent are terminal and mutually exclusive.
type EntryStatus string

const (
	EntryWaiting EntryStatus = "WAITING"
	EntryPresent EntryStatus = "PRESENT"
	EntryAbsent  EntryStatus = "ABSENT"
)

// AttendanceEntry is one student's pending or resolved status within a
// session. The entry set is fixed at session-open; CheckedIn is monotonic and
// flips at most once, under the session cache's lock.
type AttendanceEntry struct {
	StudentID   string        `json:"student_id"`
	CourseID    string        `json:"course_id"`
	Email       string        `json:"email"`
	FullName    string        `json:"full_name"`
	OTPSecret   string        `json:"-"`
	Geofence    *Geofence     `json:"geofence,omitempty"`
	CheckedIn   bool          `json:"checked_in"`
	CheckedInAt time.Time     `json:"checked_in_at,omitempty"`
	Method      CheckInMethod `json:"method,omitempty"`
}

// AttendanceSession is one open attendance-taking window for a course. A
// course has at most one live session; the session key is the course ID.
type AttendanceSession struct {
	CourseID    string                      `json:"course_id"`
	CourseName  string                      `json:"course_name"`
	OwnerUserID string                      `json:"owner_user_id"`
	OpenedAt    time.Time                   `json:"opened_at"`
	ExpiresAt   time.Time                   `json:"expires_at"`
	StrictMode  bool                        `json:"strict_mode"`
	Geofence    Geofence                    `json:"geofence"`
	OTPEnabled  bool                        `json:"otp_enabled"`
	QREnabled   bool                        `json:"qr_enabled"`
	QRPayload   string                      `json:"-"`
	Entries     map[string]*AttendanceEntry `json:"-"`
}

// Expired reports whether the session deadline has passed at the given time.
func (s *AttendanceSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// EntryView is a read-only snapshot of an entry for status listings and
// broadcasts.
type EntryView struct {
	StudentID   string        `json:"student_id"`
	FullName    string        `json:"full_name"`
	Status      EntryStatus   `json:"status"`
	Method      CheckInMethod `json:"method,omitempty"`
	CheckedInAt *time.Time    `json:"checked_in_at,omitempty"`
}

// AttendanceUpdate is one live status change pushed to course subscribers.
type AttendanceUpdate struct {
	CourseID  string           `json:"course_id"`
	StudentID string           `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
	Method    CheckInMethod    `json:"method,omitempty"`
	At        time.Time        `json:"at"`
}
