package models

import "time"

// CourseSettings carries the per-course attendance configuration loaded when
// a session is opened.
type CourseSettings struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	OwnerUserID     string         `db:"owner_user_id" json:"owner_user_id"`
	GeofenceLat     *float64       `db:"geofence_lat" json:"geofence_lat,omitempty"`
	GeofenceLon     *float64       `db:"geofence_lon" json:"geofence_lon,omitempty"`
	GeofenceRadiusM *float64       `db:"geofence_radius_m" json:"geofence_radius_m,omitempty"`
	ToleranceM      *float64       `db:"tolerance_m" json:"tolerance_m,omitempty"`
	SessionDuration *time.Duration `db:"-" json:"-"`
	DurationMinutes *int           `db:"session_duration_minutes" json:"session_duration_minutes,omitempty"`
}

// DefaultGeofence returns the configured course geofence, or false when the
// course has no home location.
func (c *CourseSettings) DefaultGeofence() (Geofence, bool) {
	if c == nil || c.GeofenceLat == nil || c.GeofenceLon == nil {
		return Geofence{}, false
	}
	fence := Geofence{Center: GeoPoint{Latitude: *c.GeofenceLat, Longitude: *c.GeofenceLon}}
	if c.GeofenceRadiusM != nil {
		fence.RadiusMeters = *c.GeofenceRadiusM
	}
	return fence, true
}

// RosterStudent is one active enrollment at session-open time.
type RosterStudent struct {
	StudentID string `db:"student_id" json:"student_id"`
	Email     string `db:"email" json:"email"`
	FullName  string `db:"full_name" json:"full_name"`
}
