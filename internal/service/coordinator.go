package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rollcall-dev/rollcall-api/internal/models"
	appErrors "github.com/rollcall-dev/rollcall-api/pkg/errors"
	"github.com/rollcall-dev/rollcall-api/pkg/geo"
	"github.com/rollcall-dev/rollcall-api/pkg/mail"
)

type rosterReader interface {
	CourseSettings(ctx context.Context, courseID string) (*models.CourseSettings, error)
	ActiveRoster(ctx context.Context, courseID string) ([]models.RosterStudent, error)
}

type attendanceRecorder interface {
	Record(ctx context.Context, record *models.AttendanceRecord) error
}

type courseNotifier interface {
	Broadcast(courseID string, update models.AttendanceUpdate)
}

type sessionFinalizer interface {
	FinalizeSession(ctx context.Context, session *models.AttendanceSession) int
	Wake()
}

// CoordinatorDefaults are fallbacks applied when neither the request nor the
// course settings carry a value.
type CoordinatorDefaults struct {
	SessionDuration time.Duration
	GeofenceRadiusM float64
}

// Coordinator is the entry point for attendance sessions: it opens sessions,
// resolves check-ins and answers status queries. All validation errors are
// returned before the cache is touched.
type Coordinator struct {
	roster    rosterReader
	writer    attendanceRecorder
	notifier  courseNotifier
	cache     *SessionCache
	otp       *OTPService
	qr        *QRService
	finalizer sessionFinalizer
	mailer    mail.Mailer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	defaults  CoordinatorDefaults
}

// NewCoordinator constructs the session coordinator.
func NewCoordinator(
	roster rosterReader,
	writer attendanceRecorder,
	notifier courseNotifier,
	cache *SessionCache,
	otp *OTPService,
	qr *QRService,
	finalizer sessionFinalizer,
	mailer mail.Mailer,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	now func() time.Time,
	defaults CoordinatorDefaults,
) *Coordinator {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if mailer == nil {
		mailer = mail.NopMailer{}
	}
	if defaults.SessionDuration <= 0 {
		defaults.SessionDuration = 10 * time.Minute
	}
	if defaults.GeofenceRadiusM <= 0 {
		defaults.GeofenceRadiusM = 100
	}
	return &Coordinator{
		roster:    roster,
		writer:    writer,
		notifier:  notifier,
		cache:     cache,
		otp:       otp,
		qr:        qr,
		finalizer: finalizer,
		mailer:    mailer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       now,
		defaults:  defaults,
	}
}

// OpenSessionRequest describes a session-open call.
type OpenSessionRequest struct {
	OTPMode           bool     `json:"otp"`
	QRMode            bool     `json:"qr"`
	DurationMinutes   int      `json:"duration_minutes" validate:"gte=0"`
	StrictMode        bool     `json:"strict_mode"`
	UseCourseLocation bool     `json:"use_course_location"`
	Latitude          *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude         *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	ToleranceMeters   *float64 `json:"tolerance_meters" validate:"omitempty,gt=0"`
}

// SessionDescriptor is returned to the caller after a successful open.
type SessionDescriptor struct {
	CourseID   string          `json:"course_id"`
	CourseName string          `json:"course_name"`
	OpenedAt   time.Time       `json:"opened_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	OTPEnabled bool            `json:"otp_enabled"`
	QREnabled  bool            `json:"qr_enabled"`
	StrictMode bool            `json:"strict_mode"`
	Geofence   models.Geofence `json:"geofence"`
	EntryCount int             `json:"entry_count"`
	QRPayload  string          `json:"qr_payload,omitempty"`
}

// CheckInRequest describes a student check-in attempt. Credential is either
// a numeric OTP code or a scanned QR payload string.
type CheckInRequest struct {
	Credential string   `json:"credential" validate:"required"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// CheckInResult is the terminal outcome of a check-in. AlreadyCheckedIn is
// informational: the entry was resolved earlier and nothing was written.
type CheckInResult struct {
	CourseID         string               `json:"course_id"`
	StudentID        string               `json:"student_id"`
	Status           models.EntryStatus   `json:"status"`
	Method           models.CheckInMethod `json:"method"`
	CheckedInAt      time.Time            `json:"checked_in_at"`
	AlreadyCheckedIn bool                 `json:"already_checked_in"`
}

// OpenSession validates the request, snapshots the course roster and
// registers a new attendance session in the cache.
func (c *Coordinator) OpenSession(ctx context.Context, courseID string, req OpenSessionRequest, claims *models.JWTClaims) (*SessionDescriptor, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := c.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid open-session payload")
	}
	if !req.OTPMode && !req.QRMode {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "at least one of otp or qr mode is required")
	}
	if !req.UseCourseLocation && (req.Latitude == nil || req.Longitude == nil) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "an explicit location is required unless the course location is used")
	}

	settings, err := c.roster.CourseSettings(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course settings")
	}
	if claims.Role != models.RoleAdmin && settings.OwnerUserID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner may open an attendance session")
	}

	fence, err := c.resolveGeofence(req, settings)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if existing, ok := c.cache.Descriptor(courseID); ok {
		if !existing.Expired(now) {
			return nil, appErrors.ErrSessionConflict
		}
		// The previous session expired but has not been swept yet; finalize
		// it now so the new window starts clean.
		if stale, claimed := c.cache.TryRemove(courseID); claimed {
			c.finalizer.FinalizeSession(ctx, stale)
		}
	}

	students, err := c.roster.ActiveRoster(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "course has no active roster")
	}

	duration := c.sessionDuration(req, settings)
	session := &models.AttendanceSession{
		CourseID:    courseID,
		CourseName:  settings.Name,
		OwnerUserID: settings.OwnerUserID,
		OpenedAt:    now,
		ExpiresAt:   now.Add(duration),
		StrictMode:  req.StrictMode,
		Geofence:    fence,
		OTPEnabled:  req.OTPMode,
		QREnabled:   req.QRMode,
		Entries:     make(map[string]*models.AttendanceEntry, len(students)),
	}

	type delivery struct {
		email string
		name  string
		code  string
	}
	var deliveries []delivery

	for _, student := range students {
		entry := &models.AttendanceEntry{
			StudentID: student.StudentID,
			CourseID:  courseID,
			Email:     student.Email,
			FullName:  student.FullName,
		}
		if req.OTPMode {
			entry.OTPSecret = c.otp.DeriveSecret(student.Email + "|" + student.StudentID)
			code, codeErr := c.otp.GenerateCode(entry.OTPSecret)
			if codeErr != nil {
				return nil, appErrors.Wrap(codeErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate one-time code")
			}
			deliveries = append(deliveries, delivery{email: student.Email, name: student.FullName, code: code})
		}
		session.Entries[student.StudentID] = entry
	}

	if req.QRMode {
		session.QRPayload = c.qr.Encode(QRPayload{
			CourseID:   courseID,
			Center:     fence.Center,
			StrictMode: req.StrictMode,
			RadiusM:    fence.RadiusMeters,
			ExpiresAt:  session.ExpiresAt,
		})
	}

	c.cache.Register(session)
	c.finalizer.Wake()

	// Waiting placeholders and broadcasts are best-effort: the session is
	// live regardless, and the sweeper's absent writes are idempotent.
	for _, student := range students {
		record := &models.AttendanceRecord{
			CourseID:        courseID,
			StudentID:       student.StudentID,
			SessionOpenedAt: now,
			Status:          models.StatusWaiting,
			RecordedAt:      now,
		}
		if err := c.writer.Record(ctx, record); err != nil {
			c.logger.Warn("waiting placeholder write failed",
				zap.String("course_id", courseID),
				zap.String("student_id", student.StudentID),
				zap.Error(err))
		}
		c.notifier.Broadcast(courseID, models.AttendanceUpdate{
			CourseID:  courseID,
			StudentID: student.StudentID,
			Status:    models.StatusWaiting,
			At:        now,
		})
	}

	for _, d := range deliveries {
		go func(d delivery) {
			subject := fmt.Sprintf("Attendance code for %s", settings.Name)
			body := fmt.Sprintf("Hi %s,\n\nYour attendance code is %s. It expires at %s.\n", d.name, d.code, session.ExpiresAt.Format(time.RFC1123))
			if err := c.mailer.Send(d.email, subject, body); err != nil {
				c.logger.Warn("otp delivery failed", zap.String("email", d.email), zap.Error(err))
			}
		}(d)
	}

	if c.metrics != nil {
		c.metrics.IncSessionsOpened()
		c.metrics.SetOpenSessions(c.cache.Len())
	}
	c.logger.Info("attendance session opened",
		zap.String("course_id", courseID),
		zap.Int("roster", len(students)),
		zap.Bool("otp", req.OTPMode),
		zap.Bool("qr", req.QRMode),
		zap.Time("expires_at", session.ExpiresAt))

	return &SessionDescriptor{
		CourseID:   courseID,
		CourseName: settings.Name,
		OpenedAt:   session.OpenedAt,
		ExpiresAt:  session.ExpiresAt,
		OTPEnabled: session.OTPEnabled,
		QREnabled:  session.QREnabled,
		StrictMode: session.StrictMode,
		Geofence:   fence,
		EntryCount: len(session.Entries),
		QRPayload:  session.QRPayload,
	}, nil
}

// CheckIn resolves a student's check-in attempt against the live session for
// the course. The caller's identity comes from validated claims, never from
// the credential itself.
func (c *Coordinator) CheckIn(ctx context.Context, courseID string, req CheckInRequest, identity models.Identity) (*CheckInResult, error) {
	if err := c.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	desc, ok := c.cache.Descriptor(courseID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no open attendance session for this course")
	}

	now := c.now()
	// Expiration is enforced synchronously, not only by the sweeper, to
	// close the window between deadline and the next sweep tick.
	if desc.Expired(now) {
		c.countCheckIn("", "expired")
		return nil, appErrors.ErrSessionExpired
	}

	entry, ok := c.cache.EntryByStudent(courseID, identity.UserID)
	if !ok {
		entry, ok = c.cache.EntryByEmail(courseID, identity.Email)
	}
	if !ok {
		c.countCheckIn("", "not_in_roster")
		return nil, appErrors.ErrStudentNotInRoster
	}

	if entry.CheckedIn {
		c.countCheckIn(string(entry.Method), "already")
		return c.alreadyCheckedInResult(courseID, entry), nil
	}

	method, fence, strict, err := c.resolveCredential(desc, entry, req.Credential, now)
	if err != nil {
		c.countCheckIn(string(method), "rejected")
		return nil, err
	}

	if strict {
		if req.Latitude == nil || req.Longitude == nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "a reported location is required for this session")
		}
		if !geo.WithinRadius(fence.Center.Latitude, fence.Center.Longitude, *req.Latitude, *req.Longitude, fence.RadiusMeters) {
			c.countCheckIn(string(method), "out_of_range")
			return nil, appErrors.ErrOutOfRange
		}
	}

	switch c.cache.MarkCheckedIn(courseID, entry.StudentID, method, now) {
	case MarkAlreadyCheckedIn:
		// Lost the race to a concurrent attempt; treat as idempotent repeat.
		refreshed, _ := c.cache.EntryByStudent(courseID, entry.StudentID)
		c.countCheckIn(string(method), "already")
		return c.alreadyCheckedInResult(courseID, refreshed), nil
	case MarkSessionNotFound:
		// Swept between the descriptor read and the flip.
		c.countCheckIn(string(method), "expired")
		return nil, appErrors.ErrSessionExpired
	case MarkStudentNotFound:
		c.countCheckIn(string(method), "not_in_roster")
		return nil, appErrors.ErrStudentNotInRoster
	}

	methodCopy := method
	record := &models.AttendanceRecord{
		CourseID:        courseID,
		StudentID:       entry.StudentID,
		SessionOpenedAt: desc.OpenedAt,
		Status:          models.StatusPresent,
		Method:          &methodCopy,
		RecordedAt:      now,
	}
	if err := c.writer.Record(ctx, record); err != nil {
		// The in-memory flip stands: the entry is present, the sweeper will
		// not mark it absent, and the persisted row is missing until a
		// retry. Known at-least-once-memory inconsistency.
		c.countCheckIn(string(method), "persistence_error")
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}

	c.notifier.Broadcast(courseID, models.AttendanceUpdate{
		CourseID:  courseID,
		StudentID: entry.StudentID,
		Status:    models.StatusPresent,
		Method:    method,
		At:        now,
	})
	c.countCheckIn(string(method), "success")
	c.logger.Info("student checked in",
		zap.String("course_id", courseID),
		zap.String("student_id", entry.StudentID),
		zap.String("method", string(method)))

	return &CheckInResult{
		CourseID:    courseID,
		StudentID:   entry.StudentID,
		Status:      models.EntryPresent,
		Method:      method,
		CheckedInAt: now,
	}, nil
}

// MarkPresentManually resolves a student's entry on the teacher's say-so, for
// students who cannot produce a code or payload. Restricted to the course
// owner and admins; follows the same CAS flip and persistence path as a
// regular check-in.
func (c *Coordinator) MarkPresentManually(ctx context.Context, courseID, studentID string, claims *models.JWTClaims) (*CheckInResult, error) {
	desc, ok := c.cache.Descriptor(courseID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no open attendance session for this course")
	}
	if claims == nil || (claims.Role != models.RoleAdmin && desc.OwnerUserID != claims.UserID) {
		return nil, appErrors.ErrForbidden
	}

	now := c.now()
	if desc.Expired(now) {
		c.countCheckIn(string(models.MethodManual), "expired")
		return nil, appErrors.ErrSessionExpired
	}

	entry, ok := c.cache.EntryByStudent(courseID, studentID)
	if !ok {
		c.countCheckIn(string(models.MethodManual), "not_in_roster")
		return nil, appErrors.ErrStudentNotInRoster
	}
	if entry.CheckedIn {
		c.countCheckIn(string(entry.Method), "already")
		return c.alreadyCheckedInResult(courseID, entry), nil
	}

	switch c.cache.MarkCheckedIn(courseID, studentID, models.MethodManual, now) {
	case MarkAlreadyCheckedIn:
		refreshed, _ := c.cache.EntryByStudent(courseID, studentID)
		c.countCheckIn(string(models.MethodManual), "already")
		return c.alreadyCheckedInResult(courseID, refreshed), nil
	case MarkSessionNotFound:
		c.countCheckIn(string(models.MethodManual), "expired")
		return nil, appErrors.ErrSessionExpired
	case MarkStudentNotFound:
		c.countCheckIn(string(models.MethodManual), "not_in_roster")
		return nil, appErrors.ErrStudentNotInRoster
	}

	method := models.MethodManual
	record := &models.AttendanceRecord{
		CourseID:        courseID,
		StudentID:       studentID,
		SessionOpenedAt: desc.OpenedAt,
		Status:          models.StatusPresent,
		Method:          &method,
		RecordedAt:      now,
	}
	if err := c.writer.Record(ctx, record); err != nil {
		c.countCheckIn(string(method), "persistence_error")
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, appErrors.ErrPersistence.Message)
	}

	c.notifier.Broadcast(courseID, models.AttendanceUpdate{
		CourseID:  courseID,
		StudentID: studentID,
		Status:    models.StatusPresent,
		Method:    method,
		At:        now,
	})
	c.countCheckIn(string(method), "success")
	c.logger.Info("student marked present manually",
		zap.String("course_id", courseID),
		zap.String("student_id", studentID),
		zap.String("resolved_by", claims.UserID))

	return &CheckInResult{
		CourseID:    courseID,
		StudentID:   studentID,
		Status:      models.EntryPresent,
		Method:      method,
		CheckedInAt: now,
	}, nil
}

// GetSessionStatus returns the per-student status list for the live session.
func (c *Coordinator) GetSessionStatus(courseID string) ([]models.EntryView, error) {
	views, ok := c.cache.EntrySnapshot(courseID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no open attendance session for this course")
	}
	return views, nil
}

// SessionQRImage renders the live session's QR payload as a PNG. Restricted
// to the course owner.
func (c *Coordinator) SessionQRImage(courseID string, claims *models.JWTClaims) ([]byte, error) {
	desc, ok := c.cache.Descriptor(courseID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no open attendance session for this course")
	}
	if claims == nil || (claims.Role != models.RoleAdmin && desc.OwnerUserID != claims.UserID) {
		return nil, appErrors.ErrForbidden
	}
	if !desc.QREnabled {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "session was not opened in qr mode")
	}
	return c.qr.RenderPNG(desc.QRPayload)
}

// CloseSession finalizes the live session early through the sweeper's path.
func (c *Coordinator) CloseSession(ctx context.Context, courseID string, claims *models.JWTClaims) error {
	desc, ok := c.cache.Descriptor(courseID)
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "no open attendance session for this course")
	}
	if claims == nil || (claims.Role != models.RoleAdmin && desc.OwnerUserID != claims.UserID) {
		return appErrors.ErrForbidden
	}
	session, claimed := c.cache.TryRemove(courseID)
	if !claimed {
		return appErrors.Clone(appErrors.ErrNotFound, "no open attendance session for this course")
	}
	c.finalizer.FinalizeSession(ctx, session)
	if c.metrics != nil {
		c.metrics.SetOpenSessions(c.cache.Len())
	}
	return nil
}

func (c *Coordinator) alreadyCheckedInResult(courseID string, entry models.AttendanceEntry) *CheckInResult {
	return &CheckInResult{
		CourseID:         courseID,
		StudentID:        entry.StudentID,
		Status:           models.EntryPresent,
		Method:           entry.Method,
		CheckedInAt:      entry.CheckedInAt,
		AlreadyCheckedIn: true,
	}
}

// resolveCredential validates the credential and returns the method plus the
// geofence to enforce. QR payload expiry is a business check here: a
// well-formed but stale payload is SessionExpired, not MalformedPayload.
func (c *Coordinator) resolveCredential(desc models.AttendanceSession, entry models.AttendanceEntry, credential string, now time.Time) (models.CheckInMethod, models.Geofence, bool, error) {
	if c.qr.LooksLikePayload(credential) {
		if !desc.QREnabled {
			return models.MethodQR, models.Geofence{}, false, appErrors.Clone(appErrors.ErrInvalidRequest, "session does not accept qr check-ins")
		}
		payload, err := c.qr.Decode(credential)
		if err != nil {
			return models.MethodQR, models.Geofence{}, false, err
		}
		if payload.CourseID != desc.CourseID {
			return models.MethodQR, models.Geofence{}, false, appErrors.Clone(appErrors.ErrMalformedPayload, "payload does not match this course")
		}
		if !now.Before(payload.ExpiresAt) {
			return models.MethodQR, models.Geofence{}, false, appErrors.ErrSessionExpired
		}
		fence := models.Geofence{Center: payload.Center, RadiusMeters: payload.RadiusM}
		if entry.Geofence != nil {
			fence = *entry.Geofence
		}
		return models.MethodQR, fence, payload.StrictMode, nil
	}

	if !desc.OTPEnabled {
		return models.MethodOTP, models.Geofence{}, false, appErrors.Clone(appErrors.ErrInvalidRequest, "session does not accept otp check-ins")
	}
	if !c.otp.Verify(entry.OTPSecret, credential) {
		return models.MethodOTP, models.Geofence{}, false, appErrors.ErrInvalidOrExpiredCode
	}
	fence := desc.Geofence
	if entry.Geofence != nil {
		fence = *entry.Geofence
	}
	return models.MethodOTP, fence, desc.StrictMode, nil
}

func (c *Coordinator) resolveGeofence(req OpenSessionRequest, settings *models.CourseSettings) (models.Geofence, error) {
	radius := c.defaults.GeofenceRadiusM
	if settings.ToleranceM != nil && *settings.ToleranceM > 0 {
		radius = *settings.ToleranceM
	}
	if req.ToleranceMeters != nil {
		radius = *req.ToleranceMeters
	}

	if req.UseCourseLocation {
		fence, ok := settings.DefaultGeofence()
		if !ok {
			return models.Geofence{}, appErrors.ErrConfigurationMissing
		}
		if fence.RadiusMeters <= 0 || req.ToleranceMeters != nil {
			fence.RadiusMeters = radius
		}
		return fence, nil
	}

	return models.Geofence{
		Center:       models.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude},
		RadiusMeters: radius,
	}, nil
}

func (c *Coordinator) sessionDuration(req OpenSessionRequest, settings *models.CourseSettings) time.Duration {
	if req.DurationMinutes > 0 {
		return time.Duration(req.DurationMinutes) * time.Minute
	}
	if settings.DurationMinutes != nil && *settings.DurationMinutes > 0 {
		return time.Duration(*settings.DurationMinutes) * time.Minute
	}
	return c.defaults.SessionDuration
}

func (c *Coordinator) countCheckIn(method, outcome string) {
	if c.metrics == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	c.metrics.IncCheckIn(method, outcome)
}
