package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-dev/rollcall-api/internal/middleware"
	"github.com/rollcall-dev/rollcall-api/internal/models"
	"github.com/rollcall-dev/rollcall-api/internal/service"
	"github.com/rollcall-dev/rollcall-api/pkg/mail"
)

type courseStub struct{}

func (courseStub) CourseSettings(ctx context.Context, courseID string) (*models.CourseSettings, error) {
	lat, lon := -6.914744, 107.609810
	return &models.CourseSettings{
		ID:          courseID,
		Name:        "Distributed Systems",
		OwnerUserID: "teacher-1",
		GeofenceLat: &lat,
		GeofenceLon: &lon,
	}, nil
}

func (courseStub) ActiveRoster(ctx context.Context, courseID string) ([]models.RosterStudent, error) {
	return []models.RosterStudent{
		{StudentID: "stu-1", Email: "ana@example.com", FullName: "Ana"},
	}, nil
}

type recorderStub struct{}

func (recorderStub) Record(ctx context.Context, record *models.AttendanceRecord) error { return nil }

type notifierStub struct{}

func (notifierStub) Broadcast(courseID string, update models.AttendanceUpdate) {}

type finalizerStub struct{}

func (finalizerStub) FinalizeSession(ctx context.Context, session *models.AttendanceSession) int {
	return 0
}
func (finalizerStub) Wake() {}

func newTestCoordinator() *service.Coordinator {
	return service.NewCoordinator(
		courseStub{}, recorderStub{}, notifierStub{}, service.NewSessionCache(),
		service.NewOTPService(service.OTPConfig{SecretKey: "test-key"}),
		service.NewQRService(128),
		finalizerStub{}, mail.NopMailer{}, nil, nil, nil, nil,
		service.CoordinatorDefaults{SessionDuration: 10 * time.Minute, GeofenceRadiusM: 100},
	)
}

func performSession(t *testing.T, handler *SessionHandler, method, body string, claims *models.JWTClaims, fn gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, "/courses/course-1/attendance", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "courseId", Value: "course-1"}}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	fn(c)
	c.Writer.WriteHeaderNow()
	return w
}

func TestSessionHandlerOpen(t *testing.T) {
	handler := NewSessionHandler(newTestCoordinator())
	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	w := performSession(t, handler, http.MethodPost,
		`{"otp":true,"use_course_location":true}`, claims, handler.Open)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"course_id":"course-1"`)
}

func TestSessionHandlerOpenInvalidBody(t *testing.T) {
	handler := NewSessionHandler(newTestCoordinator())
	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	w := performSession(t, handler, http.MethodPost, `{not-json`, claims, handler.Open)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerOpenConflict(t *testing.T) {
	handler := NewSessionHandler(newTestCoordinator())
	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	body := `{"otp":true,"use_course_location":true}`

	w := performSession(t, handler, http.MethodPost, body, claims, handler.Open)
	require.Equal(t, http.StatusCreated, w.Code)

	w = performSession(t, handler, http.MethodPost, body, claims, handler.Open)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_CONFLICT")
}

func TestSessionHandlerCheckInRequiresClaims(t *testing.T) {
	handler := NewSessionHandler(newTestCoordinator())

	w := performSession(t, handler, http.MethodPost, `{"credential":"123456"}`, nil, handler.CheckIn)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandlerCurrentNotFound(t *testing.T) {
	handler := NewSessionHandler(newTestCoordinator())
	claims := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}

	w := performSession(t, handler, http.MethodGet, "", claims, handler.Current)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandlerCloseForbiddenForNonOwner(t *testing.T) {
	handler := NewSessionHandler(newTestCoordinator())
	owner := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	stranger := &models.JWTClaims{UserID: "teacher-9", Role: models.RoleTeacher}

	w := performSession(t, handler, http.MethodPost,
		`{"otp":true,"use_course_location":true}`, owner, handler.Open)
	require.Equal(t, http.StatusCreated, w.Code)

	w = performSession(t, handler, http.MethodDelete, "", stranger, handler.Close)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performSession(t, handler, http.MethodDelete, "", owner, handler.Close)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
