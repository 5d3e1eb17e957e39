package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rollcall-dev/rollcall-api/internal/models"
	"github.com/rollcall-dev/rollcall-api/internal/service"
	appErrors "github.com/rollcall-dev/rollcall-api/pkg/errors"
	"github.com/rollcall-dev/rollcall-api/pkg/response"
)

// SessionHandler exposes the attendance-session endpoints.
type SessionHandler struct {
	coordinator *service.Coordinator
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(coordinator *service.Coordinator) *SessionHandler {
	return &SessionHandler{coordinator: coordinator}
}

// Open godoc
// @Summary Open an attendance session
// @Description Open a timed attendance session for a course
// @Tags Attendance Sessions
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body service.OpenSessionRequest true "Session parameters"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{courseId}/attendance/sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	var req service.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}

	desc, err := h.coordinator.OpenSession(c.Request.Context(), c.Param("courseId"), req, currentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, desc)
}

// CheckIn godoc
// @Summary Check in to the open session
// @Description Resolve a student's check-in with an OTP code or QR payload
// @Tags Attendance Sessions
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body service.CheckInRequest true "Check-in credential"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /courses/{courseId}/attendance/check-in [post]
func (h *SessionHandler) CheckIn(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check-in payload"))
		return
	}

	identity := models.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
	result, err := h.coordinator.CheckIn(c.Request.Context(), c.Param("courseId"), req, identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// ManualCheckIn godoc
// @Summary Manually mark a student present
// @Description Resolve a roster entry without a credential, on the teacher's authority
// @Tags Attendance Sessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /courses/{courseId}/attendance/sessions/current/students/{studentId}/check-in [post]
func (h *SessionHandler) ManualCheckIn(c *gin.Context) {
	result, err := h.coordinator.MarkPresentManually(c.Request.Context(), c.Param("courseId"), c.Param("studentId"), currentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Current godoc
// @Summary Live session status
// @Description Per-student status list for the open session
// @Tags Attendance Sessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/attendance/sessions/current [get]
func (h *SessionHandler) Current(c *gin.Context) {
	views, err := h.coordinator.GetSessionStatus(c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views, nil)
}

// QRImage godoc
// @Summary Session QR code
// @Description Render the open session's QR payload as a PNG
// @Tags Attendance Sessions
// @Produce png
// @Param courseId path string true "Course ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/attendance/sessions/current/qr.png [get]
func (h *SessionHandler) QRImage(c *gin.Context) {
	png, err := h.coordinator.SessionQRImage(c.Param("courseId"), currentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// Close godoc
// @Summary Close the open session
// @Description Finalize the open session early, marking non-checked-in students absent
// @Tags Attendance Sessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{courseId}/attendance/sessions/current [delete]
func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.coordinator.CloseSession(c.Request.Context(), c.Param("courseId"), currentClaims(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
