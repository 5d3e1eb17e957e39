package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rollcall-dev/rollcall-api/internal/realtime"
	appErrors "github.com/rollcall-dev/rollcall-api/pkg/errors"
	"github.com/rollcall-dev/rollcall-api/pkg/response"
)

// LiveHandler upgrades subscribers onto the attendance broadcast hub.
type LiveHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewLiveHandler creates a new handler.
func NewLiveHandler(hub *realtime.Hub, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Subscribe godoc
// @Summary Subscribe to live attendance updates
// @Description Upgrade to a websocket delivering per-course attendance updates
// @Tags Attendance Sessions
// @Param course_id query string true "Course ID"
// @Success 101 {string} string "Switching Protocols"
// @Failure 400 {object} response.Envelope
// @Router /attendance/live [get]
func (h *LiveHandler) Subscribe(c *gin.Context) {
	courseID := c.Query("course_id")
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidRequest, "course_id is required"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(h.hub, courseID, conn, h.logger)
	h.hub.Subscribe(courseID, client)
}
