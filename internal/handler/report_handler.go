package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rollcall-dev/rollcall-api/internal/models"
	"github.com/rollcall-dev/rollcall-api/internal/service"
	"github.com/rollcall-dev/rollcall-api/pkg/response"
)

// ReportHandler exposes persisted-attendance listings and exports.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// List godoc
// @Summary List attendance records
// @Description Paginated persisted attendance records with filters
// @Tags Attendance Reports
// @Produce json
// @Param course_id query string false "Course ID"
// @Param student_id query string false "Student ID"
// @Param status query string false "WAITING, PRESENT or ABSENT"
// @Param date_from query string false "RFC3339 lower bound"
// @Param date_to query string false "RFC3339 upper bound"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance [get]
func (h *ReportHandler) List(c *gin.Context) {
	filter := h.buildFilter(c)

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Rows, &result.Pagination)
}

// Export godoc
// @Summary Export attendance records
// @Description Render filtered attendance records as csv or pdf
// @Tags Attendance Reports
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Param course_id query string false "Course ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /attendance/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	filter := h.buildFilter(c)

	file, err := h.service.Export(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+file.FileName)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func (h *ReportHandler) buildFilter(c *gin.Context) models.AttendanceFilter {
	filter := models.AttendanceFilter{
		CourseID:  c.Query("course_id"),
		StudentID: c.Query("student_id"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("date_from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateFrom = &ts
		}
	}
	if raw := c.Query("date_to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateTo = &ts
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return filter
}
