package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-dev/rollcall-api/internal/models"
	appErrors "github.com/rollcall-dev/rollcall-api/pkg/errors"
	"github.com/rollcall-dev/rollcall-api/pkg/export"
)

type attendanceReader interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRow, int, error)
}

// ReportService answers persisted-attendance queries and renders exports.
// Listings are cached per filter; session finalization invalidates the
// course's keys through InvalidateCourse.
type ReportService struct {
	repo     attendanceReader
	cache    *CacheService
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewReportService constructs a report service.
func NewReportService(repo attendanceReader, cache *CacheService, logger *zap.Logger, cacheTTL time.Duration) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:     repo,
		cache:    cache,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// AttendanceListResult is a paginated attendance listing.
type AttendanceListResult struct {
	Rows       []models.AttendanceRow `json:"rows"`
	Pagination models.Pagination      `json:"pagination"`
}

// List returns persisted attendance rows matching the filter.
func (s *ReportService) List(ctx context.Context, filter models.AttendanceFilter) (*AttendanceListResult, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown attendance status")
	}

	key := s.cacheKey(filter)
	var cached AttendanceListResult
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}

	result := &AttendanceListResult{
		Rows: rows,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}
	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		s.logger.Warn("attendance list cache set failed", zap.Error(err))
	}
	return result, nil
}

// ExportFile is a rendered report ready to be written to the response.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Export renders the filtered attendance rows as csv or pdf.
func (s *ReportService) Export(ctx context.Context, filter models.AttendanceFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "format must be csv or pdf")
	}

	// Exports are unpaginated by design.
	filter.Page = 1
	filter.PageSize = 10000
	rows, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}

	generatedAt := time.Now().UTC()
	sheet := export.Sheet{
		Title:       "Attendance Report",
		Columns:     []string{"Student", "Email", "Course", "Session", "Status", "Method", "Recorded At"},
		GeneratedAt: generatedAt,
	}
	for _, row := range rows {
		method := ""
		if row.Method != nil {
			method = string(*row.Method)
		}
		sheet.Rows = append(sheet.Rows, []string{
			row.StudentName,
			row.StudentEmail,
			row.CourseID,
			row.SessionOpenedAt.Format(time.RFC3339),
			string(row.Status),
			method,
			row.RecordedAt.Format(time.RFC3339),
		})
	}

	stamp := generatedAt.Format("20060102-150405")
	switch format {
	case "csv":
		content, err := s.csv.Render(sheet)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("attendance-%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	default:
		content, err := s.pdf.Render(sheet)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("attendance-%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	}
}

// InvalidateCourse drops cached listings for a course after its records
// change.
func (s *ReportService) InvalidateCourse(ctx context.Context, courseID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("attendance:list:%s:*", courseID)); err != nil {
		s.logger.Warn("attendance cache invalidation failed", zap.String("course_id", courseID), zap.Error(err))
	}
}

func (s *ReportService) cacheKey(filter models.AttendanceFilter) string {
	status := ""
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	from, to := "", ""
	if filter.DateFrom != nil {
		from = filter.DateFrom.Format(time.RFC3339)
	}
	if filter.DateTo != nil {
		to = filter.DateTo.Format(time.RFC3339)
	}
	course := filter.CourseID
	if course == "" {
		course = "all"
	}
	return fmt.Sprintf("attendance:list:%s:%s:%s:%s:%s:%d:%d:%s",
		course, filter.StudentID, status, from, to, filter.Page, filter.PageSize, filter.SortOrder)
}
