package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
	"github.com/noah-isme/aims-enrollment-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type rosterSource interface {
	ListAll(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

// ExportResult is a rendered file ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders enrollment rosters as CSV or PDF.
type ExportService struct {
	source rosterSource
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(source rosterSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{source: source, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Roster exports all enrollments, or one course's when CourseID is set.
func (s *ExportService) Roster(ctx context.Context, query dto.EnrollmentExportQuery) (*ExportResult, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	var (
		items []models.EnrollmentDetail
		err   error
	)
	if query.CourseID != "" {
		items, err = s.source.ListByCourse(ctx, query.CourseID)
	} else {
		items, err = s.source.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	dataset := rosterDataset(items, query.CourseID)
	var body []byte
	contentType := "text/csv"
	if format == ExportFormatPDF {
		body, err = export.RenderPDF(dataset)
		contentType = "application/pdf"
	} else {
		body, err = export.RenderCSV(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	name := "enrollments"
	if query.CourseID != "" && len(items) > 0 {
		name = sanitizeFilename(items[0].CourseCode) + "-enrollments"
	}
	filename := fmt.Sprintf("%s-%s.%s", name, s.now().Format("20060102-150405"), format)
	s.logger.Info("roster exported", zap.String("format", format), zap.Int("rows", len(items)), zap.String("course_id", query.CourseID))
	return &ExportResult{Filename: filename, ContentType: contentType, Body: body, Rows: len(items)}, nil
}

func rosterDataset(items []models.EnrollmentDetail, courseID string) export.Dataset {
	title := "Enrollment roster"
	if courseID != "" && len(items) > 0 {
		title = fmt.Sprintf("Enrollment roster: %s %s", items[0].CourseCode, items[0].CourseName)
	}
	dataset := export.Dataset{
		Title:   title,
		Columns: []string{"Course", "Student", "Email", "Status", "Instructor Remarks", "Advisor", "Advisor Remarks", "Requested"},
		Rows:    make([][]string, 0, len(items)),
	}
	for _, item := range items {
		dataset.Rows = append(dataset.Rows, []string{
			item.CourseCode,
			item.StudentName,
			item.StudentEmail,
			string(item.Status),
			item.InstructorRemarks,
			deref(item.AdvisorName),
			item.AdvisorRemarks,
			item.CreatedAt.Format("2006-01-02"),
		})
	}
	return dataset
}

func sanitizeFilename(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return "course"
	}
	return strings.ToLower(cleaned)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
