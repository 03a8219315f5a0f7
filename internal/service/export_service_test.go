package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

type rosterStub struct {
	all      []models.EnrollmentDetail
	byCourse map[string][]models.EnrollmentDetail
}

func (r rosterStub) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	return r.all, nil
}

func (r rosterStub) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return r.byCourse[courseID], nil
}

func rosterFixture() rosterStub {
	advisor := "Dr. Advisor"
	created := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	item := models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:                "enr-1",
			Status:            models.EnrollmentStatusApproved,
			InstructorRemarks: "Approved by instructor",
			AdvisorRemarks:    "Approved by advisor",
			CreatedAt:         created,
		},
		StudentName:  "Alice",
		StudentEmail: "alice@example.edu",
		CourseCode:   "CS 301",
		CourseName:   "Operating Systems",
		AdvisorName:  &advisor,
	}
	return rosterStub{
		all:      []models.EnrollmentDetail{item},
		byCourse: map[string][]models.EnrollmentDetail{"course-1": {item}},
	}
}

func newTestExportService() *ExportService {
	svc := NewExportService(rosterFixture(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC) }
	return svc
}

func TestRosterCSVDefault(t *testing.T) {
	result, err := newTestExportService().Roster(context.Background(), dto.EnrollmentExportQuery{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "enrollments-20260201-103000.csv", result.Filename)
	assert.Equal(t, 1, result.Rows)

	records, err := csv.NewReader(bytes.NewReader(result.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Course", records[0][0])
	assert.Equal(t, []string{"CS 301", "Alice", "alice@example.edu", "approved", "Approved by instructor", "Dr. Advisor", "Approved by advisor", "2026-01-15"}, records[1])
}

func TestRosterPDFForCourse(t *testing.T) {
	result, err := newTestExportService().Roster(context.Background(), dto.EnrollmentExportQuery{Format: "PDF", CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, "cs-301-enrollments-20260201-103000.pdf", result.Filename)
	assert.True(t, bytes.HasPrefix(result.Body, []byte("%PDF")))
}

func TestRosterRejectsUnknownFormat(t *testing.T) {
	_, err := newTestExportService().Roster(context.Background(), dto.EnrollmentExportQuery{Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRosterEmptyCourse(t *testing.T) {
	result, err := newTestExportService().Roster(context.Background(), dto.EnrollmentExportQuery{CourseID: "empty"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Rows)
	assert.Equal(t, "enrollments-20260201-103000.csv", result.Filename)
}
