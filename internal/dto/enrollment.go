package dto

import "github.com/noah-isme/aims-enrollment-api/internal/models"

// CreateEnrollmentRequest defines the payload for requesting a seat in a course.
type CreateEnrollmentRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	CourseID  string `json:"courseId" validate:"required"`
	AdvisorID string `json:"advisorId,omitempty"`
}

// EnrollmentActionRequest carries an instructor or advisor verdict.
type EnrollmentActionRequest struct {
	Action  models.Decision `json:"action" validate:"required,oneof=approve reject"`
	Remarks string          `json:"remarks" validate:"max=1000"`

	ActorID   string          `json:"-"`
	ActorRole models.UserRole `json:"-"`
}

// EnrollmentExportQuery selects the roster to export.
type EnrollmentExportQuery struct {
	Format   string `form:"format" validate:"omitempty,oneof=csv pdf"`
	CourseID string `form:"courseId"`
}
