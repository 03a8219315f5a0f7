package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
	"github.com/noah-isme/aims-enrollment-api/pkg/response"
)

type enrollmentService interface {
	Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentDetail, error)
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListAll(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListForStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListForInstructor(ctx context.Context, instructorID string) ([]models.EnrollmentDetail, error)
	ListForAdvisor(ctx context.Context, advisorID string) ([]models.EnrollmentDetail, error)
	InstructorAction(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error)
	AdvisorAction(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error)
	History(ctx context.Context, id string) ([]models.AuditLog, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, query dto.EnrollmentExportQuery) (*service.ExportResult, error)
}

// EnrollmentHandler exposes the approval workflow.
type EnrollmentHandler struct {
	service  enrollmentService
	exporter rosterExporter
}

// NewEnrollmentHandler constructs an EnrollmentHandler.
func NewEnrollmentHandler(svc enrollmentService, exporter rosterExporter) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc, exporter: exporter}
}

// Create godoc
// @Summary Request enrollment in a course
// @Description Students may only request for themselves; the student id defaults to the caller.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateEnrollmentRequest true "Enrollment request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	var req dto.CreateEnrollmentRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	if claims.Role == models.RoleStudent {
		if req.StudentID == "" {
			req.StudentID = claims.UserID
		}
		if req.StudentID != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves"))
			return
		}
	}

	enrollment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List all enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	h.respondList(c, h.service.ListAll)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	enrollment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !canView(claims, enrollment) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this enrollment"))
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// History godoc
// @Summary Audit trail of an enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/history [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	logs, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// ListForStudent godoc
// @Summary List a student's enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/student/{id} [get]
func (h *EnrollmentHandler) ListForStudent(c *gin.Context) {
	h.respondListFor(c, h.service.ListForStudent)
}

// ListForInstructor godoc
// @Summary List enrollment requests on an instructor's courses
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/instructor/{id} [get]
func (h *EnrollmentHandler) ListForInstructor(c *gin.Context) {
	h.respondListFor(c, h.service.ListForInstructor)
}

// ListForAdvisor godoc
// @Summary List requests awaiting or decided by an advisor
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Advisor ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/advisor/{id} [get]
func (h *EnrollmentHandler) ListForAdvisor(c *gin.Context) {
	h.respondListFor(c, h.service.ListForAdvisor)
}

// InstructorAction godoc
// @Summary Instructor approves or rejects a pending request
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body dto.EnrollmentActionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/instructor-action [patch]
func (h *EnrollmentHandler) InstructorAction(c *gin.Context) {
	h.act(c, h.service.InstructorAction)
}

// AdvisorAction godoc
// @Summary Advisor gives the final decision
// @Description Approval takes a seat; it fails with 409 when the course filled up meanwhile.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body dto.EnrollmentActionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/advisor-action [patch]
func (h *EnrollmentHandler) AdvisorAction(c *gin.Context) {
	h.act(c, h.service.AdvisorAction)
}

// Export godoc
// @Summary Export the enrollment roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param courseId query string false "Limit to one course"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	var query dto.EnrollmentExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	result, err := h.exporter.Roster(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}

type decisionFunc func(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error)

func (h *EnrollmentHandler) act(c *gin.Context, decide decisionFunc) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	var req dto.EnrollmentActionRequest
	if !bindJSON(c, &req, "invalid action payload") {
		return
	}
	req.ActorID = claims.UserID
	req.ActorRole = claims.Role

	enrollment, err := decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

func (h *EnrollmentHandler) respondList(c *gin.Context, list func(ctx context.Context) ([]models.EnrollmentDetail, error)) {
	items, err := list(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

func (h *EnrollmentHandler) respondListFor(c *gin.Context, list func(ctx context.Context, id string) ([]models.EnrollmentDetail, error)) {
	items, err := list(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

func canView(claims *models.JWTClaims, e *models.EnrollmentDetail) bool {
	if ownsOrAdmin(claims, e.StudentID) {
		return true
	}
	switch claims.Role {
	case models.RoleInstructor:
		return e.InstructorID == claims.UserID
	case models.RoleAdvisor:
		return e.AdvisorID == nil || *e.AdvisorID == claims.UserID
	}
	return false
}
