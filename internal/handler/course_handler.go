package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/middleware"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
	"github.com/noah-isme/aims-enrollment-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, query dto.CourseQuery) ([]models.CourseDetail, error)
	ListOpen(ctx context.Context) ([]models.CourseDetail, bool, error)
	Get(ctx context.Context, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, req dto.CreateCourseRequest, actorID string) (*models.CourseDetail, error)
	Update(ctx context.Context, id string, req dto.UpdateCourseRequest, actorID string) (*models.CourseDetail, error)
	ToggleStatus(ctx context.Context, id string, actorID string) (*models.CourseDetail, error)
	Delete(ctx context.Context, id string, actorID string) error
}

// CourseHandler exposes the course catalogue.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs a CourseHandler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param instructorId query string false "Instructor filter"
// @Param department query string false "Department filter"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var query dto.CourseQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	courses, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// ListOpen godoc
// @Summary List courses accepting enrollments
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /courses/open [get]
func (h *CourseHandler) ListOpen(c *gin.Context) {
	courses, hit, err := h.service.ListOpen(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.MarkCacheHit(c, hit)
	response.JSON(c, http.StatusOK, courses, nil, middleware.Meta(c))
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateCourseRequest true "Course"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	var req dto.CreateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.UpdateCourseRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	var req dto.UpdateCourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ToggleStatus godoc
// @Summary Open or close a course for new requests
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/toggle-status [patch]
func (h *CourseHandler) ToggleStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	course, err := h.service.ToggleStatus(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
