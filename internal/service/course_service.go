package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

const (
	courseResource     = "course"
	courseOpenCacheKey = "courses:open"
	courseCachePattern = "courses:*"
)

type courseStore interface {
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SetOpen(ctx context.Context, id string, open bool) error
	Delete(ctx context.Context, id string) error
	CountEnrollments(ctx context.Context, id string) (int, error)
}

// CourseServiceConfig holds catalogue defaults.
type CourseServiceConfig struct {
	CacheTTL        time.Duration
	DefaultMaxSeats int
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo      courseStore
	users     userReader
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CourseServiceConfig
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseStore, users userReader, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg CourseServiceConfig) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultMaxSeats <= 0 {
		cfg.DefaultMaxSeats = 60
	}
	return &CourseService{repo: repo, users: users, cache: cache, audit: audit, validator: validate, logger: logger, cfg: cfg}
}

// List returns the catalogue ordered by code.
func (s *CourseService) List(ctx context.Context, query dto.CourseQuery) ([]models.CourseDetail, error) {
	courses, err := s.repo.List(ctx, models.CourseFilter{InstructorID: query.InstructorID, Department: query.Department})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.CourseDetail{}
	}
	return courses, nil
}

// ListOpen returns courses accepting enrollments, served from cache when possible.
// hit reports whether the cache answered.
func (s *CourseService) ListOpen(ctx context.Context) (courses []models.CourseDetail, hit bool, err error) {
	if s.cache.Get(ctx, courseOpenCacheKey, &courses) {
		return courses, true, nil
	}
	courses, err = s.repo.List(ctx, models.CourseFilter{OpenOnly: true})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open courses")
	}
	if courses == nil {
		courses = []models.CourseDetail{}
	}
	s.cache.Set(ctx, courseOpenCacheKey, courses, s.cfg.CacheTTL)
	return courses, false, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course. Codes are stored upper-case and must be unique.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest, actorID string) (*models.CourseDetail, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.ensureInstructor(ctx, req.InstructorID); err != nil {
		return nil, err
	}

	course := &models.Course{
		Code:         req.Code,
		Name:         req.Name,
		Description:  strings.TrimSpace(req.Description),
		Credits:      req.Credits,
		Department:   strings.TrimSpace(req.Department),
		InstructorID: req.InstructorID,
		MaxSeats:     req.MaxSeats,
		IsOpen:       true,
	}
	if course.MaxSeats == 0 {
		course.MaxSeats = s.cfg.DefaultMaxSeats
	}
	if req.IsOpen != nil {
		course.IsOpen = *req.IsOpen
	}

	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.cache.Invalidate(ctx, courseCachePattern)
	s.emitAudit(ctx, actorID, models.AuditActionCourseCreate, course.ID, nil, course)
	return s.Get(ctx, course.ID)
}

// Update edits catalogue fields. The seat limit may not drop below the enrolled count.
func (s *CourseService) Update(ctx context.Context, id string, req dto.UpdateCourseRequest, actorID string) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := current.Course
	course := current.Course
	if req.Code != nil {
		course.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if req.Name != nil {
		course.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		course.Description = strings.TrimSpace(*req.Description)
	}
	if req.Credits != nil {
		course.Credits = *req.Credits
	}
	if req.Department != nil {
		course.Department = strings.TrimSpace(*req.Department)
	}
	if req.InstructorID != nil && *req.InstructorID != course.InstructorID {
		if err := s.ensureInstructor(ctx, *req.InstructorID); err != nil {
			return nil, err
		}
		course.InstructorID = *req.InstructorID
	}
	if req.MaxSeats != nil {
		course.MaxSeats = *req.MaxSeats
	}
	if req.IsOpen != nil {
		course.IsOpen = *req.IsOpen
	}
	if course.Code == "" || course.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code and name are required")
	}
	if course.MaxSeats < current.EnrolledCount {
		return nil, appErrors.Clone(appErrors.ErrConflict, "max seats cannot be below the enrolled count")
	}

	if err := s.repo.Update(ctx, &course); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrConflict, "max seats cannot be below the enrolled count")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.cache.Invalidate(ctx, courseCachePattern)
	s.emitAudit(ctx, actorID, models.AuditActionCourseUpdate, id, &before, &course)
	return s.Get(ctx, id)
}

// ToggleStatus opens a closed course or closes an open one. In-flight requests are unaffected.
func (s *CourseService) ToggleStatus(ctx context.Context, id string, actorID string) (*models.CourseDetail, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	open := !current.IsOpen
	if err := s.repo.SetOpen(ctx, id, open); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle course")
	}
	s.cache.Invalidate(ctx, courseCachePattern)
	before := current.Course
	current.IsOpen = open
	s.emitAudit(ctx, actorID, models.AuditActionCourseToggle, id, &before, &current.Course)
	return current, nil
}

// Delete removes a course that no enrollment references.
func (s *CourseService) Delete(ctx context.Context, id string, actorID string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.repo.CountEnrollments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course has enrollments and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "course has enrollments and cannot be deleted")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.cache.Invalidate(ctx, courseCachePattern)
	s.emitAudit(ctx, actorID, models.AuditActionCourseDelete, id, &current.Course, nil)
	return nil
}

func (s *CourseService) ensureInstructor(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if user.Role != models.RoleInstructor {
		return appErrors.Clone(appErrors.ErrValidation, "assigned user is not an instructor")
	}
	return nil
}

func (s *CourseService) emitAudit(ctx context.Context, actorID, action, courseID string, before, after *models.Course) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   courseResource,
		ResourceID: &courseID,
		IPAddress:  "system",
		UserAgent:  "course-service",
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record course audit log", zap.String("course_id", courseID), zap.Error(err))
	}
}
