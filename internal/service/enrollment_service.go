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

const enrollmentResource = "enrollment"

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	RecordDecision(ctx context.Context, d models.StageDecision) error
	RecordFinalApproval(ctx context.Context, d models.StageDecision, courseID string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditTrailReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// NotificationPublisher accepts notification intents without blocking the caller.
type NotificationPublisher interface {
	Publish(ctx context.Context, intent models.NotificationIntent)
}

// EnrollmentService runs the two-stage approval workflow.
type EnrollmentService struct {
	store     enrollmentStore
	courses   courseReader
	users     userReader
	audit     auditLogger
	notifier  NotificationPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cache     *CacheService
	trail     auditTrailReader
	now       func() time.Time
}

// EnrollmentServiceOption configures optional collaborators.
type EnrollmentServiceOption func(*EnrollmentService)

// WithCatalogueCache invalidates cached course listings after a seat is taken.
func WithCatalogueCache(cache *CacheService) EnrollmentServiceOption {
	return func(s *EnrollmentService) {
		s.cache = cache
	}
}

// WithAuditTrail lets History read back the recorded decisions.
func WithAuditTrail(trail auditTrailReader) EnrollmentServiceOption {
	return func(s *EnrollmentService) {
		s.trail = trail
	}
}

// NewEnrollmentService constructs the workflow engine.
func NewEnrollmentService(store enrollmentStore, courses courseReader, users userReader, audit auditLogger, notifier NotificationPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts ...EnrollmentServiceOption) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &EnrollmentService{
		store:     store,
		courses:   courses,
		users:     users,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create admits a new request. Checks run in a fixed order: course exists, open, has a seat, no prior request, student exists.
func (s *EnrollmentService) Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.AdvisorID = strings.TrimSpace(req.AdvisorID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.IsOpen {
		return nil, appErrors.ErrCourseClosed
	}
	if course.IsFull() {
		return nil, appErrors.ErrCourseFull
	}

	exists, err := s.store.Exists(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.ErrDuplicateEnrollment
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student must have the student role")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account is inactive")
	}

	var advisor *models.User
	if req.AdvisorID != "" {
		advisor, err = s.users.FindByID(ctx, req.AdvisorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "advisor not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load advisor")
		}
		if advisor.Role != models.RoleAdvisor {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assigned advisor must have the advisor role")
		}
	}

	enrollment := &models.Enrollment{
		StudentID: student.ID,
		CourseID:  course.ID,
		Status:    models.EnrollmentStatusPendingInstructor,
	}
	if advisor != nil {
		enrollment.AdvisorID = &advisor.ID
	}
	if err := s.store.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrDuplicateEnrollment
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	detail := &models.EnrollmentDetail{
		Enrollment:      *enrollment,
		StudentName:     student.Name,
		StudentEmail:    student.Email,
		CourseCode:      course.Code,
		CourseName:      course.Name,
		InstructorID:    course.InstructorID,
		InstructorName:  course.InstructorName,
		InstructorEmail: course.InstructorEmail,
	}
	if advisor != nil {
		detail.AdvisorName = &advisor.Name
		detail.AdvisorEmail = &advisor.Email
	}

	s.metrics.RecordEnrollmentTransition("none", string(enrollment.Status))
	s.emitAudit(ctx, student.ID, models.AuditActionEnrollmentCreate, enrollment.ID, nil, enrollment)
	s.publish(ctx, detail.InstructorEmail, models.NotificationRequestToInstructor, detail)
	return detail, nil
}

// Get returns a single enrollment with its related names.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// History returns the audit entries recorded for an enrollment, oldest first.
func (s *EnrollmentService) History(ctx context.Context, id string) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.trail.ListByResource(ctx, enrollmentResource, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

// ListForStudent returns every request made by the student.
func (s *EnrollmentService) ListForStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return s.list(ctx, models.EnrollmentFilter{StudentID: studentID})
}

// ListForInstructor returns all requests on courses the instructor owns.
func (s *EnrollmentService) ListForInstructor(ctx context.Context, instructorID string) ([]models.EnrollmentDetail, error) {
	return s.list(ctx, models.EnrollmentFilter{InstructorID: instructorID})
}

// ListForAdvisor returns requests assigned to the advisor that reached the advisor stage.
func (s *EnrollmentService) ListForAdvisor(ctx context.Context, advisorID string) ([]models.EnrollmentDetail, error) {
	return s.list(ctx, models.EnrollmentFilter{AdvisorID: advisorID, Statuses: models.AdvisorVisibleStatuses})
}

// ListAll returns every enrollment.
func (s *EnrollmentService) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	return s.list(ctx, models.EnrollmentFilter{})
}

// ListByCourse returns the roster of one course.
func (s *EnrollmentService) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return s.list(ctx, models.EnrollmentFilter{CourseID: courseID})
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return items, nil
}

// InstructorAction records the instructor's verdict on a pending_instructor request.
func (s *EnrollmentService) InstructorAction(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error) {
	return s.act(ctx, id, models.StageInstructor, req)
}

// AdvisorAction records the advisor's verdict; approval also takes a course seat atomically.
func (s *EnrollmentService) AdvisorAction(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error) {
	return s.act(ctx, id, models.StageAdvisor, req)
}

func (s *EnrollmentService) act(ctx context.Context, id string, stage models.ApprovalStage, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error) {
	req.Action = models.Decision(strings.ToLower(strings.TrimSpace(string(req.Action))))
	req.Remarks = strings.TrimSpace(req.Remarks)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeStage(stage, req, detail); err != nil {
		return nil, err
	}

	from := detail.Status
	to, err := from.Transition(stage, req.Action)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrStaleTransition, "enrollment is "+string(from)+", expected "+string(stage.Guard()))
	}

	remarks := req.Remarks
	if remarks == "" {
		remarks = models.DefaultRemarks(stage, req.Action)
	}
	decision := models.StageDecision{
		EnrollmentID: detail.ID,
		Stage:        stage,
		Decision:     req.Action,
		Remarks:      remarks,
		From:         from,
		To:           to,
		At:           s.now(),
	}
	if stage == models.StageAdvisor && detail.AdvisorID == nil && req.ActorRole == models.RoleAdvisor {
		decision.AdvisorID = req.ActorID
	}

	if to == models.EnrollmentStatusApproved {
		err = s.store.RecordFinalApproval(ctx, decision, detail.CourseID)
	} else {
		err = s.store.RecordDecision(ctx, decision)
	}
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrStaleTransition, "enrollment was decided concurrently")
		case errors.Is(err, repository.ErrSeatUnavailable):
			return nil, appErrors.ErrCapacityExceeded
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	before := detail.Enrollment
	detail.Enrollment.Apply(decision)
	if to == models.EnrollmentStatusApproved {
		s.cache.Invalidate(ctx, courseCachePattern)
	}

	action := models.AuditActionEnrollmentInstructorReview
	if stage == models.StageAdvisor {
		action = models.AuditActionEnrollmentAdvisorReview
	}
	s.metrics.RecordEnrollmentTransition(string(from), string(to))
	s.emitAudit(ctx, req.ActorID, action, detail.ID, &before, &detail.Enrollment)

	switch to {
	case models.EnrollmentStatusPendingAdvisor:
		advisorEmail := ""
		if detail.AdvisorEmail != nil {
			advisorEmail = *detail.AdvisorEmail
		}
		s.publish(ctx, advisorEmail, models.NotificationRequestToAdvisor, detail)
	case models.EnrollmentStatusApproved:
		s.publish(ctx, detail.StudentEmail, models.NotificationEnrollmentApproved, detail)
	case models.EnrollmentStatusRejected:
		s.publish(ctx, detail.StudentEmail, models.NotificationEnrollmentRejected, detail)
	}
	return detail, nil
}

// authorizeStage restricts non-admin actors to their own courses and assigned requests.
func authorizeStage(stage models.ApprovalStage, req dto.EnrollmentActionRequest, detail *models.EnrollmentDetail) error {
	switch req.ActorRole {
	case "", models.RoleAdmin:
		return nil
	case models.RoleInstructor:
		if stage == models.StageInstructor && detail.InstructorID == req.ActorID {
			return nil
		}
	case models.RoleAdvisor:
		if stage == models.StageAdvisor && (detail.AdvisorID == nil || *detail.AdvisorID == req.ActorID) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to act on this enrollment")
}

func (s *EnrollmentService) publish(ctx context.Context, target string, kind models.NotificationKind, detail *models.EnrollmentDetail) {
	if s.notifier == nil {
		return
	}
	payload := map[string]string{
		"enrollment_id": detail.ID,
		"status":        string(detail.Status),
		"student_name":  detail.StudentName,
		"student_email": detail.StudentEmail,
		"course_code":   detail.CourseCode,
		"course_name":   detail.CourseName,
	}
	switch kind {
	case models.NotificationEnrollmentRejected:
		if detail.AdvisorApproval != nil {
			payload["stage"] = string(models.StageAdvisor)
			payload["remarks"] = detail.AdvisorRemarks
		} else {
			payload["stage"] = string(models.StageInstructor)
			payload["remarks"] = detail.InstructorRemarks
		}
	case models.NotificationRequestToAdvisor:
		payload["remarks"] = detail.InstructorRemarks
	case models.NotificationEnrollmentApproved:
		payload["remarks"] = detail.AdvisorRemarks
	}
	s.notifier.Publish(ctx, models.NotificationIntent{
		TargetEmail:  target,
		Kind:         kind,
		Payload:      payload,
		EnrollmentID: detail.ID,
		CreatedAt:    s.now(),
	})
}

func (s *EnrollmentService) emitAudit(ctx context.Context, actorID, action, enrollmentID string, before, after *models.Enrollment) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   enrollmentResource,
		ResourceID: &enrollmentID,
		IPAddress:  "system",
		UserAgent:  "enrollment-service",
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
		s.logger.Warn("failed to record enrollment audit log", zap.String("enrollment_id", enrollmentID), zap.String("action", action), zap.Error(err))
	}
}
