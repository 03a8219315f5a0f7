package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

// memDB mirrors the conditional writes of the SQL repositories.
type memDB struct {
	mu          sync.Mutex
	users       map[string]models.User
	courses     map[string]*models.Course
	enrollments map[string]*models.Enrollment
	seq         int
}

func newMemDB() *memDB {
	return &memDB{
		users:       make(map[string]models.User),
		courses:     make(map[string]*models.Course),
		enrollments: make(map[string]*models.Enrollment),
	}
}

func (m *memDB) addUser(id string, role models.UserRole) {
	m.users[id] = models.User{ID: id, Email: id + "@example.edu", Name: "User " + id, Role: role, Active: true}
}

func (m *memDB) addCourse(id string, maxSeats, enrolled int, open bool) {
	m.courses[id] = &models.Course{ID: id, Code: "CS" + id, Name: "Course " + id, Credits: 3, InstructorID: "inst", MaxSeats: maxSeats, EnrolledCount: enrolled, IsOpen: open}
}

func (m *memDB) course(id string) models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.courses[id]
}

func (m *memDB) enrollment(id string) models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.enrollments[id]
}

func (m *memDB) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *memDB) Create(ctx context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == enrollment.StudentID && e.CourseID == enrollment.CourseID {
			return repository.ErrDuplicate
		}
	}
	m.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", m.seq)
	stored := *enrollment
	m.enrollments[enrollment.ID] = &stored
	return nil
}

func (m *memDB) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m.detail(*e), nil
}

func (m *memDB) detail(e models.Enrollment) *models.EnrollmentDetail {
	student := m.users[e.StudentID]
	course := m.courses[e.CourseID]
	instructor := m.users[course.InstructorID]
	d := &models.EnrollmentDetail{
		Enrollment:      e,
		StudentName:     student.Name,
		StudentEmail:    student.Email,
		CourseCode:      course.Code,
		CourseName:      course.Name,
		InstructorID:    course.InstructorID,
		InstructorName:  instructor.Name,
		InstructorEmail: instructor.Email,
	}
	if e.AdvisorID != nil {
		advisor := m.users[*e.AdvisorID]
		d.AdvisorName = &advisor.Name
		d.AdvisorEmail = &advisor.Email
	}
	return d
}

func (m *memDB) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDB) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && m.courses[e.CourseID].InstructorID != filter.InstructorID {
			continue
		}
		if filter.AdvisorID != "" && (e.AdvisorID == nil || *e.AdvisorID != filter.AdvisorID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, e.Status) {
			continue
		}
		out = append(out, *m.detail(*e))
	}
	return out, nil
}

func containsStatus(list []models.EnrollmentStatus, status models.EnrollmentStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memDB) RecordDecision(ctx context.Context, d models.StageDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[d.EnrollmentID]
	if !ok || e.Status != d.From {
		return sql.ErrNoRows
	}
	e.Apply(d)
	return nil
}

func (m *memDB) RecordFinalApproval(ctx context.Context, d models.StageDecision, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[d.EnrollmentID]
	if !ok || e.Status != d.From {
		return sql.ErrNoRows
	}
	course := m.courses[courseID]
	if course.EnrolledCount >= course.MaxSeats {
		return repository.ErrSeatUnavailable
	}
	course.EnrolledCount++
	e.Apply(d)
	return nil
}

type memCourses struct{ *memDB }

func (m memCourses) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	instructor := m.users[c.InstructorID]
	d := &models.CourseDetail{Course: *c, InstructorName: instructor.Name, InstructorEmail: instructor.Email}
	d.Derive()
	return d, nil
}

type memUsers struct{ *memDB }

func (m memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	intents []models.NotificationIntent
}

func (r *recordingNotifier) Publish(ctx context.Context, intent models.NotificationIntent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
}

func (r *recordingNotifier) kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationKind, len(r.intents))
	for i, intent := range r.intents {
		out[i] = intent.Kind
	}
	return out
}

func (r *recordingNotifier) last() models.NotificationIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intents[len(r.intents)-1]
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingAudit) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditLog
	for _, l := range r.logs {
		if l.Resource == resource && l.ResourceID != nil && *l.ResourceID == resourceID {
			out = append(out, *l)
		}
	}
	return out, nil
}

type enrollmentFixture struct {
	db       *memDB
	notifier *recordingNotifier
	audit    *recordingAudit
	svc      *EnrollmentService
}

func newEnrollmentFixture(t *testing.T) *enrollmentFixture {
	t.Helper()
	db := newMemDB()
	db.addUser("inst", models.RoleInstructor)
	db.addUser("adv", models.RoleAdvisor)
	db.addUser("alice", models.RoleStudent)
	db.addUser("bob", models.RoleStudent)
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	svc := NewEnrollmentService(db, memCourses{db}, memUsers{db}, audit, notifier, NewMetricsService(), validator.New(), zap.NewNop(), WithAuditTrail(audit))
	return &enrollmentFixture{db: db, notifier: notifier, audit: audit, svc: svc}
}

func (f *enrollmentFixture) request(t *testing.T, student, course string) *models.EnrollmentDetail {
	t.Helper()
	detail, err := f.svc.Create(context.Background(), dto.CreateEnrollmentRequest{StudentID: student, CourseID: course, AdvisorID: "adv"})
	require.NoError(t, err)
	return detail
}

func approve() dto.EnrollmentActionRequest {
	return dto.EnrollmentActionRequest{Action: models.DecisionApprove}
}

func TestEnrollmentSingleSeatEndToEnd(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 1, 0, true)
	ctx := context.Background()

	created := f.request(t, "alice", "101")
	assert.Equal(t, models.EnrollmentStatusPendingInstructor, created.Status)
	assert.Equal(t, models.NotificationRequestToInstructor, f.notifier.last().Kind)
	assert.Equal(t, "inst@example.edu", f.notifier.last().TargetEmail)

	afterInstructor, err := f.svc.InstructorAction(ctx, created.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPendingAdvisor, afterInstructor.Status)
	assert.Equal(t, "Approved by instructor", afterInstructor.InstructorRemarks)
	assert.Equal(t, models.NotificationRequestToAdvisor, f.notifier.last().Kind)
	assert.Equal(t, "adv@example.edu", f.notifier.last().TargetEmail)

	afterAdvisor, err := f.svc.AdvisorAction(ctx, created.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, afterAdvisor.Status)
	assert.Equal(t, 1, f.db.course("101").EnrolledCount)
	assert.Equal(t, models.NotificationEnrollmentApproved, f.notifier.last().Kind)
	assert.Equal(t, "alice@example.edu", f.notifier.last().TargetEmail)

	_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "bob", CourseID: "101"})
	assert.ErrorIs(t, err, appErrors.ErrCourseFull)
}

func TestInstructorRejectKeepsRemarksVerbatim(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 2, true)
	created := f.request(t, "alice", "101")

	rejected, err := f.svc.InstructorAction(context.Background(), created.ID, dto.EnrollmentActionRequest{Action: models.DecisionReject, Remarks: "prerequisites not met"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, rejected.Status)
	require.NotNil(t, rejected.InstructorApproval)
	assert.False(t, *rejected.InstructorApproval)
	assert.Equal(t, "prerequisites not met", rejected.InstructorRemarks)
	assert.Equal(t, 2, f.db.course("101").EnrolledCount)

	intent := f.notifier.last()
	assert.Equal(t, models.NotificationEnrollmentRejected, intent.Kind)
	assert.Equal(t, "prerequisites not met", intent.Payload["remarks"])
	assert.Equal(t, "instructor", intent.Payload["stage"])
}

func TestCreateOnClosedCourseCreatesNothing(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 5, false)

	_, err := f.svc.Create(context.Background(), dto.CreateEnrollmentRequest{StudentID: "alice", CourseID: "101"})
	assert.ErrorIs(t, err, appErrors.ErrCourseClosed)
	assert.Equal(t, 0, f.db.count())
	assert.Empty(t, f.notifier.kinds())
}

func TestCreateValidationOrder(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("open", 5, 0, true)
	f.db.addCourse("full", 2, 2, true)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "ghost", CourseID: "missing"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Contains(t, err.Error(), "course")

	_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "ghost", CourseID: "full"})
	assert.ErrorIs(t, err, appErrors.ErrCourseFull)

	f.request(t, "alice", "open")
	_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "alice", CourseID: "open"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)

	_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "ghost", CourseID: "open"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Contains(t, err.Error(), "student")

	for _, id := range []string{"inst", "adv"} {
		_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: id, CourseID: "open"})
		assert.ErrorIs(t, err, appErrors.ErrValidation, id)
	}

	f.db.addUser("carol", models.RoleStudent)
	carol := f.db.users["carol"]
	carol.Active = false
	f.db.users["carol"] = carol
	_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "carol", CourseID: "open"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Contains(t, err.Error(), "inactive")

	_, err = f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "bob", CourseID: "open", AdvisorID: "inst"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 1, f.db.count())
}

func TestSecondInstructorActionIsStale(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)
	ctx := context.Background()
	created := f.request(t, "alice", "101")

	_, err := f.svc.InstructorAction(ctx, created.ID, approve())
	require.NoError(t, err)
	before := f.db.enrollment(created.ID)

	_, err = f.svc.InstructorAction(ctx, created.ID, dto.EnrollmentActionRequest{Action: models.DecisionReject, Remarks: "changed my mind"})
	assert.ErrorIs(t, err, appErrors.ErrStaleTransition)
	assert.Equal(t, before, f.db.enrollment(created.ID))

	rejected := f.request(t, "bob", "101")
	_, err = f.svc.InstructorAction(ctx, rejected.ID, dto.EnrollmentActionRequest{Action: models.DecisionReject})
	require.NoError(t, err)
	_, err = f.svc.InstructorAction(ctx, rejected.ID, approve())
	assert.ErrorIs(t, err, appErrors.ErrStaleTransition)
	assert.Equal(t, "Rejected by instructor", f.db.enrollment(rejected.ID).InstructorRemarks)
}

func TestAdvisorActionBeforeInstructorIsStale(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)
	created := f.request(t, "alice", "101")

	_, err := f.svc.AdvisorAction(context.Background(), created.ID, approve())
	assert.ErrorIs(t, err, appErrors.ErrStaleTransition)
	assert.Equal(t, 0, f.db.course("101").EnrolledCount)
}

func TestActionOnUnknownEnrollment(t *testing.T) {
	f := newEnrollmentFixture(t)
	_, err := f.svc.InstructorAction(context.Background(), "nope", approve())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestActionRejectsUnknownDecision(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)
	created := f.request(t, "alice", "101")

	_, err := f.svc.InstructorAction(context.Background(), created.ID, dto.EnrollmentActionRequest{Action: "maybe"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestInstructorCannotActOnAnotherInstructorsCourse(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)
	created := f.request(t, "alice", "101")

	_, err := f.svc.InstructorAction(context.Background(), created.ID, dto.EnrollmentActionRequest{
		Action:    models.DecisionApprove,
		ActorID:   "someone-else",
		ActorRole: models.RoleInstructor,
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestConcurrentFinalApprovalsOnLastSeat(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 1, 0, true)
	ctx := context.Background()

	ids := []string{f.request(t, "alice", "101").ID, f.request(t, "bob", "101").ID}
	for _, id := range ids {
		_, err := f.svc.InstructorAction(ctx, id, approve())
		require.NoError(t, err)
	}

	start := make(chan struct{})
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.AdvisorAction(ctx, id, approve())
		}(i, id)
	}
	close(start)
	wg.Wait()

	var wins, lost int
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			assert.Equal(t, models.EnrollmentStatusApproved, f.db.enrollment(ids[i]).Status)
		case errors.Is(err, appErrors.ErrCapacityExceeded):
			lost++
			loser := f.db.enrollment(ids[i])
			assert.Equal(t, models.EnrollmentStatusPendingAdvisor, loser.Status)
			assert.Nil(t, loser.AdvisorApproval)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, f.db.course("101").EnrolledCount)
}

func TestConcurrentActionsOnSameEnrollment(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)
	created := f.request(t, "alice", "101")

	const callers = 8
	start := make(chan struct{})
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.InstructorAction(context.Background(), created.ID, approve())
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, appErrors.ErrStaleTransition)
	}
	assert.Equal(t, 1, ok)
}

func TestConcurrentCreatesYieldOneRecord(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)

	const callers = 10
	start := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created int
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Create(context.Background(), dto.CreateEnrollmentRequest{StudentID: "alice", CourseID: "101"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, f.db.count())
}

func TestRoundTripDecisionTrail(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 3, 0, true)
	ctx := context.Background()

	created := f.request(t, "alice", "101")
	_, err := f.svc.InstructorAction(ctx, created.ID, dto.EnrollmentActionRequest{Action: models.DecisionApprove, Remarks: "strong background"})
	require.NoError(t, err)
	_, err = f.svc.AdvisorAction(ctx, created.ID, approve())
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.StudentID)
	assert.Equal(t, "101", got.CourseID)
	require.NotNil(t, got.InstructorApproval)
	require.NotNil(t, got.AdvisorApproval)
	assert.True(t, *got.InstructorApproval)
	assert.True(t, *got.AdvisorApproval)
	assert.NotNil(t, got.InstructorActionAt)
	assert.NotNil(t, got.AdvisorActionAt)
	assert.Equal(t, "strong background", got.InstructorRemarks)
	assert.Equal(t, "Approved by advisor", got.AdvisorRemarks)

	actions := make([]string, 0, len(f.audit.logs))
	for _, log := range f.audit.logs {
		actions = append(actions, log.Action)
	}
	assert.Equal(t, []string{
		models.AuditActionEnrollmentCreate,
		models.AuditActionEnrollmentInstructorReview,
		models.AuditActionEnrollmentAdvisorReview,
	}, actions)
	assert.Equal(t, []models.NotificationKind{
		models.NotificationRequestToInstructor,
		models.NotificationRequestToAdvisor,
		models.NotificationEnrollmentApproved,
	}, f.notifier.kinds())
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.audit.err = errors.New("audit store down")
	f.db.addCourse("101", 3, 0, true)

	created := f.request(t, "alice", "101")
	_, err := f.svc.InstructorAction(context.Background(), created.ID, approve())
	assert.NoError(t, err)
}

func TestMissingAdvisorStillEmitsIntent(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 3, 0, true)

	created, err := f.svc.Create(context.Background(), dto.CreateEnrollmentRequest{StudentID: "alice", CourseID: "101"})
	require.NoError(t, err)
	_, err = f.svc.InstructorAction(context.Background(), created.ID, approve())
	require.NoError(t, err)

	intent := f.notifier.last()
	assert.Equal(t, models.NotificationRequestToAdvisor, intent.Kind)
	assert.Empty(t, intent.TargetEmail)
}

func TestListForAdvisorHidesEarlyStage(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 3, 0, true)
	ctx := context.Background()

	first := f.request(t, "alice", "101")
	f.request(t, "bob", "101")
	_, err := f.svc.InstructorAction(ctx, first.ID, approve())
	require.NoError(t, err)

	items, err := f.svc.ListForAdvisor(ctx, "adv")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)

	all, err := f.svc.ListForInstructor(ctx, "inst")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.ListForStudent(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUnassignedRequestJoinsDecidingAdvisorQueue(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addUser("adv2", models.RoleAdvisor)
	f.db.addCourse("101", 3, 0, true)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, dto.CreateEnrollmentRequest{StudentID: "alice", CourseID: "101"})
	require.NoError(t, err)
	_, err = f.svc.InstructorAction(ctx, created.ID, approve())
	require.NoError(t, err)

	decided, err := f.svc.AdvisorAction(ctx, created.ID, dto.EnrollmentActionRequest{Action: models.DecisionApprove, ActorID: "adv2", ActorRole: models.RoleAdvisor})
	require.NoError(t, err)
	require.NotNil(t, decided.AdvisorID)
	assert.Equal(t, "adv2", *decided.AdvisorID)

	items, err := f.svc.ListForAdvisor(ctx, "adv2")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, created.ID, items[0].ID)
	assert.Equal(t, models.EnrollmentStatusApproved, items[0].Status)

	others, err := f.svc.ListForAdvisor(ctx, "adv")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestEnrollmentHistoryFollowsDecisions(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.addCourse("101", 5, 0, true)
	ctx := context.Background()

	created := f.request(t, "alice", "101")
	_, err := f.svc.InstructorAction(ctx, created.ID, approve())
	require.NoError(t, err)
	_, err = f.svc.AdvisorAction(ctx, created.ID, dto.EnrollmentActionRequest{Action: models.DecisionReject, Remarks: "prerequisite missing"})
	require.NoError(t, err)

	history, err := f.svc.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.AuditActionEnrollmentCreate, history[0].Action)
	assert.Equal(t, models.AuditActionEnrollmentInstructorReview, history[1].Action)
	assert.Equal(t, models.AuditActionEnrollmentAdvisorReview, history[2].Action)
	assert.Contains(t, string(history[2].NewValues), "prerequisite missing")

	_, err = f.svc.History(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
