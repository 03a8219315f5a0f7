package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

type mockCourseStore struct {
	courses     map[string]*models.Course
	enrollments map[string]int
	listCalls   int
}

func newMockCourseStore() *mockCourseStore {
	return &mockCourseStore{courses: make(map[string]*models.Course), enrollments: make(map[string]int)}
}

func (m *mockCourseStore) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := &models.CourseDetail{Course: *c, InstructorName: "User inst"}
	d.Derive()
	return d, nil
}

func (m *mockCourseStore) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, error) {
	m.listCalls++
	var out []models.CourseDetail
	for _, c := range m.courses {
		if filter.OpenOnly && !c.IsOpen {
			continue
		}
		d := models.CourseDetail{Course: *c}
		d.Derive()
		out = append(out, d)
	}
	return out, nil
}

func (m *mockCourseStore) Create(ctx context.Context, course *models.Course) error {
	for _, c := range m.courses {
		if c.Code == course.Code {
			return repository.ErrDuplicate
		}
	}
	course.ID = "course-" + course.Code
	stored := *course
	m.courses[course.ID] = &stored
	return nil
}

func (m *mockCourseStore) Update(ctx context.Context, course *models.Course) error {
	current, ok := m.courses[course.ID]
	if !ok || current.EnrolledCount > course.MaxSeats {
		return sql.ErrNoRows
	}
	stored := *course
	stored.EnrolledCount = current.EnrolledCount
	m.courses[course.ID] = &stored
	return nil
}

func (m *mockCourseStore) SetOpen(ctx context.Context, id string, open bool) error {
	c, ok := m.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.IsOpen = open
	return nil
}

func (m *mockCourseStore) Delete(ctx context.Context, id string) error {
	if m.enrollments[id] > 0 {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	return nil
}

func (m *mockCourseStore) CountEnrollments(ctx context.Context, id string) (int, error) {
	return m.enrollments[id], nil
}

type mapCache struct {
	entries map[string][]byte
}

func (m *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

type courseFixture struct {
	store *mockCourseStore
	cache *mapCache
	audit *recordingAudit
	svc   *CourseService
}

func newCourseFixture() *courseFixture {
	db := newMemDB()
	db.addUser("inst", models.RoleInstructor)
	db.addUser("alice", models.RoleStudent)
	store := newMockCourseStore()
	cache := &mapCache{entries: make(map[string][]byte)}
	audit := &recordingAudit{}
	cacheSvc := NewCacheService(cache, nil, time.Minute, zap.NewNop(), true)
	svc := NewCourseService(store, memUsers{db}, cacheSvc, audit, validator.New(), zap.NewNop(), CourseServiceConfig{CacheTTL: time.Minute, DefaultMaxSeats: 40})
	return &courseFixture{store: store, cache: cache, audit: audit, svc: svc}
}

func (f *courseFixture) create(t *testing.T, code string) *models.CourseDetail {
	t.Helper()
	course, err := f.svc.Create(context.Background(), dto.CreateCourseRequest{Code: code, Name: "Course " + code, Credits: 3, Department: "Computer Science", InstructorID: "inst"}, "admin")
	require.NoError(t, err)
	return course
}

func TestCourseCreateDefaults(t *testing.T) {
	f := newCourseFixture()
	course := f.create(t, " cs101 ")
	assert.Equal(t, "CS101", course.Code)
	assert.Equal(t, 40, course.MaxSeats)
	assert.True(t, course.IsOpen)
	assert.Equal(t, 40, course.Available)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionCourseCreate, f.audit.logs[0].Action)

	_, err := f.svc.Create(context.Background(), dto.CreateCourseRequest{Code: "CS101", Name: "Dup", Credits: 3, Department: "Computer Science", InstructorID: "inst"}, "admin")
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCourseCreateRequiresInstructorRole(t *testing.T) {
	f := newCourseFixture()
	_, err := f.svc.Create(context.Background(), dto.CreateCourseRequest{Code: "CS102", Name: "X", Credits: 3, Department: "Computer Science", InstructorID: "alice"}, "admin")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Create(context.Background(), dto.CreateCourseRequest{Code: "CS103", Name: "X", Credits: 3, Department: "Computer Science", InstructorID: "ghost"}, "admin")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Create(context.Background(), dto.CreateCourseRequest{Code: "CS104", Name: "X", Credits: 9, Department: "Computer Science", InstructorID: "inst"}, "admin")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestListOpenIsCachedAndInvalidated(t *testing.T) {
	f := newCourseFixture()
	ctx := context.Background()
	course := f.create(t, "CS101")

	first, hit, err := f.svc.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.False(t, hit)
	_, hit, err = f.svc.ListOpen(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, f.store.listCalls)

	toggled, err := f.svc.ToggleStatus(ctx, course.ID, "admin")
	require.NoError(t, err)
	assert.False(t, toggled.IsOpen)
	assert.Empty(t, f.cache.entries)

	open, hit, err := f.svc.ListOpen(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, open)
	assert.NotNil(t, open)
	assert.Equal(t, 2, f.store.listCalls)
}

func TestCourseUpdateCannotShrinkBelowEnrolled(t *testing.T) {
	f := newCourseFixture()
	course := f.create(t, "CS101")
	f.store.courses[course.ID].EnrolledCount = 10

	seats := 5
	_, err := f.svc.Update(context.Background(), course.ID, dto.UpdateCourseRequest{MaxSeats: &seats}, "admin")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	seats = 10
	updated, err := f.svc.Update(context.Background(), course.ID, dto.UpdateCourseRequest{MaxSeats: &seats}, "admin")
	require.NoError(t, err)
	assert.True(t, updated.Full)
	assert.Equal(t, 0, updated.Available)
}

func TestCourseDeleteWithEnrollmentsConflicts(t *testing.T) {
	f := newCourseFixture()
	course := f.create(t, "CS101")
	f.store.enrollments[course.ID] = 1

	err := f.svc.Delete(context.Background(), course.ID, "admin")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	f.store.enrollments[course.ID] = 0
	require.NoError(t, f.svc.Delete(context.Background(), course.ID, "admin"))
	_, err = f.svc.Get(context.Background(), course.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
