package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

type fakeDirectory struct {
	byEmail map[string]*models.User
}

func (f *fakeDirectory) Create(ctx context.Context, req dto.CreateUserRequest, actorID string) (*models.User, error) {
	if _, ok := f.byEmail[req.Email]; ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	user := &models.User{ID: "id-" + req.Email, Email: req.Email, Role: req.Role}
	f.byEmail[req.Email] = user
	return user, nil
}

func (f *fakeDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type fakeCatalogue struct {
	byCode map[string]dto.CreateCourseRequest
}

func (f *fakeCatalogue) Create(ctx context.Context, req dto.CreateCourseRequest, actorID string) (*models.CourseDetail, error) {
	if _, ok := f.byCode[req.Code]; ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	}
	f.byCode[req.Code] = req
	return &models.CourseDetail{Course: models.Course{ID: "course-" + req.Code, Code: req.Code}}, nil
}

func TestSeedIsRepeatable(t *testing.T) {
	users := &fakeDirectory{byEmail: map[string]*models.User{}}
	courses := &fakeCatalogue{byCode: map[string]dto.CreateCourseRequest{}}
	s := &seeder{users: users, lookup: users, courses: courses, logger: zap.NewNop()}

	first, err := s.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(demoUsers), first.UsersCreated)
	assert.Equal(t, len(demoCourses), first.CoursesCreated)
	assert.Equal(t, "id-sarah.smith@university.edu", courses.byCode["CS301"].InstructorID)
	assert.Equal(t, "id-david.wilson@university.edu", courses.byCode["CS405"].InstructorID)

	second, err := s.run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.UsersCreated)
	assert.Zero(t, second.CoursesCreated)
}

func TestSeedFixturesReferenceSeededInstructors(t *testing.T) {
	instructors := map[string]bool{}
	for _, u := range demoUsers {
		if u.Role == models.RoleInstructor {
			instructors[u.Email] = true
		}
	}
	for _, c := range demoCourses {
		assert.True(t, instructors[c.InstructorEmail], c.Code)
	}
}
