package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/middleware"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

type courseServiceMock struct {
	query   dto.CourseQuery
	created dto.CreateCourseRequest
	actor   string
}

func (m *courseServiceMock) List(ctx context.Context, query dto.CourseQuery) ([]models.CourseDetail, error) {
	m.query = query
	return []models.CourseDetail{{Course: models.Course{ID: "c1", Code: "CS-301"}}}, nil
}

func (m *courseServiceMock) ListOpen(ctx context.Context) ([]models.CourseDetail, bool, error) {
	return []models.CourseDetail{{Course: models.Course{ID: "c1", IsOpen: true}}}, true, nil
}

func (m *courseServiceMock) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
}

func (m *courseServiceMock) Create(ctx context.Context, req dto.CreateCourseRequest, actorID string) (*models.CourseDetail, error) {
	m.created = req
	m.actor = actorID
	return &models.CourseDetail{Course: models.Course{ID: "c2", Code: req.Code}}, nil
}

func (m *courseServiceMock) Update(ctx context.Context, id string, req dto.UpdateCourseRequest, actorID string) (*models.CourseDetail, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "max seats below enrolled count")
}

func (m *courseServiceMock) ToggleStatus(ctx context.Context, id string, actorID string) (*models.CourseDetail, error) {
	m.actor = actorID
	return &models.CourseDetail{Course: models.Course{ID: id}}, nil
}

func (m *courseServiceMock) Delete(ctx context.Context, id string, actorID string) error {
	m.actor = actorID
	return nil
}

func TestCourseListBindsFilters(t *testing.T) {
	svc := &courseServiceMock{}
	h := NewCourseHandler(svc)
	c, w := newTestContext(http.MethodGet, "/courses?instructorId=i1&department=CS", nil, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "i1", svc.query.InstructorID)
	assert.Equal(t, "CS", svc.query.Department)
	assert.Contains(t, w.Body.String(), `"code":"CS-301"`)
}

func TestCourseCreateRecordsActor(t *testing.T) {
	svc := &courseServiceMock{}
	h := NewCourseHandler(svc)
	body := map[string]interface{}{"code": "cs-410", "name": "Compilers", "credits": 3, "department": "CS", "instructorId": "i1"}
	c, w := newTestContext(http.MethodPost, "/courses", body, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", svc.actor)
	assert.Equal(t, 3, svc.created.Credits)
}

func TestCourseErrorsMapToStatus(t *testing.T) {
	h := NewCourseHandler(&courseServiceMock{})

	c, w := newTestContext(http.MethodGet, "/courses/missing", nil, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newTestContext(http.MethodPut, "/courses/c1", map[string]int{"maxSeats": 1}, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Update(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, w))
}

func TestCourseDeleteNoContent(t *testing.T) {
	svc := &courseServiceMock{}
	h := NewCourseHandler(svc)
	c, _ := newTestContext(http.MethodDelete, "/courses/c1", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "c1"}}

	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "admin-1", svc.actor)
}

func TestCourseListOpenReportsCacheHit(t *testing.T) {
	h := NewCourseHandler(&courseServiceMock{})
	c, w := newTestContext(http.MethodGet, "/courses/open", nil, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	middleware.ResponseMeta()(c)

	h.ListOpen(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)
	assert.Contains(t, w.Body.String(), `"processing_time_ms"`)
}
