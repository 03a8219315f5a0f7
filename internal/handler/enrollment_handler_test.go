package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aims-enrollment-api/internal/dto"
	"github.com/noah-isme/aims-enrollment-api/internal/middleware"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

type enrollmentServiceMock struct {
	created    *dto.CreateEnrollmentRequest
	action     *dto.EnrollmentActionRequest
	actionErr  error
	detail     *models.EnrollmentDetail
	listedFor  string
	listResult []models.EnrollmentDetail
}

func (m *enrollmentServiceMock) Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	m.created = &req
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "enr-1", StudentID: req.StudentID, CourseID: req.CourseID, Status: models.EnrollmentStatusPendingInstructor}}, nil
}

func (m *enrollmentServiceMock) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if m.detail == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return m.detail, nil
}

func (m *enrollmentServiceMock) ListAll(ctx context.Context) ([]models.EnrollmentDetail, error) {
	return m.listResult, nil
}

func (m *enrollmentServiceMock) ListForStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	m.listedFor = studentID
	return []models.EnrollmentDetail{}, nil
}

func (m *enrollmentServiceMock) ListForInstructor(ctx context.Context, instructorID string) ([]models.EnrollmentDetail, error) {
	m.listedFor = instructorID
	return []models.EnrollmentDetail{}, nil
}

func (m *enrollmentServiceMock) ListForAdvisor(ctx context.Context, advisorID string) ([]models.EnrollmentDetail, error) {
	m.listedFor = advisorID
	return []models.EnrollmentDetail{}, nil
}

func (m *enrollmentServiceMock) InstructorAction(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error) {
	m.action = &req
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: id, Status: models.EnrollmentStatusPendingAdvisor}}, nil
}

func (m *enrollmentServiceMock) AdvisorAction(ctx context.Context, id string, req dto.EnrollmentActionRequest) (*models.EnrollmentDetail, error) {
	m.action = &req
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: id, Status: models.EnrollmentStatusApproved}}, nil
}

func (m *enrollmentServiceMock) History(ctx context.Context, id string) ([]models.AuditLog, error) {
	if m.detail == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return []models.AuditLog{{ID: "log-1", Action: models.AuditActionEnrollmentCreate}}, nil
}

type exporterMock struct {
	query dto.EnrollmentExportQuery
}

func (m *exporterMock) Roster(ctx context.Context, query dto.EnrollmentExportQuery) (*service.ExportResult, error) {
	m.query = query
	if query.Format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.ExportResult{Filename: "enrollments.csv", ContentType: "text/csv", Body: []byte("Course\n")}, nil
}

func newTestContext(method, path string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestEnrollmentCreateDefaultsStudentToCaller(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc, &exporterMock{})
	c, w := newTestContext(http.MethodPost, "/enrollments", map[string]string{"courseId": "c1"}, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "s1", svc.created.StudentID)
	assert.Equal(t, "c1", svc.created.CourseID)
}

func TestEnrollmentCreateForbidsOtherStudent(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc, &exporterMock{})
	c, w := newTestContext(http.MethodPost, "/enrollments", map[string]string{"studentId": "s2", "courseId": "c1"}, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	h.Create(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, svc.created)
}

func TestEnrollmentCreateInvalidBody(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{}, &exporterMock{})
	c, w := newTestContext(http.MethodPost, "/enrollments", "not-json", &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})

	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w))
}

func TestInstructorActionCarriesActor(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc, &exporterMock{})
	c, w := newTestContext(http.MethodPatch, "/enrollments/enr-1/instructor-action", map[string]string{"action": "approve"}, &models.JWTClaims{UserID: "i1", Role: models.RoleInstructor})
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}

	h.InstructorAction(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.action)
	assert.Equal(t, "i1", svc.action.ActorID)
	assert.Equal(t, models.RoleInstructor, svc.action.ActorRole)
	assert.Equal(t, models.DecisionApprove, svc.action.Action)
}

func TestAdvisorActionConflictStatuses(t *testing.T) {
	cases := map[string]error{
		"CAPACITY_EXCEEDED": appErrors.ErrCapacityExceeded,
		"STALE_TRANSITION":  appErrors.Clone(appErrors.ErrStaleTransition, "enrollment was decided concurrently"),
	}
	for code, err := range cases {
		svc := &enrollmentServiceMock{actionErr: err}
		h := NewEnrollmentHandler(svc, &exporterMock{})
		c, w := newTestContext(http.MethodPatch, "/enrollments/enr-1/advisor-action", map[string]string{"action": "approve"}, &models.JWTClaims{UserID: "adv", Role: models.RoleAdvisor})
		c.Params = gin.Params{{Key: "id", Value: "enr-1"}}

		h.AdvisorAction(c)
		assert.Equal(t, http.StatusConflict, w.Code, code)
		assert.Equal(t, code, decodeError(t, w))
	}
}

func TestEnrollmentGetVisibility(t *testing.T) {
	advisor := "adv"
	detail := &models.EnrollmentDetail{
		Enrollment:   models.Enrollment{ID: "enr-1", StudentID: "s1", AdvisorID: &advisor},
		InstructorID: "i1",
	}
	cases := []struct {
		claims *models.JWTClaims
		want   int
	}{
		{&models.JWTClaims{UserID: "s1", Role: models.RoleStudent}, http.StatusOK},
		{&models.JWTClaims{UserID: "s2", Role: models.RoleStudent}, http.StatusForbidden},
		{&models.JWTClaims{UserID: "i1", Role: models.RoleInstructor}, http.StatusOK},
		{&models.JWTClaims{UserID: "i2", Role: models.RoleInstructor}, http.StatusForbidden},
		{&models.JWTClaims{UserID: "adv", Role: models.RoleAdvisor}, http.StatusOK},
		{&models.JWTClaims{UserID: "other", Role: models.RoleAdvisor}, http.StatusForbidden},
		{&models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		h := NewEnrollmentHandler(&enrollmentServiceMock{detail: detail}, &exporterMock{})
		c, w := newTestContext(http.MethodGet, "/enrollments/enr-1", nil, tc.claims)
		c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
		h.Get(c)
		assert.Equal(t, tc.want, w.Code, "%s/%s", tc.claims.Role, tc.claims.UserID)
	}
}

func TestEnrollmentListForUsesPathID(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc, &exporterMock{})
	c, w := newTestContext(http.MethodGet, "/enrollments/advisor/adv", nil, &models.JWTClaims{UserID: "adv", Role: models.RoleAdvisor})
	c.Params = gin.Params{{Key: "id", Value: "adv"}}

	h.ListForAdvisor(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "adv", svc.listedFor)
	assert.NotContains(t, w.Body.String(), `"error"`)
}

func TestEnrollmentExportStreamsAttachment(t *testing.T) {
	exporter := &exporterMock{}
	h := NewEnrollmentHandler(&enrollmentServiceMock{}, exporter)
	c, w := newTestContext(http.MethodGet, "/enrollments/export?format=csv&courseId=c1", nil, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})

	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", exporter.query.CourseID)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="enrollments.csv"`)
	assert.Equal(t, "Course\n", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/enrollments/export?format=xlsx", nil, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHistory(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceMock{detail: &models.EnrollmentDetail{}}, &exporterMock{})
	c, w := newTestContext(http.MethodGet, "/enrollments/enr-1/history", nil, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	h.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"ENROLLMENT_CREATE"`)

	h = NewEnrollmentHandler(&enrollmentServiceMock{}, &exporterMock{})
	c, w = newTestContext(http.MethodGet, "/enrollments/missing/history", nil, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.History(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
