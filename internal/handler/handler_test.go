package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/middleware"
	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/jobs"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type patientServiceMock struct {
	patients   []models.PatientSummary
	pagination *models.Pagination
	cached     bool
	periods    *dto.PeriodsResponse
	record     *models.AssessmentRecord
	err        error
	lastQuery  dto.PatientQuery
}

func (m *patientServiceMock) List(_ context.Context, query dto.PatientQuery) ([]models.PatientSummary, *models.Pagination, bool, error) {
	m.lastQuery = query
	return m.patients, m.pagination, m.cached, m.err
}

func (m *patientServiceMock) Periods(context.Context, string) (*dto.PeriodsResponse, error) {
	return m.periods, m.err
}

func (m *patientServiceMock) Record(context.Context, string, string) (*models.AssessmentRecord, error) {
	return m.record, m.err
}

func TestPatientHandlerList(t *testing.T) {
	svc := &patientServiceMock{
		patients:   []models.PatientSummary{{ID: "100", Name: "Ana Gómez"}},
		pagination: &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1},
		cached:     true,
	}
	h := NewPatientHandler(svc)

	c, w := newGinContext(http.MethodGet, "/patients?search=ana&page=1", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, 1, env.Pagination.TotalCount)
	assert.Equal(t, "ana", svc.lastQuery.Search)
}

func TestPatientHandlerListRejectsBadQuery(t *testing.T) {
	h := NewPatientHandler(&patientServiceMock{})
	c, w := newGinContext(http.MethodGet, "/patients?page=abc", nil)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatientHandlerPeriodsNotFound(t *testing.T) {
	h := NewPatientHandler(&patientServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "patient 9 not found")})
	c, w := newGinContext(http.MethodGet, "/patients/9/periods", nil)
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	h.Periods(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

type comparisonServiceMock struct {
	report *models.DiffReport
	err    error
	last   dto.CompareRequest
}

func (m *comparisonServiceMock) Compare(_ context.Context, req dto.CompareRequest) (*models.DiffReport, error) {
	m.last = req
	return m.report, m.err
}

type exportServiceMock struct {
	resp *dto.ExportResponse
	err  error
	path string
}

func (m *exportServiceMock) Export(context.Context, dto.ExportRequest) (*dto.ExportResponse, error) {
	return m.resp, m.err
}

func (m *exportServiceMock) Open(token string) (*os.File, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	f, err := os.Open(m.path)
	return f, filepath.Base(m.path), err
}

func TestComparisonHandlerCompare(t *testing.T) {
	svc := &comparisonServiceMock{report: &models.DiffReport{PatientID: "100", Entries: []models.DiffEntry{
		{Label: "Sitting balance", BaselineValue: models.Evaluated(40), FollowUpValue: models.Evaluated(62), Delta: models.ValueDelta(22), Classification: "Established but still moderate improvement."},
	}}}
	h := NewComparisonHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/patients/100/comparison?baseline=2024-01&followUp=2024-06", nil)
	c.Params = gin.Params{{Key: "id", Value: "100"}}
	h.Compare(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.CompareRequest{PatientID: "100", Baseline: "2024-01", FollowUp: "2024-06"}, svc.last)

	var report models.DiffReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, 22, report.Entries[0].Delta.Value)
}

func TestComparisonHandlerErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.ErrIdenticalPeriods, http.StatusBadRequest},
		{appErrors.ErrNotFound, http.StatusNotFound},
		{appErrors.ErrInvalidComparison, http.StatusUnprocessableEntity},
		{appErrors.ErrValidation, http.StatusBadRequest},
		{appErrors.ErrDatasetUnavailable, http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewComparisonHandler(&comparisonServiceMock{err: tc.err}, nil, nil)
		c, w := newGinContext(http.MethodGet, "/patients/100/comparison?baseline=a&followUp=b", nil)
		c.Params = gin.Params{{Key: "id", Value: "100"}}
		h.Compare(c)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestComparisonHandlerExport(t *testing.T) {
	exports := &exportServiceMock{resp: &dto.ExportResponse{Token: "tok", URL: "/api/v1/exports/tok", FileName: "comparison.csv", Format: dto.ExportFormatCSV, ExpiresAt: time.Now().Add(time.Hour)}}
	h := NewComparisonHandler(nil, exports, nil)

	body, _ := json.Marshal(map[string]string{"patient_id": "100", "baseline": "2024-01", "follow_up": "2024-06", "format": "csv"})
	c, w := newGinContext(http.MethodPost, "/comparisons/exports", body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleClinician})
	h.Export(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodPost, "/comparisons/exports", []byte("{"))
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComparisonHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comparison_100.csv")
	require.NoError(t, os.WriteFile(path, []byte("Item,Delta\n"), 0o600))
	h := NewComparisonHandler(nil, &exportServiceMock{path: path}, nil)

	c, w := newGinContext(http.MethodGet, "/exports/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Item,Delta\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="comparison_100.csv"`)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	h = NewComparisonHandler(nil, &exportServiceMock{err: appErrors.ErrExportTokenRejected}, nil)
	c, w = newGinContext(http.MethodGet, "/exports/bad", nil)
	h.Download(c)
	assert.Equal(t, http.StatusGone, w.Code)
}

type classifierStub struct{ cat *catalog.Catalog }

func (s classifierStub) Catalog() *catalog.Catalog { return s.cat }

func (s classifierStub) Classify(delta int) dto.ClassificationResponse {
	return dto.ClassificationResponse{Delta: delta, Classification: "stub", CatalogVersion: s.cat.Version}
}

func TestCatalogHandler(t *testing.T) {
	h := NewCatalogHandler(classifierStub{cat: catalog.Default()})

	c, w := newGinContext(http.MethodGet, "/catalog", nil)
	h.Catalog(c)
	require.Equal(t, http.StatusOK, w.Code)
	var cat catalog.Catalog
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &cat))
	assert.Len(t, cat.Buckets, 20)

	c, w = newGinContext(http.MethodGet, "/classify/-4", nil)
	c.Params = gin.Params{{Key: "delta", Value: "-4"}}
	h.Classify(c)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ClassificationResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, -4, resp.Delta)

	c, w = newGinContext(http.MethodGet, "/classify/abc", nil)
	c.Params = gin.Params{{Key: "delta", Value: "abc"}}
	h.Classify(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type queueStub struct {
	status jobs.Status
	err    error
}

func (q *queueStub) Submit(jobType string, _ interface{}) (jobs.Status, error) {
	q.status = jobs.Status{ID: "job-1", Type: jobType, State: jobs.StateQueued}
	return q.status, q.err
}

func (q *queueStub) Status(id string) (jobs.Status, bool) {
	return q.status, id == q.status.ID
}

func TestDatasetHandler(t *testing.T) {
	queue := &queueStub{}
	h := NewDatasetHandler(queue, nil)

	c, w := newGinContext(http.MethodPost, "/dataset/refresh", nil)
	h.Refresh(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "dataset.refresh", queue.status.Type)

	c, w = newGinContext(http.MethodGet, "/dataset/jobs/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	h.Job(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/dataset/jobs/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	h.Job(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type authServiceMock struct {
	resp *models.LoginResponse
	err  error
}

func (m authServiceMock) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	return m.resp, m.err
}

func TestAuthHandler(t *testing.T) {
	h := NewAuthHandler(authServiceMock{resp: &models.LoginResponse{AccessToken: "jwt"}})
	body, _ := json.Marshal(models.LoginRequest{Email: "a@clinic.example", Password: "pw"})
	c, w := newGinContext(http.MethodPost, "/auth/login", body)
	h.Login(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewAuthHandler(authServiceMock{err: appErrors.ErrInvalidCredentials})
	c, w = newGinContext(http.MethodPost, "/auth/login", body)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin})
	h.Me(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

type readyStub bool

func (r readyStub) Ready() bool { return bool(r) }

func TestMetricsHandlerReady(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, readyStub(false)).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, readyStub(true)).Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, nil).Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
