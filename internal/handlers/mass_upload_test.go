package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/middleware"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/services"
	"site-mass-upload/internal/templates"
)

func createTestLogger() *logger.Logger {
	return logger.NewLogger(&config.Config{Logging: config.LoggingConfig{Level: "error", Format: "text"}})
}

type MockRevalidationService struct {
	mock.Mock
}

func (m *MockRevalidationService) Revalidate(ctx context.Context, req *models.RevalidateRequest) (*models.RevalidateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RevalidateResponse), args.Error(1)
}

type MockImportService struct {
	mock.Mock
}

func (m *MockImportService) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportResponse), args.Error(1)
}

func (m *MockImportService) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockImportService) ListRuns(ctx context.Context, entity string, limit int) ([]*models.ImportRun, error) {
	args := m.Called(ctx, entity, limit)
	return args.Get(0).([]*models.ImportRun), args.Error(1)
}

type MockReferenceResolver struct {
	mock.Mock
}

func (m *MockReferenceResolver) Resolve(ctx context.Context, table, column, name string) (string, error) {
	args := m.Called(ctx, table, column, name)
	return args.String(0), args.Error(1)
}

func (m *MockReferenceResolver) Refresh(ctx context.Context, table string) error {
	return m.Called(ctx, table).Error(0)
}

type testServer struct {
	router       *mux.Router
	revalidation *MockRevalidationService
	imports      *MockImportService
	resolver     *MockReferenceResolver
	registry     *prometheus.Registry
	metrics      *UploadMetrics
	authSvc      services.AuthenticationService
}

func setupTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	cfg := &config.Config{
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenTTL: 3600, Issuer: "site-mass-upload"},
		Import: config.ImportConfig{MaxUploadBytes: maxUpload},
	}
	log := createTestLogger()

	ts := &testServer{
		router:       mux.NewRouter(),
		revalidation: &MockRevalidationService{},
		imports:      &MockImportService{},
		resolver:     &MockReferenceResolver{},
		registry:     prometheus.NewRegistry(),
		authSvc:      services.NewAuthenticationService(log, cfg),
	}
	ts.metrics = NewUploadMetrics(ts.registry)

	h := NewMassUploadHandler(log, registry.MustDefault(), ts.revalidation, ts.imports, ts.resolver,
		services.NewErrorHandler(log), ts.metrics, cfg)
	h.RegisterRoutes(ts.router, middleware.NewAuthenticationMiddleware(log, ts.authSvc))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string, caller *models.CallerContext) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if caller != nil {
		token, err := ts.authSvc.GenerateToken(context.Background(), caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

var supervisor = &models.CallerContext{CallerID: "user-1", CallerName: "Anita", SiteID: "site-1"}

func TestMassUpload_RequiresToken(t *testing.T) {
	ts := setupTestServer(t, 0)
	rec := ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities", nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMassUpload_Entities(t *testing.T) {
	ts := setupTestServer(t, 0)

	rec := ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities", nil, "", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entities []EntitySummary `json:"entities"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	names := make([]string, 0, len(body.Entities))
	for _, e := range body.Entities {
		names = append(names, e.Name)
		assert.Greater(t, e.FieldCount, 0)
	}
	assert.Contains(t, names, "laborers")
	assert.Contains(t, names, "attendance")

	rec = ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities/attendance", nil, "", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg models.TableConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, "attendance", cfg.Name)

	rec = ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities/spaceships", nil, "", supervisor)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMassUpload_OpenAPI(t *testing.T) {
	ts := setupTestServer(t, 0)

	rec := ts.do(t, http.MethodGet, "/api/v1/mass-upload/openapi.json", nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "document is public")

	var doc struct {
		OpenAPI    string                 `json:"openapi"`
		Paths      map[string]interface{} `json:"paths"`
		Components struct {
			Schemas map[string]map[string]interface{} `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Contains(t, doc.Paths, "/import")
	assert.Contains(t, doc.Paths, "/entities/{entity}/parse")

	attendance, ok := doc.Components.Schemas["Record_attendance"]
	require.True(t, ok)
	props := attendance["properties"].(map[string]interface{})
	status := props["status"].(map[string]interface{})
	assert.Contains(t, status["enum"], "Present")
	laborer := props["laborer_id"].(map[string]interface{})
	assert.Equal(t, "uuid", laborer["format"])
	assert.Contains(t, attendance["required"], "date")
}

func TestMassUpload_Template(t *testing.T) {
	ts := setupTestServer(t, 0)

	rec := ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities/laborers/template", nil, "", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, templates.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "laborers_template.csv")
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(rec.Body.String()), "\n")+1)

	rec = ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities/laborers/template?format=xlsx", nil, "", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = ts.do(t, http.MethodGet, "/api/v1/mass-upload/entities/laborers/template?format=pdf", nil, "", supervisor)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMassUpload_Parse(t *testing.T) {
	ts := setupTestServer(t, 0)
	csv := "Worker Name,Category,Daily Rate\nRaju,Mason,800\n,Helper,600\nSuresh,Driver,700\n"

	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/entities/laborers/parse", []byte(csv), "text/csv", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.ParseResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 1, res.ValidRows)
	assert.Equal(t, 2, res.ErrorRows)

	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.parsedRows.WithLabelValues("laborers", "valid")))
	assert.Equal(t, float64(2), testutil.ToFloat64(ts.metrics.parsedRows.WithLabelValues("laborers", "error")))
}

func TestMassUpload_ParseMultipartWorkbook(t *testing.T) {
	ts := setupTestServer(t, 0)
	cfg, _ := registry.MustDefault().Get("laborers")
	workbook, err := templates.XLSX(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "laborers.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/entities/laborers/parse?skip_samples=true", buf.Bytes(), mw.FormDataContentType(), supervisor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.ParseResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].IsSampleRow)
	assert.True(t, res.Rows[0].IsSkipped)
	assert.Equal(t, 0, res.ValidRows)
}

func TestMassUpload_ParseTooLarge(t *testing.T) {
	ts := setupTestServer(t, 16)
	body := []byte("Worker Name,Category,Daily Rate\nRaju,Mason,800\n")

	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/entities/laborers/parse", body, "text/csv", supervisor)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMassUpload_Revalidate(t *testing.T) {
	ts := setupTestServer(t, 0)

	ts.revalidation.On("Revalidate", mock.Anything, mock.MatchedBy(func(req *models.RevalidateRequest) bool {
		return req.Entity == "attendance" && req.Context.SiteID == "site-1" && req.Context.CallerID == "user-1"
	})).Return(&models.RevalidateResponse{
		Success: true,
		Rows:    []models.ParsedRow{{RowNumber: 2, Status: models.RowStatusError}},
		LookupErrors: []models.ValidationError{
			{RowNumber: 2, Field: "laborer_id", Kind: models.ErrorKindLookup, Message: `laborer "Ghost" was not found`},
		},
	}, nil)

	body, _ := json.Marshal(models.RevalidateRequest{
		Entity:  "attendance",
		Context: models.CallerContext{CallerID: "spoofed", SiteID: "site-other"},
		Rows:    []models.RawRow{{RowNumber: 2, Data: map[string]string{"Laborer": "Ghost"}}},
	})
	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/revalidate", body, "application/json", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.RevalidateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.LookupErrors, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.revalidations.WithLabelValues("attendance")))
	ts.revalidation.AssertExpectations(t)
}

func TestMassUpload_RevalidateSiteFromBody(t *testing.T) {
	ts := setupTestServer(t, 0)
	roaming := &models.CallerContext{CallerID: "user-2"}

	ts.revalidation.On("Revalidate", mock.Anything, mock.MatchedBy(func(req *models.RevalidateRequest) bool {
		return req.Context.SiteID == "site-7" && req.Context.CallerID == "user-2"
	})).Return(&models.RevalidateResponse{Success: true}, nil)

	body, _ := json.Marshal(models.RevalidateRequest{
		Entity:  "attendance",
		Context: models.CallerContext{SiteID: "site-7"},
		Rows:    []models.RawRow{{RowNumber: 2, Data: map[string]string{}}},
	})
	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/revalidate", body, "application/json", roaming)
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.revalidation.AssertExpectations(t)
}

func TestMassUpload_Import(t *testing.T) {
	ts := setupTestServer(t, 0)

	ts.imports.On("Import", mock.Anything, mock.AnythingOfType("*models.ImportRequest")).Return(&models.ImportResponse{
		Success: false,
		RunID:   "run-1",
		Summary: models.ImportSummary{Total: 10, Inserted: 7, Updated: 1, Errors: 2},
		Errors:  []models.RowFailure{{RowNumber: 10, Error: "boom"}, {RowNumber: 11, Error: "boom"}},
	}, nil)

	body, _ := json.Marshal(models.ImportRequest{
		Entity: "laborers",
		Rows:   []models.ImportRow{{RowNumber: 2, Record: models.Record{"name": "Raju"}}},
	})
	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/import", body, "application/json", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ImportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp.Summary.Inserted)
	assert.Len(t, resp.Errors, 2)

	assert.Equal(t, float64(7), testutil.ToFloat64(ts.metrics.importedRows.WithLabelValues("laborers", "inserted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(ts.metrics.importedRows.WithLabelValues("laborers", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.requests.WithLabelValues("import", "200")))
}

func TestMassUpload_ImportErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing context", fmt.Errorf("attendance: %w", services.ErrMissingContext), http.StatusBadRequest},
		{"unknown entity", fmt.Errorf("%w: ships", registry.ErrUnknownEntity), http.StatusNotFound},
		{"database down", errors.New("dial tcp 10.0.0.1:5432: connection refused"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupTestServer(t, 0)
			ts.imports.On("Import", mock.Anything, mock.Anything).Return(nil, tc.err)

			body, _ := json.Marshal(models.ImportRequest{Entity: "attendance"})
			rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/import", body, "application/json", supervisor)
			assert.Equal(t, tc.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		ts := setupTestServer(t, 0)
		rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/import", []byte("{"), "application/json", supervisor)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		ts.imports.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
	})
}

func TestMassUpload_ImportRuns(t *testing.T) {
	ts := setupTestServer(t, 0)

	ts.imports.On("ListRuns", mock.Anything, "attendance", 5).Return([]*models.ImportRun{{ID: "run-1", Entity: "attendance"}}, nil)
	ts.imports.On("GetRun", mock.Anything, "run-1").Return(&models.ImportRun{ID: "run-1", Total: 10}, nil)
	ts.imports.On("GetRun", mock.Anything, "missing").Return(nil, fmt.Errorf("failed to get import run missing: %w", gorm.ErrRecordNotFound))

	rec := ts.do(t, http.MethodGet, "/api/v1/mass-upload/imports?entity=attendance&limit=5", nil, "", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = ts.do(t, http.MethodGet, "/api/v1/mass-upload/imports/run-1", nil, "", supervisor)
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.ImportRun
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, 10, run.Total)

	rec = ts.do(t, http.MethodGet, "/api/v1/mass-upload/imports/missing", nil, "", supervisor)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMassUpload_RefreshReferences(t *testing.T) {
	ts := setupTestServer(t, 0)
	ts.resolver.On("Refresh", mock.Anything, "laborers").Return(nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/mass-upload/references/refresh?table=laborers", nil, "", supervisor)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	ts.resolver.AssertExpectations(t)
}
