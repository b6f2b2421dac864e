package http

import (
	"catalog-validation/internal/model"
	"catalog-validation/internal/service"
	"catalog-validation/pkg/common"
	"catalog-validation/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidationService struct {
	runErr   error
	runParam service.RunParam
	show     *model.ValidationDict
	batch    service.BatchParam
}

func (f *fakeValidationService) Run(_ context.Context, param service.RunParam) error {
	f.runParam = param
	return f.runErr
}

func (f *fakeValidationService) Show(_ context.Context, resourceID string) (*model.ValidationDict, error) {
	if resourceID == "" {
		return nil, service.NewValidationError("resource_id", "Missing value")
	}
	if f.show == nil {
		return nil, fmt.Errorf("%w: No validation report exists for this resource", service.ErrNotFound)
	}
	return f.show, nil
}

func (f *fakeValidationService) Delete(context.Context, string) error { return nil }

func (f *fakeValidationService) RunBatch(_ context.Context, param service.BatchParam) (string, error) {
	f.batch = param
	return "Done. 3 resources sent to the validation queue", nil
}

func (f *fakeValidationService) CountDatasets(context.Context, service.BatchParam) (int, error) {
	return 0, nil
}

type fakeEvents struct {
	service.ResourceEvents
	created   []string
	updated   []bool
	deleted   []string
	createErr error
}

func (f *fakeEvents) OnResourceCreated(_ context.Context, r *model.Resource) error {
	f.created = append(f.created, r.ID)
	return f.createErr
}

func (f *fakeEvents) OnResourceUpdated(_ context.Context, _, _ *model.Resource, performed bool) error {
	f.updated = append(f.updated, performed)
	return nil
}

func (f *fakeEvents) OnResourceDeleted(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func setupHandler(t *testing.T) (*echo.Echo, *fakeValidationService, *fakeEvents) {
	t.Helper()
	actions := &fakeValidationService{}
	events := &fakeEvents{}
	e := echo.New()
	h := NewHttpAPIHandler(context.Background(), e, goValidator.New(), logger.NewNop(), &service.Service{
		ValidationService: actions,
		ResourceEvents:    events,
	})
	h.SetupRoutes()
	return e, actions, events
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRunValidationEndpoint(t *testing.T) {
	e, actions, _ := setupHandler(t)

	rec := do(e, http.MethodPost, "/api/3/action/resource_validation_run", `{"resource_id":"res-1","async":false}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, "res-1", actions.runParam.ResourceID)
	require.NotNil(t, actions.runParam.Async)
	assert.False(t, *actions.runParam.Async)

	actions.runErr = service.NewValidationError("format", "Unsupported resource format.Must be one of csv,xlsx,xls")
	rec = do(e, http.MethodPost, "/api/3/action/resource_validation_run", `{"resource_id":"res-1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"Unsupported resource format.Must be one of csv,xlsx,xls"}, body["data"].(map[string]interface{})["format"])

	actions.runErr = &service.ValidationFailedError{
		ResourceID: "res-1",
		Status:     model.StatusFailure,
		Report:     &model.Report{Valid: false},
	}
	rec = do(e, http.MethodPost, "/api/3/action/resource_validation_run", `{"resource_id":"res-1"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "failure", data["status"])
	assert.NotNil(t, data["report"])

	actions.runErr = fmt.Errorf("%w: resource gone", service.ErrNotFound)
	rec = do(e, http.MethodPost, "/api/3/action/resource_validation_run", `{"resource_id":"gone"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShowValidationEndpoint(t *testing.T) {
	e, actions, _ := setupHandler(t)

	rec := do(e, http.MethodGet, "/api/3/action/resource_validation_show?resource_id=res-1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "No validation report exists for this resource")

	rec = do(e, http.MethodGet, "/api/3/action/resource_validation_show", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	actions.show = &model.ValidationDict{ID: "v1", ResourceID: "res-1", Status: model.StatusSuccess, Report: json.RawMessage(`{"valid":true}`), Error: json.RawMessage("null")}
	rec = do(e, http.MethodGet, "/api/3/action/resource_validation_show?resource_id=res-1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "success", data["status"])
	assert.Nil(t, data["error"])
}

func TestRunBatchEndpoint(t *testing.T) {
	e, actions, _ := setupHandler(t)

	rec := do(e, http.MethodPost, "/api/3/action/resource_validation_run_batch", `{"dataset_ids":["a","b"],"query":{"fq":"res_format:XLSX"}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"a", "b"}, actions.batch.DatasetIDs)
	assert.Equal(t, map[string]interface{}{"fq": "res_format:XLSX"}, actions.batch.Query)
	assert.Equal(t, "Done. 3 resources sent to the validation queue", decodeBody(t, rec)["data"].(map[string]interface{})["output"])
}

func TestResourceHookEndpoint(t *testing.T) {
	e, _, events := setupHandler(t)

	rec := do(e, http.MethodPost, "/api/v1/hooks/resource", `{"event":"created","resource":{"id":"r1","format":"csv"}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"r1"}, events.created)

	rec = do(e, http.MethodPost, "/api/v1/hooks/resource",
		`{"event":"updated","resource":{"id":"r1"},"previous":{"id":"r1"}}`,
		map[string]string{common.HEADER_VALIDATION_DONE: "true"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []bool{true}, events.updated)

	rec = do(e, http.MethodPost, "/api/v1/hooks/resource", `{"event":"deleted","resource":{"id":"r1"}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"r1"}, events.deleted)

	rec = do(e, http.MethodPost, "/api/v1/hooks/resource", `{"event":"renamed","resource":{"id":"r1"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/hooks/resource", `{"event":"created"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	events.createErr = &service.ValidationFailedError{ResourceID: "r2", Status: model.StatusError, Payload: &model.ErrorPayload{Message: []string{"unreachable"}}}
	rec = do(e, http.MethodPost, "/api/v1/hooks/resource", `{"event":"created","resource":{"id":"r2","format":"csv"}}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e, _, _ := setupHandler(t)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "", nil).Code)

	rec := do(e, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
