package handler

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/sweeper/pkg/domain"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

// region ruleServiceMock
type ruleServiceMock struct {
	mock.Mock
}

func (m *ruleServiceMock) Create(ctx context.Context, projectId string, input domain.RuleInput) (domain.Rule, error) {
	args := m.Called(ctx, projectId, input)
	return args.Get(0).(domain.Rule), args.Error(1)
}

func (m *ruleServiceMock) Update(ctx context.Context, id string, patch domain.RulePatch) (domain.Rule, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(domain.Rule), args.Error(1)
}

func (m *ruleServiceMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ruleServiceMock) Get(ctx context.Context, id string) (domain.Rule, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Rule), args.Error(1)
}

func (m *ruleServiceMock) List(ctx context.Context, projectId string) ([]domain.Rule, error) {
	args := m.Called(ctx, projectId)
	return args.Get(0).([]domain.Rule), args.Error(1)
}

// endregion

// region ruleRunnerMock
type ruleRunnerMock struct {
	mock.Mock
}

func (m *ruleRunnerMock) Preview(ctx context.Context, ruleId string) (domain.PreviewResponse, error) {
	args := m.Called(ctx, ruleId)
	return args.Get(0).(domain.PreviewResponse), args.Error(1)
}

func (m *ruleRunnerMock) Execute(ctx context.Context, ruleId string) (domain.ExecuteResult, error) {
	args := m.Called(ctx, ruleId)
	return args.Get(0).(domain.ExecuteResult), args.Error(1)
}

// endregion

func newRuleRouter(service RuleService, runner RuleRunner) *mux.Router {
	router := mux.NewRouter()
	NewRuleHandler(discardLogger(), service, runner).Routes(router)

	return router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	return resp
}

// region Test: Create
func TestRuleHandler_Create(t *testing.T) {
	service := &ruleServiceMock{}

	expectedInput := domain.RuleInput{
		Name:          "features",
		BranchPattern: "feature/*",
		RetentionDays: 7,
		KeepMinimum:   2,
		KeepWithAlias: true,
		PathPatterns:  []string{"*.map"},
	}

	created := domain.Rule{
		Id:            "r1",
		ProjectId:     "p1",
		Name:          "features",
		BranchPattern: "feature/*",
		Enabled:       true,
		CreatedAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	service.On("Create", mock.Anything, "p1", expectedInput).Return(created, nil)

	w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodPost, "/rules", `{
		"projectId": "p1",
		"name": "features",
		"branchPattern": "feature/*",
		"retentionDays": 7,
		"keepMinimum": 2,
		"keepWithAlias": true,
		"pathPatterns": ["*.map"]
	}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var rule domain.Rule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.Equal(t, "r1", rule.Id)
	assert.Nil(t, rule.LastRunAt)

	service.AssertExpectations(t)
}

func TestRuleHandler_Create_ValidationError(t *testing.T) {
	service := &ruleServiceMock{}
	service.On("Create", mock.Anything, "p1", mock.Anything).
		Return(domain.Rule{}, &domain.ValidationError{Field: "retentionDays", Message: "must be greater than or equal to 0"})

	w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodPost, "/rules",
		`{"projectId": "p1", "name": "x", "branchPattern": "*", "retentionDays": -1}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "retentionDays", decodeError(t, w).Field)
}

func TestRuleHandler_Create_MalformedBody(t *testing.T) {
	service := &ruleServiceMock{}

	for _, body := range []string{"", "{", `{"name": 5}`} {
		w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodPost, "/rules", body)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	service.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

// endregion

// region Test: List, Get
func TestRuleHandler_List(t *testing.T) {
	service := &ruleServiceMock{}
	service.On("List", mock.Anything, "p1").Return([]domain.Rule{}, nil)

	w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodGet, "/rules?projectId=p1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRuleHandler_List_RequiresProject(t *testing.T) {
	w := serve(newRuleRouter(&ruleServiceMock{}, &ruleRunnerMock{}), http.MethodGet, "/rules", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "projectId", decodeError(t, w).Field)
}

func TestRuleHandler_Get_NotFound(t *testing.T) {
	service := &ruleServiceMock{}
	service.On("Get", mock.Anything, "missing").Return(domain.Rule{}, domain.ErrNotFound)

	w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodGet, "/rules/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleHandler_Get_InternalError(t *testing.T) {
	service := &ruleServiceMock{}
	service.On("Get", mock.Anything, "r1").Return(domain.Rule{}, errors.New("database is locked"))

	w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodGet, "/rules/r1", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decodeError(t, w).Error)
}

// endregion

// region Test: Update
func TestRuleHandler_Update(t *testing.T) {
	service := &ruleServiceMock{}

	service.On("Update", mock.Anything, "r1", mock.MatchedBy(func(p domain.RulePatch) bool {
		return p.Name == nil && p.RetentionDays != nil && *p.RetentionDays == 30 &&
			p.Enabled != nil && !*p.Enabled
	})).Return(domain.Rule{Id: "r1", RetentionDays: 30}, nil)

	w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodPut, "/rules/r1",
		`{"retentionDays": 30, "enabled": false}`)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestRuleHandler_Update_RejectsExecutorFields(t *testing.T) {
	service := &ruleServiceMock{}

	for _, field := range []string{"id", "projectId", "lastRunAt", "lastRunSummary", "executionStartedAt", "nextRunAt"} {
		w := serve(newRuleRouter(service, &ruleRunnerMock{}), http.MethodPut, "/rules/r1",
			`{"`+field+`": null}`)

		assert.Equal(t, http.StatusBadRequest, w.Code, field)
		assert.Equal(t, field, decodeError(t, w).Field)
	}

	service.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// endregion

// region Test: Delete
func TestRuleHandler_Delete(t *testing.T) {
	service := &ruleServiceMock{}
	service.On("Delete", mock.Anything, "r1").Return(nil)
	service.On("Delete", mock.Anything, "r2").Return(domain.ErrNotFound)

	router := newRuleRouter(service, &ruleRunnerMock{})

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/rules/r1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/rules/r2", "").Code)
}

// endregion

// region Test: Preview, Execute
func TestRuleHandler_Preview(t *testing.T) {
	runner := &ruleRunnerMock{}
	runner.On("Preview", mock.Anything, "r1").Return(domain.PreviewResponse{
		Commits: []domain.PreviewCommit{
			{Sha: "abc", Branch: "feature/x", AgeDays: 15, AssetCount: 3, SizeBytes: 300},
		},
		TotalAssets: 3,
		TotalBytes:  300,
	}, nil)

	w := serve(newRuleRouter(&ruleServiceMock{}, runner), http.MethodGet, "/rules/r1/preview", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp domain.PreviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalAssets)
	require.Len(t, resp.Commits, 1)
	assert.Equal(t, "abc", resp.Commits[0].Sha)
	assert.NotContains(t, w.Body.String(), "totalAssetCount")
}

func TestRuleHandler_Preview_CatalogUnavailable(t *testing.T) {
	runner := &ruleRunnerMock{}
	runner.On("Preview", mock.Anything, "r1").
		Return(domain.PreviewResponse{}, errors.Wrap(domain.ErrCatalogUnavailable, "timeout"))

	w := serve(newRuleRouter(&ruleServiceMock{}, runner), http.MethodGet, "/rules/r1/preview", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRuleHandler_Execute(t *testing.T) {
	runner := &ruleRunnerMock{}
	runner.On("Execute", mock.Anything, "r1").Return(domain.ExecuteResult{Started: true, Message: "started"}, nil)
	runner.On("Execute", mock.Anything, "r2").Return(domain.ExecuteResult{}, domain.ErrAlreadyRunning)

	router := newRuleRouter(&ruleServiceMock{}, runner)

	w := serve(router, http.MethodPost, "/rules/r1/execute", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"started": true, "message": "started"}`, w.Body.String())

	w = serve(router, http.MethodPost, "/rules/r2/execute", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRuleHandler_Execute_ShuttingDown(t *testing.T) {
	runner := &ruleRunnerMock{}
	runner.On("Execute", mock.Anything, "r1").Return(domain.ExecuteResult{}, domain.ErrShuttingDown)

	w := serve(newRuleRouter(&ruleServiceMock{}, runner), http.MethodPost, "/rules/r1/execute", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, domain.ErrShuttingDown.Error(), decodeError(t, w).Error)
}

func TestRuleHandler_MethodNotAllowed(t *testing.T) {
	w := serve(newRuleRouter(&ruleServiceMock{}, &ruleRunnerMock{}), http.MethodGet, "/rules/r1/execute", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// endregion
