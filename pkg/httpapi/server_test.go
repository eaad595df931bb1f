package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
	"github.com/harrisonrobin/weworkmcp/pkg/service"
)

type mockUpstream struct {
	FetchProjectsFunc func(ctx context.Context) ([]model.Project, error)
	FetchDetailsFunc  func(ctx context.Context, id string) (model.Value, error)
}

func (m *mockUpstream) FetchProjects(ctx context.Context) ([]model.Project, error) {
	if m.FetchProjectsFunc != nil {
		return m.FetchProjectsFunc(ctx)
	}
	return nil, nil
}

func (m *mockUpstream) FetchProjectDetails(ctx context.Context, id string) (model.Value, error) {
	if m.FetchDetailsFunc != nil {
		return m.FetchDetailsFunc(ctx, id)
	}
	return model.Value{}, nil
}

func (m *mockUpstream) ProjectInfo(ctx context.Context, id string) (*model.Project, error) {
	projects, err := m.FetchProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i], nil
		}
	}
	return nil, nil
}

func defaultUpstream() *mockUpstream {
	return &mockUpstream{
		FetchProjectsFunc: func(context.Context) ([]model.Project, error) {
			return []model.Project{
				model.NewProject("1", "Website Redesign"),
				model.NewProject("2", "Mobile App"),
			}, nil
		},
		FetchDetailsFunc: func(_ context.Context, id string) (model.Value, error) {
			var v model.Value
			err := json.Unmarshal([]byte(`{"tasks": [
				{"id": "t1", "name": "Thiết kế", "username": "lan", "complete": "100.00"},
				{"id": "t2", "name": "Build", "username": "an"}
			]}`), &v)
			return v, err
		},
	}
}

func setupHandler(t *testing.T, up service.Upstream) (http.Handler, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	svc := service.New(service.Deps{Upstream: up, Logger: logger})
	h := &api{
		svc:    svc,
		opts:   Options{UpstreamConfigured: true, Logger: logger},
		logger: logger,
		now:    func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) },
	}
	return h.withRequestLog(withCORS(h.router())), hook
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestHealth(t *testing.T) {
	h, hook := setupHandler(t, defaultUpstream())

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["upstream_configured"])
	assert.Equal(t, false, body["calendar_sync"])
	assert.Equal(t, "2024-05-01T08:00:00Z", body["timestamp"])

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "/health", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestPreflight(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	rec := do(t, h, http.MethodOptions, "/api/project/analyze", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)
	assert.Empty(t, rec.Body.String())
}

func TestNotFound(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/api/project/unknown"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, "")
			require.Equal(t, http.StatusNotFound, rec.Code)
			assertCORS(t, rec)
			body := decode(t, rec)
			assert.Equal(t, "Endpoint not found", body["error"])
			assert.Equal(t, 404.0, body["status_code"])
			assert.Equal(t, "2024-05-01T08:00:00Z", body["timestamp"])
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/project/details"},
		{http.MethodGet, "/api/project/analyze"},
		{http.MethodPut, "/api/project/statistics"},
		{http.MethodDelete, "/api/project/find"},
		{http.MethodPost, "/health"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, "")
			require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assertCORS(t, rec)
			body := decode(t, rec)
			assert.Equal(t, "Method not allowed", body["error"])
			assert.Equal(t, 405.0, body["status_code"])
		})
	}
}

func TestTestConnection(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())
	rec := do(t, h, http.MethodGet, "/api/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["total_projects"])

	h, _ = setupHandler(t, &mockUpstream{
		FetchProjectsFunc: func(context.Context) ([]model.Project, error) {
			return nil, errors.New("wework: no data")
		},
	})
	rec = do(t, h, http.MethodGet, "/api/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "wework: no data", body["error"])
}

func TestSearchProjects(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantIDs    []string
	}{
		{"match", "?search=mobile", http.StatusOK, []string{"2"}},
		{"limit", "?search=a&limit=1", http.StatusOK, nil},
		{"missing search", "", http.StatusBadRequest, nil},
		{"bad limit", "?search=web&limit=x", http.StatusBadRequest, nil},
		{"negative limit", "?search=web&limit=-1", http.StatusBadRequest, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/projects"+tc.query, "")
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantStatus != http.StatusOK {
				assert.NotEmpty(t, decode(t, rec)["error"])
				return
			}
			var projects []map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
			if tc.wantIDs != nil {
				ids := make([]string, 0, len(projects))
				for _, p := range projects {
					ids = append(ids, p["id"].(string))
				}
				assert.Equal(t, tc.wantIDs, ids)
			} else {
				assert.LessOrEqual(t, len(projects), 1)
			}
		})
	}
}

func TestProjectDetails(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	rec := do(t, h, http.MethodPost, "/api/project/details", `{"project_id": "2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id": "2", "name": "Mobile App"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/project/details", `{"project_id": "9"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "project not found")

	rec = do(t, h, http.MethodPost, "/api/project/details", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing project_id", decode(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/api/project/details", `{"project_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON data", decode(t, rec)["error"])

	rec = do(t, h, http.MethodGet, "/api/project/details", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyzeProject(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	rec := do(t, h, http.MethodPost, "/api/project/analyze", `{"project_id": "1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thiết kế", "non-ASCII text is written unescaped")

	var got service.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Website Redesign", got.ProjectName)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "Build", got.Tasks[0]["task_name"])
	assert.Equal(t, 2, got.Summary.TotalTasks)
	assert.Equal(t, map[string]int{"Done": 1, "InProgress": 1}, got.Summary.StatusBreakdown)
}

func TestProjectStatistics(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	rec := do(t, h, http.MethodPost, "/api/project/statistics", `{"project_id": "1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	stats := body["statistics"].(map[string]any)
	assert.Equal(t, 50.0, stats["completion_rate"])
	assert.Equal(t, map[string]any{"lan": 1.0, "an": 1.0}, stats["assignee_breakdown"])
}

func TestFindProject(t *testing.T) {
	h, _ := setupHandler(t, defaultUpstream())

	rec := do(t, h, http.MethodPost, "/api/project/find", `{"project_name": "mobile"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "2", body["project"].(map[string]any)["id"])

	rec = do(t, h, http.MethodPost, "/api/project/find", `{"project_name": "qqq", "threshold": 0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["found"])
	assert.NotContains(t, body, "project")

	rec = do(t, h, http.MethodPost, "/api/project/find", `{"project_name": "mobile", "threshold": 2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/project/find", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
