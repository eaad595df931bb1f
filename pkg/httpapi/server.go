// Package httpapi serves the project service as a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/harrisonrobin/weworkmcp/pkg/match"
	"github.com/harrisonrobin/weworkmcp/pkg/service"
)

const (
	ServiceName = "WeWork MCP Server"

	RequestIDHeader = "X-Request-ID"

	defaultSearchLimit = 10
	maxBodyBytes       = 1 << 20
)

type Options struct {
	// UpstreamConfigured is reported by /health; false when no access token is set.
	UpstreamConfigured bool
	Logger             logrus.FieldLogger
}

type api struct {
	svc    *service.Service
	opts   Options
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewHandler returns the API handler. Every response, errors and unknown paths
// included, carries the CORS headers and a request id.
func NewHandler(svc *service.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	a := &api{svc: svc, opts: opts, logger: opts.Logger, now: time.Now}
	return a.withRequestLog(withCORS(a.router()))
}

func (a *api) router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/api/test", a.testConnection).Methods(http.MethodGet)
	r.HandleFunc("/api/projects", a.searchProjects).Methods(http.MethodGet)

	// Method matchers stay on the leaf routes so a wrong method answers 405.
	p := r.PathPrefix("/api/project").Subrouter()
	p.HandleFunc("/details", a.projectDetails).Methods(http.MethodPost)
	p.HandleFunc("/analyze", a.analyzeProject).Methods(http.MethodPost)
	p.HandleFunc("/statistics", a.projectStatistics).Methods(http.MethodPost)
	p.HandleFunc("/find", a.findProject).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down http api")
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"service":             ServiceName,
		"upstream_configured": a.opts.UpstreamConfigured,
		"calendar_sync":       a.svc.CalendarEnabled(),
		"timestamp":           a.now().Format(time.RFC3339),
	})
}

func (a *api) testConnection(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.svc.TestConnection(r.Context()))
}

func (a *api) searchProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("search")
	if text == "" {
		a.writeError(w, http.StatusBadRequest, "Missing search parameter")
		return
	}
	limit := defaultSearchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit %q", raw))
			return
		}
		limit = n
	}

	projects, err := a.svc.SearchProjects(r.Context(), text, limit)
	if err != nil {
		a.writeServiceError(w, "Search failed", err)
		return
	}
	a.writeJSON(w, http.StatusOK, projects)
}

type projectRequest struct {
	ProjectID   string   `json:"project_id"`
	ExportCSV   bool     `json:"export_csv"`
	ProjectName string   `json:"project_name"`
	Threshold   *float64 `json:"threshold"`
}

func (a *api) projectDetails(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeProjectRequest(w, r)
	if !ok {
		return
	}
	project, err := a.svc.ProjectDetails(r.Context(), req.ProjectID)
	if err != nil {
		a.writeServiceError(w, "Failed to get project details", err)
		return
	}
	a.writeJSON(w, http.StatusOK, project)
}

func (a *api) analyzeProject(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeProjectRequest(w, r)
	if !ok {
		return
	}
	result, err := a.svc.AnalyzeProject(r.Context(), req.ProjectID, req.ExportCSV)
	if err != nil {
		a.writeServiceError(w, "Analysis failed", err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *api) projectStatistics(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeProjectRequest(w, r)
	if !ok {
		return
	}
	stats, err := a.svc.ProjectStatistics(r.Context(), req.ProjectID)
	if err != nil {
		a.writeServiceError(w, "Statistics failed", err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *api) findProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if req.ProjectName == "" {
		a.writeError(w, http.StatusBadRequest, "Missing project_name")
		return
	}
	threshold := match.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 || threshold > 1 {
		a.writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
		return
	}
	a.writeJSON(w, http.StatusOK, a.svc.FindProjectByName(r.Context(), req.ProjectName, threshold))
}

// decodeProjectRequest reads a body that must name a project_id.
func (a *api) decodeProjectRequest(w http.ResponseWriter, r *http.Request) (projectRequest, bool) {
	var req projectRequest
	if !a.decodeBody(w, r, &req) {
		return req, false
	}
	if req.ProjectID == "" {
		a.writeError(w, http.StatusBadRequest, "Missing project_id")
		return req, false
	}
	return req, true
}

// decodeBody decodes a JSON body into dst. An empty body decodes as {}.
func (a *api) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, http.StatusBadRequest, "Invalid JSON data")
		return false
	}
	return true
}

func (a *api) writeServiceError(w http.ResponseWriter, prefix string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrProjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, match.ErrNegativeLimit):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.logger.WithError(err).Error(prefix)
	}
	a.writeError(w, status, fmt.Sprintf("%s: %v", prefix, err))
}

func (a *api) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]any{
		"error":       message,
		"status_code": status,
		"timestamp":   a.now().Format(time.RFC3339),
	})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		a.logger.WithError(err).Warn("failed to write response")
	}
}

// withCORS sets the CORS headers and answers preflight requests for any path.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestLog tags the request with an id, echoed in the response header, and logs
// its outcome.
func (a *api) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		m := httpsnoop.CaptureMetrics(next, w, r)
		entry := a.logger.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     m.Code,
			"duration":   m.Duration,
		})
		if m.Code >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Info("request")
		}
	})
}
