package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/credentials"
	"dayplan/internal/database"
	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/metrics"
	"dayplan/internal/scheduler"
	"dayplan/internal/worker"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

const (
	importLimit  = 6
	importWindow = time.Minute
)

// SyncEngine is the part of the engine exposed over HTTP.
type SyncEngine interface {
	ImportFromGoogle(ctx context.Context, userID int64) (*engine.ImportResult, error)
	GetSyncStatus(ctx context.Context, userID int64) (*engine.Status, error)
	RequeueFailed(ctx context.Context, entryID int64) error
}

type Drainer interface {
	RunOnce(ctx context.Context) (*engine.RetryReport, error)
}

type Planner interface {
	PlanDay(ctx context.Context, userID int64, date time.Time) (*scheduler.Result, error)
}

// Deps are the collaborators behind the HTTP API. Coordinator may be nil,
// which disables import throttling and the dead-letter view.
type Deps struct {
	Engine      SyncEngine
	Drainer     Drainer
	Planner     Planner
	Coordinator domain.Coordinator
	Location    *time.Location
}

// HTTPServer exposes sync control and day planning over JSON.
type HTTPServer struct {
	cfg    *config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http_api").Logger()
	}

	srv := &HTTPServer{cfg: cfg, deps: deps, logger: l}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/sync/status", srv.handleStatus)
	mux.HandleFunc("POST /api/v1/sync/import", srv.handleImport)
	mux.HandleFunc("POST /api/v1/sync/retry", srv.handleRetry)
	mux.HandleFunc("POST /api/v1/sync/queue/{id}/requeue", srv.handleRequeue)
	mux.HandleFunc("GET /api/v1/sync/deadletters", srv.handleDeadLetters)
	mux.HandleFunc("POST /api/v1/schedule", srv.handleSchedule)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	status, err := s.deps.Engine.GetSyncStatus(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if s.deps.Coordinator != nil {
		allowed, err := s.deps.Coordinator.CheckRateLimit(r.Context(), fmt.Sprintf("import:%d", userID), importLimit, importWindow)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("import throttle unavailable")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "import rate limit exceeded")
			return
		}
	}

	result, err := s.deps.Engine.ImportFromGoogle(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Drainer.RunOnce(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid queue entry id")
		return
	}

	if err := s.deps.Engine.RequeueFailed(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "pending"})
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.deps.Coordinator == nil {
		writeError(w, http.StatusNotFound, "dead letters are not tracked")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.deps.Coordinator.DeadLetters(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type scheduleRequest struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	date := time.Now().In(s.deps.Location)
	if body.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", body.Date, s.deps.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	result, err := s.deps.Planner.PlanDay(r.Context(), body.UserID, date)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// fail maps domain errors to status codes.
func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, credentials.ErrReauthRequired), errors.Is(err, credentials.ErrNotFound):
		status = http.StatusConflict
	case errors.Is(err, credentials.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, worker.ErrDrainBusy):
		status = http.StatusConflict
	case isRemote(err):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// isRemote reports errors returned by the Google APIs.
func isRemote(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("user_id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
