// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
)

// WorkerHeader carries the caller's intern id on worker endpoints.
const WorkerHeader = "X-Worker-ID"

const maxBodyBytes = 1 << 20

// WorkDependencies serve the labeling loop.
type WorkDependencies interface {
	Next(ctx context.Context, workerID string) (types.WorkView, error)
	Submit(ctx context.Context, workerID string, req types.SubmitRequest) (types.SubmitResult, error)
	Skip(ctx context.Context, workerID string, req types.SkipRequest) error
}

// WorkerDependencies serve onboarding and per-worker reads.
type WorkerDependencies interface {
	Onboard(ctx context.Context, req types.OnboardRequest) (model.Worker, error)
	IDOptions(ctx context.Context, first, last string) (types.IDOptions, error)
	Activity(ctx context.Context, workerID string, limit int) ([]model.Activity, error)
	ReleaseSession(workerID string)
}

// NoteDependencies serve item notes.
type NoteDependencies interface {
	AddNote(ctx context.Context, workerID string, req types.NoteRequest) (model.Note, error)
	Notes(ctx context.Context, itemID string) ([]model.Note, error)
}

// AdminDependencies serve reports, export and the edit queue.
type AdminDependencies interface {
	Report(ctx context.Context) (types.Report, error)
	Export(ctx context.Context) ([]agreement.ExportRecord, error)
	EditQueue(ctx context.Context, status string) ([]model.EditRequest, error)
	MarkEditDone(ctx context.Context, itemID string) error
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	WorkDependencies
	WorkerDependencies
	NoteDependencies
	AdminDependencies
	Pinger
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	workHandler      *WorkHandler
	workersHandler   *WorkersHandler
	notesHandler     *NotesHandler
	adminHandler     *AdminHandler
	dashboardHandler *dashboardHandler
	limiter          *WorkerLimiter
	logger           logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLimiter throttles worker endpoints per X-Worker-ID.
func WithLimiter(l *WorkerLimiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithServerLogger sets the logger used for unexpected handler errors.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	s := &Server{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.workHandler = NewWorkHandler(deps, s.logger)
	s.workersHandler = NewWorkersHandler(deps, s.logger)
	s.notesHandler = NewNotesHandler(deps, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	s.dashboardHandler = newDashboardHandler()
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	worker := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		if s.limiter != nil {
			h = s.limiter.Middleware(h)
		}
		return MetricsMiddleware(h, endpoint)
	}

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/api/workers", MetricsMiddleware(s.workersHandler.HandleOnboard, "onboard"))
	mux.HandleFunc("/api/workers/id-options", MetricsMiddleware(s.workersHandler.HandleIDOptions, "id_options"))
	mux.HandleFunc("/api/workers/me/activity", worker(s.workersHandler.HandleActivity, "activity"))
	mux.HandleFunc("/api/workers/me/sign-out", worker(s.workersHandler.HandleSignOut, "sign_out"))

	mux.HandleFunc("/api/work/next", worker(s.workHandler.HandleNext, "next"))
	mux.HandleFunc("/api/work/submit", worker(s.workHandler.HandleSubmit, "submit"))
	mux.HandleFunc("/api/work/skip", worker(s.workHandler.HandleSkip, "skip"))

	mux.HandleFunc("/api/notes", worker(s.notesHandler.HandleAddNote, "add_note"))
	mux.HandleFunc("/api/items/{id}/notes", MetricsMiddleware(s.notesHandler.HandleListNotes, "list_notes"))

	mux.HandleFunc("/api/admin/report", MetricsMiddleware(s.adminHandler.HandleReport, "report"))
	mux.HandleFunc("/api/admin/export", MetricsMiddleware(s.adminHandler.HandleExport, "export"))
	mux.HandleFunc("/api/admin/edit-queue", MetricsMiddleware(s.adminHandler.HandleEditQueue, "edit_queue"))
	mux.HandleFunc("/api/admin/edit-queue/{id}/done", MetricsMiddleware(s.adminHandler.HandleEditDone, "edit_done"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status and code the error's kind maps to.
// Server-side failures are logged.
func writeError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := errorResponse{Code: code, Message: err.Error()}
	if code == "RESERVATION_EXPIRED" {
		resp.Action = "fetch_next"
	}
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("code", code), logger.Error(err))
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body of at most maxBodyBytes.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func workerID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(WorkerHeader))
	return id, id != ""
}
