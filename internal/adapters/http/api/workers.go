package api

import (
	"net/http"
	"strconv"

	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
)

// WorkersHandler handles onboarding and per-worker reads.
type WorkersHandler struct {
	deps WorkerDependencies
	log  logger.Logger
}

// NewWorkersHandler creates a new workers handler.
func NewWorkersHandler(deps WorkerDependencies, log logger.Logger) *WorkersHandler {
	return &WorkersHandler{deps: deps, log: log}
}

// HandleOnboard handles POST /api/workers requests.
func (h *WorkersHandler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.onboard"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.OnboardRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	worker, err := h.deps.Onboard(r.Context(), req)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, worker)
}

// HandleIDOptions handles GET /api/workers/id-options?first=&last= requests.
func (h *WorkersHandler) HandleIDOptions(w http.ResponseWriter, r *http.Request) {
	const op = "api.id_options"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	opts, err := h.deps.IDOptions(r.Context(), q.Get("first"), q.Get("last"))
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// HandleActivity handles GET /api/workers/me/activity?limit=N requests.
func (h *WorkersHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.activity"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id, ok := workerID(r)
	if !ok {
		writeError(r.Context(), h.log, w, NewKind(op, ErrNoWorker))
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(r.Context(), h.log, w, NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	acts, err := h.deps.Activity(r.Context(), id, limit)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

// HandleSignOut handles POST /api/workers/me/sign-out requests. A held
// reservation is kept and is resumed by the next request for work.
func (h *WorkersHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	const op = "api.sign_out"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id, ok := workerID(r)
	if !ok {
		writeError(r.Context(), h.log, w, NewKind(op, ErrNoWorker))
		return
	}
	h.deps.ReleaseSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}
