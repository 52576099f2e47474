package api

import (
	"net/http"

	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
)

// WorkHandler handles the next/submit/skip loop.
type WorkHandler struct {
	deps WorkDependencies
	log  logger.Logger
}

// NewWorkHandler creates a new work handler.
func NewWorkHandler(deps WorkDependencies, log logger.Logger) *WorkHandler {
	return &WorkHandler{deps: deps, log: log}
}

// HandleNext handles POST /api/work/next requests.
func (h *WorkHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.next"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id, ok := workerID(r)
	if !ok {
		writeError(r.Context(), h.log, w, NewKind(op, ErrNoWorker))
		return
	}
	view, err := h.deps.Next(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSubmit handles POST /api/work/submit requests.
func (h *WorkHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id, ok := workerID(r)
	if !ok {
		writeError(r.Context(), h.log, w, NewKind(op, ErrNoWorker))
		return
	}
	var req types.SubmitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Submit(r.Context(), id, req)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSkip handles POST /api/work/skip requests.
func (h *WorkHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	const op = "api.skip"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id, ok := workerID(r)
	if !ok {
		writeError(r.Context(), h.log, w, NewKind(op, ErrNoWorker))
		return
	}
	var req types.SkipRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Skip(r.Context(), id, req); err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped", "item_id": req.ItemID})
}
