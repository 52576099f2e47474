package api

import (
	"net/http"

	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
)

// NotesHandler handles item notes.
type NotesHandler struct {
	deps NoteDependencies
	log  logger.Logger
}

// NewNotesHandler creates a new notes handler.
func NewNotesHandler(deps NoteDependencies, log logger.Logger) *NotesHandler {
	return &NotesHandler{deps: deps, log: log}
}

// HandleAddNote handles POST /api/notes requests.
func (h *NotesHandler) HandleAddNote(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_note"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id, ok := workerID(r)
	if !ok {
		writeError(r.Context(), h.log, w, NewKind(op, ErrNoWorker))
		return
	}
	var req types.NoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	note, err := h.deps.AddNote(r.Context(), id, req)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// HandleListNotes handles GET /api/items/{id}/notes requests.
func (h *NotesHandler) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_notes"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	notes, err := h.deps.Notes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	if notes == nil {
		notes = []model.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}
