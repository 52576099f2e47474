package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/pkg/logger"
)

// AdminHandler serves the admin surface.
type AdminHandler struct {
	deps AdminDependencies
	log  logger.Logger
	now  func() time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, log logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, log: log, now: time.Now}
}

// HandleReport handles GET /api/admin/report requests.
func (h *AdminHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rep, err := h.deps.Report(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleExport handles GET /api/admin/export requests. The body is the
// export artifact, offered as a download.
func (h *AdminHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	records, err := h.deps.Export(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	if records == nil {
		records = []agreement.ExportRecord{}
	}
	name := fmt.Sprintf("jnana-export-%s.json", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	writeJSON(w, http.StatusOK, records)
}

// HandleEditQueue handles GET /api/admin/edit-queue?status= requests.
// Pending requests are listed unless status says otherwise; "all" lists
// every request.
func (h *AdminHandler) HandleEditQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.edit_queue"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "":
		status = model.EditPending
	case "all":
		status = ""
	}
	reqs, err := h.deps.EditQueue(r.Context(), status)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	if reqs == nil {
		reqs = []model.EditRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HandleEditDone handles POST /api/admin/edit-queue/{id}/done requests.
func (h *AdminHandler) HandleEditDone(w http.ResponseWriter, r *http.Request) {
	const op = "api.edit_done"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id := r.PathValue("id")
	if err := h.deps.MarkEditDone(r.Context(), id); err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": model.EditDone, "item_id": id})
}
