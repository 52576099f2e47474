package api

import (
	"context"
	"net/http"
)

// StatsProvider reports live service counters.
type StatsProvider interface {
	Stats(ctx context.Context) map[string]any
}

// StatsHandler serves the live counters polled by the dashboard.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats handles GET /stats requests. Counters change on every
// request, so the answer is never cached.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.provider.Stats(r.Context()))
}
