package api

import (
	"encoding/json"
	"net/http"

	"parley/assistant/internal/health"
	"parley/assistant/internal/orchestrator"
	"parley/assistant/internal/store"
)

type StatusProvider interface {
	Status() orchestrator.Status
}

type Handlers struct {
	journal *store.Journal
	state   StatusProvider
	device  http.HandlerFunc
	probes  []health.Probe
}

func NewHandlers(j *store.Journal, state StatusProvider, device http.HandlerFunc, probes ...health.Probe) *Handlers {
	return &Handlers{journal: j, state: state, device: device, probes: probes}
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := health.CheckAll(r.Context(), h.probes...)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": h.journal.List()})
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
