package handlers

import (
	"context"
	"net/http"
	"time"
)

// Checker pings one dependency
type Checker func(ctx context.Context) error

type HealthHandler struct {
	restored func() bool
	checks   map[string]Checker
}

// NewHealthHandler creates the health endpoints. restored reports whether
// the persisted session has been read; checks are optional dependencies
// such as the cache or the journal database.
func NewHealthHandler(restored func() bool, checks map[string]Checker) *HealthHandler {
	if checks == nil {
		checks = make(map[string]Checker)
	}
	return &HealthHandler{restored: restored, checks: checks}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string, len(h.checks)),
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			response.Services[name] = "unhealthy"
			response.Status = "degraded"
		} else {
			response.Services[name] = "healthy"
		}
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Ready reports ready once the session restore has completed
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.restored() {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
