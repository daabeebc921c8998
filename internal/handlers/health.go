package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"docuquery/internal/contextutil"
	"docuquery/internal/registry"
)

// IndexChecker reports whether the vector index collection is reachable.
type IndexChecker interface {
	CollectionExists(ctx context.Context) (bool, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	reg                *registry.Registry
	index              IndexChecker
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(reg *registry.Registry, index IndexChecker) *HealthHandler {
	return &HealthHandler{
		reg:                reg,
		index:              index,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Documents map[string]int    `json:"documents,omitempty"`
	Issues    []string          `json:"issues,omitempty"`
}

// ServeHTTP checks the registry database and the vector index. The LLM and
// embedding services are deliberately not probed: the degradation router
// already answers without them, and probing adds latency to every check.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string
	var docCounts map[string]int

	counts, err := h.reg.CountByStatus(checkCtx)
	if err != nil {
		logger.WarnContext(ctx, "registry health check failed", "error", err)
		checks["registry"] = "error"
		issues = append(issues, "registry_unavailable")
	} else {
		checks["registry"] = "ok"
		docCounts = make(map[string]int, len(counts))
		for status, n := range counts {
			docCounts[string(status)] = n
		}
	}

	if h.checkIndex(checkCtx, logger) {
		checks["vector_index"] = "ok"
	} else {
		checks["vector_index"] = "error"
		issues = append(issues, "vector_index_unavailable")
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Documents: docCounts,
		Issues:    issues,
	})
}

func (h *HealthHandler) checkIndex(ctx context.Context, logger *slog.Logger) bool {
	exists, err := h.index.CollectionExists(ctx)
	if err != nil {
		logger.WarnContext(ctx, "vector index health check failed", "error", err)
		return false
	}
	if !exists {
		logger.WarnContext(ctx, "vector index collection missing")
		return false
	}
	return true
}
