package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"docuquery/internal/contextutil"
	"docuquery/internal/router"
)

// AnswerHandler handles question answering requests.
type AnswerHandler struct {
	router      *router.Router
	defaultTopK int
}

// NewAnswerHandler creates a new AnswerHandler. defaultTopK substitutes for
// an omitted top_k; the router itself rejects non-positive values.
func NewAnswerHandler(rt *router.Router, defaultTopK int) *AnswerHandler {
	return &AnswerHandler{router: rt, defaultTopK: defaultTopK}
}

// AnswerRequest is the HTTP request payload for questions. TopK zero means
// the server default.
type AnswerRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// ServeHTTP answers a question against the ingested corpus. The response
// always carries a degradation level; only transport and validation problems
// surface as HTTP errors.
func (h *AnswerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = h.defaultTopK
	}

	resp, err := h.router.Answer(ctx, req.Question, topK)
	if err != nil {
		writeServiceError(w, ctx, err, "Failed to answer question")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
