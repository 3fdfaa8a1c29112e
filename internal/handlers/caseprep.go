package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"snaportho-caseprep/internal/caseprep"
	"snaportho-caseprep/internal/contextutil"
)

// CasePreparer runs the case-preparation pipeline for one prompt.
type CasePreparer interface {
	Prepare(ctx context.Context, prompt string) caseprep.Result
}

// CasePrepHandler handles HTTP requests for case preparation.
type CasePrepHandler struct {
	preparer CasePreparer
}

// NewCasePrepHandler creates a new CasePrepHandler.
func NewCasePrepHandler(preparer CasePreparer) *CasePrepHandler {
	return &CasePrepHandler{preparer: preparer}
}

// CasePrepRequest is the HTTP request payload for case preparation.
type CasePrepRequest struct {
	Prompt string `json:"prompt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles POST /case-prep. The response body is always a full
// caseprep.Result; pipeline degradation shows up as sentinel facts, never as
// an HTTP error.
func (h *CasePrepHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CasePrepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result := h.preparer.Prepare(ctx, req.Prompt)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
