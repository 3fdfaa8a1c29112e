package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snaportho-caseprep/internal/caseprep"
)

type fakePreparer struct {
	result     caseprep.Result
	lastPrompt string
	calls      int
}

func (f *fakePreparer) Prepare(ctx context.Context, prompt string) caseprep.Result {
	f.calls++
	f.lastPrompt = prompt
	return f.result
}

func TestCasePrepHandler(t *testing.T) {
	preparer := &fakePreparer{
		result: caseprep.Result{
			PimpQuestions:    []string{"Q: What is the blood supply? A: MFCA"},
			OtherUsefulFacts: []string{"Garden classification has four grades"},
		},
	}
	handler := NewCasePrepHandler(preparer)

	req := httptest.NewRequest(http.MethodPost, "/case-prep",
		strings.NewReader(`{"prompt":"femoral neck fracture hemiarthroplasty"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if preparer.lastPrompt != "femoral neck fracture hemiarthroplasty" {
		t.Errorf("prompt not forwarded: %q", preparer.lastPrompt)
	}

	var resp caseprep.Result
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.PimpQuestions) != 1 || len(resp.OtherUsefulFacts) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCasePrepHandlerEmptyPromptStillOK(t *testing.T) {
	preparer := &fakePreparer{
		result: caseprep.Result{
			PimpQuestions:    []string{},
			OtherUsefulFacts: []string{caseprep.NoPromptSentinel},
		},
	}
	handler := NewCasePrepHandler(preparer)

	req := httptest.NewRequest(http.MethodPost, "/case-prep", strings.NewReader(`{"prompt":""}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("empty prompt must not be an HTTP error, got %d", w.Code)
	}
	var resp caseprep.Result
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.OtherUsefulFacts) != 1 || resp.OtherUsefulFacts[0] != caseprep.NoPromptSentinel {
		t.Errorf("expected sentinel fact, got %+v", resp.OtherUsefulFacts)
	}
}

func TestCasePrepHandlerInvalidBody(t *testing.T) {
	preparer := &fakePreparer{}
	handler := NewCasePrepHandler(preparer)

	req := httptest.NewRequest(http.MethodPost, "/case-prep", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if preparer.calls != 0 {
		t.Errorf("pipeline must not run on a bad body")
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestCasePrepHandlerMethodNotAllowed(t *testing.T) {
	handler := NewCasePrepHandler(&fakePreparer{})

	req := httptest.NewRequest(http.MethodGet, "/case-prep", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
