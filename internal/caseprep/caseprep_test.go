package caseprep

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"snaportho-caseprep/internal/llm"
)

// fakeCaller stubs the structured-output boundary. The handler inspects the
// schema name to decide which stage is being exercised.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []string
	handler func(schema llm.Schema, user string, out any) error
}

func (f *fakeCaller) CompleteStructured(ctx context.Context, system, user string, schema llm.Schema, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, schema.Name)
	f.mu.Unlock()
	return f.handler(schema, user, out)
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// respond encodes v into the out parameter the way a real decode would.
func respond(t *testing.T, out any, v any) error {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal fake response: %v", err)
	}
	return json.Unmarshal(raw, out)
}
