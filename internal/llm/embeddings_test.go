package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmbedTextsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Errorf("expected 2 inputs, got %d", len(req.Input))
		}

		resp := embeddingsResponse{
			Data: []embeddingData{
				{Embedding: []float64{0.1, 0.2, 0.3}},
				{Embedding: []float64{0.4, 0.5, 0.6}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "text-embedding-3-small", 3, 5*time.Second)
	vecs, err := client.EmbedTexts(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedTexts returned error: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Fatalf("unexpected vector shape: %d x %d", len(vecs), len(vecs[0]))
	}
	if vecs[1][2] != float32(0.6) {
		t.Errorf("unexpected value: %f", vecs[1][2])
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	client := NewEmbeddingsClient("http://unused", "key", "m", 3, time.Second)
	if _, err := client.EmbedTexts(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestEmbedTextsSizeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingsResponse{Data: []embeddingData{{Embedding: []float64{0.1, 0.2}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "m", 3, 5*time.Second)
	if _, err := client.EmbedTexts(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error on vector size mismatch")
	}
}

func TestEmbedTextsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingsResponse{Data: []embeddingData{{Embedding: []float64{0.1, 0.2, 0.3}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "m", 3, 5*time.Second)
	if _, err := client.EmbedTexts(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when embedding count disagrees with input count")
	}
}

func TestEmbedTextSingle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingsResponse{Data: []embeddingData{{Embedding: []float64{1, 2, 3}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "key", "m", 3, 5*time.Second)
	vec, err := client.EmbedText(context.Background(), "query")
	if err != nil {
		t.Fatalf("EmbedText returned error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3-dim vector, got %d", len(vec))
	}
}
