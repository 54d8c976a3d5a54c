package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testVectorJSON(dims int, fill float64) []float64 {
	values := make([]float64, dims)
	for i := range values {
		values[i] = fill
	}
	return values
}

func TestHTTPEmbedderNativeShape(t *testing.T) {
	t.Parallel()

	const dims = 4
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		embeddings := make([][]float64, len(req.Texts))
		for i := range req.Texts {
			embeddings[i] = testVectorJSON(dims, float64(i+1))
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(EmbedderOptions{
		Endpoint:   server.URL + "/embed",
		Dimensions: dims,
	})

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if len(vectors[0]) != dims {
		t.Fatalf("vector has %d dimensions, want %d", len(vectors[0]), dims)
	}
	if vectors[1][0] != 2 {
		t.Fatalf("vectors[1][0] = %v, want 2", vectors[1][0])
	}
}

func TestHTTPEmbedderOpenAIShape(t *testing.T) {
	t.Parallel()

	const dims = 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Model == "" {
			t.Errorf("model name missing from OpenAI-style request")
		}
		// Return rows out of order to exercise index-based reassembly.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"index":     i,
				"embedding": testVectorJSON(dims, float64(i+1)),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(EmbedderOptions{
		Endpoint:   server.URL + "/v1/embeddings",
		ModelName:  "test-model",
		Dimensions: dims,
	})

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, vector := range vectors {
		if vector[0] != float32(i+1) {
			t.Fatalf("vectors[%d][0] = %v, want %d: rows must be reordered by index", i, vector[0], i+1)
		}
	}
}

func TestHTTPEmbedderServerErrorIsModelUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(EmbedderOptions{Endpoint: server.URL + "/embed", Dimensions: 4})

	_, err := embedder.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestHTTPEmbedderClientErrorIsMalformedResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "texts field is required", http.StatusBadRequest)
	}))
	defer server.Close()

	embedder := NewHTTPEmbedder(EmbedderOptions{Endpoint: server.URL + "/embed", Dimensions: 4})

	_, err := embedder.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse for a 4xx status", err)
	}
	if errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, a 4xx must not look like an unavailable backend", err)
	}
}

func TestHTTPEmbedderTransportFailureIsModelUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	embedder := NewHTTPEmbedder(EmbedderOptions{
		Endpoint:       server.URL + "/embed",
		Dimensions:     4,
		RequestTimeout: 2 * time.Second,
	})

	_, err := embedder.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestHTTPEmbedderMalformedResponses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"missing vectors", `{"status":"ok"}`},
		{"wrong dimensions", `{"embeddings":[[0.1,0.2]]}`},
		{"non-finite values", `{"embeddings":[[1e400,0.2,0.3,0.4]]}`},
		{"count mismatch", `{"embeddings":[[0.1,0.2,0.3,0.4],[0.1,0.2,0.3,0.4]]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			embedder := NewHTTPEmbedder(EmbedderOptions{Endpoint: server.URL + "/embed", Dimensions: 4})

			_, err := embedder.EmbedBatch(context.Background(), []string{"text"})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestHTTPEmbedderEmptyInput(t *testing.T) {
	t.Parallel()

	embedder := NewHTTPEmbedder(EmbedderOptions{Endpoint: "http://127.0.0.1:1/embed", Dimensions: 4})
	vectors, err := embedder.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): %v", err)
	}
	if vectors != nil {
		t.Fatalf("EmbedBatch(nil) = %v, want nil without any request", vectors)
	}
}

func TestNormalizeEmbedEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:8844", "http://localhost:8844/embed"},
		{"http://localhost:8844/", "http://localhost:8844/embed"},
		{"http://localhost:8844/embed", "http://localhost:8844/embed"},
		{"http://localhost:8080/v1/embeddings", "http://localhost:8080/v1/embeddings"},
		{"", DefaultEmbedEndpoint},
	}
	for _, tc := range cases {
		if got := normalizeEmbedEndpoint(tc.in); got != tc.want {
			t.Fatalf("normalizeEmbedEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
