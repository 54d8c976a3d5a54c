package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultEmbedEndpoint       = "http://127.0.0.1:8844/embed"
	DefaultEmbedModelName      = "paraphrase-multilingual-MiniLM-L12-v2"
	DefaultEmbedBatchSize      = 32
	DefaultEmbedRequestTimeout = 45 * time.Second
	DefaultEmbeddingDimensions = 384
)

// Embedder maps article text to fixed-dimension vectors. Implementations must
// be deterministic for identical input and safe for concurrent use.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Dimensions() int
}

// HTTPEmbedder calls an embedding sidecar over HTTP. A transport failure or a
// 5xx status is reported as ErrModelUnavailable; any other non-2xx status, or
// a response that cannot be decoded into either accepted shape, is
// ErrMalformedResponse. Both sentinels reject only the affected batch.
type HTTPEmbedder struct {
	endpoint   string
	modelName  string
	dimensions int
	timeout    time.Duration
	client     *http.Client
}

type EmbedderOptions struct {
	Endpoint       string
	ModelName      string
	Dimensions     int
	RequestTimeout time.Duration
}

func NewHTTPEmbedder(opts EmbedderOptions) *HTTPEmbedder {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEmbedEndpoint
	}
	modelName := strings.TrimSpace(opts.ModelName)
	if modelName == "" {
		modelName = DefaultEmbedModelName
	}
	dimensions := opts.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultEmbedRequestTimeout
	}
	return &HTTPEmbedder{
		endpoint:   normalizeEmbedEndpoint(endpoint),
		modelName:  modelName,
		dimensions: dimensions,
		timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

type embedRequest struct {
	Texts []string `json:"texts,omitempty"`
	Input []string `json:"input,omitempty"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := embedRequest{Texts: texts}
	if parsed, err := url.Parse(e.endpoint); err == nil && strings.HasSuffix(parsed.Path, "/v1/embeddings") {
		payload = embedRequest{Input: texts, Model: e.modelName}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrModelUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrModelUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 4xx means this request is unusable, not that the backend is down.
		// It fails only the batch, like an undecodable body.
		return nil, fmt.Errorf("%w: status %d: %s", ErrMalformedResponse, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	vectors, err := decodeEmbedResponse(respBody)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: requested=%d returned=%d", ErrMalformedResponse, len(texts), len(vectors))
	}

	out := make([]Vector, 0, len(vectors))
	for i, raw := range vectors {
		vector, err := toVector(raw, e.dimensions)
		if err != nil {
			return nil, fmt.Errorf("%w: text %d: %v", ErrMalformedResponse, i, err)
		}
		out = append(out, vector)
	}
	return out, nil
}

// decodeEmbedResponse tries the strict shape first, then the OpenAI-style
// data array, and gives up with ErrMalformedResponse.
func decodeEmbedResponse(body []byte) ([][]float64, error) {
	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(parsed.Embeddings) > 0 {
		return parsed.Embeddings, nil
	}
	if len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors := make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
		return vectors, nil
	}
	return nil, fmt.Errorf("%w: response missing vectors", ErrMalformedResponse)
}

func toVector(values []float64, dimensions int) (Vector, error) {
	if len(values) != dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", dimensions, len(values))
	}
	vector := make(Vector, len(values))
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("non-finite value at index %d", i)
		}
		vector[i] = float32(value)
	}
	return vector, nil
}

func normalizeEmbedEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultEmbedEndpoint
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/embed"
	}
	return parsed.String()
}
