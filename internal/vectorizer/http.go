package vectorizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/config"
	"dev.helix.recall/internal/models"
)

// HTTPClient talks to an embedding sidecar over HTTP. It carries no
// request timeout: the first request after sidecar start may block while
// the model loads, and collaborator calls are deliberately unbounded.
type HTTPClient struct {
	baseURL    string
	dimensions int
	batchSize  int
	httpClient *http.Client
	cache      *embedCache
	logger     *logrus.Logger

	readyOnce sync.Once
	ready     atomic.Bool
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewHTTPClient builds a client from config.
func NewHTTPClient(cfg config.VectorizerConfig, logger *logrus.Logger) *HTTPClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		httpClient: &http.Client{},
		cache:      newEmbedCache(cfg.CacheSize),
		logger:     logger,
	}
}

// Dimensions returns the configured embedding size.
func (c *HTTPClient) Dimensions() int {
	return c.dimensions
}

// Embed converts one text, consulting the content-addressed cache first.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := c.cache.get(text); ok {
		return vector, nil
	}

	vectors, err := c.post(ctx, []string{text})
	if err != nil {
		return nil, models.NewVectorizerError(err)
	}
	if len(vectors) != 1 || vectors[0] == nil {
		return nil, models.NewVectorizerError(fmt.Errorf("no embedding returned"))
	}
	if len(vectors[0]) != c.dimensions {
		return nil, models.NewVectorizerError(
			fmt.Errorf("dimension mismatch: want %d, got %d", c.dimensions, len(vectors[0])))
	}

	c.cache.set(text, vectors[0])
	return vectors[0], nil
}

// EmbedBatch converts texts in chunks of the configured batch size.
// A failed chunk or item contributes nil entries and processing
// continues with the remaining chunks.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		vectors, err := c.post(ctx, chunk)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"chunk_start": start,
				"chunk_size":  len(chunk),
			}).Warn("embedding chunk failed, items marked nil")
			continue
		}

		for i, vector := range vectors {
			if start+i >= len(results) {
				break
			}
			if vector == nil || len(vector) != c.dimensions {
				continue
			}
			results[start+i] = vector
			c.cache.set(chunk[i], vector)
		}
	}

	return results, nil
}

// Ready performs a smoke embedding. Once the model has answered one
// request it is considered loaded for the rest of the process lifetime.
func (c *HTTPClient) Ready(ctx context.Context) bool {
	c.readyOnce.Do(func() {
		_, err := c.Embed(ctx, "ready check")
		c.ready.Store(err == nil)
		if err != nil {
			c.logger.WithError(err).Warn("vectorizer readiness check failed")
		}
	})
	if !c.ready.Load() {
		// Model was not up on the first probe; keep probing.
		_, err := c.Embed(ctx, "ready check")
		c.ready.Store(err == nil)
	}
	return c.ready.Load()
}

// CacheSize returns the number of cached embeddings.
func (c *HTTPClient) CacheSize() int {
	return c.cache.size()
}

func (c *HTTPClient) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, payload)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", decoded.Error)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(decoded.Embeddings))
	}
	return decoded.Embeddings, nil
}
