// Package embedding provides an OpenAI-compatible embeddings client.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zhaoo/catgpt/internal/retrieval"
)

// DefaultModel is the embedding model requested when none is configured.
const DefaultModel = "text-embedding-ada-002"

// Client calls the /embeddings endpoint of an OpenAI-compatible server.
// The first successful call pins the vector dimensionality; later responses
// with a different width are rejected rather than poisoning the store.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu  sync.Mutex
	dim int
}

var _ retrieval.Embedder = (*Client)(nil)

func NewClient(apiKey, baseURL, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding endpoint returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}

	vec := result.Data[0].Embedding
	if err := c.checkDimension(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

func (c *Client) checkDimension(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim == 0 {
		c.dim = n
		return nil
	}
	if n != c.dim {
		return fmt.Errorf("provider returned %d dimensions, expected %d: %w",
			n, c.dim, retrieval.ErrDimensionMismatch)
	}
	return nil
}
