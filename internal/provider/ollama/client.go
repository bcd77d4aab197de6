// Package ollama provides an Ollama API client for embeddings and text
// generation. It implements the provider interfaces consumed by the rag
// package over Ollama's native REST API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lorekb/lore/internal/rag"
)

// Options configures the Ollama client.
type Options struct {
	// BaseURL is the Ollama server address, e.g. http://localhost:11434.
	BaseURL string

	// ChatModel is used by Generate.
	ChatModel string

	// EmbedModel is used by Embed and EmbedOne.
	EmbedModel string

	// KeepAlive is the session-affinity hint forwarded with every model
	// call ("5m" keeps the model loaded for five minutes after the call).
	KeepAlive string

	// Timeout bounds each HTTP request. Zero means no client timeout
	// (context deadlines still apply).
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after a failed
	// request. Only transport errors are retried, never HTTP errors.
	MaxRetries int

	// RequestsPerSecond paces calls toward the server. Zero disables
	// client-side pacing.
	RequestsPerSecond float64
}

// Client is an Ollama API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
}

// New creates a new Ollama client.
func New(opts Options) *Client {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

// EmbedModel reports the embedding model identity. The knowledge store
// records it at creation time to detect provider mismatches later.
func (c *Client) EmbedModel() string {
	return c.opts.EmbedModel
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates embeddings for the given texts in a single batched call.
// The result has one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embedRequest{
		Model:     c.opts.EmbedModel,
		Input:     texts,
		KeepAlive: c.opts.KeepAlive,
	}

	var embedResp embedResponse
	if err := c.post(ctx, "/api/embed", reqBody, &embedResp); err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs",
			len(embedResp.Embeddings), len(texts))
	}

	return embedResp.Embeddings, nil
}

// EmbedOne generates the embedding for a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

type generateRequest struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	Stream    bool            `json:"stream"`
	KeepAlive string          `json:"keep_alive,omitempty"`
	Options   generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
}

type generateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// Generate generates text for a prompt at the given sampling temperature.
// The call is non-streaming; the full completion is returned at once.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	reqBody := generateRequest{
		Model:     c.opts.ChatModel,
		Prompt:    prompt,
		Stream:    false,
		KeepAlive: c.opts.KeepAlive,
		Options:   generateOptions{Temperature: temperature},
	}

	var genResp generateResponse
	if err := c.post(ctx, "/api/generate", reqBody, &genResp); err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}

	return genResp.Response, nil
}

// Ping checks if the Ollama server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", rag.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping returned status %d", rag.ErrConnectivity, resp.StatusCode)
	}

	return nil
}

// ListModels lists the models available on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list models request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models failed with status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode list models response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}

	return models, nil
}

// post marshals body, sends it to path and decodes the JSON response into
// out. Requests are paced by the rate limiter and retried on transport
// errors with linear backoff.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.doWithRetry(ctx, path, payload)
	if err != nil {
		// Transport failures after retries mean the server is unreachable.
		return fmt.Errorf("%w: %w", rag.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// doWithRetry executes the request with retry logic. The request body is
// rebuilt per attempt since http.Request bodies are single-use.
func (c *Client) doWithRetry(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= c.opts.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Caller gave up, no point retrying.
			break
		}
		if i < c.opts.MaxRetries {
			select {
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}
