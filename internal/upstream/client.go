// Package upstream is the HTTP client for OpenRouter's OpenAI-compatible
// API: the chat-completions endpoint the proxy forwards to and the models
// listing the alias generator reads.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/andybalholm/brotli"

	"github.com/anthropic-openrouter-proxy/proxy/internal/resolver"
)

const (
	ChatCompletionsURL = "https://openrouter.ai/api/v1/chat/completions"
	ModelsURL          = "https://openrouter.ai/api/v1/models"

	// KeyPrefix identifies OpenRouter API keys. A client key carrying it is
	// used directly (bring-your-own-key).
	KeyPrefix = "sk-or-"
)

// Response is an upstream reply with the body already wrapped for
// decompression. Close releases the underlying connection.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.Reader

	raw io.Closer
	gz  io.Closer
}

func (r *Response) Close() {
	if r.gz != nil {
		_ = r.gz.Close()
	}

	_ = r.raw.Close()
}

type Client struct {
	endpoint   string
	modelsURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		endpoint:   ChatCompletionsURL,
		modelsURL:  ModelsURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

// NewClientFor targets a non-default endpoint; used by tests.
func NewClientFor(endpoint, modelsURL string, logger *slog.Logger) *Client {
	c := NewClient(logger)

	if endpoint != "" {
		c.endpoint = endpoint
	}

	if modelsURL != "" {
		c.modelsURL = modelsURL
	}

	return c
}

// ChatCompletions posts a translated payload upstream. The caller bounds the
// call through ctx; cancellation aborts the in-flight request.
func (c *Client) ChatCompletions(ctx context.Context, apiKey string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	return wrapResponse(resp)
}

// ListModels fetches the upstream model listing for alias generation.
func (c *Client) ListModels(ctx context.Context) (*resolver.ModelListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create models request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models request: unexpected status %d", resp.StatusCode)
	}

	var listing resolver.ModelListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode models listing: %w", err)
	}

	return &listing, nil
}

// wrapResponse layers a decompressing reader over the body when upstream
// compressed it.
func wrapResponse(resp *http.Response) (*Response, error) {
	wrapped := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		raw:        resp.Body,
	}

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}

		wrapped.Body = gzipReader
		wrapped.gz = gzipReader
	case "br":
		wrapped.Body = brotli.NewReader(resp.Body)
	}

	return wrapped, nil
}
