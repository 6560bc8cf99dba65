package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
	"github.com/anthropic-openrouter-proxy/proxy/internal/resolver"
	"github.com/anthropic-openrouter-proxy/proxy/internal/translator"
	"github.com/anthropic-openrouter-proxy/proxy/internal/upstream"
)

// ProxyHandler owns the per-request lifecycle of POST /v1/messages: auth
// resolution, body parsing, stream/non-stream branching, the upstream call
// with timeout and single fallback retry, and response emission. Every
// request is translated statelessly from its own payload.
type ProxyHandler struct {
	config   *config.Manager
	resolver *resolver.Resolver
	client   *upstream.Client
	logger   *slog.Logger
}

func NewProxyHandler(cfgMgr *config.Manager, res *resolver.Resolver, client *upstream.Client, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		config:   cfgMgr,
		resolver: res,
		client:   client,
		logger:   logger,
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	cfg := h.config.Get()

	apiKey, err := h.resolveKey(r, cfg)
	if err != nil {
		var authErr *authError
		if errors.As(err, &authErr) {
			h.logger.Warn("Auth failed", "error", err, "remote_addr", r.RemoteAddr)
			writeError(w, authErr.status, authErr.code)

			return
		}

		writeError(w, http.StatusUnauthorized, "unauthorized")

		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	req, err := translator.ParseAnthropicRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	streaming := req.Stream || strings.Contains(r.Header.Get("Accept"), "text/event-stream")

	payload := translator.BuildUpstreamPayload(req, r.Header.Get("x-or-model"), streaming, cfg, h.resolver)

	if streaming {
		h.serveStream(w, r, payload, apiKey)
		return
	}

	h.serveBuffered(w, r, payload, apiKey, cfg)
}

// serveBuffered performs the non-streaming upstream call. A rate-limited or
// server-error reply triggers exactly one retry against the configured
// fallback model; the reported duration spans both calls.
func (h *ProxyHandler) serveBuffered(w http.ResponseWriter, r *http.Request, payload *translator.Payload, apiKey string, cfg *config.Config) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), cfg.Timeout())
	defer cancel()

	status, upstreamBody, err := h.callUpstream(ctx, apiKey, payload)

	if err == nil && retryable(status) && cfg.FallbackModel != "" && cfg.FallbackModel != payload.Model {
		h.logger.Warn("Retrying with fallback model",
			"status", status,
			"model", payload.Model,
			"fallback", cfg.FallbackModel,
		)

		payload.SetModel(cfg.FallbackModel)
		status, upstreamBody, err = h.callUpstream(ctx, apiKey, payload)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.logger.Error("Upstream timeout", "model", payload.Model, "timeout", cfg.Timeout())
			writeError(w, http.StatusGatewayTimeout, "upstream_timeout")

			return
		}

		h.logger.Error("Upstream request failed", "error", err, "model", payload.Model)
		writeError(w, http.StatusBadGateway, "upstream_unreachable")

		return
	}

	// Non-2xx upstream replies pass through verbatim.
	if status < 200 || status >= 300 {
		h.logger.Error("Upstream error response", "status", status, "model", payload.Model)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(upstreamBody)

		return
	}

	response, diagnostics := translator.BuildClientResponse(upstreamBody, payload, time.Since(start), cfg)

	for key, value := range diagnostics {
		w.Header().Set(key, value)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}

	h.logger.Info("Completed request",
		"model", payload.Model,
		"status", status,
		"duration", time.Since(start),
	)
}

// serveStream hands the upstream byte stream to the stream translator. The
// request context is not deadline-bounded here; the client's disconnect
// cancels it, which breaks the writer and stops the upstream read loop.
func (h *ProxyHandler) serveStream(w http.ResponseWriter, r *http.Request, payload *translator.Payload, apiKey string) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	resp, err := h.client.ChatCompletions(r.Context(), apiKey, body)
	if err != nil {
		h.logger.Error("Upstream stream request failed", "error", err, "model", payload.Model)
		writeError(w, http.StatusBadGateway, "upstream_unreachable")

		return
	}
	defer resp.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamBody, _ := io.ReadAll(resp.Body)
		h.logger.Error("Upstream stream error response", "status", resp.StatusCode, "model", payload.Model)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(upstreamBody)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-OR-Model", payload.Model)
	w.WriteHeader(http.StatusOK)

	flush := func() {
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	st := translator.NewStreamTranslator(w, flush, payload)
	if err := st.Run(resp.Body); err != nil {
		// Headers are long gone; the broken stream itself is the signal.
		h.logger.Error("Stream translation aborted", "error", err, "model", payload.Model)
	}
}

func (h *ProxyHandler) callUpstream(ctx context.Context, apiKey string, payload *translator.Payload) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}

	h.logger.Info("Proxying request", "model", payload.Model)

	resp, err := h.client.ChatCompletions(ctx, apiKey, body)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Close()

	upstreamBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream response: %w", err)
	}

	return resp.StatusCode, upstreamBody, nil
}

// resolveKey picks the upstream credential: a client key matching the
// OpenRouter prefix is used directly (BYOK); otherwise the server key
// applies, gated by the shared proxy token when one is required.
func (h *ProxyHandler) resolveKey(r *http.Request, cfg *config.Config) (string, error) {
	clientKey := r.Header.Get("anthropic-api-key")
	if clientKey == "" {
		clientKey = r.Header.Get("x-api-key")
	}

	if strings.HasPrefix(clientKey, upstream.KeyPrefix) {
		return clientKey, nil
	}

	if cfg.OpenRouterKey == "" {
		return "", &authError{status: http.StatusUnauthorized, code: "missing_api_key"}
	}

	if cfg.RequireProxyToken && r.Header.Get("proxy-token") != cfg.ProxyToken {
		return "", &authError{status: http.StatusForbidden, code: "invalid_proxy_token"}
	}

	return cfg.OpenRouterKey, nil
}

type authError struct {
	status int
	code   string
}

func (e *authError) Error() string {
	return e.code
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, code)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
