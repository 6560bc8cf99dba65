package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkoukk/tiktoken-go"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
	"github.com/anthropic-openrouter-proxy/proxy/internal/translator"
)

// CountTokensHandler serves POST /v1/messages/count_tokens. Counting uses
// the cl100k_base encoding over the request's prompt text; when the
// encoding cannot be loaded it falls back to the character-ratio estimate.
type CountTokensHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewCountTokensHandler(cfgMgr *config.Manager, logger *slog.Logger) *CountTokensHandler {
	return &CountTokensHandler{config: cfgMgr, logger: logger}
}

func (h *CountTokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "not_found")
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

	text := translator.PromptText(req)

	tokens := h.count(text)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]int{"input_tokens": tokens}); err != nil {
		h.logger.Error("Failed to write count_tokens response", "error", err)
	}
}

func (h *CountTokensHandler) count(text string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		h.logger.Error("Failed to load tiktoken encoding, estimating", "error", err)
		return translator.EstimateTokens(text, h.config.Get().TokensPerChar)
	}

	return len(tke.Encode(text, nil, nil))
}
