package handlers

import (
	"log/slog"
	"net/http"

	"github.com/onemin-relay/relay/internal/apierr"
)

const banner = `1min.ai OpenAI-compatible relay

Endpoints:
  POST /v1/chat/completions
  POST /v1/responses
  POST /v1/images/generations
  GET  /v1/models
  GET  /health

Authenticate with your 1min.ai API key as a Bearer token.
`

// RootHandler serves the landing banner and answers everything else on the
// catch-all route with a uniform 404.
type RootHandler struct {
	logger *slog.Logger
}

func NewRootHandler(logger *slog.Logger) *RootHandler {
	return &RootHandler{logger: logger}
}

func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/v1" {
		apierr.Write(w, h.logger, r, &apierr.Error{
			Status:  http.StatusNotFound,
			Message: "Not Found",
			Type:    apierr.TypeInvalidRequest,
		})

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(banner)); err != nil {
		h.logger.Error("Failed to write banner", "error", err)
	}
}
