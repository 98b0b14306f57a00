// Package handlers implements the OpenAI-compatible HTTP surface.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onemin-relay/relay/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("Failed to write response", "error", err)
	}
}

// requirePost rejects non-POST calls with the uniform error envelope.
// Preflights never reach here; CORS answers them earlier in the chain.
func requirePost(w http.ResponseWriter, r *http.Request, logger *slog.Logger) bool {
	if r.Method == http.MethodPost {
		return true
	}

	w.Header().Set("Allow", http.MethodPost)
	apierr.Write(w, logger, r, &apierr.Error{
		Status:  http.StatusMethodNotAllowed,
		Message: "Method not allowed",
		Type:    apierr.TypeInvalidRequest,
	})

	return false
}
