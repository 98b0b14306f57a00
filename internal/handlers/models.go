package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onemin-relay/relay/internal/catalog"
)

type ModelsHandler struct {
	logger *slog.Logger
}

func NewModelsHandler(logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{logger: logger}
}

type modelEntry struct {
	ID           string               `json:"id"`
	Object       string               `json:"object"`
	Created      int64                `json:"created"`
	OwnedBy      string               `json:"owned_by"`
	Capabilities catalog.Capabilities `json:"capabilities"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	created := time.Now().Unix()

	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(catalog.AllModels))}

	for _, model := range catalog.AllModels {
		list.Data = append(list.Data, modelEntry{
			ID:           model,
			Object:       "model",
			Created:      created,
			OwnedBy:      "1min-ai",
			Capabilities: catalog.CapabilitiesFor(model),
		})
	}

	writeJSON(w, http.StatusOK, list, h.logger)
}
