package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onemin-relay/relay/internal/apierr"
	"github.com/onemin-relay/relay/internal/catalog"
	"github.com/onemin-relay/relay/internal/middleware"
	"github.com/onemin-relay/relay/internal/onemin"
	"github.com/onemin-relay/relay/internal/ratelimit"
	"github.com/onemin-relay/relay/internal/relay"
)

// Image generation is metered by request count; each request also books a
// flat token charge so mixed traffic shares one accounting unit.
const imageTokenCharge = 1000

type ImagesHandler struct {
	gateway *onemin.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func NewImagesHandler(gateway *onemin.Client, limiter *ratelimit.Limiter, logger *slog.Logger) *ImagesHandler {
	return &ImagesHandler{
		gateway: gateway,
		limiter: limiter,
		logger:  logger,
	}
}

type imagesRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

func (h *ImagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req imagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.logger, r, apierr.Validation("Invalid JSON in request body"))
		return
	}

	if req.Prompt == "" {
		apierr.Write(w, h.logger, r, apierr.Validation("Prompt field is required"))
		return
	}

	model := req.Model
	if model == "" {
		model = catalog.DefaultImageModel
	}

	if !catalog.SupportsImageGeneration(model) {
		if catalog.IsKnownModel(model) {
			apierr.Write(w, h.logger, r, apierr.ValidationWithCode(
				"Model '"+model+"' does not support image generation", "model_not_supported"))
		} else {
			apierr.Write(w, h.logger, r, apierr.ModelNotFound(model))
		}

		return
	}

	decision := h.limiter.Check(r.Context(), middleware.ClientID(r), imageTokenCharge)
	if !decision.Allowed {
		apierr.Write(w, h.logger, r, apierr.RateLimit(decision.Message, decision.RetryAfter))
		return
	}

	envelope := relay.ImageEnvelope(req.Prompt, model, req.N, req.Size)

	parsed, err := h.gateway.SendImage(r.Context(), envelope, middleware.APIKey(r.Context()))
	if err != nil {
		apierr.Write(w, h.logger, r, err)
		return
	}

	urls := parsed.ResultList()
	if len(urls) == 0 {
		apierr.Write(w, h.logger, r, &apierr.Error{
			Status:  http.StatusInternalServerError,
			Message: "Image generation completed but no images were returned",
			Type:    apierr.TypeAPI,
			Code:    "no_images_error",
		})

		return
	}

	writeJSON(w, http.StatusOK, relay.NewImagesResponse(urls), h.logger)
}
