package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/onemin-relay/relay/internal/apierr"
	"github.com/onemin-relay/relay/internal/catalog"
	"github.com/onemin-relay/relay/internal/config"
	"github.com/onemin-relay/relay/internal/media"
	"github.com/onemin-relay/relay/internal/middleware"
	"github.com/onemin-relay/relay/internal/onemin"
	"github.com/onemin-relay/relay/internal/ratelimit"
	"github.com/onemin-relay/relay/internal/relay"
	"github.com/onemin-relay/relay/internal/stream"
	"github.com/onemin-relay/relay/internal/tokens"
)

type ChatHandler struct {
	config    *config.Manager
	gateway   *onemin.Client
	media     *media.Relay
	estimator *tokens.Estimator
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

func NewChatHandler(
	config *config.Manager,
	gateway *onemin.Client,
	mediaRelay *media.Relay,
	estimator *tokens.Estimator,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		config:    config,
		gateway:   gateway,
		media:     mediaRelay,
		estimator: estimator,
		limiter:   limiter,
		logger:    logger,
	}
}

type chatRequest struct {
	Model        string                     `json:"model"`
	Messages     []relay.Message            `json:"messages"`
	Stream       bool                       `json:"stream"`
	Tools        []relay.Tool               `json:"tools,omitempty"`
	ToolChoice   *relay.ToolChoice          `json:"tool_choice,omitempty"`
	Functions    []relay.FunctionDefinition `json:"functions,omitempty"`
	FunctionCall *relay.ToolChoice          `json:"function_call,omitempty"`
}

func (req *chatRequest) wantsFunctions() bool {
	return len(req.Tools) > 0 || len(req.Functions) > 0
}

func (req *chatRequest) choice() *relay.ToolChoice {
	if req.ToolChoice != nil {
		return req.ToolChoice
	}

	return req.FunctionCall
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.logger, r, apierr.Validation("Invalid JSON in request body"))
		return
	}

	if len(req.Messages) == 0 {
		apierr.Write(w, h.logger, r, apierr.Validation("Messages field is required and must not be empty"))
		return
	}

	if err := relay.ValidateMessages(req.Messages); err != nil {
		apierr.Write(w, h.logger, r, apierr.Validation(err.Error()))
		return
	}

	cfg := h.config.Get()

	requested := req.Model
	if requested == "" {
		requested = catalog.DefaultModel
	}

	spec, err := relay.ParseModelName(requested, relay.WebSearchOverrides{
		NumOfSite: cfg.WebSearch.NumOfSite,
		MaxWord:   cfg.WebSearch.MaxWord,
	})
	if err != nil {
		apierr.Write(w, h.logger, r, err)
		return
	}

	if !catalog.IsKnownModel(spec.Model) {
		apierr.Write(w, h.logger, r, apierr.ModelNotFound(spec.Model))
		return
	}

	// The vision check covers the whole conversation and runs before any
	// image leaves the process.
	if relay.HasImages(req.Messages) && !catalog.SupportsVision(spec.Model) {
		apierr.Write(w, h.logger, r, apierr.ValidationWithCode(
			"Model '"+spec.Model+"' does not support image processing", "model_not_supported"))

		return
	}

	messages := req.Messages
	if req.wantsFunctions() {
		messages = relay.InjectSystemPrompt(messages,
			relay.FunctionSystemPrompt(req.Tools, req.Functions, req.choice()))
	}

	transcript := relay.Transcript(messages)
	promptTokens := h.estimator.Estimate(transcript, spec.Model)

	decision := h.limiter.Check(r.Context(), middleware.ClientID(r), promptTokens)
	if !decision.Allowed {
		apierr.Write(w, h.logger, r, apierr.RateLimit(decision.Message, decision.RetryAfter))
		return
	}

	apiKey := middleware.APIKey(r.Context())
	envelope := relay.ChatEnvelope(transcript, spec.Model, spec.WebSearch)

	if refs := relay.LatestImageURLs(req.Messages); len(refs) > 0 {
		result := h.media.UploadAll(r.Context(), refs, apiKey)

		if result.AllUploaded && len(result.Paths) > 0 {
			envelope = relay.MediaEnvelope(relay.LatestText(messages), spec.Model, result.Paths, spec.WebSearch)
		} else {
			h.logger.Warn("Image processing incomplete, continuing text-only", "model", spec.Model)
		}
	}

	if req.Stream {
		h.serveStreaming(w, r, envelope, spec.Model, promptTokens, apiKey)
		return
	}

	h.serveBuffered(w, r, &req, envelope, spec.Model, promptTokens, apiKey)
}

func (h *ChatHandler) serveBuffered(
	w http.ResponseWriter,
	r *http.Request,
	req *chatRequest,
	envelope *relay.Envelope,
	model string,
	promptTokens int,
	apiKey string,
) {
	reply, err := h.gateway.SendChat(r.Context(), envelope, false, apiKey)
	if err != nil {
		apierr.Write(w, h.logger, r, err)
		return
	}
	defer reply.Response.Body.Close()

	parsed, err := onemin.DecodeResponse(reply.Response)
	if err != nil {
		apierr.Write(w, h.logger, r, err)
		return
	}

	text := parsed.ResultText()
	usage := relay.NewUsage(promptTokens, h.estimator.Estimate(text, model))
	completion := relay.NewChatCompletion(model, text, usage)

	if req.wantsFunctions() {
		relay.ApplyFunctionCalls(completion, relay.ParseFunctionCalls(text))
	}

	if reply.Degraded {
		w.Header().Set(onemin.DegradedHeader, "true")
	}

	writeJSON(w, http.StatusOK, completion, h.logger)
}

func (h *ChatHandler) serveStreaming(
	w http.ResponseWriter,
	r *http.Request,
	envelope *relay.Envelope,
	model string,
	promptTokens int,
	apiKey string,
) {
	reply, err := h.gateway.SendChat(r.Context(), envelope, true, apiKey)
	if err != nil {
		apierr.Write(w, h.logger, r, err)
		return
	}

	body, err := onemin.DecodedBody(reply.Response)
	if err != nil {
		reply.Response.Body.Close()
		apierr.Write(w, h.logger, r, err)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if reply.Degraded {
		w.Header().Set(onemin.DegradedHeader, "true")
	}

	w.WriteHeader(http.StatusOK)

	usage := func(completion string) *relay.Usage {
		u := relay.NewUsage(promptTokens, h.estimator.Estimate(completion, model))
		return &u
	}

	// The pump owns the downstream body and talks to this handler only
	// through the pipe; closing the read end is the abort signal.
	pr, pw := io.Pipe()

	go stream.Pump(pw, readCloser{body, reply.Response.Body}, model, usage, h.logger)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)

	for {
		n, readErr := pr.Read(buf)

		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				pr.CloseWithError(writeErr)
				return
			}

			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr != nil {
			return
		}
	}
}

// readCloser pairs a decoding reader with the underlying body's closer.
type readCloser struct {
	io.Reader
	io.Closer
}
