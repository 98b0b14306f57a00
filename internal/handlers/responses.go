package handlers

import (
	"encoding/json"
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
	"github.com/onemin-relay/relay/internal/tokens"
)

type ResponsesHandler struct {
	config    *config.Manager
	gateway   *onemin.Client
	media     *media.Relay
	estimator *tokens.Estimator
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

func NewResponsesHandler(
	config *config.Manager,
	gateway *onemin.Client,
	mediaRelay *media.Relay,
	estimator *tokens.Estimator,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *ResponsesHandler {
	return &ResponsesHandler{
		config:    config,
		gateway:   gateway,
		media:     mediaRelay,
		estimator: estimator,
		limiter:   limiter,
		logger:    logger,
	}
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type responsesRequest struct {
	Model           string          `json:"model"`
	Input           json.RawMessage `json:"input,omitempty"`
	Messages        []relay.Message `json:"messages,omitempty"`
	Stream          bool            `json:"stream"`
	ResponseFormat  *responseFormat `json:"response_format,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

// inputMessages resolves the dual input shape: a plain string becomes a
// single user turn, an array is taken as messages, and the messages field
// wins when both are present.
func (req *responsesRequest) inputMessages() ([]relay.Message, error) {
	if len(req.Messages) > 0 {
		return req.Messages, nil
	}

	if len(req.Input) == 0 {
		return nil, apierr.Validation("Input or messages field is required")
	}

	var text string
	if err := json.Unmarshal(req.Input, &text); err == nil {
		return []relay.Message{{Role: relay.RoleUser, Content: relay.TextContent(text)}}, nil
	}

	var messages []relay.Message
	if err := json.Unmarshal(req.Input, &messages); err != nil {
		return nil, apierr.Validation("Input must be a string or an array of messages")
	}

	if len(messages) == 0 {
		return nil, apierr.Validation("Input or messages field is required")
	}

	return messages, nil
}

func (h *ResponsesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r, h.logger) {
		return
	}

	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.logger, r, apierr.Validation("Invalid JSON in request body"))
		return
	}

	if req.Stream {
		apierr.Write(w, h.logger, r, apierr.Validation("Streaming is not supported on this endpoint"))
		return
	}

	messages, err := req.inputMessages()
	if err != nil {
		apierr.Write(w, h.logger, r, err)
		return
	}

	if err := relay.ValidateMessages(messages); err != nil {
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

	if relay.HasImages(messages) && !catalog.SupportsVision(spec.Model) {
		apierr.Write(w, h.logger, r, apierr.ValidationWithCode(
			"Model '"+spec.Model+"' does not support image processing", "model_not_supported"))

		return
	}

	messages = enhanceForFormat(messages, req.ResponseFormat)
	messages = enhanceForReasoning(messages, req.ReasoningEffort)

	transcript := relay.Transcript(messages)
	promptTokens := h.estimator.Estimate(transcript, spec.Model)

	decision := h.limiter.Check(r.Context(), middleware.ClientID(r), promptTokens)
	if !decision.Allowed {
		apierr.Write(w, h.logger, r, apierr.RateLimit(decision.Message, decision.RetryAfter))
		return
	}

	apiKey := middleware.APIKey(r.Context())
	envelope := relay.ChatEnvelope(transcript, spec.Model, spec.WebSearch)

	if refs := relay.LatestImageURLs(messages); len(refs) > 0 {
		result := h.media.UploadAll(r.Context(), refs, apiKey)

		if result.AllUploaded && len(result.Paths) > 0 {
			envelope = relay.MediaEnvelope(relay.LatestText(messages), spec.Model, result.Paths, spec.WebSearch)
		} else {
			h.logger.Warn("Image processing incomplete, continuing text-only", "model", spec.Model)
		}
	}

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

	if req.ResponseFormat != nil &&
		(req.ResponseFormat.Type == "json_object" || req.ResponseFormat.Type == "json_schema") {
		text = relay.NormalizeJSONContent(text)
	}

	usage := relay.NewUsage(promptTokens, h.estimator.Estimate(text, spec.Model))

	if reply.Degraded {
		w.Header().Set(onemin.DegradedHeader, "true")
	}

	writeJSON(w, http.StatusOK, relay.NewStructuredResponse(spec.Model, text, usage), h.logger)
}

// enhanceForFormat appends output-format instructions when the caller asked
// for structured output. The downstream API has no native response_format.
func enhanceForFormat(messages []relay.Message, format *responseFormat) []relay.Message {
	if format == nil {
		return messages
	}

	switch format.Type {
	case "json_object":
		return relay.InjectSystemPrompt(messages,
			"You must respond with valid JSON only. No markdown, no code fences, no prose around it.")
	case "json_schema":
		prompt := "You must respond with valid JSON only. No markdown, no code fences, no prose around it."
		if len(format.JSONSchema) > 0 {
			prompt += " The response must conform to this JSON schema:\n" + string(format.JSONSchema)
		}

		return relay.InjectSystemPrompt(messages, prompt)
	default:
		return messages
	}
}

func enhanceForReasoning(messages []relay.Message, effort string) []relay.Message {
	switch effort {
	case "low":
		return relay.InjectSystemPrompt(messages, "Answer directly and concisely. Skip intermediate reasoning.")
	case "medium":
		return relay.InjectSystemPrompt(messages, "Think through the problem before answering, but keep the reasoning brief.")
	case "high":
		return relay.InjectSystemPrompt(messages, "Reason through the problem step by step and verify the answer before responding.")
	default:
		return messages
	}
}
