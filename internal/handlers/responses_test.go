package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemin-relay/relay/internal/config"
	"github.com/onemin-relay/relay/internal/media"
	"github.com/onemin-relay/relay/internal/onemin"
	"github.com/onemin-relay/relay/internal/ratelimit"
	"github.com/onemin-relay/relay/internal/relay"
	"github.com/onemin-relay/relay/internal/tokens"
)

func newResponsesHandler(t *testing.T, downstreamURL string) *ResponsesHandler {
	t.Helper()

	logger := testLogger()

	return NewResponsesHandler(
		config.NewManager(t.TempDir()),
		onemin.NewClient(downstreamURL, downstreamURL, logger),
		media.NewRelay("", logger),
		tokens.NewEstimator(logger),
		ratelimit.NewLimiter(nil, ratelimit.ChatConfig(), logger),
		logger,
	)
}

func TestResponsesStringInput(t *testing.T) {
	server, downstream := newDownstream(t, `"a structured answer"`)
	handler := newResponsesHandler(t, server.URL)

	rec := postJSON(handler, "/v1/responses", `{
		"model": "gpt-4o",
		"input": "summarize this"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp relay.StructuredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "response", resp.Object)
	assert.Contains(t, resp.ID, "resp-")
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "a structured answer", *resp.Choices[0].Message.Content)

	envelope := downstream.last(t)
	assert.Contains(t, envelope.PromptObject.Prompt, "Human: summarize this")
}

func TestResponsesMessagesInput(t *testing.T) {
	server, downstream := newDownstream(t, `"ok"`)
	handler := newResponsesHandler(t, server.URL)

	rec := postJSON(handler, "/v1/responses", `{
		"model": "gpt-4o",
		"input": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	envelope := downstream.last(t)
	assert.Contains(t, envelope.PromptObject.Prompt, "System: be terse")
	assert.Contains(t, envelope.PromptObject.Prompt, "Human: hello")
}

func TestResponsesJSONFormat(t *testing.T) {
	server, downstream := newDownstream(t, `"{ \"answer\": 42 }"`)
	handler := newResponsesHandler(t, server.URL)

	rec := postJSON(handler, "/v1/responses", `{
		"model": "gpt-4o",
		"input": "give me json",
		"response_format": {"type": "json_object"}
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp relay.StructuredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Valid JSON output is re-rendered compactly.
	assert.Equal(t, `{"answer":42}`, *resp.Choices[0].Message.Content)

	// The downstream prompt carries the format instruction.
	envelope := downstream.last(t)
	assert.Contains(t, envelope.PromptObject.Prompt, "valid JSON only")
}

func TestResponsesReasoningEffort(t *testing.T) {
	server, downstream := newDownstream(t, `"thought about it"`)
	handler := newResponsesHandler(t, server.URL)

	rec := postJSON(handler, "/v1/responses", `{
		"model": "gpt-4o",
		"input": "hard question",
		"reasoning_effort": "high"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, downstream.last(t).PromptObject.Prompt, "step by step")
}

func TestResponsesValidation(t *testing.T) {
	server, _ := newDownstream(t, `"unused"`)
	handler := newResponsesHandler(t, server.URL)

	t.Run("missing input", func(t *testing.T) {
		rec := postJSON(handler, "/v1/responses", `{"model": "gpt-4o"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Input or messages field is required")
	})

	t.Run("streaming rejected", func(t *testing.T) {
		rec := postJSON(handler, "/v1/responses", `{"model": "gpt-4o", "input": "hi", "stream": true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Streaming is not supported")
	})

	t.Run("unknown model", func(t *testing.T) {
		rec := postJSON(handler, "/v1/responses", `{"model": "made-up", "input": "hi"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
