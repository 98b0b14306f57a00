package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemin-relay/relay/internal/config"
	"github.com/onemin-relay/relay/internal/media"
	"github.com/onemin-relay/relay/internal/onemin"
	"github.com/onemin-relay/relay/internal/ratelimit"
	"github.com/onemin-relay/relay/internal/relay"
	"github.com/onemin-relay/relay/internal/tokens"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// downstreamRecorder captures every envelope a fake 1min.ai endpoint
// receives so tests can assert the wire shape.
type downstreamRecorder struct {
	calls     atomic.Int32
	envelopes []relay.Envelope
}

func (d *downstreamRecorder) last(t *testing.T) relay.Envelope {
	t.Helper()
	require.NotEmpty(t, d.envelopes)

	return d.envelopes[len(d.envelopes)-1]
}

func newDownstream(t *testing.T, result string) (*httptest.Server, *downstreamRecorder) {
	t.Helper()

	rec := &downstreamRecorder{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls.Add(1)

		var envelope relay.Envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		rec.envelopes = append(rec.envelopes, envelope)

		_, _ = w.Write([]byte(`{"aiRecord":{"aiRecordDetail":{"resultObject":[` + result + `]}}}`))
	}))

	t.Cleanup(server.Close)

	return server, rec
}

func newChatHandler(t *testing.T, downstreamURL, assetURL string, limiter *ratelimit.Limiter) *ChatHandler {
	t.Helper()

	logger := testLogger()
	cfgMgr := config.NewManager(t.TempDir())

	if limiter == nil {
		limiter = ratelimit.NewLimiter(nil, ratelimit.ChatConfig(), logger)
	}

	return NewChatHandler(
		cfgMgr,
		onemin.NewClient(downstreamURL, downstreamURL, logger),
		media.NewRelay(assetURL, logger),
		tokens.NewEstimator(logger),
		limiter,
		logger,
	)
}

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	handler.ServeHTTP(rec, req)

	return rec
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()

	var envelope struct {
		Error struct {
			Code *string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))

	if envelope.Error.Code == nil {
		return ""
	}

	return *envelope.Error.Code
}

func TestChatCompletion(t *testing.T) {
	server, downstream := newDownstream(t, `"Hello there!"`)
	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "mistral-nemo",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "hi"}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var completion relay.ChatCompletion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completion))

	assert.Equal(t, "chat.completion", completion.Object)
	assert.Equal(t, "mistral-nemo", completion.Model)
	require.Len(t, completion.Choices, 1)
	assert.Equal(t, "Hello there!", *completion.Choices[0].Message.Content)
	assert.Equal(t, "stop", completion.Choices[0].FinishReason)
	assert.Positive(t, completion.Usage.PromptTokens)
	assert.Positive(t, completion.Usage.CompletionTokens)
	assert.Equal(t, completion.Usage.PromptTokens+completion.Usage.CompletionTokens, completion.Usage.TotalTokens)

	envelope := downstream.last(t)
	assert.Equal(t, relay.EnvelopeChat, envelope.Type)
	assert.Equal(t, "mistral-nemo", envelope.Model)
	assert.Contains(t, envelope.PromptObject.Prompt, "System: be brief")
	assert.Contains(t, envelope.PromptObject.Prompt, "Human: hi")
}

func TestChatUnknownModel(t *testing.T) {
	server, downstream := newDownstream(t, `"unused"`)
	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "made-up-model",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "model_not_found", errorCode(t, rec.Body.Bytes()))
	assert.Zero(t, downstream.calls.Load())
}

func TestChatInvalidModelFormat(t *testing.T) {
	server, _ := newDownstream(t, `"unused"`)
	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "gpt-4o:online:extra",
		"messages": [{"role": "user", "content": "hi"}]
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "model_not_found", errorCode(t, rec.Body.Bytes()))
}

func TestChatImageOnNonVisionModel(t *testing.T) {
	server, downstream := newDownstream(t, `"unused"`)
	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "gpt-3.5-turbo",
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "what is this?"},
			{"type": "image_url", "image_url": {"url": "https://example.com/a.png"}}
		]}]
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "model_not_supported", errorCode(t, rec.Body.Bytes()))

	// Nothing may leave the process for an unsupported combination.
	assert.Zero(t, downstream.calls.Load())
}

func TestChatWebSearchForwarded(t *testing.T) {
	server, downstream := newDownstream(t, `"searched"`)
	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "mistral-nemo:online",
		"messages": [{"role": "user", "content": "latest news"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	envelope := downstream.last(t)
	assert.Equal(t, "mistral-nemo", envelope.Model)
	require.NotNil(t, envelope.PromptObject.WebSearch)
	assert.True(t, *envelope.PromptObject.WebSearch)
	assert.Equal(t, 1, envelope.PromptObject.NumOfSite)
	assert.Equal(t, 500, envelope.PromptObject.MaxWord)
}

func TestChatWebSearchDegradedHeader(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_, _ = w.Write([]byte(`{"aiRecord":{"aiRecordDetail":{"resultObject":["fallback answer"]}}}`))
	}))
	defer server.Close()

	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "mistral-nemo:online",
		"messages": [{"role": "user", "content": "latest news"}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-WebSearch-Degraded"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatValidation(t *testing.T) {
	server, _ := newDownstream(t, `"unused"`)
	handler := newChatHandler(t, server.URL, "", nil)

	t.Run("invalid json", func(t *testing.T) {
		rec := postJSON(handler, "/v1/chat/completions", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing messages", func(t *testing.T) {
		rec := postJSON(handler, "/v1/chat/completions", `{"model": "gpt-4o"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Messages field is required")
	})

	t.Run("image part without url", func(t *testing.T) {
		rec := postJSON(handler, "/v1/chat/completions", `{
			"model": "gpt-4o",
			"messages": [{"role": "user", "content": [{"type": "image_url"}]}]
		}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestChatRateLimited(t *testing.T) {
	server, _ := newDownstream(t, `"ok"`)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Close)

	limiter := ratelimit.NewLimiter(store, ratelimit.Config{Window: time.Minute, MaxRequests: 1}, testLogger())
	handler := newChatHandler(t, server.URL, "", limiter)

	body := `{"model": "gpt-4o", "messages": [{"role": "user", "content": "hi"}]}`

	first := postJSON(handler, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(handler, "/v1/chat/completions", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", errorCode(t, second.Body.Bytes()))
}

func TestChatWithImages(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake image bytes"))
	}))
	defer imageServer.Close()

	assetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fileContent":{"path":"assets/up.png"}}`))
	}))
	defer assetServer.Close()

	server, downstream := newDownstream(t, `"I see a cat"`)
	handler := newChatHandler(t, server.URL, assetServer.URL, nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "gpt-4o",
		"messages": [
			{"role": "user", "content": "hello"},
			{"role": "user", "content": [
				{"type": "text", "text": "what is in this picture?"},
				{"type": "image_url", "image_url": {"url": "`+imageServer.URL+`/cat.png"}}
			]}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	envelope := downstream.last(t)
	assert.Equal(t, relay.EnvelopeChatWithMedia, envelope.Type)
	assert.Equal(t, []string{"assets/up.png"}, envelope.PromptObject.ImageList)
	require.NotNil(t, envelope.PromptObject.IsMixed)
	assert.True(t, *envelope.PromptObject.IsMixed)

	// Media prompts narrow to the latest message's text.
	assert.Equal(t, "what is in this picture?", envelope.PromptObject.Prompt)
}

func TestChatFallsBackWhenUploadFails(t *testing.T) {
	assetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer assetServer.Close()

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake image bytes"))
	}))
	defer imageServer.Close()

	server, downstream := newDownstream(t, `"text only answer"`)
	handler := newChatHandler(t, server.URL, assetServer.URL, nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "describe"},
			{"type": "image_url", "image_url": {"url": "`+imageServer.URL+`/cat.png"}}
		]}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	// Failed uploads degrade to a plain text-only chat.
	envelope := downstream.last(t)
	assert.Equal(t, relay.EnvelopeChat, envelope.Type)
	assert.Empty(t, envelope.PromptObject.ImageList)
}

func TestChatFunctionCalling(t *testing.T) {
	server, downstream := newDownstream(t,
		`"<function_call>{\"name\":\"get_weather\",\"arguments\":\"{\\\"city\\\":\\\"Oslo\\\"}\"}</function_call>"`)
	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "gpt-4",
		"messages": [{"role": "user", "content": "weather in Oslo?"}],
		"tools": [{"type": "function", "function": {
			"name": "get_weather",
			"description": "Get the current weather",
			"parameters": {"type": "object", "properties": {"city": {"type": "string"}}}
		}}]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	// The downstream prompt teaches the calling protocol.
	envelope := downstream.last(t)
	assert.Contains(t, envelope.PromptObject.Prompt, "get_weather")
	assert.Contains(t, envelope.PromptObject.Prompt, "<function_call>")

	var completion relay.ChatCompletion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completion))

	choice := completion.Choices[0]
	assert.Equal(t, "tool_calls", choice.FinishReason)
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, "get_weather", choice.Message.ToolCalls[0].Function.Name)
	require.NotNil(t, choice.Message.FunctionCall)
}

func TestChatStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("streamed answer"))
	}))
	defer server.Close()

	handler := newChatHandler(t, server.URL, "", nil)

	rec := postJSON(handler, "/v1/chat/completions", `{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": "hi"}],
		"stream": true
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	raw := rec.Body.String()
	assert.Contains(t, raw, "chat.completion.chunk")
	assert.Contains(t, raw, "streamed answer")
	assert.True(t, strings.HasSuffix(raw, "data: [DONE]\n\n"))

	// The terminal chunk carries usage.
	assert.Contains(t, raw, "total_tokens")
}
