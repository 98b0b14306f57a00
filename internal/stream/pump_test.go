package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onemin-relay/relay/internal/relay"
)

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closableBuffer) Close() error {
	b.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseEvents(t *testing.T, raw string) []relay.ChatCompletionChunk {
	t.Helper()

	var chunks []relay.ChatCompletionChunk

	for _, line := range strings.Split(raw, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok || payload == "[DONE]" {
			continue
		}

		var chunk relay.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))

		chunks = append(chunks, chunk)
	}

	return chunks
}

func TestPump(t *testing.T) {
	body := io.NopCloser(strings.NewReader("hello world"))
	out := &closableBuffer{}

	usage := func(completion string) *relay.Usage {
		assert.Equal(t, "hello world", completion)

		u := relay.NewUsage(2, 3)
		return &u
	}

	Pump(out, body, "gpt-4o", usage, testLogger())

	raw := out.String()
	assert.True(t, strings.HasSuffix(raw, "data: [DONE]\n\n"))
	assert.True(t, out.closed)

	chunks := parseEvents(t, raw)
	require.NotEmpty(t, chunks)

	var text strings.Builder
	for _, chunk := range chunks[:len(chunks)-1] {
		require.Len(t, chunk.Choices, 1)
		text.WriteString(chunk.Choices[0].Delta.Content)
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		assert.Equal(t, "gpt-4o", chunk.Model)
	}

	assert.Equal(t, "hello world", text.String())

	last := chunks[len(chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 5, last.Usage.TotalTokens)
}

func TestPumpClosesWriterOnConsumerGone(t *testing.T) {
	pr, pw := io.Pipe()
	pr.Close()

	body := io.NopCloser(strings.NewReader("content that will never arrive"))

	// Must return instead of hanging once the write end fails.
	Pump(pw, body, "gpt-4o", nil, testLogger())
}

func TestPumpEmptyBody(t *testing.T) {
	out := &closableBuffer{}

	Pump(out, io.NopCloser(strings.NewReader("")), "gpt-4o", nil, testLogger())

	raw := out.String()
	chunks := parseEvents(t, raw)

	// Just the stop chunk and the sentinel.
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].Usage)
	assert.Contains(t, raw, "data: [DONE]")
}
