package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatEnvelope(t *testing.T) {
	t.Run("without search", func(t *testing.T) {
		env := ChatEnvelope("Human: hi\n\n", "gpt-4o", nil)

		assert.Equal(t, EnvelopeChat, env.Type)
		assert.Equal(t, "gpt-4o", env.Model)
		require.NotNil(t, env.PromptObject.IsMixed)
		assert.False(t, *env.PromptObject.IsMixed)
		require.NotNil(t, env.PromptObject.WebSearch)
		assert.False(t, *env.PromptObject.WebSearch)
		assert.Zero(t, env.PromptObject.NumOfSite)
		assert.Zero(t, env.PromptObject.MaxWord)
		assert.False(t, env.WantsWebSearch())
	})

	t.Run("with search", func(t *testing.T) {
		env := ChatEnvelope("Human: hi\n\n", "gpt-4o", &WebSearchConfig{Enabled: true, NumOfSite: 2, MaxWord: 800})

		require.NotNil(t, env.PromptObject.WebSearch)
		assert.True(t, *env.PromptObject.WebSearch)
		assert.Equal(t, 2, env.PromptObject.NumOfSite)
		assert.Equal(t, 800, env.PromptObject.MaxWord)
		assert.True(t, env.WantsWebSearch())
	})
}

func TestMediaEnvelope(t *testing.T) {
	env := MediaEnvelope("what is this?", "gpt-4o", []string{"assets/a.png"}, nil)

	assert.Equal(t, EnvelopeChatWithMedia, env.Type)
	assert.Equal(t, "what is this?", env.PromptObject.Prompt)
	assert.Equal(t, []string{"assets/a.png"}, env.PromptObject.ImageList)
	require.NotNil(t, env.PromptObject.IsMixed)
	assert.True(t, *env.PromptObject.IsMixed)
	assert.Nil(t, env.PromptObject.WebSearch)
}

func TestImageEnvelopeDefaults(t *testing.T) {
	env := ImageEnvelope("a red bicycle", "flux-schnell", 0, "")

	assert.Equal(t, EnvelopeImageGenerate, env.Type)
	assert.Equal(t, 1, env.PromptObject.N)
	assert.Equal(t, "1024x1024", env.PromptObject.Size)

	custom := ImageEnvelope("a red bicycle", "dall-e-3", 2, "512x512")
	assert.Equal(t, 2, custom.PromptObject.N)
	assert.Equal(t, "512x512", custom.PromptObject.Size)
}

func TestWithoutWebSearch(t *testing.T) {
	env := ChatEnvelope("Human: hi\n\n", "gpt-4o", &WebSearchConfig{Enabled: true, NumOfSite: 1, MaxWord: 500})

	stripped := env.WithoutWebSearch()

	assert.Nil(t, stripped.PromptObject.WebSearch)
	assert.Zero(t, stripped.PromptObject.NumOfSite)
	assert.Zero(t, stripped.PromptObject.MaxWord)
	assert.Equal(t, env.PromptObject.Prompt, stripped.PromptObject.Prompt)

	// The original is untouched.
	assert.True(t, env.WantsWebSearch())
}

func TestEnvelopeWireShape(t *testing.T) {
	env := ChatEnvelope("Human: hi\n\n", "gpt-4o", nil)

	payload, err := env.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "CHAT_WITH_AI", decoded["type"])
	assert.Equal(t, "gpt-4o", decoded["model"])

	prompt, ok := decoded["promptObject"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Human: hi\n\n", prompt["prompt"])

	// Image generation fields stay absent from chat envelopes.
	assert.NotContains(t, prompt, "n")
	assert.NotContains(t, prompt, "size")
	assert.NotContains(t, prompt, "imageList")
}
