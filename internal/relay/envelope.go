package relay

import "encoding/json"

// EnvelopeType tags the downstream request shape.
type EnvelopeType string

const (
	EnvelopeChat          EnvelopeType = "CHAT_WITH_AI"
	EnvelopeChatWithMedia EnvelopeType = "CHAT_WITH_MEDIA"
	EnvelopeImageGenerate EnvelopeType = "IMAGE_GENERATE"
)

// PromptObject is the mode-specific payload inside a downstream envelope.
// Field presence follows the downstream API: chat envelopes always carry
// isMixed, search limits appear only when search is requested, and image
// generation uses n/size instead.
type PromptObject struct {
	Prompt    string   `json:"prompt"`
	IsMixed   *bool    `json:"isMixed,omitempty"`
	ImageList []string `json:"imageList,omitempty"`
	WebSearch *bool    `json:"webSearch,omitempty"`
	NumOfSite int      `json:"numOfSite,omitempty"`
	MaxWord   int      `json:"maxWord,omitempty"`
	N         int      `json:"n,omitempty"`
	Size      string   `json:"size,omitempty"`
}

// Envelope is the fully-built downstream request body. It is constructed
// once per inbound request and not mutated afterwards.
type Envelope struct {
	Type         EnvelopeType `json:"type"`
	Model        string       `json:"model"`
	PromptObject PromptObject `json:"promptObject"`
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// WantsWebSearch reports whether the envelope asked for web search; the
// gateway uses this to decide degradation eligibility.
func (e *Envelope) WantsWebSearch() bool {
	return e.PromptObject.WebSearch != nil && *e.PromptObject.WebSearch
}

// WithoutWebSearch returns a copy with the search fields stripped, used for
// the gateway's degraded retry.
func (e *Envelope) WithoutWebSearch() *Envelope {
	degraded := *e
	degraded.PromptObject.WebSearch = nil
	degraded.PromptObject.NumOfSite = 0
	degraded.PromptObject.MaxWord = 0

	return &degraded
}

// ChatEnvelope builds the text-only chat envelope from the full transcript.
func ChatEnvelope(transcript, model string, search *WebSearchConfig) *Envelope {
	enabled := search != nil && search.Enabled

	prompt := PromptObject{
		Prompt:    transcript,
		IsMixed:   boolPtr(false),
		WebSearch: boolPtr(enabled),
	}

	if enabled {
		prompt.NumOfSite = search.NumOfSite
		prompt.MaxWord = search.MaxWord
	}

	return &Envelope{Type: EnvelopeChat, Model: model, PromptObject: prompt}
}

// MediaEnvelope builds the image-augmented chat envelope. The prompt narrows
// to the latest message's text; the earlier transcript is not resent
// alongside images.
func MediaEnvelope(latestText, model string, imagePaths []string, search *WebSearchConfig) *Envelope {
	prompt := PromptObject{
		Prompt:    latestText,
		IsMixed:   boolPtr(true),
		ImageList: imagePaths,
	}

	if search != nil && search.Enabled {
		prompt.WebSearch = boolPtr(true)
		prompt.NumOfSite = search.NumOfSite
		prompt.MaxWord = search.MaxWord
	}

	return &Envelope{Type: EnvelopeChatWithMedia, Model: model, PromptObject: prompt}
}

// ImageEnvelope builds the image-generation envelope.
func ImageEnvelope(prompt, model string, n int, size string) *Envelope {
	if n <= 0 {
		n = 1
	}

	if size == "" {
		size = "1024x1024"
	}

	return &Envelope{
		Type:  EnvelopeImageGenerate,
		Model: model,
		PromptObject: PromptObject{
			Prompt: prompt,
			N:      n,
			Size:   size,
		},
	}
}

func boolPtr(b bool) *bool { return &b }
