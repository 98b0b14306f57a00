package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Placeholder returned when the downstream response carries no extractable
// text anywhere we know to look.
const noResponseText = "No response generated"

// DownstreamResponse mirrors the 1min.ai completion envelope. Only the
// fields the relay reads are declared.
type DownstreamResponse struct {
	AIRecord *struct {
		TemporaryURL   string `json:"temporaryUrl,omitempty"`
		AIRecordDetail struct {
			ResultObject []string `json:"resultObject"`
		} `json:"aiRecordDetail"`
	} `json:"aiRecord"`
	Content string `json:"content,omitempty"`
}

// ResultText extracts the completion text: first element of the nested
// result array, then the flat content field, then a fixed placeholder.
// Missing text is never an error at this layer.
func (r *DownstreamResponse) ResultText() string {
	if r.AIRecord != nil && len(r.AIRecord.AIRecordDetail.ResultObject) > 0 {
		if text := r.AIRecord.AIRecordDetail.ResultObject[0]; text != "" {
			return text
		}
	}

	if r.Content != "" {
		return r.Content
	}

	return noResponseText
}

// ResultList returns the full result array, used by image generation where
// each element is an image URL.
func (r *DownstreamResponse) ResultList() []string {
	if r.AIRecord == nil {
		return nil
	}

	return r.AIRecord.AIRecordDetail.ResultObject
}

// Usage is the OpenAI-shaped token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewUsage(promptTokens, completionTokens int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// ToolCall is the modern function-call shape on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// AssistantMessage is the message block of a completed choice.
type AssistantMessage struct {
	Role         string        `json:"role"`
	Content      *string       `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// ChatCompletion is the upstream-shaped non-streaming response.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// NewChatCompletion wraps completion text in the upstream response shape
// with a fresh identifier and the caller's requested model name.
func NewChatCompletion(model, content string, usage Usage) *ChatCompletion {
	text := content

	return &ChatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      AssistantMessage{Role: RoleAssistant, Content: &text},
			FinishReason: "stop",
		}},
		Usage: usage,
	}
}

// DeltaMessage is the incremental message block of a streaming chunk.
type DeltaMessage struct {
	Role         string        `json:"role,omitempty"`
	Content      string        `json:"content,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

type ChunkChoice struct {
	Index        int          `json:"index"`
	Delta        DeltaMessage `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// ChatCompletionChunk is one upstream-shaped streaming event.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// NewContentChunk wraps a decoded text fragment in a delta event.
func NewContentChunk(model, content string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: DeltaMessage{Content: content}}},
	}
}

// NewStopChunk builds the terminal chunk carrying the stop reason and, when
// known, the usage block.
func NewStopChunk(model string, usage *Usage) *ChatCompletionChunk {
	stop := "stop"

	return &ChatCompletionChunk{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: DeltaMessage{}, FinishReason: &stop}},
		Usage:   usage,
	}
}

// ImageData is one generated image reference.
type ImageData struct {
	URL string `json:"url"`
}

// ImagesResponse is the upstream-shaped image generation response.
type ImagesResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

func NewImagesResponse(urls []string) *ImagesResponse {
	data := make([]ImageData, 0, len(urls))
	for _, url := range urls {
		data = append(data, ImageData{URL: url})
	}

	return &ImagesResponse{Created: time.Now().Unix(), Data: data}
}

// StructuredResponse is the /v1/responses result shape.
type StructuredResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// NewStructuredResponse wraps completion text in the responses-API shape. If
// the caller asked for JSON output the content is re-validated as JSON and
// kept verbatim when it parses.
func NewStructuredResponse(model, content string, usage Usage) *StructuredResponse {
	text := content

	return &StructuredResponse{
		ID:      "resp-" + uuid.NewString(),
		Object:  "response",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      AssistantMessage{Role: RoleAssistant, Content: &text},
			FinishReason: "stop",
		}},
		Usage: usage,
	}
}

// NormalizeJSONContent re-parses content expected to be JSON and returns a
// compact rendering when it is valid, or the original text when it is not.
func NormalizeJSONContent(content string) string {
	var value any
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return content
	}

	compact, err := json.Marshal(value)
	if err != nil {
		return content
	}

	return string(compact)
}
