// Package relay implements the format translation core: model name parsing,
// message normalization, downstream envelope construction and response
// reshaping between the OpenAI-compatible surface and the 1min.ai API.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role and part type constants for the inbound message shape.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"

	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageRef is the image part payload.
type ImageRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one element of a mixed-content message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// Content is the polymorphic message content: either a plain string or an
// ordered list of typed parts. Consumers switch on IsParts rather than
// sniffing the decoded JSON.
type Content struct {
	Text    string
	Parts   []ContentPart
	IsParts bool
}

func TextContent(s string) Content {
	return Content{Text: s}
}

func PartsContent(parts []ContentPart) Content {
	return Content{Parts: parts, IsParts: true}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{Text: s}
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of content parts: %w", err)
	}

	*c = Content{Parts: parts, IsParts: true}

	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		return json.Marshal(c.Parts)
	}

	return json.Marshal(c.Text)
}

// FunctionCall is the legacy single-function call shape.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one inbound conversation turn.
type Message struct {
	Role         string        `json:"role"`
	Content      Content       `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// PlainText flattens the content to text. Mixed content joins the text parts
// in order, newline separated; image parts contribute nothing.
func (c Content) PlainText() string {
	if !c.IsParts {
		return c.Text
	}

	var parts []string

	for _, part := range c.Parts {
		if part.Type == PartTypeText && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}

	return strings.Join(parts, "\n")
}

// ImageURLs returns the image references of the content in order.
func (c Content) ImageURLs() []string {
	if !c.IsParts {
		return nil
	}

	var urls []string

	for _, part := range c.Parts {
		if part.Type == PartTypeImageURL && part.ImageURL != nil && part.ImageURL.URL != "" {
			urls = append(urls, part.ImageURL.URL)
		}
	}

	return urls
}

// Validate rejects image parts without a resolvable reference. Silent drops
// would change the meaning of the conversation.
func (c Content) Validate() error {
	if !c.IsParts {
		return nil
	}

	for _, part := range c.Parts {
		if part.Type == PartTypeImageURL && (part.ImageURL == nil || part.ImageURL.URL == "") {
			return fmt.Errorf("image_url content part is missing a url")
		}
	}

	return nil
}

// Transcript renders the conversation as the role-prefixed flat string the
// 1min.ai API expects. Order is preserved; each turn ends with a blank line.
func Transcript(messages []Message) string {
	var b strings.Builder

	for _, message := range messages {
		text := message.Content.PlainText()

		switch message.Role {
		case RoleSystem:
			b.WriteString("System: " + text + "\n\n")
		case RoleUser:
			b.WriteString("Human: " + text + "\n\n")
		case RoleAssistant:
			b.WriteString("Assistant: " + text + "\n\n")
		}
	}

	return b.String()
}

// HasImages reports whether any message carries an image part.
func HasImages(messages []Message) bool {
	for _, message := range messages {
		if len(message.Content.ImageURLs()) > 0 {
			return true
		}
	}

	return false
}

// LatestImageURLs returns the image references of the most recent message
// only. Earlier-message images are intentionally not reprocessed; one inbound
// image set per request.
func LatestImageURLs(messages []Message) []string {
	if len(messages) == 0 {
		return nil
	}

	return messages[len(messages)-1].Content.ImageURLs()
}

// LatestText returns the flattened text of the most recent message.
func LatestText(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	return messages[len(messages)-1].Content.PlainText()
}

// ValidateMessages applies per-message content validation.
func ValidateMessages(messages []Message) error {
	for i, message := range messages {
		if err := message.Content.Validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}

	return nil
}
