package relay

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FunctionDefinition describes one callable function, OpenAI shape.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Tool wraps a function definition in the modern tools shape.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// ToolChoice holds the caller's tool_choice / function_call directive, which
// may be a mode string or a specific function selector.
type ToolChoice struct {
	Mode     string
	Function string
}

func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		*tc = ToolChoice{Mode: mode}
		return nil
	}

	var selector struct {
		Name     string `json:"name"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}

	if err := json.Unmarshal(data, &selector); err != nil {
		return fmt.Errorf("invalid tool choice: %w", err)
	}

	name := selector.Function.Name
	if name == "" {
		name = selector.Name
	}

	*tc = ToolChoice{Function: name}

	return nil
}

// The downstream API has no native function calling; the relay teaches the
// model the protocol through a system prompt and parses the call blocks back
// out of the completion text.
const functionCallProtocol = `When you need to call a function, respond with a JSON block in this exact format:
<function_call>
{
  "name": "function_name",
  "arguments": "{\"param1\": \"value1\", \"param2\": \"value2\"}"
}
</function_call>

Important:
- The arguments field must be a valid JSON string (properly escaped)
- Only call functions when necessary to answer the user's request
- You can call multiple functions by including multiple <function_call> blocks
- After calling a function, wait for the result before proceeding
`

// FunctionSystemPrompt renders the available functions and the calling
// protocol as a system prompt. Empty when no functions are offered.
func FunctionSystemPrompt(tools []Tool, functions []FunctionDefinition, choice *ToolChoice) string {
	defs := functions
	if len(tools) > 0 {
		defs = make([]FunctionDefinition, 0, len(tools))
		for _, tool := range tools {
			defs = append(defs, tool.Function)
		}
	}

	if len(defs) == 0 {
		return ""
	}

	var b strings.Builder

	b.WriteString("You have access to the following functions:\n\n")

	for _, def := range defs {
		b.WriteString("Function: " + def.Name + "\n")
		if def.Description != "" {
			b.WriteString("Description: " + def.Description + "\n")
		}
		b.WriteString("Parameters: " + string(def.Parameters) + "\n\n")
	}

	b.WriteString(functionCallProtocol)

	if choice != nil {
		switch {
		case choice.Function != "":
			b.WriteString("\nYou MUST call the function \"" + choice.Function + "\" to respond to this request.\n")
		case choice.Mode == "required":
			b.WriteString("\nYou MUST call at least one function to respond to this request.\n")
		case choice.Mode == "none":
			b.WriteString("\nDo NOT call any functions for this request.\n")
		}
	}

	return b.String()
}

// InjectSystemPrompt appends prompt to the existing system message or
// prepends a new one.
func InjectSystemPrompt(messages []Message, prompt string) []Message {
	if prompt == "" {
		return messages
	}

	for i, message := range messages {
		if message.Role != RoleSystem {
			continue
		}

		updated := make([]Message, len(messages))
		copy(updated, messages)

		if !message.Content.IsParts {
			updated[i].Content = TextContent(message.Content.Text + "\n\n" + prompt)
		}

		return updated
	}

	return append([]Message{{Role: RoleSystem, Content: TextContent(prompt)}}, messages...)
}

var functionCallPattern = regexp.MustCompile(`(?s)<function_call>\s*(.*?)\s*</function_call>`)

// ParsedCalls is the result of scanning completion text for call blocks.
type ParsedCalls struct {
	CleanContent string
	ToolCalls    []ToolCall
	FunctionCall *FunctionCall
}

// ParseFunctionCalls extracts <function_call> blocks from completion text.
// Malformed blocks are dropped; the surrounding text is kept either way.
func ParseFunctionCalls(content string) ParsedCalls {
	matches := functionCallPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return ParsedCalls{CleanContent: content}
	}

	clean := strings.TrimSpace(functionCallPattern.ReplaceAllString(content, ""))

	var (
		calls []ToolCall
		first *FunctionCall
	)

	for _, match := range matches {
		var parsed struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}

		if err := json.Unmarshal([]byte(match[1]), &parsed); err != nil || parsed.Name == "" {
			continue
		}

		call := FunctionCall{Name: parsed.Name, Arguments: parsed.Arguments}
		if first == nil {
			c := call
			first = &c
		}

		calls = append(calls, ToolCall{
			ID:       "call_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			Type:     "function",
			Function: call,
		})
	}

	if len(calls) == 0 {
		return ParsedCalls{CleanContent: content}
	}

	return ParsedCalls{CleanContent: clean, ToolCalls: calls, FunctionCall: first}
}

// ApplyFunctionCalls rewrites a completed response with the parsed calls:
// tool_calls plus the legacy function_call mirror, and a tool_calls finish
// reason.
func ApplyFunctionCalls(completion *ChatCompletion, parsed ParsedCalls) {
	if len(parsed.ToolCalls) == 0 || len(completion.Choices) == 0 {
		return
	}

	choice := &completion.Choices[0]
	content := parsed.CleanContent
	choice.Message.Content = &content
	choice.Message.ToolCalls = parsed.ToolCalls
	choice.Message.FunctionCall = parsed.FunctionCall
	choice.FinishReason = "tool_calls"
}
