package openaichat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// ToolChoiceMode controls whether the gateway pins a tool when the client sends tools
// without a tool_choice.
type ToolChoiceMode string

const (
	// ToolChoiceModeAuto pins the default tool, or the first tool when the default is
	// not offered.
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	// ToolChoiceModeNone never injects a tool_choice.
	ToolChoiceModeNone ToolChoiceMode = "none"
)

// ParseToolChoiceMode validates a configured mode. Empty selects auto.
func ParseToolChoiceMode(s string) (ToolChoiceMode, error) {
	switch m := ToolChoiceMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ToolChoiceModeAuto, ToolChoiceModeNone:
		return m, nil
	case "":
		return ToolChoiceModeAuto, nil
	default:
		return "", fmt.Errorf("unsupported tool choice mode %q (expected: auto, none)", s)
	}
}

// ToolChoicePolicy decides the tool_choice of requests whose client did not set one.
type ToolChoicePolicy struct {
	Mode ToolChoiceMode
	// DefaultTool is preferred when the client offers a tool of that name.
	DefaultTool string
}

var emptyToolSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// fromTools wraps Claude tool definitions in Chat Completions function envelopes. The
// input schema is forwarded unchanged.
func fromTools(tools []types.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		schema := tool.InputSchema
		if len(bytes.TrimSpace(schema)) == 0 || bytes.Equal(bytes.TrimSpace(schema), []byte("null")) {
			schema = emptyToolSchema
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

// resolveToolChoice returns the tool_choice to send, or nil to omit it.
//
// An explicit client choice always wins: any and auto map to "auto" (Chat Completions has
// no "must use some tool" mode that every backend honours), none maps to "none" and a
// named tool to a function choice. Without a client choice, auto mode pins
// policy.DefaultTool when offered and the first tool otherwise.
func resolveToolChoice(tools []types.Tool, choice *types.ToolChoice, policy ToolChoicePolicy) (any, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	if choice != nil {
		switch choice.Type {
		case types.ToolChoiceAuto, types.ToolChoiceAny:
			return "auto", nil
		case types.ToolChoiceNone:
			return "none", nil
		case types.ToolChoiceTool:
			if choice.Name == "" {
				return nil, &ConversionError{Field: "tool_choice.name", Reason: "required for tool_choice type tool"}
			}
			return namedToolChoice(choice.Name), nil
		default:
			return nil, &ConversionError{
				Field:  "tool_choice.type",
				Reason: fmt.Sprintf("unsupported tool_choice type %q", choice.Type),
			}
		}
	}

	if policy.Mode == ToolChoiceModeNone {
		return nil, nil
	}

	name := tools[0].Name
	if policy.DefaultTool != "" && slices.ContainsFunc(tools, func(t types.Tool) bool {
		return t.Name == policy.DefaultTool
	}) {
		name = policy.DefaultTool
	}
	return namedToolChoice(name), nil
}

func namedToolChoice(name string) openai.ToolChoice {
	return openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: name},
	}
}

// fromToolUseBlock converts an assistant tool invocation into an OpenAI tool call.
func fromToolUseBlock(block *types.ToolUseBlock) (openai.ToolCall, error) {
	arguments, err := toolArguments(block.Input)
	if err != nil {
		return openai.ToolCall{}, err
	}

	// OpenAI requires tool_call_id to pair tool results with calls.
	id := block.ID
	if id == "" {
		id = newToolCallID()
	}

	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      block.Name,
			Arguments: arguments,
		},
	}, nil
}

// toToolUseBlock converts a completed OpenAI tool call into a tool_use block. Arguments
// must decode to a JSON object; an empty string stands for no arguments.
func toToolUseBlock(call openai.ToolCall) (types.ContentBlock, error) {
	input, err := parseToolArguments(call.Function.Arguments)
	if err != nil {
		return types.ContentBlock{}, err
	}

	id := call.ID
	if id == "" {
		id = newToolUseID()
	}
	return types.NewToolUseBlock(id, call.Function.Name, input), nil
}

func parseToolArguments(arguments string) (json.RawMessage, error) {
	if strings.TrimSpace(arguments) == "" {
		return json.RawMessage("{}"), nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arguments), &object); err != nil {
		return nil, &ConversionError{Reason: "tool call arguments are not a JSON object", Err: err}
	}
	if object == nil {
		return nil, &ConversionError{Reason: "tool call arguments are not a JSON object"}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(arguments)); err != nil {
		return nil, &ConversionError{Reason: "tool call arguments are not valid JSON", Err: err}
	}
	return buf.Bytes(), nil
}

// newToolCallID generates an OpenAI-style tool call ID (format: call_<8-char-uuid>).
func newToolCallID() string {
	return fmt.Sprintf("call_%s", uuid.New().String()[:8])
}

// newToolUseID generates a Claude-style tool use ID (format: toolu_<32-hex-chars>).
func newToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
