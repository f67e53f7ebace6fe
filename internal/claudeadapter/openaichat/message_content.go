package openaichat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// emptyToolResult stands in for tool results without content; Chat Completions rejects
// tool messages with empty content.
const emptyToolResult = "No content provided"

// fromUserTurn converts a user turn. Tool results become tool-role messages that precede
// the remaining user content, so they directly follow the assistant's tool calls.
func fromUserTurn(blocks types.ContentBlocks) ([]openai.ChatCompletionMessage, error) {
	var (
		toolMessages []openai.ChatCompletionMessage
		parts        []openai.ChatMessagePart
	)

	for i, block := range blocks {
		switch block.Type() {
		case types.BlockTypeText:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: block.OfText.Text,
			})

		case types.BlockTypeImage:
			part, err := fromImageBlock(block.OfImage)
			if err != nil {
				return nil, withField(err, fmt.Sprintf("content[%d]", i))
			}
			parts = append(parts, part)

		case types.BlockTypeToolResult:
			result := block.OfToolResult
			content, err := fromToolResultContent(result.Content)
			if err != nil {
				return nil, withField(err, fmt.Sprintf("content[%d]", i))
			}
			toolMessages = append(toolMessages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: result.ToolUseID,
				Content:    content,
			})

		case types.BlockTypeThinking, types.BlockTypeRedactedThinking:
			// Thinking transformation: Chat Completions has no input representation for
			// reasoning, so prior thinking is dropped from the history.

		default:
			return nil, &ConversionError{
				Field:  fmt.Sprintf("content[%d]", i),
				Reason: fmt.Sprintf("content block type %q not supported in user messages", block.Type()),
			}
		}
	}

	messages := toolMessages
	if len(parts) > 0 {
		messages = append(messages, newUserMessage(parts))
	}
	return messages, nil
}

// newUserMessage uses the plain string form for a single text part and content parts
// otherwise.
func newUserMessage(parts []openai.ChatMessagePart) openai.ChatCompletionMessage {
	if len(parts) == 1 && parts[0].Type == openai.ChatMessagePartTypeText {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: parts[0].Text,
		}
	}
	return openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

// fromAssistantTurn converts an assistant turn into a single message carrying the joined
// text and the tool calls.
func fromAssistantTurn(blocks types.ContentBlocks) ([]openai.ChatCompletionMessage, error) {
	var (
		texts     []string
		toolCalls []openai.ToolCall
	)

	for i, block := range blocks {
		switch block.Type() {
		case types.BlockTypeText:
			if block.OfText.Text != "" {
				texts = append(texts, block.OfText.Text)
			}

		case types.BlockTypeToolUse:
			call, err := fromToolUseBlock(block.OfToolUse)
			if err != nil {
				return nil, withField(err, fmt.Sprintf("content[%d]", i))
			}
			toolCalls = append(toolCalls, call)

		case types.BlockTypeThinking, types.BlockTypeRedactedThinking:
			// Dropped, see fromUserTurn.

		default:
			return nil, &ConversionError{
				Field:  fmt.Sprintf("content[%d]", i),
				Reason: fmt.Sprintf("content block type %q not supported in assistant messages", block.Type()),
			}
		}
	}

	if len(texts) == 0 && len(toolCalls) == 0 {
		return nil, nil
	}

	return []openai.ChatCompletionMessage{{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   strings.Join(texts, "\n"),
		ToolCalls: toolCalls,
	}}, nil
}

// fromImageBlock converts base64 images into data URLs and passes URL images through.
func fromImageBlock(image *types.ImageBlock) (openai.ChatMessagePart, error) {
	var url string
	switch image.Source.Type {
	case "base64":
		if image.Source.MediaType == "" || image.Source.Data == "" {
			return openai.ChatMessagePart{}, &ConversionError{Reason: "base64 image requires media_type and data"}
		}
		url = fmt.Sprintf("data:%s;base64,%s", image.Source.MediaType, image.Source.Data)
	case "url":
		if image.Source.URL == "" {
			return openai.ChatMessagePart{}, &ConversionError{Reason: "url image requires a url"}
		}
		url = image.Source.URL
	default:
		return openai.ChatMessagePart{}, &ConversionError{
			Reason: fmt.Sprintf("image source type %q not supported", image.Source.Type),
		}
	}

	return openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: url},
	}, nil
}

// fromToolResultContent flattens tool result content into the string Chat Completions
// expects. Non-text blocks are embedded as their JSON encoding.
func fromToolResultContent(content types.ContentBlocks) (string, error) {
	parts := make([]string, 0, len(content))
	for i, block := range content {
		if block.Type() == types.BlockTypeText {
			parts = append(parts, block.OfText.Text)
			continue
		}
		encoded, err := json.Marshal(block)
		if err != nil {
			return "", &ConversionError{
				Field:  fmt.Sprintf("content[%d]", i),
				Reason: fmt.Sprintf("content block type %q not supported in tool results", block.Type()),
				Err:    err,
			}
		}
		parts = append(parts, string(encoded))
	}

	text := strings.Join(parts, "\n")
	if text == "" {
		return emptyToolResult, nil
	}
	return text, nil
}

// toolArguments serializes a tool_use input into the compact JSON string OpenAI expects.
func toolArguments(input json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}", nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", &ConversionError{Reason: "tool_use input is not valid JSON", Err: err}
	}
	return buf.String(), nil
}
