package openaichat

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// toMessage converts a non-streaming Chat Completions response into a Claude message.
// Content order is thinking, text, then tool calls. The model echoes the client's
// requested name rather than the backend model.
func toMessage(ctx context.Context, resp *backend.Response, requestedModel string) (*types.Message, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &ConversionError{Field: "choices", Reason: "backend response contains no choices", Upstream: true}
	}

	choice := resp.Choices[0]

	id := resp.ID
	if id == "" {
		id = newMessageID()
	}
	msg := types.NewMessage(id, requestedModel)

	if reasoning := choice.Message.ReasoningContent; reasoning != "" {
		msg.Content = append(msg.Content, types.NewThinkingBlock(reasoning, ""))
	}

	if text := choice.Message.Content; text != "" {
		msg.Content = append(msg.Content, types.NewTextBlock(text))
	}

	for i, call := range choice.Message.ToolCalls {
		block, err := toToolUseBlock(call)
		if err != nil {
			return nil, fromUpstream(withField(err, fmt.Sprintf("choices[0].message.tool_calls[%d].function.arguments", i)))
		}
		msg.Content = append(msg.Content, block)
	}

	// Claude clients expect at least one content block.
	if len(msg.Content) == 0 {
		msg.Content = append(msg.Content, types.NewTextBlock(""))
	}

	msg.StopReason = toStopReason(ctx, choice.FinishReason)
	msg.Usage = toUsage(&resp.Usage)

	return msg, nil
}

// toStopReason maps OpenAI finish reasons to Claude stop reasons.
//
// Stop sequence transformation: OpenAI reports matched stop sequences as "stop" without
// naming them, so they surface as end_turn.
func toStopReason(ctx context.Context, reason openai.FinishReason) types.StopReason {
	switch reason {
	case openai.FinishReasonStop, openai.FinishReasonNull, "":
		return types.StopReasonEndTurn
	case openai.FinishReasonLength:
		return types.StopReasonMaxTokens
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return types.StopReasonToolUse
	default:
		// content_filter and provider-specific reasons have no Claude counterpart.
		slog.WarnContext(ctx, "unknown finish reason, reporting end_turn",
			slog.String("finish_reason", string(reason)),
		)
		return types.StopReasonEndTurn
	}
}

// newMessageID generates a Claude-compatible message ID (msg_<token>).
// Used as fallback when the backend doesn't provide an ID in the response.
func newMessageID() string {
	b := make([]byte, 18) // 18 bytes yields 24 URL-safe base64 characters
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	// Use RawURLEncoding to avoid '+', '/' and trailing '='
	return "msg_" + base64.RawURLEncoding.EncodeToString(b)
}
