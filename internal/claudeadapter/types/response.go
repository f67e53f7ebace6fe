package types

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
)

// StopReason explains why the model stopped. The zero value encodes as JSON null.
type StopReason string

const (
	StopReasonEndTurn      = StopReason(anthropic.StopReasonEndTurn)
	StopReasonMaxTokens    = StopReason(anthropic.StopReasonMaxTokens)
	StopReasonStopSequence = StopReason(anthropic.StopReasonStopSequence)
	StopReasonToolUse      = StopReason(anthropic.StopReasonToolUse)
)

// MarshalJSON encodes an unset stop reason as null.
func (r StopReason) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// Message is the response of POST /v1/messages and the payload of message_start.
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         Role           `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   StopReason     `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// Usage reports token consumption.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

// NewMessage returns an assistant message skeleton.
func NewMessage(id, model string) *Message {
	return &Message{
		ID:      id,
		Type:    "message",
		Role:    RoleAssistant,
		Model:   model,
		Content: []ContentBlock{},
	}
}

// TokenCount is the response of POST /v1/messages/count_tokens.
type TokenCount struct {
	InputTokens int `json:"input_tokens"`
}
