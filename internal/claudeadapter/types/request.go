package types

import "encoding/json"

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model         string          `json:"model" validate:"required"`
	Messages      []MessageParam  `json:"messages" validate:"required,min=1,dive"`
	System        ContentBlocks   `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens" validate:"required,gt=0"`
	Stream        bool            `json:"stream,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0"`
	TopP          *float64        `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	TopK          *int            `json:"top_k,omitempty" validate:"omitempty,gte=0"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Tools         []Tool          `json:"tools,omitempty" validate:"omitempty,unique=Name,dive"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
}

// CountTokensRequest is the body of POST /v1/messages/count_tokens.
type CountTokensRequest struct {
	Model      string          `json:"model" validate:"required"`
	Messages   []MessageParam  `json:"messages" validate:"required,min=1,dive"`
	System     ContentBlocks   `json:"system,omitempty"`
	Tools      []Tool          `json:"tools,omitempty" validate:"omitempty,dive"`
	ToolChoice *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking   *ThinkingConfig `json:"thinking,omitempty"`
}

// MessageParam is one conversation turn.
type MessageParam struct {
	Role    Role          `json:"role" validate:"required,oneof=user assistant"`
	Content ContentBlocks `json:"content"`
}

// Tool is a client-defined tool.
type Tool struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolChoiceType selects how the model may use tools.
type ToolChoiceType string

const (
	ToolChoiceAuto ToolChoiceType = "auto"
	ToolChoiceAny  ToolChoiceType = "any"
	ToolChoiceTool ToolChoiceType = "tool"
	ToolChoiceNone ToolChoiceType = "none"
)

// ToolChoice is the client's tool-use directive.
type ToolChoice struct {
	Type                   ToolChoiceType `json:"type"`
	Name                   string         `json:"name,omitempty"`
	DisableParallelToolUse *bool          `json:"disable_parallel_tool_use,omitempty"`
}

// ThinkingConfig enables extended thinking.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Enabled reports whether extended thinking was requested.
func (t *ThinkingConfig) Enabled() bool {
	return t != nil && t.Type == "enabled"
}
