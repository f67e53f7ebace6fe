package openaichat

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// ModelResolver maps a client-facing Claude model name onto a backend model.
type ModelResolver interface {
	Resolve(model string) string
}

// requestConfig carries the per-deployment settings the converter depends on.
type requestConfig struct {
	variant    backend.Variant
	toolChoice ToolChoicePolicy
	// minTokens and maxTokens clamp max_tokens; zero disables the bound.
	minTokens int
	maxTokens int
	// mapThinking enables translating thinking budgets into reasoning_effort.
	mapThinking bool
}

// fromMessagesRequest converts a Claude Messages request into a Chat Completions request.
func fromMessagesRequest(clientReq types.MessagesRequest, resolver ModelResolver, cfg requestConfig) (backend.Request, error) {
	model := clientReq.Model
	if resolver != nil {
		model = resolver.Resolve(clientReq.Model)
	}

	req := backend.Request{
		Model:  model,
		Stream: clientReq.Stream,
		Stop:   clientReq.StopSequences,
	}

	messages, err := fromConversation(clientReq.System, clientReq.Messages)
	if err != nil {
		return backend.Request{}, err
	}
	req.Messages = messages

	maxTokens := clampTokens(clientReq.MaxTokens, cfg.minTokens, cfg.maxTokens)
	reasoningModel := isReasoningModel(model)
	if reasoningModel {
		// Reasoning models reject max_tokens in favour of max_completion_tokens.
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	// Sampling transformation: reasoning models only accept the default temperature and
	// top_p, so client overrides are dropped for them.
	if !reasoningModel {
		if clientReq.Temperature != nil {
			req.Temperature = float32(*clientReq.Temperature)
		}
		if clientReq.TopP != nil {
			req.TopP = float32(*clientReq.TopP)
		}
	}

	// TopK transformation: Chat Completions has no top_k parameter; the value is dropped.

	tools := fromTools(clientReq.Tools)
	req.Tools = tools

	toolChoice, err := resolveToolChoice(clientReq.Tools, clientReq.ToolChoice, cfg.toolChoice)
	if err != nil {
		return backend.Request{}, err
	}
	if toolChoice != nil {
		req.ToolChoice = toolChoice
	}

	if len(tools) > 0 && clientReq.ToolChoice != nil && clientReq.ToolChoice.DisableParallelToolUse != nil &&
		*clientReq.ToolChoice.DisableParallelToolUse {
		req.ParallelToolCalls = false
	}

	if cfg.mapThinking && clientReq.Thinking.Enabled() {
		req.ReasoningEffort = reasoningEffort(clientReq.Thinking.BudgetTokens)
	}

	if userID, ok := clientReq.Metadata["user_id"].(string); ok {
		req.User = userID
	}

	// The custom provider rejects stream_options; usage then arrives with the final chunk
	// or not at all.
	if req.Stream && cfg.variant != backend.VariantCustom {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	return req, nil
}

// fromConversation flattens the system prompt and the conversation turns into the
// Chat Completions message list.
func fromConversation(system types.ContentBlocks, turns []types.MessageParam) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)

	if len(system) > 0 {
		prompt, err := fromSystemBlocks(system)
		if err != nil {
			return nil, err
		}
		if prompt != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt,
			})
		}
	}

	for i, turn := range turns {
		var (
			converted []openai.ChatCompletionMessage
			err       error
		)
		switch turn.Role {
		case types.RoleUser:
			converted, err = fromUserTurn(turn.Content)
		case types.RoleAssistant:
			converted, err = fromAssistantTurn(turn.Content)
		default:
			err = &ConversionError{Reason: fmt.Sprintf("unsupported role %q", turn.Role)}
		}
		if err != nil {
			return nil, withField(err, fmt.Sprintf("messages[%d]", i))
		}
		messages = append(messages, converted...)
	}

	return messages, nil
}

// fromSystemBlocks joins the text of the system prompt with blank lines.
func fromSystemBlocks(blocks types.ContentBlocks) (string, error) {
	texts := make([]string, 0, len(blocks))
	for i, block := range blocks {
		if block.Type() != types.BlockTypeText {
			return "", &ConversionError{
				Field:  fmt.Sprintf("system[%d]", i),
				Reason: fmt.Sprintf("content block type %q not supported in system prompt", block.Type()),
			}
		}
		if block.OfText.Text != "" {
			texts = append(texts, block.OfText.Text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

// clampTokens bounds requested output tokens to the configured range.
func clampTokens(requested, lower, upper int) int {
	if upper > 0 && requested > upper {
		requested = upper
	}
	if lower > 0 && requested < lower {
		requested = lower
	}
	return requested
}

// isReasoningModel reports whether model belongs to the o-series, which needs
// max_completion_tokens and fixed sampling parameters.
func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// withField prefixes the location of a conversion error with its parent path.
func withField(err error, parent string) error {
	convErr, ok := err.(*ConversionError)
	if !ok {
		return err
	}
	if convErr.Field == "" {
		convErr.Field = parent
	} else {
		convErr.Field = parent + "." + convErr.Field
	}
	return convErr
}
