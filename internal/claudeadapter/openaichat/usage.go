package openaichat

import (
	"github.com/sashabaranov/go-openai"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// toUsage converts OpenAI usage metadata to Claude usage. A missing usage report yields
// zero counts.
func toUsage(usage *openai.Usage) types.Usage {
	if usage == nil {
		return types.Usage{}
	}

	result := types.Usage{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}

	// OpenAI's cached_tokens maps directly to Claude's cache_read_input_tokens.
	if usage.PromptTokensDetails != nil {
		result.CacheReadInputTokens = usage.PromptTokensDetails.CachedTokens
	}

	// ReasoningTokens transformation: Claude counts thinking output as part of
	// output_tokens, which completion_tokens already includes.

	return result
}
