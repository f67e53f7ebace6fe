package proxy

import (
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// charsPerToken is the rough ratio used to estimate token counts without a tokenizer.
const charsPerToken = 4

// countTokensHandler estimates input tokens as characters / 4, minimum 1. Backends
// expose no token counting endpoint, so clients only get a budget estimate.
func countTokensHandler(validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req types.CountTokensRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if err := validate.StructCtx(ctx, req); err != nil {
			slog.WarnContext(ctx, "invalid request", "error", err)
			writeJSONClaudeError(ctx, w, newClaudeError("invalid_request_error", validationMessage(err)))
			return
		}

		writeJSON(ctx, w, types.TokenCount{InputTokens: estimateTokens(req)}, http.StatusOK)
	}
}

func estimateTokens(req types.CountTokensRequest) int {
	chars := countChars(req.System)
	for _, msg := range req.Messages {
		chars += countChars(msg.Content)
	}
	for _, tool := range req.Tools {
		chars += utf8.RuneCountInString(tool.Name) + utf8.RuneCountInString(tool.Description) + len(tool.InputSchema)
	}
	return max(1, chars/charsPerToken)
}

func countChars(blocks types.ContentBlocks) int {
	n := 0
	for _, block := range blocks {
		switch block.Type() {
		case types.BlockTypeText:
			n += utf8.RuneCountInString(block.OfText.Text)
		case types.BlockTypeThinking:
			n += utf8.RuneCountInString(block.OfThinking.Thinking)
		case types.BlockTypeToolUse:
			n += utf8.RuneCountInString(block.OfToolUse.Name) + len(block.OfToolUse.Input)
		case types.BlockTypeToolResult:
			n += countChars(block.OfToolResult.Content)
		}
	}
	return n
}
