package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagesRequestDecoding(t *testing.T) {
	body := `{
		"model": "claude-sonnet-4-5",
		"max_tokens": 256,
		"system": [{"type": "text", "text": "Be brief."}, {"type": "text", "text": "Be kind."}],
		"messages": [
			{"role": "user", "content": "What is 2+2?"},
			{"role": "assistant", "content": [
				{"type": "thinking", "thinking": "simple math", "signature": "sig"},
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "calculator", "input": {"expr": "2+2"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "4"},
				{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "AAAA"}}
			]}
		],
		"tools": [{"name": "calculator", "input_schema": {"type": "object"}}],
		"tool_choice": {"type": "any"}
	}`

	var req MessagesRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, "Be brief.\n\nBe kind.", req.System.Text("\n\n"))
	require.Len(t, req.Messages, 3)

	user := req.Messages[0].Content
	require.Len(t, user, 1)
	assert.Equal(t, "What is 2+2?", user[0].OfText.Text)

	assistant := req.Messages[1].Content
	require.Len(t, assistant, 3)
	assert.Equal(t, BlockTypeThinking, assistant[0].Type())
	assert.Equal(t, BlockTypeText, assistant[1].Type())
	require.NotNil(t, assistant[2].OfToolUse)
	assert.JSONEq(t, `{"expr":"2+2"}`, string(assistant[2].OfToolUse.Input))

	result := req.Messages[2].Content[0].OfToolResult
	require.NotNil(t, result)
	assert.Equal(t, "toolu_1", result.ToolUseID)
	assert.Equal(t, "4", result.Content.Text("\n"))

	image := req.Messages[2].Content[1].OfImage
	require.NotNil(t, image)
	assert.Equal(t, "image/png", image.Source.MediaType)

	require.NotNil(t, req.ToolChoice)
	assert.Equal(t, ToolChoiceAny, req.ToolChoice.Type)
}

func TestContentBlockUnknownType(t *testing.T) {
	var blocks ContentBlocks
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"document","source":{}}]`), &blocks))

	require.Len(t, blocks, 1)
	assert.Equal(t, BlockType("document"), blocks[0].Type())

	_, err := json.Marshal(blocks[0])
	assert.Error(t, err)
}

func TestContentBlockMissingType(t *testing.T) {
	var blocks ContentBlocks
	assert.Error(t, json.Unmarshal([]byte(`[{"text":"no tag"}]`), &blocks))
}

func TestContentBlocksSingleObject(t *testing.T) {
	var blocks ContentBlocks
	require.NoError(t, json.Unmarshal([]byte(`{"type":"text","text":"one"}`), &blocks))
	assert.Equal(t, "one", blocks.Text(""))
}

func TestEventEncoding(t *testing.T) {
	start, err := json.Marshal(NewMessageStartEvent(NewMessage("msg_1", "claude-sonnet-4-5")))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "message_start",
		"message": {
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [], "stop_reason": null, "stop_sequence": null,
			"usage": {"input_tokens": 0, "output_tokens": 0}
		}
	}`, string(start))

	blockStart, err := json.Marshal(NewContentBlockStartEvent(0, NewTextBlock("")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`, string(blockStart))

	toolStart, err := json.Marshal(NewContentBlockStartEvent(1, NewToolUseBlock("toolu_1", "calc", nil)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"calc","input":{}}}`, string(toolStart))

	delta, err := json.Marshal(NewInputJSONDeltaEvent(1, `{"a":`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"a\":"}}`, string(delta))

	msgDelta, err := json.Marshal(NewMessageDeltaEvent(StopReasonToolUse, Usage{InputTokens: 5, OutputTokens: 7}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"input_tokens":5,"output_tokens":7}}`, string(msgDelta))
}

func TestErrorResponseEncoding(t *testing.T) {
	errResp := NewErrorResponse(401, "authentication_error", "bad key")

	data, err := json.Marshal(errResp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`, string(data))
	assert.Equal(t, "bad key", errResp.Error())
}
