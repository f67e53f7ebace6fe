package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// BlockType is the discriminator of a content block.
type BlockType string

const (
	BlockTypeText             BlockType = "text"
	BlockTypeImage            BlockType = "image"
	BlockTypeToolUse          BlockType = "tool_use"
	BlockTypeToolResult       BlockType = "tool_result"
	BlockTypeThinking         BlockType = "thinking"
	BlockTypeRedactedThinking BlockType = "redacted_thinking"
)

// ContentBlock is a tagged union over the supported content block kinds. Exactly one of
// the Of* fields is set for known kinds.
type ContentBlock struct {
	OfText             *TextBlock
	OfImage            *ImageBlock
	OfToolUse          *ToolUseBlock
	OfToolResult       *ToolResultBlock
	OfThinking         *ThinkingBlock
	OfRedactedThinking *RedactedThinkingBlock

	// unknown holds the tag of a block kind this package does not model.
	unknown BlockType
}

// TextBlock carries plain text.
type TextBlock struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

// ImageBlock carries an inline or referenced image.
type ImageBlock struct {
	Type   BlockType   `json:"type"`
	Source ImageSource `json:"source"`
}

// ImageSource is either base64 data with a media type or a URL.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ToolUseBlock is a tool invocation by the assistant.
type ToolUseBlock struct {
	Type  BlockType       `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock returns a tool's output to the model.
type ToolResultBlock struct {
	Type      BlockType     `json:"type"`
	ToolUseID string        `json:"tool_use_id"`
	Content   ContentBlocks `json:"content,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
}

// ThinkingBlock carries extended-thinking output.
type ThinkingBlock struct {
	Type      BlockType `json:"type"`
	Thinking  string    `json:"thinking"`
	Signature string    `json:"signature"`
}

// RedactedThinkingBlock carries encrypted thinking output.
type RedactedThinkingBlock struct {
	Type BlockType `json:"type"`
	Data string    `json:"data"`
}

// NewTextBlock returns a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{OfText: &TextBlock{Type: BlockTypeText, Text: text}}
}

// NewToolUseBlock returns a tool_use content block. A nil input becomes an empty object.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return ContentBlock{OfToolUse: &ToolUseBlock{Type: BlockTypeToolUse, ID: id, Name: name, Input: input}}
}

// NewThinkingBlock returns a thinking content block.
func NewThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{OfThinking: &ThinkingBlock{Type: BlockTypeThinking, Thinking: thinking, Signature: signature}}
}

// Type returns the block's discriminator, including unknown ones.
func (b ContentBlock) Type() BlockType {
	switch {
	case b.OfText != nil:
		return BlockTypeText
	case b.OfImage != nil:
		return BlockTypeImage
	case b.OfToolUse != nil:
		return BlockTypeToolUse
	case b.OfToolResult != nil:
		return BlockTypeToolResult
	case b.OfThinking != nil:
		return BlockTypeThinking
	case b.OfRedactedThinking != nil:
		return BlockTypeRedactedThinking
	default:
		return b.unknown
	}
}

// MarshalJSON encodes the populated variant with its type tag.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch {
	case b.OfText != nil:
		v := *b.OfText
		v.Type = BlockTypeText
		return json.Marshal(v)
	case b.OfImage != nil:
		v := *b.OfImage
		v.Type = BlockTypeImage
		return json.Marshal(v)
	case b.OfToolUse != nil:
		v := *b.OfToolUse
		v.Type = BlockTypeToolUse
		if len(v.Input) == 0 {
			v.Input = json.RawMessage("{}")
		}
		return json.Marshal(v)
	case b.OfToolResult != nil:
		v := *b.OfToolResult
		v.Type = BlockTypeToolResult
		return json.Marshal(v)
	case b.OfThinking != nil:
		v := *b.OfThinking
		v.Type = BlockTypeThinking
		return json.Marshal(v)
	case b.OfRedactedThinking != nil:
		v := *b.OfRedactedThinking
		v.Type = BlockTypeRedactedThinking
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("cannot marshal content block of type %q", b.unknown)
	}
}

// UnmarshalJSON decodes a block by its type tag. Unknown tags decode without error and
// are reported by Type.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	if tag.Type == "" {
		return errors.New("content block is missing its type")
	}

	*b = ContentBlock{}

	var err error
	switch tag.Type {
	case BlockTypeText:
		b.OfText = new(TextBlock)
		err = json.Unmarshal(data, b.OfText)
	case BlockTypeImage:
		b.OfImage = new(ImageBlock)
		err = json.Unmarshal(data, b.OfImage)
	case BlockTypeToolUse:
		b.OfToolUse = new(ToolUseBlock)
		err = json.Unmarshal(data, b.OfToolUse)
	case BlockTypeToolResult:
		b.OfToolResult = new(ToolResultBlock)
		err = json.Unmarshal(data, b.OfToolResult)
	case BlockTypeThinking:
		b.OfThinking = new(ThinkingBlock)
		err = json.Unmarshal(data, b.OfThinking)
	case BlockTypeRedactedThinking:
		b.OfRedactedThinking = new(RedactedThinkingBlock)
		err = json.Unmarshal(data, b.OfRedactedThinking)
	default:
		b.unknown = tag.Type
	}
	if err != nil {
		return fmt.Errorf("decode %s block: %w", tag.Type, err)
	}
	return nil
}

// ContentBlocks is a block sequence that also accepts a plain string (one text block)
// or a single block object when decoding.
type ContentBlocks []ContentBlock

// UnmarshalJSON accepts a string, a single block or an array of blocks.
func (c *ContentBlocks) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*c = ContentBlocks{NewTextBlock(text)}
		return nil
	case '{':
		var block ContentBlock
		if err := json.Unmarshal(trimmed, &block); err != nil {
			return err
		}
		*c = ContentBlocks{block}
		return nil
	default:
		var blocks []ContentBlock
		if err := json.Unmarshal(trimmed, &blocks); err != nil {
			return err
		}
		*c = blocks
		return nil
	}
}

// Text concatenates the text of all text blocks using sep.
func (c ContentBlocks) Text(sep string) string {
	var buf bytes.Buffer
	first := true
	for _, block := range c {
		if block.OfText == nil {
			continue
		}
		if !first {
			buf.WriteString(sep)
		}
		buf.WriteString(block.OfText.Text)
		first = false
	}
	return buf.String()
}
