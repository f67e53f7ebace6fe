package types

// EventType names a Claude stream event.
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"
	EventPing              EventType = "ping"
	EventError             EventType = "error"
)

// DeltaType names the payload of a content_block_delta.
type DeltaType string

const (
	DeltaText      DeltaType = "text_delta"
	DeltaInputJSON DeltaType = "input_json_delta"
	DeltaThinking  DeltaType = "thinking_delta"
)

// Event is a flat union of the Claude stream events. Fields that do not belong to the
// event's type are left empty and omitted from JSON.
type Event struct {
	Type         EventType     `json:"type"`
	Message      *Message      `json:"message,omitempty"`
	Index        *int          `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
}

// Delta is the incremental payload of content_block_delta and message_delta events.
type Delta struct {
	Type        DeltaType  `json:"type,omitempty"`
	Text        string     `json:"text,omitempty"`
	PartialJSON string     `json:"partial_json,omitempty"`
	Thinking    string     `json:"thinking,omitempty"`
	StopReason  StopReason `json:"stop_reason,omitempty"`
}

// NewMessageStartEvent opens a message.
func NewMessageStartEvent(msg *Message) *Event {
	return &Event{Type: EventMessageStart, Message: msg}
}

// NewContentBlockStartEvent opens the content block at index.
func NewContentBlockStartEvent(index int, block ContentBlock) *Event {
	return &Event{Type: EventContentBlockStart, Index: &index, ContentBlock: &block}
}

// NewTextDeltaEvent appends text to the block at index.
func NewTextDeltaEvent(index int, text string) *Event {
	return &Event{Type: EventContentBlockDelta, Index: &index, Delta: &Delta{Type: DeltaText, Text: text}}
}

// NewInputJSONDeltaEvent appends a tool argument fragment to the block at index.
func NewInputJSONDeltaEvent(index int, partialJSON string) *Event {
	return &Event{Type: EventContentBlockDelta, Index: &index, Delta: &Delta{Type: DeltaInputJSON, PartialJSON: partialJSON}}
}

// NewThinkingDeltaEvent appends reasoning text to the block at index.
func NewThinkingDeltaEvent(index int, thinking string) *Event {
	return &Event{Type: EventContentBlockDelta, Index: &index, Delta: &Delta{Type: DeltaThinking, Thinking: thinking}}
}

// NewContentBlockStopEvent closes the block at index.
func NewContentBlockStopEvent(index int) *Event {
	return &Event{Type: EventContentBlockStop, Index: &index}
}

// NewMessageDeltaEvent reports the final stop reason and usage.
func NewMessageDeltaEvent(reason StopReason, usage Usage) *Event {
	return &Event{Type: EventMessageDelta, Delta: &Delta{StopReason: reason}, Usage: &usage}
}

// NewMessageStopEvent closes the message.
func NewMessageStopEvent() *Event {
	return &Event{Type: EventMessageStop}
}
