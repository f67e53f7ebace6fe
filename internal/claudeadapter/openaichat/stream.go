package openaichat

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

// CancellationChecker reports whether a request was cancelled by its client.
type CancellationChecker interface {
	IsCancelled(requestID string) bool
}

// cancellationSignal is the per-call signal of an open backend stream. It survives the
// release of the registry entry.
type cancellationSignal interface {
	Cancelled() bool
}

// streamConfig identifies the message a stream reconstructs.
type streamConfig struct {
	messageID string
	// model is the client-facing model name echoed in message_start.
	model     string
	requestID string
	checker   CancellationChecker
	signal    cancellationSignal
}

func (c streamConfig) cancelled() bool {
	if c.signal != nil && c.signal.Cancelled() {
		return true
	}
	return c.checker != nil && c.requestID != "" && c.checker.IsCancelled(c.requestID)
}

// toEventStream reconstructs the Claude event protocol from Chat Completions chunks.
//
// The yielded sequence always starts with message_start. Every content block is opened
// and closed exactly once, blocks never interleave, and a successful stream ends with
// message_delta followed by message_stop. Backend errors and cancellation end the
// sequence without message_stop so clients can tell a truncated stream from a finished one.
func toEventStream(ctx context.Context, chunks iter.Seq2[*backend.Chunk, error], cfg streamConfig) iter.Seq2[*types.Event, error] {
	return func(yield func(*types.Event, error) bool) {
		state := newStreamState(cfg)

		emit := func(events []*types.Event) bool {
			for _, event := range events {
				if !yield(event, nil) {
					return false
				}
			}
			return true
		}

		for chunk, err := range chunks {
			if cfg.cancelled() {
				yield(nil, backend.CancelledError())
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !emit(state.handleChunk(ctx, chunk)) {
				return
			}
			if state.done {
				return
			}
		}

		if cfg.cancelled() {
			yield(nil, backend.CancelledError())
			return
		}

		// Upstream ended without final usage; finish with what was collected.
		emit(state.finish(ctx))
	}
}

type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
	blockToolUse
)

// toolCallState tracks one streamed tool call, keyed by its OpenAI index.
type toolCallState struct {
	blockIndex int
	id         string
	name       string
	arguments  strings.Builder
}

// streamState is the per-stream state machine. It is owned by a single goroutine.
type streamState struct {
	cfg streamConfig

	started bool
	done    bool

	// nextIndex is the Claude block index assigned to the next opened block.
	nextIndex int
	open      blockKind
	openIndex int
	// openTool is the OpenAI index of the open tool_use block.
	openTool int

	tools map[int]*toolCallState

	finishReason openai.FinishReason
	usage        *openai.Usage
}

func newStreamState(cfg streamConfig) *streamState {
	return &streamState{
		cfg:      cfg,
		openTool: -1,
		tools:    make(map[int]*toolCallState),
	}
}

// handleChunk returns the events derived from one chunk, finishing the message when the
// chunk completes both finish reason and usage.
func (s *streamState) handleChunk(ctx context.Context, chunk *backend.Chunk) []*types.Event {
	events := s.start(nil)
	if chunk == nil {
		return events
	}

	if chunk.Usage != nil {
		s.usage = chunk.Usage
	}

	for _, choice := range chunk.Choices {
		// n > 1 is never requested; other choices are ignored.
		if choice.Index != 0 {
			continue
		}

		delta := choice.Delta
		if delta.ReasoningContent != "" {
			events = s.appendThinking(ctx, events, delta.ReasoningContent)
		}
		if delta.Content != "" {
			events = s.appendText(ctx, events, delta.Content)
		}
		for position, call := range delta.ToolCalls {
			events = s.appendToolCall(ctx, events, position, call)
		}

		if choice.FinishReason != "" && choice.FinishReason != openai.FinishReasonNull {
			events = s.closeBlock(ctx, events)
			s.finishReason = choice.FinishReason
		}
	}

	if s.finishReason != "" && s.usage != nil {
		events = append(events, s.finish(ctx)...)
	}

	return events
}

// start emits message_start once.
func (s *streamState) start(events []*types.Event) []*types.Event {
	if s.started {
		return events
	}
	s.started = true
	return append(events, types.NewMessageStartEvent(types.NewMessage(s.cfg.messageID, s.cfg.model)))
}

func (s *streamState) appendThinking(ctx context.Context, events []*types.Event, thinking string) []*types.Event {
	if s.open != blockThinking {
		events = s.closeBlock(ctx, events)
		events = s.openBlock(events, blockThinking, types.NewThinkingBlock("", ""))
	}
	return append(events, types.NewThinkingDeltaEvent(s.openIndex, thinking))
}

func (s *streamState) appendText(ctx context.Context, events []*types.Event, text string) []*types.Event {
	if s.open != blockText {
		events = s.closeBlock(ctx, events)
		events = s.openBlock(events, blockText, types.NewTextBlock(""))
	}
	return append(events, types.NewTextDeltaEvent(s.openIndex, text))
}

// appendToolCall opens a tool_use block for each new tool index and forwards argument
// fragments of the open one. position stands in for a missing index.
func (s *streamState) appendToolCall(ctx context.Context, events []*types.Event, position int, call openai.ToolCall) []*types.Event {
	index := position
	if call.Index != nil {
		index = *call.Index
	}

	tool, seen := s.tools[index]
	if !seen {
		events = s.closeBlock(ctx, events)

		id := call.ID
		if id == "" {
			id = newToolUseID()
		}
		tool = &toolCallState{id: id, name: call.Function.Name}
		events = s.openBlock(events, blockToolUse, types.NewToolUseBlock(id, call.Function.Name, nil))
		tool.blockIndex = s.openIndex
		s.openTool = index
		s.tools[index] = tool
	}

	arguments := call.Function.Arguments
	if arguments == "" {
		return events
	}
	tool.arguments.WriteString(arguments)

	if s.open != blockToolUse || s.openTool != index {
		// The block was already closed; emitting would break block ordering.
		slog.WarnContext(ctx, "dropping arguments for closed tool_use block",
			slog.Int("tool_index", index),
			slog.String("tool_name", tool.name),
		)
		return events
	}

	return append(events, types.NewInputJSONDeltaEvent(tool.blockIndex, arguments))
}

func (s *streamState) openBlock(events []*types.Event, kind blockKind, block types.ContentBlock) []*types.Event {
	s.open = kind
	s.openIndex = s.nextIndex
	s.nextIndex++
	return append(events, types.NewContentBlockStartEvent(s.openIndex, block))
}

// closeBlock emits content_block_stop for the open block, if any.
func (s *streamState) closeBlock(ctx context.Context, events []*types.Event) []*types.Event {
	if s.open == blockNone {
		return events
	}

	if s.open == blockToolUse {
		if tool := s.tools[s.openTool]; tool != nil && tool.arguments.Len() > 0 && !json.Valid([]byte(tool.arguments.String())) {
			slog.WarnContext(ctx, "tool call arguments are not valid JSON",
				slog.String("tool_name", tool.name),
				slog.String("tool_use_id", tool.id),
			)
		}
		s.openTool = -1
	}

	events = append(events, types.NewContentBlockStopEvent(s.openIndex))
	s.open = blockNone
	return events
}

// finish closes the open block and emits message_delta and message_stop.
func (s *streamState) finish(ctx context.Context) []*types.Event {
	if s.done {
		return nil
	}

	events := s.start(nil)
	events = s.closeBlock(ctx, events)
	events = append(events,
		types.NewMessageDeltaEvent(toStopReason(ctx, s.finishReason), toUsage(s.usage)),
		types.NewMessageStopEvent(),
	)

	s.done = true
	clear(s.tools)
	return events
}
