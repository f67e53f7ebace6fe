package openaichat

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/claudine-gateway/internal/backend"
	"github.com/florianilch/claudine-gateway/internal/claudeadapter/types"
)

type cancelledSet map[string]bool

func (c cancelledSet) IsCancelled(requestID string) bool {
	return c[requestID]
}

func chunksOf(chunks ...*backend.Chunk) iter.Seq2[*backend.Chunk, error] {
	return func(yield func(*backend.Chunk, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func deltaChunk(delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) *backend.Chunk {
	return &backend.Chunk{
		ID: "chatcmpl-1",
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

func textChunk(text string) *backend.Chunk {
	return deltaChunk(openai.ChatCompletionStreamChoiceDelta{Content: text}, "")
}

func finishChunk(reason openai.FinishReason) *backend.Chunk {
	return deltaChunk(openai.ChatCompletionStreamChoiceDelta{}, reason)
}

func usageChunk(prompt, completion int) *backend.Chunk {
	return &backend.Chunk{ID: "chatcmpl-1", Usage: &openai.Usage{PromptTokens: prompt, CompletionTokens: completion}}
}

func toolChunk(index int, id, name, arguments string) *backend.Chunk {
	return deltaChunk(openai.ChatCompletionStreamChoiceDelta{
		ToolCalls: []openai.ToolCall{{
			Index:    &index,
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: arguments},
		}},
	}, "")
}

func testStreamConfig() streamConfig {
	return streamConfig{messageID: "msg_test", model: "claude-3-5-sonnet-20241022", requestID: "req-1"}
}

func collectEvents(t *testing.T, seq iter.Seq2[*types.Event, error]) ([]*types.Event, error) {
	t.Helper()

	var events []*types.Event
	for event, err := range seq {
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

func eventTypes(events []*types.Event) []types.EventType {
	result := make([]types.EventType, 0, len(events))
	for _, event := range events {
		result = append(result, event.Type)
	}
	return result
}

// assertWellFormed checks the block bracketing invariants of a finished stream.
func assertWellFormed(t *testing.T, events []*types.Event) {
	t.Helper()

	require.NotEmpty(t, events)
	assert.Equal(t, types.EventMessageStart, events[0].Type)

	open := -1
	next := 0
	closed := map[int]bool{}
	for _, event := range events[1:] {
		switch event.Type {
		case types.EventContentBlockStart:
			require.Equal(t, -1, open, "block opened while another is open")
			require.Equal(t, next, *event.Index, "block indices must be sequential")
			open = *event.Index
			next++
		case types.EventContentBlockDelta:
			require.Equal(t, open, *event.Index, "delta for a block that is not open")
		case types.EventContentBlockStop:
			require.Equal(t, open, *event.Index)
			require.False(t, closed[open])
			closed[open] = true
			open = -1
		case types.EventMessageStart:
			t.Fatal("duplicate message_start")
		}
	}
	assert.Equal(t, -1, open, "block left open")

	n := len(events)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, types.EventMessageDelta, events[n-2].Type)
	assert.Equal(t, types.EventMessageStop, events[n-1].Type)
}

func TestStreamSingleText(t *testing.T) {
	events, err := collectEvents(t, toEventStream(context.Background(),
		chunksOf(textChunk("Hi"), finishChunk(openai.FinishReasonStop)),
		testStreamConfig(),
	))
	require.NoError(t, err)

	assert.Equal(t, []types.EventType{
		types.EventMessageStart,
		types.EventContentBlockStart,
		types.EventContentBlockDelta,
		types.EventContentBlockStop,
		types.EventMessageDelta,
		types.EventMessageStop,
	}, eventTypes(events))
	assertWellFormed(t, events)

	start := events[0].Message
	assert.Equal(t, "msg_test", start.ID)
	assert.Equal(t, "claude-3-5-sonnet-20241022", start.Model)
	assert.Empty(t, start.Content)

	assert.Equal(t, 0, *events[1].Index)
	assert.Equal(t, types.BlockTypeText, events[1].ContentBlock.Type())
	assert.Equal(t, types.DeltaText, events[2].Delta.Type)
	assert.Equal(t, "Hi", events[2].Delta.Text)
	assert.Equal(t, 0, *events[3].Index)
	assert.Equal(t, types.StopReasonEndTurn, events[4].Delta.StopReason)
}

func TestStreamToolCalls(t *testing.T) {
	events, err := collectEvents(t, toEventStream(context.Background(),
		chunksOf(
			textChunk("Let me check."),
			toolChunk(0, "call_a", "get_weather", ""),
			toolChunk(0, "", "", `{"city":`),
			toolChunk(0, "", "", `"Paris"}`),
			toolChunk(1, "call_b", "get_time", `{}`),
			finishChunk(openai.FinishReasonToolCalls),
			usageChunk(20, 9),
		),
		testStreamConfig(),
	))
	require.NoError(t, err)
	assertWellFormed(t, events)

	var (
		starts   []*types.Event
		partials []string
	)
	for _, event := range events {
		switch event.Type {
		case types.EventContentBlockStart:
			starts = append(starts, event)
		case types.EventContentBlockDelta:
			if event.Delta.Type == types.DeltaInputJSON {
				partials = append(partials, event.Delta.PartialJSON)
			}
		}
	}

	require.Len(t, starts, 3)
	assert.Equal(t, types.BlockTypeText, starts[0].ContentBlock.Type())
	assert.Equal(t, "call_a", starts[1].ContentBlock.OfToolUse.ID)
	assert.Equal(t, "get_weather", starts[1].ContentBlock.OfToolUse.Name)
	assert.JSONEq(t, `{}`, string(starts[1].ContentBlock.OfToolUse.Input))
	assert.Equal(t, 1, *starts[1].Index)
	assert.Equal(t, "call_b", starts[2].ContentBlock.OfToolUse.ID)
	assert.Equal(t, 2, *starts[2].Index)

	assert.Equal(t, []string{`{"city":`, `"Paris"}`, `{}`}, partials)

	final := events[len(events)-2]
	assert.Equal(t, types.StopReasonToolUse, final.Delta.StopReason)
	assert.Equal(t, types.Usage{InputTokens: 20, OutputTokens: 9}, *final.Usage)
}

func TestStreamLateArgumentsForClosedToolAreDropped(t *testing.T) {
	events, err := collectEvents(t, toEventStream(context.Background(),
		chunksOf(
			toolChunk(0, "call_a", "first", `{"a":`),
			toolChunk(1, "call_b", "second", `{}`),
			toolChunk(0, "", "", `1}`),
			finishChunk(openai.FinishReasonToolCalls),
		),
		testStreamConfig(),
	))
	require.NoError(t, err)
	assertWellFormed(t, events)

	for _, event := range events {
		if event.Type == types.EventContentBlockDelta {
			assert.NotEqual(t, `1}`, event.Delta.PartialJSON)
		}
	}
}

func TestStreamToolCallWithoutIDOrIndex(t *testing.T) {
	chunk := deltaChunk(openai.ChatCompletionStreamChoiceDelta{
		ToolCalls: []openai.ToolCall{{Function: openai.FunctionCall{Name: "lookup", Arguments: `{"q":"x"}`}}},
	}, openai.FinishReasonToolCalls)

	events, err := collectEvents(t, toEventStream(context.Background(), chunksOf(chunk), testStreamConfig()))
	require.NoError(t, err)
	assertWellFormed(t, events)

	require.Equal(t, types.EventContentBlockStart, events[1].Type)
	assert.Regexp(t, `^toolu_[0-9a-f]{32}$`, events[1].ContentBlock.OfToolUse.ID)
}

func TestStreamThinkingThenText(t *testing.T) {
	events, err := collectEvents(t, toEventStream(context.Background(),
		chunksOf(
			deltaChunk(openai.ChatCompletionStreamChoiceDelta{ReasoningContent: "Thinking"}, ""),
			deltaChunk(openai.ChatCompletionStreamChoiceDelta{ReasoningContent: " more"}, ""),
			textChunk("Answer"),
			finishChunk(openai.FinishReasonStop),
		),
		testStreamConfig(),
	))
	require.NoError(t, err)
	assertWellFormed(t, events)

	assert.Equal(t, types.BlockTypeThinking, events[1].ContentBlock.Type())
	assert.Equal(t, types.DeltaThinking, events[2].Delta.Type)
	assert.Equal(t, "Thinking", events[2].Delta.Thinking)
	assert.Equal(t, " more", events[3].Delta.Thinking)
	assert.Equal(t, types.EventContentBlockStop, events[4].Type)
	assert.Equal(t, types.BlockTypeText, events[5].ContentBlock.Type())
	assert.Equal(t, 1, *events[5].Index)
}

func TestStreamFinishesOnUsage(t *testing.T) {
	trailing := textChunk("ignored")

	events, err := collectEvents(t, toEventStream(context.Background(),
		chunksOf(textChunk("Hi"), finishChunk(openai.FinishReasonLength), usageChunk(3, 1), trailing),
		testStreamConfig(),
	))
	require.NoError(t, err)
	assertWellFormed(t, events)

	final := events[len(events)-2]
	assert.Equal(t, types.StopReasonMaxTokens, final.Delta.StopReason)
	assert.Equal(t, 3, final.Usage.InputTokens)
	for _, event := range events {
		if event.Delta != nil {
			assert.NotEqual(t, "ignored", event.Delta.Text)
		}
	}
}

func TestStreamEmpty(t *testing.T) {
	events, err := collectEvents(t, toEventStream(context.Background(), chunksOf(), testStreamConfig()))
	require.NoError(t, err)

	assert.Equal(t, []types.EventType{
		types.EventMessageStart,
		types.EventMessageDelta,
		types.EventMessageStop,
	}, eventTypes(events))
	assert.Equal(t, types.StopReasonEndTurn, events[1].Delta.StopReason)
}

func TestStreamIgnoresOtherChoices(t *testing.T) {
	chunk := &backend.Chunk{Choices: []openai.ChatCompletionStreamChoice{
		{Index: 1, Delta: openai.ChatCompletionStreamChoiceDelta{Content: "other"}},
		{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{Content: "mine"}},
	}}

	events, err := collectEvents(t, toEventStream(context.Background(), chunksOf(chunk), testStreamConfig()))
	require.NoError(t, err)
	assertWellFormed(t, events)

	require.Equal(t, types.EventContentBlockDelta, events[2].Type)
	assert.Equal(t, "mine", events[2].Delta.Text)
	assert.Equal(t, types.EventContentBlockStop, events[3].Type)
}

func TestStreamBackendError(t *testing.T) {
	backendErr := &backend.Error{Kind: backend.KindAPI, Status: http.StatusBadGateway, Message: "upstream broke"}
	chunks := func(yield func(*backend.Chunk, error) bool) {
		if !yield(textChunk("partial"), nil) {
			return
		}
		yield(nil, backendErr)
	}

	events, err := collectEvents(t, toEventStream(context.Background(), chunks, testStreamConfig()))
	require.ErrorIs(t, err, backendErr)

	for _, event := range events {
		assert.NotEqual(t, types.EventMessageStop, event.Type)
	}
}

func TestStreamCancelledBeforeFirstChunk(t *testing.T) {
	cfg := testStreamConfig()
	cfg.checker = cancelledSet{"req-1": true}

	events, err := collectEvents(t, toEventStream(context.Background(),
		chunksOf(textChunk("Hi"), finishChunk(openai.FinishReasonStop)),
		cfg,
	))

	assert.Empty(t, events)
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrRequestCancelled))
}

func TestStreamCancelledMidway(t *testing.T) {
	checker := cancelledSet{}
	cfg := testStreamConfig()
	cfg.checker = checker

	chunks := func(yield func(*backend.Chunk, error) bool) {
		if !yield(textChunk("Hello"), nil) {
			return
		}
		checker["req-1"] = true
		yield(textChunk(" world"), nil)
	}

	events, err := collectEvents(t, toEventStream(context.Background(), chunks, cfg))
	require.ErrorIs(t, err, backend.ErrRequestCancelled)

	assert.Equal(t, []types.EventType{
		types.EventMessageStart,
		types.EventContentBlockStart,
		types.EventContentBlockDelta,
	}, eventTypes(events))
}

type cancelFlag bool

func (f *cancelFlag) Cancelled() bool { return bool(*f) }

func TestStreamCancelledAfterEntryReleased(t *testing.T) {
	// The registry has already forgotten the request; only the call's own signal knows.
	var flag cancelFlag
	cfg := testStreamConfig()
	cfg.checker = cancelledSet{}
	cfg.signal = &flag

	chunks := func(yield func(*backend.Chunk, error) bool) {
		if !yield(textChunk("Hello"), nil) {
			return
		}
		flag = true
		yield(textChunk(" world"), nil)
	}

	events, err := collectEvents(t, toEventStream(context.Background(), chunks, cfg))
	require.ErrorIs(t, err, backend.ErrRequestCancelled)

	assert.Equal(t, []types.EventType{
		types.EventMessageStart,
		types.EventContentBlockStart,
		types.EventContentBlockDelta,
	}, eventTypes(events))
}

func TestStreamStopsWhenConsumerStops(t *testing.T) {
	pulled := 0
	chunks := func(yield func(*backend.Chunk, error) bool) {
		for _, chunk := range []*backend.Chunk{textChunk("a"), textChunk("b"), textChunk("c")} {
			pulled++
			if !yield(chunk, nil) {
				return
			}
		}
	}

	for range toEventStream(context.Background(), chunks, testStreamConfig()) {
		break
	}
	assert.Equal(t, 1, pulled)
}
