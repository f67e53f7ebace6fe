package backend

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceKey struct{}

// contextRecorder keeps the trace value of the context each record was logged with.
type contextRecorder struct {
	mu     sync.Mutex
	traces []any
}

func (h *contextRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *contextRecorder) Handle(ctx context.Context, _ slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.traces = append(h.traces, ctx.Value(traceKey{}))
	return nil
}

func (h *contextRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *contextRecorder) WithGroup(string) slog.Handler      { return h }

func TestLineReaderWarnsWithCallerContext(t *testing.T) {
	recorder := &contextRecorder{}
	prev := slog.Default()
	slog.SetDefault(slog.New(recorder))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(t.Context(), traceKey{}, "trace-1")
	body := io.NopCloser(strings.NewReader("not json\n" + chunkJSON("Hi", "") + "\n[DONE]\n"))

	reader := newLineReader(ctx, body, FramingV2)
	defer func() { _ = reader.Close() }()

	chunk, err := reader.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hi", chunk.Choices[0].Delta.Content)

	_, err = reader.Recv()
	assert.ErrorIs(t, err, io.EOF)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, []any{"trace-1"}, recorder.traces)
}
