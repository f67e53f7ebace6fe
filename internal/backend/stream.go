package backend

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"

	"github.com/florianilch/claudine-gateway/internal/cancellation"
)

// Stream is an open streaming call.
type Stream struct {
	reader  chunkReader
	entry   *cancellation.Entry
	cancel  context.CancelFunc
	variant Variant

	closeOnce sync.Once
	closeErr  error
}

func newStream(
	ctx context.Context,
	cancel context.CancelFunc,
	reader chunkReader,
	entry *cancellation.Entry,
	variant Variant,
) *Stream {
	s := &Stream{
		reader:  reader,
		entry:   entry,
		cancel:  cancel,
		variant: variant,
	}

	// Abort the in-flight read on cancellation and clean up once the stream context
	// ends, even if Chunks is never consumed.
	go func() {
		select {
		case <-signal(entry):
		case <-ctx.Done():
		}
		_ = s.Close()
	}()

	return s
}

// Chunks yields backend chunks until the backend signals the end of the stream. A
// cancelled or failed stream yields one *Error and stops. The stream is closed when
// iteration ends.
func (s *Stream) Chunks() iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		defer func() { _ = s.Close() }()

		for {
			if s.Cancelled() {
				yield(nil, CancelledError())
				return
			}

			chunk, err := s.reader.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if s.Cancelled() {
					yield(nil, CancelledError())
					return
				}
				yield(nil, classify(err, s.variant))
				return
			}

			if !yield(&chunk, nil) {
				return
			}
		}
	}
}

// Close aborts the stream and releases its cancellation entry. It is safe to call
// multiple times.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.reader.Close()
		release(s.entry)
	})
	return s.closeErr
}

// Cancelled reports whether the call was cancelled through the registry. Unlike
// Registry.IsCancelled it stays true after the entry has been released.
func (s *Stream) Cancelled() bool {
	return s.entry != nil && s.entry.Cancelled()
}
