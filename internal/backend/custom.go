package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultCustomPath is the chat completions path of the custom provider.
const DefaultCustomPath = "/lmp-cloud-ias-server/api/llm/chat/completions"

// doneMarker terminates streams in both custom framings.
const doneMarker = "[DONE]"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Framing selects the line framing of the custom provider.
type Framing string

const (
	// FramingV1 streams "data:"-prefixed lines.
	FramingV1 Framing = "V1"
	// FramingV2 streams raw JSON lines.
	FramingV2 Framing = "V2"
)

// ParseFraming validates a configured framing name.
func ParseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToUpper(strings.TrimSpace(s))); f {
	case "", FramingV1:
		return FramingV1, nil
	case FramingV2:
		return FramingV2, nil
	default:
		return "", fmt.Errorf("unsupported custom framing %q (expected: V1, V2)", s)
	}
}

// customWire talks to the custom provider over plain HTTP.
type customWire struct {
	endpoint   string
	apiKey     string
	framing    Framing
	httpClient *http.Client
}

func newCustomWire(cfg Config, httpClient *http.Client) (*customWire, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("custom variant requires a base URL")
	}

	framing, err := ParseFraming(string(cfg.Custom.Framing))
	if err != nil {
		return nil, err
	}

	path := cfg.Custom.Path
	if path == "" {
		path = DefaultCustomPath
	}
	if framing == FramingV2 {
		path = strings.TrimRight(path, "/") + "/V2"
	}

	return &customWire{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		apiKey:     cfg.APIKey,
		framing:    framing,
		httpClient: httpClient,
	}, nil
}

func (w *customWire) complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := w.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	return &out, nil
}

func (w *customWire) openStream(ctx context.Context, req Request) (chunkReader, error) {
	resp, err := w.post(ctx, req)
	if err != nil {
		return nil, err
	}
	return newLineReader(ctx, resp.Body, w.framing), nil
}

// post sends the request and returns the response for status 200. Any other status is
// returned as *statusError with the body drained.
func (w *customWire) post(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode backend request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create backend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// The provider expects the key itself, not a Bearer token.
	httpReq.Header.Set("Authorization", w.apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{StatusCode: resp.StatusCode, Body: errBody}
	}

	return resp, nil
}

// lineReader normalizes both custom framings into canonical chunks.
type lineReader struct {
	// ctx carries the caller's trace context into warnings.
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	framing Framing
}

func newLineReader(ctx context.Context, body io.ReadCloser, framing Framing) *lineReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	return &lineReader{
		ctx:     ctx,
		body:    body,
		scanner: scanner,
		framing: framing,
	}
}

// Recv returns the next chunk, or io.EOF at the terminal marker or end of body.
// Lines that do not decode are skipped.
func (r *lineReader) Recv() (Chunk, error) {
	for r.scanner.Scan() {
		payload, ok := r.payload(strings.TrimSpace(r.scanner.Text()))
		if !ok {
			continue
		}
		if payload == doneMarker {
			return Chunk{}, io.EOF
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.WarnContext(r.ctx, "skipping malformed backend stream line",
				"framing", string(r.framing),
				"error", err,
			)
			continue
		}
		return chunk, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Chunk{}, err
	}
	return Chunk{}, io.EOF
}

// payload extracts the JSON payload (or terminal marker) of one line.
func (r *lineReader) payload(line string) (string, bool) {
	if line == "" {
		return "", false
	}

	switch r.framing {
	case FramingV2:
		// Raw JSON lines; tolerate a stray prefix.
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			line = strings.TrimSpace(rest)
		}
		return line, line != ""

	default:
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			rest = strings.TrimSpace(rest)
			return rest, rest != ""
		}
		// Other SSE fields and comments carry no payload.
		if strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") ||
			strings.HasPrefix(line, "id:") || strings.HasPrefix(line, "retry:") {
			return "", false
		}
		// Some deployments omit the prefix on individual lines.
		return line, true
	}
}

func (r *lineReader) Close() error {
	return r.body.Close()
}
