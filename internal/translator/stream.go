package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// sseTerminator is the literal end-of-stream token OpenAI-style upstreams
// send as a data record.
const sseTerminator = "[DONE]"

// StreamTranslator consumes an upstream SSE byte stream and re-emits an
// Anthropic-shaped SSE stream. It is a single-threaded state machine: one
// read per upstream chunk, writes driven entirely by the caller's loop, so
// backpressure is whatever the output writer applies.
type StreamTranslator struct {
	w       io.Writer
	flush   func()
	payload *Payload

	carry []byte
	usage map[string]any
}

// NewStreamTranslator wires a translator to an output writer. flush may be
// nil when the writer needs no explicit flushing.
func NewStreamTranslator(w io.Writer, flush func(), payload *Payload) *StreamTranslator {
	if flush == nil {
		flush = func() {}
	}

	return &StreamTranslator{w: w, flush: flush, payload: payload}
}

// Run translates the upstream stream until EOF. The message_start frame is
// written before the first upstream read so the client sees framing even on
// a slow upstream. Read and write errors propagate so the caller observes a
// broken stream instead of silent truncation; a write error also stops the
// upstream read loop, releasing the upstream connection when the client
// goes away.
func (t *StreamTranslator) Run(upstream io.Reader) error {
	if err := t.emit("message_start", t.messageStart()); err != nil {
		return err
	}

	buf := make([]byte, 4096)

	for {
		n, err := upstream.Read(buf)

		if n > 0 {
			if werr := t.consume(buf[:n]); werr != nil {
				return werr
			}
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("read upstream stream: %w", err)
		}
	}

	return t.finish()
}

// consume appends a chunk to the carry-over buffer, splits out complete SSE
// records on the double-newline delimiter and processes each. The trailing
// fragment stays buffered for the next chunk.
func (t *StreamTranslator) consume(chunk []byte) error {
	t.carry = append(t.carry, chunk...)

	for {
		idx := bytes.Index(t.carry, []byte("\n\n"))
		if idx < 0 {
			return nil
		}

		record := string(t.carry[:idx])
		t.carry = t.carry[idx+2:]

		if err := t.handleRecord(record); err != nil {
			return err
		}
	}
}

// handleRecord processes one complete SSE record. Comment records, the
// terminator token and unparseable payloads are skipped; a bad record never
// aborts the stream.
func (t *StreamTranslator) handleRecord(record string) error {
	var data strings.Builder

	for _, line := range strings.Split(record, "\n") {
		line = strings.TrimRight(line, "\r")

		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimSpace(after))
		}
	}

	payload := data.String()
	if payload == "" || payload == sseTerminator {
		return nil
	}

	var chunk map[string]any
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil
	}

	if content := deltaContent(chunk); content != "" {
		event := map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": content},
		}

		if err := t.emit("content_block_delta", event); err != nil {
			return err
		}
	}

	// Only the last usage record counts; upstream repeats cumulative totals.
	if usage, ok := chunk["usage"].(map[string]any); ok {
		t.usage = usage
	}

	return nil
}

// finish emits the closing frames after upstream end-of-stream: one
// message_delta carrying the mapped usage when any was captured, then
// message_stop.
func (t *StreamTranslator) finish() error {
	if t.usage != nil {
		event := map[string]any{
			"type": "message_delta",
			"delta": map[string]any{
				"stop_reason":   "end_turn",
				"stop_sequence": nil,
			},
			"usage": MapUpstreamUsage(t.usage),
		}

		if err := t.emit("message_delta", event); err != nil {
			return err
		}
	}

	return t.emit("message_stop", map[string]any{"type": "message_stop"})
}

func (t *StreamTranslator) messageStart() map[string]any {
	return map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            "msg_" + uuid.NewString(),
			"type":          "message",
			"role":          "assistant",
			"model":         t.payload.Model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         Usage{},
		},
	}
}

func (t *StreamTranslator) emit(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}

	t.flush()

	return nil
}

// deltaContent extracts choices[0].delta.content when it is a non-empty
// string.
func deltaContent(chunk map[string]any) string {
	choices, ok := chunk["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return ""
	}

	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return ""
	}

	content, _ := delta["content"].(string)

	return content
}
