package llm

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
)

const doneSentinel = "[DONE]"

// Decoder turns raw transport chunks into ordered stream Events. Chunks may
// split a protocol line (or the JSON object inside it) at any byte boundary;
// the decoder buffers the trailing partial line until the next chunk
// completes it.
//
// The upstream protocol is one event per line: blank lines, the literal
// [DONE] sentinel, or a JSON object optionally prefixed with "data: ".
// Content never contains raw newlines, so the line buffer model is exact;
// consumers that need per-line insertion resplit Delta themselves.
type Decoder struct {
	buf     []byte
	content strings.Builder
	done    bool
	logger  *slog.Logger
}

// NewDecoder creates a Decoder for a single stream. Decoders are not safe
// for concurrent use; each in-flight request owns its own.
func NewDecoder() *Decoder {
	return &Decoder{logger: slog.Default()}
}

// Feed appends a raw chunk and returns the events completed by it, in
// protocol order. After the terminal event has been produced, further input
// is ignored.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		ev, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Done {
			break
		}
	}
	return events
}

// decodeLine handles one complete protocol line. The second return is false
// when the line carries no event (blank, keep-alive, noise, or a delta
// object without content).
func (d *Decoder) decodeLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}

	payload := strings.TrimPrefix(line, "data: ")
	if payload == doneSentinel {
		return d.terminal(nil), true
	}

	var parsed struct {
		Choices []struct {
			Delta struct {
				Content *string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		// Upstreams interleave comments and keep-alives; not fatal.
		d.logger.Debug("skipping unparseable stream line", "error", err)
		return Event{}, false
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Delta.Content == nil {
		return Event{}, false
	}

	delta := *parsed.Choices[0].Delta.Content
	d.content.WriteString(delta)
	return Event{Content: d.content.String(), Delta: delta}, true
}

// Close emits the terminal event for normal end-of-stream. The second
// return is false if the stream already terminated.
func (d *Decoder) Close() (Event, bool) {
	if d.done {
		return Event{}, false
	}
	return d.terminal(nil), true
}

// Fail emits the terminal event for a transport failure.
func (d *Decoder) Fail(err error) (Event, bool) {
	if d.done {
		return Event{}, false
	}
	return d.terminal(err), true
}

func (d *Decoder) terminal(err error) Event {
	d.done = true
	return Event{Content: d.content.String(), Done: true, Err: err}
}
