package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// UpstreamError reports an HTTP-level failure or a malformed top-level
// response from the completion endpoint.
type UpstreamError struct {
	Status  int // zero when the request never reached the upstream
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
	}
	return "upstream request failed: " + e.Message
}

// Client is the single entry point for completion requests, streaming and
// non-streaming.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given OpenAI-compatible base URL.
// The underlying HTTP client carries no timeout: streaming responses stay
// open until the upstream finishes or the caller cancels.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete sends a non-streaming completion request and returns the
// assistant content. Failures surface as *UpstreamError.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	body, err := json.Marshal(newChatRequest(messages, opts, false))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Message: "decoding response: " + err.Error()}
	}
	if len(result.Choices) == 0 {
		return "", &UpstreamError{Status: resp.StatusCode, Message: "response contained no choices"}
	}
	return result.Choices[0].Message.Content, nil
}

// Stream is a live streaming request. Events arrive on Events() in protocol
// order and the channel is closed after the terminal event. Cancel stops
// delivery and aborts the underlying request; at most one event already in
// flight may still be observed after cancellation.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
}

// Events returns the ordered event channel for this stream.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Cancel stops the stream. Safe to call more than once.
func (s *Stream) Cancel() {
	s.cancel()
}

// emit delivers ev unless the stream has been cancelled. Returns false once
// the consumer is gone. The channel is unbuffered and cancellation is
// checked before blocking, so after Cancel at most the one send already in
// progress can still be observed.
func (s *Stream) emit(ctx context.Context, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// streamReadSize is the transport read granularity. Chunk boundaries are
// arbitrary with respect to protocol lines; the Decoder reassembles them.
const streamReadSize = 4096

// Stream issues a streaming completion request. It never returns an error:
// request failures are delivered as a terminal Event with Err set, so
// consumers handle exactly one signalling path.
func (c *Client) Stream(ctx context.Context, messages []Message, opts Options) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan Event),
		cancel: cancel,
	}

	go func() {
		defer close(s.events)
		defer cancel()

		dec := NewDecoder()

		body, err := json.Marshal(newChatRequest(messages, opts, true))
		if err != nil {
			s.fail(ctx, dec, fmt.Errorf("marshaling request: %w", err))
			return
		}

		req, err := c.newRequest(ctx, body)
		if err != nil {
			s.fail(ctx, dec, err)
			return
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			s.fail(ctx, dec, &UpstreamError{Message: err.Error()})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			s.fail(ctx, dec, &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))})
			return
		}

		buf := make([]byte, streamReadSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, ev := range dec.Feed(buf[:n]) {
					if !s.emit(ctx, ev) {
						return
					}
					if ev.Done {
						return
					}
				}
			}
			if readErr == io.EOF {
				if ev, ok := dec.Close(); ok {
					s.emit(ctx, ev)
				}
				return
			}
			if readErr != nil {
				s.fail(ctx, dec, &UpstreamError{Message: readErr.Error()})
				return
			}
		}
	}()

	return s
}

func (s *Stream) fail(ctx context.Context, dec *Decoder, err error) {
	if ev, ok := dec.Fail(err); ok {
		s.emit(ctx, ev)
	}
}
