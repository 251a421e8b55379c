package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// contentLine builds one protocol line carrying the given delta.
func contentLine(delta string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`+"\n", delta)
}

// collectDeltas feeds the stream to a fresh decoder in chunks of the given
// size and returns the deltas of all content-bearing events plus the final
// cumulative content.
func collectDeltas(t *testing.T, stream string, chunkSize int) ([]string, string) {
	t.Helper()
	d := NewDecoder()
	var deltas []string
	var final string
	for i := 0; i < len(stream); i += chunkSize {
		end := i + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		for _, ev := range d.Feed([]byte(stream[i:end])) {
			if ev.Done {
				final = ev.Content
				continue
			}
			deltas = append(deltas, ev.Delta)
			final = ev.Content
		}
	}
	if ev, ok := d.Close(); ok {
		final = ev.Content
	}
	return deltas, final
}

func TestFeed_ChunkingInvariance(t *testing.T) {
	stream := contentLine("Hello") + contentLine(", ") + contentLine("world") + contentLine("!")
	want := []string{"Hello", ", ", "world", "!"}

	// Every chunk size from single bytes up to the whole stream must yield
	// the same event sequence.
	for _, size := range []int{1, 2, 3, 7, 16, len(stream)} {
		deltas, final := collectDeltas(t, stream, size)
		if len(deltas) != len(want) {
			t.Fatalf("chunk size %d: got %d events, want %d", size, len(deltas), len(want))
		}
		for i := range want {
			if deltas[i] != want[i] {
				t.Errorf("chunk size %d: delta[%d] = %q, want %q", size, i, deltas[i], want[i])
			}
		}
		if final != "Hello, world!" {
			t.Errorf("chunk size %d: final content = %q, want %q", size, final, "Hello, world!")
		}
	}
}

func TestFeed_LineAtATimeMatchesSingleChunk(t *testing.T) {
	lines := []string{contentLine("a"), contentLine("b"), contentLine("c")}

	perLine := NewDecoder()
	var perLineContent string
	for _, l := range lines {
		for _, ev := range perLine.Feed([]byte(l)) {
			perLineContent = ev.Content
		}
	}

	oneShot := NewDecoder()
	var oneShotContent string
	for _, ev := range oneShot.Feed([]byte(strings.Join(lines, ""))) {
		oneShotContent = ev.Content
	}

	if perLineContent != oneShotContent {
		t.Errorf("per-line content %q != single-chunk content %q", perLineContent, oneShotContent)
	}
	if perLineContent != "abc" {
		t.Errorf("content = %q, want %q", perLineContent, "abc")
	}
}

func TestFeed_DoneSentinelTerminates(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte(contentLine("x") + "[DONE]\n" + contentLine("never")))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Delta != "x" || events[0].Done {
		t.Errorf("events[0] = %+v, want content event for %q", events[0], "x")
	}
	if !events[1].Done || events[1].Delta != "" || events[1].Err != nil {
		t.Errorf("events[1] = %+v, want clean terminal event", events[1])
	}
	if events[1].Content != "x" {
		t.Errorf("terminal content = %q, want %q", events[1].Content, "x")
	}

	// Chunks after the sentinel are ignored entirely.
	if more := d.Feed([]byte(contentLine("late"))); more != nil {
		t.Errorf("Feed after [DONE] returned %d events, want none", len(more))
	}
}

func TestFeed_DoneSentinelWithDataPrefix(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("data: [DONE]\n"))
	if len(events) != 1 || !events[0].Done {
		t.Fatalf("events = %+v, want a single terminal event", events)
	}
}

func TestFeed_MalformedLineSkipped(t *testing.T) {
	stream := contentLine("A") + "garbage that is not json\n" + contentLine("B")
	d := NewDecoder()
	events := d.Feed([]byte(stream))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Content != "A" {
		t.Errorf("events[0].Content = %q, want %q", events[0].Content, "A")
	}
	if events[1].Content != "AB" {
		t.Errorf("events[1].Content = %q, want %q", events[1].Content, "AB")
	}
}

func TestFeed_BlankAndContentlessLinesProduceNoEvents(t *testing.T) {
	stream := "\n" +
		"   \n" +
		`data: {"choices":[{"delta":{}}]}` + "\n" +
		`data: {"choices":[]}` + "\n" +
		`data: {"id":"only-metadata"}` + "\n"
	d := NewDecoder()
	if events := d.Feed([]byte(stream)); len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestFeed_PartialJSONAcrossChunks(t *testing.T) {
	line := contentLine("split me")
	d := NewDecoder()

	// First half ends mid-object; no event yet.
	if events := d.Feed([]byte(line[:len(line)/2])); len(events) != 0 {
		t.Fatalf("partial chunk produced %d events, want 0", len(events))
	}
	events := d.Feed([]byte(line[len(line)/2:]))
	if len(events) != 1 || events[0].Delta != "split me" {
		t.Fatalf("events = %+v, want one event with delta %q", events, "split me")
	}
}

func TestFeed_PrefixlessJSONLine(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte(`{"choices":[{"delta":{"content":"raw"}}]}` + "\n"))
	if len(events) != 1 || events[0].Delta != "raw" {
		t.Fatalf("events = %+v, want one event with delta %q", events, "raw")
	}
}

func TestClose_EmitsTerminalOnce(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte(contentLine("hi")))

	ev, ok := d.Close()
	if !ok {
		t.Fatal("Close() reported already-terminated stream")
	}
	if !ev.Done || ev.Delta != "" || ev.Content != "hi" || ev.Err != nil {
		t.Errorf("terminal event = %+v", ev)
	}

	if _, ok := d.Close(); ok {
		t.Error("second Close() emitted another terminal event")
	}
}

func TestFail_CarriesError(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte(contentLine("partial")))

	cause := errors.New("connection reset")
	ev, ok := d.Fail(cause)
	if !ok {
		t.Fatal("Fail() reported already-terminated stream")
	}
	if !ev.Done || !errors.Is(ev.Err, cause) {
		t.Errorf("terminal event = %+v, want Done with wrapped cause", ev)
	}
	if ev.Content != "partial" {
		t.Errorf("terminal content = %q, want partial content preserved", ev.Content)
	}

	if _, ok := d.Fail(cause); ok {
		t.Error("Fail() after termination emitted another event")
	}
}
