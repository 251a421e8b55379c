package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhaoo/catgpt/internal/llm"
)

type mockCompleter struct {
	reply    string
	err      error
	messages []llm.Message
}

func (m *mockCompleter) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	m.messages = messages
	return m.reply, m.err
}

func populatedChain(t *testing.T, completer Completer) *Chain {
	t.Helper()
	emb := &mockEmbedder{vectors: map[string][]float32{
		"how do I deploy?": {1, 0},
		"deploy docs":      {0.9, 0.1},
		"unrelated":        {0, 1},
	}}
	s := NewStore()
	must(t, s.Insert([]Record{
		record("r1", "deploy docs", []float32{0.9, 0.1}),
		record("r2", "unrelated", []float32{0, 1}),
	}))
	return NewChain(completer, NewRetriever(emb, s), 1, nil)
}

func TestAsk_GroundsAnswerInRetrievedContext(t *testing.T) {
	completer := &mockCompleter{reply: "run make deploy"}
	c := populatedChain(t, completer)

	answer, err := c.Ask(context.Background(), "how do I deploy?", llm.Options{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Content != "run make deploy" {
		t.Errorf("content = %q", answer.Content)
	}
	if len(answer.Chunks) != 1 || answer.Chunks[0].ID != "r1" {
		t.Fatalf("chunks = %+v, want the single most similar record", answer.Chunks)
	}

	if len(completer.messages) != 2 {
		t.Fatalf("got %d messages, want system context + user question", len(completer.messages))
	}
	if completer.messages[0].Role != llm.RoleSystem ||
		!strings.Contains(completer.messages[0].Content, "deploy docs") {
		t.Errorf("system message = %+v, want retrieved context embedded", completer.messages[0])
	}
	if completer.messages[1].Role != llm.RoleUser || completer.messages[1].Content != "how do I deploy?" {
		t.Errorf("user message = %+v", completer.messages[1])
	}
}

func TestAsk_EmptyStoreAnswersUngrounded(t *testing.T) {
	completer := &mockCompleter{reply: "generic answer"}
	emb := &mockEmbedder{vectors: map[string][]float32{"q": {1}}}
	c := NewChain(completer, NewRetriever(emb, NewStore()), 0, nil)

	answer, err := c.Ask(context.Background(), "q", llm.Options{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(answer.Chunks) != 0 {
		t.Errorf("chunks = %+v, want none", answer.Chunks)
	}
	if len(completer.messages) != 1 || completer.messages[0].Role != llm.RoleUser {
		t.Errorf("messages = %+v, want bare user question", completer.messages)
	}
}

func TestAsk_EmbedderFailurePropagates(t *testing.T) {
	cause := errors.New("provider down")
	emb := &mockEmbedder{err: cause}
	s := NewStore()
	must(t, s.Insert([]Record{record("r", "text", []float32{1})}))
	c := NewChain(&mockCompleter{}, NewRetriever(emb, s), 0, nil)

	_, err := c.Ask(context.Background(), "q", llm.Options{})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped embedder failure", err)
	}
}

func TestAsk_CompleterFailurePropagates(t *testing.T) {
	cause := errors.New("upstream 500")
	completer := &mockCompleter{err: cause}
	c := populatedChain(t, completer)

	_, err := c.Ask(context.Background(), "how do I deploy?", llm.Options{})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want completion failure", err)
	}
}

func TestRetrieve_EmptyStoreSkipsEmbedder(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("must not be called")}
	r := NewRetriever(emb, NewStore())

	results, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestRetrieve_TopK(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	s := NewStore()
	must(t, s.Insert([]Record{
		record("a", "a", []float32{1, 0}),
		record("b", "b", []float32{0.5, 0.5}),
		record("c", "c", []float32{0, 1}),
	}))
	r := NewRetriever(emb, s)

	results, err := r.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 || results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("results = %v, want a then b", ids(results))
	}
}
