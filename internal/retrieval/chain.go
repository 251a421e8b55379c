package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zhaoo/catgpt/internal/llm"
)

// DefaultTopK is the number of context chunks retrieved per question.
const DefaultTopK = 4

// Completer is the completion capability the chain needs. *llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// Answer is a chain result: the model's reply plus the chunks it was
// grounded on. Chunks is empty when the store had nothing relevant.
type Answer struct {
	Content string
	Chunks  []ScoredRecord
}

// Chain answers questions grounded in retrieved context.
type Chain struct {
	completer Completer
	retriever *Retriever
	topK      int
	logger    *slog.Logger
}

// NewChain creates a Chain. topK <= 0 falls back to DefaultTopK.
func NewChain(completer Completer, retriever *Retriever, topK int, logger *slog.Logger) *Chain {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{completer: completer, retriever: retriever, topK: topK, logger: logger}
}

// Ask retrieves context for the question and asks the model to answer from
// it. With no retrievable context the question goes to the model ungrounded.
func (c *Chain) Ask(ctx context.Context, question string, opts llm.Options) (Answer, error) {
	chunks, err := c.retriever.Retrieve(ctx, question, c.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: question}}
	if len(chunks) > 0 {
		messages = []llm.Message{
			{Role: llm.RoleSystem, Content: groundedPrompt(chunks)},
			{Role: llm.RoleUser, Content: question},
		}
	} else {
		c.logger.Debug("no context retrieved, answering ungrounded")
	}

	content, err := c.completer.Complete(ctx, messages, opts)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Content: content, Chunks: chunks}, nil
}

func groundedPrompt(chunks []ScoredRecord) string {
	var sb strings.Builder
	sb.WriteString("Use the following pieces of context to answer the question. " +
		"If the answer is not in the context, say you don't know instead of making one up.\n\n")
	for _, chunk := range chunks {
		sb.WriteString(chunk.Chunk.Text)
		sb.WriteString("\n---\n")
	}
	return sb.String()
}
