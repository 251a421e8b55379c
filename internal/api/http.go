// Package api exposes the assistant over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhaoo/catgpt/internal/ingest"
	"github.com/zhaoo/catgpt/internal/llm"
	"github.com/zhaoo/catgpt/internal/loader"
	"github.com/zhaoo/catgpt/internal/retrieval"
	"github.com/zhaoo/catgpt/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Completer issues completion requests, streaming and non-streaming.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
	Stream(ctx context.Context, messages []llm.Message, opts llm.Options) *llm.Stream
}

// Asker answers a question grounded in retrieved context.
type Asker interface {
	Ask(ctx context.Context, question string, opts llm.Options) (retrieval.Answer, error)
}

// Ingestor runs the ingestion pipeline for one source.
type Ingestor interface {
	Ingest(ctx context.Context, src loader.Source) (ingest.Result, error)
}

// Registry is the persistent record of sources and answered questions.
type Registry interface {
	ListSources(limit int) ([]storage.Source, error)
	SaveInteraction(i storage.Interaction) error
}

// Deps holds the collaborators the HTTP layer serves.
type Deps struct {
	Completer Completer
	Chain     Asker
	Ingest    Ingestor
	Registry  Registry
	Logger    *slog.Logger
}

// NewHandler returns the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Post("/v1/chat/completions", handleChatCompletions(deps))
	r.Post("/v1/ask", handleAsk(deps))
	r.Post("/v1/ingest", handleIngest(deps))
	r.Get("/v1/sources", handleSources(deps))
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func (req *chatCompletionRequest) options() llm.Options {
	return llm.Options{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// toMessages validates roles against the closed set and converts.
func toMessages(in []chatMessage) ([]llm.Message, error) {
	out := make([]llm.Message, len(in))
	for i, m := range in {
		switch llm.Role(m.Role) {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			out[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content}
		default:
			return nil, fmt.Errorf("unknown role %q", m.Role)
		}
	}
	return out, nil
}

func handleChatCompletions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}
		messages, err := toMessages(req.Messages)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if req.Stream {
			streamCompletion(w, r, deps, messages, req.options())
			return
		}

		content, err := deps.Completer.Complete(r.Context(), messages, req.options())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}
}

// streamCompletion relays stream events as server-sent events. The client
// dropping the connection cancels the upstream request through r.Context().
func streamCompletion(w http.ResponseWriter, r *http.Request, deps Deps, messages []llm.Message, opts llm.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := deps.Completer.Stream(r.Context(), messages, opts)
	for ev := range stream.Events() {
		if ev.Done {
			if ev.Err != nil {
				deps.Logger.Error("stream failed", "error", ev.Err)
				payload, err := json.Marshal(map[string]any{
					"error": map[string]any{"message": ev.Err.Error(), "type": "api_error"},
				})
				if err == nil {
					fmt.Fprintf(w, "data: %s\n\n", payload)
					flusher.Flush()
				}
				return
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}

		payload, err := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": ev.Delta}},
			},
		})
		if err != nil {
			deps.Logger.Error("marshaling stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

type askRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"`
}

type askResponse struct {
	Answer string     `json:"answer"`
	Chunks []askChunk `json:"chunks"`
}

type askChunk struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		answer, err := deps.Chain.Ask(r.Context(), req.Question, llm.Options{Model: req.Model})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "answering failed: %v", err)
			return
		}

		recordInteraction(deps, req.Question, answer)

		resp := askResponse{Answer: answer.Content, Chunks: make([]askChunk, len(answer.Chunks))}
		for i, c := range answer.Chunks {
			resp.Chunks[i] = askChunk{ID: c.ID, Text: c.Chunk.Text, Score: c.Score}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// recordInteraction persists the answered question. History is best effort;
// a failed write never fails the request.
func recordInteraction(deps Deps, question string, answer retrieval.Answer) {
	chunkIDs := make([]string, len(answer.Chunks))
	for i, c := range answer.Chunks {
		chunkIDs[i] = c.ID
	}
	idsJSON, err := json.Marshal(chunkIDs)
	if err != nil {
		deps.Logger.Error("marshaling chunk ids", "error", err)
		return
	}
	err = deps.Registry.SaveInteraction(storage.Interaction{
		ID:       uuid.NewString(),
		Question: question,
		Answer:   answer.Content,
		ChunkIDs: string(idsJSON),
	})
	if err != nil {
		deps.Logger.Error("saving interaction", "error", err)
	}
}

type ingestRequest struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		kind, err := loader.ParseKind(req.Kind)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.Location == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "location is required")
			return
		}

		result, err := deps.Ingest.Ingest(r.Context(), loader.Source{Kind: kind, Location: req.Location})
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "ingest_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"source_id": result.SourceID,
			"documents": result.Documents,
			"chunks":    result.Chunks,
		})
	}
}

func handleSources(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Registry.ListSources(100)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing sources: %v", err)
			return
		}
		if sources == nil {
			sources = []storage.Source{}
		}

		type sourceEntry struct {
			ID        string `json:"id"`
			Kind      string `json:"kind"`
			Location  string `json:"location"`
			Chunks    int    `json:"chunks"`
			CreatedAt string `json:"created_at"`
		}
		entries := make([]sourceEntry, len(sources))
		for i, s := range sources {
			entries[i] = sourceEntry{
				ID:        s.ID,
				Kind:      s.Kind,
				Location:  s.Location,
				Chunks:    s.Chunks,
				CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
