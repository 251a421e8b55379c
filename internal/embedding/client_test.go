package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhaoo/catgpt/internal/retrieval"
)

func embeddingServer(t *testing.T, vectors map[string][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vec, ok := vectors[req.Input]
		if !ok {
			http.Error(w, "unknown input", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	}))
}

func TestEmbed(t *testing.T) {
	srv := embeddingServer(t, map[string][]float32{"hello": {0.1, 0.2, 0.3}})
	defer srv.Close()

	c := NewClient("k", srv.URL, "")
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbed_DimensionPinnedAfterFirstCall(t *testing.T) {
	srv := embeddingServer(t, map[string][]float32{
		"a": {1, 2, 3},
		"b": {1, 2},
	})
	defer srv.Close()

	c := NewClient("k", srv.URL, "")
	if _, err := c.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("first Embed: %v", err)
	}

	_, err := c.Embed(context.Background(), "b")
	if !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "")
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Error("Embed succeeded against a failing server")
	}
}

func TestEmbed_EmptyVectorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "")
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Error("Embed accepted a response with no vector")
	}
}

func TestEmbed_SendsModelAndAuth(t *testing.T) {
	var gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1}}},
		})
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, "custom-model")
	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotModel != "custom-model" {
		t.Errorf("model = %q", gotModel)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
}
