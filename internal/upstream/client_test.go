package upstream

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChatCompletions_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-or-v1-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClientFor(srv.URL, "", discardLogger())

	resp, err := client.ChatCompletions(context.Background(), "sk-or-v1-key", []byte(`{}`))
	require.NoError(t, err)
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestChatCompletions_GzipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`{"compressed":"gzip"}`))
		_ = gz.Close()
	}))
	defer srv.Close()

	client := NewClientFor(srv.URL, "", discardLogger())

	resp, err := client.ChatCompletions(context.Background(), "k", nil)
	require.NoError(t, err)
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"compressed":"gzip"}`, string(body))
}

func TestChatCompletions_BrotliBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")

		br := brotli.NewWriter(w)
		_, _ = br.Write([]byte(`{"compressed":"br"}`))
		_ = br.Close()
	}))
	defer srv.Close()

	client := NewClientFor(srv.URL, "", discardLogger())

	resp, err := client.ChatCompletions(context.Background(), "k", nil)
	require.NoError(t, err)
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"compressed":"br"}`, string(body))
}

func TestChatCompletions_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClientFor(srv.URL, "", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ChatCompletions(ctx, "k", nil)
	assert.Error(t, err)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"data":[{"id":"openai/gpt-4o","name":"GPT-4o"}]}`))
	}))
	defer srv.Close()

	client := NewClientFor("", srv.URL, discardLogger())

	listing, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Data, 1)
	assert.Equal(t, "openai/gpt-4o", listing.Data[0].ID)
}

func TestListModels_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClientFor("", srv.URL, discardLogger())

	_, err := client.ListModels(context.Background())
	assert.Error(t, err)
}
