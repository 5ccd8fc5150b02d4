package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
)

func TestNewSelectsProvider(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		e, err := New(&config.Settings{
			EmbeddingProvider: config.EmbeddingProviderOpenAI,
			OpenAIAPIKey:      "sk-test",
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultOpenAIModel, e.Model())
		assert.Equal(t, DimensionOpenAISmall, e.Dimension())
	})

	t.Run("openai large model dimension", func(t *testing.T) {
		e, err := New(&config.Settings{
			EmbeddingProvider: config.EmbeddingProviderOpenAI,
			OpenAIAPIKey:      "sk-test",
			EmbeddingModel:    "text-embedding-3-large",
		})
		require.NoError(t, err)
		assert.Equal(t, DimensionOpenAILarge, e.Dimension())
	})

	t.Run("openai requires key", func(t *testing.T) {
		_, err := New(&config.Settings{EmbeddingProvider: config.EmbeddingProviderOpenAI})
		assert.Error(t, err)
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		e, err := New(&config.Settings{EmbeddingProvider: config.EmbeddingProviderOllama})
		require.NoError(t, err)
		assert.Equal(t, DefaultOllamaModel, e.Model())
		assert.Equal(t, DimensionNomic, e.Dimension())
	})

	t.Run("google requires key", func(t *testing.T) {
		_, err := New(&config.Settings{EmbeddingProvider: config.EmbeddingProviderGoogle})
		assert.Error(t, err)

		e, err := New(&config.Settings{
			EmbeddingProvider: config.EmbeddingProviderGoogle,
			GoogleAPIKey:      "g-test",
		})
		require.NoError(t, err)
		assert.Equal(t, DimensionGoogle, e.Dimension())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(&config.Settings{EmbeddingProvider: "bedrock"})
		assert.Error(t, err)
	})
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req["input"])

		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	e, err := New(&config.Settings{
		EmbeddingProvider: config.EmbeddingProviderOpenAI,
		OpenAIAPIKey:      "sk-test",
		OpenAIBaseURL:     srv.URL,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])
		assert.Equal(t, "hello", req["prompt"])

		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	e, err := New(&config.Settings{
		EmbeddingProvider: config.EmbeddingProviderOllama,
		OllamaBaseURL:     srv.URL,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestGoogleEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/text-embedding-004:embedContent", r.URL.Path)
		assert.Equal(t, "g-test", r.Header.Get("x-goog-api-key"))
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.5,0.6]}}`))
	}))
	defer srv.Close()

	e, err := New(&config.Settings{
		EmbeddingProvider: config.EmbeddingProviderGoogle,
		GoogleAPIKey:      "g-test",
	}, WithBaseURL(srv.URL))
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vec)
}

func TestEmbedStatusClassification(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	e, err := New(&config.Settings{
		EmbeddingProvider: config.EmbeddingProviderOllama,
		OllamaBaseURL:     srv.URL,
	})
	require.NoError(t, err)

	status = http.StatusTooManyRequests
	_, err = e.Embed(context.Background(), "x")
	assert.True(t, llm.IsTransient(err))

	status = http.StatusInternalServerError
	_, err = e.Embed(context.Background(), "x")
	assert.True(t, llm.IsTransient(err))

	status = http.StatusUnauthorized
	_, err = e.Embed(context.Background(), "x")
	assert.True(t, llm.IsFatal(err))

	status = http.StatusBadRequest
	_, err = e.Embed(context.Background(), "x")
	assert.True(t, llm.IsFatal(err))
}

func TestEmbedEmptyResponseIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	e, err := New(&config.Settings{
		EmbeddingProvider: config.EmbeddingProviderOllama,
		OllamaBaseURL:     srv.URL,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	assert.True(t, llm.IsTransient(err))
}
