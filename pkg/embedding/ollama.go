package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
)

type ollamaEmbedder struct {
	httpEmbedder
}

func newOllama(cfg *config.Settings, opts ...Option) (Embedder, error) {
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultOllamaModel
	}
	// Only the Nomic family has a known dimension; anything else is assumed
	// to match it until the collection check says otherwise.
	dim := DimensionNomic

	e := &ollamaEmbedder{httpEmbedder{
		provider:  config.EmbeddingProviderOllama,
		model:     model,
		dimension: dim,
		baseURL:   strings.TrimSuffix(cfg.OllamaBaseURL, "/"),
		client:    &http.Client{Timeout: defaultTimeout},
	}}
	for _, opt := range opts {
		opt(&e.httpEmbedder)
	}
	return e, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, llm.NewFatalError(err)
	}

	respBody, err := e.post(ctx, e.baseURL+"/api/embeddings", body, nil)
	if err != nil {
		return nil, err
	}

	var parsed ollamaEmbeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("parsing ollama embedding response: %w", err))
	}
	if len(parsed.Embedding) == 0 {
		return nil, llm.NewTransientError(errors.New("ollama returned no embedding"))
	}
	return parsed.Embedding, nil
}
