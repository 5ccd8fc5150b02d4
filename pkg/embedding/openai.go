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

type openAIEmbedder struct {
	httpEmbedder
}

func newOpenAI(cfg *config.Settings, opts ...Option) (Embedder, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for the openai embedding provider")
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultOpenAIModel
	}
	dim := DimensionOpenAISmall
	if strings.Contains(model, "3-large") {
		dim = DimensionOpenAILarge
	}

	e := &openAIEmbedder{httpEmbedder{
		provider:  config.EmbeddingProviderOpenAI,
		model:     model,
		dimension: dim,
		baseURL:   strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		apiKey:    cfg.OpenAIAPIKey,
		client:    &http.Client{Timeout: defaultTimeout},
	}}
	for _, opt := range opts {
		opt(&e.httpEmbedder)
	}
	return e, nil
}

type openAIEmbeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, llm.NewFatalError(err)
	}

	respBody, err := e.post(ctx, e.baseURL+"/v1/embeddings", body, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	})
	if err != nil {
		return nil, err
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("parsing openai embedding response: %w", err))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, llm.NewTransientError(errors.New("openai returned no embedding"))
	}
	return parsed.Data[0].Embedding, nil
}
