package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
)

const googleBaseURL = "https://generativelanguage.googleapis.com"

type googleEmbedder struct {
	httpEmbedder
}

func newGoogle(cfg *config.Settings, opts ...Option) (Embedder, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required for the google embedding provider")
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultGoogleModel
	}

	e := &googleEmbedder{httpEmbedder{
		provider:  config.EmbeddingProviderGoogle,
		model:     model,
		dimension: DimensionGoogle,
		baseURL:   googleBaseURL,
		apiKey:    cfg.GoogleAPIKey,
		client:    &http.Client{Timeout: defaultTimeout},
	}}
	for _, opt := range opts {
		opt(&e.httpEmbedder)
	}
	return e, nil
}

type googleEmbeddingRequest struct {
	Content googleContent `json:"content"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleEmbeddingResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (e *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(googleEmbeddingRequest{
		Content: googleContent{Parts: []googlePart{{Text: text}}},
	})
	if err != nil {
		return nil, llm.NewFatalError(err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent", e.baseURL, e.model)
	respBody, err := e.post(ctx, url, body, func(req *http.Request) {
		req.Header.Set("x-goog-api-key", e.apiKey)
	})
	if err != nil {
		return nil, err
	}

	var parsed googleEmbeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("parsing google embedding response: %w", err))
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, llm.NewTransientError(errors.New("google returned no embedding"))
	}
	return parsed.Embedding.Values, nil
}
