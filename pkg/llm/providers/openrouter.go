package providers

import (
	"net/http"

	"github.com/docpipe/docpipe/pkg/llm"
)

// OpenRouterProvider reuses the OpenAI-compatible wire format and adds
// bearer-token authentication.
type OpenRouterProvider struct {
	OllamaProvider
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

func (p *OpenRouterProvider) SetHeaders(req *http.Request, ep llm.Endpoint) {
	req.Header.Set("Authorization", "Bearer "+ep.APIKey)
}

func init() {
	llm.RegisterProvider(&OpenRouterProvider{})
}
