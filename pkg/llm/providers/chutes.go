package providers

import (
	"net/http"

	"github.com/docpipe/docpipe/pkg/llm"
)

// ChutesProvider targets the Chutes hosted inference API, which speaks the
// OpenAI-compatible wire format behind bearer-token authentication.
type ChutesProvider struct {
	OllamaProvider
}

func (p *ChutesProvider) Name() string {
	return "chutes"
}

func (p *ChutesProvider) SetHeaders(req *http.Request, ep llm.Endpoint) {
	req.Header.Set("Authorization", "Bearer "+ep.APIKey)
}

func init() {
	llm.RegisterProvider(&ChutesProvider{})
}
