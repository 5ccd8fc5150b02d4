package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docpipe/docpipe/pkg/llm"
)

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeminiProvider targets the Google Generative Language generateContent
// endpoint, which uses its own request and response shapes.
type GeminiProvider struct{}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) BuildURL(ep llm.Endpoint) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimSuffix(ep.BaseURL, "/"), ep.Model)
}

func (p *GeminiProvider) SetHeaders(req *http.Request, ep llm.Endpoint) {
	req.Header.Set("x-goog-api-key", ep.APIKey)
}

func (p *GeminiProvider) BuildRequestBody(ep llm.Endpoint, prompt string) ([]byte, error) {
	return json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
}

func (p *GeminiProvider) ParseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("response contains no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func init() {
	llm.RegisterProvider(&GeminiProvider{})
}
