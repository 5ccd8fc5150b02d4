// Package providers contains the concrete LLM provider adapters. Importing
// this package registers every adapter with the llm registry.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docpipe/docpipe/pkg/llm"
)

// openAIRequest is the chat-completions wire format shared by every
// OpenAI-compatible endpoint.
type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OllamaProvider talks to a local Ollama server through its
// OpenAI-compatible chat endpoint. No authentication is required.
type OllamaProvider struct{}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) BuildURL(ep llm.Endpoint) string {
	return strings.TrimSuffix(ep.BaseURL, "/") + "/v1/chat/completions"
}

func (p *OllamaProvider) SetHeaders(req *http.Request, ep llm.Endpoint) {
}

func (p *OllamaProvider) BuildRequestBody(ep llm.Endpoint, prompt string) ([]byte, error) {
	return json.Marshal(openAIRequest{
		Model:    ep.Model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	})
}

func (p *OllamaProvider) ParseResponse(body []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("response contains no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}
