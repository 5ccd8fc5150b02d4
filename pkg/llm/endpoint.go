package llm

import (
	"fmt"

	"github.com/docpipe/docpipe/pkg/config"
)

// Default targets used when the matching environment setting is absent.
const (
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api"
	defaultChutesBaseURL     = "https://llm.chutes.ai"

	defaultOpenRouterModel = "openrouter/auto"
	defaultChutesModel     = "deepseek-ai/DeepSeek-V3"
)

// ResolvePipelineEndpoint maps the pipeline LLM settings onto a concrete
// endpoint. An unrecognized provider selector yields ErrUnknownProvider.
func ResolvePipelineEndpoint(cfg *config.Settings) (Endpoint, error) {
	return resolveEndpoint(cfg, cfg.PipelineLLMProvider, cfg.PipelineLLMModel)
}

// ResolveSynthesizeEndpoint maps the answer-tool LLM settings onto a
// concrete endpoint, falling back to the pipeline settings when unset.
func ResolveSynthesizeEndpoint(cfg *config.Settings) (Endpoint, error) {
	provider := cfg.SynthesizeLLMProvider
	if provider == "" {
		provider = cfg.PipelineLLMProvider
	}
	model := cfg.SynthesizeLLMModel
	if model == "" {
		model = cfg.PipelineLLMModel
	}
	return resolveEndpoint(cfg, provider, model)
}

func resolveEndpoint(cfg *config.Settings, provider, model string) (Endpoint, error) {
	ep := Endpoint{
		Provider: provider,
		Model:    model,
		APIKey:   cfg.PipelineLLMAPIKey(provider),
	}

	switch provider {
	case config.LLMProviderGemini:
		ep.BaseURL = defaultGeminiBaseURL
		if ep.Model == "" {
			ep.Model = cfg.GoogleFallbackModel
		}
	case config.LLMProviderOllama:
		ep.BaseURL = cfg.OllamaBaseURL
		if ep.Model == "" {
			ep.Model = cfg.OllamaModel
		}
	case config.LLMProviderOpenRouter:
		ep.BaseURL = defaultOpenRouterBaseURL
		if ep.Model == "" {
			ep.Model = defaultOpenRouterModel
		}
	case config.LLMProviderChutes:
		ep.BaseURL = defaultChutesBaseURL
		if ep.Model == "" {
			ep.Model = defaultChutesModel
		}
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	if provider != config.LLMProviderOllama && ep.APIKey == "" {
		return Endpoint{}, fmt.Errorf("provider %q requires an API key", provider)
	}
	return ep, nil
}
