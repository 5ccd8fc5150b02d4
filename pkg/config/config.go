// Package config loads runtime settings from the environment and the
// optional crawl-filter configuration file.
//
// Settings are resolved once at startup and passed around as an immutable
// snapshot; components never read environment variables mid-run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Provider selector values recognized for the pipeline LLM.
const (
	LLMProviderGemini     = "gemini"
	LLMProviderOllama     = "ollama"
	LLMProviderOpenRouter = "openrouter"
	LLMProviderChutes     = "chutes"
)

// Provider selector values recognized for embeddings.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderOllama = "ollama"
	EmbeddingProviderGoogle = "google"
)

// Tunable defaults and bounds.
const (
	DefaultBrowserPoolSize = 5
	MaxBrowserPoolSize     = 50
	DefaultLLMConcurrency  = 3
	DefaultQdrantBatchSize = 100
)

// Settings is the immutable runtime configuration snapshot.
type Settings struct {
	HTTPPort string
	DataDir  string
	WorkDir  string
	LogLevel string

	// FilterConfigPath points at an optional YAML file overriding the
	// built-in crawl filter sets. Empty means defaults only.
	FilterConfigPath string

	VectorStoreURL    string
	VectorStoreAPIKey string
	VectorCollection  string

	EmbeddingProvider string
	EmbeddingModel    string

	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OllamaBaseURL       string
	OllamaModel         string
	GoogleAPIKey        string
	GoogleFallbackModel string

	PipelineLLMProvider string
	PipelineLLMModel    string
	GeminiAPIKey        string
	OpenRouterAPIKey    string
	ChutesAPIKey        string

	SynthesizeLLMProvider string
	SynthesizeLLMModel    string

	WebSearchAPIKey  string
	WebSearchBaseURL string

	BrowserPoolSize int
	LLMConcurrency  int
	QdrantBatchSize int
}

// LoadFromEnv resolves Settings from the process environment, applying
// defaults and clamping the concurrency tunables into their allowed ranges.
func LoadFromEnv() (*Settings, error) {
	s := &Settings{
		HTTPPort:         getEnv("DOCPIPE_PORT", "8080"),
		DataDir:          getEnv("DOCPIPE_DATA_DIR", "./data"),
		WorkDir:          getEnv("DOCPIPE_WORK_DIR", "."),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		FilterConfigPath: os.Getenv("DOCPIPE_FILTER_CONFIG"),

		VectorStoreURL:    os.Getenv("VECTOR_STORE_URL"),
		VectorStoreAPIKey: os.Getenv("VECTOR_STORE_API_KEY"),
		VectorCollection:  getEnv("VECTOR_COLLECTION", "documentation"),

		EmbeddingProvider: os.Getenv("EMBEDDING_PROVIDER"),
		EmbeddingModel:    os.Getenv("EMBEDDING_MODEL"),

		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "llama3.1"),
		GoogleAPIKey:        os.Getenv("GOOGLE_API_KEY"),
		GoogleFallbackModel: getEnv("GOOGLE_FALLBACK_MODEL", "gemini-2.0-flash"),

		PipelineLLMProvider: getEnv("PIPELINE_LLM_PROVIDER", LLMProviderGemini),
		PipelineLLMModel:    os.Getenv("PIPELINE_LLM_MODEL"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		OpenRouterAPIKey:    os.Getenv("OPENROUTER_API_KEY"),
		ChutesAPIKey:        os.Getenv("CHUTES_API_KEY"),

		SynthesizeLLMProvider: os.Getenv("SYNTHESIZE_LLM_PROVIDER"),
		SynthesizeLLMModel:    os.Getenv("SYNTHESIZE_LLM_MODEL"),

		WebSearchAPIKey:  os.Getenv("WEB_SEARCH_API_KEY"),
		WebSearchBaseURL: getEnv("WEB_SEARCH_BASE_URL", "https://api.search.brave.com"),

		BrowserPoolSize: clampInt(getEnvInt("BROWSER_POOL_SIZE", DefaultBrowserPoolSize), 1, MaxBrowserPoolSize),
		LLMConcurrency:  maxInt(getEnvInt("LLM_CONCURRENCY", DefaultLLMConcurrency), 1),
		QdrantBatchSize: maxInt(getEnvInt("QDRANT_BATCH_SIZE", DefaultQdrantBatchSize), 1),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.VectorStoreURL == "" {
		return NewValidationError("settings", "environment", "VECTOR_STORE_URL", ErrMissingRequiredField)
	}
	switch s.EmbeddingProvider {
	case EmbeddingProviderOpenAI, EmbeddingProviderOllama, EmbeddingProviderGoogle:
	case "":
		return NewValidationError("settings", "environment", "EMBEDDING_PROVIDER", ErrMissingRequiredField)
	default:
		return NewValidationError("settings", "environment", "EMBEDDING_PROVIDER",
			fmt.Errorf("%w: %q", ErrInvalidValue, s.EmbeddingProvider))
	}
	return nil
}

// PipelineLLMAPIKey returns the credential matching the pipeline provider
// selector. Ollama runs without a key.
func (s *Settings) PipelineLLMAPIKey(provider string) string {
	switch strings.ToLower(provider) {
	case LLMProviderGemini:
		if s.GeminiAPIKey != "" {
			return s.GeminiAPIKey
		}
		return s.GoogleAPIKey
	case LLMProviderOpenRouter:
		return s.OpenRouterAPIKey
	case LLMProviderChutes:
		return s.ChutesAPIKey
	default:
		return ""
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func clampInt(n, low, high int) int {
	if n < low {
		return low
	}
	if n > high {
		return high
	}
	return n
}

func maxInt(n, low int) int {
	if n < low {
		return low
	}
	return n
}
