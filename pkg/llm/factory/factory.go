package factory

import (
	"fmt"

	"rag-chat-be/pkg/embedding"
	"rag-chat-be/pkg/llm"
	"rag-chat-be/pkg/llm/ollama"
	"rag-chat-be/pkg/llm/openai"
)

type LLMConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	ApiKey      string
	Temperature float64
}

func NewLLMProvider(cfg LLMConfig) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model, cfg.Temperature), nil
	case "openai", "":
		return openai.NewProvider(cfg.ApiKey, cfg.BaseURL, cfg.Model, cfg.Temperature), nil
	case "huggingface":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openai.HuggingFaceBaseURL
		}
		return openai.NewProvider(cfg.ApiKey, baseURL, cfg.Model, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

type EmbeddingConfig struct {
	Provider string
	Model    string
	BaseURL  string
	ApiKey   string
}

func NewEmbeddingProvider(cfg EmbeddingConfig) (embedding.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai", "":
		return embedding.NewOpenAIProvider(cfg.ApiKey, cfg.BaseURL, cfg.Model), nil
	case "jina":
		baseURL, model := cfg.BaseURL, cfg.Model
		if baseURL == "" {
			baseURL = embedding.JinaBaseURL
		}
		if model == "" {
			model = embedding.JinaModel
		}
		return embedding.NewOpenAIProvider(cfg.ApiKey, baseURL, model), nil
	case "ollama":
		return embedding.NewOllamaProvider(cfg.BaseURL, cfg.Model), nil
	case "gemini":
		return embedding.NewGeminiProvider(cfg.ApiKey), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
