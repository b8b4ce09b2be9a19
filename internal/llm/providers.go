// CLAUDE:SUMMARY Factory that builds a multi-provider LLM Client from config (activates only providers with API keys)
package llm

import "github.com/har5h1l/wellnessgrid/internal/config"

// NewFromConfig creates a multi-provider LLM client from the application
// config. Only providers with configured API keys are activated; the order
// below is the fallback priority order (cost/quality preference).
func NewFromConfig(cfg config.LLMConfig) *Client {
	var providers []Provider

	if cfg.GeminiAPIKey != "" {
		providers = append(providers, NewGeminiProvider(cfg.GeminiAPIKey))
	}

	if cfg.GroqAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			APIKey:       cfg.GroqAPIKey,
			Models:       []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
			DefaultModel: "llama-3.3-70b-versatile",
		}))
	}

	if cfg.MistralAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "mistral",
			BaseURL:      "https://api.mistral.ai/v1",
			APIKey:       cfg.MistralAPIKey,
			Models:       []string{"mistral-large-latest", "mistral-small-latest"},
			DefaultModel: "mistral-small-latest",
		}))
	}

	if cfg.OpenRouterKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "openrouter",
			BaseURL:      "https://openrouter.ai/api/v1",
			APIKey:       cfg.OpenRouterKey,
			Models:       []string{"deepseek/deepseek-chat", "meta-llama/llama-3.3-70b-instruct"},
			DefaultModel: "deepseek/deepseek-chat",
		}))
	}

	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicAPIKey))
	}

	if cfg.HuggingFaceKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "huggingface",
			BaseURL:      "https://api-inference.huggingface.co/models",
			APIKey:       cfg.HuggingFaceKey,
			Models:       []string{"meta-llama/Llama-3.3-70B-Instruct", "BioMistral/BioMistral-7B"},
			DefaultModel: "meta-llama/Llama-3.3-70B-Instruct",
		}))
	}

	return New(providers)
}
