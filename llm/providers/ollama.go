package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/veridoc/compliscan/llm"
)

// OllamaProvider implements the OpenAI-compatible API used by Ollama, vLLM, etc.
// It shares the OpenAI request/response format but defaults to a local URL.
type OllamaProvider struct {
	OpenAIProvider // Embed for shared request/response format
}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds an API key if one is configured (for OpenRouter, vLLM, etc.).
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
