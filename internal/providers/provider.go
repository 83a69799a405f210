package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Request contains the data sent to an LLM for a single generation.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	// Timeout bounds each attempt. Zero means only ctx applies.
	Timeout time.Duration
}

// Response contains the raw response from an LLM.
type Response struct {
	Content    string
	TokensUsed int
	Attempts   int
}

// Generator is the provider abstraction interface.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514"
	case "openai":
		return "gpt-4o-mini"
	case "groq":
		return "llama-3.3-70b-versatile"
	case "gemini", "google":
		return "gemini-2.0-flash"
	case "ollama", "lmstudio":
		return "llama3.1"
	default:
		return ""
	}
}

// Names lists the accepted provider names.
func Names() []string {
	return []string{"anthropic", "openai", "groq", "gemini", "google", "ollama", "lmstudio"}
}

// New creates a provider by name. An empty model selects DefaultModel.
// A nil logger discards retry diagnostics.
func New(provider, model string, log *slog.Logger) (Generator, error) {
	if model == "" {
		model = DefaultModel(provider)
	}
	log = orDiscard(log).With("provider", provider)

	switch provider {
	case "anthropic":
		return NewAnthropic(model, log)
	case "openai":
		return NewOpenAI(model, log)
	case "groq":
		return NewGroq(model, log)
	case "gemini", "google":
		return NewGemini(model, log)
	case "ollama", "lmstudio":
		return NewOllama(model, log)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

func defaultClient() *http.Client {
	// Per-attempt deadlines come from Request.Timeout; this is only a ceiling.
	return &http.Client{Timeout: 15 * time.Minute}
}

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}
