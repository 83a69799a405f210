package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"
	defaultGroqURL   = "https://api.groq.com/openai/v1/chat/completions"
)

// OpenAI implements the Generator interface for OpenAI's chat completions
// API and for services that speak the same protocol (Groq).
type OpenAI struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(model string, log *slog.Logger) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	baseURL := os.Getenv("PRSUM_OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		name:    "openai",
		apiKey:  key,
		model:   model,
		baseURL: baseURL,
		client:  defaultClient(),
		log:     log,
	}, nil
}

// NewGroq creates a provider for Groq's OpenAI-compatible endpoint. The key
// is read from GROQ_API_KEY, falling back to LLM_API_KEY.
func NewGroq(model string, log *slog.Logger) (*OpenAI, error) {
	key := os.Getenv("GROQ_API_KEY")
	if key == "" {
		key = os.Getenv("LLM_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("GROQ_API_KEY (or LLM_API_KEY) environment variable is not set")
	}
	baseURL := os.Getenv("PRSUM_GROQ_BASE_URL")
	if baseURL == "" {
		baseURL = defaultGroqURL
	}
	return &OpenAI{
		name:    "groq",
		apiKey:  key,
		model:   model,
		baseURL: baseURL,
		client:  defaultClient(),
		log:     log,
	}, nil
}

func (o *OpenAI) Name() string {
	if o.name == "" {
		return "openai"
	}
	return o.name
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return chatCompletion(ctx, o.client, orDiscard(o.log), o.baseURL, headers, o.model, req)
}

// chatCompletion runs req against an OpenAI-style /chat/completions endpoint.
func chatCompletion(ctx context.Context, client *http.Client, log *slog.Logger, url string, headers map[string]string, model string, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	var messages []openaiMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.UserPrompt})

	body := openaiRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp Response
	attempts, err := withRetry(ctx, log, req.Timeout, func(ctx context.Context) error {
		respBody, err := postJSON(ctx, client, url, headers, payload)
		if err != nil {
			return err
		}

		var result openaiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		if result.Choices[0].Message.Content == "" {
			return fmt.Errorf("empty text content in API response")
		}

		resp = Response{
			Content:    result.Choices[0].Message.Content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})
	resp.Attempts = attempts

	return resp, err
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}
