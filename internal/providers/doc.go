// Package providers implements the Generator interface for each supported
// text-generation service.
//
// Supported providers: Anthropic (Claude), OpenAI (GPT), Groq, Google
// (Gemini), and Ollama / LMStudio for local models.
//
// All providers share one retry loop: at most [MaxAttempts] calls, each
// bounded by Request.Timeout. Timeouts, 5xx responses and transport errors
// back off exponentially; 429 responses back off linearly with the attempt
// index; 401/403 responses surface immediately as [*AuthError] and are never
// retried. Use [IsAuthError], [IsRateLimit] and [IsTimeout] to classify the
// error returned by Generate.
//
// Use [New] to obtain a Generator by provider name and model string.
package providers
