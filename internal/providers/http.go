package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// postJSON sends payload and maps the HTTP outcome onto the typed errors
// that withRetry classifies.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}

	switch code := httpResp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return nil, &RateLimitError{Message: string(respBody)}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, &AuthError{StatusCode: code, Message: string(respBody)}
	case code >= 500:
		return nil, &ServerError{StatusCode: code, Body: string(respBody)}
	case code != http.StatusOK:
		return nil, fmt.Errorf("API error (status %d): %s", code, string(respBody))
	}
	return respBody, nil
}
