package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultCloudBaseURL = "https://openrouter.ai/api/v1"
	cloudTimeout        = 60 * time.Second
	maxRetries          = 3
	initialBackoff      = 500 * time.Millisecond
)

// CloudClient talks to an OpenAI-compatible cloud endpoint. It satisfies
// Chatter so the gateway can use it interchangeably with the local Client.
type CloudClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewCloudClient creates a cloud client with the given API key.
func NewCloudClient(apiKey string) *CloudClient {
	return &CloudClient{
		apiKey:  apiKey,
		baseURL: defaultCloudBaseURL,
		httpClient: &http.Client{
			Timeout: cloudTimeout,
		},
		referer: "https://github.com/Jay-Tejada/malunita",
		title:   "malunita",
	}
}

// NewCloudClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewCloudClientWithBaseURL(apiKey, baseURL string) *CloudClient {
	c := NewCloudClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type cloudChatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	ResponseFormat any       `json:"response_format,omitempty"`
}

type cloudChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

// Chat sends a non-streaming chat completion request, retrying with
// exponential backoff when the endpoint rate-limits.
func (c *CloudClient) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	cr := cloudChatRequest{
		Model:    model,
		Messages: messages,
	}
	if jsonSchema != nil {
		cr.ResponseFormat = map[string]any{"type": "json_object"}
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		content, err := c.doChat(ctx, body)
		if err == nil {
			return content, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *CloudClient) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result cloudChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return result.Choices[0].Message.Content, nil
}
