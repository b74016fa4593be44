// Package llm talks to an OpenAI-compatible chat-completions endpoint with
// bounded retry and exponential backoff.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"TweetDigest/internal/domain"
	"TweetDigest/internal/ports"
)

// SummaryError reports a completion call that failed for good: a
// non-retryable response, an empty completion, or exhausted retries.
type SummaryError struct {
	Status int // HTTP status when applicable, 0 otherwise
	Err    error
}

func (e *SummaryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("summarization call failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("summarization call failed: %v", e.Err)
}

func (e *SummaryError) Unwrap() error { return e.Err }

// Client implements ports.Summarizer against a chat-completions API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxAttempts uint64
	baseBackoff time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.Summarizer = (*Client)(nil)

// Options configures the client; zero values fall back to safe defaults.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
	Logger      *slog.Logger
}

// NewClient builds a reusable completion client.
func NewClient(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxAttempts: uint64(opts.MaxAttempts),
		baseBackoff: opts.BaseBackoff,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		logger:      opts.Logger,
	}
}

type completionRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize posts the messages and returns the first choice's content.
// Connection failures, timeouts, and 429 responses are retried with
// exponentially doubling backoff; every other non-2xx status and an empty
// completion fail immediately. The backoff schedule is reset per call.
func (c *Client) Summarize(ctx context.Context, messages []domain.Message) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", &SummaryError{Err: errors.New("summarizer misconfigured: base URL and API key are required")}
	}

	body, err := json.Marshal(completionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	backoff := retry.WithMaxRetries(c.maxAttempts-1, retry.NewExponential(c.baseBackoff))

	var content string
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		text, callErr := c.call(ctx, body)
		if callErr != nil {
			return callErr
		}
		content = text
		return nil
	})
	if err != nil {
		var se *SummaryError
		if !errors.As(err, &se) {
			err = &SummaryError{Err: err}
		}
		return "", err
	}

	return content, nil
}

func (c *Client) call(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection failure or timeout: transient.
		c.logger.Warn("completion request failed, will retry", "error", err)
		return "", retry.RetryableError(fmt.Errorf("post completion: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		detail := readDetail(resp.Body)
		c.logger.Warn("completion rate limited, will retry", "detail", detail)
		return "", retry.RetryableError(fmt.Errorf("rate limited: %s", detail))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SummaryError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s: %s", resp.Status, readDetail(resp.Body)),
		}
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &SummaryError{Err: fmt.Errorf("decode completion response: %w", err)}
	}

	if len(parsed.Choices) == 0 {
		return "", &SummaryError{Err: errors.New("completion returned no choices")}
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &SummaryError{Err: errors.New("completion returned empty content")}
	}

	return content, nil
}

func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 1024))
	detail := strings.TrimSpace(string(raw))
	if detail == "" {
		return "(empty body)"
	}
	return detail
}
