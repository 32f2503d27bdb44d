package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
)

// Message roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a provider-independent chat completion call
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Provider is a hosted or local chat completion model
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

var (
	// ErrTimeout is returned when a completion call misses its deadline.
	// It is retryable.
	ErrTimeout = errors.New("completion timed out")
	// ErrEmptyResponse is returned when a provider answers with no text
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// IsRetryable reports whether err is worth retrying: timeouts, rate limits,
// server errors and network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if code, ok := statusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}
	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return ollamaErr.StatusCode, true
	}
	return 0, false
}
