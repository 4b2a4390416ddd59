// Package ai holds the generative reply providers used by SmartAI actions.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrEmptyReply = errors.New("provider returned no text")
	ErrNoAPIKey   = errors.New("no API key configured")
)

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Message)
}

// callerFault reports errors caused by the request or its credentials rather
// than by the provider. Rate limiting is the provider's fault.
func callerFault(err error) bool {
	if errors.Is(err, ErrNoAPIKey) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role    string
	Content string
}

type Request struct {
	SystemPrompt string
	UserText     string
	History      []Turn
	// APIKey overrides the provider's configured key when set.
	APIKey string
}

type Provider interface {
	Name() string
	GenerateReply(ctx context.Context, req Request) (string, error)
}

// Flatten renders a system prompt, prior turns and the new message into a
// single prompt for providers used without chat history.
func Flatten(systemPrompt string, history []Turn, userText string) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s: %s", RoleUser, userText)
	return b.String()
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
