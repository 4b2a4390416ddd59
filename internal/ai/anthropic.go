package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicURL = "https://api.anthropic.com/v1"

// Anthropic is the fallback messages-API provider.
type Anthropic struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{APIKey: apiKey, Model: model, BaseURL: anthropicURL, HTTPClient: defaultHTTPClient()}
}

func (a *Anthropic) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateReply ignores Request.APIKey; the per-user override only applies
// to the primary provider.
func (a *Anthropic) GenerateReply(ctx context.Context, req Request) (string, error) {
	if a.APIKey == "" {
		return "", fmt.Errorf("anthropic: %w", ErrNoAPIKey)
	}

	msgs := make([]chatMessage, 0, len(req.History)+1)
	for _, t := range req.History {
		msgs = append(msgs, chatMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: RoleUser, Content: req.UserText})

	payload, err := json.Marshal(messagesRequest{
		Model:     a.Model,
		MaxTokens: 300,
		System:    req.SystemPrompt,
		Messages:  msgs,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}

	var result messagesResponse
	if err := json.Unmarshal(body, &result); err != nil && resp.StatusCode < 400 {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := string(body)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return "", &APIError{Provider: "anthropic", StatusCode: resp.StatusCode, Message: msg}
	}

	var b strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
