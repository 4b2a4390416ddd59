package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"instaflow/internal/config"
)

// Client talks to the Instagram messaging endpoints of the Graph API. The
// page access token is supplied per call since every connected account has
// its own.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(cfg.GraphAPIURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram API error: %d - %s", e.StatusCode, e.Body)
}

type SenderAction string

const (
	TypingOn  SenderAction = "typing_on"
	TypingOff SenderAction = "typing_off"
	MarkSeen  SenderAction = "mark_seen"
)

// --- Message Structures ---

type Recipient struct {
	ID        string `json:"id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

type SendRequest struct {
	Recipient    Recipient    `json:"recipient"`
	Message      *MessageObj  `json:"message,omitempty"`
	SenderAction SenderAction `json:"sender_action,omitempty"`
}

type MessageObj struct {
	Text         string         `json:"text,omitempty"`
	Attachment   *AttachmentObj `json:"attachment,omitempty"`
	QuickReplies []QuickReply   `json:"quick_replies,omitempty"`
}

type AttachmentObj struct {
	Type    string      `json:"type"`
	Payload TemplateObj `json:"payload"`
}

type TemplateObj struct {
	TemplateType string      `json:"template_type"`
	Text         string      `json:"text,omitempty"`
	Elements     interface{} `json:"elements,omitempty"`
	Buttons      []Button    `json:"buttons,omitempty"`
}

type GenericElement struct {
	Title         string         `json:"title"`
	Subtitle      string         `json:"subtitle,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	DefaultAction *DefaultAction `json:"default_action,omitempty"`
	Buttons       []Button       `json:"buttons,omitempty"`
}

type DefaultAction struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Button types use the lowercase wire names.
const (
	ButtonWebURL   = "web_url"
	ButtonPostback = "postback"
)

type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type productElement struct {
	ID string `json:"id"`
}

type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type IceBreaker struct {
	Question string `json:"question"`
	Payload  string `json:"payload"`
}

type MenuItem struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, path, token string, query url.Values, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	endpoint := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func (c *Client) send(ctx context.Context, token, pageID string, payload SendRequest) error {
	_, err := c.sendRequest(ctx, http.MethodPost, pageID+"/messages", token, nil, payload)
	return err
}

// --- Messaging Methods ---

func (c *Client) SendDirectMessage(ctx context.Context, token, pageID, recipientID, text string) error {
	return c.send(ctx, token, pageID, SendRequest{
		Recipient: Recipient{ID: recipientID},
		Message:   &MessageObj{Text: text},
	})
}

// SendPrivateReply opens a DM thread with the author of a comment.
func (c *Client) SendPrivateReply(ctx context.Context, token, pageID, commentID, text string) error {
	return c.send(ctx, token, pageID, SendRequest{
		Recipient: Recipient{CommentID: commentID},
		Message:   &MessageObj{Text: text},
	})
}

func (c *Client) ReplyToComment(ctx context.Context, token, commentID, text string) error {
	_, err := c.sendRequest(ctx, http.MethodPost, commentID+"/replies", token, nil, map[string]string{"message": text})
	return err
}

func (c *Client) SendCarousel(ctx context.Context, token, pageID, recipientID string, elements []GenericElement) error {
	return c.send(ctx, token, pageID, SendRequest{
		Recipient: Recipient{ID: recipientID},
		Message: &MessageObj{Attachment: &AttachmentObj{
			Type:    "template",
			Payload: TemplateObj{TemplateType: "generic", Elements: elements},
		}},
	})
}

func (c *Client) SendButtonTemplate(ctx context.Context, token, pageID, recipientID, text string, buttons []Button) error {
	return c.send(ctx, token, pageID, SendRequest{
		Recipient: Recipient{ID: recipientID},
		Message: &MessageObj{Attachment: &AttachmentObj{
			Type:    "template",
			Payload: TemplateObj{TemplateType: "button", Text: text, Buttons: buttons},
		}},
	})
}

func (c *Client) SendProductTemplate(ctx context.Context, token, pageID, recipientID string, productIDs []string) error {
	elements := make([]productElement, 0, len(productIDs))
	for _, id := range productIDs {
		elements = append(elements, productElement{ID: id})
	}
	return c.send(ctx, token, pageID, SendRequest{
		Recipient: Recipient{ID: recipientID},
		Message: &MessageObj{Attachment: &AttachmentObj{
			Type:    "template",
			Payload: TemplateObj{TemplateType: "product", Elements: elements},
		}},
	})
}

func (c *Client) SendQuickReplies(ctx context.Context, token, pageID, recipientID, text string, replies []QuickReply) error {
	for i := range replies {
		if replies[i].ContentType == "" {
			replies[i].ContentType = "text"
		}
	}
	return c.send(ctx, token, pageID, SendRequest{
		Recipient: Recipient{ID: recipientID},
		Message:   &MessageObj{Text: text, QuickReplies: replies},
	})
}

func (c *Client) SendSenderAction(ctx context.Context, token, pageID, recipientID string, action SenderAction) error {
	return c.send(ctx, token, pageID, SendRequest{
		Recipient:    Recipient{ID: recipientID},
		SenderAction: action,
	})
}

// --- Profile Methods ---

func (c *Client) SetIceBreakers(ctx context.Context, token string, items []IceBreaker) error {
	body := map[string]interface{}{
		"platform": "instagram",
		"ice_breakers": []map[string]interface{}{
			{"locale": "default", "call_to_actions": items},
		},
	}
	_, err := c.sendRequest(ctx, http.MethodPost, "me/messenger_profile", token, nil, body)
	return err
}

func (c *Client) SetPersistentMenu(ctx context.Context, token string, items []MenuItem) error {
	body := map[string]interface{}{
		"platform": "instagram",
		"persistent_menu": []map[string]interface{}{
			{"locale": "default", "composer_input_disabled": false, "call_to_actions": items},
		},
	}
	_, err := c.sendRequest(ctx, http.MethodPost, "me/messenger_profile", token, nil, body)
	return err
}

// --- Lookup Methods ---

func (c *Client) IsFollower(ctx context.Context, token, pageID, senderID string) (bool, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, senderID, token, url.Values{"fields": {"is_user_follow_business"}}, nil)
	if err != nil {
		return false, err
	}

	var obj struct {
		IsUserFollowBusiness bool `json:"is_user_follow_business"`
	}
	if err := json.Unmarshal(resp, &obj); err != nil {
		return false, err
	}
	return obj.IsUserFollowBusiness, nil
}

// GetMediaHashtags returns the lowercased hashtags of a post caption.
func (c *Client) GetMediaHashtags(ctx context.Context, token, mediaID string) ([]string, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, mediaID, token, url.Values{"fields": {"caption"}}, nil)
	if err != nil {
		return nil, err
	}

	var obj struct {
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal(resp, &obj); err != nil {
		return nil, err
	}
	return ExtractHashtags(obj.Caption), nil
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// ExtractHashtags returns the #word tokens of text, lowercased and without
// the leading '#'.
func ExtractHashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return tags
}
