package models

// WebhookPayload represents the incoming JSON payload from the Instagram webhook
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one page's batch of events. ID is the Instagram account id.
type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
	Changes   []Change         `json:"changes,omitempty"`
}

// MessagingEvent represents a direct message, echo or postback
type MessagingEvent struct {
	Sender    Participant    `json:"sender"`
	Recipient Participant    `json:"recipient"`
	Timestamp int64          `json:"timestamp"`
	Message   *InboundDM     `json:"message,omitempty"`
	Postback  *PostbackEvent `json:"postback,omitempty"`
}

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// InboundDM is the message body of a messaging event
type InboundDM struct {
	MID        string      `json:"mid"`
	Text       string      `json:"text,omitempty"`
	IsEcho     bool        `json:"is_echo,omitempty"`
	QuickReply *QuickReply `json:"quick_reply,omitempty"`
}

// QuickReply carries the payload of a tapped quick reply
type QuickReply struct {
	Payload string `json:"payload"`
}

// PostbackEvent is sent when a button with a postback payload is tapped
type PostbackEvent struct {
	MID     string `json:"mid"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Change represents a field change notification, e.g. a new comment
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the comment fields of a "comments" change
type ChangeValue struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	ParentID string        `json:"parent_id,omitempty"`
	From     Participant   `json:"from"`
	Media    *CommentMedia `json:"media,omitempty"`
}

type CommentMedia struct {
	ID               string `json:"id"`
	MediaProductType string `json:"media_product_type,omitempty"`
}
