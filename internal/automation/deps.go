package automation

import (
	"context"

	"instaflow/internal/instagram"
	"instaflow/internal/models"
	"instaflow/internal/tracking"
)

// Store is the read side of persistence the engine needs, plus chat-history
// appends.
type Store interface {
	AutomationFinder
	GetAutomation(ctx context.Context, id uint) (*models.Automation, error)
	HasFlowNodes(ctx context.Context, automationID uint) (bool, error)
	LoadFlow(ctx context.Context, automationID uint) ([]models.FlowNode, []models.FlowEdge, error)
	GetCarouselTemplate(ctx context.Context, automationID uint, templateID *uint) (*models.CarouselTemplate, error)
	GetOwner(ctx context.Context, userID uint) (*models.User, error)
	RecentChatHistory(ctx context.Context, automationID uint, pageID, senderID string, limit int) ([]models.ChatHistory, error)
	LatestChatHistory(ctx context.Context, pageID, senderID string) (*models.ChatHistory, error)
	AppendChatHistory(ctx context.Context, entries ...models.ChatHistory) error
}

// Messenger is the Instagram messaging surface used by conditions and
// actions.
type Messenger interface {
	SendDirectMessage(ctx context.Context, token, pageID, recipientID, text string) error
	SendPrivateReply(ctx context.Context, token, pageID, commentID, text string) error
	ReplyToComment(ctx context.Context, token, commentID, text string) error
	SendCarousel(ctx context.Context, token, pageID, recipientID string, elements []instagram.GenericElement) error
	SendButtonTemplate(ctx context.Context, token, pageID, recipientID, text string, buttons []instagram.Button) error
	SendProductTemplate(ctx context.Context, token, pageID, recipientID string, productIDs []string) error
	SendQuickReplies(ctx context.Context, token, pageID, recipientID, text string, replies []instagram.QuickReply) error
	SetIceBreakers(ctx context.Context, token string, items []instagram.IceBreaker) error
	SetPersistentMenu(ctx context.Context, token string, items []instagram.MenuItem) error
	SendSenderAction(ctx context.Context, token, pageID, recipientID string, action instagram.SenderAction) error
	IsFollower(ctx context.Context, token, pageID, senderID string) (bool, error)
	GetMediaHashtags(ctx context.Context, token, mediaID string) ([]string, error)
}

// Recorder accepts best-effort tracking events.
type Recorder interface {
	Record(ev tracking.Event)
}

// Notifier pushes finished runs to live dashboard clients.
type Notifier interface {
	BroadcastEvent(eventType string, data interface{})
}

// Executor runs one automation against one event.
type Executor interface {
	Execute(ctx context.Context, a *models.Automation, ec *EventContext) RunResult
}

type nopRecorder struct{}

func (nopRecorder) Record(tracking.Event) {}

func track(r Recorder, ec *EventContext, channel, eventType string, mode Mode, meta map[string]interface{}) {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["mode"] = string(mode)
	meta["sender_id"] = ec.SenderID
	r.Record(tracking.Event{
		UserID:       ec.UserID,
		AutomationID: ec.AutomationID,
		Channel:      channel,
		EventType:    eventType,
		Success:      true,
		Metadata:     meta,
	})
}
