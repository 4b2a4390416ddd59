package automation

import (
	"context"
	"fmt"
	"strings"

	"instaflow/internal/instagram"
	"instaflow/internal/metrics"
	"instaflow/internal/tracking"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// ActionExecutor performs the side effect of a single action node.
type ActionExecutor struct {
	store     Store
	messenger Messenger
	smartAI   *SmartAIReplier
	tracker   Recorder
	validate  *validator.Validate
}

func NewActionExecutor(store Store, messenger Messenger, smartAI *SmartAIReplier, tracker Recorder) *ActionExecutor {
	if tracker == nil {
		tracker = nopRecorder{}
	}
	return &ActionExecutor{
		store:     store,
		messenger: messenger,
		smartAI:   smartAI,
		tracker:   tracker,
		validate:  validator.New(),
	}
}

// Execute never panics; platform errors and panics become failed results.
// Successful actions are tracked.
func (x *ActionExecutor) Execute(ctx context.Context, node *Node, ec *EventContext) (res ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("node_id", node.ID).
				Str("sub_type", node.SubType).
				Interface("panic", r).
				Msg("Action panicked")
			res = fail(fmt.Sprintf("Execution error: %v", r))
		}
		metrics.ActionExecutionsTotal.WithLabelValues(node.SubType, metrics.StatusLabel(res.Success)).Inc()
		if res.Success {
			track(x.tracker, ec, channelFor(node.SubType), node.SubType, ModeGraph, map[string]interface{}{"node_id": node.ID})
		}
	}()

	switch node.SubType {
	case SubMessage:
		cfg, _ := node.Config.(MessageConfig)
		text := cfg.Content()
		if text == "" {
			return fail("No message configured")
		}
		return x.platform("Message sent", x.messenger.SendDirectMessage(ctx, ec.Token, ec.PageID, ec.SenderID, text))

	case SubReplyComment:
		cfg, _ := node.Config.(MessageConfig)
		text := cfg.Content()
		if ec.CommentID == "" {
			return fail("No comment to reply to")
		}
		if text == "" {
			return fail("No reply message configured")
		}
		return x.platform("Comment reply sent", x.messenger.ReplyToComment(ctx, ec.Token, ec.CommentID, text))

	case SubSmartAI:
		cfg, _ := node.Config.(SmartAIConfig)
		if x.smartAI == nil {
			return fail("SmartAI is not configured")
		}
		return x.smartAI.Reply(ctx, ec, cfg.SystemPrompt())

	case SubCarousel:
		cfg, _ := node.Config.(CarouselConfig)
		return x.carousel(ctx, cfg, ec)

	case SubButtonTemplate:
		cfg, _ := node.Config.(ButtonTemplateConfig)
		if strings.TrimSpace(cfg.Text) == "" || len(cfg.Buttons) == 0 {
			return fail("Button template requires text and buttons")
		}
		buttons := make([]instagram.Button, 0, len(cfg.Buttons))
		for _, b := range cfg.Buttons {
			payload := b.Payload
			if strings.EqualFold(b.Type, instagram.ButtonWebURL) && b.URL != "" {
				payload = b.URL
			}
			buttons = append(buttons, wireButton(b.Type, b.Title, payload))
		}
		return x.platform("Button template sent", x.messenger.SendButtonTemplate(ctx, ec.Token, ec.PageID, ec.SenderID, cfg.Text, buttons))

	case SubProductTemplate:
		cfg, _ := node.Config.(ProductTemplateConfig)
		if len(cfg.ProductIDs) == 0 {
			return fail("No products configured")
		}
		return x.platform("Product template sent", x.messenger.SendProductTemplate(ctx, ec.Token, ec.PageID, ec.SenderID, cfg.ProductIDs))

	case SubQuickReplies:
		cfg, _ := node.Config.(QuickRepliesConfig)
		if strings.TrimSpace(cfg.Text) == "" || len(cfg.QuickReplies) == 0 {
			return fail("Quick replies require text and options")
		}
		replies := make([]instagram.QuickReply, 0, len(cfg.QuickReplies))
		for _, q := range cfg.QuickReplies {
			payload := q.Payload
			if payload == "" {
				payload = q.Title
			}
			replies = append(replies, instagram.QuickReply{ContentType: "text", Title: q.Title, Payload: payload})
		}
		return x.platform("Quick replies sent", x.messenger.SendQuickReplies(ctx, ec.Token, ec.PageID, ec.SenderID, cfg.Text, replies))

	case SubIceBreakers:
		cfg, _ := node.Config.(IceBreakersConfig)
		if len(cfg.IceBreakers) == 0 {
			return fail("No ice breakers configured")
		}
		items := make([]instagram.IceBreaker, 0, len(cfg.IceBreakers))
		for _, ib := range cfg.IceBreakers {
			items = append(items, instagram.IceBreaker{Question: ib.Question, Payload: ib.Payload})
		}
		return x.platform("Ice breakers set", x.messenger.SetIceBreakers(ctx, ec.Token, items))

	case SubPersistentMenu:
		cfg, _ := node.Config.(PersistentMenuConfig)
		if len(cfg.MenuItems) == 0 {
			return fail("No menu items configured")
		}
		items := make([]instagram.MenuItem, 0, len(cfg.MenuItems))
		for _, m := range cfg.MenuItems {
			b := wireButton(m.Type, m.Title, firstNonEmpty(m.URL, m.Payload))
			items = append(items, instagram.MenuItem{Type: b.Type, Title: b.Title, URL: b.URL, Payload: b.Payload})
		}
		return x.platform("Persistent menu set", x.messenger.SetPersistentMenu(ctx, ec.Token, items))

	case SubTypingOn:
		return x.platform("Typing indicator on", x.messenger.SendSenderAction(ctx, ec.Token, ec.PageID, ec.SenderID, instagram.TypingOn))
	case SubTypingOff:
		return x.platform("Typing indicator off", x.messenger.SendSenderAction(ctx, ec.Token, ec.PageID, ec.SenderID, instagram.TypingOff))
	case SubMarkSeen:
		return x.platform("Marked seen", x.messenger.SendSenderAction(ctx, ec.Token, ec.PageID, ec.SenderID, instagram.MarkSeen))

	default:
		return fail("Unknown action type: " + node.SubType)
	}
}

func (x *ActionExecutor) carousel(ctx context.Context, cfg CarouselConfig, ec *EventContext) ActionResult {
	hasFallback := strings.TrimSpace(cfg.Message) != ""
	fallback := func() ActionResult {
		return x.platform("Fallback message sent", x.messenger.SendDirectMessage(ctx, ec.Token, ec.PageID, ec.SenderID, cfg.Message))
	}
	orFallback := func(res ActionResult) ActionResult {
		if res.Success || !cfg.FallbackOnError || !hasFallback {
			return res
		}
		log.Warn().Uint("automation_id", ec.AutomationID).Str("reason", res.Message).Msg("Carousel failed, sending fallback message")
		return fallback()
	}

	tmpl, err := x.store.GetCarouselTemplate(ctx, ec.AutomationID, cfg.TemplateID)
	if err != nil {
		return orFallback(fail("Execution error: " + err.Error()))
	}

	if tmpl == nil || len(tmpl.Elements) == 0 {
		if !hasFallback {
			return fail("No carousel template configured")
		}
		return fallback()
	}

	elements, err := BuildCarousel(x.validate, tmpl)
	if err != nil {
		return orFallback(fail(err.Error()))
	}
	return orFallback(x.platform("Carousel sent", x.messenger.SendCarousel(ctx, ec.Token, ec.PageID, ec.SenderID, elements)))
}

func (x *ActionExecutor) platform(success string, err error) ActionResult {
	if err != nil {
		return fail("Execution error: " + err.Error())
	}
	return ok(success)
}

// channelFor returns the response counter an action increments. Profile
// settings and sender actions deliver nothing and count toward none.
func channelFor(subType string) string {
	switch subType {
	case SubReplyComment:
		return tracking.ChannelComment
	case SubMessage, SubSmartAI, SubCarousel, SubButtonTemplate, SubProductTemplate, SubQuickReplies:
		return tracking.ChannelDM
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
