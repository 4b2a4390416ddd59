package automation

import (
	"context"
	"strings"

	"instaflow/internal/logger"
	"instaflow/internal/models"
	"instaflow/internal/tracking"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// LegacyExecutor answers with the automation's single Listener. It serves
// automations created before flow graphs existed.
type LegacyExecutor struct {
	store     Store
	messenger Messenger
	smartAI   *SmartAIReplier
	tracker   Recorder
	validate  *validator.Validate
}

func NewLegacyExecutor(store Store, messenger Messenger, smartAI *SmartAIReplier, tracker Recorder) *LegacyExecutor {
	if tracker == nil {
		tracker = nopRecorder{}
	}
	return &LegacyExecutor{
		store:     store,
		messenger: messenger,
		smartAI:   smartAI,
		tracker:   tracker,
		validate:  validator.New(),
	}
}

func (x *LegacyExecutor) Execute(ctx context.Context, a *models.Automation, ec *EventContext) RunResult {
	l := logger.ForEvent(a.ID, ec.PageID, ec.SenderID)
	if a.Listener == nil {
		l.Debug().Msg("Automation has neither flow nor listener")
		return noop(ModeLegacy, "no listener configured")
	}

	channel := tracking.ChannelDM
	if ec.Kind == TriggerComment {
		channel = tracking.ChannelComment
	}

	var res ActionResult
	switch ec.Kind {
	case TriggerDM:
		res = x.onDM(ctx, a, ec)
	case TriggerComment:
		res = x.onComment(ctx, a, ec)
	default:
		res = fail("unsupported trigger kind " + string(ec.Kind))
	}

	if res.Success {
		track(x.tracker, ec, channel, a.Listener.Listener, ModeLegacy, nil)
	}
	l.Info().Str("listener", a.Listener.Listener).Bool("success", res.Success).Msg(res.Message)

	out := RunResult{
		Mode:    ModeLegacy,
		Success: res.Success,
		Message: res.Message,
		Nodes: []NodeResult{{
			NodeID:       "listener",
			Type:         NodeAction,
			SubType:      a.Listener.Listener,
			ActionResult: res,
		}},
	}
	// A MESSAGE listener with a carousel attached is a deliberate no-op.
	if res.Message != carouselAttachedNoop {
		out.Attempted = 1
		if res.Success {
			out.Succeeded = 1
		}
	}
	return out
}

const carouselAttachedNoop = "Message listener has a carousel attached, nothing sent"

func (x *LegacyExecutor) onDM(ctx context.Context, a *models.Automation, ec *EventContext) ActionResult {
	listener := a.Listener
	send := func(text string) error {
		return x.messenger.SendDirectMessage(ctx, ec.Token, ec.PageID, ec.SenderID, text)
	}

	switch listener.Listener {
	case models.ListenerMessage:
		if listener.CarouselTemplateID != nil {
			return fail(carouselAttachedNoop)
		}
		return x.sendPrompt(listener.Prompt, send)

	case models.ListenerCarousel:
		return x.carouselThenPrompt(ctx, a, ec, send)

	case models.ListenerSmartAI:
		if !ec.IsPro() {
			return fail("SmartAI requires a PRO plan")
		}
		reply, err := x.oneShot(ctx, ec, listener.Prompt)
		if err != nil {
			return fail("AI generation failed: " + err.Error())
		}
		if err := send(reply); err != nil {
			return fail("Execution error: " + err.Error())
		}
		return ok("AI reply sent")
	}
	return fail("Unknown listener type: " + listener.Listener)
}

func (x *LegacyExecutor) onComment(ctx context.Context, a *models.Automation, ec *EventContext) ActionResult {
	listener := a.Listener
	dm := func(text string) error {
		return x.messenger.SendDirectMessage(ctx, ec.Token, ec.PageID, ec.SenderID, text)
	}

	switch listener.Listener {
	case models.ListenerMessage:
		if strings.TrimSpace(listener.Prompt) == "" {
			return fail("No message configured")
		}

		var g errgroup.Group
		var dmErr error
		if listener.CommentReply != "" && ec.CommentID != "" {
			g.Go(func() error {
				if err := x.messenger.ReplyToComment(ctx, ec.Token, ec.CommentID, listener.CommentReply); err != nil {
					log.Warn().Err(err).Str("comment_id", ec.CommentID).Msg("Comment reply failed")
				}
				return nil
			})
		}
		g.Go(func() error {
			dmErr = dm(listener.Prompt)
			return nil
		})
		_ = g.Wait()

		if dmErr != nil {
			return fail("Execution error: " + dmErr.Error())
		}
		return ok("Message sent")

	case models.ListenerCarousel:
		return x.carouselThenPrompt(ctx, a, ec, dm)

	case models.ListenerSmartAI:
		if !ec.IsPro() {
			return fail("SmartAI requires a PRO plan")
		}
		if ec.CommentID == "" {
			return fail("No comment to reply to")
		}
		reply, err := x.oneShot(ctx, ec, listener.Prompt)
		if err != nil {
			return fail("AI generation failed: " + err.Error())
		}
		if err := x.messenger.SendPrivateReply(ctx, ec.Token, ec.PageID, ec.CommentID, reply); err != nil {
			return fail("Execution error: " + err.Error())
		}
		return ok("AI private reply sent")
	}
	return fail("Unknown listener type: " + listener.Listener)
}

// carouselThenPrompt sends the listener's carousel and falls back to the
// plain prompt when the template is missing, invalid or rejected.
func (x *LegacyExecutor) carouselThenPrompt(ctx context.Context, a *models.Automation, ec *EventContext, fallback func(string) error) ActionResult {
	tmpl, err := x.store.GetCarouselTemplate(ctx, a.ID, a.Listener.CarouselTemplateID)
	if err != nil {
		log.Warn().Err(err).Uint("automation_id", a.ID).Msg("Failed to load carousel template")
	}

	if tmpl != nil && len(tmpl.Elements) > 0 {
		elements, err := BuildCarousel(x.validate, tmpl)
		if err == nil {
			err = x.messenger.SendCarousel(ctx, ec.Token, ec.PageID, ec.SenderID, elements)
		}
		if err == nil {
			return ok("Carousel sent")
		}
		log.Warn().Err(err).Uint("automation_id", a.ID).Msg("Carousel failed, falling back to prompt")
	}

	res := x.sendPrompt(a.Listener.Prompt, fallback)
	if res.Success {
		res.Message = "Fallback message sent"
	}
	return res
}

func (x *LegacyExecutor) sendPrompt(prompt string, send func(string) error) ActionResult {
	if strings.TrimSpace(prompt) == "" {
		return fail("No message configured")
	}
	if err := send(prompt); err != nil {
		return fail("Execution error: " + err.Error())
	}
	return ok("Message sent")
}

func (x *LegacyExecutor) oneShot(ctx context.Context, ec *EventContext, prompt string) (string, error) {
	if x.smartAI == nil {
		return "", errNoSmartAI
	}
	return x.smartAI.OneShot(ctx, ec, prompt)
}
