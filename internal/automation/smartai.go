package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"instaflow/internal/ai"
	"instaflow/internal/instagram"
	"instaflow/internal/metrics"
	"instaflow/internal/models"
	"instaflow/internal/ratelimit"

	"github.com/rs/zerolog/log"
)

const (
	rateLimitApology = "I'm receiving a lot of messages right now. Please give me a moment and try again shortly."
	fallbackSuffix   = "Keep response under 2 sentences."
	defaultPrompt    = "You are a friendly assistant replying to Instagram direct messages on behalf of a business. Be concise and helpful."
)

// SmartAIReplier generates AI replies with conversation memory.
type SmartAIReplier struct {
	store         Store
	messenger     Messenger
	primary       ai.Provider
	fallback      ai.Provider
	limiter       ratelimit.Limiter
	historyWindow int
}

func NewSmartAIReplier(store Store, messenger Messenger, primary, fallback ai.Provider, limiter ratelimit.Limiter, historyWindow int) *SmartAIReplier {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &SmartAIReplier{
		store:         store,
		messenger:     messenger,
		primary:       primary,
		fallback:      fallback,
		limiter:       limiter,
		historyWindow: historyWindow,
	}
}

// Reply runs the full multi-turn SmartAI exchange for one inbound message
// and delivers the answer as a DM.
func (r *SmartAIReplier) Reply(ctx context.Context, ec *EventContext, systemPrompt string) ActionResult {
	if !ec.IsPro() {
		return fail("SmartAI requires a PRO plan")
	}
	if strings.TrimSpace(ec.Text) == "" {
		return fail("No message text to reply to")
	}

	if r.limiter != nil && !r.limiter.Allow(ctx, ec.SenderID) {
		metrics.RateLimitedTotal.Inc()
		if err := r.messenger.SendDirectMessage(ctx, ec.Token, ec.PageID, ec.SenderID, rateLimitApology); err != nil {
			log.Warn().Err(err).Str("sender_id", ec.SenderID).Msg("Failed to send rate limit apology")
		}
		return fail("Rate limit exceeded")
	}

	r.senderAction(ctx, ec, instagram.MarkSeen)
	r.senderAction(ctx, ec, instagram.TypingOn)

	rows, err := r.store.RecentChatHistory(ctx, ec.AutomationID, ec.PageID, ec.SenderID, r.historyWindow)
	if err != nil {
		log.Warn().Err(err).Uint("automation_id", ec.AutomationID).Msg("Failed to load chat history")
	}
	history := make([]ai.Turn, 0, len(rows))
	for _, row := range rows {
		history = append(history, ai.Turn{Role: row.Role, Content: row.Message})
	}

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultPrompt
	}

	reply, err := r.generate(ctx, ec, systemPrompt, history)
	if err != nil {
		return fail("AI generation failed: " + err.Error())
	}

	if err := r.remember(ctx, ec, reply); err != nil {
		log.Warn().Err(err).Uint("automation_id", ec.AutomationID).Msg("Failed to store chat history")
	}

	if err := r.messenger.SendDirectMessage(ctx, ec.Token, ec.PageID, ec.SenderID, reply); err != nil {
		return fail("Execution error: " + err.Error())
	}
	return ok("AI reply sent")
}

// OneShot generates a reply from the primary provider with no history and
// stores both sides of the exchange.
func (r *SmartAIReplier) OneShot(ctx context.Context, ec *EventContext, prompt string) (string, error) {
	if r.primary == nil {
		return "", errors.New("no AI provider configured")
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultPrompt
	}

	reply, err := r.primary.GenerateReply(ctx, ai.Request{
		SystemPrompt: prompt,
		UserText:     ec.Text,
		APIKey:       ec.AIKey,
	})
	if err != nil {
		return "", err
	}
	if err := r.remember(ctx, ec, reply); err != nil {
		log.Warn().Err(err).Uint("automation_id", ec.AutomationID).Msg("Failed to store chat history")
	}
	return reply, nil
}

func (r *SmartAIReplier) generate(ctx context.Context, ec *EventContext, systemPrompt string, history []ai.Turn) (string, error) {
	var primaryErr error
	if r.primary != nil {
		reply, err := r.primary.GenerateReply(ctx, ai.Request{
			SystemPrompt: systemPrompt,
			UserText:     ec.Text,
			History:      history,
			APIKey:       ec.AIKey,
		})
		if err == nil && strings.TrimSpace(reply) != "" {
			return strings.TrimSpace(reply), nil
		}
		primaryErr = err
		if primaryErr == nil {
			primaryErr = ai.ErrEmptyReply
		}
		log.Warn().Err(primaryErr).Str("provider", r.primary.Name()).Msg("Primary AI provider gave no reply, trying fallback")
	}

	if r.fallback == nil {
		if primaryErr == nil {
			primaryErr = errors.New("no AI provider configured")
		}
		return "", primaryErr
	}

	prompt := ai.Flatten(systemPrompt, history, ec.Text) + "\n\n" + fallbackSuffix
	reply, err := r.fallback.GenerateReply(ctx, ai.Request{UserText: prompt})
	if err != nil {
		return "", fmt.Errorf("fallback %s: %w", r.fallback.Name(), err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ai.ErrEmptyReply
	}
	return strings.TrimSpace(reply), nil
}

func (r *SmartAIReplier) remember(ctx context.Context, ec *EventContext, reply string) error {
	now := time.Now()
	return r.store.AppendChatHistory(ctx,
		models.ChatHistory{
			AutomationID: ec.AutomationID,
			PageID:       ec.PageID,
			SenderID:     ec.SenderID,
			Role:         models.RoleUser,
			Message:      ec.Text,
			CreatedAt:    now,
		},
		models.ChatHistory{
			AutomationID: ec.AutomationID,
			PageID:       ec.PageID,
			SenderID:     ec.SenderID,
			Role:         models.RoleAssistant,
			Message:      reply,
			CreatedAt:    now.Add(time.Millisecond),
		},
	)
}

func (r *SmartAIReplier) senderAction(ctx context.Context, ec *EventContext, action instagram.SenderAction) {
	if err := r.messenger.SendSenderAction(ctx, ec.Token, ec.PageID, ec.SenderID, action); err != nil {
		log.Debug().Err(err).Str("action", string(action)).Msg("Sender action failed")
	}
}
