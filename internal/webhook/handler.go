package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"instaflow/internal/automation"
	"instaflow/internal/config"
	"instaflow/internal/metrics"
	"instaflow/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	dedupTTL        = 10 * time.Minute
)

// Processor runs one normalized event through the automation engine.
type Processor interface {
	HandleEvent(ctx context.Context, ev automation.InboundEvent) automation.RunResult
}

type Handler struct {
	Config    *config.Config
	Processor Processor

	seen     *cache.Cache
	inflight sync.WaitGroup
}

func NewHandler(cfg *config.Config, processor Processor) *Handler {
	return &Handler{
		Config:    cfg,
		Processor: processor,
		seen:      cache.New(dedupTTL, 2*dedupTTL),
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			log.Info().Msg("Webhook verified successfully")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleEvent acknowledges every delivery that passes the signature check.
// Events are processed in the background so Meta never retries because of
// slow downstream calls.
func (h *Handler) HandleEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Warn().Err(err).Msg("Error reading webhook body")
		c.Status(http.StatusBadRequest)
		return
	}

	if h.Config.AppSecret != "" && !validSignature(h.Config.AppSecret, body, c.GetHeader(signatureHeader)) {
		log.Warn().Msg("Rejected webhook with invalid signature")
		c.Status(http.StatusUnauthorized)
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Msg("Error decoding webhook payload")
		c.Status(http.StatusOK)
		return
	}

	for _, ev := range Normalize(payload) {
		if h.duplicate(ev) {
			log.Debug().Str("message_id", ev.MessageID).Str("comment_id", ev.CommentID).Msg("Dropping redelivered event")
			continue
		}
		metrics.WebhookEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		h.dispatch(ev)
	}

	c.Status(http.StatusOK)
}

func (h *Handler) dispatch(ev automation.InboundEvent) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		timeout := h.Config.EventTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res := h.Processor.HandleEvent(ctx, ev)
		log.Debug().
			Str("run_id", res.RunID).
			Str("kind", string(ev.Kind)).
			Str("sender_id", ev.SenderID).
			Str("mode", string(res.Mode)).
			Bool("success", res.Success).
			Msg(res.Message)
	}()
}

// Wait blocks until every dispatched event has finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) duplicate(ev automation.InboundEvent) bool {
	key := ev.MessageID
	if ev.Kind == automation.TriggerComment {
		key = ev.CommentID
	}
	if key == "" {
		return false
	}
	// Add fails when the key is already present.
	return h.seen.Add(string(ev.Kind)+":"+key, struct{}{}, cache.DefaultExpiration) != nil
}

// Normalize turns a webhook payload into engine events. Echoes of the
// page's own messages, the page's own comments and deliveries without text
// are dropped.
func Normalize(payload models.WebhookPayload) []automation.InboundEvent {
	var events []automation.InboundEvent

	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Sender.ID == "" || m.Sender.ID == entry.ID {
				continue
			}

			var text, mid string
			switch {
			case m.Message != nil:
				if m.Message.IsEcho {
					continue
				}
				mid = m.Message.MID
				text = m.Message.Text
				if m.Message.QuickReply != nil && m.Message.QuickReply.Payload != "" {
					text = m.Message.QuickReply.Payload
				}
			case m.Postback != nil:
				mid = m.Postback.MID
				text = m.Postback.Payload
				if text == "" {
					text = m.Postback.Title
				}
			}
			if strings.TrimSpace(text) == "" {
				continue
			}

			events = append(events, automation.InboundEvent{
				Kind:      automation.TriggerDM,
				PageID:    entry.ID,
				SenderID:  m.Sender.ID,
				Text:      text,
				MessageID: mid,
			})
		}

		for _, ch := range entry.Changes {
			if ch.Field != "comments" {
				continue
			}
			v := ch.Value
			if v.ID == "" || v.From.ID == "" || v.From.ID == entry.ID {
				continue
			}
			ev := automation.InboundEvent{
				Kind:      automation.TriggerComment,
				PageID:    entry.ID,
				SenderID:  v.From.ID,
				Text:      v.Text,
				CommentID: v.ID,
			}
			if v.Media != nil {
				ev.MediaID = v.Media.ID
			}
			events = append(events, ev)
		}
	}
	return events
}

func validSignature(secret string, body []byte, header string) bool {
	sig, found := strings.CutPrefix(header, "sha256=")
	if !found {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
