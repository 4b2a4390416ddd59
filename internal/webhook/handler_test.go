package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"instaflow/internal/automation"
	"instaflow/internal/config"
	"instaflow/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []automation.InboundEvent
}

func (p *recordingProcessor) HandleEvent(ctx context.Context, ev automation.InboundEvent) automation.RunResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return automation.RunResult{Message: "ok"}
}

func (p *recordingProcessor) Events() []automation.InboundEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]automation.InboundEvent(nil), p.events...)
}

func newRouter(cfg *config.Config) (*gin.Engine, *Handler, *recordingProcessor) {
	gin.SetMode(gin.TestMode)
	p := &recordingProcessor{}
	h := NewHandler(cfg, p)
	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.HandleEvent)
	return r, h, p
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const dmPayload = `{
  "object": "instagram",
  "entry": [{
    "id": "page-1",
    "time": 1700000000,
    "messaging": [
      {"sender": {"id": "U1"}, "recipient": {"id": "page-1"}, "message": {"mid": "m-1", "text": "price?"}},
      {"sender": {"id": "page-1"}, "recipient": {"id": "U1"}, "message": {"mid": "m-2", "text": "Our price is $10", "is_echo": true}}
    ]
  }]
}`

func TestVerifyWebhook(t *testing.T) {
	r, _, _ := newRouter(&config.Config{VerifyToken: "secret-token"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEventDispatchesAndDedups(t *testing.T) {
	r, h, p := newRouter(&config.Config{})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(dmPayload)))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	h.Wait()

	events := p.Events()
	require.Len(t, events, 1, "echo skipped and redelivery dropped")
	assert.Equal(t, automation.InboundEvent{
		Kind:      automation.TriggerDM,
		PageID:    "page-1",
		SenderID:  "U1",
		Text:      "price?",
		MessageID: "m-1",
	}, events[0])
}

func TestHandleEventSignature(t *testing.T) {
	r, h, p := newRouter(&config.Config{AppSecret: "app-secret"})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(dmPayload))
	req.Header.Set(signatureHeader, "sha256=deadbeef")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(dmPayload)))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing signature")

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(dmPayload))
	req.Header.Set(signatureHeader, sign("app-secret", dmPayload))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	h.Wait()
	assert.Len(t, p.Events(), 1)
}

func TestHandleEventAcknowledgesBadJSON(t *testing.T) {
	r, h, p := newRouter(&config.Config{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusOK, w.Code)

	h.Wait()
	assert.Empty(t, p.Events())
}

func TestNormalize(t *testing.T) {
	payload := models.WebhookPayload{
		Object: "instagram",
		Entry: []models.WebhookEntry{{
			ID: "page-1",
			Messaging: []models.MessagingEvent{
				{Sender: models.Participant{ID: "U1"}, Message: &models.InboundDM{MID: "m-1", Text: "Large", QuickReply: &models.QuickReply{Payload: "SIZE_L"}}},
				{Sender: models.Participant{ID: "U2"}, Postback: &models.PostbackEvent{MID: "m-2", Title: "More", Payload: "MORE_INFO"}},
				{Sender: models.Participant{ID: "U3"}, Message: &models.InboundDM{MID: "m-3"}},
			},
			Changes: []models.Change{
				{Field: "comments", Value: models.ChangeValue{ID: "c-1", Text: "link please", From: models.Participant{ID: "U4"}, Media: &models.CommentMedia{ID: "media-9"}}},
				{Field: "comments", Value: models.ChangeValue{ID: "c-2", Text: "thanks!", From: models.Participant{ID: "page-1"}}},
				{Field: "mentions", Value: models.ChangeValue{ID: "c-3", Text: "@shop", From: models.Participant{ID: "U5"}}},
			},
		}},
	}

	events := Normalize(payload)
	require.Len(t, events, 3)

	assert.Equal(t, "SIZE_L", events[0].Text, "quick reply payload wins over the label")
	assert.Equal(t, "MORE_INFO", events[1].Text)
	assert.Equal(t, automation.TriggerDM, events[1].Kind)

	comment := events[2]
	assert.Equal(t, automation.TriggerComment, comment.Kind)
	assert.Equal(t, "U4", comment.SenderID)
	assert.Equal(t, "c-1", comment.CommentID)
	assert.Equal(t, "media-9", comment.MediaID)
	assert.Equal(t, "page-1", comment.PageID)
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.True(t, validSignature("s", body, sign("s", string(body))))
	assert.False(t, validSignature("s", body, sign("other", string(body))))
	assert.False(t, validSignature("s", body, "sha1=abc"))
	assert.False(t, validSignature("s", body, "sha256=zz"))
}
