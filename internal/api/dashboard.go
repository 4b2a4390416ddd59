package api

import (
	"context"
	"net/http"
	"strconv"

	"instaflow/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// DirectMessenger sends a plain DM from a connected account.
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, token, pageID, recipientID, text string) error
}

type DashboardHandler struct {
	Store  *store.GormStore
	Client DirectMessenger
}

func NewDashboardHandler(st *store.GormStore, client DirectMessenger) *DashboardHandler {
	return &DashboardHandler{Store: st, Client: client}
}

func (h *DashboardHandler) Register(r gin.IRouter) {
	r.GET("/automations/:id/conversations/:senderId", h.GetConversation)
	r.POST("/messages", h.SendMessage)
}

// GetConversation returns the stored SmartAI turns with one sender, oldest first
func (h *DashboardHandler) GetConversation(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}
	pageID := c.Query("page_id")
	if pageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}

	turns, err := h.Store.RecentChatHistory(c.Request.Context(), id, pageID, c.Param("senderId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, turns)
}

type SendRequest struct {
	UserID      uint   `json:"user_id" binding:"required"`
	PageID      string `json:"page_id" binding:"required"`
	RecipientID string `json:"recipient_id" binding:"required"`
	Text        string `json:"text" binding:"required"`
}

// SendMessage sends a manual DM through the owner's connected account
func (h *DashboardHandler) SendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner, err := h.Store.GetOwner(c.Request.Context(), req.UserID)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	token := ""
	for _, in := range owner.Integrations {
		if in.InstagramID == req.PageID {
			token = in.Token
			break
		}
	}
	if token == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no connected account for page"})
		return
	}

	if err := h.Client.SendDirectMessage(c.Request.Context(), token, req.PageID, req.RecipientID, req.Text); err != nil {
		log.Warn().Err(err).Str("page_id", req.PageID).Msg("Manual DM failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send message: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Message sent"})
}
