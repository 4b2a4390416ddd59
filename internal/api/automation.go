package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"instaflow/internal/automation"
	"instaflow/internal/models"
	"instaflow/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type AutomationHandler struct {
	Store    *store.GormStore
	validate *validator.Validate
}

func NewAutomationHandler(st *store.GormStore) *AutomationHandler {
	return &AutomationHandler{Store: st, validate: validator.New()}
}

// Register mounts the automation routes on an /api group.
func (h *AutomationHandler) Register(r gin.IRouter) {
	r.GET("/automations", h.ListAutomations)
	r.POST("/automations", h.CreateAutomation)
	r.GET("/automations/:id", h.GetAutomation)
	r.DELETE("/automations/:id", h.DeleteAutomation)
	r.PATCH("/automations/:id/active", h.ToggleAutomation)
	r.PUT("/automations/:id/flow", h.SaveFlow)
	r.DELETE("/automations/:id/nodes/:nodeId", h.DeleteNode)
	r.PUT("/automations/:id/carousel", h.SaveCarousel)
	r.GET("/automations/:id/analytics", h.GetAnalytics)
}

// ListAutomations returns the automations of the user given by ?user_id
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	automations, err := h.Store.ListAutomations(c.Request.Context(), uint(userID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, automations)
}

// CreateAutomation creates an inactive automation with no flow
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var req struct {
		Name   string `json:"name" binding:"required"`
		UserID uint   `json:"user_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a := models.Automation{Name: req.Name, UserID: req.UserID}
	if err := h.Store.CreateAutomation(c.Request.Context(), &a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": a.ID, "message": "Automation created successfully"})
}

// GetAutomation returns an automation with its flow graph
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	a, err := h.Store.GetAutomation(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	nodes, edges, err := h.Store.LoadFlow(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.FlowNodes = nodes
	a.FlowEdges = edges

	c.JSON(http.StatusOK, a)
}

func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	if err := h.Store.DeleteAutomation(c.Request.Context(), id); err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Automation deleted successfully"})
}

// ToggleAutomation activates or deactivates an automation
func (h *AutomationHandler) ToggleAutomation(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Automation toggled successfully", "active": *req.Active})
}

type position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type nodeRequest struct {
	ID       string          `json:"id" validate:"required"`
	Type     string          `json:"type" validate:"required,oneof=trigger condition action"`
	SubType  string          `json:"subType" validate:"required"`
	Label    string          `json:"label"`
	Config   json.RawMessage `json:"config"`
	Position position        `json:"position"`
}

type edgeRequest struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

type listenerRequest struct {
	Listener           string `json:"listener" validate:"oneof=MESSAGE SMARTAI CAROUSEL"`
	Prompt             string `json:"prompt"`
	CommentReply       string `json:"commentReply"`
	CarouselTemplateID *uint  `json:"carouselTemplateId"`
}

type flowRequest struct {
	Triggers []string         `json:"triggers" validate:"dive,oneof=DM COMMENT"`
	Keywords []string         `json:"keywords"`
	Listener *listenerRequest `json:"listener"`
	Nodes    []nodeRequest    `json:"nodes" validate:"dive"`
	Edges    []edgeRequest    `json:"edges" validate:"dive"`
}

// SaveFlow replaces the automation's triggers, keywords, listener, nodes
// and edges in one transaction.
func (h *AutomationHandler) SaveFlow(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	var req flowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	normalizeFlow(&req)

	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := toSnapshot(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.GetAutomation(c.Request.Context(), id); err != nil {
		respondStoreError(c, err)
		return
	}
	if err := h.Store.SaveFlow(c.Request.Context(), id, snap); err != nil {
		log.Error().Err(err).Uint("automation_id", id).Msg("Error saving flow")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Flow saved successfully",
		"nodes":   len(snap.Nodes),
		"edges":   len(snap.Edges),
	})
}

func normalizeFlow(req *flowRequest) {
	for i, t := range req.Triggers {
		req.Triggers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	if req.Listener != nil {
		req.Listener.Listener = strings.ToUpper(strings.TrimSpace(req.Listener.Listener))
		if req.Listener.Listener == "" {
			req.Listener.Listener = models.ListenerMessage
		}
	}
	for i := range req.Nodes {
		req.Nodes[i].Type = strings.ToLower(strings.TrimSpace(req.Nodes[i].Type))
		req.Nodes[i].SubType = strings.ToUpper(strings.TrimSpace(req.Nodes[i].SubType))
	}
}

// toSnapshot checks node ids are unique and that every config decodes for
// its subtype. Edges may reference unknown nodes; traversal skips them.
func toSnapshot(req flowRequest) (store.FlowSnapshot, error) {
	snap := store.FlowSnapshot{Triggers: req.Triggers, Keywords: req.Keywords}

	if req.Listener != nil {
		snap.Listener = &models.Listener{
			Listener:           req.Listener.Listener,
			Prompt:             req.Listener.Prompt,
			CommentReply:       req.Listener.CommentReply,
			CarouselTemplateID: req.Listener.CarouselTemplateID,
		}
	}

	seen := make(map[string]bool, len(req.Nodes))
	for _, n := range req.Nodes {
		if seen[n.ID] {
			return snap, fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true

		config := strings.TrimSpace(string(n.Config))
		if config == "null" {
			config = ""
		}
		if _, err := automation.DecodeNodeConfig(n.SubType, config); err != nil {
			return snap, fmt.Errorf("node %q: invalid %s config: %w", n.ID, n.SubType, err)
		}

		snap.Nodes = append(snap.Nodes, models.FlowNode{
			NodeID:    n.ID,
			Type:      n.Type,
			SubType:   n.SubType,
			Label:     n.Label,
			Config:    config,
			PositionX: n.Position.X,
			PositionY: n.Position.Y,
		})
	}

	for i, e := range req.Edges {
		edgeID := e.ID
		if edgeID == "" {
			edgeID = fmt.Sprintf("e%d-%s-%s", i, e.Source, e.Target)
		}
		snap.Edges = append(snap.Edges, models.FlowEdge{
			EdgeID:       edgeID,
			SourceNodeID: e.Source,
			TargetNodeID: e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}
	return snap, nil
}

// DeleteNode removes one node and every edge touching it
func (h *AutomationHandler) DeleteNode(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	if err := h.Store.DeleteNode(c.Request.Context(), id, c.Param("nodeId")); err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Node deleted successfully"})
}

// SaveCarousel validates and stores a carousel template
func (h *AutomationHandler) SaveCarousel(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	var tmpl models.CarouselTemplate
	if err := c.ShouldBindJSON(&tmpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i := range tmpl.Elements {
		for j := range tmpl.Elements[i].Buttons {
			b := &tmpl.Elements[i].Buttons[j]
			b.Type = strings.ToUpper(b.Type)
		}
	}

	if err := automation.ValidateCarousel(h.validate, &tmpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.GetAutomation(c.Request.Context(), id); err != nil {
		respondStoreError(c, err)
		return
	}
	if err := h.Store.SaveCarouselTemplate(c.Request.Context(), id, &tmpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": tmpl.ID, "message": "Carousel saved successfully"})
}

// GetAnalytics returns response counters and the latest analytics events
func (h *AutomationHandler) GetAnalytics(c *gin.Context) {
	id, ok := automationID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	counts, err := h.Store.GetTracking(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	events, err := h.Store.RecentAnalytics(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"automation_id": id,
		"dm_count":      counts.DMCount,
		"comment_count": counts.CommentCount,
		"events":        events,
	})
}

func automationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid automation id"})
		return 0, false
	}
	return uint(id), true
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
