package automation

import (
	"instaflow/internal/models"
)

type TriggerKind string

const (
	TriggerDM      TriggerKind = "DM"
	TriggerComment TriggerKind = "COMMENT"
)

// Coarse node types
const (
	NodeTrigger   = "trigger"
	NodeCondition = "condition"
	NodeAction    = "action"
)

// Node subtypes
const (
	SubKeywords = "KEYWORDS"

	SubIsFollower = "IS_FOLLOWER"
	SubHasTag     = "HAS_TAG"
	SubYes        = "YES"
	SubNo         = "NO"

	SubMessage         = "MESSAGE"
	SubSmartAI         = "SMARTAI"
	SubCarousel        = "CAROUSEL"
	SubReplyComment    = "REPLY_COMMENT"
	SubButtonTemplate  = "BUTTON_TEMPLATE"
	SubProductTemplate = "PRODUCT_TEMPLATE"
	SubQuickReplies    = "QUICK_REPLIES"
	SubIceBreakers     = "ICE_BREAKERS"
	SubPersistentMenu  = "PERSISTENT_MENU"
	SubTypingOn        = "TYPING_ON"
	SubTypingOff       = "TYPING_OFF"
	SubMarkSeen        = "MARK_SEEN"
)

// Branch modes for condition nodes that evaluate false.
const (
	// BranchNext skips only the node that follows the condition in path order.
	BranchNext = "next"
	// BranchPrune suppresses every node reachable only through untaken edges.
	BranchPrune = "prune"
)

type Mode string

const (
	ModeNone         Mode = "none"
	ModeGraph        Mode = "graph"
	ModeLegacy       Mode = "legacy"
	ModeContinuation Mode = "continuation"
)

// InboundEvent is a normalized DM or comment as delivered by the webhook.
type InboundEvent struct {
	Kind      TriggerKind
	PageID    string
	SenderID  string
	Text      string
	CommentID string
	MediaID   string
	MessageID string
}

// EventContext is everything an executor needs to act on one event for one
// automation.
type EventContext struct {
	AutomationID uint
	UserID       uint
	Token        string
	PageID       string
	SenderID     string
	Text         string
	CommentID    string
	MediaID      string
	Kind         TriggerKind
	Plan         string
	AIKey        string
}

func (c *EventContext) IsPro() bool {
	return c.Plan == models.PlanPro
}

type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) ActionResult {
	return ActionResult{Success: true, Message: msg}
}

func fail(msg string) ActionResult {
	return ActionResult{Success: false, Message: msg}
}

type NodeResult struct {
	NodeID  string `json:"node_id"`
	Type    string `json:"type"`
	SubType string `json:"sub_type"`
	Skipped bool   `json:"skipped,omitempty"`
	ActionResult
}

type RunResult struct {
	RunID        string       `json:"run_id"`
	AutomationID uint         `json:"automation_id,omitempty"`
	SenderID     string       `json:"sender_id,omitempty"`
	Mode         Mode         `json:"mode"`
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	Attempted    int          `json:"attempted"`
	Succeeded    int          `json:"succeeded"`
	Nodes        []NodeResult `json:"nodes,omitempty"`
}

func noop(mode Mode, msg string) RunResult {
	return RunResult{Mode: mode, Success: false, Message: msg}
}
