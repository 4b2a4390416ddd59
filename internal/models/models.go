package models

import (
	"time"
)

const (
	PlanFree = "FREE"
	PlanPro  = "PRO"
)

// Listener kinds for automations that predate flow graphs.
const (
	ListenerMessage  = "MESSAGE"
	ListenerSmartAI  = "SMARTAI"
	ListenerCarousel = "CAROUSEL"
)

const (
	ButtonWebURL   = "WEB_URL"
	ButtonPostback = "POSTBACK"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User owns automations and carries the subscription plan
type User struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	Email        string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string        `gorm:"type:varchar(255)" json:"name"`
	Plan         string        `gorm:"type:varchar(20);default:'FREE'" json:"plan"`
	OpenAIKey    string        `gorm:"type:text" json:"-"` // optional per-user AI key override
	Integrations []Integration `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"integrations,omitempty"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Integration is a connected Instagram professional account
type Integration struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	Name        string     `gorm:"type:varchar(50);default:'INSTAGRAM'" json:"name"`
	InstagramID string     `gorm:"type:varchar(100);index" json:"instagram_id"` // page / IG business id
	Token       string     `gorm:"type:text" json:"-"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Integration) TableName() string {
	return "integrations"
}

// Automation is a user-owned rule set
type Automation struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	Name              string             `gorm:"type:varchar(255)" json:"name"`
	UserID            uint               `gorm:"index;not null" json:"user_id"`
	Active            bool               `gorm:"default:false" json:"active"`
	Triggers          []Trigger          `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE;" json:"triggers"`
	Keywords          []Keyword          `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE;" json:"keywords"`
	Listener          *Listener          `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE;" json:"listener,omitempty"`
	FlowNodes         []FlowNode         `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE;" json:"flow_nodes,omitempty"`
	FlowEdges         []FlowEdge         `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE;" json:"flow_edges,omitempty"`
	CarouselTemplates []CarouselTemplate `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE;" json:"carousel_templates,omitempty"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Automation) TableName() string {
	return "automations"
}

// HasTrigger reports whether the automation responds to the given event kind.
func (a *Automation) HasTrigger(kind string) bool {
	for _, t := range a.Triggers {
		if t.Type == kind {
			return true
		}
	}
	return false
}

func (a *Automation) KeywordList() []string {
	words := make([]string, 0, len(a.Keywords))
	for _, k := range a.Keywords {
		words = append(words, k.Word)
	}
	return words
}

type Trigger struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AutomationID uint   `gorm:"not null;uniqueIndex:idx_trigger_automation_type" json:"automation_id"`
	Type         string `gorm:"type:varchar(20);not null;uniqueIndex:idx_trigger_automation_type" json:"type"` // DM, COMMENT
}

func (Trigger) TableName() string {
	return "triggers"
}

type Keyword struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AutomationID uint   `gorm:"index;not null" json:"automation_id"`
	Word         string `gorm:"type:varchar(255);not null" json:"word"`
}

func (Keyword) TableName() string {
	return "keywords"
}

// Listener is the single-step response used when an automation has no flow graph
type Listener struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	AutomationID       uint   `gorm:"uniqueIndex;not null" json:"automation_id"`
	Listener           string `gorm:"type:varchar(20);default:'MESSAGE'" json:"listener"`
	Prompt             string `gorm:"type:text" json:"prompt"`
	CommentReply       string `gorm:"type:text" json:"comment_reply"`
	CarouselTemplateID *uint  `json:"carousel_template_id"`
}

func (Listener) TableName() string {
	return "listeners"
}

type CarouselTemplate struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	AutomationID uint              `gorm:"index;not null" json:"automation_id"`
	Name         string            `gorm:"type:varchar(255)" json:"name"`
	Elements     []CarouselElement `gorm:"foreignKey:CarouselTemplateID;constraint:OnDelete:CASCADE;" json:"elements" validate:"max=10,dive"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (CarouselTemplate) TableName() string {
	return "carousel_templates"
}

type CarouselElement struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	CarouselTemplateID uint             `gorm:"index;not null" json:"carousel_template_id"`
	Position           int              `json:"position"`
	Title              string           `gorm:"type:varchar(80)" json:"title" validate:"required"`
	Subtitle           string           `gorm:"type:varchar(80)" json:"subtitle"`
	ImageURL           string           `gorm:"type:text" json:"image_url"`
	DefaultActionURL   string           `gorm:"type:text" json:"default_action_url"`
	Buttons            []CarouselButton `gorm:"foreignKey:CarouselElementID;constraint:OnDelete:CASCADE;" json:"buttons" validate:"max=3,dive"`
}

func (CarouselElement) TableName() string {
	return "carousel_elements"
}

type CarouselButton struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	CarouselElementID uint   `gorm:"index;not null" json:"carousel_element_id"`
	Position          int    `json:"position"`
	Type              string `gorm:"type:varchar(20)" json:"type" validate:"oneof=WEB_URL POSTBACK"`
	Title             string `gorm:"type:varchar(20)" json:"title" validate:"required"`
	Payload           string `gorm:"type:text" json:"payload" validate:"required"` // URL for WEB_URL
}

func (CarouselButton) TableName() string {
	return "carousel_buttons"
}

// FlowNode is one node of an automation's execution graph
type FlowNode struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"not null;uniqueIndex:idx_flow_node_automation_node" json:"automation_id"`
	NodeID       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_flow_node_automation_node" json:"node_id"` // editor node id
	Type         string    `gorm:"type:varchar(20)" json:"type"`                                                        // trigger, condition, action
	SubType      string    `gorm:"type:varchar(50)" json:"sub_type"`
	Label        string    `gorm:"type:varchar(255)" json:"label"`
	Config       string    `gorm:"type:text" json:"config"` // JSON, shape depends on SubType
	PositionX    float64   `json:"position_x"`
	PositionY    float64   `json:"position_y"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FlowNode) TableName() string {
	return "flow_nodes"
}

type FlowEdge struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AutomationID uint   `gorm:"index;not null" json:"automation_id"`
	EdgeID       string `gorm:"type:varchar(255)" json:"edge_id"`
	SourceNodeID string `gorm:"type:varchar(255);not null" json:"source_node_id"`
	TargetNodeID string `gorm:"type:varchar(255);not null" json:"target_node_id"`
	SourceHandle string `gorm:"type:varchar(100)" json:"source_handle"`
	TargetHandle string `gorm:"type:varchar(100)" json:"target_handle"`
}

func (FlowEdge) TableName() string {
	return "flow_edges"
}

// ChatHistory stores SmartAI conversation turns per sender/page pair
type ChatHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"index" json:"automation_id"`
	PageID       string    `gorm:"type:varchar(100);index:idx_chat_history_page_sender" json:"page_id"`
	SenderID     string    `gorm:"type:varchar(100);index:idx_chat_history_page_sender" json:"sender_id"`
	Role         string    `gorm:"type:varchar(20)" json:"role"`
	Message      string    `gorm:"type:text" json:"message"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ChatHistory) TableName() string {
	return "chat_histories"
}

// ResponseTracking counts delivered responses per automation
type ResponseTracking struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"uniqueIndex;not null" json:"automation_id"`
	DMCount      int64     `gorm:"default:0" json:"dm_count"`
	CommentCount int64     `gorm:"default:0" json:"comment_count"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ResponseTracking) TableName() string {
	return "response_tracking"
}

type AnalyticsEvent struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	AutomationID uint      `gorm:"index" json:"automation_id"`
	EventType    string    `gorm:"type:varchar(50)" json:"event_type"`
	Channel      string    `gorm:"type:varchar(20)" json:"channel"`
	Success      bool      `json:"success"`
	Metadata     string    `gorm:"type:text" json:"metadata"` // JSON
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Integration{},
		&Automation{},
		&Trigger{},
		&Keyword{},
		&Listener{},
		&CarouselTemplate{},
		&CarouselElement{},
		&CarouselButton{},
		&FlowNode{},
		&FlowEdge{},
		&ChatHistory{},
		&ResponseTracking{},
		&AnalyticsEvent{},
	}
}
