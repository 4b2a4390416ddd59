package automation

import (
	"encoding/json"
	"strings"
)

// NodeConfig is the decoded per-subtype configuration of a flow node.
type NodeConfig interface {
	isNodeConfig()
}

type KeywordsConfig struct {
	Keywords []string `json:"keywords"`
}

// MessageConfig serves MESSAGE and REPLY_COMMENT.
type MessageConfig struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (c MessageConfig) Content() string {
	if s := strings.TrimSpace(c.Message); s != "" {
		return c.Message
	}
	return strings.TrimSpace(c.Text)
}

type SmartAIConfig struct {
	Prompt  string `json:"prompt"`
	Message string `json:"message"`
}

func (c SmartAIConfig) SystemPrompt() string {
	if c.Prompt != "" {
		return c.Prompt
	}
	return c.Message
}

type CarouselConfig struct {
	TemplateID *uint `json:"templateId"`
	// Message is sent as a plain DM when the template is missing or empty.
	Message string `json:"message"`
	// FallbackOnError also sends Message when the template cannot be loaded,
	// fails validation or is rejected by the platform.
	FallbackOnError bool `json:"fallbackOnError"`
}

type ButtonConfig struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Payload string `json:"payload"`
}

type ButtonTemplateConfig struct {
	Text    string         `json:"text"`
	Buttons []ButtonConfig `json:"buttons"`
}

type ProductTemplateConfig struct {
	ProductIDs []string `json:"productIds"`
}

type QuickReplyConfig struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type QuickRepliesConfig struct {
	Text         string             `json:"text"`
	QuickReplies []QuickReplyConfig `json:"quickReplies"`
}

type IceBreakerConfig struct {
	Question string `json:"question"`
	Payload  string `json:"payload"`
}

type IceBreakersConfig struct {
	IceBreakers []IceBreakerConfig `json:"iceBreakers"`
}

type MenuItemConfig struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Payload string `json:"payload"`
}

type PersistentMenuConfig struct {
	MenuItems []MenuItemConfig `json:"menuItems"`
}

type HasTagConfig struct {
	Tags []string `json:"tags"`
}

// EmptyConfig is used by subtypes that take no configuration.
type EmptyConfig struct{}

// RawConfig keeps the payload of subtypes the engine does not know.
type RawConfig struct {
	Data map[string]interface{}
}

func (KeywordsConfig) isNodeConfig()        {}
func (MessageConfig) isNodeConfig()         {}
func (SmartAIConfig) isNodeConfig()         {}
func (CarouselConfig) isNodeConfig()        {}
func (ButtonTemplateConfig) isNodeConfig()  {}
func (ProductTemplateConfig) isNodeConfig() {}
func (QuickRepliesConfig) isNodeConfig()    {}
func (IceBreakersConfig) isNodeConfig()     {}
func (PersistentMenuConfig) isNodeConfig()  {}
func (HasTagConfig) isNodeConfig()          {}
func (EmptyConfig) isNodeConfig()           {}
func (RawConfig) isNodeConfig()             {}

// DecodeNodeConfig parses the stored JSON config of a node into the variant
// for its subtype. An empty string decodes as an empty object.
func DecodeNodeConfig(subType, raw string) (NodeConfig, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	switch subType {
	case SubKeywords:
		return decodeInto[KeywordsConfig](raw)
	case SubMessage, SubReplyComment:
		return decodeInto[MessageConfig](raw)
	case SubSmartAI:
		return decodeInto[SmartAIConfig](raw)
	case SubCarousel:
		return decodeInto[CarouselConfig](raw)
	case SubButtonTemplate:
		return decodeInto[ButtonTemplateConfig](raw)
	case SubProductTemplate:
		return decodeInto[ProductTemplateConfig](raw)
	case SubQuickReplies:
		return decodeInto[QuickRepliesConfig](raw)
	case SubIceBreakers:
		return decodeInto[IceBreakersConfig](raw)
	case SubPersistentMenu:
		return decodeInto[PersistentMenuConfig](raw)
	case SubHasTag:
		return decodeInto[HasTagConfig](raw)
	case string(TriggerDM), string(TriggerComment), SubIsFollower, SubYes, SubNo, SubTypingOn, SubTypingOff, SubMarkSeen:
		return EmptyConfig{}, nil
	default:
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return RawConfig{}, err
		}
		return RawConfig{Data: data}, nil
	}
}

func decodeInto[T NodeConfig](raw string) (NodeConfig, error) {
	var cfg T
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		var zero T
		return zero, err
	}
	return cfg, nil
}
