package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"instaflow/internal/models"
)

var ErrNotConvertible = errors.New("listener has no graph equivalent")

// ListenerToFlow builds the flow graph that sends what an automation's
// listener sends: one chain of actions per trigger kind. Listener setups
// the graph executor would answer with different messages are refused with
// ErrNotConvertible. Response counters follow the graph's channel rules.
func ListenerToFlow(a *models.Automation) ([]models.FlowNode, []models.FlowEdge, error) {
	l := a.Listener
	if l == nil {
		return nil, nil, fmt.Errorf("%w: no listener", ErrNotConvertible)
	}

	var nodes []models.FlowNode
	var edges []models.FlowEdge

	for _, t := range a.Triggers {
		kind := strings.ToUpper(t.Type)
		prefix := strings.ToLower(kind)

		actions, err := listenerActions(l, TriggerKind(kind))
		if err != nil {
			return nil, nil, err
		}

		prev := prefix + "-trigger"
		nodes = append(nodes, models.FlowNode{NodeID: prev, Type: NodeTrigger, SubType: kind, Label: kind})
		for i, act := range actions {
			cfg, err := json.Marshal(act.config)
			if err != nil {
				return nil, nil, err
			}
			id := fmt.Sprintf("%s-%d", prefix, i+1)
			nodes = append(nodes, models.FlowNode{
				NodeID:    id,
				Type:      NodeAction,
				SubType:   act.subType,
				Label:     act.subType,
				Config:    string(cfg),
				PositionY: float64(i+1) * 120,
			})
			edges = append(edges, models.FlowEdge{EdgeID: prev + "->" + id, SourceNodeID: prev, TargetNodeID: id})
			prev = id
		}
	}

	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("%w: no triggers", ErrNotConvertible)
	}
	return nodes, edges, nil
}

type convertedAction struct {
	subType string
	config  NodeConfig
}

func listenerActions(l *models.Listener, kind TriggerKind) ([]convertedAction, error) {
	switch l.Listener {
	case models.ListenerMessage:
		if l.CarouselTemplateID != nil {
			return nil, fmt.Errorf("%w: message listener with a carousel attached", ErrNotConvertible)
		}
		// Without a prompt the listener sends nothing, not even the comment reply.
		if strings.TrimSpace(l.Prompt) == "" {
			return nil, fmt.Errorf("%w: message listener without a prompt", ErrNotConvertible)
		}
		var out []convertedAction
		if kind == TriggerComment && l.CommentReply != "" {
			out = append(out, convertedAction{SubReplyComment, MessageConfig{Text: l.CommentReply}})
		}
		return append(out, convertedAction{SubMessage, MessageConfig{Message: l.Prompt}}), nil

	case models.ListenerCarousel:
		return []convertedAction{{SubCarousel, CarouselConfig{
			TemplateID:      l.CarouselTemplateID,
			Message:         l.Prompt,
			FallbackOnError: true,
		}}}, nil

	case models.ListenerSmartAI:
		// Legacy comments get a private reply, graph SMARTAI answers by DM.
		if kind == TriggerComment {
			return nil, fmt.Errorf("%w: SmartAI comment listener", ErrNotConvertible)
		}
		return []convertedAction{{SubSmartAI, SmartAIConfig{Prompt: l.Prompt}}}, nil
	}
	return nil, fmt.Errorf("%w: unknown listener %q", ErrNotConvertible, l.Listener)
}
