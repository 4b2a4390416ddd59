package automation

import (
	"context"
	"fmt"
	"strings"

	"instaflow/internal/instagram"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// ConditionEvaluator decides condition nodes against the live event. Every
// failure evaluates to false.
type ConditionEvaluator struct {
	messenger Messenger
	cache     *cache.Cache
}

// NewConditionEvaluator caches follower and hashtag lookups in c when it is
// non-nil.
func NewConditionEvaluator(m Messenger, c *cache.Cache) *ConditionEvaluator {
	return &ConditionEvaluator{messenger: m, cache: c}
}

func (ce *ConditionEvaluator) Evaluate(ctx context.Context, node *Node, ec *EventContext) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("node_id", node.ID).
				Str("sub_type", node.SubType).
				Interface("panic", r).
				Msg("Condition evaluation panicked, treating as false")
			result = false
		}
	}()

	switch node.SubType {
	case SubIsFollower:
		return ce.isFollower(ctx, node, ec)
	case SubHasTag:
		cfg, _ := node.Config.(HasTagConfig)
		return ce.hasTag(ctx, cfg, ec)
	case SubYes:
		return true
	case SubNo:
		return false
	default:
		log.Debug().Str("node_id", node.ID).Str("sub_type", node.SubType).Msg("Unknown condition, defaulting to true")
		return true
	}
}

func (ce *ConditionEvaluator) isFollower(ctx context.Context, node *Node, ec *EventContext) bool {
	key := fmt.Sprintf("follower:%s:%s", ec.PageID, ec.SenderID)
	if ce.cache != nil {
		if v, found := ce.cache.Get(key); found {
			return v.(bool)
		}
	}

	following, err := ce.messenger.IsFollower(ctx, ec.Token, ec.PageID, ec.SenderID)
	if err != nil {
		log.Warn().Err(err).Str("node_id", node.ID).Str("sender_id", ec.SenderID).Msg("Follower check failed")
		return false
	}
	if ce.cache != nil {
		ce.cache.SetDefault(key, following)
	}
	return following
}

func (ce *ConditionEvaluator) hasTag(ctx context.Context, cfg HasTagConfig, ec *EventContext) bool {
	required := make([]string, 0, len(cfg.Tags))
	for _, t := range cfg.Tags {
		if t = normalizeTag(t); t != "" {
			required = append(required, t)
		}
	}
	if len(required) == 0 {
		return true
	}

	present := make(map[string]bool)
	if ec.MediaID != "" {
		tags, err := ce.mediaHashtags(ctx, ec)
		if err != nil {
			log.Warn().Err(err).Str("media_id", ec.MediaID).Msg("Media hashtag lookup failed")
			return false
		}
		for _, t := range tags {
			present[normalizeTag(t)] = true
		}
	}
	for _, t := range instagram.ExtractHashtags(ec.Text) {
		present[t] = true
	}

	for _, t := range required {
		if present[t] {
			return true
		}
	}
	return false
}

func (ce *ConditionEvaluator) mediaHashtags(ctx context.Context, ec *EventContext) ([]string, error) {
	key := "hashtags:" + ec.MediaID
	if ce.cache != nil {
		if v, found := ce.cache.Get(key); found {
			return v.([]string), nil
		}
	}
	tags, err := ce.messenger.GetMediaHashtags(ctx, ec.Token, ec.MediaID)
	if err != nil {
		return nil, err
	}
	if ce.cache != nil {
		ce.cache.SetDefault(key, tags)
	}
	return tags, nil
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
}
