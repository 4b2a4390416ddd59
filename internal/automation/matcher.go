package automation

import (
	"context"
	"strings"

	"instaflow/internal/models"
)

// AutomationFinder lists candidate automations for the matcher.
type AutomationFinder interface {
	ActiveAutomationsForTrigger(ctx context.Context, trigger, pageID string) ([]models.Automation, error)
}

// Matcher resolves which automation handles an inbound event.
//
// Candidates are active automations declaring the trigger kind. A candidate
// matches when the text contains one of its keywords (case-insensitive) or
// when it has no keywords at all. Ranking among matches:
//  1. keyword matches beat wildcards
//  2. longer matched keyword wins
//  3. newer automation wins, then higher id
type Matcher struct {
	finder AutomationFinder
}

func NewMatcher(finder AutomationFinder) *Matcher {
	return &Matcher{finder: finder}
}

// Match returns the winning automation, or nil when nothing matches.
func (m *Matcher) Match(ctx context.Context, kind TriggerKind, text, pageID string) (*models.Automation, error) {
	candidates, err := m.finder.ActiveAutomationsForTrigger(ctx, string(kind), pageID)
	if err != nil {
		return nil, err
	}

	var best *models.Automation
	bestScore := -1

	for i := range candidates {
		a := &candidates[i]
		if !a.Active || !a.HasTrigger(string(kind)) {
			continue
		}

		score := -1
		if !hasKeywords(a.KeywordList()) {
			score = 0
		} else if matched, length := matchKeywords(text, a.KeywordList()); matched {
			score = length
		}
		if score < 0 {
			continue
		}

		if best == nil || score > bestScore || (score == bestScore && newer(a, best)) {
			best = a
			bestScore = score
		}
	}
	return best, nil
}

func newer(a, b *models.Automation) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func hasKeywords(keywords []string) bool {
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}

// matchKeywords reports whether text contains any non-blank keyword,
// ignoring case, and the length of the longest one found.
func matchKeywords(text string, keywords []string) (bool, int) {
	lowered := strings.ToLower(text)
	matched, longest := false, 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || !strings.Contains(lowered, k) {
			continue
		}
		matched = true
		if len(k) > longest {
			longest = len(k)
		}
	}
	return matched, longest
}
