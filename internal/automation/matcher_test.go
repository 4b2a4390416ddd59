package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"instaflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFinder struct {
	automations []models.Automation
	err         error
}

func (s staticFinder) ActiveAutomationsForTrigger(ctx context.Context, trigger, pageID string) ([]models.Automation, error) {
	return s.automations, s.err
}

func automation(id uint, created time.Time, kind string, keywords ...string) models.Automation {
	a := models.Automation{ID: id, Active: true, CreatedAt: created, Triggers: []models.Trigger{{Type: kind}}}
	for _, k := range keywords {
		a.Keywords = append(a.Keywords, models.Keyword{Word: k})
	}
	return a
}

func TestMatchKeywordsCaseInsensitiveSubstring(t *testing.T) {
	now := time.Now()
	m := NewMatcher(staticFinder{automations: []models.Automation{automation(1, now, "DM", "sale")}})
	ctx := context.Background()

	got, err := m.Match(ctx, TriggerDM, "Give me the SALE price", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(1), got.ID)

	got, err = m.Match(ctx, TriggerDM, "hello", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatchWildcard(t *testing.T) {
	m := NewMatcher(staticFinder{automations: []models.Automation{automation(1, time.Now(), "DM")}})

	got, err := m.Match(context.Background(), TriggerDM, "hello", "")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = m.Match(context.Background(), TriggerDM, "", "")
	require.NoError(t, err)
	assert.NotNil(t, got, "wildcard also answers events without text")
}

func TestMatchBlankKeywordsAreWildcard(t *testing.T) {
	m := NewMatcher(staticFinder{automations: []models.Automation{automation(1, time.Now(), "DM", "  ", "")}})

	got, err := m.Match(context.Background(), TriggerDM, "anything", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMatchKeywordBeatsWildcard(t *testing.T) {
	now := time.Now()
	m := NewMatcher(staticFinder{automations: []models.Automation{
		automation(1, now, "DM"),
		automation(2, now.Add(-time.Hour), "DM", "price"),
	}})

	got, err := m.Match(context.Background(), TriggerDM, "what's the price?", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(2), got.ID)
}

func TestMatchLongestKeywordThenNewest(t *testing.T) {
	now := time.Now()
	m := NewMatcher(staticFinder{automations: []models.Automation{
		automation(1, now, "DM", "price"),
		automation(2, now.Add(-time.Hour), "DM", "price list"),
		automation(3, now.Add(-2*time.Hour), "DM", "list"),
	}})

	got, err := m.Match(context.Background(), TriggerDM, "send the price list", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.ID)

	m = NewMatcher(staticFinder{automations: []models.Automation{
		automation(4, now.Add(-time.Hour), "DM", "hi"),
		automation(5, now, "DM", "hi"),
		automation(6, now, "DM", "hi"),
	}})
	got, err = m.Match(context.Background(), TriggerDM, "hi there", "")
	require.NoError(t, err)
	assert.Equal(t, uint(6), got.ID, "same length and time falls back to higher id")
}

func TestMatchIgnoresInactiveAndOtherTriggers(t *testing.T) {
	inactive := automation(1, time.Now(), "DM")
	inactive.Active = false
	m := NewMatcher(staticFinder{automations: []models.Automation{inactive, automation(2, time.Now(), "COMMENT")}})

	got, err := m.Match(context.Background(), TriggerDM, "hello", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatchPropagatesStoreErrors(t *testing.T) {
	m := NewMatcher(staticFinder{err: errors.New("db down")})
	_, err := m.Match(context.Background(), TriggerDM, "hello", "")
	assert.Error(t, err)
}

func TestMatchAgainstStorePageScope(t *testing.T) {
	st := newTestStore(t)
	owner := seedOwner(t, st, models.PlanFree)
	a := seedAutomation(t, st, owner, automationSeed{Active: true, Triggers: []string{"DM"}, Keywords: []string{"price"}})

	m := NewMatcher(st)
	got, err := m.Match(context.Background(), TriggerDM, "PRICE?", testPage)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)

	got, err = m.Match(context.Background(), TriggerDM, "PRICE?", "another-page")
	require.NoError(t, err)
	assert.Nil(t, got)
}
