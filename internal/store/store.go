// Package store is the relational persistence layer for automations, their
// flow graphs, conversation history and response tracking.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"instaflow/internal/models"
	"instaflow/internal/tracking"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Engine reads ---

// ActiveAutomationsForTrigger returns active automations that declare the
// trigger kind, newest first, with keywords and triggers loaded. A non-empty
// pageID restricts the result to owners connected to that page.
func (s *GormStore) ActiveAutomationsForTrigger(ctx context.Context, trigger, pageID string) ([]models.Automation, error) {
	q := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("id IN (?)", s.db.Model(&models.Trigger{}).Select("automation_id").Where("type = ?", trigger))

	if pageID != "" {
		q = q.Where("user_id IN (?)", s.db.Model(&models.Integration{}).Select("user_id").Where("instagram_id = ?", pageID))
	}

	var automations []models.Automation
	err := q.Preload("Keywords").
		Preload("Triggers").
		Order("created_at DESC, id DESC").
		Find(&automations).Error
	if err != nil {
		return nil, fmt.Errorf("list automations for trigger %s: %w", trigger, err)
	}
	return automations, nil
}

func (s *GormStore) GetAutomation(ctx context.Context, id uint) (*models.Automation, error) {
	var a models.Automation
	err := s.db.WithContext(ctx).
		Preload("Listener").
		Preload("Triggers").
		Preload("Keywords").
		First(&a, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *GormStore) HasFlowNodes(ctx context.Context, automationID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.FlowNode{}).
		Where("automation_id = ?", automationID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) LoadFlow(ctx context.Context, automationID uint) ([]models.FlowNode, []models.FlowEdge, error) {
	var nodes []models.FlowNode
	var edges []models.FlowEdge

	if err := s.db.WithContext(ctx).Where("automation_id = ?", automationID).Order("id ASC").Find(&nodes).Error; err != nil {
		return nil, nil, err
	}
	if err := s.db.WithContext(ctx).Where("automation_id = ?", automationID).Order("id ASC").Find(&edges).Error; err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// GetCarouselTemplate loads a template with ordered elements and buttons.
// A nil templateID selects the automation's first template. Missing
// templates yield (nil, nil).
func (s *GormStore) GetCarouselTemplate(ctx context.Context, automationID uint, templateID *uint) (*models.CarouselTemplate, error) {
	byPosition := func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}

	q := s.db.WithContext(ctx).
		Preload("Elements", byPosition).
		Preload("Elements.Buttons", byPosition).
		Where("automation_id = ?", automationID)
	if templateID != nil {
		q = q.Where("id = ?", *templateID)
	}

	var tmpl models.CarouselTemplate
	if err := q.Order("id ASC").First(&tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}

func (s *GormStore) GetOwner(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Preload("Integrations").First(&u, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// RecentChatHistory returns up to limit most recent turns, oldest first.
func (s *GormStore) RecentChatHistory(ctx context.Context, automationID uint, pageID, senderID string, limit int) ([]models.ChatHistory, error) {
	var rows []models.ChatHistory
	err := s.db.WithContext(ctx).
		Where("automation_id = ? AND page_id = ? AND sender_id = ?", automationID, pageID, senderID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// LatestChatHistory returns the newest turn for a sender/page pair, or nil.
func (s *GormStore) LatestChatHistory(ctx context.Context, pageID, senderID string) (*models.ChatHistory, error) {
	var row models.ChatHistory
	err := s.db.WithContext(ctx).
		Where("page_id = ? AND sender_id = ?", pageID, senderID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) AppendChatHistory(ctx context.Context, entries ...models.ChatHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&entries).Error
}

// --- Tracking sink ---

func (s *GormStore) IncrementResponse(ctx context.Context, automationID uint, channel string) error {
	column := "dm_count"
	if channel == tracking.ChannelComment {
		column = "comment_count"
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.ResponseTracking{AutomationID: automationID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&models.ResponseTracking{}).
			Where("automation_id = ?", automationID).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error
	})
}

func (s *GormStore) InsertAnalytics(ctx context.Context, ev tracking.Event) error {
	meta := "{}"
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal analytics metadata: %w", err)
		}
		meta = string(b)
	}

	row := models.AnalyticsEvent{
		ID:           uuid.NewString(),
		UserID:       ev.UserID,
		AutomationID: ev.AutomationID,
		EventType:    ev.EventType,
		Channel:      ev.Channel,
		Success:      ev.Success,
		Metadata:     meta,
		CreatedAt:    ev.At,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) GetTracking(ctx context.Context, automationID uint) (*models.ResponseTracking, error) {
	var row models.ResponseTracking
	err := s.db.WithContext(ctx).Where("automation_id = ?", automationID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ResponseTracking{AutomationID: automationID}, nil
	}
	return &row, err
}

func (s *GormStore) RecentAnalytics(ctx context.Context, automationID uint, limit int) ([]models.AnalyticsEvent, error) {
	var rows []models.AnalyticsEvent
	err := s.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
