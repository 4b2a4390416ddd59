package store

import (
	"context"
	"fmt"
	"strings"

	"instaflow/internal/models"

	"gorm.io/gorm"
)

// FlowSnapshot is the full editable state of an automation as saved from the
// dashboard. Saving replaces every section.
type FlowSnapshot struct {
	Triggers []string
	Keywords []string
	Listener *models.Listener
	Nodes    []models.FlowNode
	Edges    []models.FlowEdge
}

func (s *GormStore) CreateAutomation(ctx context.Context, a *models.Automation) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormStore) ListAutomations(ctx context.Context, userID uint) ([]models.Automation, error) {
	var automations []models.Automation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Triggers").
		Preload("Keywords").
		Preload("Listener").
		Order("created_at DESC, id DESC").
		Find(&automations).Error
	return automations, err
}

func (s *GormStore) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Automation{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAutomation removes the automation and every dependent row.
func (s *GormStore) DeleteAutomation(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Automation
		if err := tx.Select("id").First(&a, id).Error; err != nil {
			return notFound(err)
		}

		templates := tx.Model(&models.CarouselTemplate{}).Select("id").Where("automation_id = ?", id)
		elements := tx.Model(&models.CarouselElement{}).Select("id").Where("carousel_template_id IN (?)", templates)

		steps := []struct {
			model interface{}
			query string
			arg   interface{}
		}{
			{&models.CarouselButton{}, "carousel_element_id IN (?)", elements},
			{&models.CarouselElement{}, "carousel_template_id IN (?)", templates},
			{&models.CarouselTemplate{}, "automation_id = ?", id},
			{&models.FlowEdge{}, "automation_id = ?", id},
			{&models.FlowNode{}, "automation_id = ?", id},
			{&models.Keyword{}, "automation_id = ?", id},
			{&models.Trigger{}, "automation_id = ?", id},
			{&models.Listener{}, "automation_id = ?", id},
			{&models.ResponseTracking{}, "automation_id = ?", id},
		}
		for _, step := range steps {
			if err := tx.Where(step.query, step.arg).Delete(step.model).Error; err != nil {
				return fmt.Errorf("cascade delete: %w", err)
			}
		}
		return tx.Delete(&models.Automation{}, id).Error
	})
}

// SaveFlow replaces triggers, keywords, listener, nodes and edges of an
// automation in one transaction.
func (s *GormStore) SaveFlow(ctx context.Context, automationID uint, snap FlowSnapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Automation
		if err := tx.Select("id").First(&a, automationID).Error; err != nil {
			return notFound(err)
		}

		for _, model := range []interface{}{&models.FlowEdge{}, &models.FlowNode{}, &models.Keyword{}, &models.Trigger{}, &models.Listener{}} {
			if err := tx.Where("automation_id = ?", automationID).Delete(model).Error; err != nil {
				return err
			}
		}

		seen := make(map[string]bool)
		var triggers []models.Trigger
		for _, t := range snap.Triggers {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			triggers = append(triggers, models.Trigger{AutomationID: automationID, Type: t})
		}
		if len(triggers) > 0 {
			if err := tx.Create(&triggers).Error; err != nil {
				return fmt.Errorf("save triggers: %w", err)
			}
		}

		var keywords []models.Keyword
		for _, w := range snap.Keywords {
			if w = strings.TrimSpace(w); w != "" {
				keywords = append(keywords, models.Keyword{AutomationID: automationID, Word: w})
			}
		}
		if len(keywords) > 0 {
			if err := tx.Create(&keywords).Error; err != nil {
				return fmt.Errorf("save keywords: %w", err)
			}
		}

		if snap.Listener != nil {
			l := *snap.Listener
			l.ID = 0
			l.AutomationID = automationID
			if err := tx.Create(&l).Error; err != nil {
				return fmt.Errorf("save listener: %w", err)
			}
		}

		if len(snap.Nodes) > 0 {
			nodes := make([]models.FlowNode, len(snap.Nodes))
			for i, n := range snap.Nodes {
				n.ID = 0
				n.AutomationID = automationID
				nodes[i] = n
			}
			if err := tx.Create(&nodes).Error; err != nil {
				return fmt.Errorf("save nodes: %w", err)
			}
		}

		if len(snap.Edges) > 0 {
			edges := make([]models.FlowEdge, len(snap.Edges))
			for i, e := range snap.Edges {
				e.ID = 0
				e.AutomationID = automationID
				edges[i] = e
			}
			if err := tx.Create(&edges).Error; err != nil {
				return fmt.Errorf("save edges: %w", err)
			}
		}
		return nil
	})
}

// DeleteNode removes one node and every edge touching it.
func (s *GormStore) DeleteNode(ctx context.Context, automationID uint, nodeID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("automation_id = ? AND node_id = ?", automationID, nodeID).Delete(&models.FlowNode{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("automation_id = ? AND (source_node_id = ? OR target_node_id = ?)", automationID, nodeID, nodeID).
			Delete(&models.FlowEdge{}).Error
	})
}

// SaveCarouselTemplate stores a template with its elements and buttons,
// assigning positions from slice order.
func (s *GormStore) SaveCarouselTemplate(ctx context.Context, automationID uint, tmpl *models.CarouselTemplate) error {
	tmpl.ID = 0
	tmpl.AutomationID = automationID
	for i := range tmpl.Elements {
		tmpl.Elements[i].ID = 0
		tmpl.Elements[i].Position = i
		for j := range tmpl.Elements[i].Buttons {
			tmpl.Elements[i].Buttons[j].ID = 0
			tmpl.Elements[i].Buttons[j].Position = j
		}
	}
	return s.db.WithContext(ctx).Create(tmpl).Error
}

// LegacyAutomations returns automations that still answer through a
// listener and have no flow nodes.
func (s *GormStore) LegacyAutomations(ctx context.Context) ([]models.Automation, error) {
	var automations []models.Automation
	err := s.db.WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM listeners WHERE listeners.automation_id = automations.id)").
		Where("NOT EXISTS (SELECT 1 FROM flow_nodes WHERE flow_nodes.automation_id = automations.id)").
		Preload("Listener").
		Preload("Triggers").
		Preload("Keywords").
		Order("id").
		Find(&automations).Error
	if err != nil {
		return nil, fmt.Errorf("list legacy automations: %w", err)
	}
	return automations, nil
}
