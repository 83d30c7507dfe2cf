package mirror

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"checklist/api/internal/metrics"
	"checklist/api/internal/model"
)

// Select shows the items of a category. Responses for an earlier selection
// are discarded when they arrive.
func (m *Mirror) Select(ctx context.Context, id int64) error {
	m.mu.Lock()
	if id <= 0 || m.findCategoryLocked(id) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: category %d is not in view", model.ErrNotFound, id)
	}
	m.generation++
	generation := m.generation
	m.selected = id
	m.items = nil
	m.mu.Unlock()
	m.changed()

	items, err := m.gw.ListItems(ctx, id)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale item list", zap.Int64("category", id))
		return nil
	}
	m.items = mergeItems(items, m.items)
	m.mu.Unlock()
	m.changed()
	return nil
}

func (m *Mirror) ClearSelection() {
	m.mu.Lock()
	m.clearSelectionLocked()
	m.mu.Unlock()
	m.changed()
}

func (m *Mirror) clearSelectionLocked() {
	m.generation++
	m.selected = 0
	m.items = nil
}

// Reconcile re-reads the category list and the selected category's items
// and replaces every confirmed entry with what the server returned. Pending
// creates stay until their own response settles them. A selected category
// that no longer exists is deselected.
func (m *Mirror) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	generation := m.generation
	selected := m.selected
	m.mu.Unlock()

	categories, err := m.gw.ListCategories(ctx)
	if err != nil {
		metrics.Reconciles.WithLabelValues("error").Inc()
		return fmt.Errorf("list categories: %w", err)
	}

	var items []model.Item
	selectedExists := selected == 0 || containsCategory(categories, selected)
	if selected != 0 && selectedExists {
		items, err = m.gw.ListItems(ctx, selected)
		if err != nil {
			metrics.Reconciles.WithLabelValues("error").Inc()
			return fmt.Errorf("list items: %w", err)
		}
	}

	m.mu.Lock()
	m.categories = mergeCategories(categories, m.categories)
	if m.generation == generation {
		switch {
		case !selectedExists:
			m.logger.Info("selected category is gone", zap.Int64("category", selected))
			m.clearSelectionLocked()
		case selected != 0:
			m.items = mergeItems(items, m.items)
		}
	}
	m.mu.Unlock()

	metrics.Reconciles.WithLabelValues("ok").Inc()
	m.changed()
	return nil
}

// Run reconciles once per signal until ctx is done or signals is closed.
// A failed reconciliation is logged and retried on the next signal.
func (m *Mirror) Run(ctx context.Context, signals <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			if err := m.Reconcile(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Warn("reconcile failed", zap.Error(err))
			}
		}
	}
}

func containsCategory(categories []model.Category, id int64) bool {
	for _, category := range categories {
		if category.ID == id {
			return true
		}
	}
	return false
}

// mergeCategories keeps pending slots after the server's list. A pending
// create may already be committed and present in fresh; the signal carries
// no ids, so the two cannot be matched here and both show until the create
// response settles the pending slot, which then drops itself.
func mergeCategories(fresh []model.Category, current []*categorySlot) []*categorySlot {
	out := make([]*categorySlot, 0, len(fresh)+len(current))
	for _, category := range fresh {
		out = append(out, &categorySlot{key: category.ID, category: category, status: StatusConfirmed})
	}
	for _, slot := range current {
		if slot.status == StatusPending {
			out = append(out, slot)
		}
	}
	return out
}

func mergeItems(fresh []model.Item, current []*itemSlot) []*itemSlot {
	out := make([]*itemSlot, 0, len(fresh)+len(current))
	for _, item := range fresh {
		out = append(out, &itemSlot{key: item.ID, item: item, status: StatusConfirmed})
	}
	for _, slot := range current {
		if slot.status == StatusPending {
			out = append(out, slot)
		}
	}
	return out
}
