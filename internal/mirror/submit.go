package mirror

import (
	"context"
	"fmt"

	"checklist/api/internal/model"
)

var errNoSelection = fmt.Errorf("%w: no category selected", model.ErrValidation)

func (m *Mirror) SubmitCreateCategory(name string) *Task {
	m.mu.Lock()
	slot := &categorySlot{
		key:      m.nextTempLocked(),
		category: model.Category{Name: name},
		status:   StatusPending,
	}
	m.categories = append(m.categories, slot)
	m.mu.Unlock()
	m.changed()

	var created model.Category
	return m.start(func(ctx context.Context) error {
		var err error
		created, err = m.gw.CreateCategory(ctx, name)
		return err
	}, func(err error) {
		m.mu.Lock()
		if err != nil {
			slot.status = StatusRolledBack
			m.categories, _ = removeSlot(m.categories, slot)
		} else if m.findCategoryLocked(created.ID) >= 0 {
			// A reconciliation already brought in the canonical entity.
			slot.status = StatusConfirmed
			m.categories, _ = removeSlot(m.categories, slot)
		} else {
			slot.key = created.ID
			slot.category = created
			slot.status = StatusConfirmed
		}
		m.mu.Unlock()
		m.changed()
		if err != nil && !isCancellation(err) {
			m.notice(Notice{Op: "create category", Err: err})
		}
	})
}

// SubmitCreateItem adds an item to the selected category.
func (m *Mirror) SubmitCreateItem(name, attribution string) *Task {
	m.mu.Lock()
	if m.selected == 0 {
		m.mu.Unlock()
		m.notice(Notice{Op: "create item", Err: errNoSelection})
		return failedTask(errNoSelection)
	}
	categoryID := m.selected
	generation := m.generation
	slot := &itemSlot{
		key:    m.nextTempLocked(),
		item:   model.Item{Name: name, CategoryID: categoryID, Attribution: attribution},
		status: StatusPending,
	}
	m.items = append(m.items, slot)
	m.mu.Unlock()
	m.changed()

	var created model.Item
	return m.start(func(ctx context.Context) error {
		var err error
		created, err = m.gw.CreateItem(ctx, name, categoryID, attribution)
		return err
	}, func(err error) {
		m.mu.Lock()
		switch {
		case m.generation != generation:
			// The selection moved on and the slot went with it.
			slot.status = StatusRolledBack
			if err == nil {
				slot.status = StatusConfirmed
			}
		case err != nil:
			slot.status = StatusRolledBack
			m.items, _ = removeSlot(m.items, slot)
		case m.findItemLocked(created.ID) >= 0:
			slot.status = StatusConfirmed
			m.items, _ = removeSlot(m.items, slot)
		default:
			slot.key = created.ID
			slot.item = created
			slot.status = StatusConfirmed
		}
		m.mu.Unlock()
		m.changed()
		if err != nil && !isCancellation(err) {
			m.notice(Notice{Op: "create item", Err: err})
		}
	})
}

func (m *Mirror) SubmitSetCompletion(id int64, completed bool) *Task {
	m.mu.Lock()
	index := m.findItemLocked(id)
	if id <= 0 || index < 0 {
		m.mu.Unlock()
		err := fmt.Errorf("%w: item %d is not in view", model.ErrNotFound, id)
		m.notice(Notice{Op: "update item", ID: id, Err: err})
		return failedTask(err)
	}
	slot := m.items[index]
	previous := slot.item.Completed
	slot.item.Completed = completed
	m.mu.Unlock()
	m.changed()

	return m.start(func(ctx context.Context) error {
		return m.gw.SetItemCompletion(ctx, id, completed)
	}, func(err error) {
		if err == nil {
			return
		}
		m.mu.Lock()
		// Only undo our own change; a later toggle or a reconciliation owns
		// the value otherwise.
		if slot.item.Completed == completed {
			slot.item.Completed = previous
		}
		m.mu.Unlock()
		m.changed()
		if !isCancellation(err) {
			m.notice(Notice{Op: "update item", ID: id, Err: err})
		}
	})
}

func (m *Mirror) SubmitDeleteItem(id int64) *Task {
	m.mu.Lock()
	index := m.findItemLocked(id)
	if id <= 0 || index < 0 {
		m.mu.Unlock()
		err := fmt.Errorf("%w: item %d is not in view", model.ErrNotFound, id)
		m.notice(Notice{Op: "delete item", ID: id, Err: err})
		return failedTask(err)
	}
	slot := m.items[index]
	m.items, _ = removeSlot(m.items, slot)
	generation := m.generation
	m.mu.Unlock()
	m.changed()

	return m.start(func(ctx context.Context) error {
		return m.gw.DeleteItem(ctx, id)
	}, func(err error) {
		if err == nil {
			return
		}
		m.mu.Lock()
		if m.generation == generation && m.findItemLocked(id) < 0 {
			m.items = insertSlot(m.items, index, slot)
		}
		m.mu.Unlock()
		m.changed()
		if !isCancellation(err) {
			m.notice(Notice{Op: "delete item", ID: id, Err: err})
		}
	})
}

// SubmitDeleteCategory removes the category and, when it is selected, its
// items from view.
func (m *Mirror) SubmitDeleteCategory(id int64) *Task {
	m.mu.Lock()
	index := m.findCategoryLocked(id)
	if id <= 0 || index < 0 {
		m.mu.Unlock()
		err := fmt.Errorf("%w: category %d is not in view", model.ErrNotFound, id)
		m.notice(Notice{Op: "delete category", ID: id, Err: err})
		return failedTask(err)
	}
	slot := m.categories[index]
	m.categories, _ = removeSlot(m.categories, slot)
	wasSelected := m.selected == id
	var items []*itemSlot
	if wasSelected {
		items = m.items
		m.clearSelectionLocked()
	}
	generation := m.generation
	m.mu.Unlock()
	m.changed()

	return m.start(func(ctx context.Context) error {
		return m.gw.DeleteCategory(ctx, id)
	}, func(err error) {
		if err == nil {
			return
		}
		m.mu.Lock()
		if m.findCategoryLocked(id) < 0 {
			m.categories = insertSlot(m.categories, index, slot)
		}
		if wasSelected && m.generation == generation && m.selected == 0 {
			m.generation++
			m.selected = id
			m.items = items
		}
		m.mu.Unlock()
		m.changed()
		if !isCancellation(err) {
			m.notice(Notice{Op: "delete category", ID: id, Err: err})
		}
	})
}
