package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory. Transactions work on a
// copy of the state that replaces the original only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.state.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.state = draft
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListCategories(ctx)
}

func (s *MemoryStore) GetCategory(ctx context.Context, id int64) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetCategory(ctx, id)
}

func (s *MemoryStore) LockCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LockCategory(ctx, id)
}

func (s *MemoryStore) PutCategory(ctx context.Context, category Category) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PutCategory(ctx, category)
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteCategory(ctx, id)
}

func (s *MemoryStore) GetItem(ctx context.Context, id int64) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetItem(ctx, id)
}

func (s *MemoryStore) PutItem(ctx context.Context, item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PutItem(ctx, item)
}

func (s *MemoryStore) ListByParent(ctx context.Context, categoryID int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListByParent(ctx, categoryID)
}

func (s *MemoryStore) SetItemCompletion(ctx context.Context, id int64, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetItemCompletion(ctx, id, completed)
}

func (s *MemoryStore) DeleteItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteItem(ctx, id)
}

func (s *MemoryStore) DeleteAllByParent(ctx context.Context, categoryID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteAllByParent(ctx, categoryID)
}

// memSequence is shared by a state and all of its clones, so an id taken
// inside a rolled back transaction is never handed out again.
type memSequence struct {
	category int64
	item     int64
}

// memState is the unlocked table set; callers hold MemoryStore.mu.
type memState struct {
	seq        *memSequence
	categories map[int64]Category
	items      map[int64]Item
}

func newMemState() *memState {
	return &memState{
		seq:        &memSequence{},
		categories: map[int64]Category{},
		items:      map[int64]Item{},
	}
}

func (m *memState) clone() *memState {
	out := &memState{
		seq:        m.seq,
		categories: make(map[int64]Category, len(m.categories)),
		items:      make(map[int64]Item, len(m.items)),
	}
	for id, category := range m.categories {
		out.categories[id] = category
	}
	for id, item := range m.items {
		out.items[id] = item
	}
	return out
}

func (m *memState) ListCategories(context.Context) ([]Category, error) {
	categories := make([]Category, 0, len(m.categories))
	for _, category := range m.categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

func (m *memState) GetCategory(_ context.Context, id int64) (Category, error) {
	category, ok := m.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	return category, nil
}

func (m *memState) LockCategory(_ context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *memState) PutCategory(_ context.Context, category Category) (Category, error) {
	m.seq.category++
	category.ID = m.seq.category
	m.categories[category.ID] = category
	return category, nil
}

func (m *memState) DeleteCategory(_ context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return ErrNotFound
	}
	for _, item := range m.items {
		if item.CategoryID == id {
			return ErrMissingParent
		}
	}
	delete(m.categories, id)
	return nil
}

func (m *memState) GetItem(_ context.Context, id int64) (Item, error) {
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (m *memState) PutItem(_ context.Context, item Item) (Item, error) {
	if _, ok := m.categories[item.CategoryID]; !ok {
		return Item{}, ErrMissingParent
	}
	m.seq.item++
	item.ID = m.seq.item
	m.items[item.ID] = item
	return item, nil
}

func (m *memState) ListByParent(_ context.Context, categoryID int64) ([]Item, error) {
	items := make([]Item, 0)
	for _, item := range m.items {
		if item.CategoryID == categoryID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memState) SetItemCompletion(_ context.Context, id int64, completed bool) error {
	item, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	item.Completed = completed
	m.items[id] = item
	return nil
}

func (m *memState) DeleteItem(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memState) DeleteAllByParent(_ context.Context, categoryID int64) (int64, error) {
	var removed int64
	for id, item := range m.items {
		if item.CategoryID == categoryID {
			delete(m.items, id)
			removed++
		}
	}
	return removed, nil
}
