// Package mirror keeps a client-side copy of the checklist. Mutations are
// applied locally before the server confirms them; an invalidation signal
// triggers a re-fetch that brings the copy back in line with the server.
package mirror

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"checklist/api/internal/model"
)

// Gateway is the request/response surface the mirror drives.
type Gateway interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListItems(ctx context.Context, categoryID int64) ([]model.Item, error)
	CreateCategory(ctx context.Context, name string) (model.Category, error)
	CreateItem(ctx context.Context, name string, categoryID int64, attribution string) (model.Item, error)
	SetItemCompletion(ctx context.Context, id int64, completed bool) error
	DeleteItem(ctx context.Context, id int64) error
	DeleteCategory(ctx context.Context, id int64) error
}

type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusRolledBack
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusRolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// A slot holds one entity. key is the canonical id once confirmed and a
// negative temporary id while pending.
type categorySlot struct {
	key      int64
	category model.Category
	status   Status
}

type itemSlot struct {
	key    int64
	item   model.Item
	status Status
}

type CategoryView struct {
	model.Category
	Pending bool
}

type ItemView struct {
	model.Item
	Pending bool
}

// View is a snapshot. Pending entities carry ID 0.
type View struct {
	Categories []CategoryView
	Items      []ItemView
	// Selected is 0 when no category is selected.
	Selected int64
}

// Notice reports a mutation the server refused or that never reached it.
// The local change has already been undone when it is delivered.
type Notice struct {
	Op  string
	ID  int64
	Err error
}

func (n Notice) Message() string {
	return n.Op + ": " + n.Err.Error()
}

type Mirror struct {
	gw       Gateway
	logger   *zap.Logger
	onChange func(View)
	onNotice func(Notice)
	clock    func() int64

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	emitMu sync.Mutex

	mu         sync.Mutex
	categories []*categorySlot
	items      []*itemSlot
	selected   int64
	generation uint64
	lastTemp   int64
}

type Option func(*Mirror)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Mirror) { m.logger = logger }
}

// WithOnChange registers a callback that receives a fresh View after every
// local change. Calls are serialized. The callback may call View but must
// not submit mutations.
func WithOnChange(fn func(View)) Option {
	return func(m *Mirror) { m.onChange = fn }
}

func WithOnNotice(fn func(Notice)) Option {
	return func(m *Mirror) { m.onNotice = fn }
}

// WithClock replaces the source of temporary ids.
func WithClock(clock func() int64) Option {
	return func(m *Mirror) { m.clock = clock }
}

func New(gw Gateway, opts ...Option) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		gw:     gw,
		logger: zap.NewNop(),
		clock:  func() int64 { return time.Now().UnixNano() },
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("mirror")
	return m
}

// Close cancels every in-flight mutation and waits for them to settle.
func (m *Mirror) Close() {
	m.cancel()
	m.tasks.Wait()
}

func (m *Mirror) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	view := View{
		Categories: make([]CategoryView, 0, len(m.categories)),
		Items:      make([]ItemView, 0, len(m.items)),
		Selected:   m.selected,
	}
	for _, slot := range m.categories {
		entry := CategoryView{Category: slot.category, Pending: slot.status == StatusPending}
		if entry.Pending {
			entry.ID = 0
		}
		view.Categories = append(view.Categories, entry)
	}
	for _, slot := range m.items {
		entry := ItemView{Item: slot.item, Pending: slot.status == StatusPending}
		if entry.Pending {
			entry.ID = 0
		}
		view.Items = append(view.Items, entry)
	}
	return view
}

// nextTempLocked returns a negative id lower than any handed out before.
func (m *Mirror) nextTempLocked() int64 {
	candidate := -m.clock()
	if candidate >= m.lastTemp {
		candidate = m.lastTemp - 1
	}
	m.lastTemp = candidate
	return candidate
}

func (m *Mirror) changed() {
	if m.onChange == nil {
		return
	}
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.onChange(m.View())
}

func (m *Mirror) notice(n Notice) {
	m.logger.Info("mutation undone", zap.String("op", n.Op), zap.Int64("id", n.ID), zap.Error(n.Err))
	if m.onNotice != nil {
		m.onNotice(n)
	}
}

func (m *Mirror) findCategoryLocked(key int64) int {
	for i, slot := range m.categories {
		if slot.key == key {
			return i
		}
	}
	return -1
}

func (m *Mirror) findItemLocked(key int64) int {
	for i, slot := range m.items {
		if slot.key == key {
			return i
		}
	}
	return -1
}

func removeSlot[T comparable](slots []T, target T) ([]T, bool) {
	for i, slot := range slots {
		if slot == target {
			return append(slots[:i:i], slots[i+1:]...), true
		}
	}
	return slots, false
}

func insertSlot[T any](slots []T, index int, slot T) []T {
	if index < 0 || index > len(slots) {
		index = len(slots)
	}
	out := make([]T, 0, len(slots)+1)
	out = append(out, slots[:index]...)
	out = append(out, slot)
	return append(out, slots[index:]...)
}
