package app

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"checklist/api/internal/model"
	"checklist/api/internal/store"
)

// fakeStore wraps a MemoryStore; hooks replace individual methods.
type fakeStore struct {
	*store.MemoryStore
	putCategoryFn       func(context.Context, store.Category) (store.Category, error)
	putItemFn           func(context.Context, store.Item) (store.Item, error)
	setItemCompletionFn func(context.Context, int64, bool) error
	deleteAllByParentFn func(context.Context, int64) (int64, error)
	listByParentFn      func(context.Context, int64) ([]store.Item, error)
	withinTxFn          func(context.Context, func(store.Repository) error) error
	pingFn              func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) PutCategory(ctx context.Context, category store.Category) (store.Category, error) {
	if f.putCategoryFn != nil {
		return f.putCategoryFn(ctx, category)
	}
	return f.MemoryStore.PutCategory(ctx, category)
}

func (f *fakeStore) PutItem(ctx context.Context, item store.Item) (store.Item, error) {
	if f.putItemFn != nil {
		return f.putItemFn(ctx, item)
	}
	return f.MemoryStore.PutItem(ctx, item)
}

func (f *fakeStore) SetItemCompletion(ctx context.Context, id int64, completed bool) error {
	if f.setItemCompletionFn != nil {
		return f.setItemCompletionFn(ctx, id, completed)
	}
	return f.MemoryStore.SetItemCompletion(ctx, id, completed)
}

func (f *fakeStore) ListByParent(ctx context.Context, categoryID int64) ([]store.Item, error) {
	if f.listByParentFn != nil {
		return f.listByParentFn(ctx, categoryID)
	}
	return f.MemoryStore.ListByParent(ctx, categoryID)
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	if f.withinTxFn != nil {
		return f.withinTxFn(ctx, fn)
	}
	if f.deleteAllByParentFn != nil {
		return f.MemoryStore.WithinTx(ctx, func(tx store.Repository) error {
			return fn(&hookedRepo{Repository: tx, deleteAllByParentFn: f.deleteAllByParentFn})
		})
	}
	return f.MemoryStore.WithinTx(ctx, fn)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type hookedRepo struct {
	store.Repository
	deleteAllByParentFn func(context.Context, int64) (int64, error)
}

func (h *hookedRepo) DeleteAllByParent(ctx context.Context, categoryID int64) (int64, error) {
	return h.deleteAllByParentFn(ctx, categoryID)
}

type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) Notify(context.Context) {
	n.calls.Add(1)
}

func newTestService(fs *fakeStore) (*Service, *countingNotifier) {
	n := &countingNotifier{}
	return New(fs, n, nil), n
}

func expectDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s (%s)", status, code, domainErr.Status, domainErr.Code, domainErr.Message)
	}
	return domainErr
}

func TestCreateCategoryTrimsAndBroadcastsOnce(t *testing.T) {
	svc, n := newTestService(newFakeStore())

	category, err := svc.CreateCategory(context.Background(), "  Groceries ")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if category.ID <= 0 || category.Name != "Groceries" {
		t.Fatalf("unexpected category %+v", category)
	}
	if got := n.calls.Load(); got != 1 {
		t.Fatalf("expected 1 broadcast, got %d", got)
	}
}

func TestCreateCategoryRejectsBlankName(t *testing.T) {
	fs := newFakeStore()
	svc, n := newTestService(fs)

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := svc.CreateCategory(context.Background(), name)
		domainErr := expectDomainError(t, err, http.StatusUnprocessableEntity, model.CodeValidation)
		if !errors.Is(domainErr, model.ErrValidation) {
			t.Fatalf("expected ErrValidation kind")
		}
	}
	categories, _ := svc.ListCategories(context.Background())
	if len(categories) != 0 {
		t.Fatalf("expected no categories, got %d", len(categories))
	}
	if n.calls.Load() != 0 {
		t.Fatalf("rejected mutations must not broadcast")
	}
}

func TestStorageFailureDoesNotBroadcast(t *testing.T) {
	fs := newFakeStore()
	fs.putCategoryFn = func(context.Context, store.Category) (store.Category, error) {
		return store.Category{}, errors.New("disk full")
	}
	svc, n := newTestService(fs)

	_, err := svc.CreateCategory(context.Background(), "Groceries")
	domainErr := expectDomainError(t, err, http.StatusServiceUnavailable, model.CodeStorage)
	if !errors.Is(err, model.ErrStorage) {
		t.Fatalf("expected ErrStorage kind")
	}
	if domainErr.Details == nil {
		t.Fatalf("expected retryable details")
	}
	if n.calls.Load() != 0 {
		t.Fatalf("failed mutation must not broadcast")
	}
}

func TestCreateItemValidatesNameAndCategory(t *testing.T) {
	fs := newFakeStore()
	svc, n := newTestService(fs)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Groceries")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	_, err = svc.CreateItem(ctx, " ", category.ID, "")
	expectDomainError(t, err, http.StatusUnprocessableEntity, model.CodeValidation)

	_, err = svc.CreateItem(ctx, "Milk", 9999, "")
	domainErr := expectDomainError(t, err, http.StatusNotFound, model.CodeNotFound)
	if domainErr.Message != "category not found" {
		t.Fatalf("unexpected message %q", domainErr.Message)
	}

	item, err := svc.CreateItem(ctx, " Milk ", category.ID, " ana ")
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Name != "Milk" || item.Completed || item.CategoryID != category.ID || item.Attribution != "ana" {
		t.Fatalf("unexpected item %+v", item)
	}
	if got := n.calls.Load(); got != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", got)
	}
}

func TestCreateItemParentRemovedConcurrently(t *testing.T) {
	fs := newFakeStore()
	fs.putItemFn = func(context.Context, store.Item) (store.Item, error) {
		return store.Item{}, store.ErrMissingParent
	}
	svc, _ := newTestService(fs)
	ctx := context.Background()
	category, _ := svc.CreateCategory(ctx, "Groceries")

	_, err := svc.CreateItem(ctx, "Milk", category.ID, "")
	expectDomainError(t, err, http.StatusNotFound, model.CodeNotFound)
}

func TestSetItemCompletionAndDeleteItem(t *testing.T) {
	svc, n := newTestService(newFakeStore())
	ctx := context.Background()
	category, _ := svc.CreateCategory(ctx, "Groceries")
	item, _ := svc.CreateItem(ctx, "Milk", category.ID, "")

	if err := svc.SetItemCompletion(ctx, item.ID, true); err != nil {
		t.Fatalf("set completion: %v", err)
	}
	// Setting the same value is still a successful mutation.
	if err := svc.SetItemCompletion(ctx, item.ID, true); err != nil {
		t.Fatalf("set completion twice: %v", err)
	}
	items, _ := svc.ListItems(ctx, category.ID)
	if len(items) != 1 || !items[0].Completed {
		t.Fatalf("expected completed item, got %+v", items)
	}

	if err := svc.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	err := svc.DeleteItem(ctx, item.ID)
	domainErr := expectDomainError(t, err, http.StatusNotFound, model.CodeNotFound)
	if domainErr.Message != "item not found" {
		t.Fatalf("unexpected message %q", domainErr.Message)
	}
	err = svc.SetItemCompletion(ctx, item.ID, false)
	expectDomainError(t, err, http.StatusNotFound, model.CodeNotFound)

	if got := n.calls.Load(); got != 5 {
		t.Fatalf("expected 5 broadcasts, got %d", got)
	}
}

func TestListItemsUnknownCategoryIsEmpty(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	items, err := svc.ListItems(context.Background(), 42)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestDeleteCategoryCascades(t *testing.T) {
	svc, n := newTestService(newFakeStore())
	ctx := context.Background()
	groceries, _ := svc.CreateCategory(ctx, "Groceries")
	chores, _ := svc.CreateCategory(ctx, "Chores")
	_, _ = svc.CreateItem(ctx, "Milk", groceries.ID, "")
	_, _ = svc.CreateItem(ctx, "Eggs", groceries.ID, "")
	sweep, _ := svc.CreateItem(ctx, "Sweep", chores.ID, "")
	before := n.calls.Load()

	if err := svc.DeleteCategory(ctx, groceries.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if got := n.calls.Load() - before; got != 1 {
		t.Fatalf("expected exactly one broadcast for the cascade, got %d", got)
	}

	categories, _ := svc.ListCategories(ctx)
	if len(categories) != 1 || categories[0].ID != chores.ID {
		t.Fatalf("unexpected categories %+v", categories)
	}
	items, _ := svc.ListItems(ctx, groceries.ID)
	if len(items) != 0 {
		t.Fatalf("expected orphans to be gone, got %+v", items)
	}
	items, _ = svc.ListItems(ctx, chores.ID)
	if len(items) != 1 || items[0].ID != sweep.ID {
		t.Fatalf("sibling category lost items: %+v", items)
	}

	err := svc.DeleteCategory(ctx, groceries.ID)
	expectDomainError(t, err, http.StatusNotFound, model.CodeNotFound)
}

func TestDeleteCategoryFailureRollsBackAsStorageError(t *testing.T) {
	fs := newFakeStore()
	svc, n := newTestService(fs)
	ctx := context.Background()
	category, _ := svc.CreateCategory(ctx, "Groceries")
	_, _ = svc.CreateItem(ctx, "Milk", category.ID, "")
	before := n.calls.Load()

	fs.deleteAllByParentFn = func(context.Context, int64) (int64, error) {
		return 0, errors.New("connection reset")
	}
	err := svc.DeleteCategory(ctx, category.ID)
	expectDomainError(t, err, http.StatusServiceUnavailable, model.CodeStorage)
	if n.calls.Load() != before {
		t.Fatalf("failed cascade must not broadcast")
	}

	items, _ := svc.ListItems(ctx, category.ID)
	if len(items) != 1 {
		t.Fatalf("rollback should keep the item, got %+v", items)
	}
}

func TestDeleteCategoryReportsOrphansAsConsistencyError(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()
	category, _ := svc.CreateCategory(ctx, "Groceries")
	_, _ = svc.CreateItem(ctx, "Milk", category.ID, "")

	// Simulate a backend that applied the parent delete but not the children.
	orphan := store.Item{ID: 77, Name: "Milk", CategoryID: category.ID}
	fs.withinTxFn = func(ctx context.Context, fn func(store.Repository) error) error {
		return errors.New("commit interrupted")
	}
	fs.listByParentFn = func(context.Context, int64) ([]store.Item, error) {
		return []store.Item{orphan}, nil
	}
	if err := fs.MemoryStore.WithinTx(ctx, func(tx store.Repository) error {
		if _, err := tx.DeleteAllByParent(ctx, category.ID); err != nil {
			return err
		}
		return tx.DeleteCategory(ctx, category.ID)
	}); err != nil {
		t.Fatalf("seed orphan state: %v", err)
	}

	err := svc.DeleteCategory(ctx, category.ID)
	domainErr := expectDomainError(t, err, http.StatusInternalServerError, model.CodeConsistency)
	if !errors.Is(domainErr, model.ErrConsistency) {
		t.Fatalf("expected ErrConsistency kind")
	}
}

func TestDeleteCategoryUnverifiableStateIsConsistencyError(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()
	category, _ := svc.CreateCategory(ctx, "Groceries")

	fs.withinTxFn = func(context.Context, func(store.Repository) error) error {
		return errors.New("connection lost")
	}
	fs.listByParentFn = func(context.Context, int64) ([]store.Item, error) {
		return nil, errors.New("connection lost")
	}

	err := svc.DeleteCategory(ctx, category.ID)
	expectDomainError(t, err, http.StatusInternalServerError, model.CodeConsistency)
}

func TestDeleteCategoryPartialCascadeIsRejected(t *testing.T) {
	fs := newFakeStore()
	svc, n := newTestService(fs)
	ctx := context.Background()
	category, _ := svc.CreateCategory(ctx, "Groceries")
	_, _ = svc.CreateItem(ctx, "Milk", category.ID, "")
	_, _ = svc.CreateItem(ctx, "Eggs", category.ID, "")
	before := n.calls.Load()

	fs.deleteAllByParentFn = func(context.Context, int64) (int64, error) {
		return 1, nil
	}
	err := svc.DeleteCategory(ctx, category.ID)
	expectDomainError(t, err, http.StatusServiceUnavailable, model.CodeStorage)
	if n.calls.Load() != before {
		t.Fatalf("rejected cascade must not broadcast")
	}
	categories, _ := svc.ListCategories(ctx)
	if len(categories) != 1 {
		t.Fatalf("category should survive a rolled back cascade")
	}
}

func TestNilNotifierIsAllowed(t *testing.T) {
	svc := New(newFakeStore(), nil, nil)
	if _, err := svc.CreateCategory(context.Background(), "Groceries"); err != nil {
		t.Fatalf("create category: %v", err)
	}
}
