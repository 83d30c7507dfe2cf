package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"checklist/api/internal/metrics"
	"checklist/api/internal/model"
	"checklist/api/internal/store"
)

type dataStore interface {
	store.Repository
	WithinTx(context.Context, func(store.Repository) error) error
	Ping(ctx context.Context) error
}

// notifier receives exactly one call per committed mutation.
type notifier interface {
	Notify(ctx context.Context)
}

const notifyTimeout = 5 * time.Second

var errPartialCascade = errors.New("cascade removed an unexpected number of items")

// Service is the mutation gateway: it validates one mutation, commits it to
// the store and only then triggers the broadcaster.
type Service struct {
	store    dataStore
	notifier notifier
	logger   *zap.Logger
}

func New(dataStore dataStore, notifier notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    dataStore,
		notifier: notifier,
		logger:   logger.Named("gateway"),
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, s.mapStoreError("list categories", err)
	}
	return categories, nil
}

// ListItems returns the items of a category in insertion order. An unknown
// category has no items.
func (s *Service) ListItems(ctx context.Context, categoryID int64) ([]model.Item, error) {
	items, err := s.store.ListByParent(ctx, categoryID)
	if err != nil {
		return nil, s.mapStoreError("list items", err)
	}
	return items, nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (model.Category, error) {
	categoryName := strings.TrimSpace(name)
	if categoryName == "" {
		return model.Category{}, s.reject("create_category", validationError("name is required"))
	}
	created, err := s.store.PutCategory(ctx, model.Category{Name: categoryName})
	if err != nil {
		return model.Category{}, s.reject("create_category", s.mapStoreError("create category", err))
	}
	s.committed(ctx, "create_category", zap.Int64("category", created.ID))
	return created, nil
}

// DeleteCategory removes the category and all of its items as one unit.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	var removed int64
	err := s.store.WithinTx(ctx, func(tx store.Repository) error {
		if err := tx.LockCategory(ctx, id); err != nil {
			return err
		}
		children, err := tx.ListByParent(ctx, id)
		if err != nil {
			return err
		}
		removed, err = tx.DeleteAllByParent(ctx, id)
		if err != nil {
			return err
		}
		if removed != int64(len(children)) {
			return fmt.Errorf("%w: removed %d of %d", errPartialCascade, removed, len(children))
		}
		return tx.DeleteCategory(ctx, id)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.reject("delete_category", notFoundError("category not found"))
		}
		return s.reject("delete_category", s.verifyCascade(ctx, id, err))
	}
	s.committed(ctx, "delete_category", zap.Int64("category", id), zap.Int64("items_removed", removed))
	return nil
}

// verifyCascade runs after a failed cascade. It re-reads the category and
// its items; orphaned items, or a state it cannot read back, are reported
// as a consistency failure instead of a retryable storage failure.
func (s *Service) verifyCascade(ctx context.Context, id int64, cause error) *DomainError {
	_, catErr := s.store.GetCategory(ctx, id)
	items, itemsErr := s.store.ListByParent(ctx, id)
	switch {
	case catErr != nil && !errors.Is(catErr, store.ErrNotFound), itemsErr != nil:
		s.logger.Error("cascade failed and state could not be verified",
			zap.Int64("category", id), zap.Error(cause), zap.NamedError("category_err", catErr), zap.NamedError("items_err", itemsErr))
		return consistencyError("category delete failed and the result could not be verified")
	case errors.Is(catErr, store.ErrNotFound) && len(items) > 0:
		s.logger.Error("cascade left orphaned items",
			zap.Int64("category", id), zap.Int("orphans", len(items)), zap.Error(cause))
		return consistencyError("category delete left orphaned items")
	}
	return s.mapStoreError("delete category", cause)
}

func (s *Service) CreateItem(ctx context.Context, name string, categoryID int64, attribution string) (model.Item, error) {
	itemName := strings.TrimSpace(name)
	if itemName == "" {
		return model.Item{}, s.reject("create_item", validationError("name is required"))
	}
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return model.Item{}, s.reject("create_item", s.mapStoreError("lookup category", err))
	}
	created, err := s.store.PutItem(ctx, model.Item{
		Name:        itemName,
		CategoryID:  categoryID,
		Attribution: strings.TrimSpace(attribution),
	})
	if err != nil {
		return model.Item{}, s.reject("create_item", s.mapStoreError("create item", err))
	}
	s.committed(ctx, "create_item", zap.Int64("item", created.ID), zap.Int64("category", categoryID))
	return created, nil
}

func (s *Service) SetItemCompletion(ctx context.Context, id int64, completed bool) error {
	if err := s.store.SetItemCompletion(ctx, id, completed); err != nil {
		return s.reject("set_item_completion", s.mapStoreError("update item", err))
	}
	s.committed(ctx, "set_item_completion", zap.Int64("item", id), zap.Bool("completed", completed))
	return nil
}

func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return s.reject("delete_item", s.mapStoreError("delete item", err))
	}
	s.committed(ctx, "delete_item", zap.Int64("item", id))
	return nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// committed runs after a durable write. The broadcast must not be lost to a
// caller that hangs up right after the commit.
func (s *Service) committed(ctx context.Context, op string, fields ...zap.Field) {
	metrics.Mutations.WithLabelValues(op, "ok").Inc()
	s.logger.Debug("mutation committed", append([]zap.Field{zap.String("op", op)}, fields...)...)
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	s.notifier.Notify(notifyCtx)
}

func (s *Service) reject(op string, err *DomainError) error {
	metrics.Mutations.WithLabelValues(op, strings.ToLower(err.Code)).Inc()
	return err
}

func (s *Service) mapStoreError(op string, err error) *DomainError {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, store.ErrMissingParent):
		return notFoundError("category not found")
	case errors.Is(err, store.ErrNotFound):
		if strings.Contains(op, "category") {
			return notFoundError("category not found")
		}
		return notFoundError("item not found")
	}
	s.logger.Warn("storage failure", zap.String("op", op), zap.Error(err))
	return storageError(op + " failed")
}
