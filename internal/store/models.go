package store

import (
	"context"
	"errors"

	"checklist/api/internal/model"
)

type (
	Category = model.Category
	Item     = model.Item
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrMissingParent is returned when an item would reference a category
	// that does not exist, and when a category that still has items is
	// deleted on its own.
	ErrMissingParent = errors.New("category reference violated")
)

// Repository is the authoritative table of categories and items. Every
// method is atomic on its own; WithinTx composes several into one unit.
type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	// LockCategory fails with ErrNotFound when the category is absent and
	// otherwise holds it against concurrent child inserts until the
	// surrounding transaction ends.
	LockCategory(ctx context.Context, id int64) error
	PutCategory(ctx context.Context, category Category) (Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	GetItem(ctx context.Context, id int64) (Item, error)
	PutItem(ctx context.Context, item Item) (Item, error)
	ListByParent(ctx context.Context, categoryID int64) ([]Item, error)
	SetItemCompletion(ctx context.Context, id int64, completed bool) error
	DeleteItem(ctx context.Context, id int64) error
	DeleteAllByParent(ctx context.Context, categoryID int64) (int64, error)
}

// Store is a Repository that can run a function atomically.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
}
