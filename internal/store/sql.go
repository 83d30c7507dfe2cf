package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on Postgres or SQLite through database/sql.
type SQLStore struct {
	db      *sql.DB
	q       queryer
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, q: db, dialect: dialect}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLStore{db: s.db, q: tx, dialect: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var category Category
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *SQLStore) GetCategory(ctx context.Context, id int64) (Category, error) {
	var category Category
	err := s.q.QueryRowContext(ctx, s.dialect.rebind(`SELECT id, name FROM categories WHERE id=?`), id).Scan(&category.ID, &category.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

func (s *SQLStore) LockCategory(ctx context.Context, id int64) error {
	query := `SELECT id FROM categories WHERE id=?`
	if s.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	var locked int64
	err := s.q.QueryRowContext(ctx, s.dialect.rebind(query), id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock category: %w", err)
	}
	return nil
}

func (s *SQLStore) PutCategory(ctx context.Context, category Category) (Category, error) {
	var created Category
	err := s.q.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO categories (name) VALUES (?)
		RETURNING id, name
	`), category.Name).Scan(&created.ID, &created.Name)
	if err != nil {
		return Category{}, fmt.Errorf("insert category: %w", err)
	}
	return created, nil
}

func (s *SQLStore) DeleteCategory(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM categories WHERE id=?`), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrMissingParent
		}
		return fmt.Errorf("delete category: %w", err)
	}
	return expectOneRow(result, "delete category")
}

func (s *SQLStore) GetItem(ctx context.Context, id int64) (Item, error) {
	row := s.q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, name, completed, category_id, added_by FROM items WHERE id=?
	`), id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *SQLStore) PutItem(ctx context.Context, item Item) (Item, error) {
	row := s.q.QueryRowContext(ctx, s.dialect.rebind(`
		INSERT INTO items (name, completed, category_id, added_by)
		VALUES (?, ?, ?, ?)
		RETURNING id, name, completed, category_id, added_by
	`), item.Name, item.Completed, item.CategoryID, nilIfEmpty(item.Attribution))
	created, err := scanItem(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Item{}, ErrMissingParent
		}
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return created, nil
}

func (s *SQLStore) ListByParent(ctx context.Context, categoryID int64) ([]Item, error) {
	rows, err := s.q.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, name, completed, category_id, added_by
		FROM items
		WHERE category_id=?
		ORDER BY id
	`), categoryID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *SQLStore) SetItemCompletion(ctx context.Context, id int64, completed bool) error {
	result, err := s.q.ExecContext(ctx, s.dialect.rebind(`UPDATE items SET completed=? WHERE id=?`), completed, id)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return expectOneRow(result, "update item")
}

func (s *SQLStore) DeleteItem(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM items WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return expectOneRow(result, "delete item")
}

func (s *SQLStore) DeleteAllByParent(ctx context.Context, categoryID int64) (int64, error) {
	result, err := s.q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM items WHERE category_id=?`), categoryID)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return removed, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item    Item
		addedBy sql.NullString
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Completed, &item.CategoryID, &addedBy); err != nil {
		return Item{}, err
	}
	item.Attribution = addedBy.String
	return item, nil
}

func expectOneRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// ON DELETE RESTRICT is enforced like a trigger and reports its own code.
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_TRIGGER:
			return true
		}
		return false
	}
	return false
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
