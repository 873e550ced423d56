package bookrepo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Anastasia-Su/library-api-service/model"
)

type Repo interface {
	CreateBook(ctx context.Context, title, author string, cover model.BookCover, dailyFee decimal.Decimal) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int) (int64, error)
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)

	// DecrementInventory takes one copy if any are left. It reports false when
	// the book was out of stock; the caller decides what that means.
	DecrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error)
	IncrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) CreateBook(ctx context.Context, title, author string, cover model.BookCover, dailyFee decimal.Decimal) (int64, error) {
	const q = `
INSERT INTO books (title, author, cover, inventory, daily_fee)
VALUES ($1,$2,$3,0,$4)
RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, title, author, string(cover), dailyFee).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "insert book")
	}
	return id, nil
}

func (r *repo) AddInventory(ctx context.Context, bookID int64, n int) (int64, error) {
	if n <= 0 {
		return 0, errors.New("n must be > 0")
	}
	const q = `
UPDATE books
SET inventory = inventory + $2
WHERE id = $1
RETURNING inventory`
	var inv int64
	if err := r.db.QueryRowContext(ctx, q, bookID, n).Scan(&inv); err != nil {
		return 0, errors.Wrap(err, "add inventory")
	}
	return inv, nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
SELECT id, title, author, COALESCE(cover,''), inventory, daily_fee
FROM books
ORDER BY author, title`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
			return nil, errors.Wrap(err, "scan book")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, author, COALESCE(cover,''), inventory, daily_fee
FROM books
WHERE id = $1`
	var b model.Book
	err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) DecrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) {
	// Guard: never take the counter below zero. Concurrent payments against
	// the last copy race on this row; only one UPDATE can match.
	const q = `
UPDATE books
SET inventory = inventory - 1
WHERE id = $1
AND inventory > 0`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return false, errors.Wrap(err, "decrement inventory")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (r *repo) IncrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) error {
	const q = `
UPDATE books
SET inventory = inventory + 1
WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, bookID)
	return errors.Wrap(err, "increment inventory")
}
