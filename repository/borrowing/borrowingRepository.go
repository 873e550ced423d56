// repository/borrowing/borrowingRepository.go
package borrowingrepo

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Anastasia-Su/library-api-service/model"
)

// ListRow is a borrowing joined with its book for listing endpoints.
type ListRow struct {
	model.Borrowing
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
}

// ListFilter narrows List. Nil fields mean "no filter". When ActiveOnlyFor is
// set the query is pinned to that user's paid, not cancelled, not yet returned
// borrowings regardless of the other fields; this is the visibility rule for
// non-admin requesters, not a convenience.
type ListFilter struct {
	UserID        *int64
	Returned      *bool
	HasFines      *bool
	ActiveOnlyFor *int64
}

type Repo interface {
	Insert(ctx context.Context, b *model.Borrowing) error
	Get(ctx context.Context, id int64) (*model.Borrowing, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error)

	MarkPaid(ctx context.Context, tx *sql.Tx, id, paymentID int64, txnRef string) error
	MarkReturned(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error
	MarkFinesPaid(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, txnRef string) error
	MarkCancelled(ctx context.Context, tx *sql.Tx, id int64) error

	List(ctx context.Context, f ListFilter) ([]ListRow, error)

	// Sweep support.
	ListOverdueUnreturned(ctx context.Context, today time.Time) ([]model.Borrowing, error)
	UpdateFinesIfChanged(ctx context.Context, id int64, fines decimal.Decimal) (bool, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

const borrowingCols = `
	id, user_id, book_id, borrow_date, expected_return_date, returned_date,
	paid, cancelled, fines_paid, fines_applied, payment_id, transaction_ref, created_at`

func scanBorrowing(row *sql.Row) (*model.Borrowing, error) {
	var b model.Borrowing
	err := row.Scan(
		&b.ID, &b.UserID, &b.BookID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ReturnedDate,
		&b.Paid, &b.Cancelled, &b.FinesPaid, &b.FinesApplied, &b.PaymentID, &b.TransactionRef, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) Insert(ctx context.Context, b *model.Borrowing) error {
	const q = `
		INSERT INTO borrowings (user_id, book_id, borrow_date, expected_return_date)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, q, b.UserID, b.BookID, b.BorrowDate, b.ExpectedReturnDate).
		Scan(&b.ID, &b.CreatedAt)
	return errors.Wrap(err, "insert borrowing")
}

func (r *repo) Get(ctx context.Context, id int64) (*model.Borrowing, error) {
	return scanBorrowing(r.db.QueryRowContext(ctx, `SELECT `+borrowingCols+` FROM borrowings WHERE id = $1`, id))
}

func (r *repo) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
	return scanBorrowing(tx.QueryRowContext(ctx, `SELECT `+borrowingCols+` FROM borrowings WHERE id = $1 FOR UPDATE`, id))
}

func (r *repo) MarkPaid(ctx context.Context, tx *sql.Tx, id, paymentID int64, txnRef string) error {
	const q = `
		UPDATE borrowings
		SET paid = TRUE,
			payment_id = $2,
			transaction_ref = $3
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, id, paymentID, txnRef)
	return errors.Wrap(err, "mark paid")
}

func (r *repo) MarkReturned(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error {
	// returned_date is write-once: the service rejects double returns before
	// calling this, and the WHERE clause keeps a lost race harmless.
	const q = `
		UPDATE borrowings
		SET returned_date = $2,
			fines_applied = $3
		WHERE id = $1
		AND returned_date IS NULL`
	res, err := tx.ExecContext(ctx, q, id, returned, fines)
	if err != nil {
		return errors.Wrap(err, "mark returned")
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return errors.New("borrowing already returned")
	}
	return nil
}

func (r *repo) MarkFinesPaid(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, txnRef string) error {
	const q = `
		UPDATE borrowings
		SET fines_paid = TRUE,
			fines_applied = $2,
			transaction_ref = $3
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, id, fines, txnRef)
	return errors.Wrap(err, "mark fines paid")
}

func (r *repo) MarkCancelled(ctx context.Context, tx *sql.Tx, id int64) error {
	const q = `
		UPDATE borrowings
		SET cancelled = TRUE
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, id)
	return errors.Wrap(err, "mark cancelled")
}

func (r *repo) List(ctx context.Context, f ListFilter) ([]ListRow, error) {
	q := `
		SELECT b.id, b.user_id, b.book_id, b.borrow_date, b.expected_return_date, b.returned_date,
			b.paid, b.cancelled, b.fines_paid, b.fines_applied, b.payment_id, b.transaction_ref, b.created_at,
			bk.title, bk.author
		FROM borrowings b
		JOIN books bk ON bk.id = b.book_id
		WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.ActiveOnlyFor != nil {
		q += `
		AND b.user_id = ` + arg(*f.ActiveOnlyFor) + `
		AND b.paid = TRUE
		AND b.cancelled = FALSE
		AND b.returned_date IS NULL`
	}
	if f.UserID != nil {
		q += `
		AND b.user_id = ` + arg(*f.UserID)
	}
	if f.Returned != nil {
		if *f.Returned {
			q += `
		AND b.returned_date IS NOT NULL`
		} else {
			q += `
		AND b.returned_date IS NULL`
		}
	}
	if f.HasFines != nil {
		if *f.HasFines {
			q += `
		AND b.fines_applied IS NOT NULL`
		} else {
			q += `
		AND b.fines_applied IS NULL`
		}
	}
	q += `
		ORDER BY b.expected_return_date, b.book_id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list borrowings")
	}
	defer rows.Close()

	var out []ListRow
	for rows.Next() {
		var l ListRow
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.BookID, &l.BorrowDate, &l.ExpectedReturnDate, &l.ReturnedDate,
			&l.Paid, &l.Cancelled, &l.FinesPaid, &l.FinesApplied, &l.PaymentID, &l.TransactionRef, &l.CreatedAt,
			&l.BookTitle, &l.BookAuthor,
		); err != nil {
			return nil, errors.Wrap(err, "scan borrowing row")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repo) ListOverdueUnreturned(ctx context.Context, today time.Time) ([]model.Borrowing, error) {
	const q = `
		SELECT ` + borrowingCols + `
		FROM borrowings
		WHERE returned_date IS NULL
		AND cancelled = FALSE
		AND expected_return_date < $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, today)
	if err != nil {
		return nil, errors.Wrap(err, "list overdue")
	}
	defer rows.Close()

	var out []model.Borrowing
	for rows.Next() {
		var b model.Borrowing
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.BookID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ReturnedDate,
			&b.Paid, &b.Cancelled, &b.FinesPaid, &b.FinesApplied, &b.PaymentID, &b.TransactionRef, &b.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan overdue borrowing")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) UpdateFinesIfChanged(ctx context.Context, id int64, fines decimal.Decimal) (bool, error) {
	// Conditioned on the value actually differing so overlapping sweep runs
	// stay write-idempotent.
	const q = `
		UPDATE borrowings
		SET fines_applied = $2
		WHERE id = $1
		AND fines_applied IS DISTINCT FROM $2`
	res, err := r.db.ExecContext(ctx, q, id, fines)
	if err != nil {
		return false, errors.Wrap(err, "update fines")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}
