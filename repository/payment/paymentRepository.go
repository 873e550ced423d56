// repository/payment/repo.go
package paymentrepo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/Anastasia-Su/library-api-service/model"
)

type Repo interface {
	InsertPayment(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	GetByBorrowingForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error)
	MarkRefunded(ctx context.Context, tx *sql.Tx, paymentID int64) error

	InsertFine(ctx context.Context, tx *sql.Tx, f *model.Fine) error
	LinkFine(ctx context.Context, tx *sql.Tx, paymentID, fineID int64) error

	ListPaymentsByUser(ctx context.Context, userID int64) ([]model.Payment, error)
	ListFinesByUser(ctx context.Context, userID int64) ([]model.Fine, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) InsertPayment(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `
		INSERT INTO payments (user_id, borrowing_id, amount_paid, transaction_ref)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, q, p.UserID, p.BorrowingID, p.AmountPaid, p.TransactionRef).
		Scan(&p.ID, &p.CreatedAt)
	return errors.Wrap(err, "insert payment")
}

func (r *repo) GetByBorrowingForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error) {
	const q = `
		SELECT id, user_id, borrowing_id, amount_paid, transaction_ref, refunded, fine_id, created_at
		FROM payments
		WHERE borrowing_id = $1
		AND refunded = FALSE
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE`
	var p model.Payment
	err := tx.QueryRowContext(ctx, q, borrowingID).Scan(
		&p.ID, &p.UserID, &p.BorrowingID, &p.AmountPaid, &p.TransactionRef, &p.Refunded, &p.FineID, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) MarkRefunded(ctx context.Context, tx *sql.Tx, paymentID int64) error {
	const q = `
		UPDATE payments
		SET refunded = TRUE
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, paymentID)
	return errors.Wrap(err, "mark refunded")
}

func (r *repo) InsertFine(ctx context.Context, tx *sql.Tx, f *model.Fine) error {
	const q = `
		INSERT INTO fines (user_id, borrowing_id, payment_id, amount_paid, transaction_ref)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, q, f.UserID, f.BorrowingID, f.PaymentID, f.AmountPaid, f.TransactionRef).
		Scan(&f.ID, &f.CreatedAt)
	return errors.Wrap(err, "insert fine")
}

func (r *repo) LinkFine(ctx context.Context, tx *sql.Tx, paymentID, fineID int64) error {
	const q = `
		UPDATE payments
		SET fine_id = $2
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, paymentID, fineID)
	return errors.Wrap(err, "link fine")
}

func (r *repo) ListPaymentsByUser(ctx context.Context, userID int64) ([]model.Payment, error) {
	const q = `
		SELECT id, user_id, borrowing_id, amount_paid, transaction_ref, refunded, fine_id, created_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.BorrowingID, &p.AmountPaid, &p.TransactionRef, &p.Refunded, &p.FineID, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan payment")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) ListFinesByUser(ctx context.Context, userID int64) ([]model.Fine, error) {
	const q = `
		SELECT id, user_id, borrowing_id, payment_id, amount_paid, transaction_ref, created_at
		FROM fines
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list fines")
	}
	defer rows.Close()

	var out []model.Fine
	for rows.Next() {
		var f model.Fine
		if err := rows.Scan(&f.ID, &f.UserID, &f.BorrowingID, &f.PaymentID, &f.AmountPaid, &f.TransactionRef, &f.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan fine")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
