// Package borrowing is the lifecycle engine: it creates borrowings against
// catalog inventory, links card payments, handles returns, settles overdue
// fines and processes same-day cancellation refunds.
//
// State, per borrowing: pending payment -> active (paid, inventory taken) ->
// returned or cancelled; returned overdue borrowings additionally move to
// fines settled. Every transition runs in one database transaction; the
// gateway is called with the transaction still open so nothing commits unless
// the provider confirmed.
package borrowing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Anastasia-Su/library-api-service/model"
	borrowingrepo "github.com/Anastasia-Su/library-api-service/repository/borrowing"
	gatewayrepo "github.com/Anastasia-Su/library-api-service/repository/gateway"
	notifierrepo "github.com/Anastasia-Su/library-api-service/repository/notifier"
	"github.com/Anastasia-Su/library-api-service/service/fee"
)

const chargeCurrency = "usd"

// ListRow / ListFilter = repository shapes
type ListRow = borrowingrepo.ListRow

// Requester identifies who is asking; Admin unlocks full visibility.
type Requester struct {
	UserID int64
	Admin  bool
}

// Filters are the optional list query parameters.
type Filters struct {
	UserID   *int64
	Returned *bool
	HasFines *bool
}

type BorrowingRepo interface {
	Insert(ctx context.Context, b *model.Borrowing) error
	Get(ctx context.Context, id int64) (*model.Borrowing, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error)
	MarkPaid(ctx context.Context, tx *sql.Tx, id, paymentID int64, txnRef string) error
	MarkReturned(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error
	MarkFinesPaid(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, txnRef string) error
	MarkCancelled(ctx context.Context, tx *sql.Tx, id int64) error
	List(ctx context.Context, f borrowingrepo.ListFilter) ([]ListRow, error)
}

type BookRepo interface {
	Detail(ctx context.Context, id int64) (*model.Book, error)
	DecrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error)
	IncrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) error
}

type PaymentRepo interface {
	InsertPayment(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	GetByBorrowingForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error)
	MarkRefunded(ctx context.Context, tx *sql.Tx, paymentID int64) error
	InsertFine(ctx context.Context, tx *sql.Tx, f *model.Fine) error
	LinkFine(ctx context.Context, tx *sql.Tx, paymentID, fineID int64) error

	ListPaymentsByUser(ctx context.Context, userID int64) ([]model.Payment, error)
	ListFinesByUser(ctx context.Context, userID int64) ([]model.Fine, error)
}

type Service interface {
	// Create validates dates and availability and inserts a borrowing in
	// pending-payment state. Inventory is not touched yet.
	Create(ctx context.Context, userID, bookID int64, borrowDate, expectedReturn time.Time) (*model.Borrowing, error)

	// SubmitPayment charges the rental amount and activates the borrowing,
	// taking one copy of the book.
	SubmitPayment(ctx context.Context, userID, borrowingID int64) (*model.Payment, error)

	// Return records the return, frees the copy and fixes the fine for
	// overdue borrowings.
	Return(ctx context.Context, userID, borrowingID int64) (*model.Borrowing, error)

	// SettleFines recomputes and charges the accrued fine.
	SettleFines(ctx context.Context, userID, borrowingID int64) (*model.Fine, error)

	// CancelAndRefund reverts a same-day borrowing, refunding its payment.
	CancelAndRefund(ctx context.Context, userID, borrowingID int64) error

	List(ctx context.Context, req Requester, f Filters) ([]ListRow, error)
	Get(ctx context.Context, req Requester, id int64) (*model.Borrowing, error)

	// ListPayments and ListFines show payment history. Non-admins see their
	// own; admins may pass another user's id.
	ListPayments(ctx context.Context, req Requester, userID *int64) ([]model.Payment, error)
	ListFines(ctx context.Context, req Requester, userID *int64) ([]model.Fine, error)
}

// ----- Service implementation -----

type service struct {
	db  *sql.DB
	br  BorrowingRepo
	bk  BookRepo
	pr  PaymentRepo
	gw  gatewayrepo.Repo
	nf  notifierrepo.Repo
	log *slog.Logger
	now func() time.Time
}

func New(db *sql.DB, br BorrowingRepo, bk BookRepo, pr PaymentRepo, gw gatewayrepo.Repo, nf notifierrepo.Repo, log *slog.Logger) Service {
	return &service{db: db, br: br, bk: bk, pr: pr, gw: gw, nf: nf, log: log, now: time.Now}
}

func (s *service) Create(ctx context.Context, userID, bookID int64, borrowDate, expectedReturn time.Time) (*model.Borrowing, error) {
	today := dateOnly(s.now())
	borrowDate = dateOnly(borrowDate)
	expectedReturn = dateOnly(expectedReturn)

	// Only enforced here; later transitions never re-validate the dates.
	if borrowDate.Before(today) {
		return nil, wrapErr(ErrValidation, errors.New("borrow date cannot be earlier than today"))
	}
	if expectedReturn.Before(borrowDate) {
		return nil, wrapErr(ErrValidation, errors.New("expected return date cannot be earlier than borrow date"))
	}

	book, err := s.bk.Detail(ctx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrBookNotFound)
		}
		return nil, err
	}
	// Optimistic: the copy is only committed to this borrowing at payment
	// time, where availability is re-checked under the row lock.
	if book.Inventory == 0 {
		return nil, makeErr(ErrBookUnavailable)
	}

	b := &model.Borrowing{
		UserID:             userID,
		BookID:             bookID,
		BorrowDate:         borrowDate,
		ExpectedReturnDate: expectedReturn,
	}
	if err := s.br.Insert(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) SubmitPayment(ctx context.Context, userID, borrowingID int64) (_ *model.Payment, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err := s.br.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if b.UserID != userID {
		return nil, makeErr(ErrNotOwner)
	}
	if b.Cancelled {
		return nil, makeErr(ErrCancelled)
	}
	if b.Paid {
		return nil, makeErr(ErrAlreadyPaid)
	}

	book, err := s.bk.Detail(ctx, b.BookID)
	if err != nil {
		return nil, err
	}

	// Conditional decrement: under concurrent payments for the last copy only
	// one of them can pass this.
	ok, err := s.bk.DecrementInventory(ctx, tx, b.BookID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, makeErr(ErrBookUnavailable)
	}

	amount := fee.RentalAmount(b.BorrowDate, b.ExpectedReturnDate, book.DailyFee)

	// Charge with the transaction still open: a declined card rolls back the
	// inventory decrement, a confirmed one commits with it.
	resp, err := s.gw.Charge(ctx, gatewayrepo.ChargeReq{
		AmountCents:    cents(amount),
		Currency:       chargeCurrency,
		Description:    fmt.Sprintf("Borrowing #%d: %s", b.ID, book.Title),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, wrapErr(ErrGateway, err)
	}

	p := &model.Payment{
		UserID:         b.UserID,
		BorrowingID:    b.ID,
		AmountPaid:     amount,
		TransactionRef: resp.TransactionRef,
	}
	if err = s.pr.InsertPayment(ctx, tx, p); err != nil {
		return nil, err
	}
	if err = s.br.MarkPaid(ctx, tx, b.ID, p.ID, resp.TransactionRef); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	s.notify(fmt.Sprintf(
		"New borrowing paid:\n%s by %s\nPlease return it by: %s",
		book.Title, book.Author, b.ExpectedReturnDate.Format("2006-01-02"),
	))
	return p, nil
}

func (s *service) Return(ctx context.Context, userID, borrowingID int64) (_ *model.Borrowing, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err := s.br.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if b.UserID != userID {
		return nil, makeErr(ErrNotOwner)
	}
	if b.Cancelled {
		return nil, makeErr(ErrCancelled)
	}
	if b.ReturnedDate != nil {
		return nil, makeErr(ErrAlreadyReturned)
	}
	if !b.Paid {
		// The copy was never taken, so there is nothing to give back.
		return nil, makeErr(ErrNotPaid)
	}

	today := dateOnly(s.now())

	// Fix the fine at return time when overdue; SettleFines recomputes later.
	var fines *decimal.Decimal
	if b.ExpectedReturnDate.Before(today) {
		book, derr := s.bk.Detail(ctx, b.BookID)
		if derr != nil {
			return nil, derr
		}
		f := fee.OverdueFine(b.ExpectedReturnDate, today, book.DailyFee)
		fines = &f
	}

	if err = s.br.MarkReturned(ctx, tx, b.ID, today, fines); err != nil {
		return nil, err
	}
	if err = s.bk.IncrementInventory(ctx, tx, b.BookID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	b.ReturnedDate = &today
	b.FinesApplied = fines
	if fines != nil {
		s.notify(fmt.Sprintf("Borrowing #%d returned late, fine applied: %s", b.ID, fines.StringFixed(2)))
	}
	return b, nil
}

func (s *service) SettleFines(ctx context.Context, userID, borrowingID int64) (_ *model.Fine, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err := s.br.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if b.UserID != userID {
		return nil, makeErr(ErrNotOwner)
	}
	if b.ReturnedDate == nil {
		return nil, makeErr(ErrNotReturned)
	}
	if b.FinesApplied == nil {
		return nil, makeErr(ErrNoFines)
	}
	if b.FinesPaid {
		return nil, makeErr(ErrFinesAlreadyPaid)
	}

	// A fine can only exist on a paid borrowing; missing payment here means a
	// broken invariant, not bad input.
	p, err := s.pr.GetByBorrowingForUpdate(ctx, tx, b.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNoPaymentFound)
		}
		return nil, err
	}

	book, err := s.bk.Detail(ctx, b.BookID)
	if err != nil {
		return nil, err
	}

	// Charged amount is recomputed now, not the value frozen at return time:
	// fines keep accruing until they are settled.
	amount := fee.OverdueFine(b.ExpectedReturnDate, dateOnly(s.now()), book.DailyFee)

	resp, err := s.gw.Charge(ctx, gatewayrepo.ChargeReq{
		AmountCents:    cents(amount),
		Currency:       chargeCurrency,
		Description:    fmt.Sprintf("Overdue fine for borrowing #%d: %s", b.ID, book.Title),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, wrapErr(ErrGateway, err)
	}

	f := &model.Fine{
		UserID:         b.UserID,
		BorrowingID:    b.ID,
		PaymentID:      &p.ID,
		AmountPaid:     amount,
		TransactionRef: resp.TransactionRef,
	}
	if err = s.pr.InsertFine(ctx, tx, f); err != nil {
		return nil, err
	}
	if err = s.pr.LinkFine(ctx, tx, p.ID, f.ID); err != nil {
		return nil, err
	}
	if err = s.br.MarkFinesPaid(ctx, tx, b.ID, amount, resp.TransactionRef); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	s.notify(fmt.Sprintf("Fine settled for borrowing #%d: %s", b.ID, amount.StringFixed(2)))
	return f, nil
}

func (s *service) CancelAndRefund(ctx context.Context, userID, borrowingID int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err := s.br.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		return err
	}
	if b.UserID != userID {
		return makeErr(ErrNotOwner)
	}
	if b.Cancelled {
		return makeErr(ErrCancelled)
	}
	if b.ReturnedDate != nil {
		return makeErr(ErrAlreadyReturned)
	}

	// Unpaid borrowings can be abandoned at any time; no inventory was taken
	// and there is nothing to refund.
	if !b.Paid {
		if err = s.br.MarkCancelled(ctx, tx, b.ID); err != nil {
			return err
		}
		return tx.Commit()
	}

	if !dateOnly(b.BorrowDate).Equal(dateOnly(s.now())) {
		return makeErr(ErrRefundWindowExpired)
	}

	p, err := s.pr.GetByBorrowingForUpdate(ctx, tx, b.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNoPaymentFound)
		}
		return err
	}

	if err = s.gw.Refund(ctx, p.TransactionRef); err != nil {
		return wrapErr(ErrGateway, err)
	}

	if err = s.pr.MarkRefunded(ctx, tx, p.ID); err != nil {
		return err
	}
	if err = s.br.MarkCancelled(ctx, tx, b.ID); err != nil {
		return err
	}
	// The copy was taken at payment time; give it back.
	if err = s.bk.IncrementInventory(ctx, tx, b.BookID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	s.notify(fmt.Sprintf("Borrowing #%d cancelled, payment %s refunded", b.ID, p.TransactionRef))
	return nil
}

func (s *service) List(ctx context.Context, req Requester, f Filters) ([]ListRow, error) {
	lf := borrowingrepo.ListFilter{
		UserID:   f.UserID,
		Returned: f.Returned,
		HasFines: f.HasFines,
	}
	// Non-admins only ever see their own active, paid, not-yet-returned
	// borrowings. Part of the lifecycle contract, not a UI nicety.
	if !req.Admin {
		uid := req.UserID
		lf.ActiveOnlyFor = &uid
	}
	return s.br.List(ctx, lf)
}

func (s *service) Get(ctx context.Context, req Requester, id int64) (*model.Borrowing, error) {
	b, err := s.br.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if !req.Admin {
		visible := b.UserID == req.UserID && b.Paid && !b.Cancelled && b.ReturnedDate == nil
		if !visible {
			return nil, makeErr(ErrNotFound)
		}
	}
	return b, nil
}

// historyUser resolves whose records a history listing covers.
func historyUser(req Requester, userID *int64) int64 {
	if req.Admin && userID != nil {
		return *userID
	}
	return req.UserID
}

func (s *service) ListPayments(ctx context.Context, req Requester, userID *int64) ([]model.Payment, error) {
	return s.pr.ListPaymentsByUser(ctx, historyUser(req, userID))
}

func (s *service) ListFines(ctx context.Context, req Requester, userID *int64) ([]model.Fine, error) {
	return s.pr.ListFinesByUser(ctx, historyUser(req, userID))
}

// notify fires after commit and never blocks or fails the caller.
func (s *service) notify(text string) {
	if s.nf == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.nf.Notify(ctx, text); err != nil && s.log != nil {
			s.log.Warn("notification failed", "err", err)
		}
	}()
}

func cents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
