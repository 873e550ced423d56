package borrowing

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Anastasia-Su/library-api-service/model"
	borrowingrepo "github.com/Anastasia-Su/library-api-service/repository/borrowing"
	gatewayrepo "github.com/Anastasia-Su/library-api-service/repository/gateway"
)

// --- mocks ---

type brMock struct {
	insertFn        func(ctx context.Context, b *model.Borrowing) error
	getFn           func(ctx context.Context, id int64) (*model.Borrowing, error)
	getForUpdateFn  func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error)
	markPaidFn      func(ctx context.Context, tx *sql.Tx, id, paymentID int64, ref string) error
	markReturnedFn  func(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error
	markFinesPaidFn func(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, ref string) error
	markCancelledFn func(ctx context.Context, tx *sql.Tx, id int64) error
	listFn          func(ctx context.Context, f borrowingrepo.ListFilter) ([]ListRow, error)
}

func (m *brMock) Insert(ctx context.Context, b *model.Borrowing) error {
	if m.insertFn == nil {
		b.ID = 1
		return nil
	}
	return m.insertFn(ctx, b)
}

func (m *brMock) Get(ctx context.Context, id int64) (*model.Borrowing, error) {
	if m.getFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.getFn(ctx, id)
}

func (m *brMock) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
	if m.getForUpdateFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.getForUpdateFn(ctx, tx, id)
}

func (m *brMock) MarkPaid(ctx context.Context, tx *sql.Tx, id, paymentID int64, ref string) error {
	if m.markPaidFn == nil {
		return nil
	}
	return m.markPaidFn(ctx, tx, id, paymentID, ref)
}

func (m *brMock) MarkReturned(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error {
	if m.markReturnedFn == nil {
		return nil
	}
	return m.markReturnedFn(ctx, tx, id, returned, fines)
}

func (m *brMock) MarkFinesPaid(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, ref string) error {
	if m.markFinesPaidFn == nil {
		return nil
	}
	return m.markFinesPaidFn(ctx, tx, id, fines, ref)
}

func (m *brMock) MarkCancelled(ctx context.Context, tx *sql.Tx, id int64) error {
	if m.markCancelledFn == nil {
		return nil
	}
	return m.markCancelledFn(ctx, tx, id)
}

func (m *brMock) List(ctx context.Context, f borrowingrepo.ListFilter) ([]ListRow, error) {
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(ctx, f)
}

type bkMock struct {
	detailFn    func(ctx context.Context, id int64) (*model.Book, error)
	decrementFn func(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error)
	incrementFn func(ctx context.Context, tx *sql.Tx, bookID int64) error
}

func (m *bkMock) Detail(ctx context.Context, id int64) (*model.Book, error) {
	if m.detailFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.detailFn(ctx, id)
}

func (m *bkMock) DecrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) {
	if m.decrementFn == nil {
		return true, nil
	}
	return m.decrementFn(ctx, tx, bookID)
}

func (m *bkMock) IncrementInventory(ctx context.Context, tx *sql.Tx, bookID int64) error {
	if m.incrementFn == nil {
		return nil
	}
	return m.incrementFn(ctx, tx, bookID)
}

type prMock struct {
	insertPaymentFn func(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	getByBorrowFn   func(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error)
	markRefundedFn  func(ctx context.Context, tx *sql.Tx, paymentID int64) error
	insertFineFn    func(ctx context.Context, tx *sql.Tx, f *model.Fine) error
	linkFineFn      func(ctx context.Context, tx *sql.Tx, paymentID, fineID int64) error
	listPaymentsFn  func(ctx context.Context, userID int64) ([]model.Payment, error)
	listFinesFn     func(ctx context.Context, userID int64) ([]model.Fine, error)
}

func (m *prMock) InsertPayment(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	if m.insertPaymentFn == nil {
		p.ID = 1
		return nil
	}
	return m.insertPaymentFn(ctx, tx, p)
}

func (m *prMock) GetByBorrowingForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error) {
	if m.getByBorrowFn == nil {
		return nil, sql.ErrNoRows
	}
	return m.getByBorrowFn(ctx, tx, borrowingID)
}

func (m *prMock) MarkRefunded(ctx context.Context, tx *sql.Tx, paymentID int64) error {
	if m.markRefundedFn == nil {
		return nil
	}
	return m.markRefundedFn(ctx, tx, paymentID)
}

func (m *prMock) InsertFine(ctx context.Context, tx *sql.Tx, f *model.Fine) error {
	if m.insertFineFn == nil {
		f.ID = 1
		return nil
	}
	return m.insertFineFn(ctx, tx, f)
}

func (m *prMock) LinkFine(ctx context.Context, tx *sql.Tx, paymentID, fineID int64) error {
	if m.linkFineFn == nil {
		return nil
	}
	return m.linkFineFn(ctx, tx, paymentID, fineID)
}

func (m *prMock) ListPaymentsByUser(ctx context.Context, userID int64) ([]model.Payment, error) {
	if m.listPaymentsFn == nil {
		return nil, nil
	}
	return m.listPaymentsFn(ctx, userID)
}

func (m *prMock) ListFinesByUser(ctx context.Context, userID int64) ([]model.Fine, error) {
	if m.listFinesFn == nil {
		return nil, nil
	}
	return m.listFinesFn(ctx, userID)
}

type gwMock struct {
	chargeFn func(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error)
	refundFn func(ctx context.Context, ref string) error
}

func (m *gwMock) Charge(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error) {
	if m.chargeFn == nil {
		return &gatewayrepo.ChargeResp{TransactionRef: "ch_test"}, nil
	}
	return m.chargeFn(ctx, req)
}

func (m *gwMock) Refund(ctx context.Context, ref string) error {
	if m.refundFn == nil {
		return nil
	}
	return m.refundFn(ctx, ref)
}

// --- helpers ---

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T, br *brMock, bk *bkMock, pr *prMock, gw *gwMock, today string) (*service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(db, br, bk, pr, gw, nil, log).(*service)
	s.now = func() time.Time { return day(today) }
	return s, mock
}

func activeBorrowing() *model.Borrowing {
	return &model.Borrowing{
		ID:                 10,
		UserID:             7,
		BookID:             3,
		BorrowDate:         day("2024-01-02"),
		ExpectedReturnDate: day("2024-01-10"),
		Paid:               true,
	}
}

func testBook() *model.Book {
	return &model.Book{ID: 3, Title: "Kobzar", Author: "Taras Shevchenko", Inventory: 2, DailyFee: dec("2.00")}
}

// --- Create ---

func TestCreate_DateValidation(t *testing.T) {
	s, _ := newTestService(t, &brMock{}, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")

	// expected return before borrow date
	_, err := s.Create(context.Background(), 7, 3, day("2024-01-05"), day("2024-01-03"))
	require.Error(t, err)
	require.Equal(t, ErrValidation, Code(err))

	// borrow date in the past
	_, err = s.Create(context.Background(), 7, 3, day("2024-01-01"), day("2024-01-05"))
	require.Error(t, err)
	require.Equal(t, ErrValidation, Code(err))
}

func TestCreate_BookUnavailable(t *testing.T) {
	bk := &bkMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		b := testBook()
		b.Inventory = 0
		return b, nil
	}}
	s, _ := newTestService(t, &brMock{}, bk, &prMock{}, &gwMock{}, "2024-01-02")

	_, err := s.Create(context.Background(), 7, 3, day("2024-01-02"), day("2024-01-10"))
	require.Equal(t, ErrBookUnavailable, Code(err))
}

func TestCreate_BookNotFound(t *testing.T) {
	s, _ := newTestService(t, &brMock{}, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")

	_, err := s.Create(context.Background(), 7, 99, day("2024-01-02"), day("2024-01-10"))
	require.Equal(t, ErrBookNotFound, Code(err))
}

func TestCreate_PendingPayment(t *testing.T) {
	var inserted *model.Borrowing
	br := &brMock{insertFn: func(ctx context.Context, b *model.Borrowing) error {
		b.ID = 10
		inserted = b
		return nil
	}}
	bk := &bkMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) { return testBook(), nil }}
	s, _ := newTestService(t, br, bk, &prMock{}, &gwMock{}, "2024-01-02")

	b, err := s.Create(context.Background(), 7, 3, day("2024-01-02"), day("2024-01-10"))
	require.NoError(t, err)
	require.NotNil(t, inserted)
	require.EqualValues(t, 10, b.ID)
	require.False(t, b.Paid, "created borrowing must be pending payment")
	require.Nil(t, b.ReturnedDate)
}

// --- SubmitPayment ---

func TestSubmitPayment_Success(t *testing.T) {
	b := activeBorrowing()
	b.Paid = false

	var steps []string
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markPaidFn: func(ctx context.Context, tx *sql.Tx, id, paymentID int64, ref string) error {
			steps = append(steps, "markPaid")
			require.Equal(t, "ch_test", ref)
			return nil
		},
	}
	bk := &bkMock{
		detailFn: func(ctx context.Context, id int64) (*model.Book, error) { return testBook(), nil },
		decrementFn: func(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) {
			steps = append(steps, "decrement")
			return true, nil
		},
	}
	var charged gatewayrepo.ChargeReq
	gw := &gwMock{chargeFn: func(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error) {
		steps = append(steps, "charge")
		charged = req
		return &gatewayrepo.ChargeResp{TransactionRef: "ch_test"}, nil
	}}
	pr := &prMock{insertPaymentFn: func(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
		steps = append(steps, "insertPayment")
		p.ID = 55
		return nil
	}}

	s, mock := newTestService(t, br, bk, pr, gw, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectCommit()

	p, err := s.SubmitPayment(context.Background(), 7, 10)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// 8 days at 2.00 = 16.00
	require.EqualValues(t, 1600, charged.AmountCents)
	require.Equal(t, "usd", charged.Currency)
	require.NotEmpty(t, charged.IdempotencyKey)
	require.True(t, p.AmountPaid.Equal(dec("16.00")), "got %s", p.AmountPaid)
	require.Equal(t, "ch_test", p.TransactionRef)

	// decrement must happen before the charge so a declined card rolls it back
	require.Equal(t, []string{"decrement", "charge", "insertPayment", "markPaid"}, steps)
}

func TestSubmitPayment_GatewayDeclined(t *testing.T) {
	b := activeBorrowing()
	b.Paid = false

	inserted := 0
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markPaidFn: func(ctx context.Context, tx *sql.Tx, id, paymentID int64, ref string) error {
			t.Fatal("must not mark paid on gateway failure")
			return nil
		},
	}
	bk := &bkMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) { return testBook(), nil }}
	pr := &prMock{insertPaymentFn: func(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
		inserted++
		return nil
	}}
	gw := &gwMock{chargeFn: func(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error) {
		return nil, &gatewayrepo.DeclinedError{Reason: "insufficient funds"}
	}}

	s, mock := newTestService(t, br, bk, pr, gw, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.SubmitPayment(context.Background(), 7, 10)
	require.Equal(t, ErrGateway, Code(err))
	require.Contains(t, err.Error(), "insufficient funds")
	require.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPayment_LastCopyGone(t *testing.T) {
	b := activeBorrowing()
	b.Paid = false

	br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
	bk := &bkMock{
		detailFn:    func(ctx context.Context, id int64) (*model.Book, error) { return testBook(), nil },
		decrementFn: func(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) { return false, nil },
	}
	gw := &gwMock{chargeFn: func(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error) {
		t.Fatal("must not charge when no copy could be taken")
		return nil, nil
	}}

	s, mock := newTestService(t, br, bk, &prMock{}, gw, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.SubmitPayment(context.Background(), 7, 10)
	require.Equal(t, ErrBookUnavailable, Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPayment_AlreadyPaid(t *testing.T) {
	b := activeBorrowing() // Paid = true

	br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
	s, mock := newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.SubmitPayment(context.Background(), 7, 10)
	require.Equal(t, ErrAlreadyPaid, Code(err))
}

func TestSubmitPayment_NotOwner(t *testing.T) {
	b := activeBorrowing()
	br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
	s, mock := newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.SubmitPayment(context.Background(), 99, 10)
	require.Equal(t, ErrNotOwner, Code(err))
}

// --- Return ---

func TestReturn_OnTime(t *testing.T) {
	b := activeBorrowing()

	increments := 0
	var gotFines *decimal.Decimal
	var gotReturned time.Time
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markReturnedFn: func(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error {
			gotReturned, gotFines = returned, fines
			return nil
		},
	}
	bk := &bkMock{incrementFn: func(ctx context.Context, tx *sql.Tx, bookID int64) error {
		increments++
		return nil
	}}

	s, mock := newTestService(t, br, bk, &prMock{}, &gwMock{}, "2024-01-10")
	mock.ExpectBegin()
	mock.ExpectCommit()

	out, err := s.Return(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Equal(t, 1, increments)
	require.Nil(t, gotFines, "no fine exactly on the due date")
	require.Equal(t, day("2024-01-10"), gotReturned)
	require.NotNil(t, out.ReturnedDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReturn_Overdue_FixesFine(t *testing.T) {
	b := activeBorrowing()

	var gotFines *decimal.Decimal
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markReturnedFn: func(ctx context.Context, tx *sql.Tx, id int64, returned time.Time, fines *decimal.Decimal) error {
			gotFines = fines
			return nil
		},
	}
	bk := &bkMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) { return testBook(), nil }}

	s, mock := newTestService(t, br, bk, &prMock{}, &gwMock{}, "2024-01-15")
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := s.Return(context.Background(), 7, 10)
	require.NoError(t, err)
	require.NotNil(t, gotFines)
	// 5 days late at 2.00 * 1.2
	require.True(t, gotFines.Equal(dec("12.00")), "got %s", gotFines)
}

func TestReturn_Idempotent(t *testing.T) {
	b := activeBorrowing()

	increments := 0
	br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
	bk := &bkMock{incrementFn: func(ctx context.Context, tx *sql.Tx, bookID int64) error {
		increments++
		return nil
	}}

	s, mock := newTestService(t, br, bk, &prMock{}, &gwMock{}, "2024-01-10")
	mock.ExpectBegin()
	mock.ExpectCommit()

	out, err := s.Return(context.Background(), 7, 10)
	require.NoError(t, err)

	// second return sees the stored returned_date and must not touch inventory
	b.ReturnedDate = out.ReturnedDate
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = s.Return(context.Background(), 7, 10)
	require.Equal(t, ErrAlreadyReturned, Code(err))
	require.Equal(t, 1, increments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReturn_Unpaid(t *testing.T) {
	b := activeBorrowing()
	b.Paid = false

	br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
	s, mock := newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-10")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.Return(context.Background(), 7, 10)
	require.Equal(t, ErrNotPaid, Code(err))
}

// --- SettleFines ---

func settledBorrowing() *model.Borrowing {
	b := activeBorrowing()
	ret := day("2024-01-15")
	b.ReturnedDate = &ret
	f := dec("12.00")
	b.FinesApplied = &f
	return b
}

func TestSettleFines_NoPaymentFound(t *testing.T) {
	b := settledBorrowing()

	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markFinesPaidFn: func(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, ref string) error {
			t.Fatal("must not mutate when no payment is linked")
			return nil
		},
	}
	gw := &gwMock{chargeFn: func(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error) {
		t.Fatal("must not charge when no payment is linked")
		return nil, nil
	}}

	// prMock default GetByBorrowingForUpdate returns sql.ErrNoRows
	s, mock := newTestService(t, br, &bkMock{}, &prMock{}, gw, "2024-01-17")
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := s.SettleFines(context.Background(), 7, 10)
	require.Equal(t, ErrNoPaymentFound, Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleFines_RecomputesAtSettlement(t *testing.T) {
	b := settledBorrowing() // fine frozen at 12.00 on 2024-01-15

	payment := &model.Payment{ID: 55, UserID: 7, BorrowingID: 10, TransactionRef: "ch_rent"}
	var settledAmount decimal.Decimal
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markFinesPaidFn: func(ctx context.Context, tx *sql.Tx, id int64, fines decimal.Decimal, ref string) error {
			settledAmount = fines
			return nil
		},
	}
	bk := &bkMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) { return testBook(), nil }}

	var insertedFine *model.Fine
	var linkedPayment, linkedFine int64
	pr := &prMock{
		getByBorrowFn: func(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error) { return payment, nil },
		insertFineFn: func(ctx context.Context, tx *sql.Tx, f *model.Fine) error {
			f.ID = 77
			insertedFine = f
			return nil
		},
		linkFineFn: func(ctx context.Context, tx *sql.Tx, paymentID, fineID int64) error {
			linkedPayment, linkedFine = paymentID, fineID
			return nil
		},
	}
	var charged gatewayrepo.ChargeReq
	gw := &gwMock{chargeFn: func(ctx context.Context, req gatewayrepo.ChargeReq) (*gatewayrepo.ChargeResp, error) {
		charged = req
		return &gatewayrepo.ChargeResp{TransactionRef: "ch_fine"}, nil
	}}

	// two more days have passed since the return: 7 days late now
	s, mock := newTestService(t, br, bk, pr, gw, "2024-01-17")
	mock.ExpectBegin()
	mock.ExpectCommit()

	f, err := s.SettleFines(context.Background(), 7, 10)
	require.NoError(t, err)

	// 2.00 * 7 * 1.2 = 16.80, not the frozen 12.00
	require.EqualValues(t, 1680, charged.AmountCents)
	require.True(t, settledAmount.Equal(dec("16.80")), "got %s", settledAmount)
	require.True(t, f.AmountPaid.Equal(dec("16.80")))
	require.Equal(t, "ch_fine", f.TransactionRef)

	require.NotNil(t, insertedFine)
	require.NotNil(t, insertedFine.PaymentID)
	require.EqualValues(t, 55, *insertedFine.PaymentID)
	require.EqualValues(t, 55, linkedPayment)
	require.EqualValues(t, 77, linkedFine)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleFines_Preconditions(t *testing.T) {
	s := func(b *model.Borrowing) (*service, sqlmock.Sqlmock) {
		br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
		return newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-17")
	}

	b := activeBorrowing() // not returned
	svc, mock := s(b)
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := svc.SettleFines(context.Background(), 7, 10)
	require.Equal(t, ErrNotReturned, Code(err))

	b = settledBorrowing()
	b.FinesApplied = nil
	svc, mock = s(b)
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.SettleFines(context.Background(), 7, 10)
	require.Equal(t, ErrNoFines, Code(err))

	b = settledBorrowing()
	b.FinesPaid = true
	svc, mock = s(b)
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.SettleFines(context.Background(), 7, 10)
	require.Equal(t, ErrFinesAlreadyPaid, Code(err))
}

// --- CancelAndRefund ---

func TestCancelAndRefund_WindowExpired(t *testing.T) {
	b := activeBorrowing() // borrowed 2024-01-02

	br := &brMock{getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil }}
	gw := &gwMock{refundFn: func(ctx context.Context, ref string) error {
		t.Fatal("must not refund outside the window")
		return nil
	}}

	// the day after borrow_date
	s, mock := newTestService(t, br, &bkMock{}, &prMock{}, gw, "2024-01-03")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.CancelAndRefund(context.Background(), 7, 10)
	require.Equal(t, ErrRefundWindowExpired, Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelAndRefund_SameDay(t *testing.T) {
	b := activeBorrowing()

	payment := &model.Payment{ID: 55, TransactionRef: "ch_rent"}
	refunded, cancelled, increments := 0, 0, 0
	var refundedRef string
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markCancelledFn: func(ctx context.Context, tx *sql.Tx, id int64) error {
			cancelled++
			return nil
		},
	}
	bk := &bkMock{incrementFn: func(ctx context.Context, tx *sql.Tx, bookID int64) error {
		increments++
		return nil
	}}
	pr := &prMock{
		getByBorrowFn: func(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error) { return payment, nil },
		markRefundedFn: func(ctx context.Context, tx *sql.Tx, paymentID int64) error {
			refunded++
			return nil
		},
	}
	gw := &gwMock{refundFn: func(ctx context.Context, ref string) error {
		refundedRef = ref
		return nil
	}}

	s, mock := newTestService(t, br, bk, pr, gw, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, s.CancelAndRefund(context.Background(), 7, 10))
	require.Equal(t, "ch_rent", refundedRef)
	require.Equal(t, 1, refunded)
	require.Equal(t, 1, cancelled)
	require.Equal(t, 1, increments, "cancellation must give the copy back")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelAndRefund_UnpaidJustCancels(t *testing.T) {
	b := activeBorrowing()
	b.Paid = false

	cancelled, increments := 0, 0
	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markCancelledFn: func(ctx context.Context, tx *sql.Tx, id int64) error {
			cancelled++
			return nil
		},
	}
	bk := &bkMock{incrementFn: func(ctx context.Context, tx *sql.Tx, bookID int64) error {
		increments++
		return nil
	}}
	gw := &gwMock{refundFn: func(ctx context.Context, ref string) error {
		t.Fatal("nothing to refund on an unpaid borrowing")
		return nil
	}}

	// outside the refund window on purpose: unpaid cancels are always allowed
	s, mock := newTestService(t, br, bk, &prMock{}, gw, "2024-01-20")
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, s.CancelAndRefund(context.Background(), 7, 10))
	require.Equal(t, 1, cancelled)
	require.Zero(t, increments, "no inventory was taken for an unpaid borrowing")
}

func TestCancelAndRefund_GatewayFailure(t *testing.T) {
	b := activeBorrowing()

	br := &brMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) { return b, nil },
		markCancelledFn: func(ctx context.Context, tx *sql.Tx, id int64) error {
			t.Fatal("must not cancel when the refund failed")
			return nil
		},
	}
	pr := &prMock{getByBorrowFn: func(ctx context.Context, tx *sql.Tx, borrowingID int64) (*model.Payment, error) {
		return &model.Payment{ID: 55, TransactionRef: "ch_rent"}, nil
	}}
	gw := &gwMock{refundFn: func(ctx context.Context, ref string) error {
		return &gatewayrepo.DeclinedError{Reason: "already refunded"}
	}}

	s, mock := newTestService(t, br, &bkMock{}, pr, gw, "2024-01-02")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.CancelAndRefund(context.Background(), 7, 10)
	require.Equal(t, ErrGateway, Code(err))
	require.Contains(t, err.Error(), "already refunded")
}

// --- List / Get visibility ---

func TestList_NonAdminForcedToOwnActive(t *testing.T) {
	var got borrowingrepo.ListFilter
	br := &brMock{listFn: func(ctx context.Context, f borrowingrepo.ListFilter) ([]ListRow, error) {
		got = f
		return nil, nil
	}}
	s, _ := newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")

	other := int64(99)
	_, err := s.List(context.Background(), Requester{UserID: 7}, Filters{UserID: &other})
	require.NoError(t, err)
	require.NotNil(t, got.ActiveOnlyFor)
	require.EqualValues(t, 7, *got.ActiveOnlyFor)
}

func TestList_AdminSeesAll(t *testing.T) {
	var got borrowingrepo.ListFilter
	br := &brMock{listFn: func(ctx context.Context, f borrowingrepo.ListFilter) ([]ListRow, error) {
		got = f
		return nil, nil
	}}
	s, _ := newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")

	ret := true
	uid := int64(99)
	_, err := s.List(context.Background(), Requester{UserID: 1, Admin: true}, Filters{UserID: &uid, Returned: &ret})
	require.NoError(t, err)
	require.Nil(t, got.ActiveOnlyFor)
	require.NotNil(t, got.UserID)
	require.EqualValues(t, 99, *got.UserID)
	require.NotNil(t, got.Returned)
	require.True(t, *got.Returned)
}

func TestGet_Visibility(t *testing.T) {
	b := activeBorrowing()
	br := &brMock{getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) { return b, nil }}
	s, _ := newTestService(t, br, &bkMock{}, &prMock{}, &gwMock{}, "2024-01-02")

	// owner sees an active paid borrowing
	out, err := s.Get(context.Background(), Requester{UserID: 7}, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, out.ID)

	// another user does not
	_, err = s.Get(context.Background(), Requester{UserID: 8}, 10)
	require.Equal(t, ErrNotFound, Code(err))

	// the owner loses plain visibility once returned
	ret := day("2024-01-10")
	b.ReturnedDate = &ret
	_, err = s.Get(context.Background(), Requester{UserID: 7}, 10)
	require.Equal(t, ErrNotFound, Code(err))

	// but an admin still sees it
	out, err = s.Get(context.Background(), Requester{UserID: 1, Admin: true}, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, out.ID)
}

func TestListPayments_HistoryScoping(t *testing.T) {
	var asked []int64
	pr := &prMock{listPaymentsFn: func(ctx context.Context, userID int64) ([]model.Payment, error) {
		asked = append(asked, userID)
		return []model.Payment{{ID: 1, UserID: userID}}, nil
	}}
	s, _ := newTestService(t, &brMock{}, &bkMock{}, pr, &gwMock{}, "2024-01-02")

	other := int64(42)

	// non-admin always gets their own history, even asking for someone else
	_, err := s.ListPayments(context.Background(), Requester{UserID: 7}, &other)
	require.NoError(t, err)

	// admin may scope to another user
	_, err = s.ListPayments(context.Background(), Requester{UserID: 1, Admin: true}, &other)
	require.NoError(t, err)

	// admin without a filter gets their own
	_, err = s.ListPayments(context.Background(), Requester{UserID: 1, Admin: true}, nil)
	require.NoError(t, err)

	require.Equal(t, []int64{7, 42, 1}, asked)
}
