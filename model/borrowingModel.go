// model/borrowing.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Borrowing struct {
	ID                 int64            `json:"id"`
	UserID             int64            `json:"user_id"`
	BookID             int64            `json:"book_id"`
	BorrowDate         time.Time        `json:"borrow_date"`
	ExpectedReturnDate time.Time        `json:"expected_return_date"`
	ReturnedDate       *time.Time       `json:"returned_date,omitempty"`
	Paid               bool             `json:"paid"`
	Cancelled          bool             `json:"cancelled"`
	FinesPaid          bool             `json:"fines_paid"`
	FinesApplied       *decimal.Decimal `json:"fines_applied,omitempty"`
	PaymentID          *int64           `json:"payment_id,omitempty"`
	TransactionRef     *string          `json:"transaction_ref,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}
