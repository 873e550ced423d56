// model/payment.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is created exactly once per successful rental charge. It stays
// immutable afterwards except for the refunded flag and the fine back-link.
type Payment struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	BorrowingID    int64           `json:"borrowing_id"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	TransactionRef string          `json:"transaction_ref"`
	Refunded       bool            `json:"refunded"`
	FineID         *int64          `json:"fine_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Fine records one settled overdue fine, linked to the rental Payment it
// belongs to.
type Fine struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	BorrowingID    int64           `json:"borrowing_id"`
	PaymentID      *int64          `json:"payment_id,omitempty"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	TransactionRef string          `json:"transaction_ref"`
	CreatedAt      time.Time       `json:"created_at"`
}
