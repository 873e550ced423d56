// model/book.go
package model

import "github.com/shopspring/decimal"

type BookCover string

const (
	CoverHard BookCover = "H"
	CoverSoft BookCover = "S"
)

type Book struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Cover     BookCover       `json:"cover,omitempty"`
	Inventory int64           `json:"inventory"`
	DailyFee  decimal.Decimal `json:"daily_fee"`
}
