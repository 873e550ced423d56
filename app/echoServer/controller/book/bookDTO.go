package book

import "github.com/shopspring/decimal"

type CreateBookReq struct {
	Title    string          `json:"title" validate:"required"`
	Author   string          `json:"author" validate:"required"`
	Cover    string          `json:"cover" validate:"omitempty,oneof=H S"`
	DailyFee decimal.Decimal `json:"daily_fee" validate:"required"`
}

type AddInventoryReq struct {
	N int `json:"n" validate:"required,gt=0"`
}
