// Package fee holds the pure money math for rentals and overdue fines.
// Everything here is deterministic: dates and a daily fee in, a 2-decimal
// amount out. No clocks, no storage.
package fee

import (
	"time"

	"github.com/shopspring/decimal"
)

// fineMultiplier is the surcharge applied per overdue day.
var fineMultiplier = decimal.NewFromFloat(1.2)

// RentalAmount charges the daily fee per day of the planned rental period.
// Same-day rentals are billed as one day.
func RentalAmount(borrowDate, expectedReturn time.Time, dailyFee decimal.Decimal) decimal.Decimal {
	days := daysBetween(borrowDate, expectedReturn)
	if days < 1 {
		days = 1
	}
	return dailyFee.Mul(decimal.NewFromInt(days)).Round(2)
}

// OverdueFine is zero until the day after the expected return date, then
// dailyFee * overdue days * 1.2.
func OverdueFine(expectedReturn, today time.Time, dailyFee decimal.Decimal) decimal.Decimal {
	days := daysBetween(expectedReturn, today)
	if days <= 0 {
		return decimal.Zero
	}
	return dailyFee.Mul(decimal.NewFromInt(days)).Mul(fineMultiplier).Round(2)
}

// daysBetween counts whole calendar days from a to b, ignoring time of day.
func daysBetween(a, b time.Time) int64 {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int64(b.Sub(a).Hours() / 24)
}
