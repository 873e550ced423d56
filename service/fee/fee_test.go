package fee

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRentalAmount(t *testing.T) {
	fee := decimal.RequireFromString("2.80")

	// 23 days at 2.80
	got := RentalAmount(day("2024-03-26"), day("2024-04-18"), fee)
	require.True(t, got.Equal(decimal.RequireFromString("64.40")), "got %s", got)

	// same-day rental is billed as a single day
	got = RentalAmount(day("2024-03-26"), day("2024-03-26"), fee)
	require.True(t, got.Equal(fee), "got %s", got)

	// one day
	got = RentalAmount(day("2024-03-26"), day("2024-03-27"), fee)
	require.True(t, got.Equal(fee), "got %s", got)
}

func TestOverdueFine(t *testing.T) {
	fee := decimal.RequireFromString("2.00")

	// exactly on the due date: no fine
	got := OverdueFine(day("2024-01-10"), day("2024-01-10"), fee)
	require.True(t, got.IsZero(), "got %s", got)

	// before the due date: no fine
	got = OverdueFine(day("2024-01-10"), day("2024-01-05"), fee)
	require.True(t, got.IsZero(), "got %s", got)

	// 5 days late: 2.00 * 5 * 1.2 = 12.00
	got = OverdueFine(day("2024-01-10"), day("2024-01-15"), fee)
	require.True(t, got.Equal(decimal.RequireFromString("12.00")), "got %s", got)
}

func TestOverdueFine_Rounding(t *testing.T) {
	// 0.35 * 1 * 1.2 = 0.42, 0.33 * 1 * 1.2 = 0.396 -> 0.40 (half up)
	got := OverdueFine(day("2024-01-10"), day("2024-01-11"), decimal.RequireFromString("0.33"))
	require.True(t, got.Equal(decimal.RequireFromString("0.40")), "got %s", got)
}

func TestDaysBetween_IgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2024, 1, 10, 23, 50, 0, 0, time.UTC)
	b := time.Date(2024, 1, 11, 0, 5, 0, 0, time.UTC)
	require.EqualValues(t, 1, daysBetween(a, b))
}
