package borrowing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Anastasia-Su/library-api-service/model"
	"github.com/Anastasia-Su/library-api-service/service/fee"
)

// SweepRepo is the slice of the borrowing repository the sweep needs.
type SweepRepo interface {
	ListOverdueUnreturned(ctx context.Context, today time.Time) ([]model.Borrowing, error)
	UpdateFinesIfChanged(ctx context.Context, id int64, fines decimal.Decimal) (bool, error)
}

// Sweeper keeps fines_applied current on every overdue, unreturned borrowing.
// Each write is conditioned on the value differing, so overlapping runs are
// harmless.
type Sweeper interface {
	Run(ctx context.Context) (int64, error)
}

type sweeper struct {
	r   SweepRepo
	bk  BookRepo
	log *slog.Logger
	now func() time.Time
}

func NewSweeper(r SweepRepo, bk BookRepo, log *slog.Logger) Sweeper {
	return &sweeper{r: r, bk: bk, log: log, now: time.Now}
}

func (s *sweeper) Run(ctx context.Context) (int64, error) {
	today := dateOnly(s.now())

	overdue, err := s.r.ListOverdueUnreturned(ctx, today)
	if err != nil {
		return 0, err
	}

	fees := map[int64]decimal.Decimal{}
	var updated int64
	for _, b := range overdue {
		dailyFee, ok := fees[b.BookID]
		if !ok {
			book, err := s.bk.Detail(ctx, b.BookID)
			if err != nil {
				s.log.Error("fine sweep: book lookup failed", "book_id", b.BookID, "err", err)
				continue
			}
			dailyFee = book.DailyFee
			fees[b.BookID] = dailyFee
		}

		fine := fee.OverdueFine(b.ExpectedReturnDate, today, dailyFee)
		changed, err := s.r.UpdateFinesIfChanged(ctx, b.ID, fine)
		if err != nil {
			s.log.Error("fine sweep: update failed", "borrowing_id", b.ID, "err", err)
			continue
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}
