package booksvc

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Anastasia-Su/library-api-service/model"
)

type Repo interface {
	CreateBook(ctx context.Context, title, author string, cover model.BookCover, dailyFee decimal.Decimal) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int) (int64, error)
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type Service interface {
	Create(ctx context.Context, title, author string, cover model.BookCover, dailyFee decimal.Decimal) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int) (int64, error)
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func (s *service) Create(ctx context.Context, title, author string, cover model.BookCover, dailyFee decimal.Decimal) (int64, error) {
	if title == "" || author == "" || dailyFee.Sign() <= 0 {
		return 0, errors.New("invalid payload")
	}
	switch cover {
	case "", model.CoverHard, model.CoverSoft:
	default:
		return 0, errors.New("invalid cover")
	}
	return s.r.CreateBook(ctx, title, author, cover, dailyFee)
}

func (s *service) AddInventory(ctx context.Context, bookID int64, n int) (int64, error) {
	return s.r.AddInventory(ctx, bookID, n)
}

func (s *service) List(ctx context.Context) ([]model.Book, error) { return s.r.List(ctx) }
func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) { return s.r.Detail(ctx, id) }
