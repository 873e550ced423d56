package borrowing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	bs "github.com/Anastasia-Su/library-api-service/service/borrowing"
)

type Controller struct {
	Svc bs.Service
	V   *validator.Validate
	Log *slog.Logger
}

func requester(c echo.Context) bs.Requester {
	uid, _ := c.Get("user_id").(int64)
	role, _ := c.Get("role").(string)
	return bs.Requester{UserID: uid, Admin: role == "admin"}
}

// POST /v1/borrowings
func (h *Controller) Create(c echo.Context) error {
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	borrowDate, _ := time.Parse("2006-01-02", req.BorrowDate)
	expectedReturn, _ := time.Parse("2006-01-02", req.ExpectedReturnDate)
	uid, _ := c.Get("user_id").(int64)

	b, err := h.Svc.Create(c.Request().Context(), uid, req.BookID, borrowDate, expectedReturn)
	if err != nil {
		h.Log.Error("borrowing create", "err", err)
		switch bs.Code(err) {
		case bs.ErrValidation:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error()})
		case bs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case bs.ErrBookUnavailable:
			return c.JSON(http.StatusConflict, echo.Map{"message": "this book is not currently available"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"borrowing": b,
		"status":    "PENDING_PAYMENT",
	})
}

// GET /v1/borrowings?user=&returned=&fines=
func (h *Controller) List(c echo.Context) error {
	var f bs.Filters

	if v := c.QueryParam("user"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user filter"})
		}
		f.UserID = &id
	}
	var ok bool
	if f.Returned, ok = boolFilter(c.QueryParam("returned")); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid returned filter"})
	}
	if f.HasFines, ok = boolFilter(c.QueryParam("fines")); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid fines filter"})
	}

	rows, err := h.Svc.List(c.Request().Context(), requester(c), f)
	if err != nil {
		h.Log.Error("borrowing list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}

	b, err := h.Svc.Get(c.Request().Context(), requester(c), id)
	if err != nil {
		switch bs.Code(err) {
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		default:
			h.Log.Error("borrowing get", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, b)
}

// POST /v1/borrowings/:id/return
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	b, err := h.Svc.Return(c.Request().Context(), uid, id)
	if err != nil {
		h.Log.Error("borrowing return", "err", err)
		switch bs.Code(err) {
		case bs.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
		case bs.ErrNotOwner:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
		case bs.ErrAlreadyReturned:
			return c.JSON(http.StatusConflict, echo.Map{"message": "this book is already returned"})
		case bs.ErrCancelled:
			return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing is cancelled"})
		case bs.ErrNotPaid:
			return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing is not paid"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}

	resp := echo.Map{"message": "borrowing returned"}
	if b.FinesApplied != nil {
		resp["fines_applied"] = b.FinesApplied.StringFixed(2)
	}
	return c.JSON(http.StatusOK, resp)
}

func boolFilter(v string) (*bool, bool) {
	switch v {
	case "":
		return nil, true
	case "true":
		b := true
		return &b, true
	case "false":
		b := false
		return &b, true
	default:
		return nil, false
	}
}
