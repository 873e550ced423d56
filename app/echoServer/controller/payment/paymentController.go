package payment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	bs "github.com/Anastasia-Su/library-api-service/service/borrowing"
)

type Controller struct {
	Svc bs.Service
	Log *slog.Logger
}

func borrowingID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// POST /v1/borrowings/:id/pay
func (h *Controller) Pay(c echo.Context) error {
	id, err := borrowingID(c)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	p, err := h.Svc.SubmitPayment(c.Request().Context(), uid, id)
	if err != nil {
		h.Log.Error("submit payment", "err", err, "borrowing_id", id)
		return h.mapErr(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "payment succeeded",
		"payment": p,
	})
}

// POST /v1/borrowings/:id/fines
func (h *Controller) SettleFines(c echo.Context) error {
	id, err := borrowingID(c)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	f, err := h.Svc.SettleFines(c.Request().Context(), uid, id)
	if err != nil {
		h.Log.Error("settle fines", "err", err, "borrowing_id", id)
		return h.mapErr(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "fines settled",
		"fine":    f,
	})
}

// POST /v1/borrowings/:id/refund
func (h *Controller) Refund(c echo.Context) error {
	id, err := borrowingID(c)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	if err := h.Svc.CancelAndRefund(c.Request().Context(), uid, id); err != nil {
		h.Log.Error("cancel and refund", "err", err, "borrowing_id", id)
		return h.mapErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "refund created"})
}

// GET /v1/payments
func (h *Controller) ListPayments(c echo.Context) error {
	ps, err := h.Svc.ListPayments(c.Request().Context(), requester(c), userFilter(c))
	if err != nil {
		h.Log.Error("list payments", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": ps})
}

// GET /v1/fines
func (h *Controller) ListFines(c echo.Context) error {
	fs, err := h.Svc.ListFines(c.Request().Context(), requester(c), userFilter(c))
	if err != nil {
		h.Log.Error("list fines", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": fs})
}

func requester(c echo.Context) bs.Requester {
	uid, _ := c.Get("user_id").(int64)
	role, _ := c.Get("role").(string)
	return bs.Requester{UserID: uid, Admin: role == "admin"}
}

func userFilter(c echo.Context) *int64 {
	if v := c.QueryParam("user"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return &id
		}
	}
	return nil
}

func (h *Controller) mapErr(c echo.Context, err error) error {
	switch bs.Code(err) {
	case bs.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
	case bs.ErrNotOwner:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	case bs.ErrBookUnavailable:
		return c.JSON(http.StatusConflict, echo.Map{"message": "this book is not currently available"})
	case bs.ErrAlreadyPaid:
		return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing already paid"})
	case bs.ErrAlreadyReturned:
		return c.JSON(http.StatusConflict, echo.Map{"message": "this book is already returned"})
	case bs.ErrNotReturned:
		return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing is not returned yet"})
	case bs.ErrNoFines, bs.ErrFinesAlreadyPaid:
		return c.JSON(http.StatusConflict, echo.Map{"message": "no unpaid fines on this borrowing"})
	case bs.ErrCancelled:
		return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing is cancelled"})
	case bs.ErrRefundWindowExpired:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "you can only refund borrowings created today"})
	case bs.ErrGateway:
		// surface the provider's reason verbatim
		return c.JSON(http.StatusPaymentRequired, echo.Map{"message": err.Error()})
	case bs.ErrNoPaymentFound:
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "no payment found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}
