package echoServer

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Anastasia-Su/library-api-service/app/echoServer/controller/auth"
	"github.com/Anastasia-Su/library-api-service/app/echoServer/controller/book"
	"github.com/Anastasia-Su/library-api-service/app/echoServer/controller/borrowing"
	"github.com/Anastasia-Su/library-api-service/app/echoServer/controller/payment"
	"github.com/Anastasia-Su/library-api-service/app/echoServer/jwtx"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller
	Payment   *payment.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Auth
	authed := e.Group("/v1")
	authed.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(c.JWTSecret),
		TokenLookup: "header:Authorization:Bearer ",
	}))
	authed.Use(identity)

	// Books
	authed.GET("/books", c.Book.List)
	authed.GET("/books/:id", c.Book.Detail)
	// Admin endpoints
	authed.POST("/books", c.Book.Create)
	authed.POST("/books/:id/inventory", c.Book.AddInventory)

	// Borrowings
	authed.POST("/borrowings", c.Borrowing.Create)
	authed.GET("/borrowings", c.Borrowing.List)
	authed.GET("/borrowings/:id", c.Borrowing.Get)
	authed.POST("/borrowings/:id/return", c.Borrowing.Return)

	// Payments
	authed.POST("/borrowings/:id/pay", c.Payment.Pay)
	authed.POST("/borrowings/:id/fines", c.Payment.SettleFines)
	authed.POST("/borrowings/:id/refund", c.Payment.Refund)
	authed.GET("/payments", c.Payment.ListPayments)
	authed.GET("/fines", c.Payment.ListFines)
}

// identity copies the verified token claims into plain context keys
// so handlers don't depend on the jwt middleware's storage format.
func identity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := jwtx.UserIDFromContext(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		role, err := jwtx.RoleFromContext(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		}
		c.Set("user_id", uid)
		c.Set("role", role)
		return next(c)
	}
}
