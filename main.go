// Package main library API.
//
// @title           Library Borrowing API
// @version         1.0
// @description     library service (books, borrowings, payments, fines).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/Anastasia-Su/library-api-service/app/echoServer"
	authctrl "github.com/Anastasia-Su/library-api-service/app/echoServer/controller/auth"
	bookctrl "github.com/Anastasia-Su/library-api-service/app/echoServer/controller/book"
	borrowingctrl "github.com/Anastasia-Su/library-api-service/app/echoServer/controller/borrowing"
	paymentctrl "github.com/Anastasia-Su/library-api-service/app/echoServer/controller/payment"
	"github.com/Anastasia-Su/library-api-service/app/echoServer/validation"
	"github.com/Anastasia-Su/library-api-service/config"
	bookrepo "github.com/Anastasia-Su/library-api-service/repository/book"
	borrowingrepo "github.com/Anastasia-Su/library-api-service/repository/borrowing"
	gatewayrepo "github.com/Anastasia-Su/library-api-service/repository/gateway"
	notifierrepo "github.com/Anastasia-Su/library-api-service/repository/notifier"
	paymentrepo "github.com/Anastasia-Su/library-api-service/repository/payment"
	userrepo "github.com/Anastasia-Su/library-api-service/repository/user"
	authsvc "github.com/Anastasia-Su/library-api-service/service/auth"
	booksvc "github.com/Anastasia-Su/library-api-service/service/book"
	"github.com/Anastasia-Su/library-api-service/service/borrowing"
	"github.com/Anastasia-Su/library-api-service/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	bkr := bookrepo.New(db)
	brr := borrowingrepo.New(db)
	pr := paymentrepo.New(db)
	gw := gatewayrepo.NewHTTP(cfg.GatewayAPIKey, cfg.GatewayBaseURL)

	nf := notifierrepo.NewNoop()
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notifierrepo.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Error("telegram init failed, notifications disabled", "err", err)
		} else {
			nf = tg
		}
	}

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(bkr)
	brs := borrowing.New(db, brr, bkr, pr, gw, nf, log)
	sweeper := borrowing.NewSweeper(brr, bkr, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowingC := &borrowingctrl.Controller{Svc: brs, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: brs, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowingC,
		Payment:   paymentC,

		JWTSecret: cfg.JWTSecret,
	})

	// daily fine sweep
	go func() {
		t := time.NewTicker(cfg.FineSweepInterval)
		defer t.Stop()
		for range t.C {
			n, err := sweeper.Run(ctx)
			if err != nil {
				log.Error("fine sweep failed", "err", err)
				continue
			}
			log.Info("fine sweep done", "updated", n)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	slog.Info("starting server", "chosen_port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
