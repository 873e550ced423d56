package config

import "time"

type App struct {
	Port              string        `env:"APP_PORT" default:"8080"`
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	JWTSecret         string        `env:"JWT_SECRET,required"`
	GatewayAPIKey     string        `env:"GATEWAY_API_KEY,required"`
	GatewayBaseURL    string        `env:"GATEWAY_BASE_URL" default:"https://api.cardgate.example.com"`
	TelegramBotToken  string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    int64         `env:"TELEGRAM_CHAT_ID"`
	FineSweepInterval time.Duration `env:"FINE_SWEEP_INTERVAL" default:"24h"`
	Env               string        `env:"APP_ENV" default:"dev"`
}
