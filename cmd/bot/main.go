package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fun-with-ai/internal/app"
	"fun-with-ai/internal/auth"
	"fun-with-ai/internal/config"
	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/pending"
	"fun-with-ai/internal/scheduler"
	"fun-with-ai/internal/telegram"
)

const (
	allowlistKey = "allowlist"
	pendingKey   = "pending_requests"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	authSvc, err := auth.NewWithRepo(auth.NewKVRepository(a.Store, allowlistKey), cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	pendingQ := pending.NewQueue(auth.NewKVRepository(a.Store, pendingKey))

	factory := func(key string, n controller.Notifier) telegram.Controller {
		return a.NewController(key, n)
	}
	bot, err := telegram.New(cfg.TelegramBotToken, authSvc, pendingQ, cfg.AdminUserID, cfg.HistoryKey, factory)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	if a.Recorder != nil && cfg.AdminUserID != 0 && cfg.ReportSchedule != "" {
		sched := scheduler.New(cfg.ReportSchedule)
		sched.SetReportFunction(scheduler.DailyReport(a.Recorder, time.Now, bot.SendReport))
		if err := sched.Start(); err != nil {
			log.Printf("failed to start report scheduler: %v", err)
		} else {
			defer sched.Stop()
		}
	}

	bot.Start(ctx)
}
