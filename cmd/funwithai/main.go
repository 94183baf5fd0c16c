package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fun-with-ai/internal/app"
	"fun-with-ai/internal/config"
	"fun-with-ai/internal/console"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	repl := console.New(nil, os.Stdout)
	ctrl := a.NewController(cfg.HistoryKey, repl)
	repl.Bind(ctrl)

	if err := ctrl.Initialize(ctx); err != nil {
		log.Printf("started with partial state: %v", err)
	}
	if err := repl.Run(ctx, os.Stdin); err != nil {
		log.Fatalf("console: %v", err)
	}
}
