package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"fun-with-ai/internal/app"
	"fun-with-ai/internal/config"
	"fun-with-ai/internal/controller"
	"fun-with-ai/internal/mcptools"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	cfg := config.New()
	ctx := context.Background()

	a, err := app.New(ctx, cfg, app.WithTelemetryWriter(os.Stderr))
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer a.Close()

	notices := controller.NotifierFunc(func(notice string) { log.Printf("notice: %s", notice) })
	ctrl := a.NewController(cfg.HistoryKey, notices)
	if err := ctrl.Initialize(ctx); err != nil {
		log.Printf("started with partial state: %v", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "fun-with-ai-mcp",
		Version: "1.0.0",
	}, nil)
	mcptools.NewServer(ctrl).Register(server)

	log.Printf("Starting MCP server on stdin/stdout...")
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
