package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/cognicore/qnabot/internal/logging"
	"github.com/cognicore/qnabot/pkg/qna/config"
)

func main() {
	var (
		configPath     = flag.String("config", "config.yaml", "Config file")
		query          = flag.String("query", "", "One-shot question (non-interactive mode)")
		conversationID = flag.String("conversation", "", "Conversation id (default: new id)")
		verbose        = flag.Bool("v", false, "Show match details for every answer")
	)
	flag.Parse()

	logging.Preinit()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg); err != nil {
		slog.Error("logging init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	di := newInjector(ctx, cfg)
	defer di.Shutdown()

	session, err := newChat(di, os.Stdout, *conversationID, *verbose)
	if err != nil {
		slog.Error("startup failed", "error", err)
		_ = di.Shutdown()
		cancel()
		os.Exit(1)
	}

	if *query != "" {
		session.ask(ctx, *query)
		return
	}

	fmt.Println("===========================================")
	fmt.Println("  QnA Chat")
	fmt.Println("  Type /help for commands, Ctrl+D to exit")
	fmt.Println("===========================================")
	fmt.Println()

	session.run(ctx, os.Stdin)

	fmt.Println("\nGoodbye!")
}
