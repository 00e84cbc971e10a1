package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirinyoku/seatswap/internal/config"
	"github.com/kirinyoku/seatswap/internal/notify"
)

// mailworker drains the outbound email queue into SMTP.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadMail()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.AMQPURL == "" || cfg.SMTPHost == "" {
		logger.Error("AMQP_URL and SMTP_HOST are required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sender := notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.From,
	})

	logger.Info("mail worker started", "queue", cfg.Queue)

	if err := notify.Consume(ctx, cfg.AMQPURL, cfg.Queue, sender, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mail worker stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("mail worker stopped")
}
