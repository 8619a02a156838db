package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"finman/internal/api"
	"finman/internal/api/handlers"
	"finman/internal/dialog"
	"finman/internal/service"
	"finman/internal/transport/telegram"
	"finman/pkg/auth"
	"finman/pkg/clock"
	"finman/pkg/config"
	"finman/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// bootstrap loads configuration and initializes the global logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Get(), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	appLogger.Info("Starting finman", zap.String("storage", cfg.Storage.Driver))

	st, err := openStores(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer st.close()

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)
	authService := service.NewAuthService(st.users, jwtManager, appLogger)

	llmService, err := service.NewLLMService(&cfg.GigaChat, logger.Component("llm"))
	if err != nil {
		return err
	}
	defer llmService.Close()

	ocrService := service.NewOCRService(llmService, logger.Component("ocr"))
	extraction := service.NewExtractionService(llmService, ocrService, logger.Component("extraction"))

	clk := clock.SystemClock{}
	sessions := dialog.NewStore(cfg.Dialog.SessionIdleTimeout, clk, logger.Component("sessions"))
	go sessions.Run(ctx, cfg.Dialog.SweepInterval)

	coordinator := dialog.NewCoordinator(st.expenses, cfg.Dialog.CommitTimeout, cfg.Dialog.DedupWindow, clk, logger.Component("commit"))
	engine := dialog.NewEngine(&cfg.Dialog, sessions, extraction, coordinator, clk, logger.Component("dialog"))

	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewBot(&cfg.Telegram, logger.Component("telegram"))
		if err != nil {
			return err
		}
		dispatcher := dialog.NewDispatcher(engine, bot, logger.Component("dispatcher"))
		go bot.Run(ctx, dispatcher)
		// pending turns finish before the stores close
		defer dispatcher.Wait()
	} else {
		appLogger.Warn("TELEGRAM_BOT_TOKEN is not set, the Telegram bot is disabled")
	}

	app := api.SetupRouter(api.Handlers{
		Auth:     handlers.NewAuthHandler(authService, appLogger),
		Chat:     handlers.NewChatHandler(engine, appLogger),
		Expenses: handlers.NewExpenseHandler(st.expenses, appLogger),
		Health:   handlers.NewHealthHandler(sessions),
	}, jwtManager, appLogger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
	return nil
}
