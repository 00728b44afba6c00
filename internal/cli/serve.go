package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/api"
	"github.com/Harshitk-cp/mnemo/internal/config"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/llm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the decay schedule",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	ms, closeStore, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provider := config.LLMProvider()
	var completion domain.CompletionClient
	if c, err := llm.NewClient(provider, config.LLMAPIKey(), config.LLMModel()); err != nil {
		logger.Warn("LLM client initialization failed, summaries will use the local fallback",
			zap.String("provider", provider), zap.Error(err))
	} else {
		completion = c
		logger.Info("LLM client initialized", zap.String("provider", provider))
	}

	app := api.NewApp(ms, completion, domain.SystemClock{}, logger)
	if err := app.Sweeper.Start(); err != nil {
		return err
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
	case err := <-serveErr:
		app.Sweeper.Stop()
		return err
	}
	logger.Info("shutting down server")

	app.Sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight background captures land before the store closes.
	app.Memory.Wait()

	logger.Info("server stopped")
	return nil
}
