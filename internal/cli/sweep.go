package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Harshitk-cp/mnemo/internal/api"
	"github.com/Harshitk-cp/mnemo/internal/config"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one decay sweep and exit",
	Long:  "Soft-deletes memories whose retention has lapsed. Intended for an external scheduler when the server's own schedule is not used.",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.SweepTimeout())
	defer cancel()

	ms, closeStore, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sweeper := api.NewSweeper(ms, domain.SystemClock{}, logger)
	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		// Per-user failures are already logged; a partial sweep still exits non-zero.
		if errors.Is(err, domain.ErrSweepPartialFailure) {
			logger.Warn("sweep incomplete", zap.Int("failures", result.Failures))
		}
		return err
	}
	return nil
}
