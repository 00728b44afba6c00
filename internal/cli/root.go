package cli

import (
	"fmt"

	"github.com/Harshitk-cp/mnemo/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "mnemo",
	Short:         "Long-term conversational memory service",
	Long:          "Mnemo captures durable facts from chat messages, recalls them for later turns and forgets what goes stale.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(config.LogLevel())
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}
