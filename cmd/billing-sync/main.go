package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/Ign14/PYMERP-sub000/internal/app"
	"github.com/Ign14/PYMERP-sub000/internal/config"
	"github.com/Ign14/PYMERP-sub000/internal/job"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "billing-sync",
		Short:         "Submit offline fiscal documents to the billing provider",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func onceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Drain every due queue item once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := app.Build(ctx, cfg, logging.New(cfg.LogLevel))
			if err != nil {
				return err
			}
			defer components.Close()

			report, err := components.Sync.RunOnce(ctx)
			if errors.Is(err, job.ErrLockNotObtained) {
				fmt.Fprintln(cmd.ErrOrStderr(), "another worker holds the sync lock, nothing to do")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().Int("batch-size", 0, "Override SYNC_BATCH_SIZE")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drain the queue on an interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
				cfg.Sync.Interval = interval
			}
			if cfg.Sync.Interval < time.Second {
				return fmt.Errorf("sync interval %s is too short", cfg.Sync.Interval)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.New(cfg.LogLevel)
			components, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			logger.WithField("interval", cfg.Sync.Interval.String()).Info("contingency sync watching")
			components.Sync.Run(ctx)
			return nil
		},
	}
	cmd.Flags().Int("batch-size", 0, "Override SYNC_BATCH_SIZE")
	cmd.Flags().Duration("interval", 0, "Override SYNC_INTERVAL")
	return cmd
}

func loadConfig(cmd *cobra.Command) *config.AppConfig {
	cfg := config.Load()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if size, _ := cmd.Flags().GetInt("batch-size"); size > 0 {
		cfg.Sync.BatchSize = size
	}
	return cfg
}
