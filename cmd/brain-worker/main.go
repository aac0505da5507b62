// Package main is the Brain worker entry point: it opens its own handle on
// the shared SQLite store and runs the C2 runtime poll-claim-execute loop,
// independent of the server process (spec §2).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brain/internal/config"
	"brain/internal/logging"
	"brain/internal/store"
	"brain/internal/worker"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "brain-worker",
	Short: "Brain worker: claims and runs queued code executions",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start polling for executions and run them until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.Dev = true
		}
		log, err := logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		st, err := store.Open(cfg.Store, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		w := worker.New(st.DB, cfg.Store.Path, cfg.Execution, cfg.Worker, log)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log.Info("brain-worker started", zap.String("worker_id", w.ID()))
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable development-mode logging")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
