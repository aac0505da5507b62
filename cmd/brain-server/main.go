// Package main is the Brain server entry point: it owns the embedded
// SQLite store and the C1/C3/C4 components, and exposes the five named
// operations over a Unix domain socket. Worker processes run separately
// (cmd/brain-worker) and open their own connection to the same store file.
//
// Grounded on the teacher's cmd/nerd/main.go root-command bootstrap
// (config -> logger -> store -> components) and its persistent-flag style,
// narrowed to Brain's three subcommands.
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
	"brain/internal/orchestrator"
	"brain/internal/store"
	"brain/internal/transport"
)

var (
	configPath string
	socketPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "brain-server",
	Short: "Brain server: tiered memory, sessions, and code execution queue",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server and accept connections on the operation socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer st.Close()
		defer log.Sync()

		orch := orchestrator.New(st, cfg, log)
		defer orch.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sock := socketPath
		if sock == "" {
			sock = cfg.DataDir + "/brain.sock"
		}

		srv := transport.New(orch, log)

		errCh := make(chan error, 2)
		go func() { errCh <- orch.RunMaintenance(ctx) }()
		go func() { errCh <- srv.Serve(ctx, sock) }()

		log.Info("brain-server started", zap.String("socket", sock), zap.String("store", cfg.Store.Path))

		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer st.Close()
		defer log.Sync()
		log.Info("migrations applied")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print a point-in-time health summary and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, st, err := bootstrap()
		if err != nil {
			return err
		}
		defer st.Close()
		defer log.Sync()

		orch := orchestrator.New(st, cfg, log)
		defer orch.Close()

		summary, err := orch.Health(context.Background())
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		fmt.Printf("hot=%d warm=%d cold=%d bytes=%d recent_executions=%d\n",
			summary.MemoryStats.HotCount, summary.MemoryStats.WarmCount,
			summary.MemoryStats.ColdCount, summary.MemoryStats.TotalBytes,
			len(summary.RecentExecutions))
		return nil
	},
}

func bootstrap() (*config.Config, *zap.Logger, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Dev = true
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, log, st, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Unix domain socket path (default: <data_dir>/brain.sock)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable development-mode logging")

	rootCmd.AddCommand(serveCmd, migrateCmd, healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
