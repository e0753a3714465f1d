package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davicafu/hexabooks/internal/config"
	"github.com/davicafu/hexabooks/pkg/logger"
)

// ---------------- Main ----------------
func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "hexabooks",
		Short:         "Book catalog service with signed cursor pagination",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configFile, runServe)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (yaml, json or toml)")

	root.AddCommand(newServeCommand(&configFile), newSeedCommand(&configFile))
	return root
}

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the outbox relayer and the analytics consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(*configFile, runServe)
		},
	}
}

func newSeedCommand(configFile *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load books from a JSON file into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(*configFile, func(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
				return runSeed(ctx, cfg, log, file)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "books.json", "JSON file with an array of books")
	return cmd
}

// withRuntime carga configuración y logger y cancela el contexto con SIGINT/SIGTERM.
func withRuntime(configFile string, run func(ctx context.Context, cfg *config.Config, log *zap.Logger) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log := logger.Logger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, log)
}
