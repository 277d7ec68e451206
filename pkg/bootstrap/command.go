package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
)

// Service is the lifecycle every long-running command drives.
type Service interface {
	Initialize(ctx context.Context) error
	Run(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type ServiceFactory func(cfg *config.Config, log logger.Logger) Service

// Command builds the root command of a service binary. The root and its
// "serve" subcommand both load the config named by --config or CONFIG_FILE,
// then run the service until SIGINT or SIGTERM.
func Command(name, short, long string, factory ServiceFactory) *cobra.Command {
	var configFile string

	serve := func(cmd *cobra.Command, _ []string) error {
		if configFile == "" {
			configFile = os.Getenv("CONFIG_FILE")
		}
		if configFile == "" {
			return fmt.Errorf("config file is required: use --config or CONFIG_FILE")
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		log, err := logger.New(cfg.Logging.Level,
			logger.WithEncoding(cfg.Logging.Format),
			logger.WithServiceName(name),
		)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runService(ctx, factory(cfg, log), log)
	}

	root := &cobra.Command{
		Use:           name,
		Short:         short,
		Long:          long,
		Version:       constants.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start " + name,
		RunE:  serve,
	})
	return root
}

func runService(ctx context.Context, svc Service, log logger.Logger) error {
	log.InfowCtx(ctx, "Starting service", "version", constants.Version)

	if err := svc.Initialize(ctx); err != nil {
		log.ErrorwCtx(ctx, "Failed to initialize service", "error", err)
		_ = svc.Shutdown(context.Background())
		return err
	}

	err := svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if shutdownErr := svc.Shutdown(shutdownCtx); shutdownErr != nil {
		log.ErrorwCtx(ctx, "Shutdown failed", "error", shutdownErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
		return err
	}
	log.InfowCtx(ctx, "Service stopped")
	return nil
}
