package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/giygas/mini-emr/catalog"
	"github.com/giygas/mini-emr/config"
	"github.com/giygas/mini-emr/data"
	"github.com/giygas/mini-emr/handlers"
	"github.com/giygas/mini-emr/health"
	"github.com/giygas/mini-emr/interfaces"
	"github.com/giygas/mini-emr/logging"
	"github.com/giygas/mini-emr/scheduler"
	"github.com/giygas/mini-emr/server"
	"github.com/giygas/mini-emr/session"
	"github.com/giygas/mini-emr/store/postgres"
	"github.com/giygas/mini-emr/store/sqlite"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mini-emr",
		Short:        "Mini-EMR admin and patient portal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv()
		},
	}

	root.AddCommand(newServeCmd(), newSeedCmd(), newVerifyCountsCmd(), newAddFutureApptsCmd())
	return root
}

// loadEnv reads .env from the working directory, then from the executable's
// directory. A missing file is not an error.
func loadEnv() error {
	if err := godotenv.Load(); err == nil {
		return nil
	}

	ex, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(ex), ".env")); err != nil {
		logging.Debug("No .env file found, using process environment")
	}
	return nil
}

// setup loads the configuration and installs the global logger
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		Env:            cfg.Env.String(),
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	return cfg, nil
}

// openStore opens the backend named by DATABASE_DRIVER
func openStore(ctx context.Context, cfg *config.Config) (interfaces.RecordStore, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.DriverSQLite, "":
		return sqlite.Open(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the catalog scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logging.Close()

			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	holder := data.NewCatalogContainer()
	holder.SetServerStartTime(time.Now())

	opts := scheduler.Options{RefreshInterval: cfg.CatalogRefreshInterval}
	if cfg.CatalogSourceURL != "" {
		opts.Source = catalog.NewSource(cfg.CatalogSourceURL)
	}
	sched := scheduler.New(st, holder, opts)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	sessions := session.NewManager(cfg.SessionSecret, cfg.IsProduction())
	if !sessions.Configured() {
		logging.Warn("SESSION_SECRET is empty, patient login is disabled")
	}

	handler, err := handlers.NewHandler(st, holder, sessions, handlers.Options{
		Location:   time.Local,
		WindowDays: cfg.DashboardWindowDays,
		Health:     health.NewHealthChecker(st, holder, sched),
	})
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg, handler, sessions)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// withStore runs fn against the configured store and closes it afterwards
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, st interfaces.RecordStore) error) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.Close()

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	return fn(ctx, cfg, st)
}
