package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"residencyd/internal/config"
	"residencyd/internal/hostmem"
	"residencyd/internal/httpapi"
	"residencyd/internal/registry"
	"residencyd/internal/residency"
	"residencyd/internal/service"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	root := &cobra.Command{
		Use:           "residencyd",
		Short:         "Model residency cache and lifecycle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		addr          string
		configPath    string
		catalogPath   string
		defaultDevice string
		offloadDevice string
		reliefMB      int64
		logLevel      string
	)
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags override file values.
			if addr != "" {
				cfg.Addr = addr
			}
			if catalogPath != "" {
				cfg.CatalogPath = catalogPath
			}
			if defaultDevice != "" {
				cfg.DefaultDevice = defaultDevice
			}
			if offloadDevice != "" {
				cfg.OffloadDevice = offloadDevice
			}
			if reliefMB > 0 {
				cfg.PressureReliefMB = reliefMB
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8080"
			}
			if cfg.CatalogPath == "" {
				return fmt.Errorf("catalog path is required (--catalog or config file)")
			}
			return run(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", envOr("RESIDENCYD_ADDR", ""), "HTTP listen address, e.g. :8080")
	serve.Flags().StringVar(&configPath, "config", envOr("RESIDENCYD_CONFIG", ""), "Path to config file (yaml/json/toml)")
	serve.Flags().StringVar(&catalogPath, "catalog", envOr("RESIDENCYD_CATALOG", ""), "Path to the engine catalog (yaml)")
	serve.Flags().StringVar(&defaultDevice, "default-device", envOr("RESIDENCYD_DEVICE", ""), "Device used when a request omits one")
	serve.Flags().StringVar(&offloadDevice, "offload-device", "", "Device evicted instances are moved to")
	serve.Flags().Int64Var(&reliefMB, "pressure-relief-mb", 0, "Host memory requested before each construction (MB)")
	serve.Flags().StringVar(&logLevel, "log-level", envOr("RESIDENCYD_LOG_LEVEL", ""), "Log level: debug|info|error|off")
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("residencyd", version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	catalog, err := registry.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	budget := make(map[string]int64, len(cfg.DeviceBudgetMB))
	for dev, mb := range cfg.DeviceBudgetMB {
		budget[dev] = mb << 20
	}
	host := hostmem.New(budget)

	cache := residency.NewWithConfig(residency.CacheConfig{
		Policies:            catalog.Policies(),
		Host:                host,
		PressureReliefBytes: cfg.PressureReliefMB << 20,
		OffloadDevice:       cfg.OffloadDevice,
	})
	svc := service.New(cache, catalog, cfg.DefaultDevice)

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(ctx)
	if cfg.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "DELETE", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(svc)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("catalog", cfg.CatalogPath).Msg("residencyd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	return g.Wait()
}

func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch level {
	case "debug":
		lvl = zerolog.DebugLevel
	case "error":
		lvl = zerolog.ErrorLevel
	case "off":
		lvl = zerolog.Disabled
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
