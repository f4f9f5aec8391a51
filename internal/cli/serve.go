package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avrebarra/lumora/internal/config"
	"github.com/avrebarra/lumora/internal/logger"
	"github.com/avrebarra/lumora/internal/metrics"
	"github.com/avrebarra/lumora/internal/store"
	"github.com/avrebarra/lumora/pkg/builder"
	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/fallback"
	"github.com/avrebarra/lumora/pkg/gateway"
	"github.com/avrebarra/lumora/pkg/httpapi"
	"github.com/avrebarra/lumora/pkg/imagine"
	"github.com/avrebarra/lumora/pkg/ledger"
	"github.com/avrebarra/lumora/pkg/secrets"
	"github.com/avrebarra/lumora/pkg/vfs"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Lumora server",
	Long: `Run the Lumora server in the foreground.
The server exposes the chat gateway, image generation and builder agent
over HTTP and shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}
	if err := writePIDFile(pidFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer os.Remove(pidFile)

	// Persistence
	db, err := store.Open(filepath.Join(cfg.DataDir, "lumora.db"), log.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	// Model catalog
	snapshot, err := catalog.LoadFile(cfg.Models.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load model catalog: %w", err)
	}
	cat := catalog.New(snapshot)

	if cfg.Models.Watch {
		watcher, err := catalog.NewWatcher(cat, cfg.Models.CatalogPath, log.With().Str("component", "catalog").Logger())
		if err != nil {
			return fmt.Errorf("failed to watch model catalog: %w", err)
		}
		defer watcher.Stop()
	}

	// Credentials: config file first, environment as fallback
	configCreds := make(map[string]string, len(cfg.Credentials))
	for _, profile := range cfg.Credentials {
		configCreds[profile.Provider] = profile.APIKey
	}
	secretProvider := secrets.Chain{
		secrets.NewStaticProvider(configCreds),
		secrets.EnvProvider{},
	}

	appMetrics := metrics.New()

	// Credit ledger
	gate := ledger.NewGate(db, appMetrics, log.With().Str("component", "ledger").Logger())
	reaper := ledger.NewReaper(gate, time.Duration(cfg.Ledger.TicketTTLMinutes)*time.Minute, log.With().Str("component", "reaper").Logger())
	if err := reaper.Start(); err != nil {
		return fmt.Errorf("failed to start ticket reaper: %w", err)
	}
	defer reaper.Stop()

	// Model gateway
	gw, err := gateway.New(gateway.Config{
		Catalog: cat,
		Secrets: secretProvider,
		Metrics: appMetrics,
		Logger:  log.With().Str("component", "gateway").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	// Image generation with fallback
	coordinator := fallback.New(appMetrics, log.With().Str("component", "fallback").Logger())
	imagineService, err := imagine.New(imagine.Config{
		Catalog:     cat,
		Secrets:     secretProvider,
		Gate:        gate,
		Coordinator: coordinator,
		Logger:      log.With().Str("component", "imagine").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create image service: %w", err)
	}

	// Builder agent over the virtual file tree
	tree := vfs.NewTree(db.Nodes(), log.With().Str("component", "vfs").Logger())
	registry, err := builder.NewProjectRegistry(tree, log.With().Str("component", "tools").Logger())
	if err != nil {
		return fmt.Errorf("failed to create tool registry: %w", err)
	}
	runner, err := builder.NewRunner(builder.Config{
		Gateway:       gw,
		Registry:      registry,
		Conversations: db,
		Gate:          gate,
		Metrics:       appMetrics,
		Logger:        log.With().Str("component", "builder").Logger(),
		MaxSteps:      cfg.Builder.MaxSteps,
		MaxToolCalls:  cfg.Builder.MaxToolCalls,
	})
	if err != nil {
		return fmt.Errorf("failed to create builder runner: %w", err)
	}

	// HTTP server
	server, err := httpapi.NewServer(httpapi.ServerOptions{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}, httpapi.Dependencies{
		Gateway:       gw,
		Imagine:       imagineService,
		Runner:        runner,
		Gate:          gate,
		Conversations: db,
		Metrics:       appMetrics,
		Logger:        log.With().Str("component", "http").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop HTTP server cleanly")
	}

	log.Info().Msg("Lumora stopped")
	return nil
}

func writePIDFile(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644)
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/lumora.pid"
	}
	return filepath.Join(home, ".lumora", "lumora.pid")
}

func isRunning(pidFile string) bool {
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	_, err = fmt.Sscanf(string(data), "%d", &pid)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
