package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omnidrive/omnidrive/internal/api"
	"github.com/omnidrive/omnidrive/internal/logger"
	"github.com/omnidrive/omnidrive/pkg/config"
	"github.com/omnidrive/omnidrive/pkg/metrics"
	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/provider/registry"
	"github.com/omnidrive/omnidrive/pkg/rules"
	"github.com/omnidrive/omnidrive/pkg/upload"

	// Backend adapters register themselves with the provider registry.
	_ "github.com/omnidrive/omnidrive/pkg/provider/ftp"
	_ "github.com/omnidrive/omnidrive/pkg/provider/local"
	_ "github.com/omnidrive/omnidrive/pkg/provider/s3"
	_ "github.com/omnidrive/omnidrive/pkg/provider/telegram"
	_ "github.com/omnidrive/omnidrive/pkg/provider/webdav"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/omnidrive/config.yaml)")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	listen := flag.String("listen", "", "Override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *listen != "" {
		cfg.Server.ListenAddress = *listen
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	if cfg.Server.MetricsEnabled {
		metrics.InitRegistry()
	}

	if err := run(cfg); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ============================================================
	// Persistence
	// ============================================================

	nsStore, err := config.NewNamespaceStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("namespace store: %w", err)
	}
	defer nsStore.Close()

	sessionStore, err := config.NewSessionStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer sessionStore.Close()

	configStore := provider.NewMemoryConfigStore()
	if err := seedProviders(ctx, configStore, cfg); err != nil {
		return err
	}

	ruleStore := rules.NewMemoryStore()

	// ============================================================
	// Core services
	// ============================================================

	resolver := registry.NewConfigResolver(configStore)

	names := namespace.NewManager(nsStore, resolver, cfg.Workspace.SyncOperationsToProvider)

	orch := upload.NewOrchestrator(upload.Options{
		Sessions:          sessionStore,
		Configs:           configStore,
		Rules:             ruleStore,
		Resolver:          resolver,
		Names:             names,
		SpoolDir:          cfg.Upload.SpoolDir,
		ChunkSize:         cfg.Upload.ChunkSize,
		SessionTTL:        cfg.Upload.SessionTTL,
		DefaultProviderID: cfg.Upload.DefaultProvider,
	})
	orch.StartJanitor(ctx, cfg.Upload.JanitorInterval)

	// ============================================================
	// HTTP server
	// ============================================================

	var metricsHandler http.Handler
	if cfg.Server.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
	}

	handler := api.New(api.Options{
		WorkspaceID:  cfg.Workspace.ID,
		Orchestrator: orch,
		Names:        names,
		Rules:        ruleStore,
		Configs:      configStore,
		Resolver:     resolver,
		Metrics:      metricsHandler,
	})

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening on %s (workspace %q, backends: %d)",
			cfg.Server.ListenAddress, cfg.Workspace.ID, len(cfg.Providers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case sig := <-sigChan:
		logger.Info("received %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// seedProviders loads the statically configured backends into the config
// store at startup.
func seedProviders(ctx context.Context, store provider.ConfigStore, cfg *config.Config) error {
	for _, p := range cfg.Providers {
		err := store.Create(ctx, &provider.Config{
			ID:          p.ID,
			WorkspaceID: cfg.Workspace.ID,
			Type:        p.Type,
			Name:        p.Name,
			Options:     p.Options,
			Disabled:    p.Disabled,
		})
		if err != nil {
			return fmt.Errorf("seeding provider %q: %w", p.ID, err)
		}
		logger.Info("provider %q (%s) configured", p.ID, p.Type)
	}
	return nil
}
