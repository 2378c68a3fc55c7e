// Command sandboxd is the plugin sandbox core daemon: it discovers
// plugins, mediates every operation their scripts perform, and exposes
// a websocket transport the host editor process connects to for
// lifecycle events, UI requests, and editor.* round trips.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/config"
	"github.com/skretchpad/plugin-sandbox/internal/hotreload"
	"github.com/skretchpad/plugin-sandbox/internal/manager"
	"github.com/skretchpad/plugin-sandbox/internal/manifest"
	"github.com/skretchpad/plugin-sandbox/internal/meta"
	"github.com/skretchpad/plugin-sandbox/internal/ops"
	"github.com/skretchpad/plugin-sandbox/internal/sandbox"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxregistry"
	"github.com/skretchpad/plugin-sandbox/internal/trust"
	"github.com/skretchpad/plugin-sandbox/internal/transport"
	"github.com/skretchpad/plugin-sandbox/internal/worker"
)

// ListenAddr is the default address sandboxd's websocket transport
// binds to; overridden by SANDBOXCORE_LISTEN_ADDR.
const ListenAddr = ":7337"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		logger.Warn("config error, falling back to defaults", zap.Error(err))
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnvOverrides()

	logger.Info("starting "+meta.Name(), zap.String("version", meta.Version))

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("sandboxd exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	keySet, _, err := trust.LoadKeySetFile(cfg.TrustedKeysPath)
	if err != nil {
		return fmt.Errorf("loading trusted keys: %w", err)
	}
	verifier := trust.NewVerifier(keySet)

	roster := trust.DefaultRoster()
	loader := manifest.NewLoader(cfg.PluginsDir, roster, logger)

	auditLog := audit.NewLog(cfg.AuditLogCapacity)
	registry := sandboxregistry.New()
	broadcaster := transport.New(logger)

	limits, err := effectiveLimits(cfg)
	if err != nil {
		return fmt.Errorf("parsing limits: %w", err)
	}

	var mgr *manager.Manager
	var surface *ops.Surface

	watcher, err := hotreload.New(
		reloaderFunc(func(ctx context.Context, id string) error { return mgr.Reload(ctx, id) }),
		dispatcherFunc(func(path, kind string) { surface.DispatchFileEvent(path, kind) }),
		logger,
	)
	if err != nil {
		return fmt.Errorf("starting hot-reload watcher: %w", err)
	}
	defer watcher.Close()

	mgr = manager.New(manager.Config{
		Loader:    loader,
		Verifier:  verifier,
		Registry:  registry,
		Transport: broadcaster,
		Logger:    logger,
		Limits:    limits,
		WorkerFactory: func(id string) *worker.Worker {
			return worker.New(id, ops.Builtins(surface), logger)
		},
	})

	surface = ops.New(ops.Config{
		WorkspaceRoot: cfg.WorkspaceRoot,
		Capabilities:  mgr.Capabilities,
		Audit:         auditLog,
		Transport:     broadcaster,
		Watcher:       watcher,
		Events:        mgr,
		Hooks:         mgr,
		Confirm:       sandbox.DenyConfirm,
		Logger:        logger,
	})

	if err := mgr.Discover(); err != nil {
		return fmt.Errorf("discovering plugins: %w", err)
	}
	for _, id := range mgr.Plugins() {
		if dir := loader.PluginDir(id); dir != "" {
			if err := watcher.WatchPlugin(id, dir); err != nil {
				logger.Warn("watch plugin dir failed", zap.String("plugin_id", id), zap.Error(err))
			}
		}
	}

	addr := ListenAddr
	if v := os.Getenv("SANDBOXCORE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	mux := http.NewServeMux()
	mux.Handle("/", broadcaster)

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func effectiveLimits(cfg *config.Config) (sandbox.ResourceLimits, error) {
	limits := sandbox.DefaultResourceLimits()
	if cfg.Limits.Timeout != "" {
		d, err := time.ParseDuration(cfg.Limits.Timeout)
		if err != nil {
			return limits, fmt.Errorf("invalid limits.timeout %q: %w", cfg.Limits.Timeout, err)
		}
		limits.Timeout = d
	}
	if cfg.Limits.RateLimitPerSecond > 0 {
		limits.MaxOperations = uint64(cfg.Limits.RateLimitPerSecond)
	}
	if cfg.Limits.MemoryCapMB > 0 {
		limits.MaxMemory = uint64(cfg.Limits.MemoryCapMB) * 1024 * 1024
	}
	return limits, nil
}

type reloaderFunc func(ctx context.Context, id string) error

func (f reloaderFunc) Reload(ctx context.Context, id string) error { return f(ctx, id) }

type dispatcherFunc func(path, kind string)

func (f dispatcherFunc) DispatchFileEvent(path, kind string) { f(path, kind) }
