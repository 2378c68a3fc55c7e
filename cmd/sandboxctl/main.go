// Command sandboxctl is the operator CLI for the plugin sandbox core:
// it lists discovered plugins, drives their lifecycle, inspects the
// audit log, and manages the trusted signing key store. It operates
// in-process against the configured plugins directory; pointing it at
// a running sandboxd over the network is left for a future transport.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/cli"
	"github.com/skretchpad/plugin-sandbox/internal/config"
	"github.com/skretchpad/plugin-sandbox/internal/manager"
	"github.com/skretchpad/plugin-sandbox/internal/manifest"
	"github.com/skretchpad/plugin-sandbox/internal/ops"
	"github.com/skretchpad/plugin-sandbox/internal/sandbox"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxregistry"
	"github.com/skretchpad/plugin-sandbox/internal/trust"
	"github.com/skretchpad/plugin-sandbox/internal/worker"
)

func main() {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config error: %v\n", err)
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnvOverrides()

	logger := zap.NewNop()

	keySet, _, err := trust.LoadKeySetFile(cfg.TrustedKeysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading trusted keys: %v\n", err)
		os.Exit(1)
	}

	roster := trust.DefaultRoster()
	loader := manifest.NewLoader(cfg.PluginsDir, roster, logger)
	auditLog := audit.NewLog(cfg.AuditLogCapacity)

	var mgr *manager.Manager
	var surface *ops.Surface

	mgr = manager.New(manager.Config{
		Loader:   loader,
		Verifier: trust.NewVerifier(keySet),
		Registry: sandboxregistry.New(),
		Logger:   logger,
		Limits:   sandbox.DefaultResourceLimits(),
		WorkerFactory: func(id string) *worker.Worker {
			return worker.New(id, ops.Builtins(surface), logger)
		},
	})

	surface = ops.New(ops.Config{
		WorkspaceRoot: cfg.WorkspaceRoot,
		Capabilities:  mgr.Capabilities,
		Audit:         auditLog,
		Events:        mgr,
		Hooks:         mgr,
		Confirm:       sandbox.DenyConfirm,
		Logger:        logger,
	})

	deps := &cli.Deps{
		Manager:  mgr,
		AuditLog: auditLog,
		Config:   cfg,
		KeysPath: cfg.TrustedKeysPath,
	}

	root := cli.NewRootCommand(deps)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
