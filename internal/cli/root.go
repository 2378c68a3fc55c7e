// Package cli implements the command-line interface for sandboxctl, the
// operator tool for inspecting and controlling the plugin sandbox core:
// listing and reloading plugins, inspecting the audit log, and managing
// trusted signing keys.
package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/config"
	"github.com/skretchpad/plugin-sandbox/internal/manager"
	"github.com/skretchpad/plugin-sandbox/internal/output"
	"github.com/skretchpad/plugin-sandbox/internal/trust"
)

// Deps bundles the live components sandboxctl's subcommands operate
// against. cmd/sandboxctl builds one by constructing its own in-process
// Manager against the configured plugins directory; it does not attach
// to a running sandboxd.
type Deps struct {
	Manager  *manager.Manager
	AuditLog *audit.Log
	Config   *config.Config
	KeysPath string
}

// NewRootCommand creates the top-level sandboxctl command.
func NewRootCommand(deps *Deps) *cobra.Command {
	var outputFormat string

	root := &cobra.Command{
		Use:   "sandboxctl",
		Short: "Inspect and control the plugin trust and sandbox core",
		Long: `sandboxctl is the operator CLI for the plugin sandbox core: it lists
discovered plugins and their lifecycle state, drives activate/deactivate/
reload, inspects the bounded audit log, and manages the trusted signing
key store used to verify "verified"-tier plugins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&outputFormat, "output", deps.Config.Output, "Output format: table, json, yaml, quiet")

	root.AddCommand(newVersionCommand())
	root.AddCommand(newPluginCommand(deps, &outputFormat))
	root.AddCommand(newAuditCommand(deps, &outputFormat))
	root.AddCommand(newKeysCommand(deps, &outputFormat))

	return root
}

func render(outputFormat string, records []output.Record, columns []string) error {
	f, err := output.NewFormatter(outputFormat)
	if err != nil {
		return err
	}
	return f.Format(os.Stdout, records, columns)
}

// newPluginCommand builds "sandboxctl plugin {list,activate,deactivate,reload,unload}".
func newPluginCommand(deps *Deps, outputFormat *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Inspect and control plugin lifecycle",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Manager.Discover(); err != nil {
				return fmt.Errorf("discovering plugins: %w", err)
			}
			return render(*outputFormat, pluginRecords(deps), []string{"plugin_id", "state"})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <plugin-id>",
		Short: "Activate a loaded plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return deps.Manager.Activate(ctx, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate <plugin-id>",
		Short: "Deactivate an active plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return deps.Manager.Deactivate(ctx, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reload <plugin-id>",
		Short: "Reload a plugin's manifest and script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return deps.Manager.Reload(ctx, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unload <plugin-id>",
		Short: "Deactivate (if needed) and forget a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return deps.Manager.Unload(ctx, args[0])
		},
	})

	return cmd
}

func pluginRecords(deps *Deps) []output.Record {
	ids := deps.Manager.Plugins()
	sort.Strings(ids)
	records := make([]output.Record, 0, len(ids))
	for _, id := range ids {
		state, _ := deps.Manager.State(id)
		records = append(records, output.Record{
			"plugin_id": id,
			"state":     state.String(),
		})
	}
	return records
}

// newAuditCommand builds "sandboxctl audit {list,clear}".
func newAuditCommand(deps *Deps, outputFormat *string) *cobra.Command {
	var pluginID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the bounded audit log",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded audit events, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var events []audit.Event
			if pluginID != "" {
				events = deps.AuditLog.ForPlugin(pluginID)
			} else {
				events = deps.AuditLog.All()
			}
			records := make([]output.Record, len(events))
			for i, ev := range events {
				records[i] = output.Record{
					"id":        ev.ID,
					"timestamp": ev.Timestamp.Format(time.RFC3339),
					"plugin_id": ev.PluginID,
					"operation": ev.Operation,
					"detail":    ev.Detail,
					"allowed":   ev.Allowed,
					"error":     ev.Err,
				}
			}
			return render(*outputFormat, records, []string{"timestamp", "plugin_id", "operation", "detail", "allowed", "error"})
		},
	}
	list.Flags().StringVar(&pluginID, "plugin", "", "Filter to a single plugin id")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard every retained audit event",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps.AuditLog.Clear()
			return nil
		},
	})

	return cmd
}

// newKeysCommand builds "sandboxctl keys {list,add,remove}".
func newKeysCommand(deps *Deps, outputFormat *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the trusted signing key store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trusted signing keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, raw, err := trust.LoadKeySetFile(deps.KeysPath)
			if err != nil {
				return err
			}
			records := make([]output.Record, len(raw))
			for i, k := range raw {
				records[i] = output.Record{"public_key": k}
			}
			return render(*outputFormat, records, []string{"public_key"})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <public-key>",
		Short: "Trust an additional signing key (hex or base64)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, raw, err := trust.LoadKeySetFile(deps.KeysPath)
			if err != nil {
				return err
			}
			for _, existing := range raw {
				if existing == args[0] {
					return nil
				}
			}
			raw = append(raw, args[0])
			if err := trust.NewKeySet().SetTrustedKeys(raw); err != nil {
				return fmt.Errorf("key not added, invalid: %w", err)
			}
			return trust.SaveKeySetFile(deps.KeysPath, raw)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <public-key>",
		Short: "Stop trusting a signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, raw, err := trust.LoadKeySetFile(deps.KeysPath)
			if err != nil {
				return err
			}
			kept := raw[:0]
			for _, existing := range raw {
				if existing != args[0] {
					kept = append(kept, existing)
				}
			}
			return trust.SaveKeySetFile(deps.KeysPath, kept)
		},
	})

	return cmd
}
