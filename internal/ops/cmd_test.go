package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

func TestExecCommandNotAllowlisted(t *testing.T) {
	caps := capability.None()
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	_, err := s.Exec(context.Background(), "p1", "echo", []string{"hi"})
	var notAllowed *sandboxerr.CommandNotAllowed
	assert.ErrorAs(t, err, &notAllowed)
}

func TestExecAllowlistedNoConfirmationRequired(t *testing.T) {
	caps := capability.None()
	caps.Commands = capability.Commands{
		Allowlist:           map[string]struct{}{"echo": {}},
		RequireConfirmation: false,
	}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	out, err := s.Exec(context.Background(), "p1", "echo", []string{"hi"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "hi")
}

func TestExecRequiresConfirmationDeniedByDefault(t *testing.T) {
	caps := capability.None()
	caps.Commands = capability.Commands{
		Allowlist:           map[string]struct{}{"echo": {}},
		RequireConfirmation: true,
	}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	_, err := s.Exec(context.Background(), "p1", "echo", []string{"hi"})
	var permErr *sandboxerr.PermissionDenied
	assert.ErrorAs(t, err, &permErr)
}

func TestExecConfirmationGrantedAllowsRun(t *testing.T) {
	caps := capability.None()
	caps.Commands = capability.Commands{
		Allowlist:           map[string]struct{}{"echo": {}},
		RequireConfirmation: true,
	}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
		Confirm:      func(context.Context, string, string) bool { return true },
	})
	out, err := s.Exec(context.Background(), "p1", "echo", []string{"hi"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "hi")
}

func TestExecSanitizesArguments(t *testing.T) {
	caps := capability.None()
	caps.Commands = capability.Commands{Allowlist: map[string]struct{}{"echo": {}}}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	out, err := s.Exec(context.Background(), "p1", "echo", []string{"a;rm -rf /"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), ";")
}
