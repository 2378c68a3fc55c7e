package ops

import (
	"context"
	"os/exec"
	"time"

	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// CommandTimeout bounds a single cmd.exec invocation.
const CommandTimeout = 5 * time.Second

// Exec implements cmd.exec: sanitizes arguments, checks the command
// allowlist, optionally requires host confirmation, then runs the
// command and returns its combined output.
func (s *Surface) Exec(ctx context.Context, pluginID, command string, args []string) ([]byte, error) {
	const op = "cmd.exec"
	caps, err := s.lookup(pluginID)
	if err != nil {
		return nil, err
	}

	clean := sanitizeArgs(args)

	if !caps.CommandsCanExecute(command) {
		permErr := &sandboxerr.CommandNotAllowed{Command: command}
		s.audit(pluginID, op, command, false, permErr)
		return nil, permErr
	}

	if caps.Commands.RequireConfirmation {
		if !s.confirm(ctx, pluginID, command) {
			permErr := &sandboxerr.PermissionDenied{Operation: op, Capability: "commands"}
			s.audit(pluginID, op, command, false, permErr)
			return nil, permErr
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	out, runErr := exec.CommandContext(execCtx, command, clean...).CombinedOutput()
	if runErr != nil {
		wrapped := &sandboxerr.ExecutionError{Msg: runErr.Error()}
		s.audit(pluginID, op, command, false, wrapped)
		return out, wrapped
	}

	s.audit(pluginID, op, command, true, nil)
	return out, nil
}
