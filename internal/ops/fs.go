package ops

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// canonicalize resolves path to its absolute, symlink-evaluated form.
// Every existing-path argument must pass through this before a
// capability check.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &sandboxerr.InvalidPath{Path: path, Err: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &sandboxerr.InvalidPath{Path: path, Err: err}
	}
	return resolved, nil
}

// canonicalizeForWrite handles the new-file case from §4.4.2: the
// parent directory is canonicalized and required to exist, and the
// filename is rejoined uninterpreted so the check cannot be bypassed by
// a not-yet-existing symlink at the leaf.
func canonicalizeForWrite(path string) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", &sandboxerr.InvalidPath{Path: path, Err: err}
	}
	if _, err := os.Stat(absDir); err != nil {
		return "", &sandboxerr.InvalidPath{Path: path, Err: err}
	}
	resolvedDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", &sandboxerr.InvalidPath{Path: path, Err: err}
	}
	return filepath.Join(resolvedDir, base), nil
}

// Read implements fs.read.
func (s *Surface) Read(pluginID, path string) ([]byte, error) {
	const op = "fs.read"
	caps, err := s.lookup(pluginID)
	if err != nil {
		return nil, err
	}

	canon, err := canonicalize(path)
	if err != nil {
		s.audit(pluginID, op, path, false, err)
		return nil, err
	}

	if !caps.HasReadCapability() {
		err := &sandboxerr.PermissionDenied{Operation: op, Capability: "filesystem"}
		s.audit(pluginID, op, canon, false, err)
		return nil, err
	}
	if !caps.CanRead(canon, s.WorkspaceRoot) {
		err := &sandboxerr.PathNotAllowed{Path: canon}
		s.audit(pluginID, op, canon, false, err)
		return nil, err
	}

	data, readErr := os.ReadFile(canon)
	if readErr != nil {
		wrapped := &sandboxerr.InternalError{Msg: readErr.Error()}
		s.audit(pluginID, op, canon, false, wrapped)
		return nil, wrapped
	}

	s.audit(pluginID, op, canon, true, nil)
	return data, nil
}

// Write implements fs.write.
func (s *Surface) Write(pluginID, path string, data []byte) error {
	const op = "fs.write"
	caps, err := s.lookup(pluginID)
	if err != nil {
		return err
	}

	canon, err := canonicalizeForWrite(path)
	if err != nil {
		s.audit(pluginID, op, path, false, err)
		return err
	}

	if !caps.HasWriteCapability() {
		permErr := &sandboxerr.PermissionDenied{Operation: op, Capability: "filesystem"}
		s.audit(pluginID, op, canon, false, permErr)
		return permErr
	}
	if !caps.CanWrite(canon, s.WorkspaceRoot) {
		pathErr := &sandboxerr.PathNotAllowed{Path: canon}
		s.audit(pluginID, op, canon, false, pathErr)
		return pathErr
	}

	if writeErr := os.WriteFile(canon, data, 0o644); writeErr != nil {
		wrapped := &sandboxerr.InternalError{Msg: writeErr.Error()}
		s.audit(pluginID, op, canon, false, wrapped)
		return wrapped
	}

	s.audit(pluginID, op, canon, true, nil)
	return nil
}

// List implements fs.list.
func (s *Surface) List(pluginID, path string) ([]string, error) {
	const op = "fs.list"
	caps, err := s.lookup(pluginID)
	if err != nil {
		return nil, err
	}

	canon, err := canonicalize(path)
	if err != nil {
		s.audit(pluginID, op, path, false, err)
		return nil, err
	}

	if !caps.HasReadCapability() {
		permErr := &sandboxerr.PermissionDenied{Operation: op, Capability: "filesystem"}
		s.audit(pluginID, op, canon, false, permErr)
		return nil, permErr
	}
	if !caps.CanRead(canon, s.WorkspaceRoot) {
		pathErr := &sandboxerr.PathNotAllowed{Path: canon}
		s.audit(pluginID, op, canon, false, pathErr)
		return nil, pathErr
	}

	entries, readErr := os.ReadDir(canon)
	if readErr != nil {
		wrapped := &sandboxerr.InternalError{Msg: readErr.Error()}
		s.audit(pluginID, op, canon, false, wrapped)
		return nil, wrapped
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	s.audit(pluginID, op, canon, true, nil)
	return names, nil
}

// Watch implements fs.watch, returning an opaque watch id and the
// channel raw filesystem events for path are relayed on.
func (s *Surface) Watch(pluginID, path string) (string, <-chan FileEvent, error) {
	const op = "fs.watch"
	caps, err := s.lookup(pluginID)
	if err != nil {
		return "", nil, err
	}

	canon, err := canonicalize(path)
	if err != nil {
		s.audit(pluginID, op, path, false, err)
		return "", nil, err
	}

	if !caps.HasReadCapability() {
		permErr := &sandboxerr.PermissionDenied{Operation: op, Capability: "filesystem"}
		s.audit(pluginID, op, canon, false, permErr)
		return "", nil, permErr
	}
	if !caps.CanRead(canon, s.WorkspaceRoot) {
		pathErr := &sandboxerr.PathNotAllowed{Path: canon}
		s.audit(pluginID, op, canon, false, pathErr)
		return "", nil, pathErr
	}

	if s.watcher != nil {
		if err := s.watcher.AddWatch(canon); err != nil {
			s.audit(pluginID, op, canon, false, err)
			return "", nil, err
		}
	}

	id := uuid.NewString()
	ch := s.watches.add(id, pluginID, canon)
	s.audit(pluginID, op, canon, true, nil)
	return id, ch, nil
}

// Unwatch implements fs.unwatch.
func (s *Surface) Unwatch(pluginID, watchID string) error {
	const op = "fs.unwatch"
	entry, ok := s.watches.remove(watchID, pluginID)
	if !ok {
		err := &sandboxerr.InternalError{Msg: "unknown watch id: " + watchID}
		s.audit(pluginID, op, watchID, false, err)
		return err
	}

	if s.watcher != nil && !s.watches.pathStillWatched(entry.path) {
		if err := s.watcher.RemoveWatch(entry.path); err != nil {
			s.logger.Sugar().Debugw("remove watch failed", "path", entry.path, "err", err)
		}
	}

	s.audit(pluginID, op, entry.path, true, nil)
	return nil
}

// DispatchFileEvent relays a raw filesystem event (from the shared
// watcher the Hot-Reload Watcher owns) to every plugin watching a
// covering path.
func (s *Surface) DispatchFileEvent(changedPath, kind string) {
	s.watches.dispatch(changedPath, kind)
}
