package ops

import (
	"context"

	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// editorQuery emits a request event to the UI transport and awaits the
// matching response, bounded by EditorRequestTimeout.
func (s *Surface) editorQuery(ctx context.Context, pluginID, op, requestEvent string, payload map[string]interface{}) (map[string]interface{}, error) {
	if s.transport == nil {
		err := &sandboxerr.InternalError{Msg: "no transport configured"}
		s.audit(pluginID, op, requestEvent, false, err)
		return nil, err
	}

	reqID := newRequestID()
	payload["plugin_id"] = pluginID
	payload["request_id"] = reqID
	s.emitLifecycle(requestEvent, payload)

	queryCtx, cancel := context.WithTimeout(ctx, EditorRequestTimeout)
	defer cancel()

	resp, err := s.transport.Await(queryCtx, requestEvent+":response:"+reqID)
	if err != nil {
		wrapped := &sandboxerr.InternalError{Msg: "editor query timed out: " + err.Error()}
		s.audit(pluginID, op, requestEvent, false, wrapped)
		return nil, wrapped
	}

	s.audit(pluginID, op, requestEvent, true, nil)
	return resp, nil
}

// GetContent implements editor.get_content.
func (s *Surface) GetContent(ctx context.Context, pluginID string) (string, error) {
	resp, err := s.editorQuery(ctx, pluginID, "editor.get_content", "editor:get_content",
		map[string]interface{}{})
	if err != nil {
		return "", err
	}
	content, _ := resp["content"].(string)
	return content, nil
}

// SetContent implements editor.set_content.
func (s *Surface) SetContent(ctx context.Context, pluginID, content string) error {
	_, err := s.editorQuery(ctx, pluginID, "editor.set_content", "editor:set_content",
		map[string]interface{}{"content": content})
	return err
}

// GetActiveFile implements editor.get_active_file.
func (s *Surface) GetActiveFile(ctx context.Context, pluginID string) (string, error) {
	resp, err := s.editorQuery(ctx, pluginID, "editor.get_active_file", "editor:get_active_file",
		map[string]interface{}{})
	if err != nil {
		return "", err
	}
	path, _ := resp["path"].(string)
	return path, nil
}
