package ops

import "github.com/skretchpad/plugin-sandbox/internal/sandboxerr"

func (s *Surface) uiOp(pluginID, op, uiFlag, lifecycleEvent string, payload map[string]interface{}) error {
	caps, err := s.lookup(pluginID)
	if err != nil {
		return err
	}
	if !caps.UIAllows(uiFlag) {
		permErr := &sandboxerr.PermissionDenied{Operation: op, Capability: "ui." + uiFlag}
		s.audit(pluginID, op, uiFlag, false, permErr)
		return permErr
	}
	payload["plugin_id"] = pluginID
	s.emitLifecycle(lifecycleEvent, payload)
	s.audit(pluginID, op, uiFlag, true, nil)
	return nil
}

// Notify implements ui.notify.
func (s *Surface) Notify(pluginID, message string) error {
	return s.uiOp(pluginID, "ui.notify", "notifications", "plugin:notification",
		map[string]interface{}{"message": message})
}

// StatusBarAdd implements ui.status_bar.add.
func (s *Surface) StatusBarAdd(pluginID, itemID, text string) error {
	return s.uiOp(pluginID, "ui.status_bar.add", "status_bar", "plugin:status_bar:add",
		map[string]interface{}{"item_id": itemID, "text": text})
}

// StatusBarRemove implements ui.status_bar.remove.
func (s *Surface) StatusBarRemove(pluginID, itemID string) error {
	return s.uiOp(pluginID, "ui.status_bar.remove", "status_bar", "plugin:status_bar:remove",
		map[string]interface{}{"item_id": itemID})
}

// PanelShow implements ui.panel.show.
func (s *Surface) PanelShow(pluginID, panelID string) error {
	return s.uiOp(pluginID, "ui.panel.show", "sidebar", "plugin:panel:show",
		map[string]interface{}{"panel_id": panelID})
}

// PanelHide implements ui.panel.hide.
func (s *Surface) PanelHide(pluginID, panelID string) error {
	return s.uiOp(pluginID, "ui.panel.hide", "sidebar", "plugin:panel:hide",
		map[string]interface{}{"panel_id": panelID})
}
