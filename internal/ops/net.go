package ops

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// Fetch implements net.fetch.
func (s *Surface) Fetch(ctx context.Context, pluginID, rawURL string) ([]byte, error) {
	const op = "net.fetch"
	caps, err := s.lookup(pluginID)
	if err != nil {
		return nil, err
	}
	if caps.Network.Mode == capability.NetworkNone {
		permErr := &sandboxerr.PermissionDenied{Operation: op, Capability: "network"}
		s.audit(pluginID, op, rawURL, false, permErr)
		return nil, permErr
	}

	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil || parsed.Hostname() == "" {
		netErr := &sandboxerr.NetworkError{Msg: "invalid or hostless URL: " + rawURL}
		s.audit(pluginID, op, rawURL, false, netErr)
		return nil, netErr
	}
	host := parsed.Hostname()

	if !caps.NetworkCanAccess(host) {
		domainErr := &sandboxerr.DomainNotAllowed{Domain: host}
		s.audit(pluginID, op, rawURL, false, domainErr)
		return nil, domainErr
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if reqErr != nil {
		netErr := &sandboxerr.NetworkError{Msg: reqErr.Error()}
		s.audit(pluginID, op, rawURL, false, netErr)
		return nil, netErr
	}

	resp, doErr := s.httpClient.Do(req)
	if doErr != nil {
		netErr := &sandboxerr.NetworkError{Msg: doErr.Error()}
		s.audit(pluginID, op, rawURL, false, netErr)
		return nil, netErr
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		netErr := &sandboxerr.NetworkError{Msg: readErr.Error()}
		s.audit(pluginID, op, rawURL, false, netErr)
		return nil, netErr
	}

	s.audit(pluginID, op, rawURL, true, nil)
	return body, nil
}
