package ops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

func TestFetchNoNetworkCapabilityDenied(t *testing.T) {
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return capability.None(), true },
		Audit:        audit.NewLog(10),
	})
	_, err := s.Fetch(context.Background(), "p1", "https://example.com")
	var permErr *sandboxerr.PermissionDenied
	assert.ErrorAs(t, err, &permErr)
}

func TestFetchDomainNotAllowed(t *testing.T) {
	caps := capability.None()
	caps.Network = capability.Network{Mode: capability.NetworkDomainAllowlist, Domains: map[string]struct{}{"a.example": {}}}

	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	_, err := s.Fetch(context.Background(), "p1", "https://b.example/path")
	var domainErr *sandboxerr.DomainNotAllowed
	assert.ErrorAs(t, err, &domainErr)
}

func TestFetchAllowedDomainSucceeds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	caps := capability.None()
	caps.Network = capability.Network{Mode: capability.NetworkUnrestricted}

	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	body, err := s.Fetch(context.Background(), "p1", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestFetchInvalidURL(t *testing.T) {
	caps := capability.None()
	caps.Network = capability.Network{Mode: capability.NetworkUnrestricted}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return caps, true },
		Audit:        audit.NewLog(10),
	})
	_, err := s.Fetch(context.Background(), "p1", "not-a-url-at-all")
	var netErr *sandboxerr.NetworkError
	assert.ErrorAs(t, err, &netErr)
}
