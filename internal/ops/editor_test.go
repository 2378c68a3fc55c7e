package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/capability"
)

type respondingTransport struct {
	response map[string]interface{}
}

func (r *respondingTransport) Emit(event string, payload map[string]interface{}) {}

func (r *respondingTransport) Await(ctx context.Context, responseEvent string) (map[string]interface{}, error) {
	if !strings.Contains(responseEvent, "editor:get_content:response:") {
		return nil, context.DeadlineExceeded
	}
	return r.response, nil
}

func TestGetContentRoundTrip(t *testing.T) {
	transport := &respondingTransport{response: map[string]interface{}{"content": "hello world"}}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return capability.None(), true },
		Audit:        audit.NewLog(10),
		Transport:    transport,
	})

	content, err := s.GetContent(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", content)
}

func TestGetContentFailsWithoutTransport(t *testing.T) {
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return capability.None(), true },
		Audit:        audit.NewLog(10),
	})
	_, err := s.GetContent(context.Background(), "p1")
	assert.Error(t, err)
}
