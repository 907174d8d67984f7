package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newRelayServer(t *testing.T) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var mu sync.Mutex
	calls := []recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&call.Body)
		}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/channels":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"channel_ref":"chan-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/channels/gone":
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/roles/grants":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRelayOutboundCalls(t *testing.T) {
	srv, calls := newRelayServer(t)
	tokens := func() (string, error) { return "tok", nil }
	relay := NewRelay(srv.URL, time.Second, tokens, NewMailbox(2), zap.NewNop())
	ctx := context.Background()

	ref, err := relay.CreateChannel(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", ref)

	exists, err := relay.ChannelExists(ctx, "chan-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = relay.ChannelExists(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, relay.SendPrompt(ctx, "chan-1", Prompt{Content: "hi", Options: []string{"USD"}}))
	assert.Error(t, relay.GrantRole(ctx, "user-1"))

	require.Len(t, *calls, 5)
	first := (*calls)[0]
	assert.Equal(t, "Bearer tok", first.Auth)
	assert.Equal(t, "user-1", first.Body["user_id"])
	prompt := (*calls)[3]
	assert.Equal(t, "/channels/chan-1/prompts", prompt.Path)
	assert.Equal(t, "hi", prompt.Body["content"])
}

func TestRelayDeliverFeedsAwait(t *testing.T) {
	relay := NewRelay("http://unused", time.Second, nil, NewMailbox(2), zap.NewNop())
	require.NoError(t, relay.Deliver("chan-1", Message{ID: "m1", Content: "usd"}))

	msg, err := relay.AwaitNextMessage(context.Background(), "chan-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "usd", msg.Content)
}
