package arena

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer accepts WebSocket sessions, drops the first one immediately, and
// holds every later one open until the peer goes away. It counts sessions and
// pings so tests can observe the client's reconnect behavior from the outside.
type feedServer struct {
	srv   *httptest.Server
	conns atomic.Int32
	pings atomic.Int32
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()

	fs := &feedServer{}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		if fs.conns.Add(1) == 1 {
			c.Close()
			return
		}

		defer c.Close()
		c.SetPingHandler(func(string) error {
			fs.pings.Add(1)
			return nil
		})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return fs
}

func (fs *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func TestFeedClientReconnectSurvivesDrop(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.srv.Close()

	client := NewFeedClient(fs.wsURL(), "")
	client.retryDelay = 20 * time.Millisecond
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	require.Eventually(t, func() bool {
		return fs.conns.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// The replacement session must stay up. The loop that died with the
	// first connection owns only that one and cannot tear down its
	// successor, so the count settles at exactly two.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(2), fs.conns.Load())
}

func TestFeedClientKeepaliveFollowsReconnect(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.srv.Close()

	client := NewFeedClient(fs.wsURL(), "")
	client.retryDelay = 10 * time.Millisecond
	client.pingEvery = 25 * time.Millisecond
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	require.Eventually(t, func() bool {
		return fs.conns.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// Only the keepalive loop belonging to the live connection may ping it.
	// A leaked loop from the dropped session would roughly double the rate.
	fs.pings.Store(0)
	time.Sleep(500 * time.Millisecond)

	got := fs.pings.Load()
	assert.GreaterOrEqual(t, got, int32(8))
	assert.LessOrEqual(t, got, int32(30))
}
