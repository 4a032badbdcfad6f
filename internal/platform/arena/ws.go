package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// EventHandler is called for every decoded activity event, together with the
// raw frame it was decoded from so downstreams can re-publish verbatim.
type EventHandler func(domain.ActivityEvent, []byte)

// FatalHandler is called once when the server rejects the connection with a
// non-retryable close code. The client stops reconnecting after that.
type FatalHandler func(error)

// FeedClient is the WebSocket client for the arena's push activity channel.
// The channel is advisory: frames nudge the reconciler into early re-polls
// and populate the activity feed, they never mutate authoritative state.
// Retryable disconnects reconnect with exponential backoff; close codes 1008
// and 1011 are treated as a server verdict and end the session for good.
type FeedClient struct {
	wsURL     string
	authToken string

	// pingEvery and retryDelay default to pingPeriod and reconnectDelay.
	// Tests shorten them.
	pingEvery  time.Duration
	retryDelay time.Duration

	conn *websocket.Conn

	mu     sync.RWMutex
	closed bool
	fatal  bool

	eventHandlers []EventHandler
	fatalHandlers []FatalHandler
	handlerMu     sync.RWMutex

	dropped atomic.Uint64

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewFeedClient creates a new push-channel client.
//
// wsURL is the activity endpoint, e.g. "wss://api.clash.example.com/ws".
// authToken is optional; when set it is presented in a hello frame after
// every (re)connect.
func NewFeedClient(wsURL, authToken string) *FeedClient {
	return &FeedClient{
		wsURL:      wsURL,
		authToken:  authToken,
		pingEvery:  pingPeriod,
		retryDelay: reconnectDelay,
		done:       make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (f *FeedClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.fatal {
		return fmt.Errorf("arena/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("arena/ws: connect: %w", err)
	}

	f.conn = conn

	// Set up pong handler for keep-alive.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if f.authToken != "" {
		if err := f.sendHello(); err != nil {
			conn.Close()
			f.conn = nil
			return fmt.Errorf("arena/ws: hello: %w", err)
		}
	}

	// Each loop owns exactly the connection this Connect produced. After a
	// reconnect the stale loops must not touch the replacement.
	go f.readLoop(conn)
	go f.pingLoop(conn)

	return nil
}

// Close shuts down the WebSocket connection and stops the read loop.
func (f *FeedClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}

	return nil
}

// OnEvent registers a handler called for every decoded activity event.
func (f *FeedClient) OnEvent(handler EventHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.eventHandlers = append(f.eventHandlers, handler)
}

// OnFatal registers a handler called when the server refuses the session
// with a non-retryable close code.
func (f *FeedClient) OnFatal(handler FatalHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.fatalHandlers = append(f.fatalHandlers, handler)
}

// DroppedFrames reports how many frames failed to decode and were discarded.
func (f *FeedClient) DroppedFrames() uint64 {
	return f.dropped.Load()
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendHello presents the auth token. Caller must hold f.mu.
func (f *FeedClient) sendHello() error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}{"hello", f.authToken})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}

	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads frames from conn and dispatches decoded
// events. It runs in its own goroutine and closes only the connection it was
// started with, so a reconnect is never torn down by the loop it replaces.
// On retryable disconnect it reconnects with exponential backoff; on a
// non-retryable close code it fires the fatal handlers and stops.
func (f *FeedClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}

			if isRejection(err) {
				f.mu.Lock()
				f.fatal = true
				f.mu.Unlock()

				ferr := fmt.Errorf("arena/ws: %w: %v", domain.ErrFeedRejected, err)
				f.handlerMu.RLock()
				handlers := f.fatalHandlers
				f.handlerMu.RUnlock()
				for _, h := range handlers {
					h(ferr)
				}
				return
			}

			f.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		f.handleFrame(message)
	}
}

// pingLoop sends periodic ping messages to keep conn alive. It exits once
// conn is no longer the client's current connection, so reconnects do not
// accumulate keepalive goroutines.
func (f *FeedClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.RLock()
			current := f.conn
			f.mu.RUnlock()

			if current != conn {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one frame and fans it out. Undecodable frames are
// counted and dropped; one bad frame never takes the session down.
func (f *FeedClient) handleFrame(raw []byte) {
	ev, err := ParseActivityEvent(raw)
	if err != nil {
		f.dropped.Add(1)
		return
	}

	f.handlerMu.RLock()
	handlers := f.eventHandlers
	f.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ev, raw)
	}
}

// isRejection reports whether the read error is a server-side refusal that
// must not be retried.
func isRejection(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.ClosePolicyViolation || ce.Code == websocket.CloseInternalServerErr
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (f *FeedClient) reconnect() {
	delay := f.retryDelay

	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()

		if err == nil || errors.Is(err, domain.ErrWSDisconnect) {
			return
		}

		// Exponential backoff.
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
