package polymarket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait         = 10 * time.Second
	wsHandshakeTimeout  = 15 * time.Second
	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// TradeHandler receives one parsed trade event per call. It must not
// block: callers run it from the connection's receive loop and a slow
// handler would stall the keepalive and starve the connection.
type TradeHandler func(TradeEvent)

// TradeStream is a pool of WebSocket connections subscribed to the trade
// feed for a fixed set of tokens, partitioned into chunks of at most
// maxPerConn tokens per connection (the venue's per-socket subscription
// limit). Each connection is independently self-reconnecting.
type TradeStream struct {
	conns  []*wsConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenTradeStream partitions tokenIDs into chunks of at most maxPerConn and
// opens one connection per chunk, each subscribing to the "last_trade_price"
// channel and delivering parsed trades to onTrade. It returns immediately;
// connections are established and maintained in the background until Stop
// is called or ctx is cancelled.
func OpenTradeStream(ctx context.Context, wsURL string, tokenIDs []string, maxPerConn int, pingInterval time.Duration, onTrade TradeHandler) *TradeStream {
	streamCtx, cancel := context.WithCancel(ctx)
	chunks := chunkStrings(tokenIDs, maxPerConn)

	s := &TradeStream{cancel: cancel}
	for _, chunk := range chunks {
		c := newWSConn(wsURL, chunk, pingInterval, onTrade)
		s.conns = append(s.conns, c)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.run(streamCtx)
		}()
	}
	return s
}

// Stop cancels every connection and the keepalive goroutines and waits for
// them to unwind.
func (s *TradeStream) Stop() {
	s.cancel()
	s.wg.Wait()
}

// ConnectionsActive reports how many of the stream's connections currently
// hold an established socket.
func (s *TradeStream) ConnectionsActive() int {
	n := 0
	for _, c := range s.conns {
		if c.connected.Load() {
			n++
		}
	}
	return n
}

// Reconnections reports the total reconnect count summed across every
// connection in the stream, for the trade listener's health snapshot.
func (s *TradeStream) Reconnections() int64 {
	var total int64
	for _, c := range s.conns {
		total += c.reconnects.Load()
	}
	return total
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 {
		size = len(in)
	}
	var out [][]string
	for start := 0; start < len(in); start += size {
		end := start + size
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[start:end])
	}
	return out
}

// wsConn is a single self-reconnecting WebSocket connection subscribed to
// the trade feed for one chunk of tokens.
type wsConn struct {
	wsURL        string
	tokenIDs     []string
	pingInterval time.Duration
	onTrade      TradeHandler

	mu   sync.Mutex
	conn *websocket.Conn

	connected  atomic.Bool
	reconnects atomic.Int64
}

func newWSConn(wsURL string, tokenIDs []string, pingInterval time.Duration, onTrade TradeHandler) *wsConn {
	return &wsConn{
		wsURL:        wsURL,
		tokenIDs:     tokenIDs,
		pingInterval: pingInterval,
		onTrade:      onTrade,
	}
}

// run connects, reads, and keeps the connection alive until ctx is done,
// reconnecting at once after every drop; exponential backoff applies only
// between failed connection attempts.
func (c *wsConn) run(ctx context.Context) {
	delay := wsReconnectDelay
	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connectAndSubscribe(ctx); err != nil {
			c.connected.Store(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > wsMaxReconnectDelay {
				delay = wsMaxReconnectDelay
			}
			continue
		}

		delay = wsReconnectDelay
		c.connected.Store(true)
		if first {
			first = false
		} else {
			c.reconnects.Add(1)
		}

		c.runConnection(ctx) // blocks until the connection drops or ctx is done
		c.connected.Store(false)

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *wsConn) connectAndSubscribe(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	cmd := WSCommand{Type: "subscribe", Channel: "last_trade_price", Assets: c.tokenIDs}
	return c.send(cmd)
}

// runConnection drives the read loop and the application-level PING loop
// for the current connection until either returns (indicating the socket
// dropped) or ctx is cancelled.
func (c *wsConn) runConnection(ctx context.Context) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readLoop(connCtx)
	}()

	go c.pingLoop(connCtx)

	select {
	case <-done:
	case <-ctx.Done():
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *wsConn) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		for _, evt := range parseTradeEvents(message) {
			c.onTrade(evt)
		}
	}
}

// pingLoop sends the venue's application-level "PING" text frame on
// pingInterval, independent of any transport-layer ping/pong.
func (c *wsConn) pingLoop(ctx context.Context) {
	interval := c.pingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) send(cmd WSCommand) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// WSCommand is the subscribe/unsubscribe command frame sent to the venue's
// WebSocket.
type WSCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}
