package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rpcdrift/internal/jsonrpc"
)

// WebSocket defaults
const (
	DefaultMessageTimeout    = 60 * time.Second
	DefaultReconnectInterval = 5 * time.Second
	minReconnectInterval     = time.Second
	handshakeTimeout         = 10 * time.Second
)

var errWSNotConnected = errors.New("WebSocket not connected")

// wsClient owns a single WebSocket connection for an upstream and
// multiplexes request/response pairs over it by request id
type wsClient struct {
	url               string
	messageTimeout    time.Duration
	reconnectInterval time.Duration
	logger            zerolog.Logger

	// started is guarded by the owning Upstream
	started bool

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]chan *jsonrpc.Response
	pendingMu sync.Mutex
	reqID     atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWSClient(url string, messageTimeout, reconnectInterval time.Duration, logger zerolog.Logger) *wsClient {
	if messageTimeout <= 0 {
		messageTimeout = DefaultMessageTimeout
	}
	if reconnectInterval < minReconnectInterval {
		reconnectInterval = minReconnectInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &wsClient{
		url:               url,
		messageTimeout:    messageTimeout,
		reconnectInterval: reconnectInterval,
		logger:            logger,
		pending:           make(map[int64]chan *jsonrpc.Response),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// connect dials the endpoint and starts the reader and ping loops.
// Once started, the reader owns reconnection.
func (c *wsClient) connect(ctx context.Context) error {
	if c.started {
		if c.connected() {
			return nil
		}
		return errWSNotConnected
	}

	c.logger.Debug().Msg("WebSocket connecting")
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect WebSocket: %w", err)
	}
	c.setConn(conn)
	c.started = true
	c.logger.Info().Msg("WebSocket connected")

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *wsClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.messageTimeout))
	})
	return conn, nil
}

func (c *wsClient) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *wsClient) current() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *wsClient) connected() bool {
	return c.current() != nil
}

// send writes the request under a connection-local id and waits for the
// matching response. The caller's id is restored on the response.
func (c *wsClient) send(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	conn := c.current()
	if conn == nil {
		return nil, errWSNotConnected
	}

	id := c.reqID.Add(1)
	respChan := make(chan *jsonrpc.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	reqBytes, err := req.WithID(jsonrpc.NewIDInt(id)).Bytes()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, reqBytes)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, errors.New("connection closed")
		}
		resp.ID = req.ID
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *wsClient) forget(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// failPending wakes every waiter with a nil response
func (c *wsClient) failPending() {
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		ch <- nil
	}
	c.pending = make(map[int64]chan *jsonrpc.Response)
	c.pendingMu.Unlock()
}

func (c *wsClient) readLoop() {
	defer c.wg.Done()

	for {
		conn := c.current()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.messageTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Msg("WebSocket connection lost, reconnecting")
			if !c.reconnect() {
				return
			}
			continue
		}
		c.dispatch(data)
	}
}

func (c *wsClient) dispatch(data []byte) {
	var resp jsonrpc.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn().Err(err).Int("len", len(data)).Msg("ws message parse error")
		return
	}

	id, ok := resp.ID.Int()
	if !ok {
		// notifications are not requested by this client
		return
	}

	c.pendingMu.Lock()
	ch, exists := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if exists {
		ch <- &resp
	}
}

func (c *wsClient) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.messageTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			conn := c.current()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(handshakeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug().Err(err).Msg("ping write failed")
			}
		}
	}
}

// reconnect replaces a broken connection, retrying until it succeeds or the
// client is closed. In-flight requests fail immediately.
func (c *wsClient) reconnect() bool {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.failPending()

	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(c.reconnectInterval):
		}

		ctx, cancel := context.WithTimeout(c.ctx, 3*handshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Dur("nextRetry", c.reconnectInterval).Msg("WebSocket reconnection failed, will retry")
			continue
		}

		c.setConn(conn)
		c.logger.Info().Msg("WebSocket reconnected")
		return true
	}
}

// close shuts the connection and stops background loops
func (c *wsClient) close() {
	c.cancel()
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.failPending()
	c.wg.Wait()
	c.logger.Debug().Msg("WebSocket closed")
}
