package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pft-memo-cache/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSClient subscribes to the transaction stream for a set of accounts
// over a rippled WebSocket endpoint. One client holds one subscription;
// the account set is fixed at Subscribe time and replayed on reconnect.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// accounts holds the active subscription for resubscribe after
	// reconnect; nil until Subscribe succeeds.
	accounts   []string
	accountsMu sync.RWMutex

	// txCh carries transaction notifications to the consumer.
	txCh chan TransactionMessage

	// pending maps request ID to channel waiting for command status
	pending   map[uint64]chan error
	pendingMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		txCh:     make(chan TransactionMessage, 10000),
		pending:  make(map[uint64]chan error),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe subscribes to the transaction stream for the given accounts
// and returns the notification channel. Only one subscription per client.
func (c *WSClient) Subscribe(ctx context.Context, accounts []string) (<-chan TransactionMessage, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts to subscribe")
	}

	c.accountsMu.RLock()
	already := c.accounts != nil
	c.accountsMu.RUnlock()
	if already {
		return nil, fmt.Errorf("already subscribed")
	}

	if err := c.sendSubscribe(ctx, accounts); err != nil {
		return nil, err
	}

	c.accountsMu.Lock()
	c.accounts = append([]string(nil), accounts...)
	c.accountsMu.Unlock()

	return c.txCh, nil
}

// sendSubscribe issues a subscribe command and waits for its status reply.
func (c *WSClient) sendSubscribe(ctx context.Context, accounts []string) error {
	reqID := c.requestID.Add(1)

	req := wsCommand{
		ID:         reqID,
		Command:    "subscribe",
		Accounts:   accounts,
		APIVersion: 2,
	}

	confirmCh := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
		return fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case err := <-confirmCh:
		return err
	case <-time.After(30 * time.Second):
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
		return fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
		return ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.wg.Wait()
	close(c.txCh)
	return nil
}

// readLoop reads messages from WebSocket and dispatches them.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	observability.RecordWSReconnect()

	// Replay the active subscription
	c.accountsMu.RLock()
	accounts := append([]string(nil), c.accounts...)
	c.accountsMu.RUnlock()

	if len(accounts) > 0 {
		subCtx, subCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = c.sendSubscribe(subCtx, accounts)
		subCancel()
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	// Try to parse as a command response first
	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Type == "response" {
		c.handleResponse(&resp)
		return
	}

	// Try to parse as a transaction notification
	var tx TransactionMessage
	if err := json.Unmarshal(message, &tx); err == nil && tx.Type == "transaction" {
		select {
		case c.txCh <- tx:
		case <-c.done:
		}
		return
	}
}

// handleResponse resolves the pending command waiting on this reply.
func (c *WSClient) handleResponse(resp *wsResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return
	}

	var result error
	if resp.Status != "success" {
		result = fmt.Errorf("command failed: %s", resp.Error)
	}

	select {
	case ch <- result:
	default:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}
