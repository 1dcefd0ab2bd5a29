package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WatcherConfig configures the receipt watcher connection.
type WatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// ReceiptWatcher subscribes to inclusion notifications over WebSocket.
// It is push-only: the authoritative receipt is always re-fetched over
// RPC after a notification, so a missed or duplicated push is harmless.
type ReceiptWatcher struct {
	endpoint string
	config   WatcherConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// waiters maps transaction hash to the channel delivering its receipt
	waiters   map[string]chan *Receipt
	waitersMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// wsRequest is a JSON-RPC 2.0 request over the socket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage is a notification or response frame.
type wsMessage struct {
	Method string `json:"method,omitempty"`
	Params *struct {
		Result *Receipt `json:"result"`
	} `json:"params,omitempty"`
}

// NewReceiptWatcher connects to the ledger's WebSocket endpoint.
func NewReceiptWatcher(ctx context.Context, endpoint string, config *WatcherConfig) (*ReceiptWatcher, error) {
	cfg := DefaultWatcherConfig()
	if config != nil {
		cfg = *config
	}

	w := &ReceiptWatcher{
		endpoint: endpoint,
		config:   cfg,
		waiters:  make(map[string]chan *Receipt),
		done:     make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go w.readLoop()

	return w, nil
}

// connect establishes the WebSocket connection.
func (w *ReceiptWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	w.conn = conn
	return nil
}

// Watch subscribes to the inclusion of one transaction hash. The
// returned channel delivers at most one receipt and is closed on
// watcher shutdown.
func (w *ReceiptWatcher) Watch(ctx context.Context, hash string) (<-chan *Receipt, error) {
	if w.closed.Load() {
		return nil, fmt.Errorf("watcher closed")
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      w.requestID.Add(1),
		Method:  "rwa_receiptSubscribe",
		Params:  []interface{}{hash},
	}

	ch := make(chan *Receipt, 1)
	w.waitersMu.Lock()
	w.waiters[hash] = ch
	w.waitersMu.Unlock()

	w.connMu.Lock()
	if w.conn == nil {
		w.connMu.Unlock()
		w.dropWaiter(hash)
		return nil, fmt.Errorf("not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	err := w.conn.WriteJSON(req)
	w.connMu.Unlock()

	if err != nil {
		w.dropWaiter(hash)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	return ch, nil
}

// dropWaiter removes a waiter without closing its channel.
func (w *ReceiptWatcher) dropWaiter(hash string) {
	w.waitersMu.Lock()
	delete(w.waiters, hash)
	w.waitersMu.Unlock()
}

// Close closes the WebSocket connection and all waiter channels.
func (w *ReceiptWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil // Already closed
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.waitersMu.Lock()
	for hash, ch := range w.waiters {
		close(ch)
		delete(w.waiters, hash)
	}
	w.waitersMu.Unlock()

	w.wg.Wait()
	return nil
}

// readLoop reads frames and dispatches receipts to waiters.
func (w *ReceiptWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			// A prior reconnect attempt may have failed and left conn
			// nil; keep re-arming until one succeeds.
			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = w.config.ReconnectDelay

		w.handleMessage(message)
	}
}

// handleMessage dispatches one inclusion notification.
func (w *ReceiptWatcher) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Method != "rwa_receiptNotification" || msg.Params == nil || msg.Params.Result == nil {
		return
	}

	receipt := msg.Params.Result

	w.waitersMu.Lock()
	ch, ok := w.waiters[receipt.Hash]
	if ok {
		delete(w.waiters, receipt.Hash)
	}
	w.waitersMu.Unlock()

	if ok {
		ch <- receipt
		close(ch)
	}
}

// reconnect re-establishes the connection after a read failure. Pending
// waiters stay registered; the caller's polling fallback covers any
// notification missed during the gap.
func (w *ReceiptWatcher) reconnect(delay time.Duration) {
	defer w.reconnecting.Store(false)

	if w.closed.Load() {
		return
	}

	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.connect(ctx); err != nil {
		return
	}
}
