package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsServer accepts one connection, records subscriptions, and pushes
// scripted notifications.
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed []string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()

	s := &wsServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method == "rwa_receiptSubscribe" && len(req.Params) == 1 {
				hash, _ := req.Params[0].(string)
				s.mu.Lock()
				s.subscribed = append(s.subscribed, hash)
				s.mu.Unlock()
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) notify(t *testing.T, receipt *Receipt) {
	t.Helper()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no connection to notify on")
	}

	frame := map[string]any{
		"jsonrpc": "2.0",
		"method":  "rwa_receiptNotification",
		"params":  map[string]any{"result": receipt},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write notification: %v", err)
	}
}

func (s *wsServer) waitSubscribed(t *testing.T, hash string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, h := range s.subscribed {
			if h == hash {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscription for %s never arrived", hash)
}

func TestWatcher_DeliversNotification(t *testing.T) {
	srv := newWSServer(t)
	ctx := context.Background()

	w, err := NewReceiptWatcher(ctx, srv.url(), nil)
	if err != nil {
		t.Fatalf("NewReceiptWatcher: %v", err)
	}
	defer w.Close()

	ch, err := w.Watch(ctx, "tx-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	srv.waitSubscribed(t, "tx-1")

	srv.notify(t, &Receipt{Hash: "tx-1", Status: StatusSuccess})

	select {
	case receipt := <-ch:
		if receipt == nil || receipt.Hash != "tx-1" {
			t.Fatalf("unexpected receipt: %+v", receipt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestWatcher_IgnoresUnknownHash(t *testing.T) {
	srv := newWSServer(t)
	ctx := context.Background()

	w, err := NewReceiptWatcher(ctx, srv.url(), nil)
	if err != nil {
		t.Fatalf("NewReceiptWatcher: %v", err)
	}
	defer w.Close()

	ch, err := w.Watch(ctx, "tx-wanted")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	srv.waitSubscribed(t, "tx-wanted")

	// A push for some other transaction must not reach this waiter.
	srv.notify(t, &Receipt{Hash: "tx-other", Status: StatusSuccess})

	select {
	case receipt := <-ch:
		t.Fatalf("unexpected delivery: %+v", receipt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_CloseClosesWaiters(t *testing.T) {
	srv := newWSServer(t)
	ctx := context.Background()

	w, err := NewReceiptWatcher(ctx, srv.url(), nil)
	if err != nil {
		t.Fatalf("NewReceiptWatcher: %v", err)
	}

	ch, err := w.Watch(ctx, "tx-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got a receipt")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter channel never closed")
	}

	if _, err := w.Watch(ctx, "tx-2"); err == nil {
		t.Fatal("Watch after Close should fail")
	}
}

func TestWatcher_ReconnectSurvivesFailedAttempt(t *testing.T) {
	var (
		mu     sync.Mutex
		reject bool
		conns  int
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if reject {
			mu.Unlock()
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		mu.Unlock()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := DefaultWatcherConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond

	ctx := context.Background()
	w, err := NewReceiptWatcher(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &cfg)
	if err != nil {
		t.Fatalf("NewReceiptWatcher: %v", err)
	}
	defer w.Close()

	// Kill the live connection while the server rejects upgrades, so
	// the first reconnect attempt fails and leaves no connection.
	mu.Lock()
	reject = true
	mu.Unlock()

	w.connMu.Lock()
	w.conn.Close()
	w.connMu.Unlock()

	time.Sleep(100 * time.Millisecond)

	// Once the server recovers, a later attempt must still fire.
	mu.Lock()
	reject = false
	mu.Unlock()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := conns
		mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher never reconnected after a failed attempt")
}

// timeoutClient satisfies Client for tests where the inner polling path
// always reports a confirmation timeout.
type timeoutClient struct{}

func (timeoutClient) Simulate(ctx context.Context, call Call) (*GasEstimate, error) {
	return nil, ErrTimeout
}

func (timeoutClient) Submit(ctx context.Context, signed SignedCall) (string, error) {
	return "", ErrTimeout
}

func (timeoutClient) AwaitReceipt(ctx context.Context, hash string, timeout time.Duration) (*Receipt, error) {
	return nil, ErrTimeout
}

func (timeoutClient) Read(ctx context.Context, call Call, result interface{}) error {
	return ErrTimeout
}

func TestWatchedClient_TimeoutDropsWaiter(t *testing.T) {
	srv := newWSServer(t)
	ctx := context.Background()

	watcher, err := NewReceiptWatcher(ctx, srv.url(), nil)
	if err != nil {
		t.Fatalf("NewReceiptWatcher: %v", err)
	}
	defer watcher.Close()

	client := NewWatchedClient(timeoutClient{}, watcher)

	if _, err := client.AwaitReceipt(ctx, "tx-stale-1", 20*time.Millisecond); err == nil {
		t.Fatal("expected a timeout error")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := client.AwaitReceipt(cancelled, "tx-stale-2", time.Minute); err == nil {
		t.Fatal("expected a cancellation error")
	}

	watcher.waitersMu.Lock()
	remaining := len(watcher.waiters)
	watcher.waitersMu.Unlock()
	if remaining != 0 {
		t.Fatalf("%d waiters still registered after abandoned waits, want 0", remaining)
	}
}

func TestWatchedClient_PushWakesRefetch(t *testing.T) {
	srv := newWSServer(t)
	ctx := context.Background()

	// RPC side: the authoritative receipt source.
	rpcCalls := 0
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcCalls++
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		receipt := &Receipt{Hash: "tx-1", Status: StatusSuccess, BlockTime: 1700000100}
		raw, _ := json.Marshal(receipt)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer rpc.Close()

	watcher, err := NewReceiptWatcher(ctx, srv.url(), nil)
	if err != nil {
		t.Fatalf("NewReceiptWatcher: %v", err)
	}
	defer watcher.Close()

	client := NewWatchedClient(NewHTTPClient(rpc.URL), watcher)

	done := make(chan struct{})
	var receipt *Receipt
	var awaitErr error
	go func() {
		defer close(done)
		receipt, awaitErr = client.AwaitReceipt(ctx, "tx-1", 10*time.Second)
	}()

	srv.waitSubscribed(t, "tx-1")
	srv.notify(t, &Receipt{Hash: "tx-1", Status: StatusSuccess})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitReceipt did not return after push")
	}

	if awaitErr != nil {
		t.Fatalf("AwaitReceipt: %v", awaitErr)
	}
	if receipt.Hash != "tx-1" || receipt.Status != StatusSuccess {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
	if rpcCalls == 0 {
		t.Error("receipt must be re-fetched over RPC after the push")
	}
}
