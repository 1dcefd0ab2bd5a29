package ledger

import (
	"context"
	"time"
)

// refetchGrace bounds the RPC re-fetch after a push notification. The
// receipt is already included at that point, one poll round is enough.
const refetchGrace = 10 * time.Second

// WatchedClient overlays WebSocket inclusion pushes on a polling
// Client. A push only wakes the waiter early: the receipt returned to
// callers is always re-fetched over RPC, so a stale or duplicated
// notification cannot change the outcome.
type WatchedClient struct {
	Client
	watcher *ReceiptWatcher
}

// NewWatchedClient wraps inner with push-based receipt delivery.
func NewWatchedClient(inner Client, watcher *ReceiptWatcher) *WatchedClient {
	return &WatchedClient{Client: inner, watcher: watcher}
}

// Compile-time interface check.
var _ Client = (*WatchedClient)(nil)

// AwaitReceipt waits for an inclusion push, then fetches the receipt
// over RPC. When the subscription cannot be established it degrades to
// the inner client's polling.
func (c *WatchedClient) AwaitReceipt(ctx context.Context, hash string, timeout time.Duration) (*Receipt, error) {
	ch, err := c.watcher.Watch(ctx, hash)
	if err != nil {
		return c.Client.AwaitReceipt(ctx, hash, timeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case _, ok := <-ch:
		if !ok {
			// Subscription dropped, fall back to polling for the rest
			// of the window.
			return c.Client.AwaitReceipt(ctx, hash, timeout)
		}
		return c.Client.AwaitReceipt(ctx, hash, refetchGrace)
	case <-timer.C:
		// One last authoritative check before giving up: the inclusion
		// may have raced the subscription.
		c.watcher.dropWaiter(hash)
		return c.Client.AwaitReceipt(ctx, hash, 0)
	case <-ctx.Done():
		c.watcher.dropWaiter(hash)
		return nil, ctx.Err()
	}
}
