// Package stub provides a scriptable in-memory ledger.Client for tests.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rwa-vault-lab/internal/ledger"
)

// Client implements ledger.Client for testing. Script it by setting
// Receipts, Reverts, and ReadResults before use; submitted calls are
// recorded in order.
type Client struct {
	mu sync.Mutex

	// Receipts maps transaction hash to its receipt. A submitted call
	// whose hash has no receipt times out in AwaitReceipt.
	Receipts map[string]*ledger.Receipt

	// Reverts maps method name to a revert reason for Simulate.
	Reverts map[string]string

	// ReadResults maps method name to the JSON-encodable value Read
	// unmarshals into the caller's result.
	ReadResults map[string]interface{}

	// Submitted records every submitted call in order.
	Submitted []ledger.SignedCall

	// hashSeq assigns hashes to submitted calls: the nth submitted call
	// gets HashSeq[n]. Submit fails when the sequence is exhausted.
	HashSeq []string
}

// NewClient creates an empty stub ledger.
func NewClient() *Client {
	return &Client{
		Receipts:    make(map[string]*ledger.Receipt),
		Reverts:     make(map[string]string),
		ReadResults: make(map[string]interface{}),
	}
}

// Compile-time interface check.
var _ ledger.Client = (*Client)(nil)

// Simulate returns a fixed gas estimate, or a RevertError when the
// method is scripted to revert.
func (c *Client) Simulate(_ context.Context, call ledger.Call) (*ledger.GasEstimate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reason, ok := c.Reverts[call.Method]; ok {
		return nil, &ledger.RevertError{Reason: reason}
	}
	return &ledger.GasEstimate{Units: 21000}, nil
}

// Submit records the call and returns the next scripted hash.
func (c *Client) Submit(_ context.Context, signed ledger.SignedCall) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := len(c.Submitted)
	c.Submitted = append(c.Submitted, signed)

	if idx >= len(c.HashSeq) {
		return "", fmt.Errorf("stub: no hash scripted for submission %d", idx)
	}
	return c.HashSeq[idx], nil
}

// AwaitReceipt returns the scripted receipt, or ErrTimeout if none exists.
func (c *Client) AwaitReceipt(_ context.Context, hash string, _ time.Duration) (*ledger.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	receipt, ok := c.Receipts[hash]
	if !ok {
		return nil, ledger.ErrTimeout
	}
	return receipt, nil
}

// Read round-trips the scripted value through JSON into result.
func (c *Client) Read(_ context.Context, call ledger.Call, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.ReadResults[call.Method]
	if !ok {
		return fmt.Errorf("stub: no read result scripted for %s", call.Method)
	}
	return roundTripJSON(v, result)
}
