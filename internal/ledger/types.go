package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Call describes one contract call (simulated, read, or submitted).
type Call struct {
	From   string        // caller's ledger address
	To     string        // contract address
	Method string        // contract method name
	Args   []interface{} // method arguments, JSON-encodable
}

// SignedCall is a Call plus the caller's authorization over its exact
// simulated form.
type SignedCall struct {
	Call      Call
	Signature string // base58-encoded signature over the canonical call encoding
	PublicKey string // base58-encoded signer public key
}

// GasEstimate is the simulation result for a non-reverting call.
type GasEstimate struct {
	Units int64
}

// ReceiptStatus is the inclusion outcome of a submitted call.
type ReceiptStatus string

const (
	StatusSuccess  ReceiptStatus = "SUCCESS"
	StatusReverted ReceiptStatus = "REVERTED"
)

// EventLog is one structured event emitted during execution. Fields are
// decoded lazily by the fact extractor; the ledger client never
// interprets them.
type EventLog struct {
	Name   string                     `json:"name"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// Receipt is returned once a submitted call is included. A hash is never
// reused and always decodes to the same logs.
type Receipt struct {
	Hash      string        `json:"hash"`
	Status    ReceiptStatus `json:"status"`
	BlockTime int64         `json:"blockTime"` // unix seconds
	Logs      []EventLog    `json:"logs"`
}

// DecodeFieldString extracts a string field from an event log.
func (l EventLog) DecodeFieldString(name string) (string, error) {
	raw, ok := l.Fields[name]
	if !ok {
		return "", fmt.Errorf("event %s: missing field %q", l.Name, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("event %s: field %q: %w", l.Name, name, err)
	}
	return s, nil
}

// DecodeFieldInt extracts an integer field from an event log.
func (l EventLog) DecodeFieldInt(name string) (int64, error) {
	raw, ok := l.Fields[name]
	if !ok {
		return 0, fmt.Errorf("event %s: missing field %q", l.Name, name)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("event %s: field %q: %w", l.Name, name, err)
	}
	return n, nil
}

// DecodeFieldAmount extracts a base-unit amount field. Amounts are
// emitted as decimal strings to survive uint256 magnitudes.
func (l EventLog) DecodeFieldAmount(name string) (decimal.Decimal, error) {
	raw, ok := l.Fields[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("event %s: missing field %q", l.Name, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Some ledgers emit small amounts as bare numbers.
		var n int64
		if err2 := json.Unmarshal(raw, &n); err2 != nil {
			return decimal.Zero, fmt.Errorf("event %s: field %q: %w", l.Name, name, err)
		}
		return decimal.NewFromInt(n), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("event %s: field %q: %w", l.Name, name, err)
	}
	return d, nil
}
