// Package extract decodes a confirmed receipt's event log into the
// trusted, typed effect of one financial action. Facts come only from
// the ledger's own events, never from the arguments the user submitted:
// on-ledger rounding, fees, or partial fills can make the two differ.
package extract

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"rwa-vault-lab/internal/domain"
	"rwa-vault-lab/internal/ledger"
)

// Extraction errors. Both indicate a contract/decoder mismatch on a
// receipt the ledger accepted, and are fatal for the action.
var (
	// ErrEventMissing is returned when the expected event is absent
	// from a successful receipt.
	ErrEventMissing = errors.New("expected event missing from successful receipt")

	// ErrEventAmbiguous is returned when more than one matching event
	// is present. The ledger interface emits one relevant event per
	// call; anything else is treated as an integrity fault, not
	// resolved by taking the first match.
	ErrEventAmbiguous = errors.New("more than one matching event in receipt")
)

// Expected event names per action kind. Kinds absent here carry no
// decoded fact beyond inclusion success.
const (
	EventFundsDeposited    = "FundsDeposited"    // assets, shares
	EventRepaymentMade     = "RepaymentMade"     // amount
	EventSharesRedeemed    = "SharesRedeemed"    // assets, shares
	EventProposalSubmitted = "ProposalSubmitted" // proposalId
)

// Fact is the canonical, trusted effect of one confirmed transaction.
// Only the fields relevant to Kind are populated.
type Fact struct {
	Kind domain.ActionKind
	Hash string

	AssetsMoved    decimal.Decimal // Deposit
	SharesIssued   decimal.Decimal // Deposit
	AmountRepaid   decimal.Decimal // Repay
	AssetsReturned decimal.Decimal // Redeem
	SharesBurned   decimal.Decimal // Redeem
	OnchainID      int64           // SubmitProposal: registry-assigned proposal id
}

// ExpectedEvent returns the event name a kind's receipt must carry, or
// "" when inclusion success alone is the fact.
func ExpectedEvent(kind domain.ActionKind) string {
	switch kind {
	case domain.KindDeposit:
		return EventFundsDeposited
	case domain.KindRepay:
		return EventRepaymentMade
	case domain.KindRedeem:
		return EventSharesRedeemed
	case domain.KindSubmitProposal:
		return EventProposalSubmitted
	default:
		return ""
	}
}

// Extract decodes the receipt's logs into the fact for the given kind.
// Deterministic: the same receipt always yields the same fact.
func Extract(kind domain.ActionKind, receipt *ledger.Receipt) (*Fact, error) {
	if receipt == nil {
		return nil, fmt.Errorf("nil receipt")
	}
	if receipt.Status != ledger.StatusSuccess {
		return nil, fmt.Errorf("cannot extract from receipt with status %s", receipt.Status)
	}

	fact := &Fact{Kind: kind, Hash: receipt.Hash}

	eventName := ExpectedEvent(kind)
	if eventName == "" {
		return fact, nil
	}

	log, err := findOne(receipt, eventName)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.KindDeposit:
		if fact.AssetsMoved, err = log.DecodeFieldAmount("assets"); err != nil {
			return nil, err
		}
		if fact.SharesIssued, err = log.DecodeFieldAmount("shares"); err != nil {
			return nil, err
		}

	case domain.KindRepay:
		if fact.AmountRepaid, err = log.DecodeFieldAmount("amount"); err != nil {
			return nil, err
		}

	case domain.KindRedeem:
		if fact.AssetsReturned, err = log.DecodeFieldAmount("assets"); err != nil {
			return nil, err
		}
		if fact.SharesBurned, err = log.DecodeFieldAmount("shares"); err != nil {
			return nil, err
		}

	case domain.KindSubmitProposal:
		if fact.OnchainID, err = log.DecodeFieldInt("proposalId"); err != nil {
			return nil, err
		}
	}

	return fact, nil
}

// findOne returns the single log with the given name. Zero matches is
// ErrEventMissing, more than one is ErrEventAmbiguous.
func findOne(receipt *ledger.Receipt, name string) (*ledger.EventLog, error) {
	var found *ledger.EventLog
	for i := range receipt.Logs {
		if receipt.Logs[i].Name != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("event %s in tx %s: %w", name, receipt.Hash, ErrEventAmbiguous)
		}
		found = &receipt.Logs[i]
	}
	if found == nil {
		return nil, fmt.Errorf("event %s in tx %s: %w", name, receipt.Hash, ErrEventMissing)
	}
	return found, nil
}
