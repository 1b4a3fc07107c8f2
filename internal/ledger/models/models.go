// Package models defines the record families held by the ledger and the
// domain events emitted alongside every successful mutation.
package models

import (
	"time"

	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
)

// Decision classifies a logged wallet transaction.
type Decision string

const (
	DecisionApproved  Decision = "APPROVED"
	DecisionBlocked   Decision = "BLOCKED"
	DecisionViolation Decision = "VIOLATION"
)

// ParseDecision validates a caller-supplied decision string.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved, DecisionBlocked, DecisionViolation:
		return Decision(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidArgument, "decision must be APPROVED, BLOCKED or VIOLATION")
}

// Policy is the spending policy registered for a wallet. Keyed by
// digest(walletID); at most one per wallet, ever. Immutable post-creation,
// including Active.
type Policy struct {
	WalletID      string
	ContentDigest domain.Digest
	RegisteredAt  time.Time
	RegisteredBy  domain.Address
	Active        bool
}

// TransactionLog records a validation decision for one transaction. Keyed by
// digest(txID); at most one per transaction.
type TransactionLog struct {
	WalletID     string
	TxID         string
	Decision     Decision
	PolicyDigest domain.Digest
	LoggedAt     time.Time
	LoggedBy     domain.Address
}

// ViolationRecord commits a violation reason for a transaction. Keyed by
// digest(txID). A violation may be recorded for a txID that was never logged;
// callers are responsible for sequencing.
type ViolationRecord struct {
	TxID         string
	ReasonDigest domain.Digest
	Penalty      string
	RecordedAt   time.Time
	RecordedBy   domain.Address
}

// ClawbackRecord commits an executed clawback. Keyed by digest(clawbackTxID).
// OriginalTxID is not required to exist as a TransactionLog.
type ClawbackRecord struct {
	OriginalTxID string
	ClawbackTxID string
	ReasonDigest domain.Digest
	ExecutedAt   time.Time
	ExecutedBy   domain.Address
}

// RuleStatus is derived from an EscrowRule and the current time; it is never
// stored.
type RuleStatus string

const (
	RuleStatusActive  RuleStatus = "ACTIVE"
	RuleStatusClaimed RuleStatus = "CLAIMED"
	RuleStatusExpired RuleStatus = "EXPIRED"
)

// EscrowRule locks a fixed amount from a sender for a receiver, releasable
// only by the receiver before the expiry. There is no cancellation or refund
// path: an expired unclaimed rule leaves the funds encumbered.
type EscrowRule struct {
	ID        domain.RuleID
	Sender    domain.Address
	Receiver  domain.Address
	Amount    int64
	Expiry    time.Time
	Claimed   bool
	CreatedAt time.Time
}

// StatusAt derives the rule status at the given instant. CLAIMED is terminal;
// EXPIRED is monotonic: once now reaches the expiry it never reverts.
func (r EscrowRule) StatusAt(now time.Time) RuleStatus {
	switch {
	case r.Claimed:
		return RuleStatusClaimed
	case now.Before(r.Expiry):
		return RuleStatusActive
	default:
		return RuleStatusExpired
	}
}

// RuleWithStatus pairs a rule with its status derived at query time.
type RuleWithStatus struct {
	Rule   EscrowRule
	Status RuleStatus
}
