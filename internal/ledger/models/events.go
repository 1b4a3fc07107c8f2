package models

import (
	"time"

	"ledgerguard/pkg/domain"
)

// EventKind names a domain event. One event is emitted per successful
// mutation, in the same atomic unit as the record write.
type EventKind string

const (
	EventPolicyRegistered  EventKind = "policy_registered"
	EventTransactionLogged EventKind = "transaction_logged"
	EventViolationRecorded EventKind = "violation_recorded"
	EventClawbackExecuted  EventKind = "clawback_executed"
	EventRuleCreated       EventKind = "rule_created"
	EventRuleClaimed       EventKind = "rule_claimed"
	EventSignerRotated     EventKind = "signer_rotated"
	EventBalanceCredited   EventKind = "balance_credited"
)

// Event is an entry in the append-only event log. It is one flat struct;
// which fields are populated depends on Kind. Events carry natural
// identifiers (not digests) so external indexers can consume them directly,
// plus the digest/amount as applicable.
type Event struct {
	// Seq is the event's position in the global emission order, starting
	// at zero. It is the tie-break when timestamps collide.
	Seq uint64 `json:"seq"`
	// Block is the height of the batch this event was emitted in. Events
	// emitted in the same atomic write share one block, and therefore one
	// timestamp.
	Block uint64 `json:"block"`
	// EntryHash chains the log: digest of the previous entry hash followed
	// by this event's canonical payload. Replaying the log and recomputing
	// the chain detects tampering.
	EntryHash domain.Digest `json:"entry_hash"`
	PrevHash  domain.Digest `json:"prev_hash"`

	Kind  EventKind      `json:"kind"`
	Actor domain.Address `json:"actor"`

	WalletID     string         `json:"wallet_id,omitempty"`
	TxID         string         `json:"tx_id,omitempty"`
	OriginalTxID string         `json:"original_tx_id,omitempty"`
	ClawbackTxID string         `json:"clawback_tx_id,omitempty"`
	Decision     Decision       `json:"decision,omitempty"`
	Digest       domain.Digest  `json:"digest,omitempty"`
	RuleID       domain.RuleID  `json:"rule_id,omitempty"`
	Sender       domain.Address `json:"sender,omitempty"`
	Receiver     domain.Address `json:"receiver,omitempty"`
	Amount       int64          `json:"amount,omitempty"`
	Expiry       time.Time      `json:"expiry,omitzero"`
}

// ShortID returns the natural identifier most useful in a feed entry for
// this event kind, shortened where it is a digest.
func (e Event) ShortID() string {
	switch e.Kind {
	case EventPolicyRegistered:
		return e.WalletID
	case EventTransactionLogged, EventViolationRecorded:
		return e.TxID
	case EventClawbackExecuted:
		return e.ClawbackTxID
	case EventRuleCreated, EventRuleClaimed:
		return e.RuleID.Short()
	case EventBalanceCredited, EventSignerRotated:
		return e.Receiver.String()
	}
	return ""
}

// StatusLabel returns the human-readable outcome label for a feed entry.
func (e Event) StatusLabel() string {
	switch e.Kind {
	case EventPolicyRegistered:
		return "registered"
	case EventTransactionLogged:
		return string(e.Decision)
	case EventViolationRecorded:
		return "violation"
	case EventClawbackExecuted:
		return "clawed back"
	case EventRuleCreated:
		return "locked"
	case EventRuleClaimed:
		return "released"
	case EventSignerRotated:
		return "rotated"
	case EventBalanceCredited:
		return "credited"
	}
	return string(e.Kind)
}
