// Package store holds the authoritative ledger state: four digest-keyed
// record families, the escrow rule family, per-address balances, the
// authorized-signer configuration, and the append-only event log.
//
// Interfaces are split per concern so the bridge, the audit reconstructor,
// and the indexer worker each depend only on what they read or write. Both
// implementations (in-memory and postgres) apply every mutation atomically:
// invariant check, record write, and event append happen in one critical
// section or one serializable transaction, mirroring the execution model of a
// deterministic replicated ledger.
package store

import (
	"context"
	"time"

	"ledgerguard/internal/ledger/models"
	"ledgerguard/pkg/domain"
)

// Receipt reports where a confirmed mutation landed. The generated
// identifiers themselves (such as a rule ID) are not returned here; the
// bridge extracts them from the event at Seq, the way ledger runtimes that
// only expose results through their event stream require.
type Receipt struct {
	Seq   uint64
	Block uint64
}

// AuditLedger is the write and read surface of the audit record families.
// Mutations verify the caller against the current authorized signer (or
// administrator, for rotation) before touching state.
type AuditLedger interface {
	RegisterPolicy(ctx context.Context, caller domain.Address, walletID string, contentDigest domain.Digest) (Receipt, error)
	LogTransaction(ctx context.Context, caller domain.Address, walletID, txID string, decision models.Decision, policyDigest domain.Digest) (Receipt, error)
	RecordViolation(ctx context.Context, caller domain.Address, txID string, reasonDigest domain.Digest, penalty string) (Receipt, error)
	LogClawback(ctx context.Context, caller domain.Address, originalTxID, clawbackTxID string, reasonDigest domain.Digest) (Receipt, error)
	RotateAuthorizedSigner(ctx context.Context, caller, newSigner domain.Address) (Receipt, error)

	GetPolicy(ctx context.Context, walletID string) (models.Policy, error)
	GetTransactionLog(ctx context.Context, txID string) (models.TransactionLog, error)
	GetViolationRecord(ctx context.Context, txID string) (models.ViolationRecord, error)
	GetClawbackRecord(ctx context.Context, clawbackTxID string) (models.ClawbackRecord, error)
}

// EscrowLedger is the two-party timed-release sub-machine.
type EscrowLedger interface {
	CreateRule(ctx context.Context, sender, receiver domain.Address, amount int64, expiresIn time.Duration) (Receipt, error)
	ClaimRule(ctx context.Context, caller domain.Address, ruleID domain.RuleID) (Receipt, error)
	GetRule(ctx context.Context, ruleID domain.RuleID) (models.EscrowRule, error)
	RuleStatus(ctx context.Context, ruleID domain.RuleID) (models.RuleStatus, error)
	ListRulesFor(ctx context.Context, addr domain.Address) ([]models.RuleWithStatus, error)
}

// BalanceLedger exposes per-address balances. Credit is restricted to the
// administrator identity and exists so escrow flows can be funded.
type BalanceLedger interface {
	Balance(ctx context.Context, addr domain.Address) (int64, error)
	Credit(ctx context.Context, caller, addr domain.Address, amount int64) (Receipt, error)
}

// EventSource is the read side of the append-only event log.
type EventSource interface {
	// Events returns events with Seq >= fromSeq, in emission order, at most
	// limit entries (limit <= 0 means no bound).
	Events(ctx context.Context, fromSeq uint64, limit int) ([]models.Event, error)
	// EventAt returns the event at an exact sequence position.
	EventAt(ctx context.Context, seq uint64) (models.Event, error)
	// BlockTime returns the wall-clock timestamp of a batch. Every event in
	// the batch shares it.
	BlockTime(ctx context.Context, height uint64) (time.Time, error)
	// Head returns the number of events appended so far.
	Head(ctx context.Context) (uint64, error)
}

// Ledger is the full authoritative surface, implemented by InMemory and
// Postgres.
type Ledger interface {
	AuditLedger
	EscrowLedger
	BalanceLedger
	EventSource
}
