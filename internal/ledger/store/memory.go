package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ledgerguard/internal/ledger/models"
	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/hashing"
	"ledgerguard/pkg/platform/sentinel"
	"ledgerguard/pkg/requestcontext"
)

// InMemory is the single-process ledger. One mutex serializes every mutation,
// so "happens inside one ledger operation" becomes one critical section:
// invariant checks, the record write, the balance movement, and the event
// append are never partially visible. Reads take the shared lock and never
// block each other.
type InMemory struct {
	mu     sync.RWMutex
	hasher hashing.Hasher

	signer domain.Address
	admin  domain.Address

	policies   map[domain.Digest]models.Policy
	txLogs     map[domain.Digest]models.TransactionLog
	violations map[domain.Digest]models.ViolationRecord
	clawbacks  map[domain.Digest]models.ClawbackRecord

	rules       map[domain.RuleID]models.EscrowRule
	rulesByAddr map[domain.Address][]domain.RuleID
	balances    map[domain.Address]int64
	ruleNonce   uint64

	events     []models.Event
	blockTimes []time.Time
	lastHash   domain.Digest
}

// NewInMemory builds an empty ledger with the given initial authorized signer
// and administrator identities.
func NewInMemory(hasher hashing.Hasher, signer, admin domain.Address) *InMemory {
	return &InMemory{
		hasher:      hasher,
		signer:      domain.NormalizeAddress(signer.String()),
		admin:       domain.NormalizeAddress(admin.String()),
		policies:    make(map[domain.Digest]models.Policy),
		txLogs:      make(map[domain.Digest]models.TransactionLog),
		violations:  make(map[domain.Digest]models.ViolationRecord),
		clawbacks:   make(map[domain.Digest]models.ClawbackRecord),
		rules:       make(map[domain.RuleID]models.EscrowRule),
		rulesByAddr: make(map[domain.Address][]domain.RuleID),
		balances:    make(map[domain.Address]int64),
	}
}

var _ Ledger = (*InMemory)(nil)

// appendEvent finalizes a mutation under the write lock: it opens a new block
// at now, stamps the event's position, and extends the hash chain over the
// event's JSON payload.
func (l *InMemory) appendEvent(now time.Time, evt models.Event) Receipt {
	evt.Seq = uint64(len(l.events))
	evt.Block = uint64(len(l.blockTimes))
	evt.PrevHash = l.lastHash

	payload, err := json.Marshal(evt)
	if err != nil {
		// Event payloads are plain structs; this cannot fail at runtime.
		panic(fmt.Sprintf("marshal ledger event: %v", err))
	}
	evt.EntryHash = l.hasher.Chain(l.lastHash, payload)
	l.lastHash = evt.EntryHash

	l.events = append(l.events, evt)
	l.blockTimes = append(l.blockTimes, now)
	return Receipt{Seq: evt.Seq, Block: evt.Block}
}

func (l *InMemory) RegisterPolicy(ctx context.Context, caller domain.Address, walletID string, contentDigest domain.Digest) (Receipt, error) {
	if walletID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "wallet id is required")
	}
	if contentDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "content digest must not be zero")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !caller.Equal(l.signer) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	key := l.hasher.DigestString(walletID)
	if _, exists := l.policies[key]; exists {
		return Receipt{}, sentinel.ErrConflict
	}

	now := requestcontext.Now(ctx)
	l.policies[key] = models.Policy{
		WalletID:      walletID,
		ContentDigest: contentDigest,
		RegisteredAt:  now,
		RegisteredBy:  caller,
		Active:        true,
	}
	receipt := l.appendEvent(now, models.Event{
		Kind:     models.EventPolicyRegistered,
		Actor:    caller,
		WalletID: walletID,
		Digest:   contentDigest,
	})
	return receipt, nil
}

func (l *InMemory) LogTransaction(ctx context.Context, caller domain.Address, walletID, txID string, decision models.Decision, policyDigest domain.Digest) (Receipt, error) {
	if walletID == "" || txID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "wallet id and tx id are required")
	}
	if policyDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "policy digest must not be zero")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !caller.Equal(l.signer) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	key := l.hasher.DigestString(txID)
	if _, exists := l.txLogs[key]; exists {
		return Receipt{}, sentinel.ErrConflict
	}

	now := requestcontext.Now(ctx)
	l.txLogs[key] = models.TransactionLog{
		WalletID:     walletID,
		TxID:         txID,
		Decision:     decision,
		PolicyDigest: policyDigest,
		LoggedAt:     now,
		LoggedBy:     caller,
	}
	receipt := l.appendEvent(now, models.Event{
		Kind:     models.EventTransactionLogged,
		Actor:    caller,
		WalletID: walletID,
		TxID:     txID,
		Decision: decision,
		Digest:   policyDigest,
	})
	return receipt, nil
}

func (l *InMemory) RecordViolation(ctx context.Context, caller domain.Address, txID string, reasonDigest domain.Digest, penalty string) (Receipt, error) {
	if txID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "tx id is required")
	}
	if reasonDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "reason digest must not be zero")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !caller.Equal(l.signer) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	// No referential check against txLogs: a violation may land before, or
	// without, its transaction log.
	key := l.hasher.DigestString(txID)
	if _, exists := l.violations[key]; exists {
		return Receipt{}, sentinel.ErrConflict
	}

	now := requestcontext.Now(ctx)
	l.violations[key] = models.ViolationRecord{
		TxID:         txID,
		ReasonDigest: reasonDigest,
		Penalty:      penalty,
		RecordedAt:   now,
		RecordedBy:   caller,
	}
	receipt := l.appendEvent(now, models.Event{
		Kind:   models.EventViolationRecorded,
		Actor:  caller,
		TxID:   txID,
		Digest: reasonDigest,
	})
	return receipt, nil
}

func (l *InMemory) LogClawback(ctx context.Context, caller domain.Address, originalTxID, clawbackTxID string, reasonDigest domain.Digest) (Receipt, error) {
	if originalTxID == "" || clawbackTxID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "original and clawback tx ids are required")
	}
	if reasonDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "reason digest must not be zero")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !caller.Equal(l.signer) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	key := l.hasher.DigestString(clawbackTxID)
	if _, exists := l.clawbacks[key]; exists {
		return Receipt{}, sentinel.ErrConflict
	}

	now := requestcontext.Now(ctx)
	l.clawbacks[key] = models.ClawbackRecord{
		OriginalTxID: originalTxID,
		ClawbackTxID: clawbackTxID,
		ReasonDigest: reasonDigest,
		ExecutedAt:   now,
		ExecutedBy:   caller,
	}
	receipt := l.appendEvent(now, models.Event{
		Kind:         models.EventClawbackExecuted,
		Actor:        caller,
		OriginalTxID: originalTxID,
		ClawbackTxID: clawbackTxID,
		Digest:       reasonDigest,
	})
	return receipt, nil
}

func (l *InMemory) RotateAuthorizedSigner(ctx context.Context, caller, newSigner domain.Address) (Receipt, error) {
	if newSigner.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "new signer address is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !caller.Equal(l.admin) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	l.signer = domain.NormalizeAddress(newSigner.String())

	receipt := l.appendEvent(requestcontext.Now(ctx), models.Event{
		Kind:     models.EventSignerRotated,
		Actor:    caller,
		Receiver: l.signer,
	})
	return receipt, nil
}

func (l *InMemory) GetPolicy(_ context.Context, walletID string) (models.Policy, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.policies[l.hasher.DigestString(walletID)]; ok {
		return rec, nil
	}
	return models.Policy{}, sentinel.ErrNotFound
}

func (l *InMemory) GetTransactionLog(_ context.Context, txID string) (models.TransactionLog, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.txLogs[l.hasher.DigestString(txID)]; ok {
		return rec, nil
	}
	return models.TransactionLog{}, sentinel.ErrNotFound
}

func (l *InMemory) GetViolationRecord(_ context.Context, txID string) (models.ViolationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.violations[l.hasher.DigestString(txID)]; ok {
		return rec, nil
	}
	return models.ViolationRecord{}, sentinel.ErrNotFound
}

func (l *InMemory) GetClawbackRecord(_ context.Context, clawbackTxID string) (models.ClawbackRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.clawbacks[l.hasher.DigestString(clawbackTxID)]; ok {
		return rec, nil
	}
	return models.ClawbackRecord{}, sentinel.ErrNotFound
}

func (l *InMemory) CreateRule(ctx context.Context, sender, receiver domain.Address, amount int64, expiresIn time.Duration) (Receipt, error) {
	if amount <= 0 {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}
	if receiver.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "receiver address is required")
	}
	if sender.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "sender address is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[sender] < amount {
		return Receipt{}, sentinel.ErrInsufficientFunds
	}

	now := requestcontext.Now(ctx)
	ruleID, err := l.nextRuleID(sender, receiver, amount)
	if err != nil {
		return Receipt{}, err
	}

	rule := models.EscrowRule{
		ID:        ruleID,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Expiry:    now.Add(expiresIn),
		Claimed:   false,
		CreatedAt: now,
	}

	// Encumber the amount and index both parties in the same critical
	// section as the rule insert.
	l.balances[sender] -= amount
	l.rules[ruleID] = rule
	l.rulesByAddr[sender] = append(l.rulesByAddr[sender], ruleID)
	if !receiver.Equal(sender) {
		l.rulesByAddr[receiver] = append(l.rulesByAddr[receiver], ruleID)
	}

	receipt := l.appendEvent(now, models.Event{
		Kind:     models.EventRuleCreated,
		Actor:    sender,
		RuleID:   ruleID,
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
		Expiry:   rule.Expiry,
	})
	return receipt, nil
}

// nextRuleID derives a fresh rule identifier from the parties, the amount,
// the next sequence position, and a monotonic counter. The counter keeps two
// rules with identical parameters in the same instant from colliding.
func (l *InMemory) nextRuleID(sender, receiver domain.Address, amount int64) (domain.RuleID, error) {
	l.ruleNonce++
	d, err := l.hasher.DigestFields(map[string]any{
		"sender":   sender.String(),
		"receiver": receiver.String(),
		"amount":   amount,
		"seq":      uint64(len(l.events)),
		"nonce":    l.ruleNonce,
	})
	if err != nil {
		return domain.RuleID{}, dErrors.Wrap(err, dErrors.CodeInternal, "derive rule id")
	}
	return domain.RuleID(d), nil
}

func (l *InMemory) ClaimRule(ctx context.Context, caller domain.Address, ruleID domain.RuleID) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rule, ok := l.rules[ruleID]
	if !ok {
		return Receipt{}, sentinel.ErrNotFound
	}
	if !caller.Equal(rule.Receiver) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	if rule.Claimed {
		return Receipt{}, sentinel.ErrAlreadyClaimed
	}
	now := requestcontext.Now(ctx)
	if !now.Before(rule.Expiry) {
		return Receipt{}, sentinel.ErrExpired
	}

	rule.Claimed = true
	l.rules[ruleID] = rule
	l.balances[rule.Receiver] += rule.Amount

	receipt := l.appendEvent(now, models.Event{
		Kind:     models.EventRuleClaimed,
		Actor:    caller,
		RuleID:   ruleID,
		Receiver: rule.Receiver,
		Amount:   rule.Amount,
	})
	return receipt, nil
}

func (l *InMemory) GetRule(_ context.Context, ruleID domain.RuleID) (models.EscrowRule, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rule, ok := l.rules[ruleID]; ok {
		return rule, nil
	}
	return models.EscrowRule{}, sentinel.ErrNotFound
}

func (l *InMemory) RuleStatus(ctx context.Context, ruleID domain.RuleID) (models.RuleStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rule, ok := l.rules[ruleID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return rule.StatusAt(requestcontext.Now(ctx)), nil
}

func (l *InMemory) ListRulesFor(ctx context.Context, addr domain.Address) ([]models.RuleWithStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := requestcontext.Now(ctx)
	ids := l.rulesByAddr[addr]
	out := make([]models.RuleWithStatus, 0, len(ids))
	for _, id := range ids {
		rule := l.rules[id]
		out = append(out, models.RuleWithStatus{Rule: rule, Status: rule.StatusAt(now)})
	}
	return out, nil
}

func (l *InMemory) Balance(_ context.Context, addr domain.Address) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr], nil
}

func (l *InMemory) Credit(ctx context.Context, caller, addr domain.Address, amount int64) (Receipt, error) {
	if amount <= 0 {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}
	if addr.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !caller.Equal(l.admin) {
		return Receipt{}, sentinel.ErrUnauthorized
	}
	l.balances[addr] += amount

	receipt := l.appendEvent(requestcontext.Now(ctx), models.Event{
		Kind:     models.EventBalanceCredited,
		Actor:    caller,
		Receiver: addr,
		Amount:   amount,
	})
	return receipt, nil
}

func (l *InMemory) Events(_ context.Context, fromSeq uint64, limit int) ([]models.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if fromSeq >= uint64(len(l.events)) {
		return nil, nil
	}
	tail := l.events[fromSeq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	return append([]models.Event{}, tail...), nil
}

func (l *InMemory) EventAt(_ context.Context, seq uint64) (models.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= uint64(len(l.events)) {
		return models.Event{}, sentinel.ErrNotFound
	}
	return l.events[seq], nil
}

func (l *InMemory) BlockTime(_ context.Context, height uint64) (time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if height >= uint64(len(l.blockTimes)) {
		return time.Time{}, sentinel.ErrNotFound
	}
	return l.blockTimes[height], nil
}

func (l *InMemory) Head(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events)), nil
}
