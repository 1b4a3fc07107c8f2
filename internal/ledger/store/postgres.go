package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledgerguard/internal/ledger/models"
	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/hashing"
	"ledgerguard/pkg/platform/sentinel"
	"ledgerguard/pkg/requestcontext"
)

// Postgres is the durable ledger. Every mutation runs in one transaction
// holding a single advisory lock, so the check-write-append sequence is
// serialized exactly like the in-memory critical section.
type Postgres struct {
	db     *sql.DB
	hasher hashing.Hasher
}

// ledgerLockKey is the advisory lock shared by all mutations. One writer at
// a time, matching the replicated-ledger execution model.
const ledgerLockKey = 0x1ed6e7

// NewPostgres wraps an open database handle. Call EnsureSchema before first
// use; Seed installs the initial signer and admin identities.
func NewPostgres(db *sql.DB, hasher hashing.Hasher) *Postgres {
	return &Postgres{db: db, hasher: hasher}
}

var _ Ledger = (*Postgres)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_config (
    name  TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_policies (
    key             BYTEA PRIMARY KEY,
    wallet_id       TEXT NOT NULL,
    content_digest  BYTEA NOT NULL,
    registered_at   TIMESTAMPTZ NOT NULL,
    registered_by   TEXT NOT NULL,
    active          BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_transactions (
    key           BYTEA PRIMARY KEY,
    wallet_id     TEXT NOT NULL,
    tx_id         TEXT NOT NULL,
    decision      TEXT NOT NULL,
    policy_digest BYTEA NOT NULL,
    logged_at     TIMESTAMPTZ NOT NULL,
    logged_by     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_violations (
    key           BYTEA PRIMARY KEY,
    tx_id         TEXT NOT NULL,
    reason_digest BYTEA NOT NULL,
    penalty       TEXT NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL,
    recorded_by   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_clawbacks (
    key            BYTEA PRIMARY KEY,
    original_tx_id TEXT NOT NULL,
    clawback_tx_id TEXT NOT NULL,
    reason_digest  BYTEA NOT NULL,
    executed_at    TIMESTAMPTZ NOT NULL,
    executed_by    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS escrow_rules (
    id         BYTEA PRIMARY KEY,
    sender     TEXT NOT NULL,
    receiver   TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    expiry     TIMESTAMPTZ NOT NULL,
    claimed    BOOLEAN NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS escrow_rules_sender_idx ON escrow_rules (sender);
CREATE INDEX IF NOT EXISTS escrow_rules_receiver_idx ON escrow_rules (receiver);
CREATE TABLE IF NOT EXISTS ledger_balances (
    address TEXT PRIMARY KEY,
    amount  BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_blocks (
    height     BIGINT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_events (
    seq        BIGINT PRIMARY KEY,
    block      BIGINT NOT NULL REFERENCES ledger_blocks (height),
    entry_hash BYTEA NOT NULL,
    prev_hash  BYTEA NOT NULL,
    payload    JSONB NOT NULL
);
`

// EnsureSchema creates the ledger tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// Seed installs the signer and admin identities if none are configured yet.
func (p *Postgres) Seed(ctx context.Context, signer, admin domain.Address) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ledger_config (name, value) VALUES
		   ('signer', $1), ('admin', $2)
		 ON CONFLICT (name) DO NOTHING`,
		domain.NormalizeAddress(signer.String()).String(),
		domain.NormalizeAddress(admin.String()).String(),
	)
	if err != nil {
		return fmt.Errorf("seed ledger identities: %w", err)
	}
	return nil
}

// mutate runs fn inside one transaction holding the ledger advisory lock.
// Connection-level failures surface as sentinel.ErrUnavailable so the bridge
// can classify them.
func (p *Postgres) mutate(ctx context.Context, fn func(tx *sql.Tx) (Receipt, error)) (Receipt, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return Receipt{}, unavailable(err)
	}
	receipt, err := fn(tx)
	if err != nil {
		return Receipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Receipt{}, unavailable(err)
	}
	return receipt, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}

func (p *Postgres) configAddress(ctx context.Context, tx *sql.Tx, name string) (domain.Address, error) {
	var value string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM ledger_config WHERE name = $1`, name).Scan(&value); err != nil {
		return "", unavailable(err)
	}
	return domain.Address(value), nil
}

func (p *Postgres) requireSigner(ctx context.Context, tx *sql.Tx, caller domain.Address) error {
	signer, err := p.configAddress(ctx, tx, "signer")
	if err != nil {
		return err
	}
	if !caller.Equal(signer) {
		return sentinel.ErrUnauthorized
	}
	return nil
}

func (p *Postgres) requireAdmin(ctx context.Context, tx *sql.Tx, caller domain.Address) error {
	admin, err := p.configAddress(ctx, tx, "admin")
	if err != nil {
		return err
	}
	if !caller.Equal(admin) {
		return sentinel.ErrUnauthorized
	}
	return nil
}

// appendEvent opens a new block at now and appends the chained event, all
// within the caller's transaction.
func (p *Postgres) appendEvent(ctx context.Context, tx *sql.Tx, now time.Time, evt models.Event) (Receipt, error) {
	var seq uint64
	var prev []byte
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0),
		        COALESCE((SELECT entry_hash FROM ledger_events ORDER BY seq DESC LIMIT 1), $1)
		   FROM ledger_events`, make([]byte, domain.DigestSize)).Scan(&seq, &prev)
	if err != nil {
		return Receipt{}, unavailable(err)
	}

	evt.Seq = seq
	evt.Block = seq // one block per mutation
	copy(evt.PrevHash[:], prev)

	payload, err := json.Marshal(evt)
	if err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "marshal ledger event")
	}
	evt.EntryHash = p.hasher.Chain(evt.PrevHash, payload)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_blocks (height, created_at) VALUES ($1, $2)`,
		evt.Block, now); err != nil {
		return Receipt{}, unavailable(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_events (seq, block, entry_hash, prev_hash, payload) VALUES ($1, $2, $3, $4, $5)`,
		evt.Seq, evt.Block, evt.EntryHash[:], evt.PrevHash[:], payload); err != nil {
		return Receipt{}, unavailable(err)
	}
	return Receipt{Seq: evt.Seq, Block: evt.Block}, nil
}

func (p *Postgres) keyTaken(ctx context.Context, tx *sql.Tx, table string, key domain.Digest) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1)`, table)
	if err := tx.QueryRowContext(ctx, query, key[:]).Scan(&exists); err != nil {
		return unavailable(err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	return nil
}

func (p *Postgres) RegisterPolicy(ctx context.Context, caller domain.Address, walletID string, contentDigest domain.Digest) (Receipt, error) {
	if walletID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "wallet id is required")
	}
	if contentDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "content digest must not be zero")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		if err := p.requireSigner(ctx, tx, caller); err != nil {
			return Receipt{}, err
		}
		key := p.hasher.DigestString(walletID)
		if err := p.keyTaken(ctx, tx, "ledger_policies", key); err != nil {
			return Receipt{}, err
		}
		now := requestcontext.Now(ctx)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_policies (key, wallet_id, content_digest, registered_at, registered_by, active)
			 VALUES ($1, $2, $3, $4, $5, TRUE)`,
			key[:], walletID, contentDigest[:], now, caller.String()); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, now, models.Event{
			Kind:     models.EventPolicyRegistered,
			Actor:    caller,
			WalletID: walletID,
			Digest:   contentDigest,
		})
	})
}

func (p *Postgres) LogTransaction(ctx context.Context, caller domain.Address, walletID, txID string, decision models.Decision, policyDigest domain.Digest) (Receipt, error) {
	if walletID == "" || txID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "wallet id and tx id are required")
	}
	if policyDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "policy digest must not be zero")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		if err := p.requireSigner(ctx, tx, caller); err != nil {
			return Receipt{}, err
		}
		key := p.hasher.DigestString(txID)
		if err := p.keyTaken(ctx, tx, "ledger_transactions", key); err != nil {
			return Receipt{}, err
		}
		now := requestcontext.Now(ctx)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_transactions (key, wallet_id, tx_id, decision, policy_digest, logged_at, logged_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			key[:], walletID, txID, string(decision), policyDigest[:], now, caller.String()); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, now, models.Event{
			Kind:     models.EventTransactionLogged,
			Actor:    caller,
			WalletID: walletID,
			TxID:     txID,
			Decision: decision,
			Digest:   policyDigest,
		})
	})
}

func (p *Postgres) RecordViolation(ctx context.Context, caller domain.Address, txID string, reasonDigest domain.Digest, penalty string) (Receipt, error) {
	if txID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "tx id is required")
	}
	if reasonDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "reason digest must not be zero")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		if err := p.requireSigner(ctx, tx, caller); err != nil {
			return Receipt{}, err
		}
		key := p.hasher.DigestString(txID)
		if err := p.keyTaken(ctx, tx, "ledger_violations", key); err != nil {
			return Receipt{}, err
		}
		now := requestcontext.Now(ctx)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_violations (key, tx_id, reason_digest, penalty, recorded_at, recorded_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			key[:], txID, reasonDigest[:], penalty, now, caller.String()); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, now, models.Event{
			Kind:   models.EventViolationRecorded,
			Actor:  caller,
			TxID:   txID,
			Digest: reasonDigest,
		})
	})
}

func (p *Postgres) LogClawback(ctx context.Context, caller domain.Address, originalTxID, clawbackTxID string, reasonDigest domain.Digest) (Receipt, error) {
	if originalTxID == "" || clawbackTxID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "original and clawback tx ids are required")
	}
	if reasonDigest.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "reason digest must not be zero")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		if err := p.requireSigner(ctx, tx, caller); err != nil {
			return Receipt{}, err
		}
		key := p.hasher.DigestString(clawbackTxID)
		if err := p.keyTaken(ctx, tx, "ledger_clawbacks", key); err != nil {
			return Receipt{}, err
		}
		now := requestcontext.Now(ctx)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_clawbacks (key, original_tx_id, clawback_tx_id, reason_digest, executed_at, executed_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			key[:], originalTxID, clawbackTxID, reasonDigest[:], now, caller.String()); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, now, models.Event{
			Kind:         models.EventClawbackExecuted,
			Actor:        caller,
			OriginalTxID: originalTxID,
			ClawbackTxID: clawbackTxID,
			Digest:       reasonDigest,
		})
	})
}

func (p *Postgres) RotateAuthorizedSigner(ctx context.Context, caller, newSigner domain.Address) (Receipt, error) {
	if newSigner.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "new signer address is required")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		if err := p.requireAdmin(ctx, tx, caller); err != nil {
			return Receipt{}, err
		}
		normalized := domain.NormalizeAddress(newSigner.String())
		if _, err := tx.ExecContext(ctx,
			`UPDATE ledger_config SET value = $1 WHERE name = 'signer'`,
			normalized.String()); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, requestcontext.Now(ctx), models.Event{
			Kind:     models.EventSignerRotated,
			Actor:    caller,
			Receiver: normalized,
		})
	})
}

func (p *Postgres) GetPolicy(ctx context.Context, walletID string) (models.Policy, error) {
	key := p.hasher.DigestString(walletID)
	var rec models.Policy
	var digest []byte
	var by string
	err := p.db.QueryRowContext(ctx,
		`SELECT wallet_id, content_digest, registered_at, registered_by, active
		   FROM ledger_policies WHERE key = $1`, key[:]).
		Scan(&rec.WalletID, &digest, &rec.RegisteredAt, &by, &rec.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Policy{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Policy{}, unavailable(err)
	}
	copy(rec.ContentDigest[:], digest)
	rec.RegisteredBy = domain.Address(by)
	return rec, nil
}

func (p *Postgres) GetTransactionLog(ctx context.Context, txID string) (models.TransactionLog, error) {
	key := p.hasher.DigestString(txID)
	var rec models.TransactionLog
	var decision string
	var digest []byte
	var by string
	err := p.db.QueryRowContext(ctx,
		`SELECT wallet_id, tx_id, decision, policy_digest, logged_at, logged_by
		   FROM ledger_transactions WHERE key = $1`, key[:]).
		Scan(&rec.WalletID, &rec.TxID, &decision, &digest, &rec.LoggedAt, &by)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TransactionLog{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.TransactionLog{}, unavailable(err)
	}
	rec.Decision = models.Decision(decision)
	copy(rec.PolicyDigest[:], digest)
	rec.LoggedBy = domain.Address(by)
	return rec, nil
}

func (p *Postgres) GetViolationRecord(ctx context.Context, txID string) (models.ViolationRecord, error) {
	key := p.hasher.DigestString(txID)
	var rec models.ViolationRecord
	var digest []byte
	var by string
	err := p.db.QueryRowContext(ctx,
		`SELECT tx_id, reason_digest, penalty, recorded_at, recorded_by
		   FROM ledger_violations WHERE key = $1`, key[:]).
		Scan(&rec.TxID, &digest, &rec.Penalty, &rec.RecordedAt, &by)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ViolationRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.ViolationRecord{}, unavailable(err)
	}
	copy(rec.ReasonDigest[:], digest)
	rec.RecordedBy = domain.Address(by)
	return rec, nil
}

func (p *Postgres) GetClawbackRecord(ctx context.Context, clawbackTxID string) (models.ClawbackRecord, error) {
	key := p.hasher.DigestString(clawbackTxID)
	var rec models.ClawbackRecord
	var digest []byte
	var by string
	err := p.db.QueryRowContext(ctx,
		`SELECT original_tx_id, clawback_tx_id, reason_digest, executed_at, executed_by
		   FROM ledger_clawbacks WHERE key = $1`, key[:]).
		Scan(&rec.OriginalTxID, &rec.ClawbackTxID, &digest, &rec.ExecutedAt, &by)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ClawbackRecord{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.ClawbackRecord{}, unavailable(err)
	}
	copy(rec.ReasonDigest[:], digest)
	rec.ExecutedBy = domain.Address(by)
	return rec, nil
}

func (p *Postgres) CreateRule(ctx context.Context, sender, receiver domain.Address, amount int64, expiresIn time.Duration) (Receipt, error) {
	if amount <= 0 {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}
	if receiver.IsZero() || sender.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "sender and receiver addresses are required")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT amount FROM ledger_balances WHERE address = $1`, sender.String()).Scan(&balance)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Receipt{}, unavailable(err)
		}
		if balance < amount {
			return Receipt{}, sentinel.ErrInsufficientFunds
		}

		var seq uint64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM ledger_events`).Scan(&seq); err != nil {
			return Receipt{}, unavailable(err)
		}
		var nonce uint64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM escrow_rules`).Scan(&nonce); err != nil {
			return Receipt{}, unavailable(err)
		}
		d, err := p.hasher.DigestFields(map[string]any{
			"sender":   sender.String(),
			"receiver": receiver.String(),
			"amount":   amount,
			"seq":      seq,
			"nonce":    nonce + 1,
		})
		if err != nil {
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "derive rule id")
		}
		ruleID := domain.RuleID(d)

		now := requestcontext.Now(ctx)
		expiry := now.Add(expiresIn)
		if _, err := tx.ExecContext(ctx,
			`UPDATE ledger_balances SET amount = amount - $1 WHERE address = $2`,
			amount, sender.String()); err != nil {
			return Receipt{}, unavailable(err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO escrow_rules (id, sender, receiver, amount, expiry, claimed, created_at)
			 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
			ruleID[:], sender.String(), receiver.String(), amount, expiry, now); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, now, models.Event{
			Kind:     models.EventRuleCreated,
			Actor:    sender,
			RuleID:   ruleID,
			Sender:   sender,
			Receiver: receiver,
			Amount:   amount,
			Expiry:   expiry,
		})
	})
}

func (p *Postgres) ClaimRule(ctx context.Context, caller domain.Address, ruleID domain.RuleID) (Receipt, error) {
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		var receiver string
		var amount int64
		var expiry time.Time
		var claimed bool
		err := tx.QueryRowContext(ctx,
			`SELECT receiver, amount, expiry, claimed FROM escrow_rules WHERE id = $1`, ruleID[:]).
			Scan(&receiver, &amount, &expiry, &claimed)
		if errors.Is(err, sql.ErrNoRows) {
			return Receipt{}, sentinel.ErrNotFound
		}
		if err != nil {
			return Receipt{}, unavailable(err)
		}
		if !caller.Equal(domain.Address(receiver)) {
			return Receipt{}, sentinel.ErrUnauthorized
		}
		if claimed {
			return Receipt{}, sentinel.ErrAlreadyClaimed
		}
		now := requestcontext.Now(ctx)
		if !now.Before(expiry) {
			return Receipt{}, sentinel.ErrExpired
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE escrow_rules SET claimed = TRUE WHERE id = $1`, ruleID[:]); err != nil {
			return Receipt{}, unavailable(err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_balances (address, amount) VALUES ($1, $2)
			 ON CONFLICT (address) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount`,
			receiver, amount); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, now, models.Event{
			Kind:     models.EventRuleClaimed,
			Actor:    caller,
			RuleID:   ruleID,
			Receiver: domain.Address(receiver),
			Amount:   amount,
		})
	})
}

func (p *Postgres) GetRule(ctx context.Context, ruleID domain.RuleID) (models.EscrowRule, error) {
	var rule models.EscrowRule
	var sender, receiver string
	err := p.db.QueryRowContext(ctx,
		`SELECT sender, receiver, amount, expiry, claimed, created_at
		   FROM escrow_rules WHERE id = $1`, ruleID[:]).
		Scan(&sender, &receiver, &rule.Amount, &rule.Expiry, &rule.Claimed, &rule.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EscrowRule{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.EscrowRule{}, unavailable(err)
	}
	rule.ID = ruleID
	rule.Sender = domain.Address(sender)
	rule.Receiver = domain.Address(receiver)
	return rule, nil
}

func (p *Postgres) RuleStatus(ctx context.Context, ruleID domain.RuleID) (models.RuleStatus, error) {
	rule, err := p.GetRule(ctx, ruleID)
	if err != nil {
		return "", err
	}
	return rule.StatusAt(requestcontext.Now(ctx)), nil
}

func (p *Postgres) ListRulesFor(ctx context.Context, addr domain.Address) ([]models.RuleWithStatus, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, sender, receiver, amount, expiry, claimed, created_at
		   FROM escrow_rules WHERE sender = $1 OR receiver = $1
		  ORDER BY created_at`, addr.String())
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	now := requestcontext.Now(ctx)
	out := []models.RuleWithStatus{}
	for rows.Next() {
		var rule models.EscrowRule
		var id []byte
		var sender, receiver string
		if err := rows.Scan(&id, &sender, &receiver, &rule.Amount, &rule.Expiry, &rule.Claimed, &rule.CreatedAt); err != nil {
			return nil, unavailable(err)
		}
		copy(rule.ID[:], id)
		rule.Sender = domain.Address(sender)
		rule.Receiver = domain.Address(receiver)
		out = append(out, models.RuleWithStatus{Rule: rule, Status: rule.StatusAt(now)})
	}
	return out, rows.Err()
}

func (p *Postgres) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx,
		`SELECT amount FROM ledger_balances WHERE address = $1`, addr.String()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return balance, nil
}

func (p *Postgres) Credit(ctx context.Context, caller, addr domain.Address, amount int64) (Receipt, error) {
	if amount <= 0 {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "amount must be positive")
	}
	if addr.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidArgument, "address is required")
	}
	return p.mutate(ctx, func(tx *sql.Tx) (Receipt, error) {
		if err := p.requireAdmin(ctx, tx, caller); err != nil {
			return Receipt{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_balances (address, amount) VALUES ($1, $2)
			 ON CONFLICT (address) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount`,
			addr.String(), amount); err != nil {
			return Receipt{}, unavailable(err)
		}
		return p.appendEvent(ctx, tx, requestcontext.Now(ctx), models.Event{
			Kind:     models.EventBalanceCredited,
			Actor:    caller,
			Receiver: addr,
			Amount:   amount,
		})
	})
}

func (p *Postgres) Events(ctx context.Context, fromSeq uint64, limit int) ([]models.Event, error) {
	query := `SELECT payload, entry_hash FROM ledger_events WHERE seq >= $1 ORDER BY seq`
	args := []any{fromSeq}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var payload []byte
		var entryHash []byte
		if err := rows.Scan(&payload, &entryHash); err != nil {
			return nil, unavailable(err)
		}
		var evt models.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode ledger event")
		}
		copy(evt.EntryHash[:], entryHash)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (p *Postgres) EventAt(ctx context.Context, seq uint64) (models.Event, error) {
	var payload, entryHash []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload, entry_hash FROM ledger_events WHERE seq = $1`, seq).Scan(&payload, &entryHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Event{}, unavailable(err)
	}
	var evt models.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return models.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode ledger event")
	}
	copy(evt.EntryHash[:], entryHash)
	return evt, nil
}

func (p *Postgres) BlockTime(ctx context.Context, height uint64) (time.Time, error) {
	var t time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT created_at FROM ledger_blocks WHERE height = $1`, height).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, sentinel.ErrNotFound
	}
	if err != nil {
		return time.Time{}, unavailable(err)
	}
	return t, nil
}

func (p *Postgres) Head(ctx context.Context) (uint64, error) {
	var head uint64
	if err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM ledger_events`).Scan(&head); err != nil {
		return 0, unavailable(err)
	}
	return head, nil
}
