// Package bridge is the service boundary between transport handlers and the
// ledger. Every mutation goes through the same lifecycle: submit, wait for
// the entry to be confirmed in the event log, then extract any generated
// identifiers from the confirmed event. Failures are translated onto the
// coded error taxonomy with their messages sanitized.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ledgerguard/internal/ledger/models"
	"ledgerguard/internal/ledger/store"
	"ledgerguard/internal/roles"
	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/sentinel"
	"ledgerguard/pkg/requestcontext"
)

const (
	defaultConfirmTimeout = 10 * time.Second
	defaultPollInterval   = 50 * time.Millisecond
)

// Service mediates between callers and a Ledger.
type Service struct {
	ledger         store.Ledger
	logger         *slog.Logger
	metrics        *Metrics
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithConfirmTimeout bounds how long a submission may wait for its log entry.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) { s.confirmTimeout = d }
}

// WithPollInterval sets the confirmation polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithMetrics wires submission counters and confirmation latency.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(ledger store.Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:         ledger,
		logger:         logger.With("component", "bridge"),
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatedRule is the confirmed result of an escrow rule submission.
type CreatedRule struct {
	RuleID  domain.RuleID `json:"rule_id"`
	Expiry  time.Time     `json:"expiry"`
	Receipt store.Receipt `json:"receipt"`
}

// submit runs one mutation through the full lifecycle.
func (s *Service) submit(ctx context.Context, op string, fn func(ctx context.Context) (store.Receipt, error)) (store.Receipt, error) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	receipt, err := fn(cctx)
	if err == nil {
		err = s.confirm(cctx, receipt)
	}
	if err != nil {
		translated := translate(err)
		s.count(op, dErrors.CodeOf(translated).String())
		s.logger.Warn("submission failed", "operation", op, "error_code", dErrors.CodeOf(translated).String())
		return store.Receipt{}, translated
	}

	s.count(op, "confirmed")
	if s.metrics != nil {
		s.metrics.ConfirmLatency.Observe(time.Since(start).Seconds())
	}
	s.logger.Info("submission confirmed", "operation", op, "seq", receipt.Seq, "block", receipt.Block)
	return receipt, nil
}

// confirm polls the event log until the receipt's entry is readable. A
// deadline here surfaces as an unconfirmed submission, not a failure: the
// entry may still land.
func (s *Service) confirm(ctx context.Context, receipt store.Receipt) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		_, err := s.ledger.EventAt(ctx, receipt.Seq)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, sentinel.ErrNotFound):
			// not visible yet, keep polling
		default:
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) count(op, outcome string) {
	if s.metrics != nil {
		s.metrics.Submissions.WithLabelValues(op, outcome).Inc()
	}
}

func (s *Service) caller(ctx context.Context) (domain.Address, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity is missing")
	}
	return caller, nil
}

func (s *Service) RegisterPolicy(ctx context.Context, walletID string, contentDigest domain.Digest) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	return s.submit(ctx, "register_policy", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.RegisterPolicy(ctx, caller, walletID, contentDigest)
	})
}

func (s *Service) LogTransaction(ctx context.Context, walletID, txID string, decision models.Decision, policyDigest domain.Digest) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	return s.submit(ctx, "log_transaction", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.LogTransaction(ctx, caller, walletID, txID, decision, policyDigest)
	})
}

func (s *Service) RecordViolation(ctx context.Context, txID string, reasonDigest domain.Digest, penalty string) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	return s.submit(ctx, "record_violation", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.RecordViolation(ctx, caller, txID, reasonDigest, penalty)
	})
}

func (s *Service) LogClawback(ctx context.Context, originalTxID, clawbackTxID string, reasonDigest domain.Digest) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	return s.submit(ctx, "log_clawback", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.LogClawback(ctx, caller, originalTxID, clawbackTxID, reasonDigest)
	})
}

func (s *Service) RotateSigner(ctx context.Context, newSigner domain.Address) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	return s.submit(ctx, "rotate_signer", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.RotateAuthorizedSigner(ctx, caller, newSigner)
	})
}

func (s *Service) CreditBalance(ctx context.Context, addr domain.Address, amount int64) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	return s.submit(ctx, "credit_balance", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.Credit(ctx, caller, addr, amount)
	})
}

// CreateEscrowRule submits a rule on behalf of the caller and reads the
// generated identifier back out of the confirmed event.
func (s *Service) CreateEscrowRule(ctx context.Context, receiver domain.Address, amount int64, expiresIn time.Duration) (CreatedRule, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return CreatedRule{}, err
	}
	if expiresIn <= 0 {
		return CreatedRule{}, dErrors.New(dErrors.CodeInvalidArgument, "expiry window must be positive")
	}
	receipt, err := s.submit(ctx, "create_rule", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.CreateRule(ctx, caller, receiver, amount, expiresIn)
	})
	if err != nil {
		return CreatedRule{}, err
	}
	evt, err := s.ledger.EventAt(ctx, receipt.Seq)
	if err != nil {
		return CreatedRule{}, translate(err)
	}
	return CreatedRule{RuleID: evt.RuleID, Expiry: evt.Expiry, Receipt: receipt}, nil
}

// ClaimEscrowRule resolves the caller's role before submitting, so an
// address that is no party to the rule never reaches the ledger.
func (s *Service) ClaimEscrowRule(ctx context.Context, ruleID domain.RuleID) (store.Receipt, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return store.Receipt{}, err
	}
	rule, err := s.ledger.GetRule(ctx, ruleID)
	if err != nil {
		return store.Receipt{}, translate(err)
	}
	if !roles.CanClaim(caller, rule.Sender, rule.Receiver) {
		s.count("claim_rule", dErrors.CodeUnauthorized.String())
		return store.Receipt{}, dErrors.New(dErrors.CodeUnauthorized, "caller is not the rule's receiver")
	}
	return s.submit(ctx, "claim_rule", func(ctx context.Context) (store.Receipt, error) {
		return s.ledger.ClaimRule(ctx, caller, ruleID)
	})
}

func (s *Service) Policy(ctx context.Context, walletID string) (models.Policy, error) {
	rec, err := s.ledger.GetPolicy(ctx, walletID)
	if err != nil {
		return models.Policy{}, translate(err)
	}
	return rec, nil
}

func (s *Service) TransactionLog(ctx context.Context, txID string) (models.TransactionLog, error) {
	rec, err := s.ledger.GetTransactionLog(ctx, txID)
	if err != nil {
		return models.TransactionLog{}, translate(err)
	}
	return rec, nil
}

func (s *Service) ViolationRecord(ctx context.Context, txID string) (models.ViolationRecord, error) {
	rec, err := s.ledger.GetViolationRecord(ctx, txID)
	if err != nil {
		return models.ViolationRecord{}, translate(err)
	}
	return rec, nil
}

func (s *Service) ClawbackRecord(ctx context.Context, clawbackTxID string) (models.ClawbackRecord, error) {
	rec, err := s.ledger.GetClawbackRecord(ctx, clawbackTxID)
	if err != nil {
		return models.ClawbackRecord{}, translate(err)
	}
	return rec, nil
}

func (s *Service) Rule(ctx context.Context, ruleID domain.RuleID) (models.RuleWithStatus, error) {
	rule, err := s.ledger.GetRule(ctx, ruleID)
	if err != nil {
		return models.RuleWithStatus{}, translate(err)
	}
	status, err := s.ledger.RuleStatus(ctx, ruleID)
	if err != nil {
		return models.RuleWithStatus{}, translate(err)
	}
	return models.RuleWithStatus{Rule: rule, Status: status}, nil
}

func (s *Service) RulesFor(ctx context.Context, addr domain.Address) ([]models.RuleWithStatus, error) {
	rules, err := s.ledger.ListRulesFor(ctx, addr)
	if err != nil {
		return nil, translate(err)
	}
	return rules, nil
}

func (s *Service) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	balance, err := s.ledger.Balance(ctx, addr)
	if err != nil {
		return 0, translate(err)
	}
	return balance, nil
}
