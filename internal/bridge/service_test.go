package bridge_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerguard/internal/bridge"
	"ledgerguard/internal/ledger/models"
	"ledgerguard/internal/ledger/store"
	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/hashing"
	"ledgerguard/pkg/platform/sentinel"
	"ledgerguard/pkg/requestcontext"
)

const (
	signerAddr   = domain.Address("0xaaaa000000000000000000000000000000000001")
	claimantAddr = domain.Address("0xbbbb000000000000000000000000000000000002")
	adminAddr    = domain.Address("0xcccc000000000000000000000000000000000003")
	strangerAddr = domain.Address("0xdddd000000000000000000000000000000000004")
)

type BridgeServiceSuite struct {
	suite.Suite
	ledger *store.InMemory
	svc    *bridge.Service
}

func TestBridgeServiceSuite(t *testing.T) {
	suite.Run(t, new(BridgeServiceSuite))
}

func (s *BridgeServiceSuite) SetupTest() {
	s.ledger = store.NewInMemory(hashing.SHA256{}, signerAddr, adminAddr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = bridge.NewService(s.ledger, logger,
		bridge.WithConfirmTimeout(time.Second),
		bridge.WithPollInterval(time.Millisecond),
	)
}

func (s *BridgeServiceSuite) as(addr domain.Address) context.Context {
	return requestcontext.WithCaller(context.Background(), addr)
}

func (s *BridgeServiceSuite) digest(seed string) domain.Digest {
	return hashing.SHA256{}.DigestString(seed)
}

func (s *BridgeServiceSuite) TestRegisterPolicyConfirmed() {
	receipt, err := s.svc.RegisterPolicy(s.as(signerAddr), "wallet-1", s.digest("policy"))
	s.Require().NoError(err)
	s.Equal(uint64(0), receipt.Seq)

	policy, err := s.svc.Policy(context.Background(), "wallet-1")
	s.Require().NoError(err)
	s.Equal("wallet-1", policy.WalletID)
}

func (s *BridgeServiceSuite) TestMissingCallerRejected() {
	_, err := s.svc.RegisterPolicy(context.Background(), "wallet-1", s.digest("policy"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *BridgeServiceSuite) TestSentinelTranslation() {
	ctx := s.as(signerAddr)
	_, err := s.svc.RegisterPolicy(ctx, "wallet-1", s.digest("policy"))
	s.Require().NoError(err)

	s.Run("duplicate maps to already_exists", func() {
		_, err := s.svc.RegisterPolicy(ctx, "wallet-1", s.digest("other"))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})
	s.Run("wrong signer maps to unauthorized", func() {
		_, err := s.svc.RegisterPolicy(s.as(strangerAddr), "wallet-2", s.digest("policy"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
	s.Run("absent record maps to not_found", func() {
		_, err := s.svc.Policy(context.Background(), "wallet-missing")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("empty escrow maps to insufficient_funds", func() {
		_, err := s.svc.CreateEscrowRule(ctx, claimantAddr, 100, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})
}

func (s *BridgeServiceSuite) TestEscrowRuleExtraction() {
	_, err := s.svc.CreditBalance(s.as(adminAddr), signerAddr, 500)
	s.Require().NoError(err)

	created, err := s.svc.CreateEscrowRule(s.as(signerAddr), claimantAddr, 200, time.Hour)
	s.Require().NoError(err)
	s.False(created.RuleID == domain.RuleID{})
	s.False(created.Expiry.IsZero())

	rule, err := s.svc.Rule(context.Background(), created.RuleID)
	s.Require().NoError(err)
	s.Equal(models.RuleStatusActive, rule.Status)
	s.Equal(int64(200), rule.Rule.Amount)
}

func (s *BridgeServiceSuite) TestClaimRoleGate() {
	_, err := s.svc.CreditBalance(s.as(adminAddr), signerAddr, 500)
	s.Require().NoError(err)
	created, err := s.svc.CreateEscrowRule(s.as(signerAddr), claimantAddr, 200, time.Hour)
	s.Require().NoError(err)

	s.Run("stranger is rejected before submission", func() {
		head, err := s.ledger.Head(context.Background())
		s.Require().NoError(err)
		_, err = s.svc.ClaimEscrowRule(s.as(strangerAddr), created.RuleID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		after, err := s.ledger.Head(context.Background())
		s.Require().NoError(err)
		s.Equal(head, after)
	})
	s.Run("sender cannot claim its own rule", func() {
		_, err := s.svc.ClaimEscrowRule(s.as(signerAddr), created.RuleID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
	s.Run("receiver claims", func() {
		_, err := s.svc.ClaimEscrowRule(s.as(claimantAddr), created.RuleID)
		s.Require().NoError(err)
		balance, err := s.svc.Balance(context.Background(), claimantAddr)
		s.Require().NoError(err)
		s.Equal(int64(200), balance)
	})
	s.Run("second claim maps to already_claimed", func() {
		_, err := s.svc.ClaimEscrowRule(s.as(claimantAddr), created.RuleID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyClaimed))
	})
}

func (s *BridgeServiceSuite) TestClaimSelfEscrowedRule() {
	// A rule whose sender is also its receiver is claimable by that address.
	// The pre-flight gate must agree with the ledger's own receiver check.
	_, err := s.svc.CreditBalance(s.as(adminAddr), signerAddr, 500)
	s.Require().NoError(err)
	created, err := s.svc.CreateEscrowRule(s.as(signerAddr), signerAddr, 200, time.Hour)
	s.Require().NoError(err)

	_, err = s.svc.ClaimEscrowRule(s.as(signerAddr), created.RuleID)
	s.Require().NoError(err)

	balance, err := s.svc.Balance(context.Background(), signerAddr)
	s.Require().NoError(err)
	s.Equal(int64(500), balance)
}

func (s *BridgeServiceSuite) TestClaimExpiredRule() {
	_, err := s.svc.CreditBalance(s.as(adminAddr), signerAddr, 500)
	s.Require().NoError(err)
	created, err := s.svc.CreateEscrowRule(s.as(signerAddr), claimantAddr, 200, time.Hour)
	s.Require().NoError(err)

	later := requestcontext.WithTime(s.as(claimantAddr), time.Now().Add(2*time.Hour))
	_, err = s.svc.ClaimEscrowRule(later, created.RuleID)
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
}

// unconfirmedLedger accepts writes but never shows them in its event log.
type unconfirmedLedger struct {
	*store.InMemory
}

func (u *unconfirmedLedger) EventAt(_ context.Context, _ uint64) (models.Event, error) {
	return models.Event{}, sentinel.ErrNotFound
}

func (s *BridgeServiceSuite) TestConfirmTimeoutMapsToUnconfirmed() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := bridge.NewService(&unconfirmedLedger{s.ledger}, logger,
		bridge.WithConfirmTimeout(20*time.Millisecond),
		bridge.WithPollInterval(time.Millisecond),
	)
	_, err := svc.RegisterPolicy(s.as(signerAddr), "wallet-1", s.digest("policy"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnconfirmed))
}

// downLedger fails every call the way a lost connection would.
type downLedger struct {
	*store.InMemory
}

func (d *downLedger) RegisterPolicy(_ context.Context, _ domain.Address, _ string, _ domain.Digest) (store.Receipt, error) {
	return store.Receipt{}, sentinel.ErrUnavailable
}

func (s *BridgeServiceSuite) TestUnavailableMapsToUnreachable() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := bridge.NewService(&downLedger{s.ledger}, logger,
		bridge.WithConfirmTimeout(time.Second),
		bridge.WithPollInterval(time.Millisecond),
	)
	_, err := svc.RegisterPolicy(s.as(signerAddr), "wallet-1", s.digest("policy"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnreachable))
}
