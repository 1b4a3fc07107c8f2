package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerguard/internal/ledger/models"
	"ledgerguard/pkg/domain"
	"ledgerguard/pkg/platform/hashing"
	"ledgerguard/pkg/platform/sentinel"
	"ledgerguard/pkg/requestcontext"
)

const (
	issuerAddr   = domain.Address("issuer-01")
	claimantAddr = domain.Address("claimant-01")
	adminAddr    = domain.Address("admin-01")
)

func testDigest(b byte) domain.Digest {
	var d domain.Digest
	d[0] = b
	return d
}

type InMemoryLedgerSuite struct {
	suite.Suite
	ledger *InMemory
	ctx    context.Context
}

func TestInMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLedgerSuite))
}

func (s *InMemoryLedgerSuite) SetupTest() {
	s.ledger = NewInMemory(hashing.NewSHA256(), issuerAddr, adminAddr)
	s.ctx = context.Background()
}

func (s *InMemoryLedgerSuite) TestRegisterPolicy() {
	s.Run("writes once and emits one event", func() {
		receipt, err := s.ledger.RegisterPolicy(s.ctx, issuerAddr, "W1", testDigest(1))
		s.Require().NoError(err)
		s.Equal(uint64(0), receipt.Seq)

		rec, err := s.ledger.GetPolicy(s.ctx, "W1")
		s.Require().NoError(err)
		s.Equal("W1", rec.WalletID)
		s.Equal(testDigest(1), rec.ContentDigest)
		s.Equal(issuerAddr, rec.RegisteredBy)
		s.True(rec.Active)

		evt, err := s.ledger.EventAt(s.ctx, receipt.Seq)
		s.Require().NoError(err)
		s.Equal(models.EventPolicyRegistered, evt.Kind)
		s.Equal("W1", evt.WalletID)
	})

	s.Run("second registration for same wallet conflicts even with different content", func() {
		_, err := s.ledger.RegisterPolicy(s.ctx, issuerAddr, "W2", testDigest(1))
		s.Require().NoError(err)

		_, err = s.ledger.RegisterPolicy(s.ctx, issuerAddr, "W2", testDigest(2))
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		// The first registration is untouched.
		rec, err := s.ledger.GetPolicy(s.ctx, "W2")
		s.Require().NoError(err)
		s.Equal(testDigest(1), rec.ContentDigest)
	})

	s.Run("rejects non-signer caller", func() {
		_, err := s.ledger.RegisterPolicy(s.ctx, claimantAddr, "W3", testDigest(1))
		s.Require().ErrorIs(err, sentinel.ErrUnauthorized)
	})

	s.Run("rejects empty wallet id and zero digest", func() {
		_, err := s.ledger.RegisterPolicy(s.ctx, issuerAddr, "", testDigest(1))
		s.Require().Error(err)
		_, err = s.ledger.RegisterPolicy(s.ctx, issuerAddr, "W4", domain.Digest{})
		s.Require().Error(err)
	})
}

func (s *InMemoryLedgerSuite) TestSingleWritePerKeyAcrossFamilies() {
	// The same txID may carry a transaction log and a violation record, but
	// never two of either.
	_, err := s.ledger.LogTransaction(s.ctx, issuerAddr, "W1", "T1", models.DecisionApproved, testDigest(9))
	s.Require().NoError(err)
	_, err = s.ledger.LogTransaction(s.ctx, issuerAddr, "W1", "T1", models.DecisionBlocked, testDigest(9))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	_, err = s.ledger.RecordViolation(s.ctx, issuerAddr, "T1", testDigest(3), "freeze")
	s.Require().NoError(err)
	_, err = s.ledger.RecordViolation(s.ctx, issuerAddr, "T1", testDigest(4), "freeze")
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	_, err = s.ledger.LogClawback(s.ctx, issuerAddr, "T1", "C1", testDigest(5))
	s.Require().NoError(err)
	_, err = s.ledger.LogClawback(s.ctx, issuerAddr, "T1", "C1", testDigest(5))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryLedgerSuite) TestViolationNeedsNoTransactionLog() {
	// Intentional decoupling: a violation can be recorded for a txID that
	// was never logged.
	_, err := s.ledger.RecordViolation(s.ctx, issuerAddr, "never-logged", testDigest(3), "warn")
	s.Require().NoError(err)

	_, err = s.ledger.GetTransactionLog(s.ctx, "never-logged")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryLedgerSuite) TestGettersReturnNotFound() {
	_, err := s.ledger.GetPolicy(s.ctx, "absent")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.ledger.GetViolationRecord(s.ctx, "absent")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.ledger.GetClawbackRecord(s.ctx, "absent")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryLedgerSuite) TestRotateAuthorizedSigner() {
	newSigner := domain.Address("issuer-02")

	s.Run("only admin rotates", func() {
		_, err := s.ledger.RotateAuthorizedSigner(s.ctx, issuerAddr, newSigner)
		s.Require().ErrorIs(err, sentinel.ErrUnauthorized)
	})

	s.Run("writes shift to the new signer", func() {
		_, err := s.ledger.RotateAuthorizedSigner(s.ctx, adminAddr, newSigner)
		s.Require().NoError(err)

		_, err = s.ledger.RegisterPolicy(s.ctx, issuerAddr, "W1", testDigest(1))
		s.Require().ErrorIs(err, sentinel.ErrUnauthorized)

		_, err = s.ledger.RegisterPolicy(s.ctx, newSigner, "W1", testDigest(1))
		s.Require().NoError(err)
	})
}

func (s *InMemoryLedgerSuite) fund(addr domain.Address, amount int64) {
	_, err := s.ledger.Credit(s.ctx, adminAddr, addr, amount)
	s.Require().NoError(err)
}

func (s *InMemoryLedgerSuite) createRule(ctx context.Context, amount int64, expiresIn time.Duration) domain.RuleID {
	receipt, err := s.ledger.CreateRule(ctx, issuerAddr, claimantAddr, amount, expiresIn)
	s.Require().NoError(err)
	evt, err := s.ledger.EventAt(ctx, receipt.Seq)
	s.Require().NoError(err)
	s.Require().Equal(models.EventRuleCreated, evt.Kind)
	s.Require().False(evt.RuleID.IsZero())
	return evt.RuleID
}

func (s *InMemoryLedgerSuite) TestEscrowLifecycle() {
	s.fund(issuerAddr, 1000)
	start := time.Now()
	ctx := requestcontext.WithTime(s.ctx, start)

	ruleID := s.createRule(ctx, 100, time.Hour)

	s.Run("creation encumbers the sender and the rule is active", func() {
		balance, err := s.ledger.Balance(s.ctx, issuerAddr)
		s.Require().NoError(err)
		s.Equal(int64(900), balance)

		status, err := s.ledger.RuleStatus(ctx, ruleID)
		s.Require().NoError(err)
		s.Equal(models.RuleStatusActive, status)
	})

	s.Run("claim by anyone but the receiver is unauthorized regardless of timing", func() {
		_, err := s.ledger.ClaimRule(ctx, issuerAddr, ruleID)
		s.Require().ErrorIs(err, sentinel.ErrUnauthorized)
	})

	s.Run("receiver claims once at minute 30", func() {
		at := requestcontext.WithTime(s.ctx, start.Add(30*time.Minute))
		receipt, err := s.ledger.ClaimRule(at, claimantAddr, ruleID)
		s.Require().NoError(err)

		evt, err := s.ledger.EventAt(s.ctx, receipt.Seq)
		s.Require().NoError(err)
		s.Equal(models.EventRuleClaimed, evt.Kind)
		s.Equal(int64(100), evt.Amount)

		balance, err := s.ledger.Balance(s.ctx, claimantAddr)
		s.Require().NoError(err)
		s.Equal(int64(100), balance)

		status, err := s.ledger.RuleStatus(at, ruleID)
		s.Require().NoError(err)
		s.Equal(models.RuleStatusClaimed, status)
	})

	s.Run("second claim fails already-claimed", func() {
		at := requestcontext.WithTime(s.ctx, start.Add(31*time.Minute))
		_, err := s.ledger.ClaimRule(at, claimantAddr, ruleID)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyClaimed)

		// Claimed is terminal even long after the expiry.
		later := requestcontext.WithTime(s.ctx, start.Add(48*time.Hour))
		status, err := s.ledger.RuleStatus(later, ruleID)
		s.Require().NoError(err)
		s.Equal(models.RuleStatusClaimed, status)
	})
}

func (s *InMemoryLedgerSuite) TestEscrowExpiry() {
	s.fund(issuerAddr, 500)
	start := time.Now()
	ctx := requestcontext.WithTime(s.ctx, start)

	ruleID := s.createRule(ctx, 200, time.Second)

	s.Run("status flips to expired and stays there", func() {
		after := requestcontext.WithTime(s.ctx, start.Add(2*time.Second))
		for range 3 {
			status, err := s.ledger.RuleStatus(after, ruleID)
			s.Require().NoError(err)
			s.Equal(models.RuleStatusExpired, status)
		}
	})

	s.Run("claim after expiry fails expired", func() {
		after := requestcontext.WithTime(s.ctx, start.Add(2*time.Second))
		_, err := s.ledger.ClaimRule(after, claimantAddr, ruleID)
		s.Require().ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("expired and unclaimed funds remain locked", func() {
		// There is no refund path: the encumbered 200 returns to nobody.
		senderBalance, err := s.ledger.Balance(s.ctx, issuerAddr)
		s.Require().NoError(err)
		s.Equal(int64(300), senderBalance)

		receiverBalance, err := s.ledger.Balance(s.ctx, claimantAddr)
		s.Require().NoError(err)
		s.Equal(int64(0), receiverBalance)
	})
}

func (s *InMemoryLedgerSuite) TestCreateRuleValidation() {
	s.Run("rejects non-positive amount", func() {
		_, err := s.ledger.CreateRule(s.ctx, issuerAddr, claimantAddr, 0, time.Hour)
		s.Require().Error(err)
	})

	s.Run("rejects zero receiver", func() {
		_, err := s.ledger.CreateRule(s.ctx, issuerAddr, "", 10, time.Hour)
		s.Require().Error(err)
	})

	s.Run("rejects underfunded sender", func() {
		_, err := s.ledger.CreateRule(s.ctx, issuerAddr, claimantAddr, 10, time.Hour)
		s.Require().ErrorIs(err, sentinel.ErrInsufficientFunds)
	})

	s.Run("identical parameters in the same instant yield distinct rule ids", func() {
		s.fund(issuerAddr, 100)
		ctx := requestcontext.WithTime(s.ctx, time.Now())
		first := s.createRule(ctx, 50, time.Hour)
		second := s.createRule(ctx, 50, time.Hour)
		s.NotEqual(first, second)
	})
}

func (s *InMemoryLedgerSuite) TestListRulesFor() {
	s.fund(issuerAddr, 300)
	ctx := requestcontext.WithTime(s.ctx, time.Now())
	first := s.createRule(ctx, 100, time.Hour)
	second := s.createRule(ctx, 100, time.Hour)

	senderRules, err := s.ledger.ListRulesFor(ctx, issuerAddr)
	s.Require().NoError(err)
	s.Len(senderRules, 2)

	receiverRules, err := s.ledger.ListRulesFor(ctx, claimantAddr)
	s.Require().NoError(err)
	s.Len(receiverRules, 2)
	s.Equal(first, receiverRules[0].Rule.ID)
	s.Equal(second, receiverRules[1].Rule.ID)
	s.Equal(models.RuleStatusActive, receiverRules[0].Status)

	none, err := s.ledger.ListRulesFor(ctx, "stranger")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *InMemoryLedgerSuite) TestEventLogChainsAndBlocks() {
	_, err := s.ledger.RegisterPolicy(s.ctx, issuerAddr, "W1", testDigest(1))
	s.Require().NoError(err)
	_, err = s.ledger.LogTransaction(s.ctx, issuerAddr, "W1", "T1", models.DecisionApproved, testDigest(1))
	s.Require().NoError(err)

	events, err := s.ledger.Events(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 2)

	s.Equal(uint64(0), events[0].Seq)
	s.Equal(uint64(1), events[1].Seq)
	s.Equal(events[0].EntryHash, events[1].PrevHash, "entries chain")
	s.False(events[0].EntryHash.IsZero())

	head, err := s.ledger.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), head)

	// One block per mutation, each with its own timestamp.
	_, err = s.ledger.BlockTime(s.ctx, events[1].Block)
	s.Require().NoError(err)
	_, err = s.ledger.BlockTime(s.ctx, 99)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	// Paging.
	page, err := s.ledger.Events(s.ctx, 1, 5)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(models.EventTransactionLogged, page[0].Kind)
}
