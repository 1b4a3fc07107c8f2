package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"ledgerguard/internal/audit"
	"ledgerguard/internal/bridge"
	"ledgerguard/internal/jwttoken"
	"ledgerguard/internal/ledger/store"
	transport "ledgerguard/internal/transport/http"
	"ledgerguard/pkg/domain"
	"ledgerguard/pkg/platform/hashing"
)

const (
	signerAddr   = domain.Address("0xaaaa000000000000000000000000000000000001")
	claimantAddr = domain.Address("0xbbbb000000000000000000000000000000000002")
	adminAddr    = domain.Address("0xcccc000000000000000000000000000000000003")

	adminToken = "test-admin-token"
)

type APISuite struct {
	suite.Suite
	router http.Handler
	jwt    *jwttoken.JWTService
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := store.NewInMemory(hashing.SHA256{}, signerAddr, adminAddr)
	bridgeSvc := bridge.NewService(ledger, logger,
		bridge.WithConfirmTimeout(time.Second),
		bridge.WithPollInterval(time.Millisecond),
	)
	recon := audit.NewReconstructor(ledger, hashing.SHA256{}, logger)
	s.jwt = jwttoken.NewJWTService("test-signing-key", "test-issuer", "test-audience")

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	s.Require().NoError(err)

	handler := transport.New(bridgeSvc, recon, logger, func(context.Context) error { return nil })
	s.router = handler.Router(s.jwt, string(hash))
}

func (s *APISuite) token(addr domain.Address) string {
	token, err := s.jwt.GenerateAccessToken(addr, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *APISuite) do(method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func asCaller(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withAdminToken(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("X-Admin-Token", token) }
}

func (s *APISuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *APISuite) digestHex(seed string) string {
	return hashing.SHA256{}.DigestString(seed).String()
}

func (s *APISuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestMissingTokenRejected() {
	rec := s.do(http.MethodGet, "/v1/policies/wallet-1", nil)
	s.Equal(http.StatusForbidden, rec.Code)

	var body map[string]string
	s.decode(rec, &body)
	s.Equal("unauthorized", body["error"])
}

func (s *APISuite) TestPolicyRoundTrip() {
	token := s.token(signerAddr)

	rec := s.do(http.MethodPost, "/v1/policies", map[string]string{
		"wallet_id":      "wallet-1",
		"content_digest": s.digestHex("policy"),
	}, asCaller(token))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var receipt struct {
		Seq   uint64 `json:"seq"`
		Block uint64 `json:"block"`
	}
	s.decode(rec, &receipt)
	s.Equal(uint64(0), receipt.Seq)

	rec = s.do(http.MethodGet, "/v1/policies/wallet-1", nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	var policy map[string]any
	s.decode(rec, &policy)
	s.Equal("wallet-1", policy["wallet_id"])
	s.Equal(s.digestHex("policy"), policy["content_digest"])

	s.Run("duplicate registration conflicts", func() {
		rec := s.do(http.MethodPost, "/v1/policies", map[string]string{
			"wallet_id":      "wallet-1",
			"content_digest": s.digestHex("other"),
		}, asCaller(token))
		s.Equal(http.StatusConflict, rec.Code)
	})
	s.Run("non-signer is forbidden", func() {
		rec := s.do(http.MethodPost, "/v1/policies", map[string]string{
			"wallet_id":      "wallet-2",
			"content_digest": s.digestHex("policy"),
		}, asCaller(s.token(claimantAddr)))
		s.Equal(http.StatusForbidden, rec.Code)
	})
	s.Run("malformed digest is a bad request", func() {
		rec := s.do(http.MethodPost, "/v1/policies", map[string]string{
			"wallet_id":      "wallet-3",
			"content_digest": "not-hex",
		}, asCaller(token))
		s.Equal(http.StatusBadRequest, rec.Code)
	})
	s.Run("absent policy is not found", func() {
		rec := s.do(http.MethodGet, "/v1/policies/wallet-missing", nil, asCaller(token))
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *APISuite) TestTransactionAndViolationFlow() {
	token := s.token(signerAddr)

	rec := s.do(http.MethodPost, "/v1/transactions", map[string]string{
		"wallet_id":     "wallet-1",
		"tx_id":         "tx-1",
		"decision":      "BLOCKED",
		"policy_digest": s.digestHex("policy"),
	}, asCaller(token))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/v1/transactions", map[string]string{
		"wallet_id":     "wallet-1",
		"tx_id":         "tx-2",
		"decision":      "SHRUGGED",
		"policy_digest": s.digestHex("policy"),
	}, asCaller(token))
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/v1/violations", map[string]string{
		"tx_id":         "tx-1",
		"reason_digest": s.digestHex("reason"),
		"penalty":       "freeze",
	}, asCaller(token))
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/v1/violations/tx-1", nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	var violation map[string]any
	s.decode(rec, &violation)
	s.Equal("freeze", violation["penalty"])

	rec = s.do(http.MethodPost, "/v1/clawbacks", map[string]string{
		"original_tx_id": "tx-1",
		"clawback_tx_id": "cb-1",
		"reason_digest":  s.digestHex("reason"),
	}, asCaller(token))
	s.Require().Equal(http.StatusCreated, rec.Code)
}

func (s *APISuite) TestEscrowOverHTTP() {
	signerToken := s.token(signerAddr)
	claimantToken := s.token(claimantAddr)
	adminJWT := s.token(adminAddr)

	rec := s.do(http.MethodPost, "/admin/balances/credit", map[string]any{
		"address": signerAddr.String(),
		"amount":  500,
	}, asCaller(adminJWT), withAdminToken(adminToken))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/v1/escrow/rules", map[string]any{
		"receiver":       claimantAddr.String(),
		"amount":         200,
		"expiry_seconds": 3600,
	}, asCaller(signerToken))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		RuleID string `json:"rule_id"`
	}
	s.decode(rec, &created)
	s.NotEmpty(created.RuleID)

	rec = s.do(http.MethodGet, "/v1/escrow/rules/"+created.RuleID, nil, asCaller(signerToken))
	s.Require().Equal(http.StatusOK, rec.Code)
	var rule map[string]any
	s.decode(rec, &rule)
	s.Equal("ACTIVE", rule["status"])

	rec = s.do(http.MethodGet, "/v1/escrow/rules/"+created.RuleID+"/status", nil, asCaller(signerToken))
	s.Require().Equal(http.StatusOK, rec.Code)
	var status map[string]string
	s.decode(rec, &status)
	s.Equal("ACTIVE", status["status"])

	s.Run("stranger cannot claim", func() {
		rec := s.do(http.MethodPost, "/v1/escrow/rules/"+created.RuleID+"/claim", nil, asCaller(adminJWT))
		s.Equal(http.StatusForbidden, rec.Code)
	})
	s.Run("receiver claims", func() {
		rec := s.do(http.MethodPost, "/v1/escrow/rules/"+created.RuleID+"/claim", nil, asCaller(claimantToken))
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	})
	s.Run("second claim conflicts", func() {
		rec := s.do(http.MethodPost, "/v1/escrow/rules/"+created.RuleID+"/claim", nil, asCaller(claimantToken))
		s.Equal(http.StatusConflict, rec.Code)
	})
	s.Run("balances reflect the transfer", func() {
		rec := s.do(http.MethodGet, "/v1/balances/"+claimantAddr.String(), nil, asCaller(claimantToken))
		s.Require().Equal(http.StatusOK, rec.Code)
		var balance struct {
			Amount int64 `json:"amount"`
		}
		s.decode(rec, &balance)
		s.Equal(int64(200), balance.Amount)
	})
	s.Run("rules list includes both parties", func() {
		rec := s.do(http.MethodGet, "/v1/escrow/rules?address="+signerAddr.String(), nil, asCaller(signerToken))
		s.Require().Equal(http.StatusOK, rec.Code)
		var rules []map[string]any
		s.decode(rec, &rules)
		s.Len(rules, 1)
	})
}

func (s *APISuite) TestInsufficientFundsOverHTTP() {
	rec := s.do(http.MethodPost, "/v1/escrow/rules", map[string]any{
		"receiver":       claimantAddr.String(),
		"amount":         200,
		"expiry_seconds": 3600,
	}, asCaller(s.token(signerAddr)))
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	var body map[string]string
	s.decode(rec, &body)
	s.Equal("insufficient_funds", body["error"])
}

func (s *APISuite) TestAuditEndpoints() {
	token := s.token(signerAddr)
	rec := s.do(http.MethodPost, "/v1/policies", map[string]string{
		"wallet_id":      "wallet-1",
		"content_digest": s.digestHex("policy"),
	}, asCaller(token))
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/v1/audit/feed?limit=10", nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	var feed []map[string]any
	s.decode(rec, &feed)
	s.Len(feed, 1)
	s.Equal("policy_registered", feed[0]["kind"])

	rec = s.do(http.MethodGet, "/v1/audit/feed?kinds=rule_created,rule_claimed", nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &feed)
	s.Empty(feed)

	rec = s.do(http.MethodGet, "/v1/audit/statistics", nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	var stats map[string]any
	s.decode(rec, &stats)
	s.Equal(float64(1), stats["policies"])

	rec = s.do(http.MethodGet, "/v1/audit/verify/"+s.digestHex("policy"), nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	var verdict map[string]any
	s.decode(rec, &verdict)
	s.Equal(true, verdict["found"])

	rec = s.do(http.MethodGet, "/v1/audit/verify/"+s.digestHex("never"), nil, asCaller(token))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &verdict)
	s.Equal(false, verdict["found"])

	rec = s.do(http.MethodGet, "/v1/audit/feed?limit=-1", nil, asCaller(token))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestAdminRouteNeedsToken() {
	adminJWT := s.token(adminAddr)

	rec := s.do(http.MethodPost, "/admin/signer", map[string]string{
		"address": claimantAddr.String(),
	}, asCaller(adminJWT))
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/admin/signer", map[string]string{
		"address": claimantAddr.String(),
	}, asCaller(adminJWT), withAdminToken("wrong-token"))
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/admin/signer", map[string]string{
		"address": claimantAddr.String(),
	}, asCaller(adminJWT), withAdminToken(adminToken))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}
