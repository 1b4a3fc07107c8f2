package http

import (
	"time"

	"ledgerguard/internal/bridge"
	"ledgerguard/internal/ledger/models"
	"ledgerguard/internal/ledger/store"
)

type registerPolicyRequest struct {
	WalletID      string `json:"wallet_id"`
	ContentDigest string `json:"content_digest"`
}

type logTransactionRequest struct {
	WalletID     string `json:"wallet_id"`
	TxID         string `json:"tx_id"`
	Decision     string `json:"decision"`
	PolicyDigest string `json:"policy_digest"`
}

type recordViolationRequest struct {
	TxID         string `json:"tx_id"`
	ReasonDigest string `json:"reason_digest"`
	Penalty      string `json:"penalty"`
}

type logClawbackRequest struct {
	OriginalTxID string `json:"original_tx_id"`
	ClawbackTxID string `json:"clawback_tx_id"`
	ReasonDigest string `json:"reason_digest"`
}

type createRuleRequest struct {
	Receiver      string `json:"receiver"`
	Amount        int64  `json:"amount"`
	ExpirySeconds int64  `json:"expiry_seconds"`
}

type rotateSignerRequest struct {
	Address string `json:"address"`
}

type creditBalanceRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type receiptResponse struct {
	Seq   uint64 `json:"seq"`
	Block uint64 `json:"block"`
}

func fromReceipt(r store.Receipt) receiptResponse {
	return receiptResponse{Seq: r.Seq, Block: r.Block}
}

type policyResponse struct {
	WalletID      string    `json:"wallet_id"`
	ContentDigest string    `json:"content_digest"`
	RegisteredAt  time.Time `json:"registered_at"`
	RegisteredBy  string    `json:"registered_by"`
	Active        bool      `json:"active"`
}

func fromPolicy(p models.Policy) policyResponse {
	return policyResponse{
		WalletID:      p.WalletID,
		ContentDigest: p.ContentDigest.String(),
		RegisteredAt:  p.RegisteredAt,
		RegisteredBy:  p.RegisteredBy.String(),
		Active:        p.Active,
	}
}

type transactionResponse struct {
	WalletID     string    `json:"wallet_id"`
	TxID         string    `json:"tx_id"`
	Decision     string    `json:"decision"`
	PolicyDigest string    `json:"policy_digest"`
	LoggedAt     time.Time `json:"logged_at"`
	LoggedBy     string    `json:"logged_by"`
}

func fromTransaction(t models.TransactionLog) transactionResponse {
	return transactionResponse{
		WalletID:     t.WalletID,
		TxID:         t.TxID,
		Decision:     string(t.Decision),
		PolicyDigest: t.PolicyDigest.String(),
		LoggedAt:     t.LoggedAt,
		LoggedBy:     t.LoggedBy.String(),
	}
}

type violationResponse struct {
	TxID         string    `json:"tx_id"`
	ReasonDigest string    `json:"reason_digest"`
	Penalty      string    `json:"penalty"`
	RecordedAt   time.Time `json:"recorded_at"`
	RecordedBy   string    `json:"recorded_by"`
}

func fromViolation(v models.ViolationRecord) violationResponse {
	return violationResponse{
		TxID:         v.TxID,
		ReasonDigest: v.ReasonDigest.String(),
		Penalty:      v.Penalty,
		RecordedAt:   v.RecordedAt,
		RecordedBy:   v.RecordedBy.String(),
	}
}

type clawbackResponse struct {
	OriginalTxID string    `json:"original_tx_id"`
	ClawbackTxID string    `json:"clawback_tx_id"`
	ReasonDigest string    `json:"reason_digest"`
	ExecutedAt   time.Time `json:"executed_at"`
	ExecutedBy   string    `json:"executed_by"`
}

func fromClawback(c models.ClawbackRecord) clawbackResponse {
	return clawbackResponse{
		OriginalTxID: c.OriginalTxID,
		ClawbackTxID: c.ClawbackTxID,
		ReasonDigest: c.ReasonDigest.String(),
		ExecutedAt:   c.ExecutedAt,
		ExecutedBy:   c.ExecutedBy.String(),
	}
}

type createdRuleResponse struct {
	RuleID string    `json:"rule_id"`
	Expiry time.Time `json:"expiry"`
	Seq    uint64    `json:"seq"`
	Block  uint64    `json:"block"`
}

func fromCreatedRule(c bridge.CreatedRule) createdRuleResponse {
	return createdRuleResponse{
		RuleID: c.RuleID.String(),
		Expiry: c.Expiry,
		Seq:    c.Receipt.Seq,
		Block:  c.Receipt.Block,
	}
}

type ruleResponse struct {
	RuleID    string    `json:"rule_id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Amount    int64     `json:"amount"`
	Expiry    time.Time `json:"expiry"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

func fromRule(r models.RuleWithStatus) ruleResponse {
	return ruleResponse{
		RuleID:    r.Rule.ID.String(),
		Sender:    r.Rule.Sender.String(),
		Receiver:  r.Rule.Receiver.String(),
		Amount:    r.Rule.Amount,
		Expiry:    r.Rule.Expiry,
		CreatedAt: r.Rule.CreatedAt,
		Status:    string(r.Status),
	}
}

type balanceResponse struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}
