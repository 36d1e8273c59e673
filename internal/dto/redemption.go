package dto

import (
	"fasset-backend/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// ==================== Redemption DTOs ====================

// RedeemRequest opens redemption requests against the FIFO queue.
type RedeemRequest struct {
	Lots              uint64 `json:"lots" binding:"required"`
	UnderlyingAddress string `json:"underlying_address" binding:"required"`
}

// ReportRedemptionRequest records the agent's "I paid" declaration before
// the attestation round trip; the later proof must match it.
type ReportRedemptionRequest struct {
	RequestID     uint64 `json:"request_id" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
	SpentUBA      string `json:"spent_uba" binding:"required"`
	ReceivedUBA   string `json:"received_uba" binding:"required"`
	BlockNumber   uint64 `json:"block_number" binding:"required"`
}

// ToCore converts the request into the core report.
func (r *ReportRedemptionRequest) ToCore() (core.PaymentReport, error) {
	spent, err := parseUBA(r.SpentUBA, "spent_uba")
	if err != nil {
		return core.PaymentReport{}, err
	}
	received, err := parseUBA(r.ReceivedUBA, "received_uba")
	if err != nil {
		return core.PaymentReport{}, err
	}
	return core.PaymentReport{
		TransactionID: common.HexToHash(r.TransactionID),
		SpentUBA:      spent,
		ReceivedUBA:   received,
		BlockNumber:   r.BlockNumber,
	}, nil
}

// ConfirmRedemptionRequest settles a request with the agent's payment
// proof.
type ConfirmRedemptionRequest struct {
	RequestID uint64              `json:"request_id" binding:"required"`
	Proof     PaymentProofRequest `json:"proof" binding:"required"`
}

// RedemptionTimeoutRequest resolves a request the agent never paid.
type RedemptionTimeoutRequest struct {
	RequestID uint64                 `json:"request_id" binding:"required"`
	Proof     NonPaymentProofRequest `json:"proof" binding:"required"`
}

// RedemptionBlockedRequest resolves a request whose payment was mined but
// failed on the underlying chain.
type RedemptionBlockedRequest struct {
	RequestID uint64              `json:"request_id" binding:"required"`
	Proof     PaymentProofRequest `json:"proof" binding:"required"`
}

// SelfCloseRequest unwinds part of the agent's own backing.
type SelfCloseRequest struct {
	AmountUBA string `json:"amount_uba" binding:"required"`
}
