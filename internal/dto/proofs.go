package dto

import (
	"fmt"
	"math/big"

	"fasset-backend/internal/core"

	"github.com/ethereum/go-ethereum/common"
)

// ==================== Attestation proof DTOs ====================
//
// Proofs arrive as JSON from the caller: 32-byte hashes hex encoded,
// underlying amounts as decimal strings (they can exceed uint64). Each DTO
// converts into the structured core claim; the attestation verifier checks
// the Merkle proof before the core ever sees it.

// PaymentProofRequest attests one underlying transaction.
type PaymentProofRequest struct {
	TransactionID        string `json:"transaction_id" binding:"required"`
	SourceAddressHash    string `json:"source_address_hash" binding:"required"`
	ReceivingAddressHash string `json:"receiving_address_hash" binding:"required"`
	SpentUBA             string `json:"spent_uba" binding:"required"`
	ReceivedUBA          string `json:"received_uba" binding:"required"`
	PaymentReference     string `json:"payment_reference" binding:"required"`
	BlockNumber          uint64 `json:"block_number" binding:"required"`
	BlockTimestamp       uint64 `json:"block_timestamp" binding:"required"`
	Failed               bool   `json:"failed"`
	MerkleProof          string `json:"merkle_proof" binding:"required"`
}

// ToCore converts the request into the core claim.
func (r *PaymentProofRequest) ToCore() (core.PaymentProof, error) {
	spent, err := parseUBA(r.SpentUBA, "spent_uba")
	if err != nil {
		return core.PaymentProof{}, err
	}
	received, err := parseUBA(r.ReceivedUBA, "received_uba")
	if err != nil {
		return core.PaymentProof{}, err
	}
	return core.PaymentProof{
		TransactionID:        common.HexToHash(r.TransactionID),
		SourceAddressHash:    common.HexToHash(r.SourceAddressHash),
		ReceivingAddressHash: common.HexToHash(r.ReceivingAddressHash),
		SpentUBA:             spent,
		ReceivedUBA:          received,
		PaymentReference:     common.HexToHash(r.PaymentReference),
		BlockNumber:          r.BlockNumber,
		BlockTimestamp:       r.BlockTimestamp,
		Failed:               r.Failed,
	}, nil
}

// BalanceDecreasingProofRequest attests that a transaction decreased an
// address's balance; the challenge input.
type BalanceDecreasingProofRequest struct {
	TransactionID     string `json:"transaction_id" binding:"required"`
	SourceAddressHash string `json:"source_address_hash" binding:"required"`
	SpentUBA          string `json:"spent_uba" binding:"required"`
	PaymentReference  string `json:"payment_reference"`
	BlockNumber       uint64 `json:"block_number" binding:"required"`
	BlockTimestamp    uint64 `json:"block_timestamp" binding:"required"`
	MerkleProof       string `json:"merkle_proof" binding:"required"`
}

// ToCore converts the request into the core claim.
func (r *BalanceDecreasingProofRequest) ToCore() (core.BalanceDecreasingProof, error) {
	spent, err := parseUBA(r.SpentUBA, "spent_uba")
	if err != nil {
		return core.BalanceDecreasingProof{}, err
	}
	return core.BalanceDecreasingProof{
		TransactionID:     common.HexToHash(r.TransactionID),
		SourceAddressHash: common.HexToHash(r.SourceAddressHash),
		SpentUBA:          spent,
		PaymentReference:  common.HexToHash(r.PaymentReference),
		BlockNumber:       r.BlockNumber,
		BlockTimestamp:    r.BlockTimestamp,
	}, nil
}

// NonPaymentProofRequest attests that no matching payment exists inside the
// proven block range.
type NonPaymentProofRequest struct {
	DestinationAddressHash string `json:"destination_address_hash" binding:"required"`
	PaymentReference       string `json:"payment_reference" binding:"required"`
	AmountUBA              string `json:"amount_uba" binding:"required"`
	LowerBoundaryBlock     uint64 `json:"lower_boundary_block"`
	FirstOverflowBlock     uint64 `json:"first_overflow_block" binding:"required"`
	FirstOverflowTimestamp uint64 `json:"first_overflow_timestamp" binding:"required"`
	MerkleProof            string `json:"merkle_proof" binding:"required"`
}

// ToCore converts the request into the core claim.
func (r *NonPaymentProofRequest) ToCore() (core.NonPaymentProof, error) {
	amount, err := parseUBA(r.AmountUBA, "amount_uba")
	if err != nil {
		return core.NonPaymentProof{}, err
	}
	return core.NonPaymentProof{
		DestinationAddressHash: common.HexToHash(r.DestinationAddressHash),
		PaymentReference:       common.HexToHash(r.PaymentReference),
		AmountUBA:              amount,
		LowerBoundaryBlock:     r.LowerBoundaryBlock,
		FirstOverflowBlock:     r.FirstOverflowBlock,
		FirstOverflowTimestamp: r.FirstOverflowTimestamp,
	}, nil
}

// BlockHeightProofRequest attests a confirmed underlying block height.
type BlockHeightProofRequest struct {
	BlockNumber    uint64 `json:"block_number" binding:"required"`
	BlockTimestamp uint64 `json:"block_timestamp" binding:"required"`
	MerkleProof    string `json:"merkle_proof" binding:"required"`
}

// ToCore converts the request into the core claim.
func (r *BlockHeightProofRequest) ToCore() core.BlockHeightProof {
	return core.BlockHeightProof{
		BlockNumber:    r.BlockNumber,
		BlockTimestamp: r.BlockTimestamp,
	}
}

// parseUBA parses a non-negative decimal amount field.
func parseUBA(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s is not a non-negative decimal integer: %q", field, s)
	}
	return v, nil
}
