package dto

// ==================== Challenge DTOs ====================

// IllegalPaymentChallengeRequest proves an outgoing payment from the
// agent's underlying address with no legal reference.
type IllegalPaymentChallengeRequest struct {
	Vault string                        `json:"vault" binding:"required"`
	Proof BalanceDecreasingProofRequest `json:"proof" binding:"required"`
}

// DoublePaymentChallengeRequest proves two distinct payments carrying the
// same reference.
type DoublePaymentChallengeRequest struct {
	Vault  string                        `json:"vault" binding:"required"`
	Proof1 BalanceDecreasingProofRequest `json:"proof1" binding:"required"`
	Proof2 BalanceDecreasingProofRequest `json:"proof2" binding:"required"`
}

// FreeBalanceNegativeChallengeRequest proves that unaccounted spending
// drove the agent's free underlying balance negative.
type FreeBalanceNegativeChallengeRequest struct {
	Vault  string                          `json:"vault" binding:"required"`
	Proofs []BalanceDecreasingProofRequest `json:"proofs" binding:"required,min=1"`
}

// ==================== System DTOs ====================

// UpdateUnderlyingBlockRequest advances the proven underlying chain
// cursor.
type UpdateUnderlyingBlockRequest struct {
	Proof BlockHeightProofRequest `json:"proof" binding:"required"`
}

// LiquidateRequest burns the caller's tokens against a liquidating agent.
type LiquidateRequest struct {
	Vault     string `json:"vault" binding:"required"`
	AmountUBA string `json:"amount_uba" binding:"required"`
}
