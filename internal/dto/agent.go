package dto

// ==================== Agent DTOs ====================

// CreateAgentRequest registers a new agent vault.
type CreateAgentRequest struct {
	Vault             string `json:"vault" binding:"required"`
	UnderlyingAddress string `json:"underlying_address" binding:"required"`
}

// DepositCollateralRequest credits collateral to an agent.
type DepositCollateralRequest struct {
	CollateralKind string `json:"collateral_kind" binding:"required"` // "vault" or "pool"
	AmountWei      string `json:"amount_wei" binding:"required"`
}

// SetAvailableRequest flips the public-minting flag.
type SetAvailableRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// SetMinCollateralRatioRequest raises the agent's own collateral ratio floor.
type SetMinCollateralRatioRequest struct {
	CollateralKind string `json:"collateral_kind" binding:"required"`
	RatioBIPS      uint32 `json:"ratio_bips" binding:"required"`
}

// AnnounceWithdrawalRequest opens or resizes a collateral withdrawal
// announcement; amount_wei "0" cancels it.
type AnnounceWithdrawalRequest struct {
	CollateralKind string `json:"collateral_kind" binding:"required"`
	AmountWei      string `json:"amount_wei" binding:"required"`
}

// ExecuteWithdrawalRequest debits previously announced collateral.
type ExecuteWithdrawalRequest struct {
	CollateralKind string `json:"collateral_kind" binding:"required"`
	AmountWei      string `json:"amount_wei" binding:"required"`
}

// ConfirmUnderlyingWithdrawalRequest settles an announced underlying
// withdrawal with the agent's payment proof.
type ConfirmUnderlyingWithdrawalRequest struct {
	Proof PaymentProofRequest `json:"proof" binding:"required"`
}

// ConfirmTopupRequest credits a topup payment to the agent's free
// underlying balance.
type ConfirmTopupRequest struct {
	Proof PaymentProofRequest `json:"proof" binding:"required"`
}
