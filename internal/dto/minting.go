package dto

// ==================== Minting DTOs ====================

// ReserveCollateralRequest locks an agent's collateral for new minting.
type ReserveCollateralRequest struct {
	Vault string `json:"vault" binding:"required"`
	Lots  uint64 `json:"lots" binding:"required"`
}

// ExecuteMintingRequest settles a reservation with the minter's payment
// proof.
type ExecuteMintingRequest struct {
	ReservationID uint64              `json:"reservation_id" binding:"required"`
	Proof         PaymentProofRequest `json:"proof" binding:"required"`
}

// MintingPaymentDefaultRequest resolves a reservation the minter never
// paid.
type MintingPaymentDefaultRequest struct {
	ReservationID uint64                 `json:"reservation_id" binding:"required"`
	Proof         NonPaymentProofRequest `json:"proof" binding:"required"`
}
