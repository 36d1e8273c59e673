package models

import (
	"time"
)

// collateral reservation status enum
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"  // awaiting underlying payment
	ReservationStatusExecuted  ReservationStatus = "executed"  // payment proven, tokens minted
	ReservationStatusDefaulted ReservationStatus = "defaulted" // deadline passed, fee to agent
)

// CollateralReservation is one in-flight or settled minting request.
// Terminal rows are kept for history and replay auditing.
type CollateralReservation struct {
	ID     uint64 `json:"id" gorm:"primaryKey"` // core reservation id
	Vault  string `json:"vault" gorm:"index;not null"`
	Minter string `json:"minter" gorm:"index;not null"`

	ValueAMG uint64 `json:"value_amg" gorm:"not null"`
	ValueUBA string `json:"value_uba" gorm:"not null"`
	FeeUBA   string `json:"fee_uba" gorm:"not null"`

	FirstUnderlyingBlock    uint64 `json:"first_underlying_block" gorm:"not null"`
	LastUnderlyingBlock     uint64 `json:"last_underlying_block" gorm:"not null"`
	LastUnderlyingTimestamp uint64 `json:"last_underlying_timestamp" gorm:"not null"`

	PaymentAddress   string `json:"payment_address" gorm:"not null"`
	PaymentReference string `json:"payment_reference" gorm:"index;not null"` // 32-byte hex
	SelfMint         bool   `json:"self_mint" gorm:"not null;default:false"`

	Status ReservationStatus `json:"status" gorm:"index;not null"`

	// settlement info, set on the terminal transition
	TransactionHash string `json:"transaction_hash" gorm:"index"` // executing underlying tx
	SettledAt       int64  `json:"settled_at" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CollateralReservation) TableName() string {
	return "collateral_reservations"
}
