package models

import (
	"time"
)

// redemption request status enum
type RedemptionStatus string

const (
	RedemptionStatusRequested RedemptionStatus = "requested" // awaiting agent payment
	RedemptionStatusConfirmed RedemptionStatus = "confirmed" // agent paid, proof accepted
	RedemptionStatusTimedOut  RedemptionStatus = "timed_out" // defaulted, redeemer compensated
	RedemptionStatusBlocked   RedemptionStatus = "blocked"   // payment rejected on underlying chain
)

// RedemptionRequest is one in-flight or settled redemption. Terminal rows
// are kept for history and replay auditing.
type RedemptionRequest struct {
	ID       uint64 `json:"id" gorm:"primaryKey"` // core request id
	Vault    string `json:"vault" gorm:"index;not null"`
	Redeemer string `json:"redeemer" gorm:"index;not null"`

	ValueAMG uint64 `json:"value_amg" gorm:"not null"`
	ValueUBA string `json:"value_uba" gorm:"not null"`
	FeeUBA   string `json:"fee_uba" gorm:"not null"`

	FirstUnderlyingBlock    uint64 `json:"first_underlying_block" gorm:"not null"`
	LastUnderlyingBlock     uint64 `json:"last_underlying_block" gorm:"not null"`
	LastUnderlyingTimestamp uint64 `json:"last_underlying_timestamp" gorm:"not null"`

	RedeemerAddressHash string `json:"redeemer_address_hash" gorm:"not null"` // keccak-256 hex
	PaymentReference    string `json:"payment_reference" gorm:"index;not null"`

	Status RedemptionStatus `json:"status" gorm:"index;not null"`

	// agent-submitted payment report, reconciled against the attested proof
	// at confirmation
	ReportedTransactionHash string `json:"reported_transaction_hash"`
	ReportedSpentUBA        string `json:"reported_spent_uba"`
	ReportedReceivedUBA     string `json:"reported_received_uba"`
	ReportedBlockNumber     uint64 `json:"reported_block_number" gorm:"default:0"`

	// settlement info, set on the terminal transition
	TransactionHash string `json:"transaction_hash" gorm:"index"` // paying underlying tx
	SettledAt       int64  `json:"settled_at" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RedemptionRequest) TableName() string {
	return "redemption_requests"
}
