package models

import (
	"time"
)

// PaymentRecord marks one underlying transaction as consumed by a proof, per
// source address. Rows older than the retention window are pruned.
type PaymentRecord struct {
	ID               uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TransactionHash  string `json:"transaction_hash" gorm:"uniqueIndex:idx_payment_tx_source;not null"`
	SourceHash       string `json:"source_hash" gorm:"uniqueIndex:idx_payment_tx_source;not null"`
	PaymentReference string `json:"payment_reference" gorm:"index"`
	SpentUBA         string `json:"spent_uba" gorm:"not null;default:'0'"`
	BlockNumber      uint64 `json:"block_number" gorm:"index;not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}

// UnderlyingBlock is the single tracked underlying-chain cursor. One row,
// updated in place; the cursor never moves backwards.
type UnderlyingBlock struct {
	ID             uint64 `json:"id" gorm:"primaryKey"` // always 1
	BlockNumber    uint64 `json:"block_number" gorm:"not null"`
	BlockTimestamp uint64 `json:"block_timestamp" gorm:"not null"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (UnderlyingBlock) TableName() string {
	return "underlying_blocks"
}
