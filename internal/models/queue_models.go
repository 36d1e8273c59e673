package models

import (
	"time"
)

// RedemptionTicket is one queued parcel of minted backing. Queue order is
// ticket id order (ids are monotonic and never reused), so the FIFO is
// reconstructed on startup by loading open tickets ordered by id.
type RedemptionTicket struct {
	ID       uint64 `json:"id" gorm:"primaryKey"` // core ticket id
	Vault    string `json:"vault" gorm:"index;not null"`
	ValueAMG uint64 `json:"value_amg" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RedemptionTicket) TableName() string {
	return "redemption_tickets"
}
