package models

import (
	"time"
)

// agent lifecycle status enum - mirrors the in-memory state machine
type AgentStatus string

const (
	AgentStatusNormal          AgentStatus = "normal"
	AgentStatusCCB             AgentStatus = "ccb"              // collateral call band, recoverable
	AgentStatusLiquidation     AgentStatus = "liquidation"      // price-driven liquidation
	AgentStatusFullLiquidation AgentStatus = "full_liquidation" // challenge-driven, terminal
	AgentStatusDestroying      AgentStatus = "destroying"
	AgentStatusDestroyed       AgentStatus = "destroyed" // terminal, kept for history
)

// Agent is the persisted ledger entry for one agent. Wei and UBA amounts are
// stored as decimal strings (uint256 range exceeds int64).
type Agent struct {
	ID                uint64 `json:"id" gorm:"primaryKey"` // core ledger id, assigned once, never reused
	Vault             string `json:"vault" gorm:"uniqueIndex;not null"`
	Owner             string `json:"owner" gorm:"index;not null"`
	UnderlyingAddress string `json:"underlying_address" gorm:"uniqueIndex;not null"`
	UnderlyingHash    string `json:"underlying_hash" gorm:"index;not null"` // keccak-256 hex

	ReservedAMG  uint64 `json:"reserved_amg" gorm:"not null;default:0"`
	MintedAMG    uint64 `json:"minted_amg" gorm:"not null;default:0"`
	RedeemingAMG uint64 `json:"redeeming_amg" gorm:"not null;default:0"`
	DustAMG      uint64 `json:"dust_amg" gorm:"not null;default:0"`

	VaultCollateralWei string `json:"vault_collateral_wei" gorm:"not null;default:'0'"`
	PoolCollateralWei  string `json:"pool_collateral_wei" gorm:"not null;default:'0'"`

	VaultMinCollateralRatioBIPS uint32 `json:"vault_min_collateral_ratio_bips" gorm:"not null"`
	PoolMinCollateralRatioBIPS  uint32 `json:"pool_min_collateral_ratio_bips" gorm:"not null"`

	// FreeUnderlyingUBA may be negative (underlying debt after a challenge).
	FreeUnderlyingUBA string `json:"free_underlying_uba" gorm:"not null;default:'0'"`

	Status                 AgentStatus `json:"status" gorm:"index;not null"`
	CCBStartedAt           int64       `json:"ccb_started_at" gorm:"default:0"`
	LiquidationStartedAt   int64       `json:"liquidation_started_at" gorm:"default:0"`
	InitialLiquidationStep int         `json:"initial_liquidation_step" gorm:"default:0"`

	PubliclyAvailable  bool  `json:"publicly_available" gorm:"index;not null;default:false"`
	DestroyAnnouncedAt int64 `json:"destroy_announced_at" gorm:"default:0"`

	UnderlyingWithdrawalID          uint64 `json:"underlying_withdrawal_id" gorm:"default:0"`
	UnderlyingWithdrawalAnnouncedAt int64  `json:"underlying_withdrawal_announced_at" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// CollateralWithdrawal is one announced collateral withdrawal. At most one
// live row per (vault, collateral kind); executing or cancelling deletes it.
type CollateralWithdrawal struct {
	ID             uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Vault          string `json:"vault" gorm:"uniqueIndex:idx_withdrawal_vault_kind;not null"`
	CollateralKind string `json:"collateral_kind" gorm:"uniqueIndex:idx_withdrawal_vault_kind;not null"` // vault | pool
	AmountWei      string `json:"amount_wei" gorm:"not null"`
	AllowedAt      int64  `json:"allowed_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CollateralWithdrawal) TableName() string {
	return "collateral_withdrawals"
}
