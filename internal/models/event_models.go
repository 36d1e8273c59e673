package models

import (
	"time"
)

// protocol event type enum - one value per published NATS subject suffix
type ProtocolEventType string

const (
	EventAgentCreated           ProtocolEventType = "agent_created"
	EventAgentDestroyed         ProtocolEventType = "agent_destroyed"
	EventCollateralDeposited    ProtocolEventType = "collateral_deposited"
	EventCollateralWithdrawn    ProtocolEventType = "collateral_withdrawn"
	EventCollateralReserved     ProtocolEventType = "collateral_reserved"
	EventMintingExecuted        ProtocolEventType = "minting_executed"
	EventMintingDefaulted       ProtocolEventType = "minting_defaulted"
	EventRedemptionRequested    ProtocolEventType = "redemption_requested"
	EventRedemptionReported     ProtocolEventType = "redemption_payment_reported"
	EventRedemptionConfirmed    ProtocolEventType = "redemption_confirmed"
	EventRedemptionDefaulted    ProtocolEventType = "redemption_defaulted"
	EventRedemptionBlocked      ProtocolEventType = "redemption_blocked"
	EventSelfClosed             ProtocolEventType = "self_closed"
	EventLiquidationStarted     ProtocolEventType = "liquidation_started"
	EventLiquidationEnded       ProtocolEventType = "liquidation_ended"
	EventLiquidationPerformed   ProtocolEventType = "liquidation_performed"
	EventFullLiquidationStarted ProtocolEventType = "full_liquidation_started"
	EventChallengeSucceeded     ProtocolEventType = "challenge_succeeded"
	EventDustChanged            ProtocolEventType = "dust_changed"
	EventUnderlyingBlockUpdated ProtocolEventType = "underlying_block_updated"
	EventMintingPaused          ProtocolEventType = "minting_paused"
	EventMintingResumed         ProtocolEventType = "minting_resumed"

	// deadline notifications from the sweeper; settlement still requires a
	// verified non-payment proof from the counterparty
	EventMintingDeadlinePassed    ProtocolEventType = "minting_deadline_passed"
	EventRedemptionDeadlinePassed ProtocolEventType = "redemption_deadline_passed"
)

// ProtocolEvent is the persisted audit row for every published event. The
// payload is the exact JSON sent over NATS.
type ProtocolEvent struct {
	ID        uint64            `json:"id" gorm:"primaryKey;autoIncrement"`
	EventType ProtocolEventType `json:"event_type" gorm:"index;not null"`
	Vault     string            `json:"vault" gorm:"index"` // empty for system-wide events
	Payload   string            `json:"payload" gorm:"type:jsonb;not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (ProtocolEvent) TableName() string {
	return "protocol_events"
}

// challenge kind enum
type ChallengeKind string

const (
	ChallengeKindIllegalPayment      ChallengeKind = "illegal_payment"
	ChallengeKindDoublePayment       ChallengeKind = "double_payment"
	ChallengeKindFreeBalanceNegative ChallengeKind = "free_balance_negative"
)

// ChallengeEvent records one successful challenge and the reward paid out.
type ChallengeEvent struct {
	ID         uint64        `json:"id" gorm:"primaryKey;autoIncrement"`
	Vault      string        `json:"vault" gorm:"index;not null"`
	Challenger string        `json:"challenger" gorm:"index;not null"`
	Kind       ChallengeKind `json:"kind" gorm:"not null"`

	TransactionHash string `json:"transaction_hash" gorm:"index"` // offending underlying tx
	VaultRewardWei  string `json:"vault_reward_wei" gorm:"not null;default:'0'"`
	PoolRewardWei   string `json:"pool_reward_wei" gorm:"not null;default:'0'"`

	CreatedAt time.Time `json:"created_at"`
}

func (ChallengeEvent) TableName() string {
	return "challenge_events"
}

// LiquidationEvent records one liquidate call: the backing closed and the
// collateral seized at the schedule factor in force.
type LiquidationEvent struct {
	ID         uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Vault      string `json:"vault" gorm:"index;not null"`
	Liquidator string `json:"liquidator" gorm:"index;not null"`

	ClosedUBA      string `json:"closed_uba" gorm:"not null"`
	FactorBIPS     uint32 `json:"factor_bips" gorm:"not null"`
	VaultSeizedWei string `json:"vault_seized_wei" gorm:"not null;default:'0'"`
	PoolSeizedWei  string `json:"pool_seized_wei" gorm:"not null;default:'0'"`

	// agent status after the bite
	ResultStatus AgentStatus `json:"result_status" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (LiquidationEvent) TableName() string {
	return "liquidation_events"
}

// PriceSnapshot is one oracle reading, kept for the price feed history
// endpoint and for recovery when the oracle is briefly unreachable.
type PriceSnapshot struct {
	ID       uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Symbol   string `json:"symbol" gorm:"index;not null"`
	Value    string `json:"value" gorm:"not null"` // integer price in oracle units
	Decimals uint8  `json:"decimals" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}
