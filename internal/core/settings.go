package core

import (
	"fmt"
	"math/big"
)

// MaxBIPS is the basis-points scale: 10000 BIPS = 100%.
const MaxBIPS = 10000

// CollateralKind selects between the two parallel collateral bookkeeping
// structures of an agent.
type CollateralKind string

const (
	CollateralVault CollateralKind = "vault"
	CollateralPool  CollateralKind = "pool"
)

// CollateralKinds in a fixed iteration order.
var CollateralKinds = []CollateralKind{CollateralVault, CollateralPool}

// CollateralClassSettings holds the per-collateral-class ratio thresholds,
// all in BIPS. Ordering invariant: CCB > liquidation is NOT required; the
// required ordering is minting >= safety >= min >= ccb... see Validate.
type CollateralClassSettings struct {
	// MinCollateralRatioBIPS is the protocol floor; an agent's own minimum
	// may be set higher but never lower.
	MinCollateralRatioBIPS uint32
	// CCBMinCollateralRatioBIPS is the collateral call band entry threshold.
	// Below this (but at or above MinCollateralRatioBIPS) the agent enters
	// CCB; below MinCollateralRatioBIPS it enters liquidation directly.
	CCBMinCollateralRatioBIPS uint32
	// SafetyMinCollateralRatioBIPS is the recovery threshold: liquidation
	// ends only once the ratio is back above this.
	SafetyMinCollateralRatioBIPS uint32
	// MintingMinCollateralRatioBIPS is required for new reservations.
	MintingMinCollateralRatioBIPS uint32
	// Decimals of the collateral token (18 for wei-denominated tokens).
	TokenDecimals uint8
}

// Settings is the protocol settings value consumed by every core operation.
// It is immutable from the core's point of view; hot reload swaps the whole
// value under the service lock.
type Settings struct {
	// LotSizeAMG is the number of AMG in one lot.
	LotSizeAMG AMG
	// AssetMintingGranularityUBA is the number of underlying base units in
	// one AMG.
	AssetMintingGranularityUBA *big.Int
	// AssetDecimals of the managed asset on the underlying chain.
	AssetDecimals uint8

	Vault CollateralClassSettings
	Pool  CollateralClassSettings

	// Payment windows: a payment for a reservation or redemption must appear
	// within this many underlying blocks AND seconds of the request.
	UnderlyingBlocksForPayment  uint64
	UnderlyingSecondsForPayment uint64

	// AverageBlockTimeMS extrapolates the underlying block height between
	// on-chain height updates, so fast underlying chains do not starve
	// agents of payment time.
	AverageBlockTimeMS uint64

	MintingFeeBIPS    uint32
	RedemptionFeeBIPS uint32
	// RedemptionDefaultFactorBIPS scales the price-converted redemption
	// value when paying collateral compensation on payment failure
	// (> 10000: the redeemer is paid a premium).
	RedemptionDefaultFactorBIPS uint32

	// MaxRedeemedTickets caps the ticket-queue loop per redeem call. Hitting
	// the cap yields a partial fulfillment, not an error.
	MaxRedeemedTickets int

	// WithdrawalWaitMinSeconds is the delay between announcing and executing
	// a collateral withdrawal; the announcement expires
	// WithdrawalWindowSeconds after it becomes executable.
	WithdrawalWaitMinSeconds uint64
	WithdrawalWindowSeconds  uint64

	// CCBTimeSeconds is the collateral call band grace period.
	CCBTimeSeconds uint64
	// LiquidationStepSeconds releases the next liquidation factor if no
	// liquidator acts.
	LiquidationStepSeconds uint64
	// LiquidationFactorBIPS is the payout schedule: strictly increasing,
	// first entries are a flat price premium (> 10000), validated against
	// the collateral share cap at payout time.
	LiquidationFactorBIPS []uint32
	// FullLiquidationFactorStep is the schedule index a challenge-triggered
	// liquidation starts at (harsher than plain low-CR liquidation).
	FullLiquidationFactorStep int

	// PaymentChallengeRewardBIPS of the agent's backing collateral paid to a
	// successful challenger.
	PaymentChallengeRewardBIPS uint32

	// ConfirmationBlocks is the retention window: balance-decreasing proofs
	// older than this many underlying blocks cannot open a challenge.
	ConfirmationBlocks uint64

	// DestroyWaitMinSeconds between the destroy announcement and the actual
	// agent removal.
	DestroyWaitMinSeconds uint64
}

// Validate checks the cross-field invariants that config loading must not
// let through.
func (s *Settings) Validate() error {
	if s.LotSizeAMG == 0 {
		return fmt.Errorf("lot size must be positive")
	}
	if s.AssetMintingGranularityUBA == nil || s.AssetMintingGranularityUBA.Sign() <= 0 {
		return fmt.Errorf("asset minting granularity must be positive")
	}
	if s.MaxRedeemedTickets <= 0 {
		return fmt.Errorf("maxRedeemedTickets must be positive")
	}
	if s.UnderlyingBlocksForPayment == 0 || s.UnderlyingSecondsForPayment == 0 {
		return fmt.Errorf("payment window must be positive")
	}
	if len(s.LiquidationFactorBIPS) == 0 {
		return fmt.Errorf("liquidation factor schedule must not be empty")
	}
	prev := uint32(0)
	for i, f := range s.LiquidationFactorBIPS {
		if f <= prev {
			return fmt.Errorf("liquidation factors must be strictly increasing (step %d)", i)
		}
		prev = f
	}
	if s.FullLiquidationFactorStep < 0 || s.FullLiquidationFactorStep >= len(s.LiquidationFactorBIPS) {
		return fmt.Errorf("full liquidation factor step out of range")
	}
	if s.RedemptionDefaultFactorBIPS <= MaxBIPS {
		return fmt.Errorf("redemption default factor must exceed 100%%")
	}
	for _, c := range []CollateralClassSettings{s.Vault, s.Pool} {
		if c.MinCollateralRatioBIPS <= MaxBIPS {
			return fmt.Errorf("min collateral ratio must exceed 100%%")
		}
		if c.CCBMinCollateralRatioBIPS < c.MinCollateralRatioBIPS {
			return fmt.Errorf("CCB threshold must be at or above the liquidation threshold")
		}
		if c.SafetyMinCollateralRatioBIPS < c.CCBMinCollateralRatioBIPS {
			return fmt.Errorf("safety threshold must be at or above the CCB threshold")
		}
		if c.MintingMinCollateralRatioBIPS < c.SafetyMinCollateralRatioBIPS {
			return fmt.Errorf("minting threshold must be at or above the safety threshold")
		}
	}
	return nil
}

// Class returns the settings for one collateral kind.
func (s *Settings) Class(kind CollateralKind) CollateralClassSettings {
	if kind == CollateralPool {
		return s.Pool
	}
	return s.Vault
}

// LotSizeUBA is lotSizeAMG x assetMintingGranularityUBA.
func (s *Settings) LotSizeUBA() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(s.LotSizeAMG), s.AssetMintingGranularityUBA)
}
