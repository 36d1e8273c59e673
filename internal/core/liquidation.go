package core

import (
	"math/big"
)

// worstCollateralRatioBIPS is the lower of the agent's two collateral
// ratios; liquidation is driven by the weaker side.
func (s *Store) worstCollateralRatioBIPS(a *Agent) (uint32, CollateralKind) {
	ratio := s.CollateralRatioBIPS(a, CollateralVault)
	kind := CollateralVault
	if p := s.CollateralRatioBIPS(a, CollateralPool); p < ratio {
		ratio, kind = p, CollateralPool
	}
	return ratio, kind
}

// StartLiquidation moves a price-underwater agent into CCB or liquidation.
// Callable by anyone. Transitions:
//   - ratio below the liquidation threshold: LIQUIDATION, starting at
//     schedule step 0;
//   - ratio below the CCB threshold (but not the liquidation threshold):
//     CCB with a start timestamp; if the agent is already in CCB and the
//     grace period elapsed while still below, LIQUIDATION;
//   - healthy ratio: rejected with ErrAgentHealthy.
func (s *Store) StartLiquidation(vault string) (AgentStatus, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return "", err
	}
	switch a.Status {
	case AgentFullLiquidation, AgentDestroying:
		return a.Status, ErrInvalidAgentStatus
	case AgentLiquidation:
		return a.Status, nil
	}
	ratio, kind := s.worstCollateralRatioBIPS(a)
	class := s.settings.Class(kind)
	now := s.Clock()
	switch {
	case ratio < class.MinCollateralRatioBIPS:
		s.enterLiquidation(a, 0, now)
	case ratio < class.CCBMinCollateralRatioBIPS:
		if a.Status == AgentCCB {
			if uint64(now-a.CCBStartedAt) >= s.settings.CCBTimeSeconds {
				s.enterLiquidation(a, 0, now)
			}
		} else {
			a.Status = AgentCCB
			a.CCBStartedAt = now
		}
	default:
		return a.Status, ErrAgentHealthy
	}
	return a.Status, nil
}

func (s *Store) enterLiquidation(a *Agent, initialStep int, now int64) {
	a.Status = AgentLiquidation
	a.LiquidationStartedAt = now
	a.InitialLiquidationStep = initialStep
	a.CCBStartedAt = 0
}

// enterFullLiquidation is the challenge-triggered entry: irreversible, a
// harsher point in the factor schedule, and only ends with vault
// destruction after a complete unwind.
func (s *Store) enterFullLiquidation(a *Agent) {
	if a.Status == AgentFullLiquidation {
		return
	}
	a.Status = AgentFullLiquidation
	a.LiquidationStartedAt = s.Clock()
	a.InitialLiquidationStep = s.settings.FullLiquidationFactorStep
	a.CCBStartedAt = 0
}

// EndLiquidationIfHealthy reverts a CCB or liquidation agent to NORMAL once
// the ratio recovered above the safety threshold. Call opportunistically
// after any collateral deposit. Full liquidation has no recovery path.
func (s *Store) EndLiquidationIfHealthy(vault string) (AgentStatus, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return "", err
	}
	if a.Status != AgentCCB && a.Status != AgentLiquidation {
		return a.Status, nil
	}
	ratio, kind := s.worstCollateralRatioBIPS(a)
	if ratio >= s.settings.Class(kind).SafetyMinCollateralRatioBIPS {
		a.Status = AgentNormal
		a.CCBStartedAt = 0
		a.LiquidationStartedAt = 0
		a.InitialLiquidationStep = 0
	}
	return a.Status, nil
}

// currentLiquidationFactorBIPS walks the payout schedule: one more step for
// every LiquidationStepSeconds without a liquidator, clamped at the end.
func (s *Store) currentLiquidationFactorBIPS(a *Agent) uint32 {
	factors := s.settings.LiquidationFactorBIPS
	step := a.InitialLiquidationStep
	if s.settings.LiquidationStepSeconds > 0 {
		step += int(uint64(s.Clock()-a.LiquidationStartedAt) / s.settings.LiquidationStepSeconds)
	}
	if step >= len(factors) {
		step = len(factors) - 1
	}
	return factors[step]
}

// LiquidationResult reports one liquidation bite.
type LiquidationResult struct {
	LiquidatedAMG AMG
	LiquidatedUBA *big.Int
	// RewardWei per collateral kind, paid to the liquidator by the vault
	// after this state change.
	RewardWei   map[CollateralKind]*big.Int
	FactorBIPS  uint32
	DustChanges []DustChange
	Status      AgentStatus
}

// Liquidate burns up to amountUBA of the liquidator's tokens against a
// liquidating agent and seizes collateral at the current schedule factor,
// capped at the agent's pro-rata collateral share. The factor starts as a
// price premium and grows along the schedule; full liquidation starts
// deeper in. The closed backing is drawn from the agent's own tickets.
func (s *Store) Liquidate(liquidator, vault string, amountUBA *big.Int) (*LiquidationResult, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if a.Status != AgentLiquidation && a.Status != AgentFullLiquidation {
		return nil, ErrInvalidAgentStatus
	}
	wantedAMG := s.settings.UBAToAMG(amountUBA)
	if wantedAMG == 0 {
		return nil, ErrNothingToClose
	}
	closedAMG, dust := s.redeemAgentOwnTickets(a, wantedAMG)
	if closedAMG == 0 {
		return nil, ErrNothingToClose
	}
	backed := a.BackedAMG()
	a.releaseMintedAssets(closedAMG)
	closedUBA := s.settings.AMGToUBA(closedAMG)
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, closedUBA)

	factor := s.currentLiquidationFactorBIPS(a)
	res := &LiquidationResult{
		LiquidatedAMG: closedAMG,
		LiquidatedUBA: closedUBA,
		RewardWei:     make(map[CollateralKind]*big.Int),
		FactorBIPS:    factor,
		DustChanges:   dust,
	}
	res.RewardWei = s.seizeCollateralWei(a, closedAMG, backed, factor)

	// a recoverable liquidation may already be healthy after the bite
	if a.Status == AgentLiquidation {
		status, _ := s.EndLiquidationIfHealthy(vault)
		res.Status = status
	} else {
		res.Status = a.Status
	}
	return res, nil
}

// seizeCollateralWei pays ONE compensation amount, factorBIPS of the value
// at current prices, out of the agent's collateral: vault collateral first,
// pool collateral only for the unpaid remainder. Each kind is capped at the
// value's pro-rata share of that kind's balance, floor division throughout.
func (s *Store) seizeCollateralWei(a *Agent, valueAMG AMG, backed AMG, factorBIPS uint32) map[CollateralKind]*big.Int {
	out := make(map[CollateralKind]*big.Int)

	vaultTarget := mulDivBips(s.Conversion(CollateralVault).AMGToTokenWei(valueAMG), factorBIPS)
	vaultPaid := minBig(vaultTarget, proRataShareWei(a.Collateral[CollateralVault], valueAMG, backed))
	a.Collateral[CollateralVault].Sub(a.Collateral[CollateralVault], vaultPaid)
	out[CollateralVault] = vaultPaid

	poolPaid := new(big.Int)
	if shortfall := new(big.Int).Sub(vaultTarget, vaultPaid); shortfall.Sign() > 0 {
		// the unpaid fraction of the target, re-expressed in pool tokens
		poolTarget := mulDivBips(s.Conversion(CollateralPool).AMGToTokenWei(valueAMG), factorBIPS)
		owed := new(big.Int).Mul(poolTarget, shortfall)
		owed.Quo(owed, vaultTarget)
		poolPaid = minBig(owed, proRataShareWei(a.Collateral[CollateralPool], valueAMG, backed))
		a.Collateral[CollateralPool].Sub(a.Collateral[CollateralPool], poolPaid)
	}
	out[CollateralPool] = poolPaid
	return out
}

func proRataShareWei(collateral *big.Int, valueAMG, backed AMG) *big.Int {
	share := new(big.Int).Mul(collateral, new(big.Int).SetUint64(valueAMG))
	return share.Quo(share, new(big.Int).SetUint64(backed))
}

// challengeRewardWei computes the challenger's reward from the agent's
// backing collateral.
func (s *Store) challengeRewardWei(a *Agent) map[CollateralKind]*big.Int {
	out := make(map[CollateralKind]*big.Int)
	for _, kind := range CollateralKinds {
		reward := mulDivBips(a.Collateral[kind], s.settings.PaymentChallengeRewardBIPS)
		a.Collateral[kind].Sub(a.Collateral[kind], reward)
		out[kind] = reward
	}
	return out
}
