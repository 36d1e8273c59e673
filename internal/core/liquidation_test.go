package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// underwaterAgent mints 10 lots (100 AMG) and moves the asset price so the
// collateral ratio lands where the scenario needs it. At $70.00 the backing
// is worth 700 tokens against 1000 of collateral: ratio 14285, below the
// 15000 liquidation threshold.
func (e *testEnv) underwaterAgent(t *testing.T, assetPriceCents int64) *Agent {
	t.Helper()
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 10, 1)
	e.store.SetAssetPrice(Price{Value: big.NewInt(assetPriceCents), Decimals: 2, Timestamp: uint64(e.now)})
	return a
}

func TestStartLiquidationHealthyAgent(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 10, 1)

	_, err := e.store.StartLiquidation("vault1")
	assert.ErrorIs(t, err, ErrAgentHealthy)
}

func TestStartLiquidationEntersCCB(t *testing.T) {
	e := newTestEnv(t)
	// $64.50: backing worth 645 tokens, ratio 15503, inside the CCB band
	a := e.underwaterAgent(t, 6450)

	status, err := e.store.StartLiquidation("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentCCB, status)
	assert.Equal(t, e.now, a.CCBStartedAt)

	// still inside the grace period: CCB persists
	e.advance(600)
	status, err = e.store.StartLiquidation("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentCCB, status)

	// grace period over and still underwater: escalate
	e.advance(1200)
	status, err = e.store.StartLiquidation("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentLiquidation, status)
	assert.Zero(t, a.InitialLiquidationStep)
}

func TestStartLiquidationBelowMinSkipsCCB(t *testing.T) {
	e := newTestEnv(t)
	a := e.underwaterAgent(t, 7000)

	status, err := e.store.StartLiquidation("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentLiquidation, status)
	assert.Zero(t, a.InitialLiquidationStep)

	// idempotent while liquidating
	status, err = e.store.StartLiquidation("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentLiquidation, status)
}

func TestEndLiquidationIfHealthy(t *testing.T) {
	e := newTestEnv(t)
	a := e.underwaterAgent(t, 7000)
	_, err := e.store.StartLiquidation("vault1")
	require.NoError(t, err)

	// backing is worth 700 tokens; recovery needs the 1.8x safety ratio on
	// BOTH collateral kinds
	require.NoError(t, e.store.DepositCollateral("vault1", CollateralVault, tokens(400)))
	status, err := e.store.EndLiquidationIfHealthy("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentLiquidation, status, "pool side still underwater")

	require.NoError(t, e.store.DepositCollateral("vault1", CollateralPool, tokens(400)))
	status, err = e.store.EndLiquidationIfHealthy("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentNormal, status)
	assert.Zero(t, a.LiquidationStartedAt)
}

func TestLiquidateSeizesCollateralAtScheduleFactor(t *testing.T) {
	e := newTestEnv(t)
	a := e.underwaterAgent(t, 7000)
	_, err := e.store.StartLiquidation("vault1")
	require.NoError(t, err)

	// step 0 factor 1.2: 10 AMG are worth 70 tokens, reward 84, under the
	// pro-rata cap of 100; the vault side covers the whole reward
	res, err := e.store.Liquidate("liquidator1", "vault1", big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, AMG(10), res.LiquidatedAMG)
	assert.Equal(t, big.NewInt(100), res.LiquidatedUBA)
	assert.Equal(t, tokens(84), res.RewardWei[CollateralVault])
	assert.Zero(t, res.RewardWei[CollateralPool].Sign())
	assert.Equal(t, AgentLiquidation, res.Status)

	assert.Equal(t, tokens(916), a.Collateral[CollateralVault])
	assert.Equal(t, tokens(1000), a.Collateral[CollateralPool])
	assert.Equal(t, AMG(90), a.MintedAMG)
	assert.Equal(t, big.NewInt(110), a.FreeUnderlyingUBA, "closed value plus minting fee")
	e.assertBackingIdentity(t, a)

	// one unattended step later the factor is 1.6, which exceeds the
	// pro-rata vault share: the cap binds and the pool covers the unpaid
	// remainder (both token kinds trade at the same test price)
	e.advance(90)
	capWei := new(big.Int).Div(new(big.Int).Mul(a.Collateral[CollateralVault], big.NewInt(10)), big.NewInt(90))
	res, err = e.store.Liquidate("liquidator1", "vault1", big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, capWei, res.RewardWei[CollateralVault])
	assert.Equal(t, new(big.Int).Sub(tokens(112), capWei), res.RewardWei[CollateralPool])
}

func TestLiquidateRecoversHealthyAgent(t *testing.T) {
	e := newTestEnv(t)
	a := e.underwaterAgent(t, 7000)
	_, err := e.store.StartLiquidation("vault1")
	require.NoError(t, err)

	// a big enough bite restores the ratio above the safety threshold and
	// ends the liquidation in the same call
	res, err := e.store.Liquidate("liquidator1", "vault1", big.NewInt(800))
	require.NoError(t, err)
	assert.Equal(t, AMG(80), res.LiquidatedAMG)
	assert.Equal(t, AgentNormal, res.Status)
	assert.Equal(t, AgentNormal, a.Status)
}

func TestLiquidateRequiresLiquidationStatus(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 10, 1)

	_, err := e.store.Liquidate("liquidator1", "vault1", big.NewInt(100))
	assert.ErrorIs(t, err, ErrInvalidAgentStatus)
}

func TestFullLiquidationIsIrreversible(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 10, 1)

	// a successful challenge forces full liquidation regardless of CR
	proof := BalanceDecreasingProof{
		TransactionID:     txID(90),
		SourceAddressHash: a.UnderlyingHash,
		SpentUBA:          big.NewInt(50),
		PaymentReference:  txID(91), // no live claim carries this reference
		BlockNumber:       999,
	}
	_, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
	require.NoError(t, err)
	require.Equal(t, AgentFullLiquidation, a.Status)
	assert.Equal(t, 1, a.InitialLiquidationStep, "challenge liquidation starts deeper in the schedule")

	// no recovery path: healthy collateral does not matter
	require.NoError(t, e.store.DepositCollateral("vault1", CollateralVault, tokens(5000)))
	status, err := e.store.EndLiquidationIfHealthy("vault1")
	require.NoError(t, err)
	assert.Equal(t, AgentFullLiquidation, status)

	_, err = e.store.StartLiquidation("vault1")
	assert.ErrorIs(t, err, ErrInvalidAgentStatus)

	// but liquidation bites still proceed
	_, err = e.store.Liquidate("liquidator1", "vault1", big.NewInt(100))
	assert.NoError(t, err)
}
