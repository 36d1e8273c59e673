package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAMGTokenWeiPrice(t *testing.T) {
	e := newTestEnv(t)
	c := e.store.Conversion(CollateralVault)

	// asset $5.00, token $1.00, 10 UBA per AMG, 2 asset decimals:
	// 1 AMG = 0.1 asset units = $0.50 = 5e17 wei, scaled by 1e9
	want, _ := new(big.Int).SetString("500000000000000000000000000", 10)
	assert.Equal(t, want, c.AMGTokenWeiPrice())
}

func TestAMGTokenWeiPriceNormalizesOracleDecimals(t *testing.T) {
	e := newTestEnv(t)
	reference := e.store.Conversion(CollateralVault).AMGTokenWeiPrice()

	// the same $5.00 quoted with 5 decimals must give the same price
	e.store.SetAssetPrice(Price{Value: big.NewInt(500000), Decimals: 5, Timestamp: uint64(testEpoch)})
	assert.Equal(t, reference, e.store.Conversion(CollateralVault).AMGTokenWeiPrice())

	// and the token side with 6 decimals too
	e.store.SetTokenPrice(CollateralVault, Price{Value: big.NewInt(1000000), Decimals: 6, Timestamp: uint64(testEpoch)})
	assert.Equal(t, reference, e.store.Conversion(CollateralVault).AMGTokenWeiPrice())
}

func TestAMGTokenWeiPricePanicsOnZeroTokenPrice(t *testing.T) {
	e := newTestEnv(t)
	e.store.SetTokenPrice(CollateralVault, Price{Value: big.NewInt(0), Decimals: 2})
	assert.Panics(t, func() {
		e.store.Conversion(CollateralVault).AMGTokenWeiPrice()
	})
}

func TestAMGToTokenWeiFloors(t *testing.T) {
	e := newTestEnv(t)
	c := e.store.Conversion(CollateralVault)

	assert.Equal(t, tokens(5), c.AMGToTokenWei(10), "one lot is worth 5 tokens")
	assert.Equal(t, big.NewInt(500000000000000000), c.AMGToTokenWei(1))

	// $3.33: 1 AMG = 3.33e17 wei exactly; 3 AMG must floor, not round
	e.store.SetAssetPrice(Price{Value: big.NewInt(333), Decimals: 2})
	c = e.store.Conversion(CollateralVault)
	assert.Equal(t, big.NewInt(999000000000000000), c.AMGToTokenWei(3))
}

func TestTokenWeiToAMGFloors(t *testing.T) {
	e := newTestEnv(t)
	c := e.store.Conversion(CollateralVault)

	// 7.4e17 wei buys 1.48 AMG; floor division gives 1
	assert.Equal(t, AMG(1), c.TokenWeiToAMG(big.NewInt(740000000000000000)))
	assert.Equal(t, AMG(2), c.TokenWeiToAMG(tokens(1)))
	assert.Equal(t, AMG(0), c.TokenWeiToAMG(big.NewInt(1)))
}

func TestUnitConversions(t *testing.T) {
	s := testSettings()

	assert.Equal(t, big.NewInt(100), s.LotSizeUBA())
	assert.Equal(t, big.NewInt(70), s.AMGToUBA(7))
	assert.Equal(t, AMG(7), s.UBAToAMG(big.NewInt(79)), "sub-AMG residue floors away")
	assert.Equal(t, big.NewInt(300), s.LotsToUBA(3))
	assert.Equal(t, AMG(30), s.LotsToAMG(3))
}

func TestLotsToAMGPanicsOnOverflow(t *testing.T) {
	s := testSettings()
	assert.Panics(t, func() { s.LotsToAMG(^uint64(0)) })
}

func TestSettingsValidate(t *testing.T) {
	valid := func() *Settings { return testSettings() }
	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero lot size", func(s *Settings) { s.LotSizeAMG = 0 }},
		{"zero granularity", func(s *Settings) { s.AssetMintingGranularityUBA = big.NewInt(0) }},
		{"zero ticket cap", func(s *Settings) { s.MaxRedeemedTickets = 0 }},
		{"zero payment window", func(s *Settings) { s.UnderlyingBlocksForPayment = 0 }},
		{"empty liquidation schedule", func(s *Settings) { s.LiquidationFactorBIPS = nil }},
		{"non-increasing liquidation schedule", func(s *Settings) { s.LiquidationFactorBIPS = []uint32{12000, 12000} }},
		{"full liquidation step out of range", func(s *Settings) { s.FullLiquidationFactorStep = 3 }},
		{"default factor below 100%", func(s *Settings) { s.RedemptionDefaultFactorBIPS = 10000 }},
		{"min CR below 100%", func(s *Settings) { s.Vault.MinCollateralRatioBIPS = 9000 }},
		{"CCB below min CR", func(s *Settings) { s.Pool.CCBMinCollateralRatioBIPS = 14000 }},
		{"safety below CCB", func(s *Settings) { s.Vault.SafetyMinCollateralRatioBIPS = 15500 }},
		{"minting below safety", func(s *Settings) { s.Pool.MintingMinCollateralRatioBIPS = 17000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}
