package core

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEpoch = int64(1_700_000_000)

// testSettings: 1 AMG = 10 UBA, 1 lot = 10 AMG = 100 UBA. With the test
// quotes (asset $5.00, both collateral tokens $1.00, 18 decimals) one AMG
// converts to 5e17 wei, so one lot is worth 5 tokens.
func testSettings() *Settings {
	class := CollateralClassSettings{
		MinCollateralRatioBIPS:        15000,
		CCBMinCollateralRatioBIPS:     16000,
		SafetyMinCollateralRatioBIPS:  18000,
		MintingMinCollateralRatioBIPS: 20000,
		TokenDecimals:                 18,
	}
	return &Settings{
		LotSizeAMG:                 10,
		AssetMintingGranularityUBA: big.NewInt(10),
		AssetDecimals:              2,
		Vault:                      class,
		Pool:                       class,

		UnderlyingBlocksForPayment:  100,
		UnderlyingSecondsForPayment: 3600,
		AverageBlockTimeMS:          1000,

		MintingFeeBIPS:              100,
		RedemptionFeeBIPS:           200,
		RedemptionDefaultFactorBIPS: 12000,

		MaxRedeemedTickets: 20,

		WithdrawalWaitMinSeconds: 300,
		WithdrawalWindowSeconds:  600,

		CCBTimeSeconds:            1800,
		LiquidationStepSeconds:    90,
		LiquidationFactorBIPS:     []uint32{12000, 16000, 20000},
		FullLiquidationFactorStep: 1,

		PaymentChallengeRewardBIPS: 300,
		ConfirmationBlocks:         100,
		DestroyWaitMinSeconds:      3600,
	}
}

type testEnv struct {
	store *Store
	now   int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	settings := testSettings()
	require.NoError(t, settings.Validate())
	env := &testEnv{now: testEpoch}
	s := NewStore(settings)
	s.Clock = func() int64 { return env.now }
	s.SetAssetPrice(Price{Value: big.NewInt(500), Decimals: 2, Timestamp: uint64(testEpoch)})
	s.SetTokenPrice(CollateralVault, Price{Value: big.NewInt(100), Decimals: 2, Timestamp: uint64(testEpoch)})
	s.SetTokenPrice(CollateralPool, Price{Value: big.NewInt(100), Decimals: 2, Timestamp: uint64(testEpoch)})
	s.UpdateCurrentBlock(BlockHeightProof{BlockNumber: 1000, BlockTimestamp: uint64(testEpoch)})
	env.store = s
	return env
}

func (e *testEnv) advance(seconds int64) { e.now += seconds }

// tokens converts whole collateral tokens to wei.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func txID(n uint64) common.Hash {
	var h common.Hash
	h[0] = 0xdd
	binary.BigEndian.PutUint64(h[24:], n)
	return h
}

// newAgent registers a publicly available agent with 1000 tokens of each
// collateral kind, enough to mint 100 lots at the 2x minting CR.
func (e *testEnv) newAgent(t *testing.T, vault string) *Agent {
	t.Helper()
	a, err := e.store.CreateAgent("owner-"+vault, vault, "UNDERLYING_"+vault)
	require.NoError(t, err)
	require.NoError(t, e.store.DepositCollateral(vault, CollateralVault, tokens(1000)))
	require.NoError(t, e.store.DepositCollateral(vault, CollateralPool, tokens(1000)))
	require.NoError(t, e.store.SetPubliclyAvailable(a.Owner, vault, true))
	return a
}

func (e *testEnv) mintingProof(r *CollateralReservation, received *big.Int, tx uint64) PaymentProof {
	return PaymentProof{
		TransactionID:        txID(tx),
		SourceAddressHash:    UnderlyingAddressHash("minter-wallet"),
		ReceivingAddressHash: UnderlyingAddressHash(r.PaymentAddress),
		SpentUBA:             new(big.Int).Set(received),
		ReceivedUBA:          new(big.Int).Set(received),
		PaymentReference:     r.PaymentReference,
		BlockNumber:          r.FirstUnderlyingBlock + 1,
		BlockTimestamp:       uint64(e.now),
	}
}

// mint reserves and executes in one step, paying exactly value plus fee.
func (e *testEnv) mint(t *testing.T, vault, minter string, lots, tx uint64) *MintingResult {
	t.Helper()
	r, err := e.store.ReserveCollateral(minter, vault, lots)
	require.NoError(t, err)
	required := new(big.Int).Add(r.ValueUBA, r.FeeUBA)
	res, err := e.store.ExecuteMinting(e.mintingProof(r, required, tx), r.ID)
	require.NoError(t, err)
	return res
}

// assertBackingIdentity checks mintedAMG == sum of agent tickets + dust.
func (e *testEnv) assertBackingIdentity(t *testing.T, a *Agent) {
	t.Helper()
	var ticketAMG AMG
	for _, tk := range e.store.AgentTicketsInOrder(a) {
		ticketAMG += tk.ValueAMG
	}
	assert.Equal(t, a.MintedAMG, ticketAMG+a.DustAMG, "minted must equal tickets plus dust")
}

func TestCurrentUnderlyingBlockTimeshift(t *testing.T) {
	e := newTestEnv(t)

	block, ts := e.store.CurrentUnderlyingBlock()
	assert.Equal(t, uint64(1000), block)
	assert.Equal(t, uint64(testEpoch), ts)

	// 1s average block time: 10 wall seconds extrapolate 10 blocks
	e.advance(10)
	block, ts = e.store.CurrentUnderlyingBlock()
	assert.Equal(t, uint64(1010), block)
	assert.Equal(t, uint64(testEpoch+10), ts)
}

func TestUpdateCurrentBlockNeverGoesBackwards(t *testing.T) {
	e := newTestEnv(t)

	e.store.UpdateCurrentBlock(BlockHeightProof{BlockNumber: 900, BlockTimestamp: uint64(testEpoch)})
	block, _ := e.store.CurrentUnderlyingBlock()
	assert.Equal(t, uint64(1000), block)

	e.store.UpdateCurrentBlock(BlockHeightProof{BlockNumber: 1200, BlockTimestamp: uint64(testEpoch + 5)})
	block, _ = e.store.CurrentUnderlyingBlock()
	assert.Equal(t, uint64(1200), block)
}

func TestMintingPauseGatesNewReservationsOnly(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	// reservation opened before the pause still executes
	r, err := e.store.ReserveCollateral("minter1", "vault1", 2)
	require.NoError(t, err)

	e.store.PauseMinting()
	assert.True(t, e.store.MintingPaused())

	_, err = e.store.ReserveCollateral("minter1", "vault1", 1)
	assert.ErrorIs(t, err, ErrMintingPaused)

	required := new(big.Int).Add(r.ValueUBA, r.FeeUBA)
	_, err = e.store.ExecuteMinting(e.mintingProof(r, required, 1), r.ID)
	assert.NoError(t, err)

	e.store.ResumeMinting()
	_, err = e.store.ReserveCollateral("minter1", "vault1", 1)
	assert.NoError(t, err)
}

func TestPruneOldPaymentRecords(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 1, 1)
	require.Len(t, e.store.PaymentRecords(), 1)

	// record is at block ~1001, retention window is 100 blocks
	e.store.UpdateCurrentBlock(BlockHeightProof{BlockNumber: 1050, BlockTimestamp: uint64(e.now)})
	assert.Equal(t, 0, e.store.PruneOldPaymentRecords())

	e.store.UpdateCurrentBlock(BlockHeightProof{BlockNumber: 1200, BlockTimestamp: uint64(e.now)})
	assert.Equal(t, 1, e.store.PruneOldPaymentRecords())
	assert.Empty(t, e.store.PaymentRecords())
}

func TestReloadSettingsSwapsValue(t *testing.T) {
	e := newTestEnv(t)
	updated := *testSettings()
	updated.MintingFeeBIPS = 250
	require.NoError(t, updated.Validate())

	e.store.ReloadSettings(&updated)
	assert.Equal(t, uint32(250), e.store.Settings().MintingFeeBIPS)
}
