package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAgent(t *testing.T) {
	e := newTestEnv(t)

	a, err := e.store.CreateAgent("owner1", "vault1", "ADDR_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.ID)
	assert.Equal(t, AgentNormal, a.Status)
	assert.False(t, a.PubliclyAvailable)

	_, err = e.store.CreateAgent("owner2", "vault1", "ADDR_2")
	assert.ErrorIs(t, err, ErrAgentExists)

	_, err = e.store.CreateAgent("owner2", "vault2", "ADDR_1")
	assert.ErrorIs(t, err, ErrAddressInUse)

	found, ok := e.store.AgentByUnderlying(UnderlyingAddressHash("ADDR_1"))
	require.True(t, ok)
	assert.Equal(t, a, found)

	_, err = e.store.Agent("no-such-vault")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestOwnerOnlyOperations(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	err := e.store.SetPubliclyAvailable("stranger", "vault1", false)
	assert.ErrorIs(t, err, ErrNotAgentOwner)

	err = e.store.AnnounceWithdrawal("stranger", "vault1", CollateralVault, tokens(1))
	assert.ErrorIs(t, err, ErrNotAgentOwner)

	err = e.store.AnnounceDestroy("stranger", "vault1")
	assert.ErrorIs(t, err, ErrNotAgentOwner)
}

func TestSetMinCollateralRatio(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	require.NoError(t, e.store.SetMinCollateralRatio(a.Owner, "vault1", CollateralVault, 25000))
	assert.Equal(t, uint32(25000), a.MinCollateralRatioBIPS[CollateralVault])

	// never below the protocol floor
	err := e.store.SetMinCollateralRatio(a.Owner, "vault1", CollateralVault, 14000)
	assert.Error(t, err)
}

func TestCollateralRatio(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	// nothing backed: effectively infinite
	assert.Equal(t, ^uint32(0), e.store.CollateralRatioBIPS(a, CollateralVault))

	// 10 lots = 100 AMG backed, worth 50 tokens; 1000 tokens collateral
	e.mint(t, "vault1", "minter1", 10, 1)
	assert.Equal(t, uint32(200000), e.store.CollateralRatioBIPS(a, CollateralVault))
}

func TestCollateralWithdrawalLifecycle(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 10, 1)

	// 100 AMG backed = 50 tokens; locked at 2x minting CR = 100 tokens
	err := e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, tokens(950))
	assert.ErrorIs(t, err, ErrNotEnoughFreeCollateral)

	require.NoError(t, e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, tokens(900)))

	_, err = e.store.ExecuteWithdrawal(a.Owner, "vault1", CollateralVault, tokens(900))
	assert.ErrorIs(t, err, ErrWithdrawalTooSoon)

	e.advance(300)
	paid, err := e.store.ExecuteWithdrawal(a.Owner, "vault1", CollateralVault, tokens(400))
	require.NoError(t, err)
	assert.Equal(t, tokens(400), paid)
	assert.Equal(t, tokens(600), a.Collateral[CollateralVault])
	assert.Equal(t, tokens(500), a.Withdrawal[CollateralVault].AmountWei)

	// the rest expires with the window
	e.advance(601)
	_, err = e.store.ExecuteWithdrawal(a.Owner, "vault1", CollateralVault, tokens(500))
	assert.ErrorIs(t, err, ErrWithdrawalWindowExpired)
}

func TestAnnounceWithdrawalDecreaseKeepsTimer(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	require.NoError(t, e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, tokens(500)))
	allowedAt := a.Withdrawal[CollateralVault].AllowedAt

	e.advance(100)
	require.NoError(t, e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, tokens(200)))
	assert.Equal(t, allowedAt, a.Withdrawal[CollateralVault].AllowedAt, "no second wait for less")

	// increasing restarts the wait
	require.NoError(t, e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, tokens(600)))
	assert.Equal(t, e.now+300, a.Withdrawal[CollateralVault].AllowedAt)

	// zero cancels
	require.NoError(t, e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, big.NewInt(0)))
	assert.Nil(t, a.Withdrawal[CollateralVault])
}

func TestExecuteWithdrawalEnforcesLockedCollateral(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	require.NoError(t, e.store.AnnounceWithdrawal(a.Owner, "vault1", CollateralVault, tokens(850)))

	// more backing appears while the announcement waits; the CR floor is
	// checked against the collateral at execution time
	e.mint(t, "vault1", "minter1", 20, 1)

	e.advance(300)
	_, err := e.store.ExecuteWithdrawal(a.Owner, "vault1", CollateralVault, tokens(850))
	assert.ErrorIs(t, err, ErrNotEnoughFreeCollateral)

	// 200 AMG backed = 100 tokens, locked 200: withdrawing 800 is fine
	paid, err := e.store.ExecuteWithdrawal(a.Owner, "vault1", CollateralVault, tokens(800))
	require.NoError(t, err)
	assert.Equal(t, tokens(800), paid)
}

func TestWithdrawalNotAnnounced(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	_, err := e.store.ExecuteWithdrawal(a.Owner, "vault1", CollateralVault, tokens(1))
	assert.ErrorIs(t, err, ErrNotAnnounced)
}

func TestUnderlyingWithdrawalLifecycle(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 10, 1)
	free := new(big.Int).Set(a.FreeUnderlyingUBA)

	ref, err := e.store.AnnounceUnderlyingWithdrawal(a.Owner, "vault1")
	require.NoError(t, err)
	assert.Equal(t, WithdrawalReference(a.UnderlyingWithdrawalID), ref)

	// one outstanding announcement per agent
	_, err = e.store.AnnounceUnderlyingWithdrawal(a.Owner, "vault1")
	assert.ErrorIs(t, err, ErrInvalidAgentStatus)

	proof := PaymentProof{
		TransactionID:        txID(50),
		SourceAddressHash:    a.UnderlyingHash,
		ReceivingAddressHash: UnderlyingAddressHash("somewhere-else"),
		SpentUBA:             big.NewInt(4),
		ReceivedUBA:          big.NewInt(4),
		PaymentReference:     ref,
		BlockNumber:          1001,
	}
	require.NoError(t, e.store.ConfirmUnderlyingWithdrawal(a.Owner, "vault1", proof))
	assert.Equal(t, new(big.Int).Sub(free, big.NewInt(4)), a.FreeUnderlyingUBA)
	assert.Zero(t, a.UnderlyingWithdrawalID)

	// settled announcement cannot be confirmed again
	err = e.store.ConfirmUnderlyingWithdrawal(a.Owner, "vault1", proof)
	assert.ErrorIs(t, err, ErrNotAnnounced)

	// a fresh announcement can be cancelled if never paid
	_, err = e.store.AnnounceUnderlyingWithdrawal(a.Owner, "vault1")
	require.NoError(t, err)
	require.NoError(t, e.store.CancelUnderlyingWithdrawal(a.Owner, "vault1"))
	assert.Zero(t, a.UnderlyingWithdrawalID)
}

func TestConfirmTopupPayment(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	proof := PaymentProof{
		TransactionID:        txID(60),
		SourceAddressHash:    UnderlyingAddressHash("agent-hot-wallet"),
		ReceivingAddressHash: a.UnderlyingHash,
		SpentUBA:             big.NewInt(120),
		ReceivedUBA:          big.NewInt(120),
		PaymentReference:     TopupReference(a.ID),
		BlockNumber:          1001,
	}
	require.NoError(t, e.store.ConfirmTopupPayment(a.Owner, "vault1", proof))
	assert.Equal(t, big.NewInt(120), a.FreeUnderlyingUBA)

	// replay
	err := e.store.ConfirmTopupPayment(a.Owner, "vault1", proof)
	assert.ErrorIs(t, err, ErrPaymentAlreadyConfirmed)

	// wrong reference
	proof.TransactionID = txID(61)
	proof.PaymentReference = TopupReference(a.ID + 1)
	err = e.store.ConfirmTopupPayment(a.Owner, "vault1", proof)
	assert.ErrorIs(t, err, ErrProofMismatch)
}

func TestDestroyLifecycle(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", a.Owner, 2, 1)

	// backing outstanding: not destroyable
	err := e.store.AnnounceDestroy(a.Owner, "vault1")
	assert.ErrorIs(t, err, ErrDestroyNotAllowed)

	_, err = e.store.SelfClose(a.Owner, "vault1", big.NewInt(200))
	require.NoError(t, err)
	require.NoError(t, e.store.AnnounceDestroy(a.Owner, "vault1"))
	assert.Equal(t, AgentDestroying, a.Status)

	// destroying agents accept no new business
	_, err = e.store.ReserveCollateral(a.Owner, "vault1", 1)
	assert.ErrorIs(t, err, ErrInvalidAgentStatus)
	err = e.store.DepositCollateral("vault1", CollateralVault, tokens(1))
	assert.ErrorIs(t, err, ErrInvalidAgentStatus)

	_, err = e.store.DestroyAgent(a.Owner, "vault1")
	assert.ErrorIs(t, err, ErrDestroyNotAllowed)

	e.advance(3600)
	remaining, err := e.store.DestroyAgent(a.Owner, "vault1")
	require.NoError(t, err)
	assert.Equal(t, tokens(1000), remaining[CollateralVault])
	assert.Equal(t, tokens(1000), remaining[CollateralPool])

	_, err = e.store.Agent("vault1")
	assert.ErrorIs(t, err, ErrUnknownAgent)

	// the underlying address becomes bindable again
	_, err = e.store.CreateAgent("owner2", "vault2", "UNDERLYING_vault1")
	assert.NoError(t, err)
}
