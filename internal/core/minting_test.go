package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveCollateral(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	r, err := e.store.ReserveCollateral("minter1", "vault1", 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.ID)
	assert.Equal(t, AMG(30), r.ValueAMG)
	assert.Equal(t, big.NewInt(300), r.ValueUBA)
	assert.Equal(t, big.NewInt(3), r.FeeUBA, "1% minting fee")
	assert.Equal(t, "UNDERLYING_vault1", r.PaymentAddress)
	assert.Equal(t, MintingReference(r.ID), r.PaymentReference)
	assert.False(t, r.SelfMint)

	// payment window anchored at the current underlying block
	assert.Equal(t, uint64(1000), r.FirstUnderlyingBlock)
	assert.Equal(t, uint64(1100), r.LastUnderlyingBlock)
	assert.Equal(t, uint64(testEpoch+3600), r.LastUnderlyingTimestamp)

	assert.Equal(t, AMG(30), a.ReservedAMG)
	assert.Zero(t, a.MintedAMG)
}

func TestReserveCollateralAccessChecks(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	require.NoError(t, e.store.SetPubliclyAvailable(a.Owner, "vault1", false))

	_, err := e.store.ReserveCollateral("minter1", "vault1", 1)
	assert.ErrorIs(t, err, ErrNotPubliclyAvailable)

	// the owner can always self-mint
	r, err := e.store.ReserveCollateral(a.Owner, "vault1", 1)
	require.NoError(t, err)
	assert.True(t, r.SelfMint)

	_, err = e.store.ReserveCollateral("minter1", "vault1", 0)
	assert.Error(t, err)

	_, err = e.store.ReserveCollateral("minter1", "no-such-vault", 1)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestReserveCollateralRequiresFreeCollateral(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	// 1000 tokens at the 2x minting CR back at most 100 lots
	_, err := e.store.ReserveCollateral("minter1", "vault1", 100)
	require.NoError(t, err)
	_, err = e.store.ReserveCollateral("minter1", "vault1", 1)
	assert.ErrorIs(t, err, ErrNotEnoughFreeCollateral)
}

func TestExecuteMinting(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	r, err := e.store.ReserveCollateral("minter1", "vault1", 3)
	require.NoError(t, err)

	// overpay by 7 UBA on top of value 300 + fee 3
	paid := big.NewInt(310)
	res, err := e.store.ExecuteMinting(e.mintingProof(r, paid, 1), r.ID)
	require.NoError(t, err)

	assert.Zero(t, a.ReservedAMG)
	assert.Equal(t, AMG(30), a.MintedAMG)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, AMG(30), res.Ticket.ValueAMG)
	assert.Equal(t, "vault1", res.Ticket.AgentVault)
	assert.Equal(t, big.NewInt(10), res.FeeUBA, "fee plus overpayment goes to free balance")
	assert.Equal(t, big.NewInt(10), a.FreeUnderlyingUBA)
	e.assertBackingIdentity(t, a)

	// the reservation is gone: terminal state, id never reused
	_, err = e.store.ExecuteMinting(e.mintingProof(r, paid, 2), r.ID)
	assert.ErrorIs(t, err, ErrInvalidReservation)
}

func TestExecuteMintingRejections(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	r, err := e.store.ReserveCollateral("minter1", "vault1", 3)
	require.NoError(t, err)
	required := new(big.Int).Add(r.ValueUBA, r.FeeUBA)

	t.Run("underpayment", func(t *testing.T) {
		proof := e.mintingProof(r, big.NewInt(302), 10)
		_, err := e.store.ExecuteMinting(proof, r.ID)
		assert.ErrorIs(t, err, ErrUnderpayment)
	})

	t.Run("wrong reference", func(t *testing.T) {
		proof := e.mintingProof(r, required, 11)
		proof.PaymentReference = MintingReference(r.ID + 1)
		_, err := e.store.ExecuteMinting(proof, r.ID)
		assert.ErrorIs(t, err, ErrProofMismatch)
	})

	t.Run("wrong receiving address", func(t *testing.T) {
		proof := e.mintingProof(r, required, 12)
		proof.ReceivingAddressHash = UnderlyingAddressHash("someone-else")
		_, err := e.store.ExecuteMinting(proof, r.ID)
		assert.ErrorIs(t, err, ErrProofMismatch)
	})

	t.Run("failed transaction", func(t *testing.T) {
		proof := e.mintingProof(r, required, 13)
		proof.Failed = true
		_, err := e.store.ExecuteMinting(proof, r.ID)
		assert.ErrorIs(t, err, ErrProofMismatch)
	})

	t.Run("payment before the reservation", func(t *testing.T) {
		proof := e.mintingProof(r, required, 14)
		proof.BlockNumber = r.FirstUnderlyingBlock - 1
		_, err := e.store.ExecuteMinting(proof, r.ID)
		assert.ErrorIs(t, err, ErrStalePaymentProof)
	})
}

func TestExecuteMintingReplayPrevention(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	r1, err := e.store.ReserveCollateral("minter1", "vault1", 1)
	require.NoError(t, err)
	r2, err := e.store.ReserveCollateral("minter1", "vault1", 1)
	require.NoError(t, err)
	required := new(big.Int).Add(r1.ValueUBA, r1.FeeUBA)

	_, err = e.store.ExecuteMinting(e.mintingProof(r1, required, 1), r1.ID)
	require.NoError(t, err)

	// the same underlying transaction cannot back a second claim
	proof := e.mintingProof(r2, required, 1)
	proof.PaymentReference = r2.PaymentReference
	_, err = e.store.ExecuteMinting(proof, r2.ID)
	assert.ErrorIs(t, err, ErrPaymentAlreadyConfirmed)
}

func nonPaymentProofFor(r *CollateralReservation) NonPaymentProof {
	return NonPaymentProof{
		DestinationAddressHash: UnderlyingAddressHash(r.PaymentAddress),
		PaymentReference:       r.PaymentReference,
		AmountUBA:              new(big.Int).Add(r.ValueUBA, r.FeeUBA),
		LowerBoundaryBlock:     r.FirstUnderlyingBlock,
		FirstOverflowBlock:     r.LastUnderlyingBlock + 1,
		FirstOverflowTimestamp: r.LastUnderlyingTimestamp + 1,
	}
}

func TestMintingPaymentDefault(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	r, err := e.store.ReserveCollateral("minter1", "vault1", 3)
	require.NoError(t, err)
	require.Equal(t, AMG(30), a.ReservedAMG)

	t.Run("only the agent owner", func(t *testing.T) {
		_, err := e.store.MintingPaymentDefault("minter1", nonPaymentProofFor(r), r.ID)
		assert.ErrorIs(t, err, ErrNotAgentOwner)
	})

	t.Run("amount must match value plus fee exactly", func(t *testing.T) {
		proof := nonPaymentProofFor(r)
		proof.AmountUBA = big.NewInt(300)
		_, err := e.store.MintingPaymentDefault(a.Owner, proof, r.ID)
		assert.ErrorIs(t, err, ErrProofMismatch)
	})

	t.Run("proof window must start at or before the request", func(t *testing.T) {
		proof := nonPaymentProofFor(r)
		proof.LowerBoundaryBlock = r.FirstUnderlyingBlock + 1
		_, err := e.store.MintingPaymentDefault(a.Owner, proof, r.ID)
		assert.ErrorIs(t, err, ErrRequestTooOld)
	})

	t.Run("both deadlines must have passed", func(t *testing.T) {
		proof := nonPaymentProofFor(r)
		proof.FirstOverflowBlock = r.LastUnderlyingBlock
		_, err := e.store.MintingPaymentDefault(a.Owner, proof, r.ID)
		assert.ErrorIs(t, err, ErrDeadlineNotPassed)

		proof = nonPaymentProofFor(r)
		proof.FirstOverflowTimestamp = r.LastUnderlyingTimestamp
		_, err = e.store.MintingPaymentDefault(a.Owner, proof, r.ID)
		assert.ErrorIs(t, err, ErrDeadlineNotPassed)
	})

	t.Run("success releases the reservation", func(t *testing.T) {
		defaulted, err := e.store.MintingPaymentDefault(a.Owner, nonPaymentProofFor(r), r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, defaulted.ID)
		assert.Zero(t, a.ReservedAMG)
		assert.Zero(t, a.MintedAMG)
	})

	t.Run("default and execute are mutually exclusive", func(t *testing.T) {
		required := new(big.Int).Add(r.ValueUBA, r.FeeUBA)
		_, err := e.store.ExecuteMinting(e.mintingProof(r, required, 20), r.ID)
		assert.ErrorIs(t, err, ErrInvalidReservation)
	})
}
