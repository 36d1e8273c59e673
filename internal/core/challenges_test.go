package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) decreasingProof(a *Agent, tx uint64, ref common.Hash, spent int64) BalanceDecreasingProof {
	return BalanceDecreasingProof{
		TransactionID:     txID(tx),
		SourceAddressHash: a.UnderlyingHash,
		SpentUBA:          big.NewInt(spent),
		PaymentReference:  ref,
		BlockNumber:       1000,
	}
}

func TestIllegalPaymentChallenge(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1)
	r := e.redeemOne(t, "redeemer1", 2)

	t.Run("not the agent's address", func(t *testing.T) {
		proof := e.decreasingProof(a, 10, txID(99), 50)
		proof.SourceAddressHash = UnderlyingAddressHash("someone-else")
		_, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		assert.ErrorIs(t, err, ErrNotAgentsAddress)
	})

	t.Run("outside the retention window", func(t *testing.T) {
		proof := e.decreasingProof(a, 11, txID(99), 50)
		proof.BlockNumber = 800
		_, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		assert.ErrorIs(t, err, ErrTransactionTooOld)
	})

	t.Run("already confirmed payment", func(t *testing.T) {
		// the minting payment was recorded, but from the minter's address;
		// use a recorded agent payment instead: confirm the redemption
		proof := e.redemptionProof(t, r, 12)
		require.NoError(t, e.store.ConfirmRedemptionPayment(a.Owner, proof, r.ID))
		challenge := e.decreasingProof(a, 12, proof.PaymentReference, 50)
		_, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", challenge)
		assert.ErrorIs(t, err, ErrPaymentAlreadyConfirmed)
	})

	t.Run("matches a live redemption", func(t *testing.T) {
		r2 := e.redeemOne(t, "redeemer1", 1)
		proof := e.decreasingProof(a, 13, r2.PaymentReference, 50)
		_, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		assert.ErrorIs(t, err, ErrMatchingRedemption)
	})

	t.Run("matches an announced withdrawal", func(t *testing.T) {
		ref, err := e.store.AnnounceUnderlyingWithdrawal(a.Owner, "vault1")
		require.NoError(t, err)
		proof := e.decreasingProof(a, 14, ref, 50)
		_, err = e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		assert.ErrorIs(t, err, ErrMatchingAnnouncedPayment)
	})

	t.Run("topup reference is legal", func(t *testing.T) {
		proof := e.decreasingProof(a, 15, TopupReference(a.ID), 50)
		_, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		assert.ErrorIs(t, err, ErrMatchingRedemption)
	})

	t.Run("open self-mint reservation is legal", func(t *testing.T) {
		res, err := e.store.ReserveCollateral(a.Owner, "vault1", 1)
		require.NoError(t, err)

		// the agent pays its own reservation from its underlying address;
		// the payment must not be challengeable before ExecuteMinting runs
		proof := e.decreasingProof(a, 17, res.PaymentReference, 50)
		_, err = e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		assert.ErrorIs(t, err, ErrMatchingRedemption)
		assert.NotEqual(t, AgentFullLiquidation, a.Status)

		// someone else's reservation paid from the agent's address stays
		// challengeable
		pub, err := e.store.ReserveCollateral("minter1", "vault1", 1)
		require.NoError(t, err)
		proof = e.decreasingProof(a, 18, pub.PaymentReference, 50)
		_, err = e.store.IllegalPaymentChallenge("challenger1", "vault1", proof)
		require.NoError(t, err)
		assert.Equal(t, AgentFullLiquidation, a.Status)
	})

	t.Run("unknown reference succeeds", func(t *testing.T) {
		vaultBefore := new(big.Int).Set(a.Collateral[CollateralVault])
		res, err := e.store.IllegalPaymentChallenge("challenger1", "vault1", e.decreasingProof(a, 16, txID(99), 50))
		require.NoError(t, err)
		assert.Equal(t, AgentFullLiquidation, a.Status)
		assert.Equal(t, "challenger1", res.Challenger)

		// 3% of the backing collateral, debited from the agent
		reward := new(big.Int).Div(new(big.Int).Mul(vaultBefore, big.NewInt(300)), big.NewInt(10000))
		assert.Equal(t, reward, res.RewardWei[CollateralVault])
		assert.Equal(t, new(big.Int).Sub(vaultBefore, reward), a.Collateral[CollateralVault])
	})
}

func TestDoublePaymentChallenge(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1)
	r := e.redeemOne(t, "redeemer1", 2)

	legal := e.decreasingProof(a, 20, r.PaymentReference, 100)
	duplicate := e.decreasingProof(a, 21, r.PaymentReference, 100)

	t.Run("same transaction twice", func(t *testing.T) {
		_, err := e.store.DoublePaymentChallenge("challenger1", "vault1", legal, legal)
		assert.ErrorIs(t, err, ErrSameTransaction)
	})

	t.Run("different references", func(t *testing.T) {
		other := e.decreasingProof(a, 22, txID(99), 100)
		_, err := e.store.DoublePaymentChallenge("challenger1", "vault1", legal, other)
		assert.ErrorIs(t, err, ErrNotDuplicate)
	})

	t.Run("wrong source address", func(t *testing.T) {
		foreign := duplicate
		foreign.SourceAddressHash = UnderlyingAddressHash("someone-else")
		_, err := e.store.DoublePaymentChallenge("challenger1", "vault1", legal, foreign)
		assert.ErrorIs(t, err, ErrNotAgentsAddress)
	})

	t.Run("two payments with one reference succeed", func(t *testing.T) {
		// even though one of them is the legitimate redemption payment
		res, err := e.store.DoublePaymentChallenge("challenger1", "vault1", legal, duplicate)
		require.NoError(t, err)
		assert.Equal(t, AgentFullLiquidation, a.Status)
		assert.Positive(t, res.RewardWei[CollateralVault].Sign())
	})
}

func TestFreeBalanceNegativeChallenge(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1)
	require.Equal(t, big.NewInt(5), a.FreeUnderlyingUBA, "1% minting fee")

	t.Run("a single transaction is not enough", func(t *testing.T) {
		proofs := []BalanceDecreasingProof{e.decreasingProof(a, 29, txID(99), 50)}
		_, err := e.store.FreeBalanceNegativeChallenge("challenger1", "vault1", proofs)
		assert.ErrorIs(t, err, ErrTooFewProofs)
	})

	t.Run("spending within the free balance", func(t *testing.T) {
		proofs := []BalanceDecreasingProof{
			e.decreasingProof(a, 30, txID(99), 3),
			e.decreasingProof(a, 35, txID(99), 2),
		}
		_, err := e.store.FreeBalanceNegativeChallenge("challenger1", "vault1", proofs)
		assert.ErrorIs(t, err, ErrEnoughFreeBalance)
	})

	t.Run("repeated transaction", func(t *testing.T) {
		p := e.decreasingProof(a, 31, txID(99), 3)
		_, err := e.store.FreeBalanceNegativeChallenge("challenger1", "vault1", []BalanceDecreasingProof{p, p})
		assert.ErrorIs(t, err, ErrRepeatedTransaction)
	})

	t.Run("wrong source address", func(t *testing.T) {
		p := e.decreasingProof(a, 32, txID(99), 3)
		p.SourceAddressHash = UnderlyingAddressHash("someone-else")
		proofs := []BalanceDecreasingProof{e.decreasingProof(a, 36, txID(99), 3), p}
		_, err := e.store.FreeBalanceNegativeChallenge("challenger1", "vault1", proofs)
		assert.ErrorIs(t, err, ErrNotAgentsAddress)
	})

	t.Run("overspending succeeds", func(t *testing.T) {
		proofs := []BalanceDecreasingProof{
			e.decreasingProof(a, 33, txID(99), 4),
			e.decreasingProof(a, 34, txID(98), 2),
		}
		res, err := e.store.FreeBalanceNegativeChallenge("challenger1", "vault1", proofs)
		require.NoError(t, err)
		assert.Equal(t, AgentFullLiquidation, a.Status)
		assert.Positive(t, res.RewardWei[CollateralPool].Sign())
	})
}

func TestFreeBalanceChallengeClampsNegativeBalance(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1)
	a.FreeUnderlyingUBA.SetInt64(-20) // underlying debt

	// with the tracked balance below zero, any positive spend overshoots
	proofs := []BalanceDecreasingProof{
		e.decreasingProof(a, 40, txID(99), 1),
		e.decreasingProof(a, 41, txID(99), 1),
	}
	_, err := e.store.FreeBalanceNegativeChallenge("challenger1", "vault1", proofs)
	assert.NoError(t, err)
	assert.Equal(t, AgentFullLiquidation, a.Status)
}
