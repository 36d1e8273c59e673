package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreRebuildsQueueAndAllocators(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")
	e.newAgent(t, "vault2")
	e.mint(t, "vault1", "minter", 2, 1)
	e.mint(t, "vault2", "minter", 3, 2)
	e.mint(t, "vault1", "minter", 4, 3)

	res, err := e.store.ReserveCollateral("minter", "vault2", 1)
	require.NoError(t, err)

	// rebuild a fresh store from the old one's observable state
	restored := NewStore(testSettings())
	restored.Clock = e.store.Clock
	restored.SetAssetPrice(Price{Value: big.NewInt(500), Decimals: 2})
	restored.SetTokenPrice(CollateralVault, Price{Value: big.NewInt(100), Decimals: 2})
	restored.SetTokenPrice(CollateralPool, Price{Value: big.NewInt(100), Decimals: 2})
	restored.UpdateCurrentBlock(BlockHeightProof{BlockNumber: 1000, BlockTimestamp: uint64(testEpoch)})

	for _, a := range e.store.Agents() {
		copied := *a
		require.NoError(t, restored.RestoreAgent(&copied))
	}
	for _, tk := range e.store.TicketsInOrder() {
		require.NoError(t, restored.RestoreTicket(tk.ID, tk.AgentVault, tk.ValueAMG))
	}
	require.NoError(t, restored.RestoreReservation(res))

	assert.Equal(t, ticketIDs(e.store.TicketsInOrder()), ticketIDs(restored.TicketsInOrder()))

	a1, err := restored.Agent("vault1")
	require.NoError(t, err)
	e.assertBackingIdentity(t, a1)
	a2, err := restored.Agent("vault2")
	require.NoError(t, err)
	assert.Equal(t, AMG(10), a2.ReservedAMG)

	// new ids continue above every restored id
	e2 := &testEnv{store: restored, now: e.now}
	r := e2.mint(t, "vault1", "minter", 1, 9)
	assert.Greater(t, r.Ticket.ID, ticketIDs(e.store.TicketsInOrder())[2])

	got, err := restored.Reservation(res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.PaymentReference, got.PaymentReference)
}

func TestRestoreTicketRejectsOutOfOrder(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	require.NoError(t, e.store.RestoreTicket(10, "vault1", 10))
	err := e.store.RestoreTicket(5, "vault1", 10)
	assert.ErrorIs(t, err, ErrTicketOutOfOrder)
}

func TestRestoreAgentRejectsDuplicates(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")

	copied := *a
	assert.ErrorIs(t, e.store.RestoreAgent(&copied), ErrAgentExists)
}
