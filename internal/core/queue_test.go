package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketIDs(tickets []*RedemptionTicket) []uint64 {
	out := make([]uint64, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func TestTicketQueueFIFOOrder(t *testing.T) {
	e := newTestEnv(t)
	a1 := e.newAgent(t, "vault1")
	a2 := e.newAgent(t, "vault2")

	e.mint(t, "vault1", "minter1", 1, 1)
	e.mint(t, "vault2", "minter1", 1, 2)
	e.mint(t, "vault1", "minter1", 1, 3)

	assert.Equal(t, []uint64{1, 2, 3}, ticketIDs(e.store.TicketsInOrder()))
	assert.Equal(t, []uint64{1, 3}, ticketIDs(e.store.AgentTicketsInOrder(a1)))
	assert.Equal(t, []uint64{2}, ticketIDs(e.store.AgentTicketsInOrder(a2)))
	assert.Equal(t, 3, e.store.QueueLength())
}

func TestTicketIDsNeverReused(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")

	e.mint(t, "vault1", "minter1", 1, 1)
	_, err := e.store.Redeem("redeemer1", 1, "REDEEMER_ADDR")
	require.NoError(t, err)
	assert.Zero(t, e.store.QueueLength())

	e.mint(t, "vault1", "minter1", 1, 2)
	assert.Equal(t, []uint64{2}, ticketIDs(e.store.TicketsInOrder()))
}

func TestRedeemDrainsOldestFirstAcrossAgents(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")
	e.newAgent(t, "vault2")

	e.mint(t, "vault1", "minter1", 2, 1)
	e.mint(t, "vault1", "minter1", 3, 2)
	e.mint(t, "vault2", "minter1", 4, 3)

	// 9 lots across three tickets, two distinct agents: one request each,
	// consecutive tickets of the same agent merge into one share
	res, err := e.store.Redeem("redeemer1", 9, "REDEEMER_ADDR")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), res.RedeemedLots)
	assert.Zero(t, res.RemainingLots)
	require.Len(t, res.Requests, 2)
	assert.Equal(t, "vault1", res.Requests[0].Agent)
	assert.Equal(t, AMG(50), res.Requests[0].ValueAMG)
	assert.Equal(t, "vault2", res.Requests[1].Agent)
	assert.Equal(t, AMG(40), res.Requests[1].ValueAMG)
	assert.Zero(t, e.store.QueueLength())
}

func TestRedeemTicketCapYieldsPartialFulfillment(t *testing.T) {
	e := newTestEnv(t)
	e.store.Settings().MaxRedeemedTickets = 2
	e.newAgent(t, "vault1")
	e.newAgent(t, "vault2")
	e.newAgent(t, "vault3")

	e.mint(t, "vault1", "minter1", 1, 1)
	e.mint(t, "vault2", "minter1", 1, 2)
	e.mint(t, "vault3", "minter1", 1, 3)

	res, err := e.store.Redeem("redeemer1", 3, "REDEEMER_ADDR")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.RedeemedLots)
	assert.Equal(t, uint64(1), res.RemainingLots)
	assert.Len(t, res.Requests, 2)
	assert.Equal(t, 1, e.store.QueueLength(), "the third ticket survives untouched")
}

func TestRedeemQueueExhaustion(t *testing.T) {
	e := newTestEnv(t)
	e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1)

	res, err := e.store.Redeem("redeemer1", 8, "REDEEMER_ADDR")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.RedeemedLots)
	assert.Equal(t, uint64(3), res.RemainingLots)

	// a fully empty queue redeems nothing and opens no request
	res, err = e.store.Redeem("redeemer1", 1, "REDEEMER_ADDR")
	require.NoError(t, err)
	assert.Zero(t, res.RedeemedLots)
	assert.Empty(t, res.Requests)
}

func TestSubLotTicketRemainderBecomesDust(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1) // one 50 AMG ticket

	// a lot size change leaves the ticket at a non-whole lot count
	bigger := *testSettings()
	bigger.LotSizeAMG = 15
	require.NoError(t, bigger.Validate())
	e.store.ReloadSettings(&bigger)

	// 3 lots = 45 AMG off the 50 AMG ticket: the 5 AMG remainder cannot
	// stay on a live ticket and becomes dust
	res, err := e.store.Redeem("redeemer1", 3, "REDEEMER_ADDR")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.RedeemedLots)
	require.Len(t, res.DustChanges, 1)
	assert.Equal(t, "vault1", res.DustChanges[0].AgentVault)
	assert.EqualValues(t, 50, res.DustChanges[0].DustUBA.Int64())
	assert.Equal(t, AMG(5), a.DustAMG)
	assert.Zero(t, e.store.QueueLength())
	e.assertBackingIdentity(t, a)
}

func TestConvertDustToTickets(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", "minter1", 5, 1)

	bigger := *testSettings()
	bigger.LotSizeAMG = 15
	e.store.ReloadSettings(&bigger)
	_, err := e.store.Redeem("redeemer1", 3, "REDEEMER_ADDR")
	require.NoError(t, err)
	require.Equal(t, AMG(5), a.DustAMG)

	// at lot size 15 the dust stays dust
	changes, err := e.store.ConvertDustToTickets("vault1")
	require.NoError(t, err)
	assert.Empty(t, changes)

	// shrinking the lot below the dust amount makes it promotable
	smaller := *testSettings()
	smaller.LotSizeAMG = 5
	e.store.ReloadSettings(&smaller)
	changes, err = e.store.ConvertDustToTickets("vault1")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Zero(t, a.DustAMG)
	assert.Equal(t, 1, e.store.QueueLength())
	assert.Equal(t, AMG(5), e.store.TicketsInOrder()[0].ValueAMG)
	e.assertBackingIdentity(t, a)
}

func TestSelfCloseTakesDustBeforeTickets(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAgent(t, "vault1")
	e.mint(t, "vault1", a.Owner, 5, 1)
	e.mint(t, "vault1", a.Owner, 2, 2)

	bigger := *testSettings()
	bigger.LotSizeAMG = 15
	e.store.ReloadSettings(&bigger)
	_, err := e.store.Redeem("redeemer1", 3, "REDEEMER_ADDR")
	require.NoError(t, err)
	require.Equal(t, AMG(5), a.DustAMG) // plus the untouched 20 AMG ticket

	// 5 AMG dust first, then one whole 15 AMG lot off the agent's own
	// 20 AMG ticket; the ticket's 5 AMG remainder becomes the new dust
	res, err := e.store.SelfClose(a.Owner, "vault1", e.store.Settings().AMGToUBA(20))
	require.NoError(t, err)
	assert.Equal(t, AMG(20), res.ClosedAMG)
	assert.Equal(t, AMG(5), a.DustAMG)
	assert.Zero(t, e.store.QueueLength())
	e.assertBackingIdentity(t, a)
}
