package core

// RedemptionTicket is one agent's minted-but-unredeemed lot(s) in the global
// FIFO queue. Tickets are threaded twice: through the global queue and
// through the owning agent's sub-list, so self-close and liquidation can
// drain one agent's backing while general redemption drains oldest-first.
type RedemptionTicket struct {
	ID         uint64
	AgentVault string
	ValueAMG   AMG

	prev, next           uint64 // global FIFO links
	prevAgent, nextAgent uint64 // per-agent sub-list links
}

// createTicket appends a ticket to both lists. Callers guarantee valueAMG is
// a whole number of lots.
func (s *Store) createTicket(a *Agent, valueAMG AMG) *RedemptionTicket {
	t := &RedemptionTicket{
		ID:         s.nextTicketID,
		AgentVault: a.Vault,
		ValueAMG:   valueAMG,
	}
	s.nextTicketID++
	s.tickets[t.ID] = t

	t.prev = s.lastTicket
	if s.lastTicket != 0 {
		s.tickets[s.lastTicket].next = t.ID
	} else {
		s.firstTicket = t.ID
	}
	s.lastTicket = t.ID

	t.prevAgent = a.lastTicket
	if a.lastTicket != 0 {
		s.tickets[a.lastTicket].nextAgent = t.ID
	} else {
		a.firstTicket = t.ID
	}
	a.lastTicket = t.ID
	return t
}

// deleteTicket unlinks a ticket from both lists.
func (s *Store) deleteTicket(t *RedemptionTicket) {
	if t.prev != 0 {
		s.tickets[t.prev].next = t.next
	} else {
		s.firstTicket = t.next
	}
	if t.next != 0 {
		s.tickets[t.next].prev = t.prev
	} else {
		s.lastTicket = t.prev
	}
	a := s.agents[t.AgentVault]
	if t.prevAgent != 0 {
		s.tickets[t.prevAgent].nextAgent = t.nextAgent
	} else if a != nil {
		a.firstTicket = t.nextAgent
	}
	if t.nextAgent != 0 {
		s.tickets[t.nextAgent].prevAgent = t.prevAgent
	} else if a != nil {
		a.lastTicket = t.prevAgent
	}
	delete(s.tickets, t.ID)
}

// consumeFromTicket takes amg off a ticket. A remainder below one lot can
// never stay on a live ticket: it is converted to agent dust and the ticket
// is deleted.
func (s *Store) consumeFromTicket(t *RedemptionTicket, amg AMG) []DustChange {
	var changes []DustChange
	a := s.agents[t.AgentVault]
	t.ValueAMG = subAMG(t.ValueAMG, amg)
	if t.ValueAMG < s.settings.LotSizeAMG {
		if t.ValueAMG > 0 && a != nil {
			changes = append(changes, s.increaseDust(a, t.ValueAMG))
		}
		s.deleteTicket(t)
	}
	return changes
}

// convertDustToTicket promotes whole lots of dust back onto the queue; call
// after any dust increase so DustAMG < lotSizeAMG holds at rest.
func (s *Store) convertDustToTicket(a *Agent) []DustChange {
	var changes []DustChange
	lotSize := s.settings.LotSizeAMG
	if a.DustAMG >= lotSize {
		lots := a.DustAMG / lotSize
		promoted := lots * lotSize
		changes = append(changes, s.decreaseDust(a, promoted))
		s.createTicket(a, promoted)
	}
	return changes
}

// ConvertDustToTickets promotes whole lots of an agent's accumulated dust
// back onto the redemption queue. Callable by anyone; dust below one lot
// stays as dust. Needed after a lot size change shrinks the lot below
// existing dust amounts.
func (s *Store) ConvertDustToTickets(vault string) ([]DustChange, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	return s.convertDustToTicket(a), nil
}

// AgentShare accumulates the AMG drawn from one agent by a queue drain. An
// agent owning several consecutive tickets yields a single share.
type AgentShare struct {
	AgentVault string
	ValueAMG   AMG
}

// redeemFromQueue pops globally-oldest tickets until lotsWanted lots are
// gathered, the queue is exhausted, or maxRedeemedTickets tickets have been
// touched. The cap bounds the work per call by policy: hitting it is a
// partial fulfillment the caller must report, not an error.
func (s *Store) redeemFromQueue(lotsWanted uint64) (shares []AgentShare, redeemedLots uint64, dust []DustChange) {
	lotSize := s.settings.LotSizeAMG
	byAgent := make(map[string]int)
	for ticketsUsed := 0; redeemedLots < lotsWanted && s.firstTicket != 0 && ticketsUsed < s.settings.MaxRedeemedTickets; ticketsUsed++ {
		t := s.tickets[s.firstTicket]
		ticketLots := t.ValueAMG / lotSize
		redeemLots := lotsWanted - redeemedLots
		if ticketLots < redeemLots {
			redeemLots = ticketLots
		}
		redeemAMG := redeemLots * lotSize
		redeemedLots += redeemLots
		if i, ok := byAgent[t.AgentVault]; ok {
			shares[i].ValueAMG = addAMG(shares[i].ValueAMG, redeemAMG)
		} else {
			byAgent[t.AgentVault] = len(shares)
			shares = append(shares, AgentShare{AgentVault: t.AgentVault, ValueAMG: redeemAMG})
		}
		dust = append(dust, s.consumeFromTicket(t, redeemAMG)...)
	}
	return shares, redeemedLots, dust
}

// redeemAgentOwnTickets drains up to amgWanted from one agent's own backing:
// dust first, then the agent's ticket sub-list oldest-first. Used by
// self-close and liquidation; never touches other agents' tickets.
func (s *Store) redeemAgentOwnTickets(a *Agent, amgWanted AMG) (closedAMG AMG, dust []DustChange) {
	if d := minAMG(amgWanted, a.DustAMG); d > 0 {
		dust = append(dust, s.decreaseDust(a, d))
		closedAMG = d
	}
	lotSize := s.settings.LotSizeAMG
	for closedAMG < amgWanted && a.firstTicket != 0 {
		t := s.tickets[a.firstTicket]
		take := minAMG(amgWanted-closedAMG, t.ValueAMG)
		// keep whole-lot consumption unless the ticket is fully drained
		if take < t.ValueAMG {
			take = take / lotSize * lotSize
			if take == 0 {
				break
			}
		}
		closedAMG = addAMG(closedAMG, take)
		dust = append(dust, s.consumeFromTicket(t, take)...)
	}
	return closedAMG, dust
}

// QueueLength returns the number of live tickets (diagnostics).
func (s *Store) QueueLength() int { return len(s.tickets) }

// TicketsInOrder walks the global FIFO (diagnostics and persistence).
func (s *Store) TicketsInOrder() []*RedemptionTicket {
	var out []*RedemptionTicket
	for id := s.firstTicket; id != 0; id = s.tickets[id].next {
		out = append(out, s.tickets[id])
	}
	return out
}

// AgentTicketsInOrder walks one agent's sub-list.
func (s *Store) AgentTicketsInOrder(a *Agent) []*RedemptionTicket {
	var out []*RedemptionTicket
	for id := a.firstTicket; id != 0; id = s.tickets[id].nextAgent {
		out = append(out, s.tickets[id])
	}
	return out
}
