package core

// Startup recovery. The service layer replays persisted open state into an
// empty store before accepting calls: agents first, then tickets in id
// order, then open reservations and redemptions, then payment records and
// the underlying block cursor. All restore methods keep the id allocators
// strictly above every restored id so ids are never reused across restarts.

// RestoreAgent inserts a persisted agent. The agent must carry a fully
// populated ledger (collateral maps, ratios, counters); tickets are
// restored separately.
func (s *Store) RestoreAgent(a *Agent) error {
	if _, exists := s.agents[a.Vault]; exists {
		return ErrAgentExists
	}
	if _, taken := s.agentsByUnderlying[a.UnderlyingHash]; taken {
		return ErrAddressInUse
	}
	a.firstTicket = 0
	a.lastTicket = 0
	s.agents[a.Vault] = a
	s.agentsByUnderlying[a.UnderlyingHash] = a.Vault
	if a.ID >= s.nextAgentID {
		s.nextAgentID = a.ID + 1
	}
	return nil
}

// RestoreTicket re-queues a persisted ticket under its original id. Tickets
// must be restored in ascending id order; id order is queue order.
func (s *Store) RestoreTicket(id uint64, vault string, valueAMG AMG) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if id < s.nextTicketID {
		return ErrTicketOutOfOrder
	}
	t := &RedemptionTicket{
		ID:         id,
		AgentVault: vault,
		ValueAMG:   valueAMG,
	}
	s.nextTicketID = id + 1
	s.tickets[id] = t

	t.prev = s.lastTicket
	if s.lastTicket != 0 {
		s.tickets[s.lastTicket].next = id
	} else {
		s.firstTicket = id
	}
	s.lastTicket = id

	t.prevAgent = a.lastTicket
	if a.lastTicket != 0 {
		s.tickets[a.lastTicket].nextAgent = id
	} else {
		a.firstTicket = id
	}
	a.lastTicket = id
	return nil
}

// RestoreReservation re-opens a persisted collateral reservation. The
// agent's ReservedAMG already includes it (restored with the agent row).
func (s *Store) RestoreReservation(r *CollateralReservation) error {
	if _, err := s.Agent(r.Agent); err != nil {
		return err
	}
	s.reservations[r.ID] = r
	if r.ID >= s.nextReservationID {
		s.nextReservationID = r.ID + 1
	}
	return nil
}

// RestoreRedemption re-opens a persisted redemption request. The agent's
// RedeemingAMG already includes it.
func (s *Store) RestoreRedemption(r *RedemptionRequest) error {
	if _, err := s.Agent(r.Agent); err != nil {
		return err
	}
	s.redemptions[r.ID] = r
	if r.ID >= s.nextRedemptionID {
		s.nextRedemptionID = r.ID + 1
	}
	return nil
}

// RestorePaymentRecord reinstates a consumed-payment marker.
func (s *Store) RestorePaymentRecord(rec *PaymentRecord) {
	s.payments[rec.Key] = rec
}

// RestoreWithdrawalIDFloor keeps announced-withdrawal payment reference ids
// unique across restarts.
func (s *Store) RestoreWithdrawalIDFloor(next uint64) {
	if next > s.nextWithdrawalID {
		s.nextWithdrawalID = next
	}
}
