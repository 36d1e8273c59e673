package services

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/core"
	"fasset-backend/internal/events"
	"fasset-backend/internal/metrics"
	"fasset-backend/internal/models"
	"fasset-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolService is the single entry point for every state-changing
// protocol operation. One mutex serializes all of them: a call fully
// completes (core transition, database write-through, payouts, events)
// before the next begins, which is the concurrency contract the core
// ledger is built on.
//
// Proof verification happens before the core transition, vault payouts
// after it (effects before external calls). Database rows mirror the
// in-memory ledger and are replayed by Recover on startup.
type ProtocolService struct {
	mu    sync.Mutex
	store *core.Store

	agents       repository.AgentRepository
	tickets      repository.TicketRepository
	reservations repository.ReservationRepository
	redemptions  repository.RedemptionRepository
	payments     repository.PaymentRecordRepository
	eventRows    repository.EventRepository

	attestation *clients.AttestationClient
	vault       *clients.VaultClient
	publisher   *events.Publisher
}

// NewProtocolService creates the protocol facade over an empty or
// recovered core store.
func NewProtocolService(
	store *core.Store,
	agents repository.AgentRepository,
	tickets repository.TicketRepository,
	reservations repository.ReservationRepository,
	redemptions repository.RedemptionRepository,
	payments repository.PaymentRecordRepository,
	eventRows repository.EventRepository,
	attestation *clients.AttestationClient,
	vault *clients.VaultClient,
	publisher *events.Publisher,
) *ProtocolService {
	log.Printf("🔧 [Protocol] Create protocol service")
	return &ProtocolService{
		store:        store,
		agents:       agents,
		tickets:      tickets,
		reservations: reservations,
		redemptions:  redemptions,
		payments:     payments,
		eventRows:    eventRows,
		attestation:  attestation,
		vault:        vault,
		publisher:    publisher,
	}
}

// track reports the operation duration on defer.
func track(op string) func() {
	start := time.Now()
	return func() {
		metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// opError counts a failed operation; core sentinel errors keep the label
// cardinality bounded.
func opError(op string, err error) error {
	if err != nil {
		metrics.OperationErrors.WithLabelValues(op, err.Error()).Inc()
	}
	return err
}

func (s *ProtocolService) publish(ctx context.Context, eventType models.ProtocolEventType, vault string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, eventType, vault, payload)
}

// persistAgent writes the agent's current ledger row through to the
// database. A write failure cannot undo the in-memory transition, so it is
// logged and surfaced through the error metric only.
func (s *ProtocolService) persistAgent(ctx context.Context, vault string) {
	a, err := s.store.Agent(vault)
	if err != nil {
		return
	}
	if err := s.agents.Save(ctx, agentToRow(a)); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist agent %s: %v", vault, err)
		metrics.OperationErrors.WithLabelValues("persist_agent", "db").Inc()
	}
}

// syncTickets reconciles one agent's persisted tickets with the live
// queue: rows for consumed tickets are deleted, partially consumed tickets
// updated, new tickets created. Ticket ids are monotonic, so id order in
// the table stays FIFO order.
func (s *ProtocolService) syncTickets(ctx context.Context, vault string) {
	a, err := s.store.Agent(vault)
	if err != nil {
		// agent destroyed; its tickets were already consumed
		return
	}
	live := make(map[uint64]*core.RedemptionTicket)
	for _, t := range s.store.AgentTicketsInOrder(a) {
		live[t.ID] = t
	}
	rows, err := s.tickets.ListByVault(ctx, vault)
	if err != nil {
		log.Printf("⚠️ [Protocol] failed to load tickets of %s: %v", vault, err)
		return
	}
	for _, row := range rows {
		t, ok := live[row.ID]
		if !ok {
			if err := s.tickets.Delete(ctx, row.ID); err != nil {
				log.Printf("⚠️ [Protocol] failed to delete ticket %d: %v", row.ID, err)
			}
			continue
		}
		if row.ValueAMG != uint64(t.ValueAMG) {
			row.ValueAMG = uint64(t.ValueAMG)
			if err := s.tickets.Save(ctx, row); err != nil {
				log.Printf("⚠️ [Protocol] failed to update ticket %d: %v", row.ID, err)
			}
		}
		delete(live, row.ID)
	}
	for id, t := range live {
		row := &models.RedemptionTicket{ID: id, Vault: vault, ValueAMG: uint64(t.ValueAMG)}
		if err := s.tickets.Create(ctx, row); err != nil {
			log.Printf("⚠️ [Protocol] failed to create ticket %d: %v", id, err)
		}
	}
	metrics.RedemptionQueueLength.Set(float64(s.store.QueueLength()))
}

// syncWithdrawal mirrors one collateral withdrawal announcement slot.
func (s *ProtocolService) syncWithdrawal(ctx context.Context, vault string, kind core.CollateralKind) {
	a, err := s.store.Agent(vault)
	if err != nil {
		return
	}
	ann := a.Withdrawal[kind]
	if ann == nil {
		if err := s.agents.DeleteWithdrawal(ctx, vault, string(kind)); err != nil {
			log.Printf("⚠️ [Protocol] failed to clear withdrawal %s/%s: %v", vault, kind, err)
		}
		return
	}
	row := &models.CollateralWithdrawal{
		Vault:          vault,
		CollateralKind: string(kind),
		AmountWei:      ann.AmountWei.String(),
		AllowedAt:      ann.AllowedAt,
	}
	if err := s.agents.UpsertWithdrawal(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist withdrawal %s/%s: %v", vault, kind, err)
	}
}

// persistPaymentRecord mirrors the replay-prevention record the core just
// created for a consumed payment proof.
func (s *ProtocolService) persistPaymentRecord(ctx context.Context, txID, sourceHash, reference common.Hash, spentUBA *big.Int, block uint64) {
	row := &models.PaymentRecord{
		TransactionHash:  txID.Hex(),
		SourceHash:       sourceHash.Hex(),
		PaymentReference: reference.Hex(),
		SpentUBA:         spentUBA.String(),
		BlockNumber:      block,
	}
	if err := s.payments.Create(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist payment record %s: %v", row.TransactionHash, err)
	}
}

// payoutCollateral executes the vault-contract payouts computed by a core
// transition. The state change is already final; a transport failure here
// is an operational incident (the owed amount is in the audit trail), not
// a protocol rollback.
func (s *ProtocolService) payoutCollateral(ctx context.Context, to string, paid map[core.CollateralKind]*big.Int) map[core.CollateralKind]string {
	hashes := make(map[core.CollateralKind]string)
	if s.vault == nil {
		return hashes
	}
	for _, kind := range core.CollateralKinds {
		amount := paid[kind]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		var txHash string
		var err error
		switch kind {
		case core.CollateralVault:
			txHash, err = s.vault.PayoutVault(ctx, to, amount)
		default:
			txHash, err = s.vault.PayoutPool(ctx, to, amount)
		}
		if err != nil {
			log.Printf("❌ [Protocol] %s payout of %s wei to %s failed: %v", kind, amount.String(), to, err)
			metrics.OperationErrors.WithLabelValues("payout", string(kind)).Inc()
			continue
		}
		hashes[kind] = txHash
	}
	return hashes
}

// ---- agent lifecycle ----

// CreateAgent registers a new agent with a fresh underlying address.
func (s *ProtocolService) CreateAgent(ctx context.Context, owner, vault, underlyingAddress string) (*core.Agent, error) {
	defer track("create_agent")()
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.CreateAgent(owner, vault, underlyingAddress)
	if err != nil {
		return nil, opError("create_agent", err)
	}
	if err := s.agents.Create(ctx, agentToRow(a)); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist new agent %s: %v", vault, err)
	}
	s.publish(ctx, models.EventAgentCreated, vault, map[string]interface{}{
		"vault":              vault,
		"owner":              owner,
		"underlying_address": underlyingAddress,
	})
	log.Printf("✅ [Protocol] Agent created: vault=%s owner=%s", vault, owner)
	return a, nil
}

// DepositCollateral credits collateral and re-checks liquidation health;
// a deposit is the normal way out of CCB.
func (s *ProtocolService) DepositCollateral(ctx context.Context, vault string, kind core.CollateralKind, amountWei *big.Int) error {
	defer track("deposit_collateral")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DepositCollateral(vault, kind, amountWei); err != nil {
		return opError("deposit_collateral", err)
	}
	status, _ := s.store.EndLiquidationIfHealthy(vault)
	s.persistAgent(ctx, vault)
	s.publish(ctx, models.EventCollateralDeposited, vault, map[string]interface{}{
		"vault":      vault,
		"kind":       string(kind),
		"amount_wei": amountWei.String(),
		"status":     string(status),
	})
	return nil
}

// SetPubliclyAvailable flips the public-minting flag.
func (s *ProtocolService) SetPubliclyAvailable(ctx context.Context, caller, vault string, available bool) error {
	defer track("set_publicly_available")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetPubliclyAvailable(caller, vault, available); err != nil {
		return opError("set_publicly_available", err)
	}
	s.persistAgent(ctx, vault)
	return nil
}

// SetMinCollateralRatio raises the agent's own collateral ratio floor.
func (s *ProtocolService) SetMinCollateralRatio(ctx context.Context, caller, vault string, kind core.CollateralKind, ratioBIPS uint32) error {
	defer track("set_min_collateral_ratio")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetMinCollateralRatio(caller, vault, kind, ratioBIPS); err != nil {
		return opError("set_min_collateral_ratio", err)
	}
	s.persistAgent(ctx, vault)
	return nil
}

// AnnounceWithdrawal opens, resizes or cancels a collateral withdrawal
// announcement.
func (s *ProtocolService) AnnounceWithdrawal(ctx context.Context, caller, vault string, kind core.CollateralKind, amountWei *big.Int) error {
	defer track("announce_withdrawal")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.AnnounceWithdrawal(caller, vault, kind, amountWei); err != nil {
		return opError("announce_withdrawal", err)
	}
	s.syncWithdrawal(ctx, vault, kind)
	return nil
}

// ExecuteWithdrawal debits announced collateral and pays it out to the
// agent owner. Returns the payout transaction hash when the vault contract
// is enabled.
func (s *ProtocolService) ExecuteWithdrawal(ctx context.Context, caller, vault string, kind core.CollateralKind, amountWei *big.Int) (string, error) {
	defer track("execute_withdrawal")()
	s.mu.Lock()
	defer s.mu.Unlock()

	paid, err := s.store.ExecuteWithdrawal(caller, vault, kind, amountWei)
	if err != nil {
		return "", opError("execute_withdrawal", err)
	}
	s.persistAgent(ctx, vault)
	s.syncWithdrawal(ctx, vault, kind)

	hashes := s.payoutCollateral(ctx, caller, map[core.CollateralKind]*big.Int{kind: paid})
	s.publish(ctx, models.EventCollateralWithdrawn, vault, map[string]interface{}{
		"vault":      vault,
		"kind":       string(kind),
		"amount_wei": paid.String(),
		"payout_tx":  hashes[kind],
	})
	return hashes[kind], nil
}

// AnnounceUnderlyingWithdrawal reserves a payment reference for an
// underlying withdrawal from the agent's address.
func (s *ProtocolService) AnnounceUnderlyingWithdrawal(ctx context.Context, caller, vault string) (common.Hash, error) {
	defer track("announce_underlying_withdrawal")()
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.store.AnnounceUnderlyingWithdrawal(caller, vault)
	if err != nil {
		return common.Hash{}, opError("announce_underlying_withdrawal", err)
	}
	s.persistAgent(ctx, vault)
	return ref, nil
}

// ConfirmUnderlyingWithdrawal settles an announced underlying withdrawal
// with a verified payment proof.
func (s *ProtocolService) ConfirmUnderlyingWithdrawal(ctx context.Context, caller, vault string, proof core.PaymentProof, merkleProof string) error {
	defer track("confirm_underlying_withdrawal")()
	if err := s.attestation.VerifyPayment(paymentAttestation(proof, merkleProof)); err != nil {
		return opError("confirm_underlying_withdrawal", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ConfirmUnderlyingWithdrawal(caller, vault, proof); err != nil {
		return opError("confirm_underlying_withdrawal", err)
	}
	s.persistAgent(ctx, vault)
	s.persistPaymentRecord(ctx, proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	return nil
}

// CancelUnderlyingWithdrawal closes an announcement that was never paid.
func (s *ProtocolService) CancelUnderlyingWithdrawal(ctx context.Context, caller, vault string) error {
	defer track("cancel_underlying_withdrawal")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.CancelUnderlyingWithdrawal(caller, vault); err != nil {
		return opError("cancel_underlying_withdrawal", err)
	}
	s.persistAgent(ctx, vault)
	return nil
}

// ConfirmTopupPayment credits the agent's free underlying balance from a
// verified topup payment.
func (s *ProtocolService) ConfirmTopupPayment(ctx context.Context, caller, vault string, proof core.PaymentProof, merkleProof string) error {
	defer track("confirm_topup_payment")()
	if err := s.attestation.VerifyPayment(paymentAttestation(proof, merkleProof)); err != nil {
		return opError("confirm_topup_payment", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ConfirmTopupPayment(caller, vault, proof); err != nil {
		return opError("confirm_topup_payment", err)
	}
	s.persistAgent(ctx, vault)
	s.persistPaymentRecord(ctx, proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, big.NewInt(0), proof.BlockNumber)
	return nil
}

// AnnounceDestroy starts the destroy grace period.
func (s *ProtocolService) AnnounceDestroy(ctx context.Context, caller, vault string) error {
	defer track("announce_destroy")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.AnnounceDestroy(caller, vault); err != nil {
		return opError("announce_destroy", err)
	}
	s.persistAgent(ctx, vault)
	return nil
}

// DestroyAgent removes the agent and pays the remaining collateral back to
// the owner. The row is kept with a terminal status for history.
func (s *ProtocolService) DestroyAgent(ctx context.Context, caller, vault string) error {
	defer track("destroy_agent")()
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.Agent(vault)
	if err != nil {
		return opError("destroy_agent", err)
	}
	row := agentToRow(a)
	remaining, err := s.store.DestroyAgent(caller, vault)
	if err != nil {
		return opError("destroy_agent", err)
	}
	row.Status = models.AgentStatusDestroyed
	if err := s.agents.Save(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist destroyed agent %s: %v", vault, err)
	}
	hashes := s.payoutCollateral(ctx, caller, remaining)
	s.publish(ctx, models.EventAgentDestroyed, vault, map[string]interface{}{
		"vault":          vault,
		"owner":          caller,
		"vault_wei":      remaining[core.CollateralVault].String(),
		"pool_wei":       remaining[core.CollateralPool].String(),
		"vault_tx":       hashes[core.CollateralVault],
		"pool_payout_tx": hashes[core.CollateralPool],
	})
	log.Printf("✅ [Protocol] Agent destroyed: vault=%s", vault)
	return nil
}

// ---- minting ----

// ReserveCollateral locks collateral for new minting and returns the
// payment instructions.
func (s *ProtocolService) ReserveCollateral(ctx context.Context, minter, vault string, lots uint64) (*core.CollateralReservation, error) {
	defer track("reserve_collateral")()
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.ReserveCollateral(minter, vault, lots)
	if err != nil {
		return nil, opError("reserve_collateral", err)
	}
	if err := s.reservations.Create(ctx, reservationToRow(r, models.ReservationStatusReserved)); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist reservation %d: %v", r.ID, err)
	}
	s.persistAgent(ctx, vault)
	metrics.OpenReservations.Inc()
	s.publish(ctx, models.EventCollateralReserved, vault, map[string]interface{}{
		"reservation_id":    r.ID,
		"vault":             vault,
		"minter":            minter,
		"value_uba":         r.ValueUBA.String(),
		"fee_uba":           r.FeeUBA.String(),
		"payment_address":   r.PaymentAddress,
		"payment_reference": r.PaymentReference.Hex(),
		"last_block":        r.LastUnderlyingBlock,
		"last_timestamp":    r.LastUnderlyingTimestamp,
	})
	return r, nil
}

// ExecuteMinting settles a reservation with a verified payment proof and
// mints against the agent's backing.
func (s *ProtocolService) ExecuteMinting(ctx context.Context, proof core.PaymentProof, reservationID uint64, merkleProof string) (*core.MintingResult, error) {
	defer track("execute_minting")()
	if err := s.attestation.VerifyPayment(paymentAttestation(proof, merkleProof)); err != nil {
		return nil, opError("execute_minting", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.ExecuteMinting(proof, reservationID)
	if err != nil {
		return nil, opError("execute_minting", err)
	}
	vault := res.Reservation.Agent

	row := reservationToRow(res.Reservation, models.ReservationStatusExecuted)
	row.TransactionHash = proof.TransactionID.Hex()
	row.SettledAt = int64(proof.BlockTimestamp)
	if err := s.reservations.Save(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to settle reservation %d: %v", reservationID, err)
	}
	s.persistAgent(ctx, vault)
	s.syncTickets(ctx, vault)
	s.persistPaymentRecord(ctx, proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	metrics.OpenReservations.Dec()
	metrics.MintedAMGTotal.Add(float64(res.Reservation.ValueAMG))

	s.publish(ctx, models.EventMintingExecuted, vault, map[string]interface{}{
		"reservation_id": reservationID,
		"vault":          vault,
		"minter":         res.Reservation.Minter,
		"value_uba":      res.Reservation.ValueUBA.String(),
		"fee_uba":        res.FeeUBA.String(),
		"ticket_id":      res.Ticket.ID,
	})
	log.Printf("✅ [Protocol] Minting executed: reservation=%d vault=%s", reservationID, vault)
	return res, nil
}

// MintingPaymentDefault resolves a reservation the minter never paid,
// using a verified non-payment proof.
func (s *ProtocolService) MintingPaymentDefault(ctx context.Context, caller string, proof core.NonPaymentProof, reservationID uint64, merkleProof string) (*core.CollateralReservation, error) {
	defer track("minting_payment_default")()
	if err := s.attestation.VerifyNonPayment(nonPaymentAttestation(proof, merkleProof)); err != nil {
		return nil, opError("minting_payment_default", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.MintingPaymentDefault(caller, proof, reservationID)
	if err != nil {
		return nil, opError("minting_payment_default", err)
	}
	row := reservationToRow(r, models.ReservationStatusDefaulted)
	row.SettledAt = s.store.Clock()
	if err := s.reservations.Save(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to settle reservation %d: %v", reservationID, err)
	}
	s.persistAgent(ctx, r.Agent)
	metrics.OpenReservations.Dec()

	s.publish(ctx, models.EventMintingDefaulted, r.Agent, map[string]interface{}{
		"reservation_id": reservationID,
		"vault":          r.Agent,
		"minter":         r.Minter,
		"value_uba":      r.ValueUBA.String(),
	})
	return r, nil
}

// ---- redemption ----

// Redeem opens redemption requests against the queue. A partial
// fulfillment (RemainingLots > 0) is a normal outcome.
func (s *ProtocolService) Redeem(ctx context.Context, redeemer string, lots uint64, redeemerUnderlyingAddress string) (*core.RedeemResult, error) {
	defer track("redeem")()
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.Redeem(redeemer, lots, redeemerUnderlyingAddress)
	if err != nil {
		return nil, opError("redeem", err)
	}
	touched := make(map[string]bool)
	for _, r := range res.Requests {
		if err := s.redemptions.Create(ctx, redemptionToRow(r, models.RedemptionStatusRequested)); err != nil {
			log.Printf("⚠️ [Protocol] failed to persist redemption %d: %v", r.ID, err)
		}
		touched[r.Agent] = true
		metrics.OpenRedemptions.Inc()
		s.publish(ctx, models.EventRedemptionRequested, r.Agent, map[string]interface{}{
			"request_id":        r.ID,
			"vault":             r.Agent,
			"redeemer":          redeemer,
			"value_uba":         r.ValueUBA.String(),
			"fee_uba":           r.FeeUBA.String(),
			"payment_reference": r.PaymentReference.Hex(),
			"last_block":        r.LastUnderlyingBlock,
			"last_timestamp":    r.LastUnderlyingTimestamp,
		})
	}
	for _, d := range res.DustChanges {
		touched[d.AgentVault] = true
	}
	for vault := range touched {
		s.persistAgent(ctx, vault)
		s.syncTickets(ctx, vault)
	}
	log.Printf("✅ [Protocol] Redeem: redeemer=%s lots=%d requests=%d remaining=%d",
		redeemer, lots, len(res.Requests), res.RemainingLots)
	return res, nil
}

// ReportRedemptionPayment records the agent's own payment declaration so
// the later attested proof can be reconciled against it.
func (s *ProtocolService) ReportRedemptionPayment(ctx context.Context, caller string, requestID uint64, report core.PaymentReport) error {
	defer track("report_redemption_payment")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ReportRedemptionPayment(caller, requestID, report); err != nil {
		return opError("report_redemption_payment", err)
	}
	r, err := s.store.Redemption(requestID)
	if err != nil {
		return opError("report_redemption_payment", err)
	}
	if err := s.redemptions.Save(ctx, redemptionToRow(r, models.RedemptionStatusRequested)); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist redemption report %d: %v", requestID, err)
	}
	s.publish(ctx, models.EventRedemptionReported, r.Agent, map[string]interface{}{
		"request_id": requestID,
		"vault":      r.Agent,
		"tx_hash":    report.TransactionID.Hex(),
	})
	return nil
}

// ConfirmRedemptionPayment settles a request with the agent's verified
// payment proof.
func (s *ProtocolService) ConfirmRedemptionPayment(ctx context.Context, caller string, proof core.PaymentProof, requestID uint64, merkleProof string) error {
	defer track("confirm_redemption_payment")()
	if err := s.attestation.VerifyPayment(paymentAttestation(proof, merkleProof)); err != nil {
		return opError("confirm_redemption_payment", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.Redemption(requestID)
	if err != nil {
		return opError("confirm_redemption_payment", err)
	}
	vault := r.Agent
	row := redemptionToRow(r, models.RedemptionStatusConfirmed)
	if err := s.store.ConfirmRedemptionPayment(caller, proof, requestID); err != nil {
		return opError("confirm_redemption_payment", err)
	}
	row.TransactionHash = proof.TransactionID.Hex()
	row.SettledAt = int64(proof.BlockTimestamp)
	if err := s.redemptions.Save(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to settle redemption %d: %v", requestID, err)
	}
	s.persistAgent(ctx, vault)
	s.persistPaymentRecord(ctx, proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	metrics.OpenRedemptions.Dec()

	s.publish(ctx, models.EventRedemptionConfirmed, vault, map[string]interface{}{
		"request_id": requestID,
		"vault":      vault,
		"tx_hash":    proof.TransactionID.Hex(),
	})
	return nil
}

// RedemptionPaymentTimeout resolves a request the agent never paid; the
// redeemer is compensated from the agent's collateral.
func (s *ProtocolService) RedemptionPaymentTimeout(ctx context.Context, caller string, proof core.NonPaymentProof, requestID uint64, merkleProof string) (*core.RedemptionDefault, error) {
	defer track("redemption_payment_timeout")()
	if err := s.attestation.VerifyNonPayment(nonPaymentAttestation(proof, merkleProof)); err != nil {
		return nil, opError("redemption_payment_timeout", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.store.RedemptionPaymentTimeout(caller, proof, requestID)
	if err != nil {
		return nil, opError("redemption_payment_timeout", err)
	}
	vault := def.Request.Agent
	row := redemptionToRow(def.Request, models.RedemptionStatusTimedOut)
	row.SettledAt = s.store.Clock()
	if err := s.redemptions.Save(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to settle redemption %d: %v", requestID, err)
	}
	s.persistAgent(ctx, vault)
	metrics.OpenRedemptions.Dec()

	hashes := s.payoutCollateral(ctx, def.Redeemer, def.PaidWei)
	s.publish(ctx, models.EventRedemptionDefaulted, vault, map[string]interface{}{
		"request_id":     requestID,
		"vault":          vault,
		"redeemer":       def.Redeemer,
		"vault_paid_wei": def.PaidWei[core.CollateralVault].String(),
		"pool_paid_wei":  def.PaidWei[core.CollateralPool].String(),
		"vault_tx":       hashes[core.CollateralVault],
		"pool_tx":        hashes[core.CollateralPool],
	})
	log.Printf("⚠️ [Protocol] Redemption defaulted: request=%d vault=%s", requestID, vault)
	return def, nil
}

// RedemptionPaymentBlocked resolves a request whose underlying payment was
// mined but failed.
func (s *ProtocolService) RedemptionPaymentBlocked(ctx context.Context, caller string, proof core.PaymentProof, requestID uint64, merkleProof string) error {
	defer track("redemption_payment_blocked")()
	if err := s.attestation.VerifyPayment(paymentAttestation(proof, merkleProof)); err != nil {
		return opError("redemption_payment_blocked", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.Redemption(requestID)
	if err != nil {
		return opError("redemption_payment_blocked", err)
	}
	vault := r.Agent
	row := redemptionToRow(r, models.RedemptionStatusBlocked)
	if err := s.store.RedemptionPaymentBlocked(caller, proof, requestID); err != nil {
		return opError("redemption_payment_blocked", err)
	}
	row.TransactionHash = proof.TransactionID.Hex()
	row.SettledAt = s.store.Clock()
	if err := s.redemptions.Save(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to settle redemption %d: %v", requestID, err)
	}
	s.persistAgent(ctx, vault)
	s.persistPaymentRecord(ctx, proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	metrics.OpenRedemptions.Dec()

	s.publish(ctx, models.EventRedemptionBlocked, vault, map[string]interface{}{
		"request_id": requestID,
		"vault":      vault,
		"tx_hash":    proof.TransactionID.Hex(),
	})
	return nil
}

// SelfClose unwinds part of the agent's own backing.
func (s *ProtocolService) SelfClose(ctx context.Context, caller, vault string, amountUBA *big.Int) (*core.SelfCloseResult, error) {
	defer track("self_close")()
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.SelfClose(caller, vault, amountUBA)
	if err != nil {
		return nil, opError("self_close", err)
	}
	s.persistAgent(ctx, vault)
	s.syncTickets(ctx, vault)
	s.publish(ctx, models.EventSelfClosed, vault, map[string]interface{}{
		"vault":      vault,
		"closed_uba": res.ClosedUBA.String(),
	})
	return res, nil
}

// ---- liquidation ----

// StartLiquidation moves an undercollateralized agent into CCB or
// liquidation; a healthy agent is an error reported to the caller.
func (s *ProtocolService) StartLiquidation(ctx context.Context, vault string) (core.AgentStatus, error) {
	defer track("start_liquidation")()
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.store.StartLiquidation(vault)
	if err != nil {
		return "", opError("start_liquidation", err)
	}
	s.persistAgent(ctx, vault)
	s.publish(ctx, models.EventLiquidationStarted, vault, map[string]interface{}{
		"vault":  vault,
		"status": string(status),
	})
	log.Printf("⚠️ [Protocol] Liquidation started: vault=%s status=%s", vault, status)
	return status, nil
}

// EndLiquidationIfHealthy closes a recoverable liquidation once collateral
// ratios are safe again.
func (s *ProtocolService) EndLiquidationIfHealthy(ctx context.Context, vault string) (core.AgentStatus, error) {
	defer track("end_liquidation")()
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.Agent(vault)
	if err != nil {
		return "", opError("end_liquidation", err)
	}
	before := a.Status
	status, err := s.store.EndLiquidationIfHealthy(vault)
	if err != nil {
		return "", opError("end_liquidation", err)
	}
	if status != before {
		s.persistAgent(ctx, vault)
		if status == core.AgentNormal {
			s.publish(ctx, models.EventLiquidationEnded, vault, map[string]interface{}{
				"vault": vault,
			})
		}
	}
	return status, nil
}

// Liquidate burns the liquidator's tokens against a liquidating agent and
// pays the collateral reward.
func (s *ProtocolService) Liquidate(ctx context.Context, liquidator, vault string, amountUBA *big.Int) (*core.LiquidationResult, error) {
	defer track("liquidate")()
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.Liquidate(liquidator, vault, amountUBA)
	if err != nil {
		return nil, opError("liquidate", err)
	}
	s.persistAgent(ctx, vault)
	s.syncTickets(ctx, vault)
	if err := s.eventRows.CreateLiquidation(ctx, liquidationToRow(liquidator, vault, res)); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist liquidation of %s: %v", vault, err)
	}
	hashes := s.payoutCollateral(ctx, liquidator, res.RewardWei)
	s.publish(ctx, models.EventLiquidationPerformed, vault, map[string]interface{}{
		"vault":       vault,
		"liquidator":  liquidator,
		"closed_uba":  res.LiquidatedUBA.String(),
		"factor_bips": res.FactorBIPS,
		"status":      string(res.Status),
		"vault_tx":    hashes[core.CollateralVault],
		"pool_tx":     hashes[core.CollateralPool],
	})
	log.Printf("⚠️ [Protocol] Liquidation performed: vault=%s closed=%s status=%s",
		vault, res.LiquidatedUBA.String(), res.Status)
	return res, nil
}

// ---- challenges ----

func (s *ProtocolService) settleChallenge(ctx context.Context, res *core.ChallengeResult, kind models.ChallengeKind, txHash string) {
	s.persistAgent(ctx, res.AgentVault)
	if err := s.eventRows.CreateChallenge(ctx, challengeToRow(res, kind, txHash)); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist challenge against %s: %v", res.AgentVault, err)
	}
	hashes := s.payoutCollateral(ctx, res.Challenger, res.RewardWei)
	s.publish(ctx, models.EventChallengeSucceeded, res.AgentVault, map[string]interface{}{
		"vault":      res.AgentVault,
		"challenger": res.Challenger,
		"kind":       string(kind),
		"vault_tx":   hashes[core.CollateralVault],
		"pool_tx":    hashes[core.CollateralPool],
	})
	s.publish(ctx, models.EventFullLiquidationStarted, res.AgentVault, map[string]interface{}{
		"vault": res.AgentVault,
	})
	log.Printf("🚨 [Protocol] Challenge succeeded: vault=%s kind=%s challenger=%s",
		res.AgentVault, kind, res.Challenger)
}

// IllegalPaymentChallenge proves an outgoing payment from the agent's
// address with no legal reference; success starts full liquidation.
func (s *ProtocolService) IllegalPaymentChallenge(ctx context.Context, challenger, vault string, proof core.BalanceDecreasingProof, merkleProof string) (*core.ChallengeResult, error) {
	defer track("illegal_payment_challenge")()
	if err := s.attestation.VerifyBalanceDecreasing(balanceDecreasingAttestation(proof, merkleProof)); err != nil {
		return nil, opError("illegal_payment_challenge", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.IllegalPaymentChallenge(challenger, vault, proof)
	if err != nil {
		return nil, opError("illegal_payment_challenge", err)
	}
	s.settleChallenge(ctx, res, models.ChallengeKindIllegalPayment, proof.TransactionID.Hex())
	return res, nil
}

// DoublePaymentChallenge proves two distinct payments carrying the same
// reference.
func (s *ProtocolService) DoublePaymentChallenge(ctx context.Context, challenger, vault string, proof1, proof2 core.BalanceDecreasingProof, merkleProof1, merkleProof2 string) (*core.ChallengeResult, error) {
	defer track("double_payment_challenge")()
	if err := s.attestation.VerifyBalanceDecreasing(balanceDecreasingAttestation(proof1, merkleProof1)); err != nil {
		return nil, opError("double_payment_challenge", err)
	}
	if err := s.attestation.VerifyBalanceDecreasing(balanceDecreasingAttestation(proof2, merkleProof2)); err != nil {
		return nil, opError("double_payment_challenge", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.DoublePaymentChallenge(challenger, vault, proof1, proof2)
	if err != nil {
		return nil, opError("double_payment_challenge", err)
	}
	s.settleChallenge(ctx, res, models.ChallengeKindDoublePayment, proof1.TransactionID.Hex())
	return res, nil
}

// FreeBalanceNegativeChallenge proves that the sum of unaccounted spending
// drove the agent's free underlying balance negative.
func (s *ProtocolService) FreeBalanceNegativeChallenge(ctx context.Context, challenger, vault string, proofs []core.BalanceDecreasingProof, merkleProofs []string) (*core.ChallengeResult, error) {
	defer track("free_balance_negative_challenge")()
	for i, p := range proofs {
		merkle := ""
		if i < len(merkleProofs) {
			merkle = merkleProofs[i]
		}
		if err := s.attestation.VerifyBalanceDecreasing(balanceDecreasingAttestation(p, merkle)); err != nil {
			return nil, opError("free_balance_negative_challenge", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.FreeBalanceNegativeChallenge(challenger, vault, proofs)
	if err != nil {
		return nil, opError("free_balance_negative_challenge", err)
	}
	txHash := ""
	if len(proofs) > 0 {
		txHash = proofs[0].TransactionID.Hex()
	}
	s.settleChallenge(ctx, res, models.ChallengeKindFreeBalanceNegative, txHash)
	return res, nil
}

// ---- queue and system ----

// ConvertDustToTickets folds accumulated dust back into a queue ticket
// once it reaches a whole lot.
func (s *ProtocolService) ConvertDustToTickets(ctx context.Context, vault string) ([]core.DustChange, error) {
	defer track("convert_dust_to_tickets")()
	s.mu.Lock()
	defer s.mu.Unlock()

	changes, err := s.store.ConvertDustToTickets(vault)
	if err != nil {
		return nil, opError("convert_dust_to_tickets", err)
	}
	s.persistAgent(ctx, vault)
	s.syncTickets(ctx, vault)
	for _, d := range changes {
		s.publish(ctx, models.EventDustChanged, d.AgentVault, map[string]interface{}{
			"vault":    d.AgentVault,
			"dust_uba": d.DustUBA.String(),
		})
	}
	return changes, nil
}

// UpdateUnderlyingBlock advances the proven underlying chain cursor with a
// verified block height proof.
func (s *ProtocolService) UpdateUnderlyingBlock(ctx context.Context, proof core.BlockHeightProof, merkleProof string) error {
	defer track("update_underlying_block")()
	if err := s.attestation.VerifyBlockHeight(blockHeightAttestation(proof, merkleProof)); err != nil {
		return opError("update_underlying_block", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.UpdateCurrentBlock(proof)
	block, ts := s.store.CurrentUnderlyingBlock()
	row := &models.UnderlyingBlock{ID: 1, BlockNumber: proof.BlockNumber, BlockTimestamp: proof.BlockTimestamp}
	if err := s.payments.SaveUnderlyingBlock(ctx, row); err != nil {
		log.Printf("⚠️ [Protocol] failed to persist underlying block %d: %v", proof.BlockNumber, err)
	}
	metrics.UnderlyingBlockNumber.Set(float64(proof.BlockNumber))
	s.publish(ctx, models.EventUnderlyingBlockUpdated, "", map[string]interface{}{
		"block_number":    proof.BlockNumber,
		"block_timestamp": proof.BlockTimestamp,
		"extrapolated":    block,
		"extrapolated_ts": ts,
	})
	return nil
}

// PruneOldPaymentRecords drops replay-prevention records older than the
// challenge retention window, in memory and in the database.
func (s *ProtocolService) PruneOldPaymentRecords(ctx context.Context) (int, error) {
	defer track("prune_payment_records")()
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := s.store.PruneOldPaymentRecords()
	if pruned == 0 {
		return 0, nil
	}
	block, _ := s.store.CurrentUnderlyingBlock()
	retention := s.store.Settings().ConfirmationBlocks
	if block > retention {
		if _, err := s.payments.DeleteOlderThan(ctx, block-retention); err != nil {
			log.Printf("⚠️ [Protocol] failed to prune payment records: %v", err)
		}
	}
	log.Printf("🧹 [Protocol] Pruned %d payment records", pruned)
	return pruned, nil
}

// PauseMinting stops new reservations; open ones still settle.
func (s *ProtocolService) PauseMinting(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.PauseMinting()
	s.publish(ctx, models.EventMintingPaused, "", map[string]interface{}{"paused": true})
	log.Printf("⏸️ [Protocol] Minting paused")
}

// ResumeMinting re-enables new reservations.
func (s *ProtocolService) ResumeMinting(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ResumeMinting()
	s.publish(ctx, models.EventMintingResumed, "", map[string]interface{}{"paused": false})
	log.Printf("▶️ [Protocol] Minting resumed")
}

// MintingPaused reports the pause flag.
func (s *ProtocolService) MintingPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.MintingPaused()
}

// ReloadSettings swaps validated protocol settings in place.
func (s *ProtocolService) ReloadSettings(settings *core.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.ReloadSettings(settings)
	log.Printf("🔄 [Protocol] Settings reloaded")
}

// SetPrices updates the conversion prices used by every collateral
// valuation. Called by the price update loop.
func (s *ProtocolService) SetPrices(asset core.Price, tokens map[core.CollateralKind]core.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.SetAssetPrice(asset)
	for kind, p := range tokens {
		s.store.SetTokenPrice(kind, p)
	}
}

// ---- queries ----

// AgentInfo is a read snapshot of one agent with computed collateral
// ratios.
type AgentInfo struct {
	Agent                       *models.Agent `json:"agent"`
	VaultCollateralRatioBIPS    uint32        `json:"vault_collateral_ratio_bips"`
	PoolCollateralRatioBIPS     uint32        `json:"pool_collateral_ratio_bips"`
	QueuedTickets               int           `json:"queued_tickets"`
	CurrentLiquidationReachable bool          `json:"current_liquidation_reachable"`
}

// GetAgentInfo returns one agent's live state.
func (s *ProtocolService) GetAgentInfo(vault string) (*AgentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.Agent(vault)
	if err != nil {
		return nil, err
	}
	vaultCR := s.store.CollateralRatioBIPS(a, core.CollateralVault)
	poolCR := s.store.CollateralRatioBIPS(a, core.CollateralPool)
	return &AgentInfo{
		Agent:                    agentToRow(a),
		VaultCollateralRatioBIPS: vaultCR,
		PoolCollateralRatioBIPS:  poolCR,
		QueuedTickets:            len(s.store.AgentTicketsInOrder(a)),
		CurrentLiquidationReachable: a.Status == core.AgentLiquidation ||
			a.Status == core.AgentFullLiquidation,
	}, nil
}

// QueueSnapshot returns the global redemption queue in FIFO order.
func (s *ProtocolService) QueueSnapshot() []*models.RedemptionTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets := s.store.TicketsInOrder()
	out := make([]*models.RedemptionTicket, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, &models.RedemptionTicket{ID: t.ID, Vault: t.AgentVault, ValueAMG: uint64(t.ValueAMG)})
	}
	return out
}

// CurrentUnderlyingBlock returns the extrapolated underlying chain cursor.
func (s *ProtocolService) CurrentUnderlyingBlock() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.CurrentUnderlyingBlock()
}

// Settings returns the active protocol settings.
func (s *ProtocolService) Settings() *core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Settings()
}

// RefreshGauges recomputes the protocol-state gauges from the live ledger.
func (s *ProtocolService) RefreshGauges() {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[core.AgentStatus]int)
	var minted uint64
	for _, a := range s.store.Agents() {
		counts[a.Status]++
		minted += uint64(a.MintedAMG)
	}
	for _, status := range []core.AgentStatus{
		core.AgentNormal, core.AgentCCB, core.AgentLiquidation,
		core.AgentFullLiquidation, core.AgentDestroying,
	} {
		metrics.AgentsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	metrics.MintedAMGTotal.Set(float64(minted))
	metrics.RedemptionQueueLength.Set(float64(s.store.QueueLength()))
	metrics.OpenReservations.Set(float64(len(s.store.Reservations())))
	metrics.OpenRedemptions.Set(float64(len(s.store.Redemptions())))
	block, _ := s.store.CurrentUnderlyingBlock()
	metrics.UnderlyingBlockNumber.Set(float64(block))
}

// Recover rebuilds the in-memory ledger from the database after a restart.
// Order matters: agents first, then tickets in ascending id order (id order
// is queue order), then open reservations and redemptions, then payment
// records and the underlying block cursor.
func (s *ProtocolService) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.agents.ListOpen(ctx)
	if err != nil {
		return err
	}
	var maxWithdrawalID uint64
	for _, row := range rows {
		if err := s.store.RestoreAgent(agentFromRow(row)); err != nil {
			return err
		}
		if row.UnderlyingWithdrawalID > maxWithdrawalID {
			maxWithdrawalID = row.UnderlyingWithdrawalID
		}
	}
	s.store.RestoreWithdrawalIDFloor(maxWithdrawalID + 1)

	withdrawals, err := s.agents.ListWithdrawals(ctx)
	if err != nil {
		return err
	}
	for _, w := range withdrawals {
		a, err := s.store.Agent(w.Vault)
		if err != nil {
			continue // announcement of a destroyed agent
		}
		kind, err := ParseCollateralKind(w.CollateralKind)
		if err != nil {
			continue
		}
		a.Withdrawal[kind] = &core.WithdrawalAnnouncement{
			AmountWei: parseBig(w.AmountWei),
			AllowedAt: w.AllowedAt,
		}
	}

	tickets, err := s.tickets.ListOrdered(ctx)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		if err := s.store.RestoreTicket(t.ID, t.Vault, core.AMG(t.ValueAMG)); err != nil {
			return err
		}
	}

	reservations, err := s.reservations.ListOpen(ctx)
	if err != nil {
		return err
	}
	for _, row := range reservations {
		if err := s.store.RestoreReservation(reservationFromRow(row)); err != nil {
			return err
		}
	}

	redemptions, err := s.redemptions.ListOpen(ctx)
	if err != nil {
		return err
	}
	for _, row := range redemptions {
		if err := s.store.RestoreRedemption(redemptionFromRow(row)); err != nil {
			return err
		}
	}

	records, err := s.payments.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, row := range records {
		s.store.RestorePaymentRecord(paymentRecordFromRow(row))
	}

	block, err := s.payments.GetUnderlyingBlock(ctx)
	if err != nil {
		return err
	}
	if block != nil {
		s.store.UpdateCurrentBlock(core.BlockHeightProof{
			BlockNumber:    block.BlockNumber,
			BlockTimestamp: block.BlockTimestamp,
		})
	}

	log.Printf("✅ [Protocol] Recovered state: agents=%d tickets=%d reservations=%d redemptions=%d records=%d",
		len(rows), len(tickets), len(reservations), len(redemptions), len(records))
	return nil
}
