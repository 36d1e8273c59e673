package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RedemptionRequest is one in-flight redemption:
// REQUESTED -> CONFIRMED | TIMED_OUT | BLOCKED, terminal on any branch, id
// never reused. One request per distinct agent drawn from the queue.
type RedemptionRequest struct {
	ID       uint64
	Agent    string
	Redeemer string

	ValueAMG AMG
	ValueUBA *big.Int
	FeeUBA   *big.Int

	FirstUnderlyingBlock    uint64
	LastUnderlyingBlock     uint64
	LastUnderlyingTimestamp uint64

	RedeemerAddressHash common.Hash
	PaymentReference    common.Hash

	// Report is the agent's own "I paid" declaration, if one was submitted;
	// the attested proof is reconciled against it at confirmation time.
	Report *PaymentReport

	CreatedAt int64
}

// PaymentReport is the agent's declaration of the transaction it claims
// settled a request, submitted before the attestation round trip. One
// report per request; a later proof that contradicts it is rejected.
type PaymentReport struct {
	TransactionID common.Hash
	SpentUBA      *big.Int
	ReceivedUBA   *big.Int
	BlockNumber   uint64
}

// RedeemResult reports a redeem call's outcome, including the shortfall when
// the ticket cap or queue exhaustion produced a partial fulfillment.
type RedeemResult struct {
	Requests      []*RedemptionRequest
	RedeemedLots  uint64
	RemainingLots uint64
	DustChanges   []DustChange
}

// Redeem burns lots of tokens against queued backing: drains the FIFO queue
// and opens one redemption request per distinct agent, moving each agent's
// share from minted to redeeming. A partial fulfillment (RemainingLots > 0)
// is a normal outcome the caller must surface to the redeemer.
func (s *Store) Redeem(redeemer string, lots uint64, redeemerUnderlyingAddress string) (*RedeemResult, error) {
	if lots == 0 {
		return nil, ErrNothingToClose
	}
	shares, redeemedLots, dust := s.redeemFromQueue(lots)
	res := &RedeemResult{
		RedeemedLots:  redeemedLots,
		RemainingLots: lots - redeemedLots,
		DustChanges:   dust,
	}
	if redeemedLots == 0 {
		return res, nil
	}
	redeemerHash := UnderlyingAddressHash(redeemerUnderlyingAddress)
	firstBlock, lastBlock, lastTimestamp := s.paymentDeadline()
	for _, share := range shares {
		a := s.agents[share.AgentVault]
		a.startRedeemingAssets(share.ValueAMG)
		valueUBA := s.settings.AMGToUBA(share.ValueAMG)
		r := &RedemptionRequest{
			ID:                      s.nextRedemptionID,
			Agent:                   share.AgentVault,
			Redeemer:                redeemer,
			ValueAMG:                share.ValueAMG,
			ValueUBA:                valueUBA,
			FeeUBA:                  mulDivBips(valueUBA, s.settings.RedemptionFeeBIPS),
			FirstUnderlyingBlock:    firstBlock,
			LastUnderlyingBlock:     lastBlock,
			LastUnderlyingTimestamp: lastTimestamp,
			RedeemerAddressHash:     redeemerHash,
			CreatedAt:               s.Clock(),
		}
		r.PaymentReference = RedemptionReference(r.ID)
		s.nextRedemptionID++
		s.redemptions[r.ID] = r
		res.Requests = append(res.Requests, r)
	}
	return res, nil
}

// ReportRedemptionPayment records the agent's payment declaration on an
// open request.
func (s *Store) ReportRedemptionPayment(caller string, requestID uint64, report PaymentReport) error {
	r, err := s.Redemption(requestID)
	if err != nil {
		return err
	}
	a, err := s.Agent(r.Agent)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if r.Report != nil {
		return ErrAlreadyReported
	}
	rep := report
	rep.SpentUBA = new(big.Int).Set(report.SpentUBA)
	rep.ReceivedUBA = new(big.Int).Set(report.ReceivedUBA)
	r.Report = &rep
	return nil
}

// ConfirmRedemptionPayment settles a request with the agent's payment proof.
// The payment must come from the agent's address, reach the redeemer's, and
// carry at least value minus fee. The transaction is recorded as consumed so
// it can never back a second confirmation or a later challenge.
func (s *Store) ConfirmRedemptionPayment(caller string, proof PaymentProof, requestID uint64) error {
	r, err := s.Redemption(requestID)
	if err != nil {
		return err
	}
	a, err := s.Agent(r.Agent)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if proof.PaymentReference != r.PaymentReference {
		return ErrProofMismatch
	}
	if proof.SourceAddressHash != a.UnderlyingHash {
		return ErrNotAgentsAddress
	}
	if proof.ReceivingAddressHash != r.RedeemerAddressHash {
		return ErrProofMismatch
	}
	if proof.Failed {
		return ErrProofMismatch
	}
	expected := new(big.Int).Sub(r.ValueUBA, r.FeeUBA)
	if proof.ReceivedUBA.Cmp(expected) < 0 {
		return ErrUnderpayment
	}
	if s.paymentRecorded(proof.TransactionID, proof.SourceAddressHash) {
		return ErrPaymentAlreadyConfirmed
	}
	// an earlier report that names a different transaction or different
	// amounts proves a mismatch; the confirmation cannot reconcile
	if r.Report != nil && (r.Report.TransactionID != proof.TransactionID ||
		r.Report.SpentUBA.Cmp(proof.SpentUBA) != 0 ||
		r.Report.ReceivedUBA.Cmp(proof.ReceivedUBA) != 0) {
		return ErrConflictingReport
	}

	s.recordPayment(proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	a.endRedeemingAssets(r.ValueAMG)
	// the request's value left the backing; what the agent did not pay out
	// (the fee, minus underlying gas) becomes free balance
	free := new(big.Int).Sub(r.ValueUBA, proof.SpentUBA)
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, free)
	delete(s.redemptions, requestID)
	return nil
}

// RedemptionDefault reports the collateral compensation paid to the
// redeemer after a payment timeout.
type RedemptionDefault struct {
	Request  *RedemptionRequest
	Redeemer string
	// PaidWei per collateral kind; the service executes the vault payouts
	// after this state change.
	PaidWei map[CollateralKind]*big.Int
}

// RedemptionPaymentTimeout resolves a request the agent never paid. The
// redeemer proves non-payment over the entire eligible window and receives
// one collateral compensation: the price-converted value times the default
// factor, drawn vault-first with the pool covering any capped remainder.
// The unpaid value returns to the agent's free underlying balance.
func (s *Store) RedemptionPaymentTimeout(caller string, proof NonPaymentProof, requestID uint64) (*RedemptionDefault, error) {
	r, err := s.Redemption(requestID)
	if err != nil {
		return nil, err
	}
	if caller != r.Redeemer {
		return nil, ErrNotRedeemer
	}
	a, err := s.Agent(r.Agent)
	if err != nil {
		return nil, err
	}
	if proof.PaymentReference != r.PaymentReference {
		return nil, ErrProofMismatch
	}
	if proof.DestinationAddressHash != r.RedeemerAddressHash {
		return nil, ErrProofMismatch
	}
	expected := new(big.Int).Sub(r.ValueUBA, r.FeeUBA)
	if proof.AmountUBA.Cmp(expected) != 0 {
		return nil, ErrProofMismatch
	}
	// the proof window must start no later than the request and extend past
	// both deadlines, otherwise it does not attest "no payment in the whole
	// eligible window"
	if proof.LowerBoundaryBlock > r.FirstUnderlyingBlock {
		return nil, ErrRequestTooOld
	}
	if proof.FirstOverflowBlock <= r.LastUnderlyingBlock || proof.FirstOverflowTimestamp <= r.LastUnderlyingTimestamp {
		return nil, ErrDeadlineNotPassed
	}

	def := &RedemptionDefault{
		Request:  r,
		Redeemer: r.Redeemer,
		PaidWei:  s.seizeCollateralWei(a, r.ValueAMG, a.BackedAMG(), s.settings.RedemptionDefaultFactorBIPS),
	}

	a.endRedeemingAssets(r.ValueAMG)
	// never paid out on the underlying, so the whole value is free again
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, r.ValueUBA)
	delete(s.redemptions, requestID)
	return def, nil
}

// RedemptionPaymentBlocked resolves a request whose payment was mined but
// failed on the underlying chain: the agent keeps the underlying funds, the
// redeemer gets nothing on the underlying side, and the backing unlocks.
func (s *Store) RedemptionPaymentBlocked(caller string, proof PaymentProof, requestID uint64) error {
	r, err := s.Redemption(requestID)
	if err != nil {
		return err
	}
	a, err := s.Agent(r.Agent)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if proof.PaymentReference != r.PaymentReference {
		return ErrProofMismatch
	}
	if proof.SourceAddressHash != a.UnderlyingHash {
		return ErrNotAgentsAddress
	}
	if !proof.Failed {
		return ErrProofMismatch
	}
	if s.paymentRecorded(proof.TransactionID, proof.SourceAddressHash) {
		return ErrPaymentAlreadyConfirmed
	}

	s.recordPayment(proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	a.endRedeemingAssets(r.ValueAMG)
	// value stays with the agent; only the failed transaction's fee is lost
	free := new(big.Int).Sub(r.ValueUBA, proof.SpentUBA)
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, free)
	delete(s.redemptions, requestID)
	return nil
}

// SelfCloseResult reports an agent-initiated unwind.
type SelfCloseResult struct {
	ClosedAMG   AMG
	ClosedUBA   *big.Int
	DustChanges []DustChange
}

// SelfClose unwinds up to amountUBA of the agent's own backing: dust first,
// then the agent's own queued tickets, never other agents'. The closed
// value is credited straight to free balance; no underlying payment and no
// request lifecycle is involved.
func (s *Store) SelfClose(caller, vault string, amountUBA *big.Int) (*SelfCloseResult, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if err := a.requireOwner(caller); err != nil {
		return nil, err
	}
	wantedAMG := s.settings.UBAToAMG(amountUBA)
	if wantedAMG == 0 {
		return nil, ErrNothingToClose
	}
	closedAMG, dust := s.redeemAgentOwnTickets(a, wantedAMG)
	if closedAMG == 0 {
		return nil, ErrNothingToClose
	}
	a.releaseMintedAssets(closedAMG)
	closedUBA := s.settings.AMGToUBA(closedAMG)
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, closedUBA)
	return &SelfCloseResult{ClosedAMG: closedAMG, ClosedUBA: closedUBA, DustChanges: dust}, nil
}

// Redemptions returns all open requests (persistence and the deadline
// sweeper).
func (s *Store) Redemptions() []*RedemptionRequest {
	out := make([]*RedemptionRequest, 0, len(s.redemptions))
	for _, r := range s.redemptions {
		out = append(out, r)
	}
	return out
}
