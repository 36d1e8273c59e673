package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralReservation is one in-flight minting request:
// RESERVED -> EXECUTED | DEFAULTED, terminal either way, id never reused.
type CollateralReservation struct {
	ID     uint64
	Agent  string
	Minter string

	ValueAMG AMG
	ValueUBA *big.Int
	FeeUBA   *big.Int

	FirstUnderlyingBlock    uint64
	LastUnderlyingBlock     uint64
	LastUnderlyingTimestamp uint64

	PaymentAddress   string
	PaymentReference common.Hash
	SelfMint         bool

	CreatedAt int64
}

// ReserveCollateral locks free collateral for lots of new minting and hands
// the minter a payment address, deadline and unique reference. The
// reference encodes the reservation id, so a payment proof matches exactly
// one reservation.
func (s *Store) ReserveCollateral(minter, vault string, lots uint64) (*CollateralReservation, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if s.mintingPaused {
		return nil, ErrMintingPaused
	}
	if a.Status != AgentNormal {
		return nil, ErrInvalidAgentStatus
	}
	selfMint := minter == a.Owner
	if !a.PubliclyAvailable && !selfMint {
		return nil, ErrNotPubliclyAvailable
	}
	if lots == 0 {
		return nil, ErrNotEnoughFreeCollateral
	}
	valueAMG := s.settings.LotsToAMG(lots)

	// the new backing must fit inside free collateral for both kinds at the
	// minting CR
	for _, kind := range CollateralKinds {
		ratio := a.MinCollateralRatioBIPS[kind]
		if m := s.settings.Class(kind).MintingMinCollateralRatioBIPS; m > ratio {
			ratio = m
		}
		needWei := mulDivBips(s.Conversion(kind).AMGToTokenWei(valueAMG), ratio)
		if needWei.Cmp(s.freeCollateralWei(a, kind)) > 0 {
			return nil, ErrNotEnoughFreeCollateral
		}
	}

	valueUBA := s.settings.AMGToUBA(valueAMG)
	firstBlock, lastBlock, lastTimestamp := s.paymentDeadline()
	r := &CollateralReservation{
		ID:                      s.nextReservationID,
		Agent:                   vault,
		Minter:                  minter,
		ValueAMG:                valueAMG,
		ValueUBA:                valueUBA,
		FeeUBA:                  mulDivBips(valueUBA, s.settings.MintingFeeBIPS),
		FirstUnderlyingBlock:    firstBlock,
		LastUnderlyingBlock:     lastBlock,
		LastUnderlyingTimestamp: lastTimestamp,
		PaymentAddress:          a.UnderlyingAddress,
		SelfMint:                selfMint,
		CreatedAt:               s.Clock(),
	}
	r.PaymentReference = MintingReference(r.ID)
	s.nextReservationID++
	s.reservations[r.ID] = r

	a.ReservedAMG = addAMG(a.ReservedAMG, valueAMG)
	return r, nil
}

// MintingResult reports the ledger effects of an executed minting.
type MintingResult struct {
	Reservation *CollateralReservation
	Ticket      *RedemptionTicket
	// FeeUBA credited to the agent's free underlying balance: the agreed
	// fee plus any overpayment.
	FeeUBA *big.Int
}

// ExecuteMinting settles a reservation with the minter's payment proof:
// allocates the minted AMG, creates the redemption ticket, credits the fee
// and deletes the reservation.
func (s *Store) ExecuteMinting(proof PaymentProof, reservationID uint64) (*MintingResult, error) {
	r, err := s.Reservation(reservationID)
	if err != nil {
		return nil, err
	}
	a, err := s.Agent(r.Agent)
	if err != nil {
		return nil, err
	}
	if proof.PaymentReference != r.PaymentReference {
		return nil, ErrProofMismatch
	}
	if proof.ReceivingAddressHash != a.UnderlyingHash {
		return nil, ErrProofMismatch
	}
	if proof.Failed {
		return nil, ErrProofMismatch
	}
	// the proof must fall inside the reservation's validity window; the
	// check mirrors the redemption deadline logic
	if proof.BlockNumber < r.FirstUnderlyingBlock {
		return nil, ErrStalePaymentProof
	}
	required := new(big.Int).Add(r.ValueUBA, r.FeeUBA)
	if proof.ReceivedUBA.Cmp(required) < 0 {
		return nil, ErrUnderpayment
	}
	if s.paymentRecorded(proof.TransactionID, proof.SourceAddressHash) {
		return nil, ErrPaymentAlreadyConfirmed
	}

	s.recordPayment(proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	a.ReservedAMG = subAMG(a.ReservedAMG, r.ValueAMG)
	a.allocateMintedAssets(r.ValueAMG)
	ticket := s.createTicket(a, r.ValueAMG)

	// fee plus overpayment stays on the agent's underlying address as free
	// balance
	fee := new(big.Int).Sub(proof.ReceivedUBA, r.ValueUBA)
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, fee)

	delete(s.reservations, reservationID)
	return &MintingResult{Reservation: r, Ticket: ticket, FeeUBA: fee}, nil
}

// MintingPaymentDefault resolves a reservation the minter never paid:
// the agent proves non-payment of the whole value+fee within the window and
// the reserved backing unlocks. Terminal, mutually exclusive with
// ExecuteMinting.
func (s *Store) MintingPaymentDefault(caller string, proof NonPaymentProof, reservationID uint64) (*CollateralReservation, error) {
	r, err := s.Reservation(reservationID)
	if err != nil {
		return nil, err
	}
	a, err := s.Agent(r.Agent)
	if err != nil {
		return nil, err
	}
	if err := a.requireOwner(caller); err != nil {
		return nil, err
	}
	if proof.PaymentReference != r.PaymentReference {
		return nil, ErrProofMismatch
	}
	if proof.DestinationAddressHash != a.UnderlyingHash {
		return nil, ErrProofMismatch
	}
	required := new(big.Int).Add(r.ValueUBA, r.FeeUBA)
	if proof.AmountUBA.Cmp(required) != 0 {
		return nil, ErrProofMismatch
	}
	// the proof must cover the entire eligible window
	if proof.LowerBoundaryBlock > r.FirstUnderlyingBlock {
		return nil, ErrRequestTooOld
	}
	if proof.FirstOverflowBlock <= r.LastUnderlyingBlock || proof.FirstOverflowTimestamp <= r.LastUnderlyingTimestamp {
		return nil, ErrDeadlineNotPassed
	}

	a.ReservedAMG = subAMG(a.ReservedAMG, r.ValueAMG)
	delete(s.reservations, reservationID)
	return r, nil
}

// Reservations returns all open reservations (persistence and the deadline
// sweeper).
func (s *Store) Reservations() []*CollateralReservation {
	out := make([]*CollateralReservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	return out
}
