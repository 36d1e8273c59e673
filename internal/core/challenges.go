package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChallengeResult reports a successful challenge: the agent is in full
// liquidation and the challenger is owed the reward from the agent's
// collateral (paid by the vault after this state change).
type ChallengeResult struct {
	AgentVault string
	Challenger string
	RewardWei  map[CollateralKind]*big.Int
}

// legalReference reports whether a payment reference is currently expected
// for this agent: a live redemption request of the agent, or the agent's
// own topup/self-mint references. An announced withdrawal is checked
// separately so the caller can report it distinctly.
func (s *Store) legalReference(a *Agent, ref common.Hash) bool {
	for _, r := range s.redemptions {
		if r.Agent == a.Vault && r.PaymentReference == ref {
			return true
		}
	}
	// a self-mint reservation is paid from the agent's own underlying
	// address, so its reference is expected there until ExecuteMinting or
	// MintingPaymentDefault closes the reservation
	for _, r := range s.reservations {
		if r.Agent == a.Vault && r.SelfMint && r.PaymentReference == ref {
			return true
		}
	}
	return ref == TopupReference(a.ID)
}

// IllegalPaymentChallenge succeeds when a balance-decreasing transaction
// from the agent's underlying address carries no currently-valid payment
// reference. Success forces full liquidation and pays the challenger.
func (s *Store) IllegalPaymentChallenge(challenger, vault string, proof BalanceDecreasingProof) (*ChallengeResult, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if proof.SourceAddressHash != a.UnderlyingHash {
		return nil, ErrNotAgentsAddress
	}
	currentBlock, _ := s.CurrentUnderlyingBlock()
	if currentBlock > s.settings.ConfirmationBlocks && proof.BlockNumber < currentBlock-s.settings.ConfirmationBlocks {
		return nil, ErrTransactionTooOld
	}
	if s.paymentRecorded(proof.TransactionID, proof.SourceAddressHash) {
		return nil, ErrPaymentAlreadyConfirmed
	}
	if a.UnderlyingWithdrawalID != 0 && proof.PaymentReference == WithdrawalReference(a.UnderlyingWithdrawalID) {
		return nil, ErrMatchingAnnouncedPayment
	}
	if s.legalReference(a, proof.PaymentReference) {
		return nil, ErrMatchingRedemption
	}
	return s.challengeSucceeded(a, challenger), nil
}

// DoublePaymentChallenge succeeds when two distinct transactions from the
// agent's address carry the same payment reference: at most one of them can
// be the legitimate payment.
func (s *Store) DoublePaymentChallenge(challenger, vault string, proof1, proof2 BalanceDecreasingProof) (*ChallengeResult, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if proof1.SourceAddressHash != a.UnderlyingHash || proof2.SourceAddressHash != a.UnderlyingHash {
		return nil, ErrNotAgentsAddress
	}
	if proof1.TransactionID == proof2.TransactionID {
		return nil, ErrSameTransaction
	}
	if proof1.PaymentReference != proof2.PaymentReference {
		return nil, ErrNotDuplicate
	}
	return s.challengeSucceeded(a, challenger), nil
}

// FreeBalanceNegativeChallenge succeeds when a set of at least two distinct
// transactions from the agent's address spends more than the agent's tracked
// free underlying balance, proving the agent dipped into the minted backing.
// A single overspending transaction is already an illegal or double payment
// and belongs to the other challenge kinds.
func (s *Store) FreeBalanceNegativeChallenge(challenger, vault string, proofs []BalanceDecreasingProof) (*ChallengeResult, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if len(proofs) < 2 {
		return nil, ErrTooFewProofs
	}
	seen := make(map[common.Hash]bool, len(proofs))
	total := new(big.Int)
	for _, p := range proofs {
		if p.SourceAddressHash != a.UnderlyingHash {
			return nil, ErrNotAgentsAddress
		}
		if seen[p.TransactionID] {
			return nil, ErrRepeatedTransaction
		}
		seen[p.TransactionID] = true
		// a transaction already accounted for by a confirmed redemption or
		// withdrawal cannot count against the free balance again
		if s.paymentRecorded(p.TransactionID, p.SourceAddressHash) {
			return nil, ErrPaymentAlreadyConfirmed
		}
		if p.SpentUBA.Sign() > 0 {
			total.Add(total, p.SpentUBA)
		}
	}
	free := new(big.Int).Set(a.FreeUnderlyingUBA)
	if free.Sign() < 0 {
		free.SetInt64(0)
	}
	if total.Cmp(free) <= 0 {
		return nil, ErrEnoughFreeBalance
	}
	return s.challengeSucceeded(a, challenger), nil
}

func (s *Store) challengeSucceeded(a *Agent, challenger string) *ChallengeResult {
	s.enterFullLiquidation(a)
	return &ChallengeResult{
		AgentVault: a.Vault,
		Challenger: challenger,
		RewardWei:  s.challengeRewardWei(a),
	}
}
