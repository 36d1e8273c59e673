package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AgentStatus is the liquidation state machine position of an agent.
type AgentStatus string

const (
	AgentNormal          AgentStatus = "normal"
	AgentCCB             AgentStatus = "ccb"              // collateral call band
	AgentLiquidation     AgentStatus = "liquidation"      // price-driven, recoverable
	AgentFullLiquidation AgentStatus = "full_liquidation" // challenge-driven, terminal
	AgentDestroying      AgentStatus = "destroying"
)

// WithdrawalAnnouncement is one pending collateral withdrawal. At most one
// per collateral kind.
type WithdrawalAnnouncement struct {
	AmountWei *big.Int
	AllowedAt int64
}

// Agent is the per-participant ledger entry. All AMG counters are unsigned;
// underflow in any transition is a hard assertion failure, never a
// recoverable error (callers must sequence start/end pairs correctly).
type Agent struct {
	ID                uint64
	Vault             string // custody-vault reference, the agent's key
	Owner             string // owning principal
	UnderlyingAddress string
	UnderlyingHash    common.Hash

	ReservedAMG  AMG
	MintedAMG    AMG
	RedeemingAMG AMG
	DustAMG      AMG // invariant at rest: DustAMG < lotSizeAMG

	Collateral             map[CollateralKind]*big.Int
	MinCollateralRatioBIPS map[CollateralKind]uint32

	Withdrawal map[CollateralKind]*WithdrawalAnnouncement

	// FreeUnderlyingUBA may go negative: an underlying-currency debt the
	// agent must top up.
	FreeUnderlyingUBA *big.Int

	Status               AgentStatus
	CCBStartedAt         int64
	LiquidationStartedAt int64
	// InitialLiquidationStep is the factor-schedule index liquidation
	// started at; challenge-triggered liquidation starts deeper into the
	// schedule than plain low-CR liquidation.
	InitialLiquidationStep int

	PubliclyAvailable  bool
	DestroyAnnouncedAt int64

	// One outstanding announced underlying withdrawal (id is the payment
	// reference id; zero when none).
	UnderlyingWithdrawalID          uint64
	UnderlyingWithdrawalAnnouncedAt int64

	// Per-agent ticket sub-list head/tail (see queue.go).
	firstTicket uint64
	lastTicket  uint64
}

// CreateAgent registers a new agent, binding a unique underlying address.
func (s *Store) CreateAgent(owner, vault, underlyingAddress string) (*Agent, error) {
	if _, exists := s.agents[vault]; exists {
		return nil, ErrAgentExists
	}
	hash := UnderlyingAddressHash(underlyingAddress)
	if _, taken := s.agentsByUnderlying[hash]; taken {
		return nil, ErrAddressInUse
	}
	a := &Agent{
		ID:                s.nextAgentID,
		Vault:             vault,
		Owner:             owner,
		UnderlyingAddress: underlyingAddress,
		UnderlyingHash:    hash,
		Collateral: map[CollateralKind]*big.Int{
			CollateralVault: new(big.Int),
			CollateralPool:  new(big.Int),
		},
		MinCollateralRatioBIPS: map[CollateralKind]uint32{
			CollateralVault: s.settings.Vault.MinCollateralRatioBIPS,
			CollateralPool:  s.settings.Pool.MinCollateralRatioBIPS,
		},
		Withdrawal:        make(map[CollateralKind]*WithdrawalAnnouncement),
		FreeUnderlyingUBA: new(big.Int),
		Status:            AgentNormal,
	}
	s.nextAgentID++
	s.agents[vault] = a
	s.agentsByUnderlying[hash] = vault
	return a, nil
}

// requireOwner guards owner-only operations.
func (a *Agent) requireOwner(caller string) error {
	if caller != a.Owner {
		return ErrNotAgentOwner
	}
	return nil
}

// BackedAMG is everything the agent's collateral must currently cover.
// Redeeming AMG stays locked until the redemption resolves.
func (a *Agent) BackedAMG() AMG {
	return addAMG(addAMG(a.ReservedAMG, a.MintedAMG), a.RedeemingAMG)
}

// allocateMintedAssets: minted += amg. Collateral sufficiency is the
// caller's (minting's) responsibility before this point.
func (a *Agent) allocateMintedAssets(amg AMG) {
	a.MintedAMG = addAMG(a.MintedAMG, amg)
}

// releaseMintedAssets: minted -= amg.
func (a *Agent) releaseMintedAssets(amg AMG) {
	a.MintedAMG = subAMG(a.MintedAMG, amg)
}

// startRedeemingAssets atomically moves amg from minted to redeeming.
func (a *Agent) startRedeemingAssets(amg AMG) {
	a.MintedAMG = subAMG(a.MintedAMG, amg)
	a.RedeemingAMG = addAMG(a.RedeemingAMG, amg)
}

// endRedeemingAssets clears amg from redeeming once the redemption reached
// a terminal state.
func (a *Agent) endRedeemingAssets(amg AMG) {
	a.RedeemingAMG = subAMG(a.RedeemingAMG, amg)
}

// DustChange is the notification payload emitted whenever an agent's dust
// moves; the value is reported in UBA for external consumers.
type DustChange struct {
	AgentVault string
	DustUBA    *big.Int
}

func (s *Store) increaseDust(a *Agent, amg AMG) DustChange {
	a.DustAMG = addAMG(a.DustAMG, amg)
	return DustChange{AgentVault: a.Vault, DustUBA: s.settings.AMGToUBA(a.DustAMG)}
}

func (s *Store) decreaseDust(a *Agent, amg AMG) DustChange {
	a.DustAMG = subAMG(a.DustAMG, amg)
	return DustChange{AgentVault: a.Vault, DustUBA: s.settings.AMGToUBA(a.DustAMG)}
}

// DepositCollateral credits a collateral balance. The caller should follow
// up with EndLiquidationIfHealthy.
func (s *Store) DepositCollateral(vault string, kind CollateralKind, amountWei *big.Int) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if a.Status == AgentDestroying {
		return ErrInvalidAgentStatus
	}
	a.Collateral[kind].Add(a.Collateral[kind], amountWei)
	return nil
}

// SetPubliclyAvailable flips the public-minting flag (owner only; leaving
// the public list does not affect in-flight reservations).
func (s *Store) SetPubliclyAvailable(caller, vault string, available bool) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	a.PubliclyAvailable = available
	return nil
}

// SetMinCollateralRatio lets the owner raise (never lower below protocol
// minimum) the agent's own CR requirement.
func (s *Store) SetMinCollateralRatio(caller, vault string, kind CollateralKind, ratioBIPS uint32) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if ratioBIPS < s.settings.Class(kind).MinCollateralRatioBIPS {
		return ErrWithdrawalNotAllowed
	}
	a.MinCollateralRatioBIPS[kind] = ratioBIPS
	return nil
}

// CollateralRatioBIPS is collateral value over backed-asset value for one
// collateral kind. An agent with nothing backed has an effectively infinite
// ratio, reported as MaxUint32.
func (s *Store) CollateralRatioBIPS(a *Agent, kind CollateralKind) uint32 {
	backed := a.BackedAMG()
	if backed == 0 {
		return ^uint32(0)
	}
	backedWei := s.Conversion(kind).AMGToTokenWei(backed)
	if backedWei.Sign() == 0 {
		return ^uint32(0)
	}
	r := new(big.Int).Mul(a.Collateral[kind], big.NewInt(MaxBIPS))
	r.Quo(r, backedWei)
	if !r.IsUint64() || r.Uint64() > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(r.Uint64())
}

// lockedCollateralWei is the collateral the agent may not withdraw: the
// amount required to keep BackedAMG at the minting CR.
func (s *Store) lockedCollateralWei(a *Agent, kind CollateralKind) *big.Int {
	backed := a.BackedAMG()
	if backed == 0 {
		return new(big.Int)
	}
	ratio := a.MinCollateralRatioBIPS[kind]
	if m := s.settings.Class(kind).MintingMinCollateralRatioBIPS; m > ratio {
		ratio = m
	}
	backedWei := s.Conversion(kind).AMGToTokenWei(backed)
	return mulDivBips(backedWei, ratio)
}

// freeCollateralWei is what is left above the locked amount and any pending
// withdrawal announcement.
func (s *Store) freeCollateralWei(a *Agent, kind CollateralKind) *big.Int {
	free := new(big.Int).Sub(a.Collateral[kind], s.lockedCollateralWei(a, kind))
	if ann := a.Withdrawal[kind]; ann != nil {
		free.Sub(free, ann.AmountWei)
	}
	if free.Sign() < 0 {
		free.SetInt64(0)
	}
	return free
}

// AnnounceWithdrawal opens, grows, shrinks or cancels a collateral
// withdrawal announcement:
//   - increasing requires the increase to fit within currently-free
//     collateral and restarts the wait;
//   - decreasing to zero clears the announcement;
//   - decreasing to nonzero keeps the original timestamp (no second wait
//     for less).
func (s *Store) AnnounceWithdrawal(caller, vault string, kind CollateralKind, amountWei *big.Int) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if a.Status != AgentNormal {
		return ErrInvalidAgentStatus
	}
	prev := a.Withdrawal[kind]
	if amountWei.Sign() == 0 {
		delete(a.Withdrawal, kind)
		return nil
	}
	if prev == nil || amountWei.Cmp(prev.AmountWei) > 0 {
		increase := new(big.Int).Set(amountWei)
		if prev != nil {
			increase.Sub(increase, prev.AmountWei)
		}
		if increase.Cmp(s.freeCollateralWei(a, kind)) > 0 {
			return ErrNotEnoughFreeCollateral
		}
		a.Withdrawal[kind] = &WithdrawalAnnouncement{
			AmountWei: new(big.Int).Set(amountWei),
			AllowedAt: s.Clock() + int64(s.settings.WithdrawalWaitMinSeconds),
		}
		return nil
	}
	// decrease to nonzero: keep the original allowed-at
	prev.AmountWei = new(big.Int).Set(amountWei)
	return nil
}

// ExecuteWithdrawal enforces the announcement, the wait, the window and the
// CR floor for the locked backing, then debits the collateral. Returns the
// amount to pay out; the service transfers funds only after this state
// change (effects before external calls).
func (s *Store) ExecuteWithdrawal(caller, vault string, kind CollateralKind, amountWei *big.Int) (*big.Int, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if err := a.requireOwner(caller); err != nil {
		return nil, err
	}
	if a.Status != AgentNormal {
		return nil, ErrInvalidAgentStatus
	}
	ann := a.Withdrawal[kind]
	if ann == nil {
		return nil, ErrNotAnnounced
	}
	if amountWei.Sign() <= 0 || amountWei.Cmp(ann.AmountWei) > 0 {
		return nil, ErrWithdrawalNotAllowed
	}
	now := s.Clock()
	if now < ann.AllowedAt {
		return nil, ErrWithdrawalTooSoon
	}
	if uint64(now-ann.AllowedAt) > s.settings.WithdrawalWindowSeconds {
		return nil, ErrWithdrawalWindowExpired
	}
	remaining := new(big.Int).Sub(a.Collateral[kind], amountWei)
	if remaining.Cmp(s.lockedCollateralWei(a, kind)) < 0 {
		return nil, ErrNotEnoughFreeCollateral
	}
	a.Collateral[kind] = remaining
	left := new(big.Int).Sub(ann.AmountWei, amountWei)
	if left.Sign() == 0 {
		delete(a.Withdrawal, kind)
	} else {
		ann.AmountWei = left
	}
	return new(big.Int).Set(amountWei), nil
}

// AnnounceUnderlyingWithdrawal opens an announced underlying payment; the
// returned reference makes the eventual transaction legal for the agent's
// address. One outstanding announcement per agent.
func (s *Store) AnnounceUnderlyingWithdrawal(caller, vault string) (common.Hash, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.requireOwner(caller); err != nil {
		return common.Hash{}, err
	}
	if a.UnderlyingWithdrawalID != 0 {
		return common.Hash{}, ErrInvalidAgentStatus
	}
	a.UnderlyingWithdrawalID = s.nextWithdrawalID
	s.nextWithdrawalID++
	a.UnderlyingWithdrawalAnnouncedAt = s.Clock()
	return WithdrawalReference(a.UnderlyingWithdrawalID), nil
}

// ConfirmUnderlyingWithdrawal settles an announced underlying withdrawal
// with the payment proof: the spent amount is debited from the free balance
// and the announcement is closed.
func (s *Store) ConfirmUnderlyingWithdrawal(caller, vault string, proof PaymentProof) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if a.UnderlyingWithdrawalID == 0 {
		return ErrNotAnnounced
	}
	if proof.SourceAddressHash != a.UnderlyingHash {
		return ErrNotAgentsAddress
	}
	if proof.PaymentReference != WithdrawalReference(a.UnderlyingWithdrawalID) {
		return ErrProofMismatch
	}
	if s.paymentRecorded(proof.TransactionID, proof.SourceAddressHash) {
		return ErrPaymentAlreadyConfirmed
	}
	s.recordPayment(proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, proof.SpentUBA, proof.BlockNumber)
	a.FreeUnderlyingUBA.Sub(a.FreeUnderlyingUBA, proof.SpentUBA)
	a.UnderlyingWithdrawalID = 0
	a.UnderlyingWithdrawalAnnouncedAt = 0
	return nil
}

// CancelUnderlyingWithdrawal closes an announcement that was never paid.
func (s *Store) CancelUnderlyingWithdrawal(caller, vault string) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if a.UnderlyingWithdrawalID == 0 {
		return ErrNotAnnounced
	}
	a.UnderlyingWithdrawalID = 0
	a.UnderlyingWithdrawalAnnouncedAt = 0
	return nil
}

// ConfirmTopupPayment credits an agent's free underlying balance from a
// payment to the agent's own address carrying the topup reference; this is
// how a negative balance (underlying debt) is repaired.
func (s *Store) ConfirmTopupPayment(caller, vault string, proof PaymentProof) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if proof.ReceivingAddressHash != a.UnderlyingHash {
		return ErrProofMismatch
	}
	if proof.PaymentReference != TopupReference(a.ID) {
		return ErrProofMismatch
	}
	if s.paymentRecorded(proof.TransactionID, proof.SourceAddressHash) {
		return ErrPaymentAlreadyConfirmed
	}
	s.recordPayment(proof.TransactionID, proof.SourceAddressHash, proof.PaymentReference, big.NewInt(0), proof.BlockNumber)
	a.FreeUnderlyingUBA.Add(a.FreeUnderlyingUBA, proof.ReceivedUBA)
	return nil
}

// AnnounceDestroy starts the destroy grace period. Only a NORMAL agent with
// every ledger counter at zero can be destroyed.
func (s *Store) AnnounceDestroy(caller, vault string) error {
	a, err := s.Agent(vault)
	if err != nil {
		return err
	}
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if a.Status != AgentNormal {
		return ErrInvalidAgentStatus
	}
	if a.BackedAMG() != 0 || a.DustAMG != 0 {
		return ErrDestroyNotAllowed
	}
	a.Status = AgentDestroying
	a.DestroyAnnouncedAt = s.Clock()
	return nil
}

// DestroyAgent removes the agent after the grace period and returns the
// remaining collateral per kind for the vault payout.
func (s *Store) DestroyAgent(caller, vault string) (map[CollateralKind]*big.Int, error) {
	a, err := s.Agent(vault)
	if err != nil {
		return nil, err
	}
	if err := a.requireOwner(caller); err != nil {
		return nil, err
	}
	if a.Status != AgentDestroying {
		return nil, ErrDestroyNotAllowed
	}
	if uint64(s.Clock()-a.DestroyAnnouncedAt) < s.settings.DestroyWaitMinSeconds {
		return nil, ErrDestroyNotAllowed
	}
	remaining := map[CollateralKind]*big.Int{
		CollateralVault: new(big.Int).Set(a.Collateral[CollateralVault]),
		CollateralPool:  new(big.Int).Set(a.Collateral[CollateralPool]),
	}
	delete(s.agents, vault)
	delete(s.agentsByUnderlying, a.UnderlyingHash)
	return remaining, nil
}
