package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the protocol's entire mutable state, passed by handle to every
// operation. It is not safe for concurrent use: the service layer serializes
// all entry points (one call fully completes before the next begins), so the
// store needs no internal locking.
//
// Tickets, reservations and redemption requests live in arena-style
// id-indexed tables with monotonic ids that are never reused.
type Store struct {
	settings *Settings

	assetPrice  Price
	tokenPrices map[CollateralKind]Price

	agents             map[string]*Agent
	agentsByUnderlying map[common.Hash]string
	nextAgentID        uint64

	tickets      map[uint64]*RedemptionTicket
	firstTicket  uint64
	lastTicket   uint64
	nextTicketID uint64

	reservations      map[uint64]*CollateralReservation
	nextReservationID uint64

	redemptions      map[uint64]*RedemptionRequest
	nextRedemptionID uint64

	nextWithdrawalID uint64

	payments map[PaymentRecordKey]*PaymentRecord

	// Underlying block height as last proven on-chain, plus the local time
	// of that update for timeshift extrapolation.
	currentBlock          uint64
	currentBlockTimestamp uint64
	blockUpdatedAt        int64

	mintingPaused bool

	// Clock returns the current unix time; overridable in tests.
	Clock func() int64
}

// NewStore creates an empty store over validated settings.
func NewStore(settings *Settings) *Store {
	return &Store{
		settings:           settings,
		tokenPrices:        make(map[CollateralKind]Price),
		agents:             make(map[string]*Agent),
		agentsByUnderlying: make(map[common.Hash]string),
		nextAgentID:        1,
		tickets:            make(map[uint64]*RedemptionTicket),
		nextTicketID:       1,
		reservations:       make(map[uint64]*CollateralReservation),
		nextReservationID:  1,
		redemptions:        make(map[uint64]*RedemptionRequest),
		nextRedemptionID:   1,
		nextWithdrawalID:   1,
		payments:           make(map[PaymentRecordKey]*PaymentRecord),
		Clock:              func() int64 { return time.Now().Unix() },
	}
}

// Settings returns the active settings value.
func (s *Store) Settings() *Settings { return s.settings }

// ReloadSettings swaps the settings value (admin hot reload; caller holds
// the service lock and has validated the new value).
func (s *Store) ReloadSettings(settings *Settings) { s.settings = settings }

// SetAssetPrice / SetTokenPrice feed the oracle quotes into the store.
func (s *Store) SetAssetPrice(p Price) { s.assetPrice = p }

func (s *Store) SetTokenPrice(kind CollateralKind, p Price) { s.tokenPrices[kind] = p }

// Conversion builds the pure conversion context for one collateral kind from
// the current quotes.
func (s *Store) Conversion(kind CollateralKind) *Conversion {
	return NewConversion(s.settings, s.assetPrice, s.tokenPrices[kind], kind)
}

// PauseMinting / ResumeMinting gate new collateral reservations only;
// everything already in flight proceeds.
func (s *Store) PauseMinting()       { s.mintingPaused = true }
func (s *Store) ResumeMinting()      { s.mintingPaused = false }
func (s *Store) MintingPaused() bool { return s.mintingPaused }

// UpdateCurrentBlock records a proven underlying block height. Heights never
// go backwards.
func (s *Store) UpdateCurrentBlock(proof BlockHeightProof) {
	if proof.BlockNumber < s.currentBlock {
		return
	}
	s.currentBlock = proof.BlockNumber
	s.currentBlockTimestamp = proof.BlockTimestamp
	s.blockUpdatedAt = s.Clock()
}

// CurrentUnderlyingBlock extrapolates the proven height by the wall time
// elapsed since the last update, so payment deadlines computed on a fast
// underlying chain do not starve agents of payment time.
func (s *Store) CurrentUnderlyingBlock() (block uint64, timestamp uint64) {
	elapsed := s.Clock() - s.blockUpdatedAt
	if elapsed < 0 {
		elapsed = 0
	}
	block = s.currentBlock
	if s.settings.AverageBlockTimeMS > 0 {
		block += uint64(elapsed) * 1000 / s.settings.AverageBlockTimeMS
	}
	timestamp = s.currentBlockTimestamp + uint64(elapsed)
	return block, timestamp
}

// paymentDeadline computes the last underlying block and timestamp by which
// a payment for a request created now must appear.
func (s *Store) paymentDeadline() (firstBlock, lastBlock, lastTimestamp uint64) {
	block, ts := s.CurrentUnderlyingBlock()
	return block, block + s.settings.UnderlyingBlocksForPayment, ts + s.settings.UnderlyingSecondsForPayment
}

// Agent lookup. Every ledger operation starts here.
func (s *Store) Agent(vault string) (*Agent, error) {
	a, ok := s.agents[vault]
	if !ok {
		return nil, ErrUnknownAgent
	}
	return a, nil
}

// Agents returns all agents (iteration order unspecified).
func (s *Store) Agents() []*Agent {
	out := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

// AgentByUnderlying finds the agent bound to an underlying address hash.
func (s *Store) AgentByUnderlying(hash common.Hash) (*Agent, bool) {
	vault, ok := s.agentsByUnderlying[hash]
	if !ok {
		return nil, false
	}
	return s.agents[vault], true
}

// Reservation / Redemption lookups.
func (s *Store) Reservation(id uint64) (*CollateralReservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrInvalidReservation
	}
	return r, nil
}

func (s *Store) Redemption(id uint64) (*RedemptionRequest, error) {
	r, ok := s.redemptions[id]
	if !ok {
		return nil, ErrInvalidRedemption
	}
	return r, nil
}

// Ticket returns a ticket by id (nil if consumed).
func (s *Store) Ticket(id uint64) *RedemptionTicket { return s.tickets[id] }

// paymentRecorded reports whether a transaction has already backed a claim.
func (s *Store) paymentRecorded(txID, sourceHash common.Hash) bool {
	_, ok := s.payments[PaymentRecordKey{TransactionID: txID, SourceHash: sourceHash}]
	return ok
}

// recordPayment marks a transaction as consumed.
func (s *Store) recordPayment(txID, sourceHash, reference common.Hash, spentUBA *big.Int, block uint64) {
	key := PaymentRecordKey{TransactionID: txID, SourceHash: sourceHash}
	s.payments[key] = &PaymentRecord{
		Key:              key,
		PaymentReference: reference,
		SpentUBA:         new(big.Int).Set(spentUBA),
		BlockNumber:      block,
	}
}

// PruneOldPaymentRecords deletes records no longer needed for replay
// prevention (older than the challenge retention window).
func (s *Store) PruneOldPaymentRecords() int {
	cutoffBlock, _ := s.CurrentUnderlyingBlock()
	if cutoffBlock <= s.settings.ConfirmationBlocks {
		return 0
	}
	cutoff := cutoffBlock - s.settings.ConfirmationBlocks
	pruned := 0
	for key, rec := range s.payments {
		if rec.BlockNumber < cutoff {
			delete(s.payments, key)
			pruned++
		}
	}
	return pruned
}

// PaymentRecords returns the current record set (for persistence snapshots).
func (s *Store) PaymentRecords() []*PaymentRecord {
	out := make([]*PaymentRecord, 0, len(s.payments))
	for _, rec := range s.payments {
		out = append(out, rec)
	}
	return out
}
