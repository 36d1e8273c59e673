package core

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Attested claim types. The attestation client verifies the Merkle proofs
// and hands the core the structured fields; the core trusts any claim the
// verifier attested.

// PaymentProof attests that one underlying transaction happened.
type PaymentProof struct {
	TransactionID        common.Hash
	SourceAddressHash    common.Hash
	ReceivingAddressHash common.Hash
	// SpentUBA is the amount the source balance decreased by (includes the
	// underlying transaction fee).
	SpentUBA *big.Int
	// ReceivedUBA is the amount credited to the receiving address.
	ReceivedUBA      *big.Int
	PaymentReference common.Hash
	BlockNumber      uint64
	BlockTimestamp   uint64
	// Failed marks a transaction that was mined but reverted on the
	// underlying chain (funds stayed with the sender).
	Failed bool
}

// BalanceDecreasingProof attests that a transaction decreased an address's
// balance by a positive amount; this is the challenge input.
type BalanceDecreasingProof struct {
	TransactionID     common.Hash
	SourceAddressHash common.Hash
	SpentUBA          *big.Int
	PaymentReference  common.Hash
	BlockNumber       uint64
	BlockTimestamp    uint64
}

// NonPaymentProof attests that no payment with the given reference, receiver
// and amount exists in [LowerBoundaryBlock, FirstOverflowBlock).
type NonPaymentProof struct {
	DestinationAddressHash common.Hash
	PaymentReference       common.Hash
	AmountUBA              *big.Int
	LowerBoundaryBlock     uint64
	FirstOverflowBlock     uint64
	FirstOverflowTimestamp uint64
}

// BlockHeightProof attests a confirmed underlying block height.
type BlockHeightProof struct {
	BlockNumber    uint64
	BlockTimestamp uint64
}

// Payment reference scheme. References are 32 bytes: an 8-byte type tag in
// the first word and the record id in the last 8 bytes, so an attested
// payment maps back to exactly one reservation/redemption/announcement.
const (
	refTagMinting    uint64 = 0x6641737431000001
	refTagRedemption uint64 = 0x6641737431000002
	refTagWithdrawal uint64 = 0x6641737431000003
	refTagTopup      uint64 = 0x6641737431000004
)

func paymentReference(tag, id uint64) common.Hash {
	var h common.Hash
	binary.BigEndian.PutUint64(h[0:8], tag)
	binary.BigEndian.PutUint64(h[24:32], id)
	return h
}

// MintingReference is carried by the minter's payment for a reservation.
func MintingReference(reservationID uint64) common.Hash {
	return paymentReference(refTagMinting, reservationID)
}

// RedemptionReference is carried by the agent's payment for a redemption.
func RedemptionReference(requestID uint64) common.Hash {
	return paymentReference(refTagRedemption, requestID)
}

// WithdrawalReference is carried by an announced underlying withdrawal.
func WithdrawalReference(announcementID uint64) common.Hash {
	return paymentReference(refTagWithdrawal, announcementID)
}

// TopupReference is carried by an agent's free-balance topup payment.
// A self-mint payment carries the ordinary MintingReference of its
// reservation; the agent's own address paying it is expected.
func TopupReference(agentID uint64) common.Hash {
	return paymentReference(refTagTopup, agentID)
}

// UnderlyingAddressHash hashes a raw underlying address string. Underlying
// addresses are variable length, so all matching is done on the keccak-256
// of the exact string the agent registered.
func UnderlyingAddressHash(address string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(address))
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// PaymentRecordKey identifies a used underlying transaction per source
// address; the same transaction can never back two different claims.
type PaymentRecordKey struct {
	TransactionID common.Hash
	SourceHash    common.Hash
}

// PaymentRecord is kept after a payment proof has been consumed, for replay
// prevention and challenge deduplication. Records older than the retention
// window are deleted to keep the set bounded.
type PaymentRecord struct {
	Key              PaymentRecordKey
	PaymentReference common.Hash
	SpentUBA         *big.Int
	BlockNumber      uint64
}
