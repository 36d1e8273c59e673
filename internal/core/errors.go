package core

import "errors"

// Every operation validates fully before mutating, so each of these is a
// clean rejection of the call with no partial state change.
var (
	// Authorization
	ErrNotAgentOwner = errors.New("caller is not the agent owner")
	ErrNotRedeemer   = errors.New("caller is not the redeemer")

	// NotFound / InvalidId
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrInvalidReservation = errors.New("invalid collateral reservation id")
	ErrInvalidRedemption  = errors.New("invalid redemption request id")
	ErrAgentExists        = errors.New("agent already exists")
	ErrAddressInUse       = errors.New("underlying address already in use")
	ErrTicketOutOfOrder   = errors.New("tickets must be restored in ascending id order")

	// InvalidState
	ErrInvalidAgentStatus = errors.New("operation not allowed in current agent status")
	ErrMintingPaused      = errors.New("minting is paused")
	ErrNotAnnounced       = errors.New("withdrawal not announced")
	ErrDestroyNotAllowed  = errors.New("agent destruction not allowed")
	ErrAlreadyReported    = errors.New("payment already reported for this request")

	// ProofMismatch
	ErrProofMismatch            = errors.New("proof does not match the claim")
	ErrStalePaymentProof        = errors.New("payment proof outside the reservation validity window")
	ErrNotAgentsAddress         = errors.New("transaction source is not the agent's underlying address")
	ErrRequestTooOld            = errors.New("non-payment proof does not cover the full request window")
	ErrDeadlineNotPassed        = errors.New("payment deadline has not passed yet")
	ErrNotDuplicate             = errors.New("payment references differ")
	ErrSameTransaction          = errors.New("both proofs refer to the same transaction")
	ErrRepeatedTransaction      = errors.New("repeated transaction in challenge")
	ErrTransactionTooOld        = errors.New("verified transaction predates the retention window")
	ErrMatchingAnnouncedPayment = errors.New("payment matches an ongoing announced withdrawal")
	ErrMatchingRedemption       = errors.New("payment matches an ongoing redemption")
	ErrConflictingReport        = errors.New("attested payment conflicts with the agent's report")
	ErrTooFewProofs             = errors.New("negative free balance challenge needs at least two transactions")

	// PolicyViolation
	ErrNotEnoughFreeCollateral = errors.New("not enough free collateral")
	ErrUnderpayment            = errors.New("payment smaller than the agreed value")
	ErrPaymentAlreadyConfirmed = errors.New("payment already confirmed")
	ErrEnoughFreeBalance       = errors.New("agent's free underlying balance covers the payments")
	ErrWithdrawalNotAllowed    = errors.New("withdrawal amount or timing not allowed")
	ErrWithdrawalWindowExpired = errors.New("withdrawal announcement window expired")
	ErrWithdrawalTooSoon       = errors.New("withdrawal wait time has not elapsed")
	ErrNotPubliclyAvailable    = errors.New("agent is not available for public minting")
	ErrNothingToClose          = errors.New("no backing to close")
	ErrAgentHealthy            = errors.New("agent collateral ratio is healthy")
)
