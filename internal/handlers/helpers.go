// Package handlers provides the gin handlers for every protocol entry point.
package handlers

import (
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"

	"fasset-backend/internal/core"

	"github.com/gin-gonic/gin"
)

// ============ Unified utility functions ============

// statusForError maps core sentinel errors to HTTP status codes. The core
// validates fully before mutating, so every mapped error is a clean
// rejection.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrNotAgentOwner),
		errors.Is(err, core.ErrNotRedeemer):
		return http.StatusForbidden

	case errors.Is(err, core.ErrUnknownAgent),
		errors.Is(err, core.ErrInvalidReservation),
		errors.Is(err, core.ErrInvalidRedemption):
		return http.StatusNotFound

	case errors.Is(err, core.ErrAgentExists),
		errors.Is(err, core.ErrAddressInUse),
		errors.Is(err, core.ErrInvalidAgentStatus),
		errors.Is(err, core.ErrMintingPaused),
		errors.Is(err, core.ErrNotAnnounced),
		errors.Is(err, core.ErrDestroyNotAllowed),
		errors.Is(err, core.ErrAlreadyReported):
		return http.StatusConflict

	case errors.Is(err, core.ErrProofMismatch),
		errors.Is(err, core.ErrStalePaymentProof),
		errors.Is(err, core.ErrNotAgentsAddress),
		errors.Is(err, core.ErrRequestTooOld),
		errors.Is(err, core.ErrDeadlineNotPassed),
		errors.Is(err, core.ErrNotDuplicate),
		errors.Is(err, core.ErrSameTransaction),
		errors.Is(err, core.ErrRepeatedTransaction),
		errors.Is(err, core.ErrTransactionTooOld),
		errors.Is(err, core.ErrMatchingAnnouncedPayment),
		errors.Is(err, core.ErrMatchingRedemption),
		errors.Is(err, core.ErrConflictingReport),
		errors.Is(err, core.ErrTooFewProofs):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrNotEnoughFreeCollateral),
		errors.Is(err, core.ErrUnderpayment),
		errors.Is(err, core.ErrPaymentAlreadyConfirmed),
		errors.Is(err, core.ErrEnoughFreeBalance),
		errors.Is(err, core.ErrWithdrawalNotAllowed),
		errors.Is(err, core.ErrWithdrawalWindowExpired),
		errors.Is(err, core.ErrWithdrawalTooSoon),
		errors.Is(err, core.ErrNotPubliclyAvailable),
		errors.Is(err, core.ErrNothingToClose),
		errors.Is(err, core.ErrAgentHealthy):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondWithError unified error response function
func respondWithError(c *gin.Context, operation string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("❌ [API] %s: %v", operation, err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// validateRequestBinding unified request binding validation function
func validateRequestBinding(c *gin.Context, req interface{}, operation string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		log.Printf("❌ [API] %s: request parameter validation failed: %v", operation, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request parameters",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// callerAddress returns the authenticated caller set by the auth middleware.
func callerAddress(c *gin.Context) (string, bool) {
	addr, exists := c.Get("user_address")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Authentication required",
		})
		return "", false
	}
	return addr.(string), true
}

// parseCollateralKind validates the collateral kind field.
func parseCollateralKind(c *gin.Context, kind string) (core.CollateralKind, bool) {
	switch core.CollateralKind(kind) {
	case core.CollateralVault:
		return core.CollateralVault, true
	case core.CollateralPool:
		return core.CollateralPool, true
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   fmt.Sprintf("unknown collateral kind: %q", kind),
	})
	return "", false
}

// parseAmount validates a positive decimal amount field.
func parseAmount(c *gin.Context, field, value string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("%s is not a non-negative decimal integer: %q", field, value),
		})
		return nil, false
	}
	return v, true
}

// parseID validates a numeric path parameter.
func parseID(c *gin.Context, value string) (uint64, bool) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("invalid id: %q", value),
		})
		return 0, false
	}
	return id, true
}

// pagination reads page/limit query parameters with sane bounds.
func pagination(c *gin.Context) (page, limit int) {
	page = 1
	limit = 20
	if _, err := fmt.Sscanf(c.DefaultQuery("page", "1"), "%d", &page); err != nil || page < 1 {
		page = 1
	}
	if _, err := fmt.Sscanf(c.DefaultQuery("limit", "20"), "%d", &limit); err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
