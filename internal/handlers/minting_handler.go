package handlers

import (
	"net/http"

	"fasset-backend/internal/dto"
	"fasset-backend/internal/repository"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// MintingHandler serves the collateral reservation and minting settlement
// entry points.
type MintingHandler struct {
	protocol     *services.ProtocolService
	reservations repository.ReservationRepository
}

// NewMintingHandler creates the minting handler
func NewMintingHandler(protocol *services.ProtocolService, reservations repository.ReservationRepository) *MintingHandler {
	return &MintingHandler{protocol: protocol, reservations: reservations}
}

// ReserveCollateralHandler locks collateral and returns the payment
// instructions
// POST /api/minting/reserve
func (h *MintingHandler) ReserveCollateralHandler(c *gin.Context) {
	minter, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.ReserveCollateralRequest
	if !validateRequestBinding(c, &req, "reserve_collateral") {
		return
	}

	r, err := h.protocol.ReserveCollateral(c.Request.Context(), minter, req.Vault, req.Lots)
	if err != nil {
		respondWithError(c, "reserve_collateral", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":           true,
		"reservation_id":    r.ID,
		"vault":             r.Agent,
		"value_uba":         r.ValueUBA.String(),
		"fee_uba":           r.FeeUBA.String(),
		"payment_address":   r.PaymentAddress,
		"payment_reference": r.PaymentReference.Hex(),
		"first_block":       r.FirstUnderlyingBlock,
		"last_block":        r.LastUnderlyingBlock,
		"last_timestamp":    r.LastUnderlyingTimestamp,
	})
}

// ExecuteMintingHandler settles a reservation with the minter's payment
// proof
// POST /api/minting/execute
func (h *MintingHandler) ExecuteMintingHandler(c *gin.Context) {
	var req dto.ExecuteMintingRequest
	if !validateRequestBinding(c, &req, "execute_minting") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "execute_minting", err)
		return
	}

	res, err := h.protocol.ExecuteMinting(c.Request.Context(), proof, req.ReservationID, req.Proof.MerkleProof)
	if err != nil {
		respondWithError(c, "execute_minting", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"reservation_id": req.ReservationID,
		"vault":          res.Reservation.Agent,
		"minted_uba":     res.Reservation.ValueUBA.String(),
		"fee_uba":        res.FeeUBA.String(),
		"ticket_id":      res.Ticket.ID,
	})
}

// MintingPaymentDefaultHandler resolves a reservation the minter never
// paid
// POST /api/minting/default
func (h *MintingHandler) MintingPaymentDefaultHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.MintingPaymentDefaultRequest
	if !validateRequestBinding(c, &req, "minting_payment_default") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "minting_payment_default", err)
		return
	}

	r, err := h.protocol.MintingPaymentDefault(c.Request.Context(), caller, proof, req.ReservationID, req.Proof.MerkleProof)
	if err != nil {
		respondWithError(c, "minting_payment_default", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"reservation_id": r.ID,
		"vault":          r.Agent,
		"value_uba":      r.ValueUBA.String(),
	})
}

// GetReservationHandler returns one reservation row
// GET /api/minting/reservations/:id
func (h *MintingHandler) GetReservationHandler(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}
	row, err := h.reservations.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "reservation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reservation": row})
}

// ListReservationsHandler lists reservations by minter or vault
// GET /api/minting/reservations?minter=&vault=
func (h *MintingHandler) ListReservationsHandler(c *gin.Context) {
	page, limit := pagination(c)
	ctx := c.Request.Context()

	if minter := c.Query("minter"); minter != "" {
		rows, total, err := h.reservations.FindByMinter(ctx, minter, page, limit)
		if err != nil {
			respondWithError(c, "list_reservations", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "reservations": rows, "total": total})
		return
	}
	if vault := c.Query("vault"); vault != "" {
		rows, total, err := h.reservations.FindByVault(ctx, vault, page, limit)
		if err != nil {
			respondWithError(c, "list_reservations", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "reservations": rows, "total": total})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "minter or vault query parameter required",
	})
}
