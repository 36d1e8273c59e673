package handlers

import (
	"net/http"

	"fasset-backend/internal/dto"
	"fasset-backend/internal/repository"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// RedemptionHandler serves the redemption protocol: opening requests
// against the FIFO queue and settling them with proofs.
type RedemptionHandler struct {
	protocol    *services.ProtocolService
	redemptions repository.RedemptionRepository
}

// NewRedemptionHandler creates the redemption handler
func NewRedemptionHandler(protocol *services.ProtocolService, redemptions repository.RedemptionRepository) *RedemptionHandler {
	return &RedemptionHandler{protocol: protocol, redemptions: redemptions}
}

// RedeemHandler opens redemption requests; partial fulfillment is a normal
// outcome reported in remaining_lots
// POST /api/redemptions
func (h *RedemptionHandler) RedeemHandler(c *gin.Context) {
	redeemer, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.RedeemRequest
	if !validateRequestBinding(c, &req, "redeem") {
		return
	}

	res, err := h.protocol.Redeem(c.Request.Context(), redeemer, req.Lots, req.UnderlyingAddress)
	if err != nil {
		respondWithError(c, "redeem", err)
		return
	}

	requests := make([]gin.H, 0, len(res.Requests))
	for _, r := range res.Requests {
		requests = append(requests, gin.H{
			"request_id":        r.ID,
			"vault":             r.Agent,
			"value_uba":         r.ValueUBA.String(),
			"fee_uba":           r.FeeUBA.String(),
			"payment_reference": r.PaymentReference.Hex(),
			"last_block":        r.LastUnderlyingBlock,
			"last_timestamp":    r.LastUnderlyingTimestamp,
		})
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"requests":       requests,
		"redeemed_lots":  res.RedeemedLots,
		"remaining_lots": res.RemainingLots,
	})
}

// ReportRedemptionHandler records the agent's payment declaration for
// reconciliation against the later attested proof
// POST /api/redemptions/report
func (h *RedemptionHandler) ReportRedemptionHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.ReportRedemptionRequest
	if !validateRequestBinding(c, &req, "report_redemption") {
		return
	}
	report, err := req.ToCore()
	if err != nil {
		respondWithError(c, "report_redemption", err)
		return
	}

	if err := h.protocol.ReportRedemptionPayment(c.Request.Context(), caller, req.RequestID, report); err != nil {
		respondWithError(c, "report_redemption", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request_id": req.RequestID})
}

// ConfirmRedemptionHandler settles a request with the agent's payment
// proof
// POST /api/redemptions/confirm
func (h *RedemptionHandler) ConfirmRedemptionHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.ConfirmRedemptionRequest
	if !validateRequestBinding(c, &req, "confirm_redemption") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "confirm_redemption", err)
		return
	}

	if err := h.protocol.ConfirmRedemptionPayment(c.Request.Context(), caller, proof, req.RequestID, req.Proof.MerkleProof); err != nil {
		respondWithError(c, "confirm_redemption", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request_id": req.RequestID})
}

// RedemptionTimeoutHandler resolves a request the agent never paid; the
// redeemer is compensated from the agent's collateral
// POST /api/redemptions/timeout
func (h *RedemptionHandler) RedemptionTimeoutHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.RedemptionTimeoutRequest
	if !validateRequestBinding(c, &req, "redemption_timeout") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "redemption_timeout", err)
		return
	}

	def, err := h.protocol.RedemptionPaymentTimeout(c.Request.Context(), caller, proof, req.RequestID, req.Proof.MerkleProof)
	if err != nil {
		respondWithError(c, "redemption_timeout", err)
		return
	}

	paid := make(gin.H, len(def.PaidWei))
	for kind, amount := range def.PaidWei {
		paid[string(kind)] = amount.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"request_id": req.RequestID,
		"redeemer":   def.Redeemer,
		"paid_wei":   paid,
	})
}

// RedemptionBlockedHandler resolves a request whose payment was mined but
// failed on the underlying chain
// POST /api/redemptions/blocked
func (h *RedemptionHandler) RedemptionBlockedHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.RedemptionBlockedRequest
	if !validateRequestBinding(c, &req, "redemption_blocked") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "redemption_blocked", err)
		return
	}

	if err := h.protocol.RedemptionPaymentBlocked(c.Request.Context(), caller, proof, req.RequestID, req.Proof.MerkleProof); err != nil {
		respondWithError(c, "redemption_blocked", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request_id": req.RequestID})
}

// GetRedemptionHandler returns one redemption request row
// GET /api/redemptions/:id
func (h *RedemptionHandler) GetRedemptionHandler(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"))
	if !ok {
		return
	}
	row, err := h.redemptions.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "redemption request not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "redemption": row})
}

// ListRedemptionsHandler lists redemption requests by redeemer or vault
// GET /api/redemptions?redeemer=&vault=
func (h *RedemptionHandler) ListRedemptionsHandler(c *gin.Context) {
	page, limit := pagination(c)
	ctx := c.Request.Context()

	if redeemer := c.Query("redeemer"); redeemer != "" {
		rows, total, err := h.redemptions.FindByRedeemer(ctx, redeemer, page, limit)
		if err != nil {
			respondWithError(c, "list_redemptions", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "redemptions": rows, "total": total})
		return
	}
	if vault := c.Query("vault"); vault != "" {
		rows, total, err := h.redemptions.FindByVault(ctx, vault, page, limit)
		if err != nil {
			respondWithError(c, "list_redemptions", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "redemptions": rows, "total": total})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "redeemer or vault query parameter required",
	})
}

// QueueHandler returns the global redemption queue in FIFO order
// GET /api/queue
func (h *RedemptionHandler) QueueHandler(c *gin.Context) {
	tickets := h.protocol.QueueSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"length":  len(tickets),
		"tickets": tickets,
	})
}
