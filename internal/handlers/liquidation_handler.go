package handlers

import (
	"net/http"

	"fasset-backend/internal/dto"
	"fasset-backend/internal/repository"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// LiquidationHandler serves the liquidation state machine entry points.
// Start and end are open to anyone: undercollateralization is a public
// fact, and closing a recovered liquidation benefits the agent.
type LiquidationHandler struct {
	protocol *services.ProtocolService
	events   repository.EventRepository
}

// NewLiquidationHandler creates the liquidation handler
func NewLiquidationHandler(protocol *services.ProtocolService, events repository.EventRepository) *LiquidationHandler {
	return &LiquidationHandler{protocol: protocol, events: events}
}

// StartLiquidationHandler moves an undercollateralized agent into CCB or
// liquidation
// POST /api/liquidations/:vault/start
func (h *LiquidationHandler) StartLiquidationHandler(c *gin.Context) {
	if _, ok := callerAddress(c); !ok {
		return
	}

	status, err := h.protocol.StartLiquidation(c.Request.Context(), c.Param("vault"))
	if err != nil {
		respondWithError(c, "start_liquidation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": string(status)})
}

// EndLiquidationHandler closes a recoverable liquidation once collateral
// ratios are safe again
// POST /api/liquidations/:vault/end
func (h *LiquidationHandler) EndLiquidationHandler(c *gin.Context) {
	if _, ok := callerAddress(c); !ok {
		return
	}

	status, err := h.protocol.EndLiquidationIfHealthy(c.Request.Context(), c.Param("vault"))
	if err != nil {
		respondWithError(c, "end_liquidation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": string(status)})
}

// LiquidateHandler burns the caller's tokens against a liquidating agent
// and pays the collateral reward
// POST /api/liquidations
func (h *LiquidationHandler) LiquidateHandler(c *gin.Context) {
	liquidator, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.LiquidateRequest
	if !validateRequestBinding(c, &req, "liquidate") {
		return
	}
	amount, ok := parseAmount(c, "amount_uba", req.AmountUBA)
	if !ok {
		return
	}

	res, err := h.protocol.Liquidate(c.Request.Context(), liquidator, req.Vault, amount)
	if err != nil {
		respondWithError(c, "liquidate", err)
		return
	}

	reward := make(gin.H, len(res.RewardWei))
	for kind, a := range res.RewardWei {
		reward[string(kind)] = a.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"vault":          req.Vault,
		"liquidated_uba": res.LiquidatedUBA.String(),
		"factor_bips":    res.FactorBIPS,
		"reward_wei":     reward,
		"status":         string(res.Status),
	})
}

// ListLiquidationsHandler lists settled liquidations against one agent
// GET /api/liquidations?vault=
func (h *LiquidationHandler) ListLiquidationsHandler(c *gin.Context) {
	vault := c.Query("vault")
	if vault == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "vault query parameter required",
		})
		return
	}
	page, limit := pagination(c)
	rows, total, err := h.events.FindLiquidationsByVault(c.Request.Context(), vault, page, limit)
	if err != nil {
		respondWithError(c, "list_liquidations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "liquidations": rows, "total": total})
}
