package handlers

import (
	"net/http"

	"fasset-backend/internal/config"
	"fasset-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

// PriceHandler serves the latest oracle prices recorded by the price
// update loop.
type PriceHandler struct {
	events repository.EventRepository
}

// NewPriceHandler creates the price handler
func NewPriceHandler(events repository.EventRepository) *PriceHandler {
	return &PriceHandler{events: events}
}

// trackedSymbols returns the asset and collateral token symbols in use.
func trackedSymbols() []string {
	asset, vault, pool := "FXRP", "USDC", "CFLR"
	if config.AppConfig != nil {
		if config.AppConfig.Oracle.AssetSymbol != "" {
			asset = config.AppConfig.Oracle.AssetSymbol
		}
		if config.AppConfig.Oracle.VaultTokenSymbol != "" {
			vault = config.AppConfig.Oracle.VaultTokenSymbol
		}
		if config.AppConfig.Oracle.PoolTokenSymbol != "" {
			pool = config.AppConfig.Oracle.PoolTokenSymbol
		}
	}
	return []string{asset, vault, pool}
}

// GetPricesHandler returns the latest snapshot of every tracked symbol
// GET /api/prices
func (h *PriceHandler) GetPricesHandler(c *gin.Context) {
	prices := make([]gin.H, 0, 3)
	for _, symbol := range trackedSymbols() {
		snap, err := h.events.LatestPriceSnapshot(c.Request.Context(), symbol)
		if err != nil || snap == nil {
			prices = append(prices, gin.H{"symbol": symbol, "available": false})
			continue
		}
		prices = append(prices, gin.H{
			"symbol":     snap.Symbol,
			"available":  true,
			"value":      snap.Value,
			"decimals":   snap.Decimals,
			"updated_at": snap.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prices": prices})
}

// GetPriceHistoryHandler returns the snapshot history of one symbol
// GET /api/prices/:symbol/history
func (h *PriceHandler) GetPriceHistoryHandler(c *gin.Context) {
	page, limit := pagination(c)
	rows, total, err := h.events.FindPriceSnapshots(c.Request.Context(), c.Param("symbol"), page, limit)
	if err != nil {
		respondWithError(c, "price_history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"snapshots": rows,
		"total":     total,
	})
}
