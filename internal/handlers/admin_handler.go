package handlers

import (
	"net/http"

	"fasset-backend/internal/config"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the operator surface: minting pause, settings
// reload and payment record pruning. All routes sit behind the admin JWT
// and the IP whitelist.
type AdminHandler struct {
	protocol *services.ProtocolService
}

// NewAdminHandler creates the admin handler
func NewAdminHandler(protocol *services.ProtocolService) *AdminHandler {
	return &AdminHandler{protocol: protocol}
}

// PauseMintingHandler stops new reservations; open ones still settle
// POST /api/admin/minting/pause
func (h *AdminHandler) PauseMintingHandler(c *gin.Context) {
	h.protocol.PauseMinting(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "minting_paused": true})
}

// ResumeMintingHandler re-enables new reservations
// POST /api/admin/minting/resume
func (h *AdminHandler) ResumeMintingHandler(c *gin.Context) {
	h.protocol.ResumeMinting(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "minting_paused": false})
}

// ReloadSettingsHandler re-reads the configuration file and swaps in the
// validated protocol settings
// POST /api/admin/settings/reload
func (h *AdminHandler) ReloadSettingsHandler(c *gin.Context) {
	if err := config.LoadConfig(""); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	settings, err := config.AppConfig.Protocol.Settings()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.protocol.ReloadSettings(settings)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PrunePaymentRecordsHandler drops replay-prevention records older than
// the retention window
// POST /api/admin/payments/prune
func (h *AdminHandler) PrunePaymentRecordsHandler(c *gin.Context) {
	pruned, err := h.protocol.PruneOldPaymentRecords(c.Request.Context())
	if err != nil {
		respondWithError(c, "prune_payment_records", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pruned": pruned})
}
