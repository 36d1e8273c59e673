package handlers

import (
	"net/http"

	"fasset-backend/internal/dto"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// SystemHandler serves the underlying chain cursor and protocol settings.
type SystemHandler struct {
	protocol *services.ProtocolService
}

// NewSystemHandler creates the system handler
func NewSystemHandler(protocol *services.ProtocolService) *SystemHandler {
	return &SystemHandler{protocol: protocol}
}

// UpdateUnderlyingBlockHandler advances the proven underlying chain cursor
// with a verified block height proof; anyone may submit one
// POST /api/system/underlying-block
func (h *SystemHandler) UpdateUnderlyingBlockHandler(c *gin.Context) {
	var req dto.UpdateUnderlyingBlockRequest
	if !validateRequestBinding(c, &req, "update_underlying_block") {
		return
	}

	if err := h.protocol.UpdateUnderlyingBlock(c.Request.Context(), req.Proof.ToCore(), req.Proof.MerkleProof); err != nil {
		respondWithError(c, "update_underlying_block", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetUnderlyingBlockHandler returns the extrapolated underlying cursor
// GET /api/system/underlying-block
func (h *SystemHandler) GetUnderlyingBlockHandler(c *gin.Context) {
	block, timestamp := h.protocol.CurrentUnderlyingBlock()
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"block_number":    block,
		"block_timestamp": timestamp,
	})
}

// GetSettingsHandler returns the active protocol settings
// GET /api/system/settings
func (h *SystemHandler) GetSettingsHandler(c *gin.Context) {
	s := h.protocol.Settings()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"settings": gin.H{
			"lot_size_amg":                   s.LotSizeAMG,
			"asset_minting_granularity_uba":  s.AssetMintingGranularityUBA.String(),
			"asset_decimals":                 s.AssetDecimals,
			"underlying_blocks_for_payment":  s.UnderlyingBlocksForPayment,
			"underlying_seconds_for_payment": s.UnderlyingSecondsForPayment,
			"average_block_time_ms":          s.AverageBlockTimeMS,
			"minting_fee_bips":               s.MintingFeeBIPS,
			"redemption_fee_bips":            s.RedemptionFeeBIPS,
			"redemption_default_factor_bips": s.RedemptionDefaultFactorBIPS,
			"max_redeemed_tickets":           s.MaxRedeemedTickets,
			"withdrawal_wait_min_seconds":    s.WithdrawalWaitMinSeconds,
			"withdrawal_window_seconds":      s.WithdrawalWindowSeconds,
			"ccb_time_seconds":               s.CCBTimeSeconds,
			"liquidation_step_seconds":       s.LiquidationStepSeconds,
			"liquidation_factor_bips":        s.LiquidationFactorBIPS,
			"full_liquidation_factor_step":   s.FullLiquidationFactorStep,
			"payment_challenge_reward_bips":  s.PaymentChallengeRewardBIPS,
			"confirmation_blocks":            s.ConfirmationBlocks,
			"destroy_wait_min_seconds":       s.DestroyWaitMinSeconds,
			"vault_collateral": gin.H{
				"min_collateral_ratio_bips":         s.Vault.MinCollateralRatioBIPS,
				"ccb_min_collateral_ratio_bips":     s.Vault.CCBMinCollateralRatioBIPS,
				"safety_min_collateral_ratio_bips":  s.Vault.SafetyMinCollateralRatioBIPS,
				"minting_min_collateral_ratio_bips": s.Vault.MintingMinCollateralRatioBIPS,
				"token_decimals":                    s.Vault.TokenDecimals,
			},
			"pool_collateral": gin.H{
				"min_collateral_ratio_bips":         s.Pool.MinCollateralRatioBIPS,
				"ccb_min_collateral_ratio_bips":     s.Pool.CCBMinCollateralRatioBIPS,
				"safety_min_collateral_ratio_bips":  s.Pool.SafetyMinCollateralRatioBIPS,
				"minting_min_collateral_ratio_bips": s.Pool.MintingMinCollateralRatioBIPS,
				"token_decimals":                    s.Pool.TokenDecimals,
			},
		},
	})
}

// GetSystemStatusHandler returns the operational status of the protocol
// GET /api/system/status
func (h *SystemHandler) GetSystemStatusHandler(c *gin.Context) {
	block, timestamp := h.protocol.CurrentUnderlyingBlock()
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"minting_paused":   h.protocol.MintingPaused(),
		"underlying_block": block,
		"underlying_ts":    timestamp,
		"queue_length":     len(h.protocol.QueueSnapshot()),
	})
}
