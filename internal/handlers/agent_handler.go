package handlers

import (
	"net/http"

	"fasset-backend/internal/dto"
	"fasset-backend/internal/models"
	"fasset-backend/internal/repository"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// AgentHandler serves the agent lifecycle: creation, collateral moves,
// withdrawal announcements, underlying withdrawals and destruction. All
// state-changing routes require the caller JWT; ownership itself is
// enforced by the protocol core.
type AgentHandler struct {
	protocol *services.ProtocolService
	agents   repository.AgentRepository
	tickets  repository.TicketRepository
}

// NewAgentHandler creates the agent handler
func NewAgentHandler(protocol *services.ProtocolService, agents repository.AgentRepository, tickets repository.TicketRepository) *AgentHandler {
	return &AgentHandler{protocol: protocol, agents: agents, tickets: tickets}
}

// CreateAgentHandler registers a new agent vault
// POST /api/agents
func (h *AgentHandler) CreateAgentHandler(c *gin.Context) {
	owner, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.CreateAgentRequest
	if !validateRequestBinding(c, &req, "create_agent") {
		return
	}

	agent, err := h.protocol.CreateAgent(c.Request.Context(), owner, req.Vault, req.UnderlyingAddress)
	if err != nil {
		respondWithError(c, "create_agent", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":            true,
		"vault":              agent.Vault,
		"owner":              agent.Owner,
		"underlying_address": agent.UnderlyingAddress,
	})
}

// GetAgentHandler returns one agent's live state with collateral ratios
// GET /api/agents/:vault
func (h *AgentHandler) GetAgentHandler(c *gin.Context) {
	info, err := h.protocol.GetAgentInfo(c.Param("vault"))
	if err != nil {
		respondWithError(c, "get_agent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"agent":   info,
	})
}

// ListAgentsHandler lists agents, optionally filtered by status or public
// availability
// GET /api/agents?status=&available=&page=&limit=
func (h *AgentHandler) ListAgentsHandler(c *gin.Context) {
	page, limit := pagination(c)
	ctx := c.Request.Context()

	var (
		rows  []*models.Agent
		total int64
		err   error
	)
	switch {
	case c.Query("available") == "true":
		rows, total, err = h.agents.FindPubliclyAvailable(ctx, page, limit)
	case c.Query("status") != "":
		rows, total, err = h.agents.FindByStatus(ctx, models.AgentStatus(c.Query("status")), page, limit)
	default:
		rows, total, err = h.agents.FindAll(ctx, page, limit)
	}
	if err != nil {
		respondWithError(c, "list_agents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"agents":  rows,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// DepositCollateralHandler credits collateral to an agent
// POST /api/agents/:vault/collateral
func (h *AgentHandler) DepositCollateralHandler(c *gin.Context) {
	if _, ok := callerAddress(c); !ok {
		return
	}
	var req dto.DepositCollateralRequest
	if !validateRequestBinding(c, &req, "deposit_collateral") {
		return
	}
	kind, ok := parseCollateralKind(c, req.CollateralKind)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, "amount_wei", req.AmountWei)
	if !ok {
		return
	}

	if err := h.protocol.DepositCollateral(c.Request.Context(), c.Param("vault"), kind, amount); err != nil {
		respondWithError(c, "deposit_collateral", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetAvailableHandler flips the public-minting flag
// POST /api/agents/:vault/available
func (h *AgentHandler) SetAvailableHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.SetAvailableRequest
	if !validateRequestBinding(c, &req, "set_available") {
		return
	}

	if err := h.protocol.SetPubliclyAvailable(c.Request.Context(), caller, c.Param("vault"), *req.Available); err != nil {
		respondWithError(c, "set_available", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "available": *req.Available})
}

// SetMinCollateralRatioHandler raises the agent's own ratio floor
// POST /api/agents/:vault/min-collateral-ratio
func (h *AgentHandler) SetMinCollateralRatioHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.SetMinCollateralRatioRequest
	if !validateRequestBinding(c, &req, "set_min_collateral_ratio") {
		return
	}
	kind, ok := parseCollateralKind(c, req.CollateralKind)
	if !ok {
		return
	}

	if err := h.protocol.SetMinCollateralRatio(c.Request.Context(), caller, c.Param("vault"), kind, req.RatioBIPS); err != nil {
		respondWithError(c, "set_min_collateral_ratio", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AnnounceWithdrawalHandler opens, resizes or cancels a collateral
// withdrawal announcement
// POST /api/agents/:vault/withdrawal/announce
func (h *AgentHandler) AnnounceWithdrawalHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.AnnounceWithdrawalRequest
	if !validateRequestBinding(c, &req, "announce_withdrawal") {
		return
	}
	kind, ok := parseCollateralKind(c, req.CollateralKind)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, "amount_wei", req.AmountWei)
	if !ok {
		return
	}

	if err := h.protocol.AnnounceWithdrawal(c.Request.Context(), caller, c.Param("vault"), kind, amount); err != nil {
		respondWithError(c, "announce_withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExecuteWithdrawalHandler debits announced collateral and pays it out
// POST /api/agents/:vault/withdrawal/execute
func (h *AgentHandler) ExecuteWithdrawalHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.ExecuteWithdrawalRequest
	if !validateRequestBinding(c, &req, "execute_withdrawal") {
		return
	}
	kind, ok := parseCollateralKind(c, req.CollateralKind)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, "amount_wei", req.AmountWei)
	if !ok {
		return
	}

	txHash, err := h.protocol.ExecuteWithdrawal(c.Request.Context(), caller, c.Param("vault"), kind, amount)
	if err != nil {
		respondWithError(c, "execute_withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "payout_tx": txHash})
}

// AnnounceUnderlyingWithdrawalHandler reserves a payment reference for an
// underlying withdrawal
// POST /api/agents/:vault/underlying-withdrawal/announce
func (h *AgentHandler) AnnounceUnderlyingWithdrawalHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	ref, err := h.protocol.AnnounceUnderlyingWithdrawal(c.Request.Context(), caller, c.Param("vault"))
	if err != nil {
		respondWithError(c, "announce_underlying_withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"payment_reference": ref.Hex(),
	})
}

// ConfirmUnderlyingWithdrawalHandler settles an announced underlying
// withdrawal
// POST /api/agents/:vault/underlying-withdrawal/confirm
func (h *AgentHandler) ConfirmUnderlyingWithdrawalHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.ConfirmUnderlyingWithdrawalRequest
	if !validateRequestBinding(c, &req, "confirm_underlying_withdrawal") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "confirm_underlying_withdrawal", err)
		return
	}

	if err := h.protocol.ConfirmUnderlyingWithdrawal(c.Request.Context(), caller, c.Param("vault"), proof, req.Proof.MerkleProof); err != nil {
		respondWithError(c, "confirm_underlying_withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CancelUnderlyingWithdrawalHandler closes an announcement that was never
// paid
// POST /api/agents/:vault/underlying-withdrawal/cancel
func (h *AgentHandler) CancelUnderlyingWithdrawalHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	if err := h.protocol.CancelUnderlyingWithdrawal(c.Request.Context(), caller, c.Param("vault")); err != nil {
		respondWithError(c, "cancel_underlying_withdrawal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ConfirmTopupHandler credits a topup payment to the free underlying
// balance
// POST /api/agents/:vault/topup/confirm
func (h *AgentHandler) ConfirmTopupHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.ConfirmTopupRequest
	if !validateRequestBinding(c, &req, "confirm_topup") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "confirm_topup", err)
		return
	}

	if err := h.protocol.ConfirmTopupPayment(c.Request.Context(), caller, c.Param("vault"), proof, req.Proof.MerkleProof); err != nil {
		respondWithError(c, "confirm_topup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AnnounceDestroyHandler starts the destroy grace period
// POST /api/agents/:vault/destroy/announce
func (h *AgentHandler) AnnounceDestroyHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	if err := h.protocol.AnnounceDestroy(c.Request.Context(), caller, c.Param("vault")); err != nil {
		respondWithError(c, "announce_destroy", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DestroyAgentHandler removes the agent and returns remaining collateral
// POST /api/agents/:vault/destroy/execute
func (h *AgentHandler) DestroyAgentHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	if err := h.protocol.DestroyAgent(c.Request.Context(), caller, c.Param("vault")); err != nil {
		respondWithError(c, "destroy_agent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SelfCloseHandler unwinds part of the agent's own backing
// POST /api/agents/:vault/self-close
func (h *AgentHandler) SelfCloseHandler(c *gin.Context) {
	caller, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.SelfCloseRequest
	if !validateRequestBinding(c, &req, "self_close") {
		return
	}
	amount, ok := parseAmount(c, "amount_uba", req.AmountUBA)
	if !ok {
		return
	}

	res, err := h.protocol.SelfClose(c.Request.Context(), caller, c.Param("vault"), amount)
	if err != nil {
		respondWithError(c, "self_close", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"closed_uba": res.ClosedUBA.String(),
	})
}

// ConvertDustHandler folds accumulated dust back into queue tickets
// POST /api/agents/:vault/dust/convert
func (h *AgentHandler) ConvertDustHandler(c *gin.Context) {
	changes, err := h.protocol.ConvertDustToTickets(c.Request.Context(), c.Param("vault"))
	if err != nil {
		respondWithError(c, "convert_dust", err)
		return
	}
	out := make([]gin.H, 0, len(changes))
	for _, d := range changes {
		out = append(out, gin.H{"vault": d.AgentVault, "dust_uba": d.DustUBA.String()})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dust_changes": out})
}

// AgentTicketsHandler lists one agent's open queue tickets
// GET /api/agents/:vault/tickets
func (h *AgentHandler) AgentTicketsHandler(c *gin.Context) {
	page, limit := pagination(c)
	rows, total, err := h.tickets.FindByVault(c.Request.Context(), c.Param("vault"), page, limit)
	if err != nil {
		respondWithError(c, "agent_tickets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tickets": rows,
		"total":   total,
	})
}
