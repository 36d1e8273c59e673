package handlers

import (
	"net/http"

	"fasset-backend/internal/core"
	"fasset-backend/internal/dto"
	"fasset-backend/internal/repository"
	"fasset-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// ChallengeHandler serves the three payment challenges. A successful
// challenge puts the agent into full liquidation and pays the challenger a
// reward, so these routes are open to any authenticated caller.
type ChallengeHandler struct {
	protocol *services.ProtocolService
	events   repository.EventRepository
}

// NewChallengeHandler creates the challenge handler
func NewChallengeHandler(protocol *services.ProtocolService, events repository.EventRepository) *ChallengeHandler {
	return &ChallengeHandler{protocol: protocol, events: events}
}

func challengeResponse(c *gin.Context, res *core.ChallengeResult) {
	reward := make(gin.H, len(res.RewardWei))
	for kind, amount := range res.RewardWei {
		reward[string(kind)] = amount.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"vault":      res.AgentVault,
		"challenger": res.Challenger,
		"reward_wei": reward,
	})
}

// IllegalPaymentChallengeHandler proves an outgoing payment with no legal
// reference
// POST /api/challenges/illegal-payment
func (h *ChallengeHandler) IllegalPaymentChallengeHandler(c *gin.Context) {
	challenger, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.IllegalPaymentChallengeRequest
	if !validateRequestBinding(c, &req, "illegal_payment_challenge") {
		return
	}
	proof, err := req.Proof.ToCore()
	if err != nil {
		respondWithError(c, "illegal_payment_challenge", err)
		return
	}

	res, err := h.protocol.IllegalPaymentChallenge(c.Request.Context(), challenger, req.Vault, proof, req.Proof.MerkleProof)
	if err != nil {
		respondWithError(c, "illegal_payment_challenge", err)
		return
	}
	challengeResponse(c, res)
}

// DoublePaymentChallengeHandler proves two distinct payments carrying the
// same reference
// POST /api/challenges/double-payment
func (h *ChallengeHandler) DoublePaymentChallengeHandler(c *gin.Context) {
	challenger, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.DoublePaymentChallengeRequest
	if !validateRequestBinding(c, &req, "double_payment_challenge") {
		return
	}
	proof1, err := req.Proof1.ToCore()
	if err != nil {
		respondWithError(c, "double_payment_challenge", err)
		return
	}
	proof2, err := req.Proof2.ToCore()
	if err != nil {
		respondWithError(c, "double_payment_challenge", err)
		return
	}

	res, err := h.protocol.DoublePaymentChallenge(c.Request.Context(), challenger, req.Vault,
		proof1, proof2, req.Proof1.MerkleProof, req.Proof2.MerkleProof)
	if err != nil {
		respondWithError(c, "double_payment_challenge", err)
		return
	}
	challengeResponse(c, res)
}

// FreeBalanceNegativeChallengeHandler proves that unaccounted spending
// drove the free underlying balance negative
// POST /api/challenges/free-balance-negative
func (h *ChallengeHandler) FreeBalanceNegativeChallengeHandler(c *gin.Context) {
	challenger, ok := callerAddress(c)
	if !ok {
		return
	}
	var req dto.FreeBalanceNegativeChallengeRequest
	if !validateRequestBinding(c, &req, "free_balance_negative_challenge") {
		return
	}

	proofs := make([]core.BalanceDecreasingProof, 0, len(req.Proofs))
	merkleProofs := make([]string, 0, len(req.Proofs))
	for _, p := range req.Proofs {
		proof, err := p.ToCore()
		if err != nil {
			respondWithError(c, "free_balance_negative_challenge", err)
			return
		}
		proofs = append(proofs, proof)
		merkleProofs = append(merkleProofs, p.MerkleProof)
	}

	res, err := h.protocol.FreeBalanceNegativeChallenge(c.Request.Context(), challenger, req.Vault, proofs, merkleProofs)
	if err != nil {
		respondWithError(c, "free_balance_negative_challenge", err)
		return
	}
	challengeResponse(c, res)
}

// ListChallengesHandler lists settled challenges against one agent
// GET /api/challenges?vault=
func (h *ChallengeHandler) ListChallengesHandler(c *gin.Context) {
	vault := c.Query("vault")
	if vault == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "vault query parameter required",
		})
		return
	}
	page, limit := pagination(c)
	rows, total, err := h.events.FindChallengesByVault(c.Request.Context(), vault, page, limit)
	if err != nil {
		respondWithError(c, "list_challenges", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "challenges": rows, "total": total})
}
