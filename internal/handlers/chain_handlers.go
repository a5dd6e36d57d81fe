package handlers

import (
	"net/http"

	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/gin-gonic/gin"
)

// ChainHandler handles delegation chain verification
type ChainHandler struct {
	common *CommonServices
}

// NewChainHandler creates a new ChainHandler instance
func NewChainHandler(common *CommonServices) *ChainHandler {
	return &ChainHandler{common: common}
}

// VerifyChainRequest is the chain verification input: the full chain ordered
// root first, plus the externally-known root issuer identity.
type VerifyChainRequest struct {
	Tokens        []*token.DelegationToken `json:"tokens" binding:"required"`
	RootIssuerDID string                   `json:"rootIssuerDid"`
}

// VerifyChain godoc
// @Summary Verify a delegation chain
// @Description Verifies a delegation chain root to leaf: signatures, liveness, hash commitments, constraint accumulation, and anomaly detection
// @Tags chains
// @Accept json
// @Produce json
// @Param request body VerifyChainRequest true "Delegation chain ordered root first"
// @Success 200 {object} chain.Result
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /chains/verify [post]
func (h *ChainHandler) VerifyChain(c *gin.Context) {
	var req VerifyChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Overlay live revocation state: a token revoked after issuance carries
	// a stale status in the submitted chain.
	for _, t := range req.Tokens {
		if t != nil && h.common.registry.IsRevoked(t.ID) {
			t.Status = token.StatusRevoked
		}
	}

	result, err := h.common.verifier.Verify(c.Request.Context(), req.Tokens, req.RootIssuerDID)
	if err != nil {
		sendFault(c, err)
		return
	}
	h.common.alertCriticalAnomalies(result)

	sendSuccess(c, http.StatusOK, result)
}
