package handlers

import (
	"net/http"

	"github.com/cyphera/trust-engine/internal/trust/cmt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RevocationHandler exposes the revocation and nonce set commitments
type RevocationHandler struct {
	common *CommonServices
}

// NewRevocationHandler creates a new RevocationHandler instance
func NewRevocationHandler(common *CommonServices) *RevocationHandler {
	return &RevocationHandler{common: common}
}

// RevocationProofResponse carries a membership or non-membership proof for a
// token against the revocation set root.
type RevocationProofResponse struct {
	TokenID string     `json:"tokenId"`
	Revoked bool       `json:"revoked"`
	Root    string     `json:"root"`
	Proof   *cmt.Proof `json:"proof"`
}

// GetRevocationProof godoc
// @Summary Prove a token's revocation status
// @Description Returns a membership proof when the token is revoked and a non-membership proof when it is not, verifiable against the returned set root
// @Tags revocations
// @Produce json
// @Param token_id path string true "Token ID"
// @Success 200 {object} RevocationProofResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /revocations/{token_id}/proof [get]
func (h *RevocationHandler) GetRevocationProof(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid token ID format", err)
		return
	}

	proof, root, err := h.common.registry.ProveRevocationStatus(tokenID)
	if err != nil {
		sendFault(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, RevocationProofResponse{
		TokenID: tokenID.String(),
		Revoked: h.common.registry.IsRevoked(tokenID),
		Root:    root.Hex(),
		Proof:   proof,
	})
}

// RevocationRootsResponse reports the current published set roots.
type RevocationRootsResponse struct {
	RevocationRoot string `json:"revocationRoot"`
	NonceRoot      string `json:"nonceRoot"`
}

// GetRoots godoc
// @Summary Get the current set commitment roots
// @Description Returns the current roots of the revoked-token and consumed-nonce sets
// @Tags revocations
// @Produce json
// @Success 200 {object} RevocationRootsResponse
// @Security ApiKeyAuth
// @Router /revocations/root [get]
func (h *RevocationHandler) GetRoots(c *gin.Context) {
	sendSuccess(c, http.StatusOK, RevocationRootsResponse{
		RevocationRoot: h.common.registry.RevocationRoot().Hex(),
		NonceRoot:      h.common.registry.NonceRoot().Hex(),
	})
}

// ConsumeNonceRequest marks a redemption nonce as used.
type ConsumeNonceRequest struct {
	Nonce string `json:"nonce" binding:"required"`
}

// ConsumeNonceResponse reports the nonce set root after consumption.
type ConsumeNonceResponse struct {
	NonceRoot string `json:"nonceRoot"`
}

// ConsumeNonce godoc
// @Summary Consume a redemption nonce
// @Description Marks a nonce as used. A second consumption of the same nonce is a replay and is rejected.
// @Tags revocations
// @Accept json
// @Produce json
// @Param request body ConsumeNonceRequest true "Nonce to consume"
// @Success 200 {object} ConsumeNonceResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /nonces/consume [post]
func (h *RevocationHandler) ConsumeNonce(c *gin.Context) {
	var req ConsumeNonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	root, err := h.common.registry.ConsumeNonce(req.Nonce)
	if err != nil {
		sendFault(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, ConsumeNonceResponse{NonceRoot: root.Hex()})
}
