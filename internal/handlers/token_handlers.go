package handlers

import (
	"net/http"
	"time"

	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenHandler handles delegation token issuance and lifecycle
type TokenHandler struct {
	common *CommonServices
}

// NewTokenHandler creates a new TokenHandler instance
func NewTokenHandler(common *CommonServices) *TokenHandler {
	return &TokenHandler{common: common}
}

// IssueTokenRequest is the token issuance input. ParentTokenID is empty for
// a root delegation.
type IssueTokenRequest struct {
	IssuerDID     string                            `json:"issuerDid" binding:"required"`
	RecipientDID  string                            `json:"recipientDid" binding:"required"`
	ParentTokenID *uuid.UUID                        `json:"parentTokenId"`
	Constraints   constraints.DelegationConstraints `json:"constraints"`
	Signature     string                            `json:"signature"`
	ExpiresAt     time.Time                         `json:"expiresAt" binding:"required"`
}

// IssueToken godoc
// @Summary Issue a delegation token
// @Description Issues a new delegation token. Sub-delegations inherit depth and the chain commitment from the parent; the parent must be usable and permit further delegation.
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body IssueTokenRequest true "Token issuance request"
// @Success 201 {object} token.DelegationToken
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /tokens [post]
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Constraints.Validate(); err != nil {
		sendFault(c, err)
		return
	}

	now := time.Now().UTC()
	if !req.ExpiresAt.After(now) {
		sendFault(c, &faults.ValidationError{Field: "expiresAt", Reason: "must be in the future"})
		return
	}

	newToken := &token.DelegationToken{
		ID:            uuid.New(),
		IssuerDID:     req.IssuerDID,
		RecipientDID:  req.RecipientDID,
		ParentTokenID: req.ParentTokenID,
		Constraints:   req.Constraints,
		Status:        token.StatusActive,
		Signature:     req.Signature,
		CreatedAt:     now,
		ExpiresAt:     req.ExpiresAt,
	}

	var parent *token.DelegationToken
	if req.ParentTokenID != nil {
		var err error
		parent, err = h.common.store.GetToken(c.Request.Context(), *req.ParentTokenID)
		if err != nil {
			handleStoreError(c, err, "Parent token not found")
			return
		}
		if h.common.registry.IsRevoked(parent.ID) || !parent.Usable(now) {
			sendFault(c, &faults.ChainIntegrityError{
				TokenID: parent.ID.String(),
				Field:   "status",
				Reason:  "parent token is not usable",
			})
			return
		}
		if !parent.Constraints.CanSubDelegate {
			sendFault(c, &faults.ChainIntegrityError{
				TokenID: parent.ID.String(),
				Field:   "canSubDelegate",
				Reason:  "parent constraints do not permit sub-delegation",
			})
			return
		}
		if req.IssuerDID != parent.RecipientDID {
			sendFault(c, &faults.ValidationError{
				Field:  "issuerDid",
				Reason: "issuer must be the parent token's recipient",
			})
			return
		}
		newToken.Depth = parent.Depth + 1
	}

	tokenHash, err := token.ComputeTokenHash(newToken)
	if err != nil {
		sendFault(c, err)
		return
	}
	newToken.TokenHash = tokenHash
	if parent != nil {
		newToken.ChainHash = token.ChainHashLink(parent.ChainHash, tokenHash)
	} else {
		newToken.ChainHash = token.ChainHashRoot(tokenHash)
	}

	if err := h.common.store.SaveToken(c.Request.Context(), newToken); err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to persist token", err)
		return
	}

	logger.Info("delegation token issued",
		zap.String("token_id", newToken.ID.String()),
		zap.String("issuer_did", newToken.IssuerDID),
		zap.String("recipient_did", newToken.RecipientDID),
		zap.Int("depth", newToken.Depth),
	)
	sendSuccess(c, http.StatusCreated, newToken)
}

// GetToken godoc
// @Summary Get a delegation token
// @Description Fetches a delegation token by ID
// @Tags tokens
// @Produce json
// @Param token_id path string true "Token ID"
// @Success 200 {object} token.DelegationToken
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /tokens/{token_id} [get]
func (h *TokenHandler) GetToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid token ID format", err)
		return
	}

	t, err := h.common.store.GetToken(c.Request.Context(), tokenID)
	if err != nil {
		handleStoreError(c, err, "Token not found")
		return
	}
	sendSuccess(c, http.StatusOK, t)
}

// GetChain godoc
// @Summary Get a delegation chain
// @Description Returns the full delegation chain ending at the given token, ordered root first
// @Tags tokens
// @Produce json
// @Param token_id path string true "Leaf token ID"
// @Success 200 {array} token.DelegationToken
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /tokens/{token_id}/chain [get]
func (h *TokenHandler) GetChain(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid token ID format", err)
		return
	}

	tokens, err := h.common.store.GetChain(c.Request.Context(), tokenID)
	if err != nil {
		handleStoreError(c, err, "Token not found")
		return
	}
	sendSuccess(c, http.StatusOK, tokens)
}

// EnvelopeResponse carries a token as a signed JWS envelope.
type EnvelopeResponse struct {
	Envelope string `json:"envelope"`
}

// GetEnvelope godoc
// @Summary Export a token envelope
// @Description Returns the delegation token as a signed JWS envelope for transport between services
// @Tags tokens
// @Produce json
// @Param token_id path string true "Token ID"
// @Success 200 {object} EnvelopeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /tokens/{token_id}/envelope [get]
func (h *TokenHandler) GetEnvelope(c *gin.Context) {
	if len(h.common.envelopeSecret) == 0 {
		sendError(c, http.StatusServiceUnavailable, "Envelope signing is not configured", nil)
		return
	}

	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid token ID format", err)
		return
	}

	t, err := h.common.store.GetToken(c.Request.Context(), tokenID)
	if err != nil {
		handleStoreError(c, err, "Token not found")
		return
	}

	envelope, err := token.EncodeEnvelope(t, h.common.envelopeSecret)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to encode envelope", err)
		return
	}
	sendSuccess(c, http.StatusOK, EnvelopeResponse{Envelope: envelope})
}

// RevokeTokenResponse reports a cascading revocation.
type RevokeTokenResponse struct {
	RevokedTokenIDs []uuid.UUID `json:"revokedTokenIds"`
	RevocationRoot  string      `json:"revocationRoot"`
}

// RevokeToken godoc
// @Summary Revoke a delegation token
// @Description Revokes the token and every descendant delegation, updates the revocation set commitment, and publishes the new root to the audit ledger
// @Tags tokens
// @Produce json
// @Param token_id path string true "Token ID"
// @Success 200 {object} RevokeTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /tokens/{token_id}/revoke [post]
func (h *TokenHandler) RevokeToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("token_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid token ID format", err)
		return
	}

	revokedIDs, err := h.common.store.RevokeCascade(c.Request.Context(), tokenID)
	if err != nil {
		handleStoreError(c, err, "Token not found")
		return
	}

	root, err := h.common.registry.RevokeBatch(revokedIDs)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to update revocation set", err)
		return
	}
	if _, err := h.common.registry.Publish(h.common.ledger, time.Now().UTC()); err != nil {
		// The revocation itself stands; the snapshot can be republished later.
		logger.Error("failed to publish revocation snapshot", zap.Error(err))
	}

	logger.Info("delegation token revoked",
		zap.String("token_id", tokenID.String()),
		zap.Int("cascade_size", len(revokedIDs)),
	)
	sendSuccess(c, http.StatusOK, RevokeTokenResponse{
		RevokedTokenIDs: revokedIDs,
		RevocationRoot:  root.Hex(),
	})
}
