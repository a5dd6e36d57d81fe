package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// APIKeyHandler handles API key issuance and revocation
type APIKeyHandler struct {
	common *CommonServices
}

// NewAPIKeyHandler creates a new APIKeyHandler instance
func NewAPIKeyHandler(common *CommonServices) *APIKeyHandler {
	return &APIKeyHandler{common: common}
}

// CreateAPIKeyRequest binds a new API key to an agent DID and role.
type CreateAPIKeyRequest struct {
	AgentDID  string     `json:"agentDid" binding:"required"`
	Role      string     `json:"role" binding:"required"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// CreateAPIKeyResponse carries the full key, returned exactly once.
type CreateAPIKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// CreateAPIKey godoc
// @Summary Create an API key
// @Description Issues a new API key bound to an agent DID and role. The key is returned once; only its hash is stored.
// @Tags api-keys
// @Accept json
// @Produce json
// @Param request body CreateAPIKeyRequest true "Key binding"
// @Success 201 {object} CreateAPIKeyResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/api-keys [post]
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fullKey, err := h.common.store.CreateAPIKey(c.Request.Context(), req.AgentDID, req.Role, req.ExpiresAt)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to create API key", err)
		return
	}
	sendSuccess(c, http.StatusCreated, CreateAPIKeyResponse{APIKey: fullKey})
}

// RevokeAPIKey godoc
// @Summary Revoke an API key
// @Description Revokes an API key by its stored prefix
// @Tags api-keys
// @Produce json
// @Param key_prefix path string true "Key prefix"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/api-keys/{key_prefix} [delete]
func (h *APIKeyHandler) RevokeAPIKey(c *gin.Context) {
	if err := h.common.store.RevokeAPIKey(c.Request.Context(), c.Param("key_prefix")); err != nil {
		sendError(c, http.StatusNotFound, "API key not found", err)
		return
	}
	sendSuccessMessage(c, http.StatusOK, "API key revoked")
}
