package handlers

import (
	"net/http"

	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/trust/authorize"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TransactionHandler handles transaction authorization
type TransactionHandler struct {
	common *CommonServices
}

// NewTransactionHandler creates a new TransactionHandler instance
func NewTransactionHandler(common *CommonServices) *TransactionHandler {
	return &TransactionHandler{common: common}
}

// AuthorizeTransactionRequest carries the transaction and the delegation
// chain it is authorized under.
type AuthorizeTransactionRequest struct {
	Transaction   authorize.TransactionRequest `json:"transaction" binding:"required"`
	Tokens        []*token.DelegationToken     `json:"tokens" binding:"required"`
	RootIssuerDID string                       `json:"rootIssuerDid"`
}

// AuthorizeTransactionResponse bundles the decision with the verification
// result it was made against.
type AuthorizeTransactionResponse struct {
	Decision     *authorize.Decision `json:"decision"`
	Verification interface{}         `json:"verification"`
}

// AuthorizeTransaction godoc
// @Summary Authorize a transaction
// @Description Verifies the delegation chain, evaluates the transaction against the effective constraints and usage, scores risk, and returns the decision. Every outcome is recorded in the audit ledger.
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body AuthorizeTransactionRequest true "Transaction and its delegation chain"
// @Success 200 {object} AuthorizeTransactionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /transactions/authorize [post]
func (h *TransactionHandler) AuthorizeTransaction(c *gin.Context) {
	var req AuthorizeTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	for _, t := range req.Tokens {
		if t != nil && h.common.registry.IsRevoked(t.ID) {
			t.Status = token.StatusRevoked
		}
	}

	verification, err := h.common.verifier.Verify(c.Request.Context(), req.Tokens, req.RootIssuerDID)
	if err != nil {
		sendFault(c, err)
		return
	}
	h.common.alertCriticalAnomalies(verification)
	if !verification.Valid {
		// A broken chain is not a policy denial: no decision is made and the
		// structural errors are returned for the caller to fix.
		c.JSON(http.StatusUnprocessableEntity, AuthorizeTransactionResponse{Verification: verification})
		return
	}

	decision, err := h.common.engine.Authorize(c.Request.Context(), &req.Transaction, verification)
	if err != nil {
		sendFault(c, err)
		return
	}

	if decision.Outcome == authorize.OutcomeApproved {
		if err := h.common.store.RecordTransaction(c.Request.Context(), decision, req.Transaction.Amount); err != nil {
			// The decision stands; only future usage snapshots are affected.
			logger.Error("failed to record approved transaction",
				zap.String("transaction_id", decision.TransactionID.String()),
				zap.Error(err),
			)
		}
		leaf := req.Tokens[len(req.Tokens)-1]
		if err := h.common.store.IncrementTokenUsage(c.Request.Context(), leaf.ID, req.Transaction.Amount); err != nil {
			logger.Error("failed to increment token usage",
				zap.String("token_id", leaf.ID.String()),
				zap.Error(err),
			)
		}
	}

	sendSuccess(c, http.StatusOK, AuthorizeTransactionResponse{
		Decision:     decision,
		Verification: verification,
	})
}
