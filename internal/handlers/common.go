package handlers

import (
	"errors"
	"net/http"

	"github.com/cyphera/trust-engine/internal/alerts"
	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/store"
	"github.com/cyphera/trust-engine/internal/trust/authorize"
	"github.com/cyphera/trust-engine/internal/trust/chain"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/cyphera/trust-engine/internal/trust/revocation"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CommonServices holds the shared dependencies used across handlers
type CommonServices struct {
	store          *store.Store
	verifier       *chain.Verifier
	engine         *authorize.Engine
	ledger         *ledger.Ledger
	registry       *revocation.Registry
	alerter        *alerts.Alerter
	envelopeSecret []byte
}

// NewCommonServices creates a new instance of CommonServices. alerter may be
// nil when no operator alerting is configured; an empty envelope secret
// disables envelope export.
func NewCommonServices(
	st *store.Store,
	verifier *chain.Verifier,
	engine *authorize.Engine,
	auditLedger *ledger.Ledger,
	registry *revocation.Registry,
	alerter *alerts.Alerter,
	envelopeSecret []byte,
) *CommonServices {
	return &CommonServices{
		store:          st,
		verifier:       verifier,
		engine:         engine,
		ledger:         auditLedger,
		registry:       registry,
		alerter:        alerter,
		envelopeSecret: envelopeSecret,
	}
}

// alertCriticalAnomalies pages the on-call list for CRITICAL-severity
// anomalies found during verification. Best-effort: the Alerter logs its own
// failures.
func (cs *CommonServices) alertCriticalAnomalies(result *chain.Result) {
	if cs.alerter == nil || result == nil {
		return
	}
	for _, anomaly := range result.Anomalies {
		if anomaly.Severity == token.SeverityCritical {
			_ = cs.alerter.CriticalAnomaly(anomaly)
		}
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// sendError is a helper function that combines logging and error response
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.JSON(statusCode, ErrorResponse{Error: message})
}

// sendFault maps an engine error onto an HTTP status using its taxonomy kind.
func sendFault(c *gin.Context, err error) {
	switch faults.KindOf(err) {
	case faults.KindValidation:
		sendError(c, http.StatusBadRequest, err.Error(), err)
	case faults.KindChainIntegrity:
		sendError(c, http.StatusUnprocessableEntity, err.Error(), err)
	case faults.KindConstraintViolation:
		sendError(c, http.StatusForbidden, err.Error(), err)
	case faults.KindDependencyUnavailable:
		sendError(c, http.StatusServiceUnavailable, "a required dependency is unavailable", err)
	case faults.KindLedgerCorruption:
		sendError(c, http.StatusInternalServerError, "audit ledger integrity failure", err)
	default:
		sendError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}

// handleStoreError handles persistence errors with appropriate status codes.
func handleStoreError(c *gin.Context, err error, notFoundMsg string) {
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrTokenNotFound) {
		sendError(c, http.StatusNotFound, notFoundMsg, err)
		return
	}
	sendError(c, http.StatusInternalServerError, "Internal server error", err)
}

// sendSuccess is a helper function that sends a success response
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// sendSuccessMessage is a helper function that sends a success message
func sendSuccessMessage(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, SuccessResponse{Message: message})
}
