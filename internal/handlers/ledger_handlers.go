package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/gin-gonic/gin"
)

// LedgerHandler exposes the audit ledger for auditors
type LedgerHandler struct {
	common *CommonServices
}

// NewLedgerHandler creates a new LedgerHandler instance
func NewLedgerHandler(common *CommonServices) *LedgerHandler {
	return &LedgerHandler{common: common}
}

func parseSequenceParam(c *gin.Context, name, value string) (uint64, bool) {
	seq, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid "+name+" sequence number", err)
		return 0, false
	}
	return seq, true
}

// ListEntries godoc
// @Summary List audit ledger entries
// @Description Returns ledger entries, optionally restricted to a closed sequence range via from/to query parameters
// @Tags ledger
// @Produce json
// @Param from query int false "First sequence number (inclusive)"
// @Param to query int false "Last sequence number (inclusive)"
// @Success 200 {array} ledger.Entry
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /ledger/entries [get]
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	fromParam := c.Query("from")
	toParam := c.Query("to")
	if fromParam == "" && toParam == "" {
		sendSuccess(c, http.StatusOK, h.common.ledger.Snapshot())
		return
	}

	from, ok := parseSequenceParam(c, "from", fromParam)
	if !ok {
		return
	}
	var to uint64
	if toParam == "" {
		if n := h.common.ledger.Len(); n > 0 {
			to = uint64(n - 1)
		}
	} else {
		if to, ok = parseSequenceParam(c, "to", toParam); !ok {
			return
		}
	}

	entries, err := h.common.ledger.Range(from, to)
	if err != nil {
		sendFault(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, entries)
}

// VerifyLedger godoc
// @Summary Verify the audit ledger hash chain
// @Description Recomputes every entry hash and link and reports all violations found. Corruption triggers an operator alert.
// @Tags ledger
// @Produce json
// @Success 200 {object} ledger.ChainVerification
// @Security ApiKeyAuth
// @Router /ledger/verify [get]
func (h *LedgerHandler) VerifyLedger(c *gin.Context) {
	verification := ledger.VerifyChain(h.common.ledger.Snapshot())
	if err := ledger.CorruptionError(verification); err != nil && h.common.alerter != nil {
		var corruption *faults.LedgerCorruption
		if errors.As(err, &corruption) {
			h.common.alerter.LedgerCorruption(corruption)
		}
	}
	sendSuccess(c, http.StatusOK, verification)
}

// GetInclusionProof godoc
// @Summary Prove an entry's inclusion
// @Description Builds a Merkle inclusion proof for the entry within the batch [from, to]. The batch defaults to the whole ledger.
// @Tags ledger
// @Produce json
// @Param sequence path int true "Entry sequence number"
// @Param from query int false "Batch start sequence (inclusive)"
// @Param to query int false "Batch end sequence (inclusive)"
// @Success 200 {object} ledger.InclusionProof
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /ledger/entries/{sequence}/proof [get]
func (h *LedgerHandler) GetInclusionProof(c *gin.Context) {
	seq, ok := parseSequenceParam(c, "sequence", c.Param("sequence"))
	if !ok {
		return
	}

	entries := h.common.ledger.Snapshot()
	if fromParam, toParam := c.Query("from"), c.Query("to"); fromParam != "" && toParam != "" {
		from, ok := parseSequenceParam(c, "from", fromParam)
		if !ok {
			return
		}
		to, ok := parseSequenceParam(c, "to", toParam)
		if !ok {
			return
		}
		var err error
		entries, err = h.common.ledger.Range(from, to)
		if err != nil {
			sendFault(c, err)
			return
		}
	}

	proof, err := ledger.ProveInclusion(entries, seq)
	if err != nil {
		sendFault(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, proof)
}

// CreateCheckpointRequest commits to a closed range of ledger entries.
type CreateCheckpointRequest struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// CreateCheckpoint godoc
// @Summary Create a ledger checkpoint
// @Description Computes a Merkle root over the entries in [from, to] for later spot audits
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body CreateCheckpointRequest true "Checkpoint range"
// @Success 201 {object} ledger.Checkpoint
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /ledger/checkpoints [post]
func (h *LedgerHandler) CreateCheckpoint(c *gin.Context) {
	var req CreateCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	checkpoint, err := h.common.ledger.Checkpoint(req.From, req.To)
	if err != nil {
		sendFault(c, err)
		return
	}
	sendSuccess(c, http.StatusCreated, checkpoint)
}
