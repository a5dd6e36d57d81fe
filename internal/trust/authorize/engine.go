// Package authorize implements the transaction authorization engine: ordered
// constraint evaluation against a verified delegation chain, risk scoring,
// mandate issuance, and audit recording.
package authorize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/trust/chain"
	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the engine's decision for one transaction request.
type Outcome string

const (
	OutcomeApproved       Outcome = "APPROVED"
	OutcomeDenied         Outcome = "DENIED"
	OutcomeRequiresReview Outcome = "REQUIRES_REVIEW"
)

// UsageSnapshot is the current spend picture for a delegation chain,
// supplied read-only by an external counter service. Execution-time
// increments happen after rail settlement, outside this engine.
type UsageSnapshot struct {
	DailySpent    int64 `json:"dailySpent"`
	WeeklySpent   int64 `json:"weeklySpent"`
	TotalSpent    int64 `json:"totalSpent"`
	AverageAmount int64 `json:"averageAmount"`
}

// UsageSource supplies usage snapshots. An error surfaces as
// DependencyUnavailable, never as a denial.
type UsageSource interface {
	UsageSnapshot(ctx context.Context, chainHash common.Hash) (*UsageSnapshot, error)
}

// DecisionPublisher streams finished decisions to downstream consumers
// (fraud analytics). Publishing is best-effort and never blocks a decision.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, decision *Decision) error
}

// TransactionRequest is the validated authorization input.
type TransactionRequest struct {
	TransactionID     uuid.UUID `json:"transactionId"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	MerchantID        string    `json:"merchantId"`
	MerchantCategory  string    `json:"merchantCategory"`
	RequestedRail     string    `json:"requestedRail"`
	MerchantRiskLevel int       `json:"merchantRiskLevel"`
}

// Validate rejects malformed requests before any evaluation work.
func (r *TransactionRequest) Validate() error {
	if r.TransactionID == uuid.Nil {
		return &faults.ValidationError{Field: "transactionId", Reason: "required"}
	}
	if r.Amount <= 0 {
		return &faults.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if r.Currency == "" {
		return &faults.ValidationError{Field: "currency", Reason: "required"}
	}
	if r.MerchantID == "" {
		return &faults.ValidationError{Field: "merchantId", Reason: "required"}
	}
	if r.MerchantRiskLevel < 0 || r.MerchantRiskLevel > 100 {
		return &faults.ValidationError{Field: "merchantRiskLevel", Reason: "must be between 0 and 100"}
	}
	return nil
}

// Decision is the reconstructible record of one authorization outcome.
type Decision struct {
	TransactionID       uuid.UUID                         `json:"transactionId"`
	Outcome             Outcome                           `json:"outcome"`
	ViolatedRule        string                            `json:"violatedRule,omitempty"`
	ViolatedLimit       string                            `json:"violatedLimit,omitempty"`
	RiskScore           int                               `json:"riskScore"`
	RiskFactors         []RiskFactor                      `json:"riskFactors,omitempty"`
	ChainHash           common.Hash                       `json:"chainHash"`
	ConstraintsSnapshot constraints.DelegationConstraints `json:"constraintsSnapshot"`
	Usage               UsageSnapshot                     `json:"usage"`
	Mandate             *token.Mandate                    `json:"mandate,omitempty"`
	AuditSequence       uint64                            `json:"auditSequence"`
	DecidedAt           time.Time                         `json:"decidedAt"`
}

// Engine evaluates transaction requests. Pure computation aside from the
// ledger append and the injected collaborators; safe for concurrent use.
type Engine struct {
	ledger    *ledger.Ledger
	usage     UsageSource
	publisher DecisionPublisher
	config    Config
	clock     func() time.Time
	logger    *zap.Logger
}

// NewEngine creates an authorization engine. publisher may be nil when no
// downstream stream is configured.
func NewEngine(auditLedger *ledger.Ledger, usage UsageSource, publisher DecisionPublisher, config Config) *Engine {
	config.applyDefaults()
	return &Engine{
		ledger:    auditLedger,
		usage:     usage,
		publisher: publisher,
		config:    config,
		clock:     time.Now,
		logger:    logger.Log,
	}
}

// WithClock overrides the engine's time source. Test seam.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Authorize evaluates the request against the verified chain's effective
// constraints and the chain's current usage. Every outcome is appended to
// the audit ledger before it is returned.
func (e *Engine) Authorize(ctx context.Context, req *TransactionRequest, verification *chain.Result) (*Decision, error) {
	if req == nil {
		return nil, &faults.ValidationError{Field: "request", Reason: "required"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if verification == nil || !verification.Valid {
		return nil, &faults.ValidationError{Field: "verification", Reason: "authorization requires a structurally valid delegation chain"}
	}
	if len(verification.PerTokenResults) == 0 {
		return nil, &faults.ValidationError{Field: "verification", Reason: "verification result carries no tokens"}
	}

	chainHash := verification.ChainHash
	snapshot, err := e.usage.UsageSnapshot(ctx, chainHash)
	if err != nil {
		return nil, &faults.DependencyUnavailable{Dependency: "usage snapshot source", Err: err}
	}

	now := e.clock()
	effective := verification.EffectiveConstraints

	decision := &Decision{
		TransactionID:       req.TransactionID,
		ChainHash:           chainHash,
		ConstraintsSnapshot: effective,
		Usage:               *snapshot,
		DecidedAt:           now.UTC(),
	}

	// Ordered evaluation: the first violated rule decides and is reported;
	// later rules never mask it.
	if violation := evaluate(req, &effective, snapshot, now); violation != nil {
		decision.Outcome = OutcomeDenied
		decision.ViolatedRule = violation.Rule
		decision.ViolatedLimit = violation.Limit

		if err := e.record(ctx, decision); err != nil {
			return nil, err
		}

		e.logger.Info("transaction denied",
			zap.String("transaction_id", req.TransactionID.String()),
			zap.String("violated_rule", violation.Rule),
			zap.String("chain_hash", chainHash.Hex()),
		)
		return decision, nil
	}

	// All constraints passed: score risk and route accordingly.
	score, factors := e.scoreRisk(req, snapshot, verification.ChainDepth, now)
	decision.RiskScore = score
	decision.RiskFactors = factors

	if score > e.config.ReviewThreshold {
		decision.Outcome = OutcomeRequiresReview
		if err := e.record(ctx, decision); err != nil {
			return nil, err
		}
		e.logger.Info("transaction routed to review",
			zap.String("transaction_id", req.TransactionID.String()),
			zap.Int("risk_score", score),
		)
		return decision, nil
	}

	decision.Outcome = OutcomeApproved
	decision.Mandate = e.issueMandate(req, verification, score, now)

	if err := e.record(ctx, decision); err != nil {
		return nil, err
	}

	e.logger.Info("transaction approved",
		zap.String("transaction_id", req.TransactionID.String()),
		zap.String("mandate_id", decision.Mandate.ID.String()),
		zap.Int("risk_score", score),
	)
	return decision, nil
}

func (e *Engine) issueMandate(req *TransactionRequest, verification *chain.Result, score int, now time.Time) *token.Mandate {
	rails := []string{req.RequestedRail}
	if req.RequestedRail == "" {
		rails = nil
	}

	snapshotJSON, err := json.Marshal(verification.EffectiveConstraints)
	var policyHash common.Hash
	if err == nil {
		policyHash = crypto.Keccak256Hash(snapshotJSON)
	}

	return &token.Mandate{
		ID:                  uuid.New(),
		TransactionID:       req.TransactionID,
		Amount:              req.Amount,
		Currency:            req.Currency,
		MerchantID:          req.MerchantID,
		DelegationChainHash: verification.ChainHash,
		PolicySnapshotHash:  policyHash,
		RiskScore:           score,
		MaxExecutions:       1,
		AllowedRails:        rails,
		IssuedAt:            now.UTC(),
		ExpiresAt:           now.UTC().Add(e.config.MandateTTL),
	}
}

// record appends the decision to the audit ledger and streams it. The append
// must succeed for the decision to stand; publishing is best-effort.
func (e *Engine) record(ctx context.Context, decision *Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to serialize decision for audit: %w", err)
	}

	entry, err := e.ledger.Append(payload)
	if err != nil {
		return err
	}
	decision.AuditSequence = entry.SequenceNumber

	if e.publisher != nil {
		if err := e.publisher.PublishDecision(ctx, decision); err != nil {
			e.logger.Warn("failed to publish decision to event stream",
				zap.String("transaction_id", decision.TransactionID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
