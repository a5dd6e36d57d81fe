// Package chain implements delegation chain verification: structural
// validation of an ordered token list, anomaly detection, and accumulation
// of effective constraints down the chain.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SignatureVerifier is the external signing oracle. A false return means the
// signature is bad (structural failure, fails closed); a non-nil error means
// the oracle itself was unreachable and must surface as
// DependencyUnavailable, never as a denial.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, t *token.DelegationToken) (bool, error)
}

// Policy carries the configurable anomaly hooks. The escalation and
// rapid-creation thresholds are policy, not algorithm, so they are injected
// rather than hard-coded.
type Policy struct {
	// TypicalDepthThreshold flags UNUSUAL_DEPTH when the chain is longer.
	TypicalDepthThreshold int
	// RapidCreationWindow flags RAPID_CREATION when consecutive hops were
	// minted closer together than this. Zero disables the check.
	RapidCreationWindow time.Duration
	// KnownDID, when set, flags UNKNOWN_RECIPIENT for recipients it rejects.
	KnownDID func(did string) bool
	// OrgOf, when set, flags CROSS_ORG_DELEGATION when issuer and recipient
	// resolve to different organizations.
	OrgOf func(did string) string
}

// DefaultPolicy matches the thresholds used in production.
func DefaultPolicy() Policy {
	return Policy{TypicalDepthThreshold: 5}
}

// TokenResult reports the outcome for one token in the chain.
type TokenResult struct {
	TokenID string   `json:"tokenId"`
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors,omitempty"`
}

// Result is the full verification outcome. Valid is true iff there are zero
// structural errors; anomalies alone never invalidate a chain.
type Result struct {
	Valid                bool                              `json:"valid"`
	ChainDepth           int                               `json:"chainDepth"`
	ChainHash            common.Hash                       `json:"chainHash"`
	PerTokenResults      []TokenResult                     `json:"perTokenResults"`
	EffectiveConstraints constraints.DelegationConstraints `json:"effectiveConstraints"`
	RootIssuerDID        string                            `json:"rootIssuerDid"`
	Errors               []string                          `json:"errors"`
	Anomalies            []token.DelegationAnomaly         `json:"anomalies"`
}

// Verifier validates delegation chains. Verification is pure and re-entrant:
// a single Verifier serves any number of concurrent requests.
type Verifier struct {
	signatures SignatureVerifier
	policy     Policy
	clock      func() time.Time
	logger     *zap.Logger
}

// NewVerifier creates a chain verifier with the given signature oracle and
// policy.
func NewVerifier(signatures SignatureVerifier, policy Policy) *Verifier {
	if policy.TypicalDepthThreshold <= 0 {
		policy.TypicalDepthThreshold = DefaultPolicy().TypicalDepthThreshold
	}
	return &Verifier{
		signatures: signatures,
		policy:     policy,
		clock:      time.Now,
		logger:     logger.Log,
	}
}

// WithClock overrides the verifier's time source. Test seam.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// Verify walks the chain root to leaf. rootIssuerDID is the externally-known
// identity expected to anchor the chain; empty skips the first-hop issuer
// check. A root agent acting on its own token submits a chain of length 1.
//
// Structural failures are reported in the Result (valid=false plus specific
// error strings); only malformed input and oracle outages return a Go error.
func (v *Verifier) Verify(ctx context.Context, tokens []*token.DelegationToken, rootIssuerDID string) (*Result, error) {
	if len(tokens) == 0 {
		return nil, &faults.ValidationError{Field: "chain", Reason: "delegation chain must contain at least the acting agent's token"}
	}
	for i, t := range tokens {
		if t == nil {
			return nil, &faults.ValidationError{Field: fmt.Sprintf("chain[%d]", i), Reason: "token must not be null"}
		}
		if err := t.Constraints.Validate(); err != nil {
			return nil, err
		}
	}

	now := v.clock()
	result := &Result{
		ChainDepth:      len(tokens),
		PerTokenResults: make([]TokenResult, 0, len(tokens)),
		RootIssuerDID:   tokens[0].IssuerDID,
	}

	if len(tokens) > v.policy.TypicalDepthThreshold {
		result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
			Kind:     token.AnomalyUnusualDepth,
			Severity: token.SeverityMedium,
			Detail:   fmt.Sprintf("chain depth %d exceeds typical threshold %d", len(tokens), v.policy.TypicalDepthThreshold),
		})
	}

	seenDIDs := map[string]struct{}{tokens[0].IssuerDID: {}}
	effective := tokens[0].Constraints

	for i, tok := range tokens {
		perToken := TokenResult{TokenID: tok.ID.String(), Valid: true}

		fail := func(field, reason string) {
			ce := &faults.ChainIntegrityError{TokenID: tok.ID.String(), Field: field, Reason: reason}
			perToken.Valid = false
			perToken.Errors = append(perToken.Errors, ce.Error())
			result.Errors = append(result.Errors, ce.Error())
		}

		// Cycle detection on recipient identities.
		if _, seen := seenDIDs[tok.RecipientDID]; seen {
			result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
				Kind:     token.AnomalyCircularReference,
				Severity: token.SeverityCritical,
				TokenID:  tok.ID.String(),
				Detail:   fmt.Sprintf("recipient DID %s already appears earlier in the chain", tok.RecipientDID),
			})
			fail("recipientDid", fmt.Sprintf("circular reference: DID %s reused", tok.RecipientDID))
			result.PerTokenResults = append(result.PerTokenResults, perToken)
			break
		}
		seenDIDs[tok.RecipientDID] = struct{}{}

		// Signature check, fails closed; oracle outage is not a denial.
		ok, err := v.signatures.VerifySignature(ctx, tok)
		if err != nil {
			v.logger.Warn("signature oracle unavailable during chain verification",
				zap.String("token_id", tok.ID.String()),
				zap.Error(err),
			)
			return nil, &faults.DependencyUnavailable{Dependency: "signature oracle", Err: err}
		}
		if !ok {
			fail("signature", "signature verification failed")
		}

		// Liveness: expiry and status.
		if !now.Before(tok.ExpiresAt) {
			fail("expiresAt", fmt.Sprintf("token expired at %s", tok.ExpiresAt.UTC().Format(time.RFC3339)))
			if i < len(tokens)-1 {
				result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
					Kind:     token.AnomalyExpiredParent,
					Severity: token.SeverityHigh,
					TokenID:  tok.ID.String(),
					Detail:   "an ancestor token in the chain has expired",
				})
			}
		}
		switch tok.Status {
		case token.StatusRevoked, token.StatusSuspended:
			fail("status", fmt.Sprintf("token status is %s", tok.Status))
			if i < len(tokens)-1 {
				result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
					Kind:     token.AnomalyRevokedParent,
					Severity: token.SeverityCritical,
					TokenID:  tok.ID.String(),
					Detail:   fmt.Sprintf("an ancestor token in the chain is %s", tok.Status),
				})
			}
		case token.StatusExpired:
			fail("status", "token status is EXPIRED")
		}

		// Depth continuity: root at 0, each hop exactly one deeper.
		if tok.Depth != i {
			fail("depth", fmt.Sprintf("depth %d does not match chain position %d", tok.Depth, i))
		}

		// Issuer continuity.
		if i == 0 {
			if rootIssuerDID != "" && tok.IssuerDID != rootIssuerDID {
				fail("issuerDid", fmt.Sprintf("root issuer %s does not match expected identity %s", tok.IssuerDID, rootIssuerDID))
			}
		} else if tok.IssuerDID != tokens[i-1].RecipientDID {
			fail("issuerDid", fmt.Sprintf("issuer %s does not match predecessor recipient %s", tok.IssuerDID, tokens[i-1].RecipientDID))
		}

		// Hash commitments: the token hash must match its identity fields and
		// the chain hash must extend the predecessor's commitment.
		tokenHash, hashErr := token.ComputeTokenHash(tok)
		if hashErr != nil {
			return nil, hashErr
		}
		if tokenHash != tok.TokenHash {
			fail("tokenHash", "stored token hash does not match recomputed identity hash")
		}
		expectedChainHash := token.ChainHashRoot(tokenHash)
		if i > 0 {
			expectedChainHash = token.ChainHashLink(tokens[i-1].ChainHash, tokenHash)
		}
		if tok.ChainHash != expectedChainHash {
			fail("chainHash", "chain hash does not extend the predecessor's commitment")
		}

		// Constraint accumulation and escalation detection. Merge clamps
		// regardless; escalation is a signal.
		if i > 0 {
			if !effective.CanSubDelegate {
				fail("canSubDelegate", "predecessor constraints do not permit sub-delegation")
			}
			if constraints.LooserThan(tok.Constraints, effective) {
				result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
					Kind:     token.AnomalyConstraintEscalation,
					Severity: token.SeverityHigh,
					TokenID:  tok.ID.String(),
					Detail:   "declared constraints are looser than the accumulated parent constraints",
				})
			}
			effective = constraints.Merge(effective, tok.Constraints)
		}

		// Advisory policy hooks.
		if v.policy.RapidCreationWindow > 0 && i > 0 {
			if gap := tok.CreatedAt.Sub(tokens[i-1].CreatedAt); gap >= 0 && gap < v.policy.RapidCreationWindow {
				result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
					Kind:     token.AnomalyRapidCreation,
					Severity: token.SeverityMedium,
					TokenID:  tok.ID.String(),
					Detail:   fmt.Sprintf("minted %s after its parent, under the %s policy window", gap, v.policy.RapidCreationWindow),
				})
			}
		}
		if v.policy.KnownDID != nil && !v.policy.KnownDID(tok.RecipientDID) {
			result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
				Kind:     token.AnomalyUnknownRecipient,
				Severity: token.SeverityMedium,
				TokenID:  tok.ID.String(),
				Detail:   fmt.Sprintf("recipient DID %s is not in the known-agent registry", tok.RecipientDID),
			})
		}
		if v.policy.OrgOf != nil {
			if issuerOrg, recipientOrg := v.policy.OrgOf(tok.IssuerDID), v.policy.OrgOf(tok.RecipientDID); issuerOrg != "" && recipientOrg != "" && issuerOrg != recipientOrg {
				result.Anomalies = append(result.Anomalies, token.DelegationAnomaly{
					Kind:     token.AnomalyCrossOrgDelegation,
					Severity: token.SeverityMedium,
					TokenID:  tok.ID.String(),
					Detail:   fmt.Sprintf("delegation crosses organizations (%s -> %s)", issuerOrg, recipientOrg),
				})
			}
		}

		result.PerTokenResults = append(result.PerTokenResults, perToken)

		// Structural failures are fatal to the chain: report the failure and
		// any anomalies collected so far, but do not keep walking.
		if !perToken.Valid {
			break
		}
	}

	result.EffectiveConstraints = effective
	result.ChainHash = tokens[len(tokens)-1].ChainHash
	result.Valid = len(result.Errors) == 0
	return result, nil
}
