// Package faults defines the error taxonomy shared across the trust engine.
// The kinds are deliberately distinct so callers can tell a policy denial
// apart from a broken chain, a corrupted ledger, or a dependency outage.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindChainIntegrity        Kind = "chain_integrity_error"
	KindConstraintViolation   Kind = "constraint_violation"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindLedgerCorruption      Kind = "ledger_corruption"
)

// ValidationError reports malformed input rejected before any verification work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ChainIntegrityError reports a structural failure in a delegation chain.
// Always fatal to the chain being verified.
type ChainIntegrityError struct {
	TokenID string
	Field   string
	Reason  string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity failure at token %s (%s): %s", e.TokenID, e.Field, e.Reason)
}

// ConstraintViolation reports a specific bound exceeded during authorization.
// It carries the violated field and its effective limit so the caller never
// sees a generic "denied".
type ConstraintViolation struct {
	Rule      string
	Limit     string
	Requested string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint %s violated: limit %s, requested %s", e.Rule, e.Limit, e.Requested)
}

// DependencyUnavailable reports that an injected collaborator (signature
// oracle, usage snapshot source) timed out or errored. It must never be
// conflated with a denial.
type DependencyUnavailable struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailable) Error() string {
	return fmt.Sprintf("dependency %s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailable) Unwrap() error { return e.Err }

// LedgerCorruption reports a hash or sequence mismatch found in stored ledger
// entries. Fatal; never auto-repaired.
type LedgerCorruption struct {
	SequenceNumber uint64
	Reason         string
}

func (e *LedgerCorruption) Error() string {
	return fmt.Sprintf("ledger corruption at sequence %d: %s", e.SequenceNumber, e.Reason)
}

// KindOf reports the taxonomy kind of err, or an empty Kind if err is not an
// engine error.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ce *ChainIntegrityError
		cv *ConstraintViolation
		du *DependencyUnavailable
		lc *LedgerCorruption
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ce):
		return KindChainIntegrity
	case errors.As(err, &cv):
		return KindConstraintViolation
	case errors.As(err, &du):
		return KindDependencyUnavailable
	case errors.As(err, &lc):
		return KindLedgerCorruption
	default:
		return ""
	}
}
