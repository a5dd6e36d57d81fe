package token

// AnomalyKind tags a structural observation made during chain verification.
// Anomalies are advisory signals attached to a result, not errors; only
// structural failures invalidate a chain.
type AnomalyKind string

const (
	AnomalyUnusualDepth         AnomalyKind = "UNUSUAL_DEPTH"
	AnomalyRapidCreation        AnomalyKind = "RAPID_CREATION"
	AnomalyCircularReference    AnomalyKind = "CIRCULAR_REFERENCE"
	AnomalyConstraintEscalation AnomalyKind = "CONSTRAINT_ESCALATION"
	AnomalyExpiredParent        AnomalyKind = "EXPIRED_PARENT"
	AnomalyRevokedParent        AnomalyKind = "REVOKED_PARENT"
	AnomalyUnknownRecipient     AnomalyKind = "UNKNOWN_RECIPIENT"
	AnomalyCrossOrgDelegation   AnomalyKind = "CROSS_ORG_DELEGATION"
)

// Severity grades how alarming an anomaly is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// DelegationAnomaly is one observation, attached to the verification result
// and streamed to downstream fraud analytics.
type DelegationAnomaly struct {
	Kind     AnomalyKind `json:"kind"`
	Severity Severity    `json:"severity"`
	TokenID  string      `json:"tokenId,omitempty"`
	Detail   string      `json:"detail"`
}
