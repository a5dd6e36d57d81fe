// Package token defines the delegation token, anomaly, and mandate types
// shared across the trust engine, plus the signed JWT envelope tokens travel
// in. Field names are a stable interop contract with other services.
package token

import (
	"encoding/json"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a delegation token.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusRevoked   Status = "REVOKED"
	StatusSuspended Status = "SUSPENDED"
)

// DelegationToken grants a recipient agent authority delegated by an issuer.
// A token's lifetime is independent of its parent: the parent may be revoked
// while the child remains queryable, but an unusable ancestor makes the whole
// chain unusable. Once issued, a token is mutated only by usage-counter
// increments and status transitions; amendments require a new token.
type DelegationToken struct {
	ID            uuid.UUID                         `json:"id"`
	IssuerDID     string                            `json:"issuerDid"`
	RecipientDID  string                            `json:"recipientDid"`
	ParentTokenID *uuid.UUID                        `json:"parentTokenId"`
	Depth         int                               `json:"depth"`
	ChainHash     common.Hash                       `json:"chainHash"`
	TokenHash     common.Hash                       `json:"tokenHash"`
	Constraints   constraints.DelegationConstraints `json:"constraints"`
	UsageCount    int64                             `json:"usageCount"`
	TotalSpent    int64                             `json:"totalSpent"`
	Status        Status                            `json:"status"`
	Signature     string                            `json:"signature"`
	CreatedAt     time.Time                         `json:"createdAt"`
	ExpiresAt     time.Time                         `json:"expiresAt"`
}

// Usable reports whether the token can anchor authority at the given time.
func (t *DelegationToken) Usable(now time.Time) bool {
	return t.Status == StatusActive && now.Before(t.ExpiresAt)
}

// identityPayload is the canonical preimage of a token hash: the immutable
// identity fields only. Counters, status, and the signature are excluded so
// usage and revocation do not move the hash.
type identityPayload struct {
	ID            uuid.UUID                         `json:"id"`
	IssuerDID     string                            `json:"issuerDid"`
	RecipientDID  string                            `json:"recipientDid"`
	ParentTokenID *uuid.UUID                        `json:"parentTokenId"`
	Depth         int                               `json:"depth"`
	Constraints   constraints.DelegationConstraints `json:"constraints"`
	ExpiresAt     int64                             `json:"expiresAt"`
}

// ComputeTokenHash derives the token's identity hash from its immutable
// fields.
func ComputeTokenHash(t *DelegationToken) (common.Hash, error) {
	payload, err := json.Marshal(identityPayload{
		ID:            t.ID,
		IssuerDID:     t.IssuerDID,
		RecipientDID:  t.RecipientDID,
		ParentTokenID: t.ParentTokenID,
		Depth:         t.Depth,
		Constraints:   t.Constraints,
		ExpiresAt:     t.ExpiresAt.UTC().Unix(),
	})
	if err != nil {
		return common.Hash{}, &faults.ValidationError{Field: "token", Reason: "token is not hashable: " + err.Error()}
	}
	return crypto.Keccak256Hash(payload), nil
}

// ChainHashRoot computes the chain commitment for a root token.
func ChainHashRoot(tokenHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(tokenHash[:])
}

// ChainHashLink extends a parent chain commitment with one more token.
func ChainHashLink(parentChainHash, tokenHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(parentChainHash[:], tokenHash[:])
}

// Mandate is the short-lived authorization artifact issued on approval.
// Single-use unless MaxExecutions is raised at issuance; never mutated, only
// consumed (execution counting happens at the rail, not here) or expired.
type Mandate struct {
	ID                  uuid.UUID   `json:"id"`
	TransactionID       uuid.UUID   `json:"transactionId"`
	Amount              int64       `json:"amount"`
	Currency            string      `json:"currency"`
	MerchantID          string      `json:"merchantId"`
	DelegationChainHash common.Hash `json:"delegationChainHash"`
	PolicySnapshotHash  common.Hash `json:"policySnapshotHash"`
	RiskScore           int         `json:"riskScore"`
	MaxExecutions       int         `json:"maxExecutions"`
	AllowedRails        []string    `json:"allowedRails"`
	IssuedAt            time.Time   `json:"issuedAt"`
	ExpiresAt           time.Time   `json:"expiresAt"`
}
