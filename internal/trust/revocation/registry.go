// Package revocation maintains the revoked-token and consumed-nonce set
// commitments. Both sets live in Cartesian Merkle trees so relying parties
// can check a token against a published root with a compact proof instead of
// calling back into the engine.
package revocation

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/cmt"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/google/uuid"
)

// Registry tracks revoked delegation tokens and consumed redemption nonces.
// Safe for concurrent use; the trees carry their own locks and nonce
// consumption takes an extra mutex to make the replay check atomic.
type Registry struct {
	revoked *cmt.Tree

	nonceMu sync.Mutex
	nonces  *cmt.Tree
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		revoked: cmt.New(),
		nonces:  cmt.New(),
	}
}

// Revoke adds a token ID to the revoked set and returns the new set root.
// Revoking an already-revoked token is not an error; the root is unchanged.
func (r *Registry) Revoke(tokenID uuid.UUID) (cmt.Hash, error) {
	return r.revoked.Insert(tokenID[:])
}

// RevokeBatch revokes a set of token IDs atomically, as a cascading
// revocation of a whole subtree does. Already-revoked IDs are skipped.
func (r *Registry) RevokeBatch(tokenIDs []uuid.UUID) (cmt.Hash, error) {
	ops := make([]cmt.BatchOp, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if r.revoked.Contains(id[:]) {
			continue
		}
		key := make([]byte, len(id))
		copy(key, id[:])
		ops = append(ops, cmt.BatchOp{Key: key})
	}
	if len(ops) == 0 {
		return r.revoked.Root(), nil
	}
	result, err := r.revoked.ApplyBatch(ops)
	if err != nil {
		return cmt.EmptyHash, err
	}
	return result.Root, nil
}

// IsRevoked reports whether the token ID is in the revoked set.
func (r *Registry) IsRevoked(tokenID uuid.UUID) bool {
	return r.revoked.Contains(tokenID[:])
}

// ProveRevocationStatus produces a membership proof when the token is
// revoked and a non-membership proof when it is not, along with the root the
// proof verifies against.
func (r *Registry) ProveRevocationStatus(tokenID uuid.UUID) (*cmt.Proof, cmt.Hash, error) {
	if r.revoked.Contains(tokenID[:]) {
		proof, err := r.revoked.ProveMembership(tokenID[:])
		return proof, r.revoked.Root(), err
	}
	proof, err := r.revoked.ProveNonMembership(tokenID[:])
	return proof, r.revoked.Root(), err
}

// ConsumeNonce marks a redemption nonce as used. A second consumption of the
// same nonce is a replay and is rejected.
func (r *Registry) ConsumeNonce(nonce string) (cmt.Hash, error) {
	if nonce == "" {
		return cmt.EmptyHash, &faults.ValidationError{Field: "nonce", Reason: "required"}
	}

	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()

	if r.nonces.Contains([]byte(nonce)) {
		return cmt.EmptyHash, &faults.ValidationError{Field: "nonce", Reason: "nonce already consumed"}
	}
	return r.nonces.Insert([]byte(nonce))
}

// NonceConsumed reports whether a nonce has been used.
func (r *Registry) NonceConsumed(nonce string) bool {
	return r.nonces.Contains([]byte(nonce))
}

// RevocationRoot returns the current root of the revoked-token set.
func (r *Registry) RevocationRoot() cmt.Hash {
	return r.revoked.Root()
}

// NonceRoot returns the current root of the consumed-nonce set.
func (r *Registry) NonceRoot() cmt.Hash {
	return r.nonces.Root()
}

// Snapshot is the published picture of both set commitments at a moment in
// time, recorded alongside ledger checkpoints so auditors can pin the sets a
// past decision was made against.
type Snapshot struct {
	RevocationRoot cmt.Hash  `json:"revocationRoot"`
	NonceRoot      cmt.Hash  `json:"nonceRoot"`
	RevokedCount   int       `json:"revokedCount"`
	PublishedAt    time.Time `json:"publishedAt"`
}

// Publish appends the current snapshot to the audit ledger and returns it.
func (r *Registry) Publish(auditLedger *ledger.Ledger, now time.Time) (*Snapshot, error) {
	snapshot := &Snapshot{
		RevocationRoot: r.revoked.Root(),
		NonceRoot:      r.nonces.Root(),
		RevokedCount:   r.revoked.Size(),
		PublishedAt:    now.UTC(),
	}
	payload, err := json.Marshal(struct {
		Kind     string    `json:"kind"`
		Snapshot *Snapshot `json:"snapshot"`
	}{Kind: "revocation_snapshot", Snapshot: snapshot})
	if err != nil {
		return nil, err
	}
	if _, err := auditLedger.Append(payload); err != nil {
		return nil, err
	}
	return snapshot, nil
}
