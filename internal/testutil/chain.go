// Package testutil provides shared fixtures for trust-engine tests.
package testutil

import (
	"testing"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ChainSpec describes one hop of a delegation chain fixture.
type ChainSpec struct {
	RecipientDID string
	Constraints  constraints.DelegationConstraints
}

// Int64 returns a pointer to v. Constraint bounds are pointer-typed so tests
// need this constantly.
func Int64(v int64) *int64 {
	return &v
}

// BuildChain constructs a structurally valid delegation chain rooted at
// rootIssuerDID: depths count from zero, each hop's issuer is the previous
// recipient, and all hash commitments are computed. Tokens are ACTIVE and
// expire 24 hours after createdAt.
func BuildChain(t *testing.T, rootIssuerDID string, createdAt time.Time, hops []ChainSpec) []*token.DelegationToken {
	t.Helper()
	require.NotEmpty(t, hops, "a chain needs at least one hop")

	tokens := make([]*token.DelegationToken, 0, len(hops))
	issuer := rootIssuerDID
	for i, hop := range hops {
		tok := &token.DelegationToken{
			ID:           uuid.New(),
			IssuerDID:    issuer,
			RecipientDID: hop.RecipientDID,
			Depth:        i,
			Constraints:  hop.Constraints,
			Status:       token.StatusActive,
			CreatedAt:    createdAt,
			ExpiresAt:    createdAt.Add(24 * time.Hour),
		}
		if i > 0 {
			parentID := tokens[i-1].ID
			tok.ParentTokenID = &parentID
		}

		hash, err := token.ComputeTokenHash(tok)
		require.NoError(t, err)
		tok.TokenHash = hash
		if i == 0 {
			tok.ChainHash = token.ChainHashRoot(hash)
		} else {
			tok.ChainHash = token.ChainHashLink(tokens[i-1].ChainHash, hash)
		}

		tokens = append(tokens, tok)
		issuer = hop.RecipientDID
	}
	return tokens
}
