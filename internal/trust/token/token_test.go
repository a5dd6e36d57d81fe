package token_test

import (
	"testing"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleToken(t *testing.T) *token.DelegationToken {
	t.Helper()
	maxAmount := int64(1000)
	tok := &token.DelegationToken{
		ID:           uuid.New(),
		IssuerDID:    "did:ethr:0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		RecipientDID: "did:ethr:0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		Depth:        0,
		Constraints: constraints.DelegationConstraints{
			MaxAmount:             &maxAmount,
			CanSubDelegate:        true,
			MaxSubDelegationDepth: 3,
		},
		Status:    token.StatusActive,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	hash, err := token.ComputeTokenHash(tok)
	require.NoError(t, err)
	tok.TokenHash = hash
	tok.ChainHash = token.ChainHashRoot(hash)
	return tok
}

func TestComputeTokenHash_StableAndUsageIndependent(t *testing.T) {
	tok := sampleToken(t)

	first, err := token.ComputeTokenHash(tok)
	require.NoError(t, err)

	// Usage counters, status, and signature are not part of identity.
	tok.UsageCount = 42
	tok.TotalSpent = 99999
	tok.Status = token.StatusSuspended
	tok.Signature = "0xdeadbeef"

	second, err := token.ComputeTokenHash(tok)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Identity fields do move the hash.
	tok.RecipientDID = "did:ethr:0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	third, err := token.ComputeTokenHash(tok)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestChainHashLinkage(t *testing.T) {
	root := sampleToken(t)
	child := sampleToken(t)
	child.Depth = 1
	parentID := root.ID
	child.ParentTokenID = &parentID

	childHash, err := token.ComputeTokenHash(child)
	require.NoError(t, err)

	linked := token.ChainHashLink(root.ChainHash, childHash)
	assert.NotEqual(t, root.ChainHash, linked)
	assert.Equal(t, linked, token.ChainHashLink(root.ChainHash, childHash), "deterministic")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	secret := []byte("test-envelope-secret")
	tok := sampleToken(t)

	envelope, err := token.EncodeEnvelope(tok, secret)
	require.NoError(t, err)

	decoded, err := token.DecodeEnvelope(envelope, secret)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, decoded.ID)
	assert.Equal(t, tok.IssuerDID, decoded.IssuerDID)
	assert.Equal(t, tok.ChainHash, decoded.ChainHash)
	require.NotNil(t, decoded.Constraints.MaxAmount)
	assert.Equal(t, int64(1000), *decoded.Constraints.MaxAmount)
}

func TestEnvelopeRejectsWrongSecret(t *testing.T) {
	tok := sampleToken(t)
	envelope, err := token.EncodeEnvelope(tok, []byte("right-secret"))
	require.NoError(t, err)

	_, err = token.DecodeEnvelope(envelope, []byte("wrong-secret"))
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrEnvelopeSignature)
}

func TestEnvelopeAllowsExpiredTokensThrough(t *testing.T) {
	// Expiry semantics belong to the chain verifier; decode must not hide
	// expired ancestors from it.
	secret := []byte("secret")
	tok := sampleToken(t)
	tok.ExpiresAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	envelope, err := token.EncodeEnvelope(tok, secret)
	require.NoError(t, err)

	decoded, err := token.DecodeEnvelope(envelope, secret)
	require.NoError(t, err)
	assert.Equal(t, token.StatusExpired, token.RefreshStatus(decoded, time.Now()))
}

func TestUsable(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	tok := sampleToken(t)

	assert.True(t, tok.Usable(now))

	tok.Status = token.StatusRevoked
	assert.False(t, tok.Usable(now))

	tok.Status = token.StatusActive
	assert.False(t, tok.Usable(tok.ExpiresAt), "expiry boundary is exclusive")
}
