package signer_test

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/cyphera/trust-engine/internal/client/signer"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T) *token.DelegationToken {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	issuer := crypto.PubkeyToAddress(key.PublicKey)

	tok := &token.DelegationToken{
		ID:           uuid.New(),
		IssuerDID:    "did:ethr:" + issuer.Hex(),
		RecipientDID: "did:ethr:0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB",
		Status:       token.StatusActive,
		CreatedAt:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	hash, err := token.ComputeTokenHash(tok)
	require.NoError(t, err)
	tok.TokenHash = hash

	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	tok.Signature = "0x" + hex.EncodeToString(sig)
	return tok
}

func TestLocalVerifier_AcceptsValidSignature(t *testing.T) {
	v := signer.NewLocalVerifier()
	tok := signedToken(t)

	ok, err := v.VerifySignature(context.Background(), tok)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalVerifier_RejectsWrongSigner(t *testing.T) {
	v := signer.NewLocalVerifier()
	tok := signedToken(t)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(tok.TokenHash.Bytes(), otherKey)
	require.NoError(t, err)
	tok.Signature = "0x" + hex.EncodeToString(sig)

	ok, err := v.VerifySignature(context.Background(), tok)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalVerifier_MalformedInputsFailClosedWithoutError(t *testing.T) {
	v := signer.NewLocalVerifier()

	tests := []struct {
		name   string
		mutate func(tok *token.DelegationToken)
	}{
		{"empty signature", func(tok *token.DelegationToken) { tok.Signature = "" }},
		{"truncated signature", func(tok *token.DelegationToken) { tok.Signature = "0xdeadbeef" }},
		{"not hex", func(tok *token.DelegationToken) { tok.Signature = "0xzzzz" }},
		{"non-ethr did", func(tok *token.DelegationToken) { tok.IssuerDID = "did:web:example.com" }},
		{"bad address", func(tok *token.DelegationToken) { tok.IssuerDID = "did:ethr:0x123" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := signedToken(t)
			tt.mutate(tok)
			ok, err := v.VerifySignature(context.Background(), tok)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestLocalVerifier_HandlesLegacyRecoveryID(t *testing.T) {
	v := signer.NewLocalVerifier()
	tok := signedToken(t)

	// Wallets commonly emit V as 27/28 instead of 0/1.
	sig, err := hex.DecodeString(tok.Signature[2:])
	require.NoError(t, err)
	sig[64] += 27
	tok.Signature = "0x" + hex.EncodeToString(sig)

	ok, err := v.VerifySignature(context.Background(), tok)
	require.NoError(t, err)
	assert.True(t, ok)
}
