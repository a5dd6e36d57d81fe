package revocation_test

import (
	"testing"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/cmt"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/cyphera/trust-engine/internal/trust/revocation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RevokeAndProve(t *testing.T) {
	registry := revocation.NewRegistry()
	revokedID := uuid.New()
	liveID := uuid.New()

	// Before revocation both tokens verify as absent.
	proof, root, err := registry.ProveRevocationStatus(revokedID)
	require.NoError(t, err)
	assert.False(t, proof.Member)
	assert.True(t, cmt.VerifyProof(proof, root))

	_, err = registry.Revoke(revokedID)
	require.NoError(t, err)
	assert.True(t, registry.IsRevoked(revokedID))
	assert.False(t, registry.IsRevoked(liveID))

	proof, root, err = registry.ProveRevocationStatus(revokedID)
	require.NoError(t, err)
	assert.True(t, proof.Member)
	assert.True(t, cmt.VerifyProof(proof, root))

	proof, root, err = registry.ProveRevocationStatus(liveID)
	require.NoError(t, err)
	assert.False(t, proof.Member)
	assert.True(t, cmt.VerifyProof(proof, root))
}

func TestRegistry_RevokeIsIdempotent(t *testing.T) {
	registry := revocation.NewRegistry()
	id := uuid.New()

	first, err := registry.Revoke(id)
	require.NoError(t, err)
	second, err := registry.Revoke(id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegistry_RevokeBatchMatchesSequential(t *testing.T) {
	batch := revocation.NewRegistry()
	sequential := revocation.NewRegistry()

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
	}

	batchRoot, err := batch.RevokeBatch(ids)
	require.NoError(t, err)

	var seqRoot cmt.Hash
	for _, id := range ids {
		seqRoot, err = sequential.Revoke(id)
		require.NoError(t, err)
	}

	assert.Equal(t, seqRoot, batchRoot)
	for _, id := range ids {
		assert.True(t, batch.IsRevoked(id))
	}
}

func TestRegistry_NonceReplayRejected(t *testing.T) {
	registry := revocation.NewRegistry()

	_, err := registry.ConsumeNonce("nonce-1")
	require.NoError(t, err)
	assert.True(t, registry.NonceConsumed("nonce-1"))

	_, err = registry.ConsumeNonce("nonce-1")
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))

	_, err = registry.ConsumeNonce("")
	require.Error(t, err)
}

func TestRegistry_PublishRecordsSnapshotInLedger(t *testing.T) {
	registry := revocation.NewRegistry()
	auditLog := ledger.New()
	now := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)

	_, err := registry.Revoke(uuid.New())
	require.NoError(t, err)

	snapshot, err := registry.Publish(auditLog, now)
	require.NoError(t, err)
	assert.Equal(t, registry.RevocationRoot(), snapshot.RevocationRoot)
	assert.Equal(t, 1, snapshot.RevokedCount)
	assert.Equal(t, now, snapshot.PublishedAt)
	assert.Equal(t, 1, auditLog.Len())
}
