package cmt_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/cyphera/trust-engine/internal/trust/cmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysFor(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("token-%04d", i))
	}
	return keys
}

func TestTree_RootIsPermutationInvariant(t *testing.T) {
	keys := keysFor(64)

	buildWithOrder := func(seed int64) cmt.Hash {
		tree := cmt.New()
		shuffled := make([][]byte, len(keys))
		copy(shuffled, keys)
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		var root cmt.Hash
		for _, k := range shuffled {
			var err error
			root, err = tree.Insert(k)
			require.NoError(t, err)
		}
		return root
	}

	reference := buildWithOrder(1)
	for seed := int64(2); seed <= 6; seed++ {
		assert.Equal(t, reference, buildWithOrder(seed), "insertion order must not affect the root")
	}
}

func TestTree_RootChangesIffKeySetChanges(t *testing.T) {
	tree := cmt.New()
	for _, k := range keysFor(16) {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	before := tree.Root()

	// Duplicate insert is a no-op.
	after, err := tree.Insert([]byte("token-0003"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 16, tree.Size())

	// A genuine insert moves the root.
	after, err = tree.Insert([]byte("token-9999"))
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	// Removing it restores the previous commitment.
	after, err = tree.Remove([]byte("token-9999"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Removing an absent key is a no-op.
	after, err = tree.Remove([]byte("never-inserted"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTree_InsertRemoveConvergesWithDirectBuild(t *testing.T) {
	// Build {0..31}, remove the odd keys, and compare against a tree built
	// from the even keys directly. Deterministic shape means identical roots.
	full := cmt.New()
	for _, k := range keysFor(32) {
		_, err := full.Insert(k)
		require.NoError(t, err)
	}
	for i := 1; i < 32; i += 2 {
		_, err := full.Remove([]byte(fmt.Sprintf("token-%04d", i)))
		require.NoError(t, err)
	}

	evens := cmt.New()
	for i := 0; i < 32; i += 2 {
		_, err := evens.Insert([]byte(fmt.Sprintf("token-%04d", i)))
		require.NoError(t, err)
	}

	assert.Equal(t, evens.Root(), full.Root())
	assert.Equal(t, 16, full.Size())
}

func TestTree_MembershipProofRoundTrip(t *testing.T) {
	tree := cmt.New()
	keys := keysFor(40)
	for _, k := range keys {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	root := tree.Root()

	for _, k := range keys {
		proof, err := tree.ProveMembership(k)
		require.NoError(t, err)
		assert.True(t, cmt.VerifyProof(proof, root), "membership proof for %s", k)
	}

	_, err := tree.ProveMembership([]byte("absent"))
	assert.ErrorIs(t, err, cmt.ErrKeyNotFound)
}

func TestTree_NonMembershipProofLifecycle(t *testing.T) {
	tree := cmt.New()
	for _, k := range keysFor(20) {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	root := tree.Root()

	absent := []byte("token-0500x")
	proof, err := tree.ProveNonMembership(absent)
	require.NoError(t, err)
	assert.True(t, cmt.VerifyProof(proof, root))

	// Inserting the key flips both outcomes: membership now provable, and
	// the old non-membership proof no longer verifies against the new root.
	newRoot, err := tree.Insert(absent)
	require.NoError(t, err)

	membership, err := tree.ProveMembership(absent)
	require.NoError(t, err)
	assert.True(t, cmt.VerifyProof(membership, newRoot))

	assert.False(t, cmt.VerifyProof(proof, newRoot))

	_, err = tree.ProveNonMembership(absent)
	assert.ErrorIs(t, err, cmt.ErrKeyFound)
}

func TestVerifyProof_RejectsTamperedProofs(t *testing.T) {
	tree := cmt.New()
	for _, k := range keysFor(12) {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	root := tree.Root()

	proof, err := tree.ProveMembership([]byte("token-0007"))
	require.NoError(t, err)
	require.True(t, cmt.VerifyProof(proof, root))

	// Flip one bit in a sibling hash.
	tampered := *proof
	tampered.Steps = append([]cmt.ProofStep(nil), proof.Steps...)
	tampered.Steps[0].LeftHash[5] ^= 0x01
	assert.False(t, cmt.VerifyProof(&tampered, root))

	// Claim a different key against the same path.
	relabeled := *proof
	relabeled.Key = []byte("token-0008")
	assert.False(t, cmt.VerifyProof(&relabeled, root))

	// Wrong root.
	var otherRoot cmt.Hash
	otherRoot[0] = 0xff
	assert.False(t, cmt.VerifyProof(proof, otherRoot))
}

func TestTree_EmptyTreeNonMembership(t *testing.T) {
	tree := cmt.New()
	proof, err := tree.ProveNonMembership([]byte("anything"))
	require.NoError(t, err)
	assert.Empty(t, proof.Steps)
	assert.True(t, cmt.VerifyProof(proof, cmt.EmptyHash))
	assert.False(t, cmt.VerifyProof(proof, cmt.Hash{1}))
}

func TestTree_ApplyBatch(t *testing.T) {
	tree := cmt.New()
	for _, k := range keysFor(8) {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}

	ops := []cmt.BatchOp{
		{Key: []byte("token-1000")},
		{Key: []byte("token-1001")},
		{Remove: true, Key: []byte("token-0002")},
	}
	result, err := tree.ApplyBatch(ops)
	require.NoError(t, err)

	// The final root matches applying the same ops one at a time.
	replay := cmt.New()
	for _, k := range keysFor(8) {
		_, err := replay.Insert(k)
		require.NoError(t, err)
	}
	_, err = replay.Insert([]byte("token-1000"))
	require.NoError(t, err)
	_, err = replay.Insert([]byte("token-1001"))
	require.NoError(t, err)
	expected, err := replay.Remove([]byte("token-0002"))
	require.NoError(t, err)

	assert.Equal(t, expected, result.Root)
	assert.Equal(t, result.Root, tree.Root())
	assert.NotEmpty(t, result.Touched)

	// Touched hashes reflect current node digests for surviving keys.
	for key, h := range result.Touched {
		assert.True(t, tree.Contains([]byte(key)))
		assert.NotEqual(t, cmt.EmptyHash, h)
	}

	// Removed key is gone.
	assert.False(t, tree.Contains([]byte("token-0002")))
}

func TestTree_RejectsEmptyKey(t *testing.T) {
	tree := cmt.New()
	_, err := tree.Insert(nil)
	assert.ErrorIs(t, err, cmt.ErrEmptyKey)
	_, err = tree.Remove([]byte{})
	assert.ErrorIs(t, err, cmt.ErrEmptyKey)
	_, err = tree.ProveMembership(nil)
	assert.ErrorIs(t, err, cmt.ErrEmptyKey)
}
