package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/mocks"
	"github.com/cyphera/trust-engine/internal/testutil"
	"github.com/cyphera/trust-engine/internal/trust/chain"
	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	logger.InitLogger("test")
}

const (
	didRoot  = "did:ethr:0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	didAgent = "did:ethr:0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	didSub   = "did:ethr:0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

var chainCreatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newVerifier(t *testing.T, allValid bool) *chain.Verifier {
	t.Helper()
	oracle := mocks.NewMockSignatureVerifierForTest(t)
	oracle.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(allValid, nil).AnyTimes()
	return chain.NewVerifier(oracle, chain.DefaultPolicy()).
		WithClock(func() time.Time { return chainCreatedAt.Add(time.Hour) })
}

func twoHopChain(t *testing.T) []*token.DelegationToken {
	t.Helper()
	return testutil.BuildChain(t, didRoot, chainCreatedAt, []testutil.ChainSpec{
		{RecipientDID: didAgent, Constraints: constraints.DelegationConstraints{
			MaxAmount:             testutil.Int64(1000),
			CanSubDelegate:        true,
			MaxSubDelegationDepth: 3,
		}},
		{RecipientDID: didSub, Constraints: constraints.DelegationConstraints{
			MaxAmount: testutil.Int64(500),
		}},
	})
}

func TestVerify_ValidTwoHopChain(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, 2, result.ChainDepth)
	assert.Equal(t, didRoot, result.RootIssuerDID)
	assert.Equal(t, tokens[1].ChainHash, result.ChainHash)
	require.Len(t, result.PerTokenResults, 2)
	for _, per := range result.PerTokenResults {
		assert.True(t, per.Valid)
	}

	// The effective limit is the tighter of the two declared bounds.
	require.NotNil(t, result.EffectiveConstraints.MaxAmount)
	assert.Equal(t, int64(500), *result.EffectiveConstraints.MaxAmount)
}

func TestVerify_SingleTokenChain(t *testing.T) {
	v := newVerifier(t, true)
	tokens := testutil.BuildChain(t, didRoot, chainCreatedAt, []testutil.ChainSpec{
		{RecipientDID: didAgent, Constraints: constraints.DelegationConstraints{
			MaxAmount: testutil.Int64(250),
		}},
	})

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.ChainDepth)
	require.NotNil(t, result.EffectiveConstraints.MaxAmount)
	assert.Equal(t, int64(250), *result.EffectiveConstraints.MaxAmount)
}

func TestVerify_EmptyChainIsMalformedInput(t *testing.T) {
	v := newVerifier(t, true)

	_, err := v.Verify(context.Background(), nil, didRoot)
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestVerify_CircularReference(t *testing.T) {
	v := newVerifier(t, true)
	// The second hop hands authority back to the root identity.
	tokens := testutil.BuildChain(t, didRoot, chainCreatedAt, []testutil.ChainSpec{
		{RecipientDID: didAgent, Constraints: constraints.DelegationConstraints{
			CanSubDelegate:        true,
			MaxSubDelegationDepth: 3,
		}},
		{RecipientDID: didRoot, Constraints: constraints.DelegationConstraints{}},
	})

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, token.AnomalyCircularReference, result.Anomalies[0].Kind)
	assert.Equal(t, token.SeverityCritical, result.Anomalies[0].Severity)
	assert.Equal(t, tokens[1].ID.String(), result.Anomalies[0].TokenID)
}

func TestVerify_ExpiredAncestorInvalidatesChain(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[0].ExpiresAt = chainCreatedAt.Add(time.Minute) // clock is createdAt+1h

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Anomalies)
	assert.Equal(t, token.AnomalyExpiredParent, result.Anomalies[0].Kind)
	// The walk stops at the failed ancestor.
	require.Len(t, result.PerTokenResults, 1)
	assert.False(t, result.PerTokenResults[0].Valid)
}

func TestVerify_RevokedAncestorInvalidatesChain(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[0].Status = token.StatusRevoked

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Anomalies)
	assert.Equal(t, token.AnomalyRevokedParent, result.Anomalies[0].Kind)
	assert.Equal(t, token.SeverityCritical, result.Anomalies[0].Severity)
}

func TestVerify_RevokedLeafFailsWithoutParentAnomaly(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[1].Status = token.StatusRevoked

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Empty(t, result.Anomalies, "a revoked leaf is a plain failure, not an ancestor anomaly")
}

func TestVerify_TamperedTokenHash(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[1].TokenHash = crypto.Keccak256Hash([]byte("tampered"))

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.PerTokenResults, 2)
	assert.False(t, result.PerTokenResults[1].Valid)
}

func TestVerify_BrokenChainHashLinkage(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[1].ChainHash = token.ChainHashRoot(tokens[1].TokenHash) // forgets the parent

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestVerify_DepthMismatch(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[1].Depth = 5
	// Keep the hash commitments consistent so only the depth rule fires.
	hash, err := token.ComputeTokenHash(tokens[1])
	require.NoError(t, err)
	tokens[1].TokenHash = hash
	tokens[1].ChainHash = token.ChainHashLink(tokens[0].ChainHash, hash)

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "depth")
}

func TestVerify_IssuerContinuityBreak(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)
	tokens[1].IssuerDID = "did:ethr:0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD"
	hash, err := token.ComputeTokenHash(tokens[1])
	require.NoError(t, err)
	tokens[1].TokenHash = hash
	tokens[1].ChainHash = token.ChainHashLink(tokens[0].ChainHash, hash)

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "issuer")
}

func TestVerify_RootIssuerMismatch(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)

	result, err := v.Verify(context.Background(), tokens, didSub)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestVerify_EmptyRootIssuerSkipsAnchorCheck(t *testing.T) {
	v := newVerifier(t, true)
	tokens := twoHopChain(t)

	result, err := v.Verify(context.Background(), tokens, "")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerify_BadSignatureFailsClosed(t *testing.T) {
	v := newVerifier(t, false)
	tokens := twoHopChain(t)

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestVerify_OracleOutageIsNotADenial(t *testing.T) {
	oracle := mocks.NewMockSignatureVerifierForTest(t)
	oracle.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).
		Return(false, errors.New("oracle timeout")).AnyTimes()
	v := chain.NewVerifier(oracle, chain.DefaultPolicy()).
		WithClock(func() time.Time { return chainCreatedAt.Add(time.Hour) })

	result, err := v.Verify(context.Background(), twoHopChain(t), didRoot)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, faults.KindDependencyUnavailable, faults.KindOf(err))
}

func TestVerify_SubDelegationWithoutPermission(t *testing.T) {
	v := newVerifier(t, true)
	tokens := testutil.BuildChain(t, didRoot, chainCreatedAt, []testutil.ChainSpec{
		{RecipientDID: didAgent, Constraints: constraints.DelegationConstraints{
			MaxAmount:      testutil.Int64(1000),
			CanSubDelegate: false,
		}},
		{RecipientDID: didSub, Constraints: constraints.DelegationConstraints{
			MaxAmount: testutil.Int64(500),
		}},
	})

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "sub-delegation")
}

func TestVerify_ConstraintEscalationIsAnomalyNotError(t *testing.T) {
	v := newVerifier(t, true)
	tokens := testutil.BuildChain(t, didRoot, chainCreatedAt, []testutil.ChainSpec{
		{RecipientDID: didAgent, Constraints: constraints.DelegationConstraints{
			MaxAmount:             testutil.Int64(500),
			CanSubDelegate:        true,
			MaxSubDelegationDepth: 3,
		}},
		{RecipientDID: didSub, Constraints: constraints.DelegationConstraints{
			MaxAmount: testutil.Int64(1000), // wider than the parent grant
		}},
	})

	result, err := v.Verify(context.Background(), tokens, didRoot)
	require.NoError(t, err)

	assert.True(t, result.Valid, "escalation is advisory; the merge clamps")
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, token.AnomalyConstraintEscalation, result.Anomalies[0].Kind)
	assert.Equal(t, token.SeverityHigh, result.Anomalies[0].Severity)
	require.NotNil(t, result.EffectiveConstraints.MaxAmount)
	assert.Equal(t, int64(500), *result.EffectiveConstraints.MaxAmount)
}

func TestVerify_UnusualDepthAnomaly(t *testing.T) {
	v := newVerifier(t, true)

	hops := make([]testutil.ChainSpec, 6)
	recipients := []string{
		"did:ethr:0x1111111111111111111111111111111111111111",
		"did:ethr:0x2222222222222222222222222222222222222222",
		"did:ethr:0x3333333333333333333333333333333333333333",
		"did:ethr:0x4444444444444444444444444444444444444444",
		"did:ethr:0x5555555555555555555555555555555555555555",
		"did:ethr:0x6666666666666666666666666666666666666666",
	}
	for i := range hops {
		hops[i] = testutil.ChainSpec{
			RecipientDID: recipients[i],
			Constraints: constraints.DelegationConstraints{
				MaxAmount:             testutil.Int64(1000),
				CanSubDelegate:        true,
				MaxSubDelegationDepth: 10 - i,
			},
		}
	}

	result, err := v.Verify(context.Background(), testutil.BuildChain(t, didRoot, chainCreatedAt, hops), didRoot)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, token.AnomalyUnusualDepth, result.Anomalies[0].Kind)
}

func TestVerify_PolicyHooks(t *testing.T) {
	oracle := mocks.NewMockSignatureVerifierForTest(t)
	oracle.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	policy := chain.Policy{
		TypicalDepthThreshold: 5,
		KnownDID:              func(did string) bool { return did != didSub },
		OrgOf: func(did string) string {
			if did == didRoot || did == didAgent {
				return "org-a"
			}
			return "org-b"
		},
	}
	v := chain.NewVerifier(oracle, policy).
		WithClock(func() time.Time { return chainCreatedAt.Add(time.Hour) })

	result, err := v.Verify(context.Background(), twoHopChain(t), didRoot)
	require.NoError(t, err)

	assert.True(t, result.Valid, "policy hooks are advisory")
	kinds := make(map[token.AnomalyKind]int)
	for _, a := range result.Anomalies {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[token.AnomalyUnknownRecipient])
	assert.Equal(t, 1, kinds[token.AnomalyCrossOrgDelegation])
}

func TestVerify_RapidCreationAnomaly(t *testing.T) {
	oracle := mocks.NewMockSignatureVerifierForTest(t)
	oracle.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	policy := chain.DefaultPolicy()
	policy.RapidCreationWindow = time.Minute
	v := chain.NewVerifier(oracle, policy).
		WithClock(func() time.Time { return chainCreatedAt.Add(time.Hour) })

	// Both hops are minted at the same instant, well inside the window.
	result, err := v.Verify(context.Background(), twoHopChain(t), didRoot)
	require.NoError(t, err)

	assert.True(t, result.Valid, "rapid creation is advisory")
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, token.AnomalyRapidCreation, result.Anomalies[0].Kind)
	assert.Equal(t, token.SeverityMedium, result.Anomalies[0].Severity)
}
