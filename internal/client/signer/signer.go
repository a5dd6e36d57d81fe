// Package signer provides the signature oracle implementations used by chain
// verification: a local secp256k1 verifier for did:ethr identities and a
// remote HTTP oracle for externally-managed keys.
package signer

import (
	"context"
	"encoding/hex"
	"strings"

	httpclient "github.com/cyphera/trust-engine/internal/client/http"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const didEthrPrefix = "did:ethr:"

// LocalVerifier verifies secp256k1 signatures for did:ethr issuers without
// leaving the process. The signature is over the token's identity hash.
type LocalVerifier struct{}

// NewLocalVerifier creates a local secp256k1 verifier.
func NewLocalVerifier() *LocalVerifier {
	return &LocalVerifier{}
}

// VerifySignature recovers the signing address from the token signature and
// compares it with the address embedded in the issuer DID. A malformed
// signature or DID verifies as false rather than erroring: only the inability
// to attempt verification at all is an error, and local verification can
// always be attempted.
func (v *LocalVerifier) VerifySignature(_ context.Context, t *token.DelegationToken) (bool, error) {
	issuerAddr, ok := addressFromDID(t.IssuerDID)
	if !ok {
		return false, nil
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(t.Signature, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return false, nil
	}

	// Normalize the recovery id: wallets emit 27/28, crypto wants 0/1.
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	pubKey, err := crypto.SigToPub(t.TokenHash.Bytes(), recovery)
	if err != nil {
		return false, nil
	}
	return crypto.PubkeyToAddress(*pubKey) == issuerAddr, nil
}

func addressFromDID(did string) (common.Address, bool) {
	if !strings.HasPrefix(did, didEthrPrefix) {
		return common.Address{}, false
	}
	hexAddr := strings.TrimPrefix(did, didEthrPrefix)
	if !common.IsHexAddress(hexAddr) {
		return common.Address{}, false
	}
	return common.HexToAddress(hexAddr), true
}

// RemoteVerifier delegates signature checks to an external oracle over HTTP.
// Transport failures bubble up as errors so the chain verifier can report
// the oracle as unavailable instead of denying.
type RemoteVerifier struct {
	client *httpclient.Client
}

// NewRemoteVerifier creates an oracle client rooted at baseURL.
func NewRemoteVerifier(baseURL string, options ...httpclient.Option) *RemoteVerifier {
	return &RemoteVerifier{client: httpclient.NewClient(baseURL, options...)}
}

type verifyRequest struct {
	TokenID   string `json:"tokenId"`
	TokenHash string `json:"tokenHash"`
	IssuerDID string `json:"issuerDid"`
	Signature string `json:"signature"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// VerifySignature asks the oracle whether the token signature is valid.
func (v *RemoteVerifier) VerifySignature(ctx context.Context, t *token.DelegationToken) (bool, error) {
	req := verifyRequest{
		TokenID:   t.ID.String(),
		TokenHash: t.TokenHash.Hex(),
		IssuerDID: t.IssuerDID,
		Signature: t.Signature,
	}

	var resp verifyResponse
	if err := v.client.PostJSON(ctx, "/v1/signatures/verify", req, &resp); err != nil {
		return false, errors.Wrap(err, "signature oracle request failed")
	}
	return resp.Valid, nil
}
