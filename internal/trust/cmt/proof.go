package cmt

import "bytes"

// ProofStep is one node on the authenticated search path, root first. The
// child hashes are the node's committed left/right subtree digests; for every
// step except the last, the digest on the search side is recomputable from
// the following step and is checked against it during verification.
type ProofStep struct {
	Key       []byte `json:"key"`
	LeftHash  Hash   `json:"leftHash"`
	RightHash Hash   `json:"rightHash"`
}

// Proof authenticates the presence or absence of Key under a root.
//
// For a membership proof the last step is the node holding Key. For a
// non-membership proof the last step is the node where a BST search for Key
// terminates: the child slot the search would descend into is empty, which
// places Key strictly between the path's in-order neighbors.
type Proof struct {
	Key    []byte      `json:"key"`
	Member bool        `json:"member"`
	Steps  []ProofStep `json:"steps"`
}

// ProveMembership returns an authenticated path for a committed key, or
// ErrKeyNotFound.
func (t *Tree) ProveMembership(key []byte) (*Proof, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	steps, found := t.searchPath(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	return &Proof{Key: append([]byte(nil), key...), Member: true, Steps: steps}, nil
}

// ProveNonMembership returns an authenticated path demonstrating the key is
// absent, or ErrKeyFound if it is committed. Non-membership of any key is
// trivially true for an empty tree: the proof has zero steps and verifies
// only against EmptyHash.
func (t *Tree) ProveNonMembership(key []byte) (*Proof, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	steps, found := t.searchPath(key)
	if found {
		return nil, ErrKeyFound
	}
	return &Proof{Key: append([]byte(nil), key...), Member: false, Steps: steps}, nil
}

// searchPath walks the BST search for key, recording each visited node.
func (t *Tree) searchPath(key []byte) ([]ProofStep, bool) {
	var steps []ProofStep
	idx := t.root
	for idx != nilIndex {
		n := t.nodes[idx]
		steps = append(steps, ProofStep{
			Key:       append([]byte(nil), n.key...),
			LeftHash:  t.childHash(n.left),
			RightHash: t.childHash(n.right),
		})
		cmp := bytes.Compare(key, n.key)
		if cmp == 0 {
			return steps, true
		}
		if cmp < 0 {
			idx = n.left
		} else {
			idx = n.right
		}
	}
	return steps, false
}

// VerifyProof checks a proof against a commitment root. It recomputes the
// subtree hash of every step bottom-up, confirms each parent committed to the
// recomputed child digest on the correct search side, and confirms the BST
// ordering that makes the path the unique search path for the key.
func VerifyProof(proof *Proof, root Hash) bool {
	if proof == nil || len(proof.Key) == 0 {
		return false
	}

	if len(proof.Steps) == 0 {
		// Only an empty tree proves absence with an empty path.
		return !proof.Member && root == EmptyHash
	}

	last := proof.Steps[len(proof.Steps)-1]
	lastCmp := bytes.Compare(proof.Key, last.Key)

	if proof.Member {
		if lastCmp != 0 {
			return false
		}
	} else {
		// The search must dead-end: the slot the key would occupy is empty.
		switch {
		case lastCmp == 0:
			return false
		case lastCmp < 0:
			if last.LeftHash != EmptyHash {
				return false
			}
		default:
			if last.RightHash != EmptyHash {
				return false
			}
		}
	}

	// Recompute upward, checking search-side linkage and BST direction at
	// every hop.
	computed := subtreeHash(last.Key, last.LeftHash, last.RightHash)
	for i := len(proof.Steps) - 2; i >= 0; i-- {
		step := proof.Steps[i]
		child := proof.Steps[i+1]

		cmp := bytes.Compare(proof.Key, step.Key)
		if cmp == 0 {
			// The key can only appear at the end of the path.
			return false
		}
		if cmp < 0 {
			if bytes.Compare(child.Key, step.Key) >= 0 {
				return false
			}
			if step.LeftHash != computed {
				return false
			}
		} else {
			if bytes.Compare(child.Key, step.Key) <= 0 {
				return false
			}
			if step.RightHash != computed {
				return false
			}
		}
		computed = subtreeHash(step.Key, step.LeftHash, step.RightHash)
	}

	return computed == root
}
