package ledger

import (
	"time"

	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/ethereum/go-ethereum/crypto"
)

// MerkleRoot builds a binary hash tree over the entries' hashes. An unpaired
// last node is promoted by duplicating it, at every level; a single entry's
// hash is itself the root. Returns the zero hash for empty input.
func MerkleRoot(entries []Entry) Hash {
	if len(entries) == 0 {
		return Hash{}
	}

	level := make([]Hash, len(entries))
	for i, e := range entries {
		level[i] = e.EntryHash
	}

	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				// Odd node: pair it with itself. The same tie-break applies
				// at every level.
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right Hash) Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

// SiblingStep is one hop of an inclusion proof. Left reports whether the
// sibling sits to the left of the running hash.
type SiblingStep struct {
	Hash Hash `json:"hash"`
	Left bool `json:"left"`
}

// InclusionProof authenticates one entry against a Merkle root over a batch
// of entries.
type InclusionProof struct {
	SequenceNumber uint64        `json:"sequenceNumber"`
	LeafHash       Hash          `json:"leafHash"`
	Root           Hash          `json:"root"`
	Siblings       []SiblingStep `json:"siblings"`
}

// ProveInclusion builds the sibling path for the entry with the given
// sequence number within entries.
func ProveInclusion(entries []Entry, sequenceNumber uint64) (*InclusionProof, error) {
	index := -1
	for i, e := range entries {
		if e.SequenceNumber == sequenceNumber {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, &faults.ValidationError{Field: "sequenceNumber", Reason: "entry not in the proven batch"}
	}

	proof := &InclusionProof{
		SequenceNumber: sequenceNumber,
		LeafHash:       entries[index].EntryHash,
	}

	level := make([]Hash, len(entries))
	for i, e := range entries {
		level[i] = e.EntryHash
	}

	pos := index
	for len(level) > 1 {
		if pos%2 == 0 {
			sibling := level[pos] // odd node duplicates itself
			if pos+1 < len(level) {
				sibling = level[pos+1]
			}
			proof.Siblings = append(proof.Siblings, SiblingStep{Hash: sibling, Left: false})
		} else {
			proof.Siblings = append(proof.Siblings, SiblingStep{Hash: level[pos-1], Left: true})
		}

		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
		pos /= 2
	}

	proof.Root = level[0]
	return proof, nil
}

// VerifyInclusion recomputes the root from the leaf hash using each
// sibling's declared position.
func VerifyInclusion(proof *InclusionProof) bool {
	if proof == nil {
		return false
	}
	computed := proof.LeafHash
	for _, step := range proof.Siblings {
		if step.Left {
			computed = hashPair(step.Hash, computed)
		} else {
			computed = hashPair(computed, step.Hash)
		}
	}
	return computed == proof.Root
}

// Checkpoint commits to a closed range of ledger entries with a Merkle root,
// enabling spot audits of single entries without replaying the hash chain.
type Checkpoint struct {
	FromSequence uint64    `json:"fromSequence"`
	ToSequence   uint64    `json:"toSequence"`
	Root         Hash      `json:"root"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Checkpoint snapshots a Merkle root over the entries in [from, to].
func (l *Ledger) Checkpoint(from, to uint64) (*Checkpoint, error) {
	entries, err := l.Range(from, to)
	if err != nil {
		return nil, err
	}
	// A checkpoint over a range with gaps would commit to a different batch
	// than the caller asked for.
	if entries[0].SequenceNumber != from || entries[len(entries)-1].SequenceNumber != to {
		return nil, &faults.ValidationError{Field: "range", Reason: "range is not fully present in the ledger"}
	}

	return &Checkpoint{
		FromSequence: from,
		ToSequence:   to,
		Root:         MerkleRoot(entries),
		CreatedAt:    l.clock().UTC(),
	}, nil
}
