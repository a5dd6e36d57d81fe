// Package cmt implements a Cartesian Merkle Tree: a treap whose node
// priorities are derived by hashing the keys, so the shape of the tree is a
// pure function of the key set. Two replicas holding the same keys always
// compute the same root hash, which makes the root a canonical set
// commitment usable for membership and non-membership proofs.
package cmt

import (
	"bytes"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hash is a 32-byte Keccak256 digest, hex-encoded in JSON.
type Hash = common.Hash

// EmptyHash is the digest of an absent subtree.
var EmptyHash = Hash{}

var (
	// ErrKeyNotFound is returned when a membership proof is requested for an
	// absent key.
	ErrKeyNotFound = errors.New("cmt: key not found")
	// ErrKeyFound is returned when a non-membership proof is requested for a
	// present key.
	ErrKeyFound = errors.New("cmt: key is a member")
	// ErrEmptyKey rejects zero-length keys before any tree work.
	ErrEmptyKey = errors.New("cmt: key must not be empty")
)

const nilIndex = int32(-1)

// node lives in the tree's arena. Rotations rewrite child indexes rather
// than moving nodes, keeping rebalancing O(1) per rotation.
type node struct {
	key      []byte
	priority Hash
	left     int32
	right    int32
	hash     Hash
}

// Tree is a deterministic set commitment over byte-string keys.
//
// Mutations (Insert, Remove, ApplyBatch) are serialized by a writer-preferred
// RW lock; proof generation and Root reads run concurrently with each other.
// A failed mutation leaves the tree byte-identical to its prior state.
type Tree struct {
	mu    sync.RWMutex
	nodes []node
	free  []int32
	root  int32
	size  int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{root: nilIndex}
}

// Size returns the number of keys committed.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Root returns the current commitment root. EmptyHash for an empty tree.
func (t *Tree) Root() Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootHash()
}

func (t *Tree) rootHash() Hash {
	if t.root == nilIndex {
		return EmptyHash
	}
	return t.nodes[t.root].hash
}

// priorityFor derives the heap priority from the key alone. This is the
// load-bearing property: structure is reproducible from the key set,
// independent of operation order.
func priorityFor(key []byte) Hash {
	return crypto.Keccak256Hash(key)
}

func subtreeHash(key []byte, left, right Hash) Hash {
	return crypto.Keccak256Hash(key, left[:], right[:])
}

func (t *Tree) childHash(idx int32) Hash {
	if idx == nilIndex {
		return EmptyHash
	}
	return t.nodes[idx].hash
}

func (t *Tree) rehash(idx int32) {
	n := &t.nodes[idx]
	n.hash = subtreeHash(n.key, t.childHash(n.left), t.childHash(n.right))
}

// Insert adds key to the set and returns the new root. Inserting a key that
// is already present is a no-op returning the unchanged root.
func (t *Tree) Insert(key []byte) (Hash, error) {
	if len(key) == 0 {
		return EmptyHash, ErrEmptyKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	root, inserted := t.insert(t.root, key)
	t.root = root
	if inserted {
		t.size++
	}
	return t.rootHash(), nil
}

// Remove deletes key from the set and returns the new root. Removing an
// absent key is a no-op returning the unchanged root.
func (t *Tree) Remove(key []byte) (Hash, error) {
	if len(key) == 0 {
		return EmptyHash, ErrEmptyKey
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	root, removed := t.remove(t.root, key)
	t.root = root
	if removed {
		t.size--
	}
	return t.rootHash(), nil
}

// Contains reports whether key is committed.
func (t *Tree) Contains(key []byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.find(key) != nilIndex
}

func (t *Tree) find(key []byte) int32 {
	idx := t.root
	for idx != nilIndex {
		switch cmp := bytes.Compare(key, t.nodes[idx].key); {
		case cmp == 0:
			return idx
		case cmp < 0:
			idx = t.nodes[idx].left
		default:
			idx = t.nodes[idx].right
		}
	}
	return nilIndex
}

func (t *Tree) alloc(key []byte) int32 {
	k := make([]byte, len(key))
	copy(k, key)
	n := node{
		key:      k,
		priority: priorityFor(key),
		left:     nilIndex,
		right:    nilIndex,
	}
	n.hash = subtreeHash(n.key, EmptyHash, EmptyHash)

	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) release(idx int32) {
	t.nodes[idx] = node{left: nilIndex, right: nilIndex}
	t.free = append(t.free, idx)
}

// insert places key below idx, restoring the max-heap invariant on the way
// back up with single rotations, and recomputing subtree hashes bottom-up.
func (t *Tree) insert(idx int32, key []byte) (int32, bool) {
	if idx == nilIndex {
		return t.alloc(key), true
	}

	cmp := bytes.Compare(key, t.nodes[idx].key)
	if cmp == 0 {
		return idx, false
	}

	var inserted bool
	if cmp < 0 {
		left, ok := t.insert(t.nodes[idx].left, key)
		t.nodes[idx].left = left
		inserted = ok
		if higherPriority(t.nodes[left].priority, t.nodes[idx].priority) {
			idx = t.rotateRight(idx)
			return idx, inserted
		}
	} else {
		right, ok := t.insert(t.nodes[idx].right, key)
		t.nodes[idx].right = right
		inserted = ok
		if higherPriority(t.nodes[right].priority, t.nodes[idx].priority) {
			idx = t.rotateLeft(idx)
			return idx, inserted
		}
	}

	t.rehash(idx)
	return idx, inserted
}

// remove rotates the target node down toward its higher-priority child until
// it is a leaf, then releases it. Hashes along the disturbed path are
// recomputed bottom-up.
func (t *Tree) remove(idx int32, key []byte) (int32, bool) {
	if idx == nilIndex {
		return nilIndex, false
	}

	cmp := bytes.Compare(key, t.nodes[idx].key)
	switch {
	case cmp < 0:
		left, removed := t.remove(t.nodes[idx].left, key)
		t.nodes[idx].left = left
		if removed {
			t.rehash(idx)
		}
		return idx, removed
	case cmp > 0:
		right, removed := t.remove(t.nodes[idx].right, key)
		t.nodes[idx].right = right
		if removed {
			t.rehash(idx)
		}
		return idx, removed
	}

	return t.sink(idx), true
}

// sink removes the node at idx by rotating it downward until it has at most
// one child, then splicing it out.
func (t *Tree) sink(idx int32) int32 {
	n := t.nodes[idx]
	switch {
	case n.left == nilIndex && n.right == nilIndex:
		t.release(idx)
		return nilIndex
	case n.left == nilIndex:
		child := n.right
		t.release(idx)
		return child
	case n.right == nilIndex:
		child := n.left
		t.release(idx)
		return child
	}

	// Rotate toward the higher-priority child to preserve the heap shape,
	// then continue sinking in the subtree the node landed in.
	if higherPriority(t.nodes[n.left].priority, t.nodes[n.right].priority) {
		top := t.rotateRight(idx)
		t.nodes[top].right = t.sink(t.nodes[top].right)
		t.rehash(top)
		return top
	}
	top := t.rotateLeft(idx)
	t.nodes[top].left = t.sink(t.nodes[top].left)
	t.rehash(top)
	return top
}

// rotateRight lifts idx's left child. Both rotated nodes get fresh hashes.
func (t *Tree) rotateRight(idx int32) int32 {
	left := t.nodes[idx].left
	t.nodes[idx].left = t.nodes[left].right
	t.nodes[left].right = idx
	t.rehash(idx)
	t.rehash(left)
	return left
}

// rotateLeft lifts idx's right child.
func (t *Tree) rotateLeft(idx int32) int32 {
	right := t.nodes[idx].right
	t.nodes[idx].right = t.nodes[right].left
	t.nodes[right].left = idx
	t.rehash(idx)
	t.rehash(right)
	return right
}

// higherPriority orders priorities as big-endian byte strings, breaking heap
// ties deterministically.
func higherPriority(a, b Hash) bool {
	return bytes.Compare(a[:], b[:]) > 0
}

// BatchOp is one step of a batch update.
type BatchOp struct {
	Remove bool
	Key    []byte
}

// BatchResult reports the outcome of ApplyBatch: the final root and the
// subtree hashes of every node touched along the mutated paths. Intermediate
// roots are not materialized.
type BatchResult struct {
	Root    Hash
	Touched map[string]Hash
}

// ApplyBatch applies a sequence of inserts and removes atomically with
// respect to readers and returns only the final root plus touched-node
// hashes.
func (t *Tree) ApplyBatch(ops []BatchOp) (*BatchResult, error) {
	for _, op := range ops {
		if len(op.Key) == 0 {
			return nil, ErrEmptyKey
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	touchedKeys := make(map[string]struct{})
	for _, op := range ops {
		t.collectPath(op.Key, touchedKeys)
		if op.Remove {
			root, removed := t.remove(t.root, op.Key)
			t.root = root
			if removed {
				t.size--
			}
		} else {
			root, inserted := t.insert(t.root, op.Key)
			t.root = root
			if inserted {
				t.size++
			}
		}
		t.collectPath(op.Key, touchedKeys)
	}

	touched := make(map[string]Hash, len(touchedKeys))
	for k := range touchedKeys {
		if idx := t.find([]byte(k)); idx != nilIndex {
			touched[k] = t.nodes[idx].hash
		}
	}

	return &BatchResult{Root: t.rootHash(), Touched: touched}, nil
}

// collectPath records the keys of every node on the search path for key.
func (t *Tree) collectPath(key []byte, into map[string]struct{}) {
	idx := t.root
	for idx != nilIndex {
		into[string(t.nodes[idx].key)] = struct{}{}
		cmp := bytes.Compare(key, t.nodes[idx].key)
		if cmp == 0 {
			return
		}
		if cmp < 0 {
			idx = t.nodes[idx].left
		} else {
			idx = t.nodes[idx].right
		}
	}
}
