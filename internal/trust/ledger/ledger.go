// Package ledger implements the append-only, hash-linked audit ledger.
// Every authorization decision is appended as an entry whose hash commits to
// the previous entry, so any after-the-fact mutation is detectable. Merkle
// roots over closed ranges provide O(log n) spot audits without replaying
// the whole chain; the per-entry hash chain remains the source of truth.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hash is a 32-byte Keccak256 digest, hex-encoded in JSON.
type Hash = common.Hash

// Entry is one immutable audit record. PreviousHash is nil only for the
// first entry of a ledger.
type Entry struct {
	SequenceNumber uint64          `json:"sequenceNumber"`
	Data           json.RawMessage `json:"data"`
	PreviousHash   *Hash           `json:"previousHash"`
	EntryHash      Hash            `json:"entryHash"`
	RecordedAt     time.Time       `json:"recordedAt"`
}

// entryHashFor computes H(previousHash ∥ data). A nil previous hash (first
// entry) contributes nothing to the preimage.
func entryHashFor(previous *Hash, data []byte) Hash {
	if previous == nil {
		return crypto.Keccak256Hash(data)
	}
	return crypto.Keccak256Hash(previous[:], data)
}

// Ledger owns the append cursor for one audit stream. Appends are serialized
// so sequence numbers are gap-free and strictly increasing; sequence numbers
// are never assigned optimistically. Reads work on snapshots and never
// observe a partially written entry.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	clock   func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{clock: time.Now}
}

// NewWithClock creates a ledger with an injected clock. Test seam.
func NewWithClock(clock func() time.Time) *Ledger {
	return &Ledger{clock: clock}
}

// NewFromEntries restores a ledger from persisted entries, verifying the
// chain before adopting it. A corrupt chain is refused, not repaired.
func NewFromEntries(entries []Entry) (*Ledger, error) {
	if err := CorruptionError(VerifyChain(entries)); err != nil {
		return nil, err
	}
	l := New()
	l.entries = append(l.entries, entries...)
	return l, nil
}

// Append assigns the next sequence number, links the entry to its
// predecessor, and stores it. O(1) amortized, single writer.
func (l *Ledger) Append(data json.RawMessage) (Entry, error) {
	if len(data) == 0 {
		return Entry{}, &faults.ValidationError{Field: "data", Reason: "entry payload must not be empty"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var previous *Hash
	var seq uint64
	if n := len(l.entries); n > 0 {
		prev := l.entries[n-1].EntryHash
		previous = &prev
		seq = l.entries[n-1].SequenceNumber + 1
	}

	entry := Entry{
		SequenceNumber: seq,
		Data:           append(json.RawMessage(nil), data...),
		PreviousHash:   previous,
		EntryHash:      entryHashFor(previous, data),
		RecordedAt:     l.clock().UTC(),
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns a copy of all entries, taken atomically with respect to
// concurrent appends.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Range returns a copy of entries with sequence numbers in [from, to].
func (l *Ledger) Range(from, to uint64) ([]Entry, error) {
	if to < from {
		return nil, &faults.ValidationError{Field: "range", Reason: "to must not precede from"}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.SequenceNumber >= from && e.SequenceNumber <= to {
			out = append(out, e)
		}
	}
	if out == nil {
		return nil, &faults.ValidationError{Field: "range", Reason: fmt.Sprintf("no entries in [%d, %d]", from, to)}
	}
	return out, nil
}

// ChainError pinpoints one integrity violation found by VerifyChain.
type ChainError struct {
	SequenceNumber uint64 `json:"sequenceNumber"`
	Reason         string `json:"reason"`
}

// ChainVerification is the outcome of VerifyChain.
type ChainVerification struct {
	Valid  bool         `json:"valid"`
	Errors []ChainError `json:"errors"`
}

// VerifyChain checks every adjacent pair for sequence continuity, link
// integrity, and recomputed entry hashes. It collects all violations rather
// than short-circuiting, so callers can assert exact error positions.
// Idempotent: it never mutates the entries.
func VerifyChain(entries []Entry) ChainVerification {
	var errs []ChainError

	for i := range entries {
		e := &entries[i]

		if recomputed := entryHashFor(e.PreviousHash, e.Data); recomputed != e.EntryHash {
			errs = append(errs, ChainError{
				SequenceNumber: e.SequenceNumber,
				Reason:         "entryHash mismatch: stored hash does not match recomputed H(previousHash ∥ data)",
			})
		}

		if i == 0 {
			continue
		}
		prev := &entries[i-1]

		if e.SequenceNumber != prev.SequenceNumber+1 {
			errs = append(errs, ChainError{
				SequenceNumber: e.SequenceNumber,
				Reason:         fmt.Sprintf("sequence gap: expected %d", prev.SequenceNumber+1),
			})
		}
		if e.PreviousHash == nil || *e.PreviousHash != prev.EntryHash {
			errs = append(errs, ChainError{
				SequenceNumber: e.SequenceNumber,
				Reason:         "previousHash does not match predecessor entryHash",
			})
		}
	}

	return ChainVerification{Valid: len(errs) == 0, Errors: errs}
}

// CorruptionError converts a failed verification into a LedgerCorruption
// fault for the first violation found. Returns nil for a valid chain.
func CorruptionError(v ChainVerification) error {
	if v.Valid {
		return nil
	}
	first := v.Errors[0]
	return &faults.LedgerCorruption{SequenceNumber: first.SequenceNumber, Reason: first.Reason}
}
