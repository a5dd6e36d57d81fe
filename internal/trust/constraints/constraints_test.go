package constraints_test

import (
	"testing"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func TestMerge_NumericBounds(t *testing.T) {
	tests := []struct {
		name     string
		parent   *int64
		child    *int64
		expected *int64
	}{
		{
			name:     "both absent stays absent",
			parent:   nil,
			child:    nil,
			expected: nil,
		},
		{
			name:     "absent parent takes child value",
			parent:   nil,
			child:    int64Ptr(500),
			expected: int64Ptr(500),
		},
		{
			name:     "absent child takes parent value",
			parent:   int64Ptr(1000),
			child:    nil,
			expected: int64Ptr(1000),
		},
		{
			name:     "both present takes minimum",
			parent:   int64Ptr(1000),
			child:    int64Ptr(500),
			expected: int64Ptr(500),
		},
		{
			name:     "child cannot widen parent bound",
			parent:   int64Ptr(500),
			child:    int64Ptr(1000),
			expected: int64Ptr(500),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := constraints.DelegationConstraints{MaxAmount: tt.parent, MaxSubDelegationDepth: 5}
			child := constraints.DelegationConstraints{MaxAmount: tt.child, MaxSubDelegationDepth: 5}

			merged := constraints.Merge(parent, child)

			if tt.expected == nil {
				assert.Nil(t, merged.MaxAmount)
			} else {
				require.NotNil(t, merged.MaxAmount)
				assert.Equal(t, *tt.expected, *merged.MaxAmount)
			}
		})
	}
}

func TestMerge_NeverWidensAnyBound(t *testing.T) {
	// Monotonic tightening: the merged bound is never looser than either
	// input across a spread of combinations.
	values := []*int64{nil, int64Ptr(100), int64Ptr(500), int64Ptr(1000)}

	for _, p := range values {
		for _, c := range values {
			parent := constraints.DelegationConstraints{
				MaxAmount:      p,
				MaxDailySpend:  p,
				MaxWeeklySpend: p,
				MaxTotalSpend:  p,
			}
			child := constraints.DelegationConstraints{
				MaxAmount:      c,
				MaxDailySpend:  c,
				MaxWeeklySpend: c,
				MaxTotalSpend:  c,
			}

			merged := constraints.Merge(parent, child)

			for _, bound := range []*int64{merged.MaxAmount, merged.MaxDailySpend, merged.MaxWeeklySpend, merged.MaxTotalSpend} {
				if p != nil {
					require.NotNil(t, bound)
					assert.LessOrEqual(t, *bound, *p)
				}
				if c != nil {
					require.NotNil(t, bound)
					assert.LessOrEqual(t, *bound, *c)
				}
			}
		}
	}
}

func TestMerge_AllowListsIntersect(t *testing.T) {
	parent := constraints.DelegationConstraints{
		AllowedCurrencies: []string{"USD", "EUR", "GBP"},
		AllowedMerchants:  []string{"merchant-a", "merchant-b"},
	}
	child := constraints.DelegationConstraints{
		AllowedCurrencies: []string{"EUR", "USD", "JPY"},
	}

	merged := constraints.Merge(parent, child)

	assert.ElementsMatch(t, []string{"USD", "EUR"}, merged.AllowedCurrencies)
	// Child declared no merchant list, so the parent's carries through.
	assert.ElementsMatch(t, []string{"merchant-a", "merchant-b"}, merged.AllowedMerchants)
}

func TestMerge_DisjointAllowListsProduceEmptyNotNil(t *testing.T) {
	parent := constraints.DelegationConstraints{AllowedCurrencies: []string{"USD"}}
	child := constraints.DelegationConstraints{AllowedCurrencies: []string{"EUR"}}

	merged := constraints.Merge(parent, child)

	// Empty means "nothing allowed"; nil would mean unconstrained.
	require.NotNil(t, merged.AllowedCurrencies)
	assert.Empty(t, merged.AllowedCurrencies)
}

func TestMerge_DenyListsUnion(t *testing.T) {
	parent := constraints.DelegationConstraints{DeniedMerchants: []string{"merchant-x"}}
	child := constraints.DelegationConstraints{DeniedMerchants: []string{"merchant-y", "merchant-x"}}

	merged := constraints.Merge(parent, child)

	assert.ElementsMatch(t, []string{"merchant-x", "merchant-y"}, merged.DeniedMerchants)
}

func TestMerge_ValidityWindowTightens(t *testing.T) {
	parentFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	parentUntil := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	childFrom := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	childUntil := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	parent := constraints.DelegationConstraints{
		Window: &constraints.ValidityWindow{
			ValidFrom:  &parentFrom,
			ValidUntil: &parentUntil,
			DaysOfWeek: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday},
			HourStart:  intPtr(8),
			HourEnd:    intPtr(20),
		},
	}
	child := constraints.DelegationConstraints{
		Window: &constraints.ValidityWindow{
			ValidFrom:  &childFrom,
			ValidUntil: &childUntil,
			DaysOfWeek: []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday},
			HourStart:  intPtr(9),
			HourEnd:    intPtr(17),
		},
	}

	merged := constraints.Merge(parent, child)

	require.NotNil(t, merged.Window)
	assert.Equal(t, childFrom, *merged.Window.ValidFrom)
	assert.Equal(t, childUntil, *merged.Window.ValidUntil)
	assert.ElementsMatch(t, []time.Weekday{time.Tuesday, time.Wednesday}, merged.Window.DaysOfWeek)
	assert.Equal(t, 9, *merged.Window.HourStart)
	assert.Equal(t, 17, *merged.Window.HourEnd)
}

func TestMerge_SubDelegationFields(t *testing.T) {
	parent := constraints.DelegationConstraints{CanSubDelegate: true, MaxSubDelegationDepth: 3}
	child := constraints.DelegationConstraints{CanSubDelegate: true, MaxSubDelegationDepth: 5}

	merged := constraints.Merge(parent, child)
	assert.True(t, merged.CanSubDelegate)
	assert.Equal(t, 2, merged.MaxSubDelegationDepth)

	// Depth floors at zero.
	parent.MaxSubDelegationDepth = 0
	merged = constraints.Merge(parent, child)
	assert.Equal(t, 0, merged.MaxSubDelegationDepth)

	// canSubDelegate is AND.
	child.CanSubDelegate = false
	merged = constraints.Merge(parent, child)
	assert.False(t, merged.CanSubDelegate)
}

func TestMerge_FoldIsDeterministicAndOrderDependent(t *testing.T) {
	a := constraints.DelegationConstraints{MaxAmount: int64Ptr(1000), AllowedCurrencies: []string{"USD", "EUR"}, MaxSubDelegationDepth: 5}
	b := constraints.DelegationConstraints{MaxAmount: int64Ptr(500), MaxSubDelegationDepth: 4}
	c := constraints.DelegationConstraints{AllowedCurrencies: []string{"USD"}, MaxSubDelegationDepth: 6}

	fold := func(seq []constraints.DelegationConstraints) constraints.DelegationConstraints {
		acc := seq[0]
		for _, next := range seq[1:] {
			acc = constraints.Merge(acc, next)
		}
		return acc
	}

	// Folding the same sequence twice is deterministic.
	first := fold([]constraints.DelegationConstraints{a, b, c})
	second := fold([]constraints.DelegationConstraints{a, b, c})
	assert.Equal(t, first, second)

	// Chain order is meaningful: depth decrements per merge step, so a
	// permuted chain may produce different depth accounting. Permutation
	// invariance is explicitly not required.
	permuted := fold([]constraints.DelegationConstraints{c, a, b})
	assert.Equal(t, *first.MaxAmount, *permuted.MaxAmount, "bounds still clamp to the global minimum")
}

func TestLooserThan(t *testing.T) {
	parent := constraints.DelegationConstraints{MaxAmount: int64Ptr(500), MaxSubDelegationDepth: 2}

	looser := constraints.DelegationConstraints{MaxSubDelegationDepth: 2}
	assert.True(t, constraints.LooserThan(looser, parent), "dropping a parent bound is an escalation attempt")

	wider := constraints.DelegationConstraints{MaxAmount: int64Ptr(900), MaxSubDelegationDepth: 2}
	assert.True(t, constraints.LooserThan(wider, parent))

	tighter := constraints.DelegationConstraints{MaxAmount: int64Ptr(100), MaxSubDelegationDepth: 1}
	assert.False(t, constraints.LooserThan(tighter, parent))
}

func TestValidate(t *testing.T) {
	valid := constraints.DelegationConstraints{MaxAmount: int64Ptr(100), MaxSubDelegationDepth: 3}
	assert.NoError(t, valid.Validate())

	negative := constraints.DelegationConstraints{MaxAmount: int64Ptr(-5)}
	assert.Error(t, negative.Validate())

	tooDeep := constraints.DelegationConstraints{MaxSubDelegationDepth: 11}
	assert.Error(t, tooDeep.Validate())

	badHour := constraints.DelegationConstraints{Window: &constraints.ValidityWindow{HourStart: intPtr(24)}}
	assert.Error(t, badHour.Validate())
}
