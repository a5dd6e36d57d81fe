// Package constraints implements the delegation constraint model and its
// merge algebra. Values are immutable once validated; merging down a chain
// only ever tightens bounds.
package constraints

import (
	"time"

	"github.com/cyphera/trust-engine/internal/trust/faults"
)

// MaxSubDelegationDepthCeiling is the hard upper bound on delegation depth.
const MaxSubDelegationDepthCeiling = 10

// ValidityWindow restricts when delegated authority may be exercised.
// All fields are optional; an absent field means unconstrained.
type ValidityWindow struct {
	ValidFrom  *time.Time     `json:"validFrom,omitempty"`
	ValidUntil *time.Time     `json:"validUntil,omitempty"`
	DaysOfWeek []time.Weekday `json:"daysOfWeek,omitempty"`
	HourStart  *int           `json:"hourStart,omitempty"`
	HourEnd    *int           `json:"hourEnd,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`
}

// DelegationConstraints is the immutable constraint set attached to a
// delegation token. A nil bound means unconstrained. Amounts are integer
// cents in the token's settlement currency.
type DelegationConstraints struct {
	MaxAmount      *int64 `json:"maxAmount,omitempty"`
	MaxDailySpend  *int64 `json:"maxDailySpend,omitempty"`
	MaxWeeklySpend *int64 `json:"maxWeeklySpend,omitempty"`
	MaxTotalSpend  *int64 `json:"maxTotalSpend,omitempty"`

	AllowedCurrencies []string `json:"allowedCurrencies,omitempty"`
	AllowedMerchants  []string `json:"allowedMerchants,omitempty"`
	DeniedMerchants   []string `json:"deniedMerchants,omitempty"`
	AllowedCategories []string `json:"allowedCategories,omitempty"`
	DeniedCategories  []string `json:"deniedCategories,omitempty"`

	Window *ValidityWindow `json:"window,omitempty"`

	CanSubDelegate        bool `json:"canSubDelegate"`
	MaxSubDelegationDepth int  `json:"maxSubDelegationDepth"`

	// SemanticConstraints carries natural-language policy text evaluated by
	// an external policy service. Opaque to this engine.
	SemanticConstraints string `json:"semanticConstraints,omitempty"`

	Custom map[string]string `json:"custom,omitempty"`
}

// Validate checks the shape invariants: every bound is either absent or a
// finite positive value, depth is within 0..10, and hour ranges are sane.
func (c *DelegationConstraints) Validate() error {
	for field, bound := range map[string]*int64{
		"maxAmount":      c.MaxAmount,
		"maxDailySpend":  c.MaxDailySpend,
		"maxWeeklySpend": c.MaxWeeklySpend,
		"maxTotalSpend":  c.MaxTotalSpend,
	} {
		if bound != nil && *bound <= 0 {
			return &faults.ValidationError{Field: field, Reason: "bound must be a positive value when present"}
		}
	}

	if c.MaxSubDelegationDepth < 0 || c.MaxSubDelegationDepth > MaxSubDelegationDepthCeiling {
		return &faults.ValidationError{Field: "maxSubDelegationDepth", Reason: "must be between 0 and 10"}
	}

	if c.Window != nil {
		if err := c.Window.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (w *ValidityWindow) validate() error {
	if w.HourStart != nil && (*w.HourStart < 0 || *w.HourStart > 23) {
		return &faults.ValidationError{Field: "window.hourStart", Reason: "must be between 0 and 23"}
	}
	if w.HourEnd != nil && (*w.HourEnd < 0 || *w.HourEnd > 23) {
		return &faults.ValidationError{Field: "window.hourEnd", Reason: "must be between 0 and 23"}
	}
	if w.ValidFrom != nil && w.ValidUntil != nil && w.ValidUntil.Before(*w.ValidFrom) {
		return &faults.ValidationError{Field: "window.validUntil", Reason: "must not precede validFrom"}
	}
	for _, d := range w.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return &faults.ValidationError{Field: "window.daysOfWeek", Reason: "invalid weekday"}
		}
	}
	return nil
}

// Merge combines a parent constraint set with a child's declared constraints,
// producing the effective constraints for the child. The result is never
// looser than either input: numeric bounds take the minimum of the values
// present, allow-lists intersect, deny-lists union, validity windows tighten
// to their overlap. Folding Merge left-to-right down a chain is deterministic
// for a fixed sequence.
func Merge(parent, child DelegationConstraints) DelegationConstraints {
	merged := DelegationConstraints{
		MaxAmount:      minBound(parent.MaxAmount, child.MaxAmount),
		MaxDailySpend:  minBound(parent.MaxDailySpend, child.MaxDailySpend),
		MaxWeeklySpend: minBound(parent.MaxWeeklySpend, child.MaxWeeklySpend),
		MaxTotalSpend:  minBound(parent.MaxTotalSpend, child.MaxTotalSpend),

		AllowedCurrencies: intersectLists(parent.AllowedCurrencies, child.AllowedCurrencies),
		AllowedMerchants:  intersectLists(parent.AllowedMerchants, child.AllowedMerchants),
		DeniedMerchants:   unionLists(parent.DeniedMerchants, child.DeniedMerchants),
		AllowedCategories: intersectLists(parent.AllowedCategories, child.AllowedCategories),
		DeniedCategories:  unionLists(parent.DeniedCategories, child.DeniedCategories),

		Window: mergeWindows(parent.Window, child.Window),

		CanSubDelegate:        parent.CanSubDelegate && child.CanSubDelegate,
		MaxSubDelegationDepth: mergeDepth(parent.MaxSubDelegationDepth, child.MaxSubDelegationDepth),

		SemanticConstraints: mergeSemantic(parent.SemanticConstraints, child.SemanticConstraints),
		Custom:              mergeCustom(parent.Custom, child.Custom),
	}

	return merged
}

// LooserThan reports whether the child's declared constraints attempt to
// widen any bound the parent holds: a nil bound where the parent has one, or
// a larger value on the same bound. Used by the chain verifier to flag
// constraint escalation attempts; Merge clamps regardless.
func LooserThan(child, parent DelegationConstraints) bool {
	for _, pair := range [][2]*int64{
		{child.MaxAmount, parent.MaxAmount},
		{child.MaxDailySpend, parent.MaxDailySpend},
		{child.MaxWeeklySpend, parent.MaxWeeklySpend},
		{child.MaxTotalSpend, parent.MaxTotalSpend},
	} {
		childBound, parentBound := pair[0], pair[1]
		if parentBound == nil {
			continue
		}
		if childBound == nil || *childBound > *parentBound {
			return true
		}
	}

	if !parent.CanSubDelegate && child.CanSubDelegate {
		return true
	}
	if child.MaxSubDelegationDepth > parent.MaxSubDelegationDepth {
		return true
	}

	return false
}

func minBound(a, b *int64) *int64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

func intersectLists(a, b []string) []string {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return copyList(b)
	case b == nil:
		return copyList(a)
	}
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	// Intersection may legitimately be empty: that is "nothing allowed",
	// which is distinct from nil "unconstrained".
	result := make([]string, 0)
	for _, v := range a {
		if _, ok := inB[v]; ok {
			result = append(result, v)
		}
	}
	return result
}

func unionLists(a, b []string) []string {
	if a == nil && b == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				result = append(result, v)
			}
		}
	}
	return result
}

func copyList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func mergeWindows(parent, child *ValidityWindow) *ValidityWindow {
	switch {
	case parent == nil && child == nil:
		return nil
	case parent == nil:
		w := *child
		return &w
	case child == nil:
		w := *parent
		return &w
	}

	merged := &ValidityWindow{
		ValidFrom:  laterTime(parent.ValidFrom, child.ValidFrom),
		ValidUntil: earlierTime(parent.ValidUntil, child.ValidUntil),
		DaysOfWeek: intersectDays(parent.DaysOfWeek, child.DaysOfWeek),
		HourStart:  maxHour(parent.HourStart, child.HourStart),
		HourEnd:    minHour(parent.HourEnd, child.HourEnd),
		Timezone:   parent.Timezone,
	}
	if merged.Timezone == "" {
		merged.Timezone = child.Timezone
	}
	return merged
}

func laterTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		t := *b
		return &t
	case b == nil:
		t := *a
		return &t
	}
	t := *a
	if b.After(t) {
		t = *b
	}
	return &t
}

func earlierTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		t := *b
		return &t
	case b == nil:
		t := *a
		return &t
	}
	t := *a
	if b.Before(t) {
		t = *b
	}
	return &t
}

func intersectDays(a, b []time.Weekday) []time.Weekday {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		out := make([]time.Weekday, len(b))
		copy(out, b)
		return out
	case b == nil:
		out := make([]time.Weekday, len(a))
		copy(out, a)
		return out
	}
	inB := make(map[time.Weekday]struct{}, len(b))
	for _, d := range b {
		inB[d] = struct{}{}
	}
	result := make([]time.Weekday, 0)
	for _, d := range a {
		if _, ok := inB[d]; ok {
			result = append(result, d)
		}
	}
	return result
}

func maxHour(a, b *int) *int {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v
}

func minHour(a, b *int) *int {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

func mergeDepth(parent, child int) int {
	depth := parent
	if child < depth {
		depth = child
	}
	depth--
	if depth < 0 {
		depth = 0
	}
	return depth
}

func mergeSemantic(parent, child string) string {
	switch {
	case parent == "":
		return child
	case child == "":
		return parent
	}
	return parent + "\n" + child
}

func mergeCustom(parent, child map[string]string) map[string]string {
	if parent == nil && child == nil {
		return nil
	}
	merged := make(map[string]string, len(parent)+len(child))
	for k, v := range child {
		merged[k] = v
	}
	// Parent entries win on conflict: an ancestor's policy cannot be
	// overridden further down the chain.
	for k, v := range parent {
		merged[k] = v
	}
	return merged
}
