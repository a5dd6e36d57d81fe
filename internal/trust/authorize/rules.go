package authorize

import (
	"fmt"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/constraints"
	"github.com/cyphera/trust-engine/internal/trust/faults"
)

// evaluate runs the decision procedure in its fixed order and returns the
// first violation, or nil when every rule passes. The order is part of the
// engine's contract: validity window, currency, merchant lists, category
// lists, per-transaction amount, then the daily/weekly/total budgets.
func evaluate(req *TransactionRequest, effective *constraints.DelegationConstraints, usage *UsageSnapshot, now time.Time) *faults.ConstraintViolation {
	if v := checkWindow(effective.Window, now); v != nil {
		return v
	}

	if effective.AllowedCurrencies != nil && !containsString(effective.AllowedCurrencies, req.Currency) {
		return &faults.ConstraintViolation{
			Rule:      "allowedCurrencies",
			Limit:     fmt.Sprintf("%v", effective.AllowedCurrencies),
			Requested: req.Currency,
		}
	}

	if containsString(effective.DeniedMerchants, req.MerchantID) {
		return &faults.ConstraintViolation{
			Rule:      "deniedMerchants",
			Limit:     req.MerchantID,
			Requested: req.MerchantID,
		}
	}
	if effective.AllowedMerchants != nil && !containsString(effective.AllowedMerchants, req.MerchantID) {
		return &faults.ConstraintViolation{
			Rule:      "allowedMerchants",
			Limit:     fmt.Sprintf("%v", effective.AllowedMerchants),
			Requested: req.MerchantID,
		}
	}

	if req.MerchantCategory != "" {
		if containsString(effective.DeniedCategories, req.MerchantCategory) {
			return &faults.ConstraintViolation{
				Rule:      "deniedCategories",
				Limit:     req.MerchantCategory,
				Requested: req.MerchantCategory,
			}
		}
	}
	if effective.AllowedCategories != nil && !containsString(effective.AllowedCategories, req.MerchantCategory) {
		return &faults.ConstraintViolation{
			Rule:      "allowedCategories",
			Limit:     fmt.Sprintf("%v", effective.AllowedCategories),
			Requested: req.MerchantCategory,
		}
	}

	if effective.MaxAmount != nil && req.Amount > *effective.MaxAmount {
		return &faults.ConstraintViolation{
			Rule:      "maxAmount",
			Limit:     fmt.Sprintf("%d", *effective.MaxAmount),
			Requested: fmt.Sprintf("%d", req.Amount),
		}
	}
	if effective.MaxDailySpend != nil && usage.DailySpent+req.Amount > *effective.MaxDailySpend {
		return &faults.ConstraintViolation{
			Rule:      "maxDailySpend",
			Limit:     fmt.Sprintf("%d", *effective.MaxDailySpend),
			Requested: fmt.Sprintf("%d", usage.DailySpent+req.Amount),
		}
	}
	if effective.MaxWeeklySpend != nil && usage.WeeklySpent+req.Amount > *effective.MaxWeeklySpend {
		return &faults.ConstraintViolation{
			Rule:      "maxWeeklySpend",
			Limit:     fmt.Sprintf("%d", *effective.MaxWeeklySpend),
			Requested: fmt.Sprintf("%d", usage.WeeklySpent+req.Amount),
		}
	}
	if effective.MaxTotalSpend != nil && usage.TotalSpent+req.Amount > *effective.MaxTotalSpend {
		return &faults.ConstraintViolation{
			Rule:      "maxTotalSpend",
			Limit:     fmt.Sprintf("%d", *effective.MaxTotalSpend),
			Requested: fmt.Sprintf("%d", usage.TotalSpent+req.Amount),
		}
	}

	return nil
}

// checkWindow enforces the merged validity window in its declared timezone
// (UTC when unset or unloadable).
func checkWindow(window *constraints.ValidityWindow, now time.Time) *faults.ConstraintViolation {
	if window == nil {
		return nil
	}

	if window.ValidFrom != nil && now.Before(*window.ValidFrom) {
		return &faults.ConstraintViolation{
			Rule:      "window.validFrom",
			Limit:     window.ValidFrom.UTC().Format(time.RFC3339),
			Requested: now.UTC().Format(time.RFC3339),
		}
	}
	if window.ValidUntil != nil && !now.Before(*window.ValidUntil) {
		return &faults.ConstraintViolation{
			Rule:      "window.validUntil",
			Limit:     window.ValidUntil.UTC().Format(time.RFC3339),
			Requested: now.UTC().Format(time.RFC3339),
		}
	}

	local := now.UTC()
	if window.Timezone != "" {
		if loc, err := time.LoadLocation(window.Timezone); err == nil {
			local = now.In(loc)
		}
	}

	if len(window.DaysOfWeek) > 0 && !containsWeekday(window.DaysOfWeek, local.Weekday()) {
		return &faults.ConstraintViolation{
			Rule:      "window.daysOfWeek",
			Limit:     fmt.Sprintf("%v", window.DaysOfWeek),
			Requested: local.Weekday().String(),
		}
	}

	hour := local.Hour()
	if window.HourStart != nil && hour < *window.HourStart {
		return &faults.ConstraintViolation{
			Rule:      "window.hourStart",
			Limit:     fmt.Sprintf("%d", *window.HourStart),
			Requested: fmt.Sprintf("%d", hour),
		}
	}
	if window.HourEnd != nil && hour > *window.HourEnd {
		return &faults.ConstraintViolation{
			Rule:      "window.hourEnd",
			Limit:     fmt.Sprintf("%d", *window.HourEnd),
			Requested: fmt.Sprintf("%d", hour),
		}
	}

	return nil
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func containsWeekday(list []time.Weekday, day time.Weekday) bool {
	for _, d := range list {
		if d == day {
			return true
		}
	}
	return false
}
