package authorize

import (
	"fmt"
	"time"
)

// RiskWeights distributes the composite score across the four factor
// families. Weights should sum to 1; applyDefaults restores the production
// split when all are zero.
type RiskWeights struct {
	Merchant  float64 `json:"merchant"`
	Depth     float64 `json:"depth"`
	Amount    float64 `json:"amount"`
	TimeOfDay float64 `json:"timeOfDay"`
}

// Config tunes the authorization engine. Zero values fall back to the
// production defaults so a bare Config{} behaves sensibly.
type Config struct {
	// ReviewThreshold routes passing transactions with a higher composite
	// score to manual review instead of approval.
	ReviewThreshold int
	// MandateTTL bounds how long an issued mandate stays executable.
	MandateTTL time.Duration
	// Weights splits the composite risk score across factor families.
	Weights RiskWeights
	// NightStartHour and NightEndHour bound the off-hours window (UTC,
	// inclusive) that maximizes the time-of-day factor.
	NightStartHour int
	NightEndHour   int
}

func (c *Config) applyDefaults() {
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = 70
	}
	if c.MandateTTL <= 0 {
		c.MandateTTL = 15 * time.Minute
	}
	if c.Weights == (RiskWeights{}) {
		c.Weights = RiskWeights{Merchant: 0.35, Depth: 0.20, Amount: 0.30, TimeOfDay: 0.15}
	}
	if c.NightEndHour <= 0 {
		c.NightEndHour = 5
	}
}

// RiskFactor is one scored input to the composite, reported so reviewers can
// see why a transaction scored the way it did.
type RiskFactor struct {
	Name   string  `json:"name"`
	Score  int     `json:"score"`
	Weight float64 `json:"weight"`
	Detail string  `json:"detail"`
}

// scoreRisk computes the weighted composite risk score in [0, 100] along
// with the individual factors. Each factor is itself capped at 100 before
// weighting, so no single signal can dominate beyond its weight.
func (e *Engine) scoreRisk(req *TransactionRequest, usage *UsageSnapshot, chainDepth int, now time.Time) (int, []RiskFactor) {
	w := e.config.Weights

	merchant := clampScore(req.MerchantRiskLevel)

	// Every hop of delegation past the root's direct grant adds distance
	// between the principal and the spender.
	depth := clampScore((chainDepth - 1) * 15)

	// Amounts above the chain's historical average scale up; with no history
	// the factor stays neutral.
	amount := 0
	amountDetail := "no spending history for chain"
	if usage.AverageAmount > 0 {
		ratio := float64(req.Amount) / float64(usage.AverageAmount)
		if ratio > 1 {
			amount = clampScore(int((ratio - 1) * 25))
		}
		amountDetail = fmt.Sprintf("amount is %.2fx the chain average", ratio)
	}

	hour := now.UTC().Hour()
	timeOfDay := 0
	timeDetail := fmt.Sprintf("hour %d UTC is within normal hours", hour)
	if hour >= e.config.NightStartHour && hour <= e.config.NightEndHour {
		timeOfDay = 100
		timeDetail = fmt.Sprintf("hour %d UTC is within the off-hours window", hour)
	}

	factors := []RiskFactor{
		{Name: "merchant_risk", Score: merchant, Weight: w.Merchant, Detail: fmt.Sprintf("declared merchant risk level %d", req.MerchantRiskLevel)},
		{Name: "delegation_depth", Score: depth, Weight: w.Depth, Detail: fmt.Sprintf("chain depth %d", chainDepth)},
		{Name: "amount_deviation", Score: amount, Weight: w.Amount, Detail: amountDetail},
		{Name: "time_of_day", Score: timeOfDay, Weight: w.TimeOfDay, Detail: timeDetail},
	}

	composite := 0.0
	for _, f := range factors {
		composite += float64(f.Score) * f.Weight
	}
	return clampScore(int(composite + 0.5)), factors
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
