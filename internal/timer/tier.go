package timer

// Tier classifies how much of a step's budget is left.
type Tier string

const (
	TierNormal   Tier = "normal"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
	TierOvertime Tier = "overtime"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierNormal, TierWarning, TierCritical, TierOvertime:
		return true
	}
	return false
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// Thresholds are the tier boundaries as a percentage of the budget remaining.
type Thresholds struct {
	// WarningPercent: at or below this share remaining the tier is at least
	// warning. Default 20.
	WarningPercent int

	// CriticalPercent: at or below this share remaining the tier is critical.
	// Default 10.
	CriticalPercent int
}

// DefaultThresholds returns the 20% / 10% boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{WarningPercent: 20, CriticalPercent: 10}
}

// Tier classifies remaining seconds against budget.
//
// Boundaries belong to the more severe tier: exactly WarningPercent remaining
// is warning, exactly CriticalPercent is critical. Any negative remainder is
// overtime. A non-positive budget never warns. Integer arithmetic keeps the
// boundaries exact.
func (th Thresholds) Tier(remaining, budget int) Tier {
	if remaining < 0 {
		return TierOvertime
	}
	if budget <= 0 {
		return TierNormal
	}

	scaled := int64(remaining) * 100
	switch {
	case scaled > int64(th.WarningPercent)*int64(budget):
		return TierNormal
	case scaled > int64(th.CriticalPercent)*int64(budget):
		return TierWarning
	default:
		return TierCritical
	}
}
