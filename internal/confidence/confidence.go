// Package confidence maps numeric similarity scores into ordinal confidence
// tiers for human-readable reporting.
package confidence

// Level is an ordinal confidence bucket derived from a percent score.
type Level string

const (
	Low      Level = "LOW"
	Medium   Level = "MEDIUM"
	High     Level = "HIGH"
	VeryHigh Level = "VERY_HIGH"
)

// Ordinal returns the tier's position for ordering comparisons.
func (l Level) Ordinal() int {
	switch l {
	case VeryHigh:
		return 3
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

// Thresholds holds the percent-score cutoffs for each tier. Cutoffs must be
// ordered Medium <= High <= VeryHigh; classification is monotonic in the
// score.
type Thresholds struct {
	VeryHigh float64
	High     float64
	Medium   float64
}

// DefaultThresholds returns the platform's reference cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{VeryHigh: 90.0, High: 75.0, Medium: 60.0}
}

// Classify maps a percent score to its confidence tier.
func (t Thresholds) Classify(score float64) Level {
	switch {
	case score >= t.VeryHigh:
		return VeryHigh
	case score >= t.High:
		return High
	case score >= t.Medium:
		return Medium
	default:
		return Low
	}
}
