package model

type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// TierFor buckets a top confidence given in percent. Both thresholds are
// exclusive: 90 is Medium, 70 is Low.
func TierFor(percent float64) Tier {
	switch {
	case percent > 90:
		return TierHigh
	case percent > 70:
		return TierMedium
	default:
		return TierLow
	}
}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}
