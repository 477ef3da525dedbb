package record

import "fmt"

// Tier is the fidelity a file is rendered at. Tiers are totally ordered.
type Tier int

const (
	TierExcluded Tier = iota
	TierPathOnly
	TierSummary
	TierInterface
	TierSkeleton
	TierFull
)

var tierNames = [...]string{
	TierExcluded:  "EXCLUDED",
	TierPathOnly:  "PATH_ONLY",
	TierSummary:   "SUMMARY",
	TierInterface: "INTERFACE",
	TierSkeleton:  "SKELETON",
	TierFull:      "FULL",
}

func (t Tier) String() string {
	if t < TierExcluded || t > TierFull {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier is the inverse of Tier.String.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if name == s {
			return Tier(i), nil
		}
	}
	return TierExcluded, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AllTiers lists tiers from highest to lowest fidelity.
func AllTiers() []Tier {
	return []Tier{TierFull, TierSkeleton, TierInterface, TierSummary, TierPathOnly, TierExcluded}
}
