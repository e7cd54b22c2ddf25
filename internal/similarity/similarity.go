// Package similarity compares rendered archive entries.
//
// Two predicates are exposed and they intentionally disagree at the edges:
// Detected is the diagnostic used for logging (threshold <= ratio < 0.99),
// IsDuplicate is the decision used for suppression (ratio > threshold).
package similarity

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// DefaultThreshold is the ratio above which two entries are duplicates.
	DefaultThreshold = 0.9

	// nearIdentical is the upper bound of the diagnostic band.
	nearIdentical = 0.99
)

// Ratio returns the matching-blocks ratio 2*M/T between a and b, computed over
// Unicode code points and rounded to 4 decimal places.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(split(a), split(b))
	return round4(m.Ratio())
}

// Detected reports whether ratio falls in the "looks like a duplicate" band
// used for diagnostics only.
func Detected(ratio, threshold float64) bool {
	return ratio >= threshold && ratio < nearIdentical
}

// IsDuplicate reports whether ratio is high enough to suppress an entry.
func IsDuplicate(ratio, threshold float64) bool {
	return ratio > threshold
}

// Comparison is the outcome of comparing two entries.
// When Pruned is set, Ratio is an upper bound rather than the exact ratio.
type Comparison struct {
	Ratio     float64
	Detected  bool
	Duplicate bool
	Pruned    bool
}

// Matcher compares entries against a fixed threshold.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a Matcher, using DefaultThreshold when threshold is not in (0, 1].
func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Compare computes the ratio between a new entry and an existing one.
//
// The cheap upper bounds from difflib are checked first; when they already
// prove the ratio is below the threshold neither predicate can fire and the
// full block matching is skipped.
func (m Matcher) Compare(candidate, existing string) Comparison {
	if candidate == existing {
		return m.classify(1)
	}

	sm := difflib.NewMatcher(split(candidate), split(existing))
	if bound := round4(sm.RealQuickRatio()); bound < m.Threshold {
		return Comparison{Ratio: bound, Pruned: true}
	}
	if bound := round4(sm.QuickRatio()); bound < m.Threshold {
		return Comparison{Ratio: bound, Pruned: true}
	}
	return m.classify(round4(sm.Ratio()))
}

// Duplicate is shorthand for Compare(candidate, existing).Duplicate.
func (m Matcher) Duplicate(candidate, existing string) bool {
	return m.Compare(candidate, existing).Duplicate
}

func (m Matcher) classify(ratio float64) Comparison {
	return Comparison{
		Ratio:     ratio,
		Detected:  Detected(ratio, m.Threshold),
		Duplicate: IsDuplicate(ratio, m.Threshold),
	}
}

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "")
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
