// Package score turns crowd votes into a worthiness score and adjusts it for recency.
package score

import (
	"strings"
	"time"
)

// Sentinel marks an item that was voted down without a single up vote.
// Ranked output never contains it.
const Sentinel = -10.0

// Votes is the pair of crowd counters read from an article page.
type Votes struct {
	Valuable   int
	Unvaluable int
}

// Raw converts vote counters into a score.
//
// Mixed votes land on a 0-10 scale proportional to the positive share.
// Unanimous positive votes score 10+valuable, which is unbounded on purpose:
// a story with many unanimous up votes outranks one with few.
func Raw(valuable, unvaluable int) float64 {
	total := valuable + unvaluable
	switch {
	case total == 0:
		return 0
	case valuable == 0:
		return Sentinel
	case unvaluable == 0:
		return 10 + float64(valuable)
	default:
		return float64(valuable) / float64(total) * 10
	}
}

// FromVotes is Raw for a Votes value.
func FromVotes(v Votes) float64 {
	return Raw(v.Valuable, v.Unvaluable)
}

// Decay multiplies score by the recency factor for an item published at published.
//
//	age <= 1h        x1.5
//	1h < age <= 3h   x1.2
//	age > 24h        x0.8
//	otherwise        x1
func Decay(score float64, published, now time.Time) float64 {
	age := now.Sub(published)
	switch {
	case age <= time.Hour:
		return score * 1.5
	case age <= 3*time.Hour:
		return score * 1.2
	case age > 24*time.Hour:
		return score * 0.8
	default:
		return score
	}
}

// Adjust applies Decay when ok is set and returns score untouched otherwise.
// ok is false when the publication time was missing or did not parse.
func Adjust(score float64, published time.Time, ok bool, now time.Time) float64 {
	if !ok {
		return score
	}
	return Decay(score, published, now)
}

// Layouts accepted by ParseTimestamp, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006年01月02日 15:04",
	"2006年1月2日 15:04",
	time.RFC3339,
}

// ParseTimestamp parses a publication time as found on article pages.
// Zone-less layouts are interpreted in loc (UTC when loc is nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
