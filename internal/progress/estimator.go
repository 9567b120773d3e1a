// Package progress turns elapsed time or sub-artifact counts into a bounded
// percentage for jobs whose remote side reports no fine-grained progress.
package progress

import (
	"math"
	"time"
)

const (
	// Floor is the first visible value of a running job
	Floor = 5
	// Ceiling is the highest value reachable without a confirmed completion
	Ceiling = 90

	overshoot = 1.5
)

// Estimate returns an ease-out estimate in [Floor, Ceiling] for a job started
// at startedAt that is expected to take roughly expected.
func Estimate(startedAt, now time.Time, expected time.Duration) int {
	if expected <= 0 {
		return Floor
	}

	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	normalized := math.Min(float64(elapsed)/float64(expected), overshoot)
	t := math.Min(normalized, 1)
	eased := 1 - (1-t)*(1-t)

	return clamp(int(math.Round(Floor + (Ceiling-Floor)*eased)))
}

// FromUnits maps completed/expected sub-artifacts onto [Floor, Ceiling],
// leaving headroom for the post-processing the worker never reports.
func FromUnits(completed, expected int) int {
	if expected <= 0 {
		return Floor
	}
	if completed > expected {
		completed = expected
	}
	if completed < 0 {
		completed = 0
	}
	return clamp(int(math.Round(float64(completed)/float64(expected)*90 + 5)))
}

func clamp(p int) int {
	if p < Floor {
		return Floor
	}
	if p > Ceiling {
		return Ceiling
	}
	return p
}
