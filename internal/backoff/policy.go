// Package backoff provides exponential backoff utilities with jitter for retry logic.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// ComputeRangedBackoff calculates min(maxMs, base*factor^(attempt-1)*jitter)
// where jitter is drawn uniformly from [jitterMin, jitterMax]. This is the
// multiplicative-jitter-range shape the sync engine's retry step needs
// (min(2s, 2^attempt*150ms*jitter[0.85,1.15])).
func ComputeRangedBackoff(baseMs, maxMs float64, factor float64, attempt int, jitterMin, jitterMax float64) time.Duration {
	return ComputeRangedBackoffWithRand(baseMs, maxMs, factor, attempt, jitterMin, jitterMax, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeRangedBackoffWithRand is ComputeRangedBackoff with an injectable
// random value in [0,1) for deterministic tests.
func ComputeRangedBackoffWithRand(baseMs, maxMs, factor float64, attempt int, jitterMin, jitterMax, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := baseMs * math.Pow(factor, exp)
	jitter := jitterMin + (jitterMax-jitterMin)*randomValue
	total := math.Min(maxMs, base*jitter)
	return time.Duration(math.Round(total * float64(time.Millisecond)))
}
