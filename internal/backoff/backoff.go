package backoff

import (
	"math"
	"math/rand"
	"time"
)

type Policy string

const (
	Fixed          Policy = "fixed"
	Linear         Policy = "linear"
	Exponential    Policy = "exponential"
	ExpEqualJitter Policy = "exp_equal_jitter"
	ExpFullJitter  Policy = "exp_full_jitter"
)

// Compute returns the delay before the next attempt. attempts counts the
// attempts already made and is expected to be >= 0. Unknown policies
// behave like ExpFullJitter.
func Compute(policy Policy, base time.Duration, max time.Duration, attempts int, rng *rand.Rand) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case Fixed:
		return minDuration(base, max)
	case Linear:
		return minDuration(base*time.Duration(maxInt(1, attempts)), max)
	case Exponential:
		return exp(base, max, attempts)
	case ExpEqualJitter:
		d := exp(base, max, attempts)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(d-half)+1))
	default:
		d := exp(base, max, attempts)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}

// exp is base*2^attempts capped at max, computed in float64 so large
// attempt counts cannot overflow.
func exp(base, max time.Duration, attempts int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempts))
	if f >= float64(max) {
		return max
	}
	return time.Duration(f)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
