package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	return ExponentialBackoffWithMaxElapsed(initialInterval, maxInterval, 0, multiplier)
}

// ExponentialBackoffWithMaxElapsed gives up after maxElapsed; zero means
// never.
func ExponentialBackoffWithMaxElapsed(initialInterval, maxInterval, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if initialInterval > 0 {
		exp.InitialInterval = initialInterval
	}
	if maxInterval > 0 {
		exp.MaxInterval = maxInterval
	}
	if multiplier > 0 {
		exp.Multiplier = multiplier
	}
	exp.MaxElapsedTime = maxElapsed
	exp.Reset()
	return exp
}

func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
