package behavior

import (
	"fmt"
	"math/rand"
	"time"
)

// Default think-time bounds.
const (
	DefaultThinkMin = 1 * time.Second
	DefaultThinkMax = 3 * time.Second
)

// WaitTime returns the pause to take after an action.
type WaitTime func(rng *rand.Rand) time.Duration

// Between returns a WaitTime sampling uniformly in [min, max].
func Between(min, max time.Duration) (WaitTime, error) {
	if min < 0 || max < 0 {
		return nil, fmt.Errorf("behavior: think time bounds must be non-negative, got %v..%v", min, max)
	}
	if min > max {
		return nil, fmt.Errorf("behavior: think time min %v exceeds max %v", min, max)
	}
	span := int64(max - min)
	return func(rng *rand.Rand) time.Duration {
		if span == 0 {
			return min
		}
		return min + time.Duration(rng.Int63n(span+1))
	}, nil
}

// Constant always waits d.
func Constant(d time.Duration) WaitTime {
	return func(*rand.Rand) time.Duration { return d }
}
