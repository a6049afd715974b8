package chainsync

import (
	"math/rand"
	"time"
)

// backoff computes exponential retry delays with jitter. Not safe for
// concurrent use; each retry loop owns its own instance.
type backoff struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &backoff{min: min, max: max}
}

// Next returns the delay to wait before the next attempt, doubling each call
// up to the maximum. Jitter of up to 25% is added so synchronized wallets
// don't hammer a recovering node in lockstep.
func (b *backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.min
	} else {
		b.current *= 2
		if b.current > b.max {
			b.current = b.max
		}
	}
	jitter := time.Duration(rand.Int63n(int64(b.current)/4 + 1))
	return b.current + jitter
}

// Reset clears the delay after a successful attempt.
func (b *backoff) Reset() {
	b.current = 0
}
