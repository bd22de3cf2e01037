package httpclient

import (
	"math"
	"time"
)

// Policy is the exponential backoff applied to transient server errors
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultPolicy waits 0.5s, 1s, 2s, 4s between five attempts
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before retry n (1-based): base * multiplier^(n-1)
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1)))
}

// Schedule returns Delay(1)..Delay(MaxAttempts). Only the first
// MaxAttempts-1 are ever slept; the last is the step a further attempt
// would wait.
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for n := 1; n <= p.MaxAttempts; n++ {
		out = append(out, p.Delay(n))
	}
	return out
}

// Retries returns the retry budget after the first attempt
func (p Policy) Retries() int {
	if p.MaxAttempts < 1 {
		return 0
	}
	return p.MaxAttempts - 1
}
