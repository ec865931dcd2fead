package worker

import (
	"math/rand"
	"time"
)

// MaxFixedBackoff bounds the fixed-mode random draw, per spec §4.5.
const MaxFixedBackoff = 3.0

// MaxExpandingBackoff caps the expanding schedule's growth, per spec §4.5.
const MaxExpandingBackoff = 30.0

// Backoff yields successive delays between retries after a no-job, error or
// rate-limit response.
type Backoff interface {
	Next() time.Duration
}

// NewBackoff returns a fixed or expanding Backoff generator depending on the
// configured mode: fixed draws uniformly in [0, MaxFixedBackoff]; expanding
// starts tight and widens its ceiling by one unit per step up to
// MaxExpandingBackoff, per the formula 0.5b + 0.5*b*U(0,1).
func NewBackoff(fixed bool) Backoff {
	if fixed {
		return &fixedBackoff{}
	}
	return &expandingBackoff{b: 1}
}

type fixedBackoff struct{}

func (f *fixedBackoff) Next() time.Duration {
	return durationFromSeconds(rand.Float64() * MaxFixedBackoff)
}

type expandingBackoff struct {
	b float64
}

func (e *expandingBackoff) Next() time.Duration {
	t := 0.5*e.b + 0.5*e.b*rand.Float64()
	e.b = min(e.b+1, MaxExpandingBackoff)
	return durationFromSeconds(t)
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
