package client

import (
	"math"
	"math/rand"
	"time"
)

type BackoffType string

const (
	BackoffNone      BackoffType = "none"
	BackoffFixed     BackoffType = "fixed"
	BackoffExp       BackoffType = "exp"
	BackoffExpJitter BackoffType = "exp-jitter"
)

// RetryPolicy is the delay applied before each reconnect attempt.
type RetryPolicy struct {
	Type   BackoffType
	Base   time.Duration
	Cap    time.Duration
	Factor float64
}

// DefaultRetryPolicy starts at 1s and doubles up to 30s.
var DefaultRetryPolicy = RetryPolicy{Type: BackoffExpJitter, Base: time.Second, Cap: 30 * time.Second, Factor: 2}

// computeBackoff returns the delay before attempt (1-based).
func computeBackoff(pol RetryPolicy, attempts uint32) time.Duration {
	if attempts == 0 {
		attempts = 1
	}
	switch pol.Type {
	case BackoffNone:
		return 0
	case BackoffFixed:
		if pol.Base <= 0 {
			return 0
		}
		if pol.Cap > 0 && pol.Base > pol.Cap {
			return pol.Cap
		}
		return pol.Base
	case BackoffExp, BackoffExpJitter:
		base := pol.Base
		if base <= 0 {
			base = 200 * time.Millisecond
		}
		factor := pol.Factor
		if factor <= 0 {
			factor = 2.0
		}
		delay := float64(base) * math.Pow(factor, float64(attempts-1))
		d := time.Duration(delay)
		if delay >= float64(math.MaxInt64) {
			d = time.Duration(math.MaxInt64)
		}
		if pol.Cap > 0 && d > pol.Cap {
			d = pol.Cap
		}
		if pol.Type == BackoffExpJitter {
			if d <= 0 {
				return 0
			}
			// jitter within [d/2, d]
			half := d / 2
			return half + time.Duration(rand.Int63n(int64(d-half)+1))
		}
		return d
	default:
		return pol.Base
	}
}
