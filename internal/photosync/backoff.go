package photosync

import "time"

const (
	backoffBase   = 5 * time.Second
	backoffMax    = time.Hour
	backoffMaxExp = 12
)

// Backoff computes the capped exponential delay before the next upload
// attempt. For retryCount >= 1 the delay is base * 2^(retryCount-1) with
// the exponent capped at 12 and the result clamped to one hour; a retry
// count of zero gets the base delay.
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		return backoffBase
	}
	exp := retryCount - 1
	if exp > backoffMaxExp {
		exp = backoffMaxExp
	}
	d := backoffBase * time.Duration(1<<exp)
	if d > backoffMax {
		d = backoffMax
	}
	return d
}
