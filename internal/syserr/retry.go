// internal/syserr/retry.go
package syserr

import "time"

// Retry runs fn up to attempts times with linear backoff: after the n-th
// failure it sleeps n x backoff before trying again. It returns nil on the
// first success, otherwise the last error.
func Retry(attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for n := 1; n <= attempts; n++ {
		last = fn()
		if last == nil {
			return nil
		}
		if n < attempts {
			time.Sleep(time.Duration(n) * backoff)
		}
	}
	return last
}
