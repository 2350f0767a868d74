package retry

import "time"

// Clock abstracts wall time so scheduler tests can advance virtual time
// instead of sleeping on real timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Backoff computes the delay before the given attempt is retried. The
// exponent is the already-incremented attempt count, so the first scheduled
// delay is twice the base (2min, then 4min, then 8min with a 60s base).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base * time.Duration(1<<uint(attempt))
}
