package domain

import "time"

// Clock abstracts the wall clock so maturity and cache expiry can be driven in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
