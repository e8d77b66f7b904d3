package domain

import "time"

// Clock abstracts time so cache expiry and timestamps can be tested
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
