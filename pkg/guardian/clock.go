package guardian

import "time"

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// wallClock is the production Clock, backed by the system clock.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// NewClock returns the production Clock.
func NewClock() Clock { return wallClock{} }
