package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func NewClock() Clock { return realClock{} }

// Now is truncated to seconds, the precision stored by the repositories.
func (realClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
