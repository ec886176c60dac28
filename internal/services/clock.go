package services

import "time"

// Clock abstracts the current time so sweeps can be driven in tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock {
	return systemClock{}
}
