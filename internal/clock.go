package internal

import "time"

// Timer is a pending callback scheduled by a Clock.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call stopped it.
	Stop() bool
}

// Clock schedules the callbacks of time-based operators.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

// SystemClock schedules callbacks with time.AfterFunc.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
