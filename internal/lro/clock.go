package lro

import "time"

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// Clock schedules f to run after d.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules on the runtime timer.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
