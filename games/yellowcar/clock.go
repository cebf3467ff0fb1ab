/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import "time"

// Clock is the time source for cooldowns, challenge expiry and event
// timestamps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
