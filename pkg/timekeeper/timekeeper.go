// Package timekeeper provides a pausable stopwatch for measuring how long
// maintenance rounds take.
package timekeeper

import (
	"fmt"
	"time"
)

type ElapsingStatus int

const (
	Running ElapsingStatus = 1
	Pause   ElapsingStatus = 2
)

type Elapsing struct {
	// time.Now carries the monotonic clock, so deltas are safe across
	// wall clock adjustments
	checkpoint time.Time

	carryOn time.Duration

	status ElapsingStatus
}

func NewElapsing() *Elapsing {
	return &Elapsing{
		checkpoint: time.Now(),
		status:     Running,
	}
}

func (e *Elapsing) Pause() error {
	if e.status == Pause {
		return fmt.Errorf("elapsing is pause already")
	}

	e.carryOn = e.Report()
	e.status = Pause

	return nil
}

func (e *Elapsing) Resume() error {
	if e.status != Pause {
		return fmt.Errorf("elapsing is not pause")
	}

	e.checkpoint = time.Now()
	e.status = Running

	return nil
}

func (e *Elapsing) Reset() error {
	e.status = Running
	e.carryOn = 0
	e.checkpoint = time.Now()

	return nil
}

// Report returns the time accumulated since the last Report or Reset and
// starts a new measurement interval.
func (e *Elapsing) Report() time.Duration {
	if e.status == Pause {
		return time.Duration(0)
	}

	now := time.Now()
	total := now.Sub(e.checkpoint) + e.carryOn

	e.carryOn = time.Duration(0)
	e.checkpoint = now

	return total
}
