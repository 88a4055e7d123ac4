// Package metrics records the activity of the token lifecycle manager.
package metrics

import "time"

type Recorder interface {
	// Attempt counts a finished refresh, authorization or fallback attempt
	Attempt(path string, outcome string)
	Pending(pending bool)
	RenewalArmed(delay time.Duration)
}

// NoopRecorder discards everything
type NoopRecorder struct{}

func (NoopRecorder) Attempt(path string, outcome string) {}

func (NoopRecorder) Pending(pending bool) {}

func (NoopRecorder) RenewalArmed(delay time.Duration) {}
