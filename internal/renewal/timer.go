// Package renewal schedules the proactive renewal of the access token.
package renewal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// MinDelay is the shortest delay a renewal can be scheduled with
const MinDelay time.Duration = time.Millisecond

// Timer holds at most one outstanding one-shot callback, arming it again replaces the previous one.
type Timer interface {
	Arm(delay time.Duration, fn func()) error
	Cancel()
	Stop()
}

var ErrTimerStopped = errors.New("the renewal timer is stopped")

// GocronTimer is a Timer that runs the callback as a single-run gocron job
type GocronTimer struct {
	scheduler *gocron.Scheduler
	lock      sync.Mutex
	job       *gocron.Job
	// generation identifies the armed callback, a callback from an older generation does not clear job
	generation uint64
	armed      time.Time
	delay      time.Duration
	stopped    bool
}

func NewGocronTimer() *GocronTimer {
	s := gocron.NewScheduler(time.UTC)
	s.StartAsync()
	return &GocronTimer{scheduler: s}
}

// Arm cancels any pending callback and schedules fn to run once after delay
func (t *GocronTimer) Arm(delay time.Duration, fn func()) error {
	delay = Clamp(delay)
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stopped {
		return ErrTimerStopped
	}
	t.cancel()
	t.generation++
	generation := t.generation
	job, err := t.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(func() {
		t.fired(generation)
		fn()
	})
	if err != nil {
		return fmt.Errorf("cannot schedule the renewal: %w", err)
	}
	t.job = job
	t.armed = time.Now()
	t.delay = delay
	slog.Debug("RENEWAL TIMER", "message", "renewal armed", "delay", delay)
	return nil
}

// fired forgets the job once its callback starts, the callback itself may arm the next one
func (t *GocronTimer) fired(generation uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.generation == generation {
		t.job = nil
	}
}

// Cancel removes the pending callback if there is one
func (t *GocronTimer) Cancel() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.cancel()
}

func (t *GocronTimer) cancel() {
	if t.job == nil {
		return
	}
	t.scheduler.RemoveByReference(t.job)
	t.job = nil
	slog.Debug("RENEWAL TIMER", "message", "renewal cancelled")
}

// Due returns when the last armed callback runs, false when nothing is armed
func (t *GocronTimer) Due() (time.Time, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.job == nil {
		return time.Time{}, false
	}
	return t.armed.Add(t.delay), true
}

// Stop cancels the pending callback and shuts the scheduler down, waiting for a running callback.
// Arm fails from then on, so a running callback cannot schedule another one.
func (t *GocronTimer) Stop() {
	t.lock.Lock()
	if t.stopped {
		t.lock.Unlock()
		return
	}
	t.stopped = true
	t.cancel()
	t.lock.Unlock()
	t.scheduler.Stop()
}

// Clamp turns negative or sub-millisecond delays into the shortest schedulable delay
func Clamp(delay time.Duration) time.Duration {
	if delay < MinDelay {
		return MinDelay
	}
	return delay
}
