package progress

import (
	"context"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

// Tracker interface defines methods for tracking run progress
type Tracker interface {
	// Reached records that the run entered state.
	Reached(ctx context.Context, state State)
	// Failed records that the step leading out of state failed.
	Failed(ctx context.Context, state State, err error)
}

// LogTracker reports transitions through the context logger.
type LogTracker struct {
	mu    sync.Mutex
	start time.Time
}

// NewLogTracker creates a LogTracker.
func NewLogTracker() *LogTracker {
	return &LogTracker{}
}

// Reached implements Tracker.Reached
func (t *LogTracker) Reached(ctx context.Context, state State) {
	t.mu.Lock()
	if t.start.IsZero() {
		t.start = time.Now()
	}
	elapsed := time.Since(t.start).Round(time.Millisecond)
	t.mu.Unlock()

	log := clog.FromContext(ctx).With("state", state.String(), "elapsed", elapsed.String())
	switch state {
	case Succeeded:
		log.Info("Mirror completed")
	case Failed:
		log.Error("Mirror failed")
	default:
		log.Debug("Reached state")
	}
}

// Failed implements Tracker.Failed
func (t *LogTracker) Failed(ctx context.Context, state State, err error) {
	clog.FromContext(ctx).With("state", state.String()).Errorf("Step failed: %v", err)
}

// Event is one transition seen by a Recorder.
type Event struct {
	State State
	Err   error
}

// Recorder is a Tracker that keeps every transition in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Reached implements Tracker.Reached
func (r *Recorder) Reached(_ context.Context, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{State: state})
}

// Failed implements Tracker.Failed
func (r *Recorder) Failed(_ context.Context, state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{State: state, Err: err})
}

// Events returns a copy of the recorded transitions.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// States returns the states entered, in order, excluding failure reports.
func (r *Recorder) States() []State {
	var states []State
	for _, e := range r.Events() {
		if e.Err == nil {
			states = append(states, e.State)
		}
	}
	return states
}

// Last returns the most recently entered state.
func (r *Recorder) Last() (State, bool) {
	states := r.States()
	if len(states) == 0 {
		return 0, false
	}
	return states[len(states)-1], true
}
