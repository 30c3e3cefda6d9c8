package publish

import (
	"time"

	"github.com/HyphaGroup/pubctl/internal/backchannel"
)

// Activity is one activity event as sent by the worker
type Activity = backchannel.Activity

// ActivityState is the display state of a tracked activity
type ActivityState int

const (
	StateRunning ActivityState = iota
	StateSucceeded
	StateFailed
)

func (s ActivityState) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "running"
	}
}

// TrackedActivity is an activity as last observed on the stream
type TrackedActivity struct {
	ID         string
	StatusText string
	State      ActivityState
	StartedAt  time.Time
	EndedAt    time.Time
}

// Finished reports whether the activity completed successfully. A failed
// activity is not finished: it never reached 100%.
func (a TrackedActivity) Finished() bool {
	return a.State == StateSucceeded
}

// Elapsed is the time from first observation to completion, or to now
// while the activity is running.
func (a TrackedActivity) Elapsed(now time.Time) time.Duration {
	if !a.EndedAt.IsZero() {
		return a.EndedAt.Sub(a.StartedAt)
	}
	return now.Sub(a.StartedAt)
}

// ProgressTracker maps activity ids to their state in order of first
// observation. It is owned by a single consumption loop and is not safe
// for concurrent use.
type ProgressTracker struct {
	order []string
	items map[string]*TrackedActivity
	now   func() time.Time
}

// NewProgressTracker creates an empty tracker
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		items: make(map[string]*TrackedActivity),
		now:   time.Now,
	}
}

// Upsert applies one stream event and returns the updated activity
func (t *ProgressTracker) Upsert(a Activity) TrackedActivity {
	now := t.now()
	item, ok := t.items[a.ID]
	if !ok {
		item = &TrackedActivity{ID: a.ID, StartedAt: now}
		t.items[a.ID] = item
		t.order = append(t.order, a.ID)
	}

	item.StatusText = a.StatusText
	switch {
	case a.IsError:
		item.State = StateFailed
		item.EndedAt = now
	case a.IsComplete:
		item.State = StateSucceeded
		item.EndedAt = now
	}
	return *item
}

// Len returns the number of distinct activities seen
func (t *ProgressTracker) Len() int {
	return len(t.order)
}

// Get returns the activity with id
func (t *ProgressTracker) Get(id string) (TrackedActivity, bool) {
	item, ok := t.items[id]
	if !ok {
		return TrackedActivity{}, false
	}
	return *item, true
}

// Activities returns a snapshot in order of first observation
func (t *ProgressTracker) Activities() []TrackedActivity {
	out := make([]TrackedActivity, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.items[id])
	}
	return out
}

// AllFinished reports whether every tracked activity completed
// successfully. It is true for an empty tracker.
func (t *ProgressTracker) AllFinished() bool {
	for _, item := range t.items {
		if !item.Finished() {
			return false
		}
	}
	return true
}

// Unfinished returns the ids of activities that did not complete
func (t *ProgressTracker) Unfinished() []string {
	var ids []string
	for _, id := range t.order {
		if !t.items[id].Finished() {
			ids = append(ids, id)
		}
	}
	return ids
}
