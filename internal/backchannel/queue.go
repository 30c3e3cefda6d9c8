package backchannel

import (
	"sync"
)

/*
ACTIVITY QUEUE - ORDERED HANDOFF FROM NOTIFICATIONS TO THE CONSUMER

Activity notifications may reach the client handler out of order, so every
event carries a sequence number and the queue releases events strictly in
sequence order.

    notifications ──push──▶ pending[seq] ──(seq == next)──▶ ready ──take──▶ consumer

    - next:   sequence number the consumer is waiting for (starts at 1)
    - endSeq: sequence of the end marker once known (0 = unknown)
    - ended:  every event before endSeq has been released
    - closed: the session went away; whatever is ready is still delivered

Duplicates and events at or after endSeq are dropped and counted.

There is one producer side (the MCP notification handler, possibly invoked
from several goroutines) and one consumer goroutine. notify is a 1-buffered
wakeup channel so pushes never block on the consumer.
*/

type activityQueue struct {
	mu      sync.Mutex
	pending map[int64]Activity
	ready   []Activity
	next    int64
	endSeq  int64
	ended   bool
	closed  bool
	dropped int64
	notify  chan struct{}
}

func newActivityQueue() *activityQueue {
	return &activityQueue{
		pending: make(map[int64]Activity),
		next:    1,
		notify:  make(chan struct{}, 1),
	}
}

// push records one event
func (q *activityQueue) push(ev ActivityEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended || q.closed || ev.Sequence < q.next {
		q.dropped++
		return
	}

	if ev.End {
		q.setEndLocked(ev.Sequence)
	} else {
		if q.endSeq > 0 && ev.Sequence >= q.endSeq {
			q.dropped++
			return
		}
		if _, dup := q.pending[ev.Sequence]; dup {
			q.dropped++
			return
		}
		q.pending[ev.Sequence] = ev.Activity()
	}

	q.advanceLocked()
	q.signal()
}

// endAt marks seq as the end marker's sequence when no end marker was seen.
func (q *activityQueue) endAt(seq int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended || q.endSeq > 0 || seq < q.next {
		return
	}
	q.setEndLocked(seq)
	q.advanceLocked()
	q.signal()
}

// close ends the stream after the events already released
func (q *activityQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

// take returns the released events and whether the stream is over.
func (q *activityQueue) take() ([]Activity, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.ready
	q.ready = nil
	return items, q.ended || q.closed
}

// Dropped returns the number of discarded events
func (q *activityQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *activityQueue) setEndLocked(seq int64) {
	q.endSeq = seq
	for s := range q.pending {
		if s >= seq {
			delete(q.pending, s)
			q.dropped++
		}
	}
}

func (q *activityQueue) advanceLocked() {
	for {
		a, ok := q.pending[q.next]
		if !ok {
			break
		}
		delete(q.pending, q.next)
		q.ready = append(q.ready, a)
		q.next++
	}
	if q.endSeq > 0 && q.next == q.endSeq {
		q.ended = true
	}
}

func (q *activityQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
