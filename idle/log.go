package idle

import (
	"sync"
	"time"
)

type eventKind uint8

const (
	eventBusy eventKind = iota
	eventIdle
	eventBatchEnqueued
	eventBatchFinished
)

type event struct {
	kind  eventKind
	at    time.Time
	batch int64
}

// EventLog records bridge busy/idle transitions and batch events so a frame
// can be checked for runtime-driven UI work after the fact. It implements
// bridge.IdleListener and uimanager.BatchEventListener.
type EventLog struct {
	now func() time.Time

	mu     sync.Mutex
	events []event
	// state at the end of the last query window
	wasIdle bool
}

// NewEventLog creates an empty log. now defaults to time.Now.
func NewEventLog(now func() time.Time) *EventLog {
	if now == nil {
		now = time.Now
	}
	return &EventLog{now: now, wasIdle: true}
}

func (l *EventLog) record(kind eventKind, batch int64) {
	l.mu.Lock()
	l.events = append(l.events, event{kind: kind, at: l.now(), batch: batch})
	l.mu.Unlock()
}

func (l *EventLog) OnTransitionToBridgeBusy() { l.record(eventBusy, 0) }
func (l *EventLog) OnTransitionToBridgeIdle() { l.record(eventIdle, 0) }
func (l *EventLog) OnBatchEnqueued(id int64)  { l.record(eventBatchEnqueued, id) }
func (l *EventLog) OnBatchFinished(id int64)  { l.record(eventBatchFinished, id) }

// Len returns the number of retained events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func within(e event, start, end time.Time) bool {
	return !e.at.Before(start) && !e.at.After(end)
}

// endedIdle reports whether the bridge was idle at end, judged by the last
// transition inside the window. Callers hold mu.
func (l *EventLog) endedIdle(start, end time.Time) bool {
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if !within(e, start, end) {
			continue
		}
		switch e.kind {
		case eventIdle:
			return true
		case eventBusy:
			return false
		}
	}
	return l.wasIdle
}

// trim drops events before end. Callers hold mu.
func (l *EventLog) trim(end time.Time) {
	keep := l.events[:0]
	for _, e := range l.events {
		if !e.at.Before(end) {
			keep = append(keep, e)
		}
	}
	for i := len(keep); i < len(l.events); i++ {
		l.events[i] = event{}
	}
	l.events = keep
}

// IsIdle reports whether the window [start, end] ended with the bridge idle
// and every batch enqueued in the window also finished in it. Events before
// end are discarded afterwards.
func (l *EventLog) IsIdle(start, end time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idle := l.endedIdle(start, end)
	enqueued := make(map[int64]bool)
	for _, e := range l.events {
		if !within(e, start, end) {
			continue
		}
		switch e.kind {
		case eventBatchEnqueued:
			enqueued[e.batch] = true
		case eventBatchFinished:
			delete(enqueued, e.batch)
		}
	}

	l.wasIdle = idle
	l.trim(end)
	return idle && len(enqueued) == 0
}

// HitThisFrame reports whether the runtime kept up in the frame
// [start, end]: a batch finished in it, or the frame ended idle without a
// batch being enqueued. Events before end are discarded afterwards.
func (l *EventLog) HitThisFrame(start, end time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var finished, enqueued bool
	for _, e := range l.events {
		if !within(e, start, end) {
			continue
		}
		switch e.kind {
		case eventBatchFinished:
			finished = true
		case eventBatchEnqueued:
			enqueued = true
		}
	}
	idle := l.endedIdle(start, end)

	l.wasIdle = idle
	l.trim(end)
	if finished {
		return true
	}
	return idle && !enqueued
}
