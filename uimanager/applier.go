package uimanager

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/queue"
)

// BatchListener observes a batch before or after it is applied.
type BatchListener func(b *Batch)

// BatchEventListener receives idle instrumentation events.
type BatchEventListener interface {
	OnBatchEnqueued(id int64)
	OnBatchFinished(id int64)
}

// Applier collects operations and applies them to the hierarchy in
// batches. Operations are only ever applied here, each batch as one UI
// queue task, in batch ID order.
type Applier struct {
	ui        *queue.MessageQueue
	hierarchy *Hierarchy
	onError   func(error)

	mu      sync.Mutex
	pending []Operation
	lastID  int64
	will    []BatchListener
	did     []BatchListener
	events  []BatchEventListener

	applied atomic.Int64
}

func newApplier(ui *queue.MessageQueue, h *Hierarchy, onError func(error)) *Applier {
	return &Applier{ui: ui, hierarchy: h, onError: onError}
}

// Enqueue adds op to the pending batch.
func (a *Applier) Enqueue(op Operation) {
	a.mu.Lock()
	a.pending = append(a.pending, op)
	a.mu.Unlock()
}

// Pending returns the number of operations waiting for the next batch.
func (a *Applier) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Applied returns the number of batches applied so far.
func (a *Applier) Applied() int64 {
	return a.applied.Load()
}

// LastBatchID returns the ID of the most recently dispatched batch.
func (a *Applier) LastBatchID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastID
}

func (a *Applier) AddWillApplyBatchListener(l BatchListener) {
	a.mu.Lock()
	a.will = append(a.will, l)
	a.mu.Unlock()
}

func (a *Applier) AddDidApplyBatchListener(l BatchListener) {
	a.mu.Lock()
	a.did = append(a.did, l)
	a.mu.Unlock()
}

func (a *Applier) AddBatchEventListener(l BatchEventListener) {
	a.mu.Lock()
	a.events = append(a.events, l)
	a.mu.Unlock()
}

// DispatchBatch turns the pending operations into a batch and schedules it
// on the UI queue. It returns false when nothing was pending.
//
// The lock is held until the batch is on the UI queue, so batches reach
// the queue in ID order.
func (a *Applier) DispatchBatch() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return 0, false
	}
	a.lastID++
	b := &Batch{ID: a.lastID, Operations: a.pending}
	a.pending = nil

	for _, l := range a.will {
		l(b)
	}
	events := append([]BatchEventListener(nil), a.events...)
	did := append([]BatchListener(nil), a.did...)
	for _, l := range events {
		l.OnBatchEnqueued(b.ID)
	}

	ok := a.ui.Run(func() {
		a.apply(b)
		a.applied.Add(1)
		for _, l := range did {
			l(b)
		}
		for _, l := range events {
			l.OnBatchFinished(b.ID)
		}
	})
	if !ok {
		Logger().Warn("UI queue closed, batch dropped", zap.Int64("batch", b.ID))
		for _, l := range events {
			l.OnBatchFinished(b.ID)
		}
	}
	return b.ID, true
}

func (a *Applier) apply(b *Batch) {
	for _, op := range b.Operations {
		if err := op.apply(a.hierarchy); err != nil {
			Logger().Debug("operation failed",
				zap.Int64("batch", b.ID),
				zap.Stringer("op", op),
				zap.Error(err))
			if a.onError != nil {
				a.onError(err)
			}
		}
	}
}
