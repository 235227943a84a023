package queue

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// PanicHandler receives panics recovered from queue tasks.
type PanicHandler func(err error)

// MessageQueue is a serial task queue backed by a single goroutine.
// Tasks run in submission order; the queue is unbounded so producers never
// block on consumers.
type MessageQueue struct {
	name    string
	onPanic PanicHandler

	mu      sync.Mutex
	tasks   []func()
	closing bool

	wake chan struct{}
	done chan struct{}

	gid     atomic.Uint64
	pending atomic.Int64
}

// Option configures a MessageQueue.
type Option func(*MessageQueue)

// WithPanicHandler routes recovered task panics to h instead of the log.
func WithPanicHandler(h PanicHandler) Option {
	return func(q *MessageQueue) {
		q.onPanic = h
	}
}

// New starts a queue goroutine.
func New(name string, opts ...Option) *MessageQueue {
	q := &MessageQueue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	started := make(chan struct{})
	go q.loop(started)
	<-started
	return q
}

// Name returns the queue name used in logs and errors.
func (q *MessageQueue) Name() string {
	return q.name
}

func (q *MessageQueue) loop(started chan<- struct{}) {
	q.gid.Store(goroutineID())
	close(started)
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			if q.closing {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		batch := q.tasks
		q.tasks = nil
		q.mu.Unlock()

		for _, task := range batch {
			q.runTask(task)
			q.pending.Add(-1)
		}
	}
}

func (q *MessageQueue) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Panic(errors.PhaseQueue, q.name, r)
			if q.onPanic != nil {
				q.onPanic(err)
				return
			}
			Logger().Error("queue task panicked",
				zap.String("queue", q.name),
				zap.Error(err))
		}
	}()
	task()
}

// Run schedules fn on the queue. It returns false if the queue has quit.
func (q *MessageQueue) Run(fn func()) bool {
	if fn == nil {
		return false
	}
	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.pending.Add(1)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// RunSync runs fn on the queue and waits for it to finish.
// Called from the queue itself, fn runs inline.
func (q *MessageQueue) RunSync(fn func()) error {
	if q.IsOnQueue() {
		fn()
		return nil
	}

	var (
		finished = make(chan struct{})
		panicked any
	)
	ok := q.Run(func() {
		defer close(finished)
		defer func() {
			panicked = recover()
		}()
		fn()
	})
	if !ok {
		return errors.Closed(errors.PhaseQueue, "queue "+q.name)
	}

	select {
	case <-finished:
	case <-q.done:
		// The loop drains before exiting, so finished is closed by now
		// unless the task never ran.
		select {
		case <-finished:
		default:
			return errors.Closed(errors.PhaseQueue, "queue "+q.name)
		}
	}
	if panicked != nil {
		return errors.Panic(errors.PhaseQueue, q.name, panicked)
	}
	return nil
}

// Call runs fn on q and returns its results.
func Call[T any](q *MessageQueue, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	if runErr := q.RunSync(func() {
		result, err = fn()
	}); runErr != nil {
		var zero T
		return zero, runErr
	}
	return result, err
}

// IsOnQueue reports whether the caller runs on the queue goroutine.
func (q *MessageQueue) IsOnQueue() bool {
	id := q.gid.Load()
	return id != 0 && id == goroutineID()
}

// AssertOnQueue panics with a lifecycle misuse error when called off the queue.
func (q *MessageQueue) AssertOnQueue(op string) {
	if !q.IsOnQueue() {
		panic(errors.LifecycleMisuse("%s must run on the %s queue", op, q.name))
	}
}

// AssertNotOnQueue panics with a lifecycle misuse error when called on the queue.
func (q *MessageQueue) AssertNotOnQueue(op string) {
	if q.IsOnQueue() {
		panic(errors.LifecycleMisuse("%s must not run on the %s queue", op, q.name))
	}
}

// Pending returns the number of scheduled tasks that have not finished.
func (q *MessageQueue) Pending() int {
	return int(q.pending.Load())
}

// Flush waits until every task scheduled before the call has run.
func (q *MessageQueue) Flush() error {
	return q.RunSync(func() {})
}

// Quit stops accepting tasks, runs what is already queued and waits for the
// goroutine to exit. Quit from the queue itself does not wait.
func (q *MessageQueue) Quit() {
	q.mu.Lock()
	already := q.closing
	q.closing = true
	q.mu.Unlock()

	if !already {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	if q.IsOnQueue() {
		return
	}
	<-q.done
}

// Done is closed once the queue goroutine has exited.
func (q *MessageQueue) Done() <-chan struct{} {
	return q.done
}
