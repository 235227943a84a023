// Package idle decides when a runtime context has gone quiet: no calls in
// flight across the bridge, nothing queued on the context's queues and no
// view batch waiting to be applied.
package idle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/queue"
)

// DefaultPollInterval is how often bridge idleness is polled within a sample.
const DefaultPollInterval = 5 * time.Millisecond

// Source is the bridge being watched.
type Source interface {
	IsIdle() bool
	IsDestroyed() bool
	Queues() *queue.Config
	AddIdleListener(l bridge.IdleListener)
	RemoveIdleListener(l bridge.IdleListener)
}

// Probe reports whether host instrumentation (animations, pending input)
// is idle.
type Probe func() bool

// Option configures a Detector.
type Option func(*Detector)

// WithProbe adds a host instrumentation idle check to every sample.
func WithProbe(p Probe) Option {
	return func(d *Detector) { d.probe = p }
}

// WithPollInterval sets how often bridge idleness is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.poll = interval
		}
	}
}

// WithClock replaces time.Now for the event log.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector waits for a context to become idle.
type Detector struct {
	src   Source
	probe Probe
	poll  time.Duration
	now   func() time.Time
	log   *EventLog
}

// New creates a detector and subscribes its event log to src. Batch events
// are not wired here; pass Log() to the UI manager.
func New(src Source, opts ...Option) *Detector {
	d := &Detector{src: src, poll: DefaultPollInterval, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	d.log = NewEventLog(d.now)
	src.AddIdleListener(d.log)
	return d
}

// Log returns the event log fed by the bridge and the batch applier.
func (d *Detector) Log() *EventLog {
	return d.log
}

// Close unsubscribes from the bridge.
func (d *Detector) Close() {
	d.src.RemoveIdleListener(d.log)
}

// WaitForIdle blocks until two consecutive samples find the context idle.
// It must not be called on the UI queue, which the samples flush.
func (d *Detector) WaitForIdle(ctx context.Context, timeout time.Duration) error {
	queues := d.src.Queues()
	queues.UI.AssertNotOnQueue("WaitForIdle")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	converged := 0
	for samples := 1; ; samples++ {
		if d.src.IsDestroyed() {
			return errors.Destroyed(errors.PhaseIdle, "context")
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return errors.Timeout(errors.PhaseIdle, "wait for idle", timeout)
			}
			return err
		}
		ok, err := d.sample(ctx, queues)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Timeout(errors.PhaseIdle, "wait for idle", timeout)
			}
			return err
		}
		if !ok {
			converged = 0
			select {
			case <-ctx.Done():
			case <-time.After(d.poll):
			}
			continue
		}
		converged++
		if converged == 2 {
			Logger().Debug("context idle", zap.Int("samples", samples))
			return nil
		}
	}
}

// sample waits for the bridge to go idle and for every queue to run what
// it holds, concurrently, then checks what happened meanwhile.
func (d *Detector) sample(ctx context.Context, queues *queue.Config) (bool, error) {
	start := d.now()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.waitBridgeIdle(ctx); err != nil {
			fail(err)
		}
	}()
	for _, q := range []*queue.MessageQueue{queues.UI, queues.Runtime, queues.NativeModules} {
		wg.Add(1)
		go func(q *queue.MessageQueue) {
			defer wg.Done()
			if err := flush(ctx, q); err != nil {
				fail(err)
			}
		}(q)
	}
	wg.Wait()
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	end := d.now()
	idle := d.log.IsIdle(start, end) && d.src.IsIdle()
	if idle && d.probe != nil {
		idle = d.probe()
	}
	return idle, nil
}

func (d *Detector) waitBridgeIdle(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for !d.src.IsIdle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func flush(ctx context.Context, q *queue.MessageQueue) error {
	done := make(chan error, 1)
	go func() { done <- q.Flush() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
