// Package instance manages the runtime context of a host: creating it in
// the background, replacing it on reload, tearing it down, and keeping host
// lifecycle, root views and back presses in step with whichever context is
// current.
//
// Lifecycle calls (CreateInitial, Recreate, root views, host hooks) must be
// made on the host's UI queue. Destroy may be called from anywhere but the
// current context's own queues.
package instance

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/coremodules"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/idle"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/queue"
	"github.com/wippyai/hostbridge/uimanager"
)

// firstRootTag and rootTagStep lay out root tags as 1, 11, 21, ...
const (
	firstRootTag = 1
	rootTagStep  = 10
)

// CreationParams select the executor and bundle of a new context.
type CreationParams struct {
	Executor bridge.ExecutorFactory
	Loader   bridge.BundleLoader
}

func (p CreationParams) valid() bool {
	return p.Executor != nil && p.Loader != nil
}

// Package supplies native modules and view managers to every context.
type Package interface {
	NativeModules() []nativemodule.ModuleSpec
	ViewManagers() []uimanager.ViewManagerSpec
}

// ErrorHandler receives context creation failures and runtime exceptions.
type ErrorHandler func(err error)

// Options configure a Manager.
type Options struct {
	// UI is the host-owned UI queue. Required.
	UI *queue.MessageQueue
	// Config defaults to config.Default().
	Config *config.Config
	// Params are used by CreateInitial and RecreateDefault.
	Params   CreationParams
	Packages []Package

	ErrorHandler ErrorHandler
	// IdleProbe adds host instrumentation to idle detection.
	IdleProbe idle.Probe
	// InitialURL is reported to the runtime as the launch deep link.
	InitialURL string
}

// Manager owns the current runtime context.
type Manager struct {
	ui       *queue.MessageQueue
	cfg      *config.Config
	defaults CreationParams
	onError  ErrorHandler
	probe    idle.Probe
	url      string

	// guards everything below up to the destroy guard
	mu          sync.Mutex
	current     *Context
	ready       chan struct{}
	rootViews   []*RootView
	packages    []Package
	listeners   []func(*Context)
	nextRootTag int
	creating    bool
	pending     *CreationParams
	backHandler func()

	// Destroy raises destroying; creation waits for it to drop to zero.
	destroyMu   sync.Mutex
	destroyCond *sync.Cond
	destroying  int
	generation  atomic.Uint64

	// UI-confined
	started   bool
	observers []StateObserver

	state atomic.Int32
}

// New creates a manager. No context exists until CreateInitial.
func New(opts Options) (*Manager, error) {
	if opts.UI == nil {
		return nil, errors.Configuration(errors.PhaseLifecycle, "manager needs a UI queue")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		ui:          opts.UI,
		cfg:         cfg,
		defaults:    opts.Params,
		onError:     opts.ErrorHandler,
		probe:       opts.IdleProbe,
		url:         opts.InitialURL,
		ready:       make(chan struct{}),
		packages:    append([]Package(nil), opts.Packages...),
		nextRootTag: firstRootTag,
	}
	m.destroyCond = sync.NewCond(&m.destroyMu)
	return m, nil
}

// handleError routes err to the error handler.
func (m *Manager) handleError(err error) {
	if err == nil {
		return
	}
	if m.onError != nil {
		m.onError(err)
		return
	}
	Logger().Error("runtime error", zap.Error(err))
}

// AddPackage adds a provider for contexts created from now on.
func (m *Manager) AddPackage(p Package) {
	m.mu.Lock()
	m.packages = append(m.packages, p)
	m.mu.Unlock()
}

// AddContextInitializedListener registers l to run on the UI queue each
// time a context becomes current.
func (m *Manager) AddContextInitializedListener(l func(*Context)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// AddStateObserver registers o for lifecycle transitions. UI queue only.
func (m *Manager) AddStateObserver(o StateObserver) {
	m.ui.AssertOnQueue("AddStateObserver")
	m.observers = append(m.observers, o)
}

// CurrentContext returns the current context or nil.
func (m *Manager) CurrentContext() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IdleDetector returns the idle detector of the current context or nil.
func (m *Manager) IdleDetector() *idle.Detector {
	if c := m.CurrentContext(); c != nil {
		return c.Idle
	}
	return nil
}

// LifecycleState returns the current lifecycle state. Safe from any
// goroutine.
func (m *Manager) LifecycleState() LifecycleState {
	return LifecycleState(m.state.Load())
}

// HasStartedCreating reports whether CreateInitial ran since the last
// Destroy. UI queue only.
func (m *Manager) HasStartedCreating() bool {
	m.ui.AssertOnQueue("HasStartedCreating")
	return m.started
}

// RootViews returns the attached root views in attachment order.
func (m *Manager) RootViews() []*RootView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*RootView(nil), m.rootViews...)
}

// WaitForContext blocks until a context is current.
func (m *Manager) WaitForContext(ctx context.Context) (*Context, error) {
	for {
		m.mu.Lock()
		cur, ready := m.current, m.ready
		m.mu.Unlock()
		if cur != nil {
			return cur, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CreateInitial starts building the first context with the default
// params. It may be called once until the next Destroy.
func (m *Manager) CreateInitial() error {
	m.ui.AssertOnQueue("CreateInitial")
	if m.started {
		return errors.LifecycleMisuse("CreateInitial called twice; use Recreate")
	}
	if !m.defaults.valid() {
		return errors.Configuration(errors.PhaseLifecycle, "no default executor or bundle loader")
	}
	m.started = true
	m.recreate(m.defaults)
	return nil
}

// RecreateDefault replaces the current context using the default params.
func (m *Manager) RecreateDefault() error {
	return m.Recreate(m.defaults)
}

// Recreate tears down the current context and builds a new one from
// params. While a build is in flight only the most recent params are kept;
// the in-flight build is discarded when it finishes.
func (m *Manager) Recreate(params CreationParams) error {
	m.ui.AssertOnQueue("Recreate")
	if !m.started {
		return errors.LifecycleMisuse("Recreate called before CreateInitial")
	}
	if !params.valid() {
		return errors.Configuration(errors.PhaseLifecycle, "creation params need an executor and a bundle loader")
	}
	m.recreate(params)
	return nil
}

func (m *Manager) recreate(params CreationParams) {
	m.tearDownCurrent()

	m.mu.Lock()
	if m.creating {
		m.pending = &params
		m.mu.Unlock()
		Logger().Debug("creation in flight, params replaced")
		return
	}
	m.creating = true
	m.mu.Unlock()

	go m.create(params)
}

// create runs on the creation goroutine. It builds contexts until one is
// installed or no request is left.
func (m *Manager) create(params CreationParams) {
	for {
		m.waitForDestroy()
		gen := m.generation.Load()

		built, err := m.build(params)
		if err != nil {
			m.handleError(err)
		}

		var next *CreationParams
		runErr := m.ui.RunSync(func() {
			m.mu.Lock()
			next, m.pending = m.pending, nil
			stale := next != nil || gen != m.generation.Load() || built == nil
			m.creating = next != nil
			m.mu.Unlock()

			if built == nil {
				return
			}
			if stale {
				Logger().Debug("discarding superseded context", zap.String("context", built.ID()))
				built.destroy()
				return
			}
			m.install(built)
		})
		if runErr != nil {
			if !errors.Is(runErr, errors.ErrClosed) {
				m.handleError(runErr)
			} else if built != nil {
				built.release()
			}
			m.mu.Lock()
			m.creating = false
			m.mu.Unlock()
			return
		}
		if next == nil {
			return
		}
		params = *next
	}
}

func (m *Manager) waitForDestroy() {
	m.destroyMu.Lock()
	for m.destroying > 0 {
		m.destroyCond.Wait()
	}
	m.destroyMu.Unlock()
}

// build creates and starts a context on the calling goroutine.
func (m *Manager) build(params CreationParams) (*Context, error) {
	m.mu.Lock()
	packages := append([]Package(nil), m.packages...)
	m.mu.Unlock()

	queues := queue.NewConfig(m.ui, m.cfg.QueueSpec(), queue.WithPanicHandler(m.handleError))

	views := lo.FlatMap(packages, func(p Package, _ int) []uimanager.ViewManagerSpec {
		return p.ViewManagers()
	})
	uim, err := uimanager.New(queues, views)
	if err != nil {
		queues.Destroy()
		return nil, err
	}

	exec, err := params.Executor.NewExecutor()
	if err != nil {
		queues.Destroy()
		return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindRuntimeCall, err, "create "+params.Executor.Name()+" executor")
	}

	specs := coremodules.Specs(coremodules.Options{
		UIManager:   uim,
		Display:     m.cfg.Display,
		OnException: m.handleError,
		BackHandler: m.defaultBackHandler,
		InitialURL:  m.url,
		AppState:    m.appState,
	})
	for _, p := range packages {
		specs = append(specs, p.NativeModules()...)
	}

	b, err := bridge.New(bridge.Options{
		Queues:           queues,
		Executor:         exec,
		Loader:           params.Loader,
		Modules:          specs,
		Debug:            m.cfg.Debug,
		ExceptionHandler: bridge.ExceptionHandler(m.handleError),
	})
	if err != nil {
		_ = queues.Runtime.RunSync(func() { _ = exec.Close() })
		queues.Destroy()
		return nil, err
	}

	opts := []idle.Option{idle.WithPollInterval(m.cfg.Idle.PollInterval.Std())}
	if m.probe != nil {
		opts = append(opts, idle.WithProbe(m.probe))
	}
	detector := idle.New(b, opts...)
	uim.AddBatchEventListener(detector.Log())

	c := &Context{Bridge: b, UIManager: uim, Idle: detector, params: params}
	Logger().Info("running bundle",
		zap.String("context", c.ID()),
		zap.String("executor", params.Executor.Name()),
		zap.String("bundle", params.Loader.Description()))

	if err := b.RunBundle(context.Background()); err != nil {
		c.discard(m.ui)
		return nil, err
	}
	return c, nil
}

// install makes c current. UI queue only.
func (m *Manager) install(c *Context) {
	m.mu.Lock()
	m.current = c
	ready := m.ready
	roots := append([]*RootView(nil), m.rootViews...)
	listeners := append(([]func(*Context))(nil), m.listeners...)
	m.mu.Unlock()

	for _, rv := range roots {
		c.runApplication(rv)
	}
	if m.LifecycleState() == Resumed {
		c.Bridge.OnHostResume()
	}
	close(ready)

	Logger().Info("context ready", zap.String("context", c.ID()), zap.Int("root_views", len(roots)))
	for _, l := range listeners {
		l(c)
	}
}

// tearDownCurrent destroys the current context. UI queue only.
func (m *Manager) tearDownCurrent() {
	m.mu.Lock()
	c := m.current
	m.current = nil
	if c != nil {
		m.ready = make(chan struct{})
	}
	roots := append([]*RootView(nil), m.rootViews...)
	m.mu.Unlock()
	if c == nil {
		return
	}

	if m.LifecycleState() == Resumed {
		c.Bridge.OnHostPause()
	}
	for _, rv := range roots {
		c.stopApplication(rv)
	}
	c.destroy()
	Logger().Info("context destroyed", zap.String("context", c.ID()))
}

// Destroy tears down the current context and forgets in-flight requests.
// It is idempotent and returns once teardown is done. It may be called from
// any goroutine except the current context's runtime and native-module
// queues, which the teardown drains.
func (m *Manager) Destroy() {
	if c := m.CurrentContext(); c != nil {
		for _, q := range c.Bridge.Queues().NonUI() {
			q.AssertNotOnQueue("Destroy")
		}
	}

	m.destroyMu.Lock()
	m.destroying++
	m.destroyMu.Unlock()
	m.generation.Add(1)

	defer func() {
		m.destroyMu.Lock()
		m.destroying--
		m.destroyCond.Broadcast()
		m.destroyMu.Unlock()
	}()

	err := m.ui.RunSync(func() {
		m.moveToBeforeCreate()
		m.tearDownCurrent()
		m.started = false
		m.mu.Lock()
		m.pending = nil
		m.backHandler = nil
		m.mu.Unlock()
	})
	if err != nil {
		Logger().Warn("destroy skipped", zap.Error(err))
	}
}

// AttachRootView registers rv and runs its application in the current
// context, if any. Attaching twice has no effect. UI queue only.
func (m *Manager) AttachRootView(rv *RootView) {
	m.ui.AssertOnQueue("AttachRootView")
	m.mu.Lock()
	if lo.Contains(m.rootViews, rv) {
		m.mu.Unlock()
		return
	}
	if rv.Tag() == 0 {
		rv.tag.Store(int64(m.nextRootTag))
		m.nextRootTag += rootTagStep
	}
	m.rootViews = append(m.rootViews, rv)
	c := m.current
	m.mu.Unlock()

	if c != nil {
		c.runApplication(rv)
	}
}

// DetachRootView unregisters rv and unmounts it. UI queue only.
func (m *Manager) DetachRootView(rv *RootView) {
	m.ui.AssertOnQueue("DetachRootView")
	m.mu.Lock()
	if !lo.Contains(m.rootViews, rv) {
		m.mu.Unlock()
		return
	}
	m.rootViews = lo.Without(m.rootViews, rv)
	c := m.current
	m.mu.Unlock()

	if c != nil {
		c.stopApplication(rv)
	}
}
