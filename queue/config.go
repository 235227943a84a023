package queue

// Spec names the queues of one runtime context.
type Spec struct {
	RuntimeName       string
	NativeModulesName string
	// BackgroundName enables the optional background queue when non-empty.
	BackgroundName string
}

// DefaultSpec returns the standard queue layout without a background queue.
func DefaultSpec() Spec {
	return Spec{
		RuntimeName:       "runtime",
		NativeModulesName: "native_modules",
	}
}

// Config is the set of cooperating queues of one runtime context.
//
//	UI            lifecycle transitions, batch application, root views
//	Runtime       every call into the script runtime
//	NativeModules asynchronous native method invocations, shadow tree
//	Background    optional UI-adjacent background work
//
// The UI queue is owned by the host and outlives the context; the other
// queues are created per context and stopped by Destroy.
type Config struct {
	UI            *MessageQueue
	Runtime       *MessageQueue
	NativeModules *MessageQueue
	Background    *MessageQueue
}

// NewConfig creates the per-context queues around a host-owned UI queue.
func NewConfig(ui *MessageQueue, spec Spec, opts ...Option) *Config {
	if spec.RuntimeName == "" {
		spec.RuntimeName = "runtime"
	}
	if spec.NativeModulesName == "" {
		spec.NativeModulesName = "native_modules"
	}
	c := &Config{
		UI:            ui,
		Runtime:       New(spec.RuntimeName, opts...),
		NativeModules: New(spec.NativeModulesName, opts...),
	}
	if spec.BackgroundName != "" {
		c.Background = New(spec.BackgroundName, opts...)
	}
	return c
}

// NonUI returns the per-context queues in drain order.
func (c *Config) NonUI() []*MessageQueue {
	qs := []*MessageQueue{c.Runtime, c.NativeModules}
	if c.Background != nil {
		qs = append(qs, c.Background)
	}
	return qs
}

// Drain waits until every non-UI queue has run the work scheduled so far.
// Work scheduled by the runtime queue onto the native-module queue during the
// drain is included because queues are drained in order.
func (c *Config) Drain() {
	for _, q := range c.NonUI() {
		_ = q.Flush()
	}
}

// Destroy quits the per-context queues. The UI queue is left running.
func (c *Config) Destroy() {
	for _, q := range c.NonUI() {
		q.Quit()
	}
}
