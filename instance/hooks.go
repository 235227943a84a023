package instance

import (
	"github.com/wippyai/hostbridge/coremodules"
)

func (m *Manager) setState(to LifecycleState) {
	from := m.LifecycleState()
	if from == to {
		return
	}
	m.state.Store(int32(to))
	for _, o := range m.observers {
		o(from, to)
	}
}

// moveToResumed passes through BeforeResume when coming from BeforeCreate.
func (m *Manager) moveToResumed() {
	c := m.CurrentContext()
	switch m.LifecycleState() {
	case Resumed:
		return
	case BeforeCreate:
		m.setState(BeforeResume)
	}
	if c != nil {
		c.Bridge.OnHostResume()
	}
	m.setState(Resumed)
}

func (m *Manager) moveToBeforeResume() {
	c := m.CurrentContext()
	switch m.LifecycleState() {
	case BeforeCreate:
		// A context created while the host was gone sees resume then pause.
		if c != nil {
			c.Bridge.OnHostResume()
			c.Bridge.OnHostPause()
		}
	case Resumed:
		if c != nil {
			c.Bridge.OnHostPause()
		}
	}
	m.setState(BeforeResume)
}

func (m *Manager) moveToBeforeCreate() {
	c := m.CurrentContext()
	if m.LifecycleState() == Resumed {
		if c != nil {
			c.Bridge.OnHostPause()
		}
		m.setState(BeforeResume)
	}
	if m.LifecycleState() == BeforeResume {
		if c != nil {
			c.Bridge.OnHostDestroy()
		}
		m.setState(BeforeCreate)
	}
}

// OnHostResume is called when the host comes to the foreground.
// backHandler runs when the runtime does not consume a back press.
func (m *Manager) OnHostResume(backHandler func()) {
	m.ui.AssertOnQueue("OnHostResume")
	m.mu.Lock()
	m.backHandler = backHandler
	m.mu.Unlock()
	m.moveToResumed()
}

// OnHostPause is called when the host leaves the foreground.
func (m *Manager) OnHostPause() {
	m.ui.AssertOnQueue("OnHostPause")
	m.moveToBeforeResume()
}

// OnHostDestroy is called when the host goes away. The context survives;
// call Destroy to release it.
func (m *Manager) OnHostDestroy() {
	m.ui.AssertOnQueue("OnHostDestroy")
	m.moveToBeforeCreate()
	m.mu.Lock()
	m.backHandler = nil
	m.mu.Unlock()
}

// OnNewIntent forwards an intent to the current context.
func (m *Manager) OnNewIntent(action, data string) {
	m.ui.AssertOnQueue("OnNewIntent")
	if c := m.CurrentContext(); c != nil {
		c.Bridge.OnNewIntent(action, data)
	}
}

// OnActivityResult forwards an activity result to the current context.
func (m *Manager) OnActivityResult(requestCode, resultCode int, data map[string]any) {
	m.ui.AssertOnQueue("OnActivityResult")
	if c := m.CurrentContext(); c != nil {
		c.Bridge.OnActivityResult(requestCode, resultCode, data)
	}
}

// OnBackPressed sends the back press to the runtime, or runs the default
// back handler when there is no context.
func (m *Manager) OnBackPressed() {
	m.ui.AssertOnQueue("OnBackPressed")
	c := m.CurrentContext()
	if c == nil {
		if h := m.defaultBackHandler(); h != nil {
			h()
		}
		return
	}
	if err := coremodules.EmitHardwareBackPress(c.Bridge); err != nil {
		m.handleError(err)
	}
}

func (m *Manager) defaultBackHandler() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backHandler
}

func (m *Manager) appState() string {
	if m.LifecycleState() == Resumed {
		return coremodules.StateActive
	}
	return coremodules.StateBackground
}
