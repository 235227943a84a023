package coremodules

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/nativemodule"
)

const AppStateName = "AppState"

// App states reported to the runtime.
const (
	StateUninitialized = "uninitialized"
	StateActive        = "active"
	StateBackground    = "background"
)

// AppStateDidChange is emitted on every state change.
const AppStateDidChange = "appStateDidChange"

type appState struct {
	host nativemodule.Host

	mu    sync.Mutex
	state string
}

func appStateSpec(current func() string) nativemodule.ModuleSpec {
	return nativemodule.ModuleSpec{
		Name:         AppStateName,
		HasConstants: true,
		Factory: func(host nativemodule.Host) nativemodule.NativeModule {
			state := StateUninitialized
			if current != nil {
				state = current()
			}
			return &appState{host: host, state: state}
		},
	}
}

func (m *appState) Name() string { return AppStateName }

func (m *appState) Constants() map[string]any {
	return map[string]any{"initialAppState": m.current()}
}

func (m *appState) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		{Name: "getCurrentAppState", Handler: func(c *nativemodule.Call) (any, error) {
			return map[string]any{"app_state": m.current()}, nil
		}},
	}
}

func (m *appState) current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *appState) set(state string) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()
	if !changed {
		return
	}
	if err := Emit(m.host, AppStateDidChange, map[string]any{"app_state": state}); err != nil {
		Logger().Warn("emit app state", zap.String("state", state), zap.Error(err))
	}
}

func (m *appState) OnHostResume()  { m.set(StateActive) }
func (m *appState) OnHostPause()   { m.set(StateBackground) }
func (m *appState) OnHostDestroy() { m.set(StateBackground) }
