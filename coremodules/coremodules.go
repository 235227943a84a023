// Package coremodules provides the native modules every context carries:
// the UI manager, exception reporting, hardware back handling, device
// metrics, app state and deep links.
package coremodules

import (
	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/jsmodule"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/uimanager"
)

// Runtime-side modules the core modules and the instance manager talk to.
var (
	DeviceEventEmitter = &jsmodule.Interface{
		Name:    "RCTDeviceEventEmitter",
		Methods: []string{"emit"},
	}
	AppRegistry = &jsmodule.Interface{
		Name:    "AppRegistry",
		Methods: []string{"runApplication", "unmountApplicationComponentAtRootTag"},
	}
)

// Options wire the core modules to their context.
type Options struct {
	UIManager *uimanager.Manager
	Display   config.DisplayMetrics
	// OnException receives exceptions reported by the runtime.
	OnException func(err error)
	// BackHandler returns the host's default back handler, or nil.
	BackHandler func() func()
	// InitialURL is the deep link the host was started with.
	InitialURL string
	// AppState returns the current app state ("active", "background", ...).
	AppState func() string
}

// Specs returns the core module specs. Providers registered later may
// override any of them that allow it.
func Specs(opts Options) []nativemodule.ModuleSpec {
	specs := []nativemodule.ModuleSpec{
		exceptionsSpec(opts.OnException),
		deviceEventSpec(opts.BackHandler),
		deviceInfoSpec(opts.Display),
		appStateSpec(opts.AppState),
		linkingSpec(opts.InitialURL),
	}
	if opts.UIManager != nil {
		specs = append([]nativemodule.ModuleSpec{opts.UIManager.Spec()}, specs...)
	}
	return specs
}

// Emit sends a device event to the runtime.
func Emit(host nativemodule.Host, event string, payload any) error {
	h, err := host.RuntimeModule(DeviceEventEmitter)
	if err != nil {
		return err
	}
	return h.Call("emit", event, payload)
}
