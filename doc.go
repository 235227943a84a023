// Package hostbridge connects a host application to a script runtime that
// drives its UI.
//
// The host owns a UI queue. A runtime context adds a runtime queue and a
// native-module queue, a table of native modules the script can call, a
// proxy for modules the script exposes, and a UI manager that turns the
// script's view operations into batches applied atomically on the UI queue.
//
// # Architecture Overview
//
//	hostbridge/
//	├── instance/       Context lifecycle: create, recreate, destroy, host hooks
//	├── bridge/         One runtime context: executor, call queue, idle tracking
//	├── nativemodule/   Native module registry and method dispatch table
//	├── jsmodule/       Typed proxies for modules implemented by the script
//	├── uimanager/      Shadow tree, view hierarchy and batch applier
//	├── idle/           Idle detection across queues, bridge and UI batches
//	├── queue/          Serial message queues and the per-context queue set
//	├── coremodules/    Modules every context carries (exceptions, app state, ...)
//	├── executor/       Script executors: goja, wazero and a remote debugger
//	├── config/         YAML host configuration
//	├── value/          Normalization of values crossing the boundary
//	├── errors/         Structured error types
//	└── cmd/bridgerun/  Headless host CLI
//
// # Quick Start
//
// Run a bundle with the embedded JavaScript executor:
//
//	ui := queue.New("ui")
//	m, err := instance.New(instance.Options{
//	    UI: ui,
//	    Params: instance.CreationParams{
//	        Executor: jsexec.Factory(),
//	        Loader:   bridge.FileLoader{Path: "app.js"},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Destroy()
//
//	ui.RunSync(func() {
//	    m.AttachRootView(instance.NewRootView("Main", nil))
//	    m.OnHostResume(nil)
//	    m.CreateInitial()
//	})
//
//	c, err := m.WaitForContext(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = c.Idle.WaitForIdle(ctx, 10*time.Second)
//
// # Threading
//
// Lifecycle calls, root views and batch application run on the UI queue.
// Calls into the script run on the runtime queue. Asynchronous native methods
// and the shadow tree run on the native-module queue. Sync methods run on the
// runtime queue that called them. Destroy may be called from any goroutine
// except the current context's runtime and native-module queues.
package hostbridge
