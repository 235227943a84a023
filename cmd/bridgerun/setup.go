package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/coremodules"
	"github.com/wippyai/hostbridge/executor/jsexec"
	"github.com/wippyai/hostbridge/executor/remoteexec"
	"github.com/wippyai/hostbridge/executor/wasmexec"
	"github.com/wippyai/hostbridge/idle"
	"github.com/wippyai/hostbridge/instance"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/queue"
	"github.com/wippyai/hostbridge/uimanager"
)

var rootCmd = &cobra.Command{
	Use:   "bridgerun",
	Short: "Run script bundles against the native bridge",
	Long: `Run script bundles against the native bridge.

The executor is picked by the executor field of the configuration file:
  goja    embedded JavaScript runtime
  wasm    WebAssembly guest under wazero
  remote  websocket debugger proxy at remote_url

Example:
  bridgerun run --bundle app.js --app Main
  bridgerun monitor --config host.yaml`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "configuration file (YAML)")
	pf.String("bundle", "", "bundle path, or bundle URL for the remote executor")
	pf.String("executor", "", "executor: goja, wasm or remote")
	pf.String("app", "", "application key passed to AppRegistry.runApplication")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.StringSlice("views", defaultViews, "view managers backed by in-memory nodes")

	rootCmd.AddCommand(runCmd, monitorCmd)
}

var defaultViews = []string{"View", "Text", "Image", "ScrollView"}

// nodePackage registers in-memory view managers so bundles can render
// without a real display.
type nodePackage struct {
	views []string
}

func (nodePackage) NativeModules() []nativemodule.ModuleSpec { return nil }

func (p nodePackage) ViewManagers() []uimanager.ViewManagerSpec {
	return lo.Map(lo.Uniq(p.views), func(name string, _ int) uimanager.ViewManagerSpec {
		return uimanager.NodeViewManagerSpec(name)
	})
}

// loadConfig reads --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read 'config' flag: %w", err)
	}
	cfg := config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	overrides := map[string]*string{
		"bundle":    &cfg.Bundle,
		"executor":  &cfg.Executor,
		"app":       &cfg.App,
		"log-level": &cfg.LogLevel,
	}
	for name, field := range overrides {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s' flag: %w", name, err)
		}
		if v != "" {
			*field = v
		}
	}
	if cfg.Bundle == "" {
		return nil, fmt.Errorf("--bundle is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger and hands it to every package.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	queue.SetLogger(log.Named("queue"))
	bridge.SetLogger(log.Named("bridge"))
	uimanager.SetLogger(log.Named("uimanager"))
	coremodules.SetLogger(log.Named("coremodules"))
	idle.SetLogger(log.Named("idle"))
	instance.SetLogger(log.Named("instance"))
	jsexec.SetLogger(log.Named("jsexec"))
	wasmexec.SetLogger(log.Named("wasmexec"))
	remoteexec.SetLogger(log.Named("remoteexec"))
	return log, nil
}

// creationParams maps the configuration to an executor and bundle loader.
func creationParams(ctx context.Context, cfg *config.Config) (instance.CreationParams, error) {
	var p instance.CreationParams
	switch cfg.Executor {
	case config.ExecutorGoja:
		p.Executor = jsexec.Factory()
	case config.ExecutorWasm:
		p.Executor = wasmexec.Factory(ctx, &wasmexec.Config{MemoryLimitPages: cfg.Wasm.MemoryLimitPages})
	case config.ExecutorRemote:
		p.Executor = remoteexec.Factory(cfg.RemoteURL, cfg.Idle.Timeout.Std())
	default:
		return p, fmt.Errorf("unknown executor %q", cfg.Executor)
	}

	switch {
	case cfg.Executor == config.ExecutorRemote:
		p.Loader = bridge.RemoteLoader{SourceURL: cfg.Bundle}
	case cfg.CachePath != "":
		p.Loader = bridge.CachedFileLoader{CachePath: cfg.CachePath, SourceURL: cfg.Bundle}
	default:
		p.Loader = bridge.FileLoader{Path: cfg.Bundle}
	}
	return p, nil
}

// host plays the embedding application: it owns the UI queue and one root
// view.
type host struct {
	cfg     *config.Config
	log     *zap.Logger
	ui      *queue.MessageQueue
	manager *instance.Manager
	root    *instance.RootView
}

func newHost(ctx context.Context, cfg *config.Config, log *zap.Logger, views []string) (*host, error) {
	params, err := creationParams(ctx, cfg)
	if err != nil {
		return nil, err
	}
	h := &host{
		cfg:  cfg,
		log:  log,
		ui:   queue.New("ui"),
		root: instance.NewRootView(cfg.App, nil),
	}
	h.manager, err = instance.New(instance.Options{
		UI:       h.ui,
		Config:   cfg,
		Params:   params,
		Packages: []instance.Package{nodePackage{views: views}},
		ErrorHandler: func(err error) {
			log.Error("runtime error", zap.Error(err))
		},
	})
	if err != nil {
		h.ui.Quit()
		return nil, err
	}
	return h, nil
}

// start attaches the root view, resumes the host and begins creation.
func (h *host) start() error {
	var startErr error
	err := h.ui.RunSync(func() {
		h.manager.AttachRootView(h.root)
		h.manager.OnHostResume(nil)
		startErr = h.manager.CreateInitial()
	})
	if err != nil {
		return err
	}
	return startErr
}

// onUI runs fn on the UI queue.
func (h *host) onUI(fn func(m *instance.Manager) error) error {
	var fnErr error
	if err := h.ui.RunSync(func() { fnErr = fn(h.manager) }); err != nil {
		return err
	}
	return fnErr
}

// waitIdle waits for a context and for it to settle.
func (h *host) waitIdle(ctx context.Context, timeout time.Duration) (*instance.Context, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c, err := h.manager.WaitForContext(wctx)
	if err != nil {
		return nil, fmt.Errorf("wait for context: %w", err)
	}
	if err := c.Idle.WaitForIdle(ctx, timeout); err != nil {
		return c, err
	}
	return c, nil
}

// tree renders the root view of the current context.
func (h *host) tree() (string, error) {
	c := h.manager.CurrentContext()
	if c == nil {
		return "", fmt.Errorf("no current context")
	}
	n, err := c.UIManager.Snapshot(h.root.Tag())
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func (h *host) close() {
	h.manager.Destroy()
	h.ui.Quit()
	_ = h.log.Sync()
}
