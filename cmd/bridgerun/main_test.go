package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/hostbridge/config"
)

const testBundle = `
__bridge.registerCallableModule('RCTDeviceEventEmitter', { emit: function () {} });
__bridge.registerCallableModule('AppRegistry', {
  runApplication: function (app, params) {
    var ui = NativeModules.UIManager;
    var root = params.rootTag;
    ui.createView(root + 1, 'View', root, {app: app});
    ui.createView(root + 2, 'Text', root, {text: 'hi'});
    ui.setChildren(root + 1, [root + 2]);
    ui.setChildren(root, [root + 1]);
  },
  unmountApplicationComponentAtRootTag: function (tag) {
    NativeModules.UIManager.removeRootView(tag);
  }
});
`

func TestCreationParams(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		executor string
		loader   string
	}{
		{
			name:     "goja file",
			mutate:   func(c *config.Config) { c.Bundle = "app.js" },
			executor: "goja",
			loader:   "file app.js",
		},
		{
			name: "goja cached",
			mutate: func(c *config.Config) {
				c.Bundle = "http://dev:8081/app.js"
				c.CachePath = "/tmp/app.js"
			},
			executor: "goja",
			loader:   "cached http://dev:8081/app.js at /tmp/app.js",
		},
		{
			name: "wasm",
			mutate: func(c *config.Config) {
				c.Executor = config.ExecutorWasm
				c.Bundle = "app.wasm"
			},
			executor: "wasm",
			loader:   "file app.wasm",
		},
		{
			name: "remote",
			mutate: func(c *config.Config) {
				c.Executor = config.ExecutorRemote
				c.RemoteURL = "ws://localhost:8081/debugger-proxy"
				c.Bundle = "http://localhost:8081/index.bundle"
			},
			executor: "remote",
			loader:   "remote http://localhost:8081/index.bundle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			p, err := creationParams(context.Background(), cfg)
			if err != nil {
				t.Fatalf("creationParams: %v", err)
			}
			if got := p.Executor.Name(); got != tt.executor {
				t.Errorf("executor = %q, want %q", got, tt.executor)
			}
			if got := p.Loader.Description(); got != tt.loader {
				t.Errorf("loader = %q, want %q", got, tt.loader)
			}
		})
	}
}

func TestCreationParams_UnknownExecutor(t *testing.T) {
	cfg := config.Default()
	cfg.Executor = "lua"
	if _, err := creationParams(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown executor")
	}
}

func TestNodePackage(t *testing.T) {
	p := nodePackage{views: []string{"View", "Text", "View"}}
	specs := p.ViewManagers()
	if len(specs) != 2 {
		t.Fatalf("got %d view managers, want 2", len(specs))
	}
	if specs[0].Name != "View" || specs[1].Name != "Text" {
		t.Fatalf("names = %s, %s", specs[0].Name, specs[1].Name)
	}
	if p.NativeModules() != nil {
		t.Fatal("node package must not add native modules")
	}
}

func TestHostCall_Usage(t *testing.T) {
	h := &host{}
	for _, spec := range []string{"", "Module", ".method", "Module."} {
		if _, err := h.call(spec); err == nil {
			t.Errorf("call(%q) accepted", spec)
		}
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.js")
	if err := os.WriteFile(path, []byte(testBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", "--bundle", path, "--app", "Demo", "--log-level", "error", "--wait", "10s"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := strings.Join([]string{
		"RootView #1",
		"  View #2 {app: Demo}",
		"    Text #3 {text: hi}",
		"",
	}, "\n")
	if got := out.String(); got != want {
		t.Fatalf("output:\n%s\nwant:\n%s", got, want)
	}
}

func TestLoadConfig_RequiresBundle(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--bundle", ""})
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--bundle") {
		t.Fatalf("err = %v, want missing bundle", err)
	}
}
