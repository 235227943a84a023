// Package config holds the process-scoped settings of a host: executor
// selection, bundle location, queue names, idle timing and display metrics.
// A Config is loaded once and passed to the components that need it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/queue"
)

// Executor names accepted in the executor field.
const (
	ExecutorGoja   = "goja"
	ExecutorWasm   = "wasm"
	ExecutorRemote = "remote"
)

// Config is the top-level configuration file.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	Executor  string `yaml:"executor"`
	Bundle    string `yaml:"bundle,omitempty"`
	CachePath string `yaml:"cache_path,omitempty"`
	RemoteURL string `yaml:"remote_url,omitempty"`
	App       string `yaml:"app"`

	Queues  QueueConfig    `yaml:"queues"`
	Idle    IdleConfig     `yaml:"idle"`
	Wasm    WasmConfig     `yaml:"wasm"`
	Display DisplayMetrics `yaml:"display"`
}

// QueueConfig names the per-context queues.
type QueueConfig struct {
	Runtime       string `yaml:"runtime"`
	NativeModules string `yaml:"native_modules"`
	Background    string `yaml:"background,omitempty"`
}

// IdleConfig controls idle detection.
type IdleConfig struct {
	Timeout      Duration `yaml:"timeout"`
	PollInterval Duration `yaml:"poll_interval"`
}

// WasmConfig configures the WebAssembly executor.
type WasmConfig struct {
	MemoryLimitPages uint32 `yaml:"memory_limit_pages,omitempty"`
}

// DisplayMetrics describes the screen the host renders to.
type DisplayMetrics struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Scale     float64 `yaml:"scale"`
	FontScale float64 `yaml:"font_scale"`
}

// Map returns the metrics in the shape exposed to the runtime.
func (d DisplayMetrics) Map() map[string]any {
	return map[string]any{
		"width":     d.Width,
		"height":    d.Height,
		"scale":     d.Scale,
		"fontScale": d.FontScale,
	}
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses "250ms", "5s" and similar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Executor: ExecutorGoja,
		App:      "Main",
		Queues: QueueConfig{
			Runtime:       "runtime",
			NativeModules: "native_modules",
		},
		Idle: IdleConfig{
			Timeout:      Duration(10 * time.Second),
			PollInterval: Duration(5 * time.Millisecond),
		},
		Display: DisplayMetrics{
			Width:     1080,
			Height:    1920,
			Scale:     2,
			FontScale: 1,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "read "+path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	switch c.Executor {
	case ExecutorGoja, ExecutorWasm:
	case ExecutorRemote:
		if c.RemoteURL == "" {
			return errors.Configuration(errors.PhaseConfig, "remote executor needs remote_url")
		}
	default:
		return errors.Configuration(errors.PhaseConfig, fmt.Sprintf("unknown executor %q", c.Executor))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Idle.Timeout <= 0 {
		return errors.Configuration(errors.PhaseConfig, "idle.timeout must be positive")
	}
	if c.Idle.PollInterval <= 0 {
		return errors.Configuration(errors.PhaseConfig, "idle.poll_interval must be positive")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 || c.Display.Scale <= 0 {
		return errors.Configuration(errors.PhaseConfig, "display metrics must be positive")
	}
	if c.App == "" {
		return errors.Configuration(errors.PhaseConfig, "app must not be empty")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "log_level")
	}
	return lvl, nil
}

// QueueSpec returns the queue names for queue.NewConfig.
func (c *Config) QueueSpec() queue.Spec {
	return queue.Spec{
		RuntimeName:       c.Queues.Runtime,
		NativeModulesName: c.Queues.NativeModules,
		BackgroundName:    c.Queues.Background,
	}
}

// Encode renders c as YAML.
func (c *Config) Encode() ([]byte, error) {
	return yaml.Marshal(c)
}
