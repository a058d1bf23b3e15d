package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/kernel"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// maxMemoryPages is the wasm32 linear memory ceiling.
const maxMemoryPages = 65536

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info"},
		Display: DisplayConfig{MaxLayers: 64},
		Kernel:  KernelConfig{MaxHandles: kernel.DefaultMaxHandles},
		IPC:     IPCConfig{ResponseCapacity: ipc.DefaultResponseCapacity},
		Bridge:  BridgeConfig{MemoryLimitPages: 256},
	}
}

// Load reads a YAML file, expands ${VAR} references, applies defaults and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, errors.Load("parse yaml", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Display.MaxLayers == 0 {
		cfg.Display.MaxLayers = defaults.Display.MaxLayers
	}
	if cfg.Kernel.MaxHandles == 0 {
		cfg.Kernel.MaxHandles = defaults.Kernel.MaxHandles
	}
	if cfg.IPC.ResponseCapacity == 0 {
		cfg.IPC.ResponseCapacity = defaults.IPC.ResponseCapacity
	}
	if cfg.Bridge.MemoryLimitPages == 0 {
		cfg.Bridge.MemoryLimitPages = defaults.Bridge.MemoryLimitPages
	}
}

// interpolateEnv replaces ${VAR} with environment values. Undefined
// variables are left in place.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	levels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !levels[c.Log.Level] {
		return invalid("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return invalid("log.format must be console or json (got %q)", c.Log.Format)
	}
	if c.Display.MaxLayers < 0 {
		return invalid("display.max_layers must be positive")
	}
	if c.Kernel.MaxHandles < 0 {
		return invalid("kernel.max_handles must be positive")
	}
	if c.IPC.ResponseCapacity < 0 || c.IPC.ResponseCapacity > ipc.MaxWirePayload {
		return invalid("ipc.response_capacity must be between 1 and %d", ipc.MaxWirePayload)
	}
	if c.Bridge.MemoryLimitPages > maxMemoryPages {
		return invalid("bridge.memory_limit_pages must not exceed %d", maxMemoryPages)
	}
	seen := make(map[string]bool, len(c.Services.Enabled))
	for _, name := range c.Services.Enabled {
		if seen[name] {
			return invalid("services.enabled lists %q twice", name)
		}
		seen[name] = true
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail(format, args...).Build()
}

// String renders the effective configuration as YAML.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(out)
}
