// Package config loads the host configuration from YAML.
package config

// Config is the complete host configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Services ServicesConfig `yaml:"services"`
	Display  DisplayConfig  `yaml:"display"`
	Kernel   KernelConfig   `yaml:"kernel"`
	IPC      IPCConfig      `yaml:"ipc"`
	Trace    TraceConfig    `yaml:"trace"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
}

// LogConfig selects the zap logger. Format is "console" or "json"; empty
// picks console on a terminal and json otherwise.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServicesConfig lists the ports to register. Empty enables all.
type ServicesConfig struct {
	Enabled []string `yaml:"enabled"`
}

type DisplayConfig struct {
	MaxLayers int `yaml:"max_layers"`
}

type KernelConfig struct {
	MaxHandles int `yaml:"max_handles"`
}

type IPCConfig struct {
	ResponseCapacity int `yaml:"response_capacity"`
}

// TraceConfig enables the sqlite call trace when Path is set.
type TraceConfig struct {
	Path string `yaml:"path"`
}

type BridgeConfig struct {
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// APIConfig enables the debug HTTP API when Listen is set.
type APIConfig struct {
	Listen string `yaml:"listen"`
}
