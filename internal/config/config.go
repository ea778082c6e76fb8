// Package config handles thane-forge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/thane-forge/config.yaml, /config/config.yaml,
// /etc/thane-forge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "thane-forge", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/thane-forge/config.yaml")
	return paths
}

// searchPathsFunc is indirected so tests can override the search order
// without polluting the developer's real config locations.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all thane-forge configuration.
type Config struct {
	Listen          ListenConfig    `yaml:"listen"`
	ProjectsBaseDir string          `yaml:"projects_base_dir"`
	DataDir         string          `yaml:"data_dir"`
	LogLevel        string          `yaml:"log_level"`
	Workflow        WorkflowConfig  `yaml:"workflow"`
	EventBus        EventBusConfig  `yaml:"event_bus"`
	LLM             LLMConfig       `yaml:"llm"`
	Toolchain       ToolchainConfig `yaml:"toolchain"`
}

// ListenConfig defines the HTTP/WebSocket server bind settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// WorkflowConfig controls the workflow engine's scheduling bounds.
type WorkflowConfig struct {
	// QAIterationBound caps the number of fix/rebuild/retest repair
	// cycles appended after a failing QA analysis task (default 3).
	QAIterationBound int `yaml:"qa_iteration_bound"`
	// MaxParallelTasks bounds how many parallel-eligible tasks run
	// concurrently within one readiness pass (default 4).
	MaxParallelTasks int `yaml:"max_parallel_tasks"`
	// SimulatorStartupSeconds is the bounded wait before collecting
	// simulator output (default 3).
	SimulatorStartupSeconds int `yaml:"simulator_startup_seconds"`
}

// EventBusConfig controls the bus's bounded ingress queue.
// SubscriberBufferSize is parsed and defaulted but not used by the bus,
// which has no per-subscriber channels.
type EventBusConfig struct {
	QueueBound           int `yaml:"queue_bound"`
	SubscriberBufferSize int `yaml:"subscriber_buffer_size"`
}

// LLMConfig configures the language-model adapter's providers and
// provider/model/fallback routing.
type LLMConfig struct {
	Providers    []ProviderConfig `yaml:"providers"`
	DefaultModel string           `yaml:"default_model"`
	FallbackProvider string       `yaml:"fallback_provider"`
}

// ProviderConfig describes one configured LLM provider.
type ProviderConfig struct {
	Name    string `yaml:"name"`     // e.g. "anthropic", "ollama"
	BaseURL string `yaml:"base_url"` // for local/self-hosted providers
	APIKey  string `yaml:"api_key"`
	Models  []string `yaml:"models"` // model names routed to this provider
}

// ToolchainConfig names the subprocess commands the toolchain adapter
// invokes and the default timeout applied to each.
type ToolchainConfig struct {
	BuildCommand      string `yaml:"build_command"`
	FlashCommand      string `yaml:"flash_command"`
	SimulateCommand   string `yaml:"simulate_command"`
	DoctorCommand     string `yaml:"doctor_command"`
	SetTargetCommand  string `yaml:"set_target_command"`
	DefaultTimeoutSec int    `yaml:"default_timeout_sec"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${PROJECTS_BASE_DIR},
	// ${ANTHROPIC_API_KEY}). Convenience for container deployments; the
	// recommended approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.ProjectsBaseDir == "" {
		c.ProjectsBaseDir = "./projects"
	}
	if c.Workflow.QAIterationBound <= 0 {
		c.Workflow.QAIterationBound = 3
	}
	if c.Workflow.MaxParallelTasks <= 0 {
		c.Workflow.MaxParallelTasks = 4
	}
	if c.Workflow.SimulatorStartupSeconds <= 0 {
		c.Workflow.SimulatorStartupSeconds = 3
	}
	if c.EventBus.QueueBound <= 0 {
		c.EventBus.QueueBound = 256
	}
	if c.EventBus.SubscriberBufferSize <= 0 {
		c.EventBus.SubscriberBufferSize = 32
	}
	if c.Toolchain.DefaultTimeoutSec <= 0 {
		c.Toolchain.DefaultTimeoutSec = 300
	}
	if c.Toolchain.BuildCommand == "" {
		c.Toolchain.BuildCommand = "idf.py build"
	}
	if c.Toolchain.FlashCommand == "" {
		c.Toolchain.FlashCommand = "idf.py flash"
	}
	if c.Toolchain.SimulateCommand == "" {
		c.Toolchain.SimulateCommand = "idf.py qemu"
	}
	if c.Toolchain.DoctorCommand == "" {
		c.Toolchain.DoctorCommand = "idf.py doctor"
	}
	if c.Toolchain.SetTargetCommand == "" {
		c.Toolchain.SetTargetCommand = "idf.py set-target"
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	for _, p := range c.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm.providers: entry missing name")
		}
	}
	return nil
}

// Default returns a default configuration suitable for local development.
// All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
