package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Project settings
	ProjectPath string `yaml:"project_path"`
	TestPath    string `yaml:"test_path"`
	LogDir      string `yaml:"log_dir"`

	// Execution settings
	Parallel       int               `yaml:"parallel"`
	ContinueOnFail bool              `yaml:"continue_on_fail"`
	MaxReruns      int               `yaml:"max_reruns"`
	ModuleTimeout  time.Duration     `yaml:"module_timeout"`
	Command        []string          `yaml:"command"`
	FailFastArgs   []string          `yaml:"fail_fast_args"`
	DeviceEnvVar   string            `yaml:"device_env_var"`
	Env            map[string]string `yaml:"env"`

	// Discovery settings
	Discovery       string   `yaml:"discovery"`
	Python          string   `yaml:"python"`
	ExcludedModules []string `yaml:"excluded_modules"`
	PathsToIgnore   []string `yaml:"paths_to_ignore"`

	// Reporting settings
	MergeTool   []string `yaml:"merge_tool"`
	NoMerge     bool     `yaml:"no_merge"`
	MetricsFile string   `yaml:"metrics_file"`

	// Command flags
	Flags Flags `yaml:"-"`
}

// Flags holds command-line flags
type Flags struct {
	NameFilter string
	Verbosity  int
}

// New creates a new Config with defaults
func New() *Config {
	cfg := &Config{
		ProjectPath:   DefaultProjectPath,
		TestPath:      DefaultTestPath,
		LogDir:        DefaultLogDir,
		MaxReruns:     DefaultMaxReruns,
		ModuleTimeout: DefaultModuleTimeout,
		DeviceEnvVar:  DefaultDeviceEnvVar,
		Discovery:     DefaultDiscovery,
		Python:        DefaultPython,
		MetricsFile:   DefaultMetricsFile,
	}
	cfg.Command = append([]string(nil), DefaultCommand...)
	cfg.FailFastArgs = append([]string(nil), DefaultFailFastArgs...)
	cfg.MergeTool = append([]string(nil), DefaultMergeTool...)
	cfg.ExcludedModules = append([]string(nil), DefaultExcludedModules...)
	cfg.PathsToIgnore = append([]string(nil), DefaultPathsToIgnore...)
	cfg.Env = make(map[string]string, len(DefaultEnv))
	for k, v := range DefaultEnv {
		cfg.Env[k] = v
	}
	return cfg
}

// Load creates a config from defaults and an optional YAML file
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads the project's .env file without overriding variables already set.
// A missing file is not an error.
func (c *Config) LoadEnv() error {
	envPath := filepath.Join(c.ProjectPath, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

// Validate reports settings that cannot work
func (c *Config) Validate() error {
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	if c.MaxReruns < 0 {
		return fmt.Errorf("max_reruns must not be negative, got %d", c.MaxReruns)
	}
	if c.ModuleTimeout < 0 {
		return fmt.Errorf("module_timeout must not be negative, got %s", c.ModuleTimeout)
	}
	if len(c.Command) == 0 {
		return fmt.Errorf("command must not be empty")
	}
	if !strings.Contains(strings.Join(c.Command, " "), "{module}") {
		return fmt.Errorf("command must reference {module}")
	}
	switch c.Discovery {
	case "pytest", "scan":
	default:
		return fmt.Errorf("unknown discovery mode %q", c.Discovery)
	}
	return nil
}

// GetTestPath returns the discovery root, relative to the project unless absolute
func (c *Config) GetTestPath() string {
	if filepath.IsAbs(c.TestPath) {
		return c.TestPath
	}
	return filepath.Join(c.ProjectPath, c.TestPath)
}

// GetLogDir returns the absolute log directory so subprocesses running in the
// project directory write to the same place
func (c *Config) GetLogDir() string {
	p := c.LogDir
	if p == "" {
		p = DefaultLogDir
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// GetMetricsPath returns the prometheus textfile path, or "" when disabled
func (c *Config) GetMetricsPath() string {
	if c.MetricsFile == "" {
		return ""
	}
	if filepath.IsAbs(c.MetricsFile) {
		return c.MetricsFile
	}
	return filepath.Join(c.GetLogDir(), c.MetricsFile)
}

// ModuleEnv returns the environment additions for a module pinned to gpu
func (c *Config) ModuleEnv(gpu int, sentinel string) []string {
	env := make([]string, 0, len(c.Env)+3)
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		c.DeviceEnvVar+"="+strconv.Itoa(gpu),
		"GTP_GPU_ID="+strconv.Itoa(gpu),
		"GTP_LAST_RUNNING_FILE="+sentinel,
	)
	return env
}
