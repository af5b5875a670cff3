package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_GetTestPath(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		expected string
	}{
		{
			name:     "default path",
			config:   &Config{ProjectPath: ".", TestPath: "tests"},
			expected: "tests",
		},
		{
			name:     "relative to project",
			config:   &Config{ProjectPath: "/project", TestPath: "tests/unit"},
			expected: "/project/tests/unit",
		},
		{
			name:     "absolute test path",
			config:   &Config{ProjectPath: "/project", TestPath: "/absolute/path"},
			expected: "/absolute/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.GetTestPath()
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.ProjectPath != DefaultProjectPath {
		t.Errorf("expected ProjectPath %s, got %s", DefaultProjectPath, cfg.ProjectPath)
	}
	if cfg.MaxReruns != DefaultMaxReruns {
		t.Errorf("expected MaxReruns %d, got %d", DefaultMaxReruns, cfg.MaxReruns)
	}
	if len(cfg.ExcludedModules) != len(DefaultExcludedModules) {
		t.Errorf("expected %d excluded modules, got %d", len(DefaultExcludedModules), len(cfg.ExcludedModules))
	}

	// Defaults must be copies
	cfg.Command[0] = "changed"
	cfg.Env["XLA_PYTHON_CLIENT_ALLOCATOR"] = "changed"
	assert.Equal(t, DefaultPython, DefaultCommand[0])
	assert.Equal(t, "default", DefaultEnv["XLA_PYTHON_CLIENT_ALLOCATOR"])
	require.NoError(t, New().Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gtp.yaml")
	content := `
parallel: 8
continue_on_fail: true
module_timeout: 45m
excluded_modules:
  - tests/only_this_test.py
env:
  XLA_PYTHON_CLIENT_ALLOCATOR: platform
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Parallel)
	assert.True(t, cfg.ContinueOnFail)
	assert.Equal(t, 45*time.Minute, cfg.ModuleTimeout)
	assert.Equal(t, []string{"tests/only_this_test.py"}, cfg.ExcludedModules)
	assert.Equal(t, "platform", cfg.Env["XLA_PYTHON_CLIENT_ALLOCATOR"])
	// Untouched keys keep their defaults
	assert.Equal(t, DefaultMaxReruns, cfg.MaxReruns)
	assert.Equal(t, DefaultCommand, cfg.Command)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("command without module placeholder", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("command: [pytest]\n"), 0644))
		_, err := Load(path)
		require.ErrorContains(t, err, "{module}")
	})

	t.Run("unknown discovery", func(t *testing.T) {
		path := filepath.Join(dir, "discovery.yaml")
		require.NoError(t, os.WriteFile(path, []byte("discovery: magic\n"), 0644))
		_, err := Load(path)
		require.ErrorContains(t, err, "magic")
	})
}

func TestConfig_LoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GTP_TEST_ENV_VALUE=from-file\n"), 0644))
	t.Setenv("GTP_TEST_ENV_VALUE", "")
	os.Unsetenv("GTP_TEST_ENV_VALUE")

	cfg := New()
	cfg.ProjectPath = dir
	require.NoError(t, cfg.LoadEnv())
	assert.Equal(t, "from-file", os.Getenv("GTP_TEST_ENV_VALUE"))

	cfg.ProjectPath = filepath.Join(dir, "nothing-here")
	require.NoError(t, cfg.LoadEnv())
}

func TestConfig_ModuleEnv(t *testing.T) {
	cfg := New()
	cfg.Env = map[string]string{"XLA_PYTHON_CLIENT_ALLOCATOR": "default"}

	env := cfg.ModuleEnv(3, "/logs/foo_last_running.json")
	assert.Contains(t, env, "HIP_VISIBLE_DEVICES=3")
	assert.Contains(t, env, "XLA_PYTHON_CLIENT_ALLOCATOR=default")
	assert.Contains(t, env, "GTP_GPU_ID=3")
	assert.Contains(t, env, "GTP_LAST_RUNNING_FILE=/logs/foo_last_running.json")
}
