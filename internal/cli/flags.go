package cli

import (
	"time"

	"gtp/internal/config"
)

// Flags holds command-line flags
type Flags struct {
	// Persistent
	ConfigFile  string
	ProjectPath string
	Verbosity   int

	// run / list
	Parallel       int
	ContinueOnFail bool
	TestPath       string
	NameFilter     string
	LogDir         string
	MaxReruns      int
	ModuleTimeout  time.Duration
	Discovery      string
	NoMerge        bool
	OpenFailures   bool
	TestCases      bool

	// upload
	RunnerLabel   string
	UbuntuVersion string
	RocmVersion   string
	GithubRunID   string
	CommitSHA     string
	DryRun        bool
}

// Apply copies the flags the user set onto cfg. changed reports whether a
// flag was given on the command line, so zero values can still override.
func (f *Flags) Apply(cfg *config.Config, changed func(name string) bool) {
	if changed("project") {
		cfg.ProjectPath = f.ProjectPath
	}
	if changed("parallel") {
		cfg.Parallel = f.Parallel
	}
	if changed("continue-on-fail") {
		cfg.ContinueOnFail = f.ContinueOnFail
	}
	if changed("test-path") {
		cfg.TestPath = f.TestPath
	}
	if changed("log-dir") || changed("logs-dir") {
		cfg.LogDir = f.LogDir
	}
	if changed("max-reruns") {
		cfg.MaxReruns = f.MaxReruns
	}
	if changed("module-timeout") {
		cfg.ModuleTimeout = f.ModuleTimeout
	}
	if changed("discovery") {
		cfg.Discovery = f.Discovery
	}
	if changed("no-merge") {
		cfg.NoMerge = f.NoMerge
	}
	cfg.Flags = config.Flags{
		NameFilter: f.NameFilter,
		Verbosity:  f.Verbosity,
	}
}
