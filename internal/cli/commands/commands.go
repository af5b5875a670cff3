package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"gtp/internal/cli"
	"gtp/internal/config"
	"gtp/internal/discovery"
	"gtp/internal/gpu"
	"gtp/internal/logging"
	"gtp/internal/parser"
	"gtp/internal/report"
	"gtp/internal/storage"
)

// ExitError carries the process exit code of a finished command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitRuntime is the exit code of runtime errors outside any module
const exitRuntime = 2

// Commands holds all CLI commands
type Commands struct {
	Run      *RunCommand
	List     *ListCommand
	Report   *ReportCommand
	Failures *FailuresCommand
	Upload   *UploadCommand
}

// NewCommands creates all commands with dependencies. Anything derived from
// paths in cfg is built when a command executes, after flags are applied.
func NewCommands(cfg *config.Config, flags *cli.Flags) *Commands {
	testCaseParser := discovery.NewParser()
	pytestParser := parser.NewPytestParser()
	counter := gpu.NewLspciCounter()

	return &Commands{
		Run:      NewRunCommand(cfg, flags, counter, pytestParser, testCaseParser),
		List:     NewListCommand(cfg, flags, testCaseParser),
		Report:   NewReportCommand(cfg),
		Failures: NewFailuresCommand(cfg),
		Upload:   NewUploadCommand(cfg, flags),
	}
}

// summaryStorage is the batch summary location of cfg
func summaryStorage(cfg *config.Config) *storage.JSONStorage {
	return storage.NewJSONStorage(report.NewLayout(cfg.GetLogDir()).SummaryPath())
}

// configure loads the config file and applies flags on top, before a command runs
func configure(cfg *config.Config, flags *cli.Flags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logging.Setup(cmd.ErrOrStderr(), flags.Verbosity)

		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return err
		}
		*cfg = *loaded
		flags.Apply(cfg, cmd.Flags().Changed)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid options: %w", err)
		}
		return cfg.LoadEnv()
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.ConfigFile, "config", "C", "", "YAML config file")
	pf.StringVar(&flags.ProjectPath, "project", config.DefaultProjectPath, "Project directory the modules run in")
	pf.CountVarP(&flags.Verbosity, "verbosity", "v", "Increase log verbosity (-v info, -vv debug)")

	addDiscoveryFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVarP(&flags.TestPath, "test-path", "t", config.DefaultTestPath, "Path to the folder where module discovery starts")
		cmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter modules by name pattern (supports wildcards, e.g. '*linalg*')")
		cmd.Flags().StringVar(&flags.Discovery, "discovery", config.DefaultDiscovery, "Discovery mode: pytest or scan")
	}
	addLogDirFlag := func(cmd *cobra.Command, name string) {
		cmd.Flags().StringVar(&flags.LogDir, name, config.DefaultLogDir, "Directory for per-module and aggregate reports")
	}

	// Run command
	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Run test modules in parallel, one per GPU",
		Long:    "Discover pytest modules and run each on its own GPU, recovering reports of modules that crash",
		RunE:    c.Run.Execute,
		PreRunE: configure(cfg, flags),
	}
	runCmd.Flags().IntVarP(&flags.Parallel, "parallel", "p", 0, "Number of GPUs to use (default: detected with lspci)")
	runCmd.Flags().BoolVarP(&flags.ContinueOnFail, "continue-on-fail", "c", false, "Run every module regardless of failures")
	runCmd.Flags().IntVar(&flags.MaxReruns, "max-reruns", config.DefaultMaxReruns, "Reruns of a module whose tests failed")
	runCmd.Flags().DurationVar(&flags.ModuleTimeout, "module-timeout", config.DefaultModuleTimeout, "Limit for a single module attempt (0 disables)")
	runCmd.Flags().BoolVar(&flags.NoMerge, "no-merge", false, "Skip merging the HTML reports")
	runCmd.Flags().BoolVar(&flags.OpenFailures, "open-failures", false, "Open the failures viewer when the batch has failures")
	addDiscoveryFlags(runCmd)
	addLogDirFlag(runCmd, "log-dir")
	rootCmd.AddCommand(runCmd)

	// List command
	listCmd := &cobra.Command{
		Use:     "list",
		Short:   "List discovered test modules",
		Long:    "Discover and list test modules, with exclusions applied, without executing them",
		RunE:    c.List.Execute,
		PreRunE: configure(cfg, flags),
	}
	listCmd.Flags().BoolVar(&flags.TestCases, "test-cases", false, "List the test cases of every module")
	addDiscoveryFlags(listCmd)
	addLogDirFlag(listCmd, "log-dir")
	rootCmd.AddCommand(listCmd)

	// Report command
	reportCmd := &cobra.Command{
		Use:     "report",
		Short:   "Rebuild the combined reports",
		Long:    "Merge the per-module reports of the log directory into the combined JSON and HTML reports",
		RunE:    c.Report.Execute,
		PreRunE: configure(cfg, flags),
	}
	reportCmd.Flags().BoolVar(&flags.NoMerge, "no-merge", false, "Skip merging the HTML reports")
	addLogDirFlag(reportCmd, "log-dir")
	rootCmd.AddCommand(reportCmd)

	// Failures command
	failuresCmd := &cobra.Command{
		Use:     "failures",
		Short:   "View test failures interactively",
		Long:    "Display test failures from the last batch in an interactive viewer",
		RunE:    c.Failures.Execute,
		PreRunE: configure(cfg, flags),
	}
	addLogDirFlag(failuresCmd, "log-dir")
	rootCmd.AddCommand(failuresCmd)

	// Upload command
	uploadCmd := &cobra.Command{
		Use:     "upload",
		Short:   "Upload per-module reports to the results database",
		Long:    "Insert a run row and its test cases for every module report in the log directory",
		RunE:    c.Upload.Execute,
		PreRunE: configure(cfg, flags),
	}
	addLogDirFlag(uploadCmd, "logs-dir")
	uploadCmd.Flags().StringVar(&flags.RunnerLabel, "runner-label", "", "CI runner label")
	uploadCmd.Flags().StringVar(&flags.UbuntuVersion, "ubuntu-version", "", "Ubuntu version of the runner")
	uploadCmd.Flags().StringVar(&flags.RocmVersion, "rocm-version", "", "ROCm version of the runner")
	uploadCmd.Flags().StringVar(&flags.GithubRunID, "github-run-id", "", "CI run id")
	uploadCmd.Flags().StringVar(&flags.CommitSHA, "commit-sha", "", "Commit under test")
	uploadCmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Print what would be uploaded without connecting")
	rootCmd.AddCommand(uploadCmd)
}
