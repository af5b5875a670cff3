package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gtp/internal/cli"
	"gtp/internal/cli/commands"
	"gtp/internal/config"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "gtp",
		Short:         "Parallel GPU test processor",
		Long:          `Runs the test modules of a pytest suite in parallel, one module per GPU, and keeps a report for modules whose process crashes.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Create initial config with defaults
	cfg := config.New()

	// Create flags struct (will be populated by command flags)
	var flags cli.Flags

	cmds := commands.NewCommands(cfg, &flags)
	cmds.Register(rootCmd, &flags, cfg)

	if err := rootCmd.Execute(); err != nil {
		code := 1
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
			if exitErr.Err == nil {
				os.Exit(code)
			}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}
