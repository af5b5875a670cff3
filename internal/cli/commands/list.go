package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gtp/internal/cli"
	"gtp/internal/config"
	"gtp/internal/discovery"
	"gtp/internal/domain"
	"gtp/internal/report"
	"gtp/internal/ui"
)

// ListCommand handles the list command
type ListCommand struct {
	config *config.Config
	flags  *cli.Flags
	parser *discovery.Parser
}

// NewListCommand creates a new ListCommand
func NewListCommand(cfg *config.Config, flags *cli.Flags, parser *discovery.Parser) *ListCommand {
	return &ListCommand{
		config: cfg,
		flags:  flags,
		parser: parser,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	d, err := discovery.New(lc.config, report.NewLayout(lc.config.GetLogDir()))
	if err != nil {
		return err
	}
	sel, err := discovery.Resolve(cmd.Context(), d, lc.config)
	if err != nil {
		return err
	}

	if len(sel.Modules) == 0 {
		color.Yellow("No test modules found")
		return nil
	}

	formatter := ui.NewFormatterTo(cmd.OutOrStdout(), lc.config.ProjectPath, lc.parser)
	formatter.PrintModuleList(sel.Modules, lc.flags.TestCases, lc.lastFailed())
	if len(sel.Excluded) > 0 {
		color.Yellow("\n%d module(s) excluded", len(sel.Excluded))
	}
	return nil
}

// lastFailed returns the modules that did not pass in the last batch, if any
func (lc *ListCommand) lastFailed() map[string]struct{} {
	last, err := summaryStorage(lc.config).Load()
	if err != nil {
		return nil
	}
	failed := make(map[string]struct{})
	for _, m := range last.Modules {
		switch domain.ModuleStatus(m.Status) {
		case domain.StatusPassed, domain.StatusSkipped:
		default:
			failed[m.Module] = struct{}{}
		}
	}
	return failed
}
