package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gtp/internal/config"
	"gtp/internal/report"
)

// ReportCommand handles the report command
type ReportCommand struct {
	config *config.Config
}

// NewReportCommand creates a new ReportCommand
func NewReportCommand(cfg *config.Config) *ReportCommand {
	return &ReportCommand{config: cfg}
}

// Execute runs the command
func (rc *ReportCommand) Execute(cmd *cobra.Command, args []string) error {
	layout := report.NewLayout(rc.config.GetLogDir())
	agg, err := report.NewAggregator(layout, merger(rc.config)).Run(cmd.Context())
	if err != nil {
		return err
	}

	color.Green("✓ Combined %d report(s) into %s", len(agg.Reports), agg.JSONPath)
	if len(agg.Skipped) > 0 {
		color.Yellow("Skipped %d unreadable report(s): %v", len(agg.Skipped), agg.Skipped)
	}
	switch {
	case agg.MergeErr != nil:
		color.Red("✗ HTML merge failed: %v", agg.MergeErr)
	case agg.HTMLPath != "":
		color.Green("✓ Merged HTML reports into %s", agg.HTMLPath)
	}
	return nil
}
