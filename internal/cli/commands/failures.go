package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"gtp/internal/config"
	"gtp/internal/ui"
)

// FailuresCommand handles the failures command
type FailuresCommand struct {
	config *config.Config
}

// NewFailuresCommand creates a new FailuresCommand
func NewFailuresCommand(cfg *config.Config) *FailuresCommand {
	return &FailuresCommand{config: cfg}
}

// Execute runs the command
func (fc *FailuresCommand) Execute(cmd *cobra.Command, args []string) error {
	st := summaryStorage(fc.config)
	results, err := st.Load()
	if err != nil {
		return fmt.Errorf("no batch summary at %s: %w", st.Path(), err)
	}

	var viewer ui.Viewer = ui.NewErrorViewer(st)
	return viewer.View(results)
}
