package commands

import (
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gtp/internal/cli"
	"gtp/internal/config"
	"gtp/internal/upload"
)

// UploadCommand handles the upload command
type UploadCommand struct {
	config *config.Config
	flags  *cli.Flags
}

// NewUploadCommand creates a new UploadCommand
func NewUploadCommand(cfg *config.Config, flags *cli.Flags) *UploadCommand {
	return &UploadCommand{config: cfg, flags: flags}
}

func (uc *UploadCommand) metadata() upload.Metadata {
	return upload.Metadata{
		RunnerLabel:   uc.flags.RunnerLabel,
		UbuntuVersion: uc.flags.UbuntuVersion,
		RocmVersion:   uc.flags.RocmVersion,
		LogsDir:       uc.config.GetLogDir(),
		GithubRunID:   uc.flags.GithubRunID,
		CommitSHA:     uc.flags.CommitSHA,
	}
}

// Execute runs the command
func (uc *UploadCommand) Execute(cmd *cobra.Command, args []string) error {
	meta := uc.metadata()
	if err := meta.Validate(); err != nil {
		return err
	}

	records, err := upload.LoadRecords(meta, time.Now)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		color.Yellow("No reports found in %s", meta.LogsDir)
		return nil
	}

	placeholders := 0
	for _, r := range records {
		if r.Placeholder {
			placeholders++
			log.Info().Str("report", r.Name).Msg("Structured report missing, uploading placeholder")
		}
	}

	if uc.flags.DryRun {
		color.Cyan("Would upload %d report(s), %d placeholder(s)", len(records), placeholders)
		return nil
	}

	dbCfg, err := upload.DBConfigFromEnv()
	if err != nil {
		return err
	}
	uploader, err := upload.Open(cmd.Context(), dbCfg)
	if err != nil {
		return err
	}
	defer uploader.Close()

	if err := uploader.Upload(cmd.Context(), records); err != nil {
		return err
	}
	color.Green("✓ Uploaded %d report(s), %d placeholder(s)", len(records), placeholders)
	return nil
}
