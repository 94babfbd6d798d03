package main

import (
	"github.com/UnendingLoop/WatermarkStudio/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wmctl",
		Short: "Batch watermarking of local images and videos",
		Long: `wmctl places one watermark over a batch of images and videos and packs
the results into a zip archive. Placement parameters come from a YAML file.

ffmpeg, ffprobe and magick paths are read from the environment (.env is loaded if present).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env не обязателен
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newExportCmd(), newParamsCmd(), newPreviewCmd())
	return cmd
}

// loadConfig reads settings after godotenv has populated the environment.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}
