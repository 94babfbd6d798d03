package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/spf13/cobra"
)

const pollInterval = 200 * time.Millisecond

func newExportCmd() *cobra.Command {
	var (
		paramsPath string
		markPath   string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export [files...]",
		Short: "Watermark a batch of files into a zip archive",
		Example: `  # default text watermark, default placement
  wmctl export photo.jpg clip.mp4

  # own logo and placement
  wmctl export --watermark logo.png --params params.yaml --out result.zip *.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			patch, err := loadParams(paramsPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st := startStudio(ctx, cfg)
			defer st.stop()

			id, err := st.prepare(ctx, markPath, patch)
			if err != nil {
				return err
			}
			defer func() { _ = st.svc.CloseSession(context.Background(), id) }()

			files := make([]model.UploadFile, 0, len(args))
			for _, path := range args {
				f, err := readUpload(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			res, err := st.svc.AddItems(ctx, id, files)
			if err != nil {
				return err
			}
			for _, name := range res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped on upload: %s\n", name)
			}

			if _, err := st.svc.StartExport(ctx, id); err != nil {
				return err
			}
			state, err := waitExport(ctx, st, id, func(s *model.ExportState) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rexport: %d/%d (%.0f%%)", s.Done, s.Total, s.Percent)
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			for _, name := range state.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped on export: %s\n", name)
			}

			return saveArchive(ctx, st, id, outPath)
		},
	}

	cmd.Flags().StringVarP(&paramsPath, "params", "p", "", "YAML file with placement parameters")
	cmd.Flags().StringVarP(&markPath, "watermark", "w", "", "Watermark image (default: built-in text mark)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "watermarked.zip", "Output archive path")

	return cmd
}

// waitExport polls the export state until it leaves processing.
func waitExport(ctx context.Context, st *studio, id string, report func(*model.ExportState)) (*model.ExportState, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		state, err := st.svc.ExportStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		report(state)

		switch state.Status {
		case model.ExportCompleted:
			return state, nil
		case model.ExportIdle:
			if state.Error != "" {
				return nil, fmt.Errorf("export failed: %s", state.Error)
			}
			return nil, fmt.Errorf("export stopped")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func saveArchive(ctx context.Context, st *studio, id, outPath string) error {
	rc, _, err := st.svc.LoadArchive(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
