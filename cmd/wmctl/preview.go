package main

import (
	"fmt"
	"os"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/spf13/cobra"
)

func newPreviewCmd() *cobra.Command {
	var (
		paramsPath string
		markPath   string
		outPath    string
		at         float64
	)

	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Render a PNG preview of one file with the watermark",
		Args:  cobra.ExactArgs(1),
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

			f, err := readUpload(args[0])
			if err != nil {
				return err
			}
			if _, err := st.svc.AddItems(ctx, id, []model.UploadFile{f}); err != nil {
				return err
			}

			pv, err := st.svc.Preview(ctx, id, &model.PreviewRequest{At: at})
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, pv.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "preview %dx%d (scale %.3f) -> %s\n", pv.Width, pv.Height, pv.Scale, outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&paramsPath, "params", "p", "", "YAML file with placement parameters")
	cmd.Flags().StringVarP(&markPath, "watermark", "w", "", "Watermark image (default: built-in text mark)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "preview.png", "Output PNG path")
	cmd.Flags().Float64Var(&at, "at", 0, "Video timestamp in seconds")

	return cmd
}
