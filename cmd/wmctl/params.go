package main

import (
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print default placement parameters as YAML",
		Long: `Prints the default placement parameters. Save the output, edit it and pass it
to export or preview with --params.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(model.DefaultParams())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
