package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"webmill/internal/media/sampler"
)

func newDetectCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>",
		Short: "Print the detected background color of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.buildLogger()
			if err != nil {
				return err
			}

			detector := sampler.NewDetector(cfg, logger)
			color, err := detector.DetectColor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color)
			return nil
		},
	}
}
