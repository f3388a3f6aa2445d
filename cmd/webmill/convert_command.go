package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"webmill/internal/jobs"
	"webmill/internal/workflow"
)

func newConvertCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		quality      int
		audioBitrate string
		detect       bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a local file to WebM without the HTTP service",
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

			source, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer source.Close()

			store, err := jobs.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			orchestrator := workflow.New(cfg, store, logger)
			record, err := orchestrator.Submit(cmd.Context(), workflow.SubmitRequest{
				Source: source,
				Options: jobs.Options{
					Quality:          quality,
					AudioBitrate:     audioBitrate,
					DetectBackground: detect,
				},
			})
			if err != nil {
				return err
			}

			pollCtx, stopPolling := context.WithCancel(cmd.Context())
			done := make(chan struct{})
			go func() {
				defer close(done)
				printProgress(pollCtx, cmd, store, record.ID)
			}()
			orchestrator.Wait()
			stopPolling()
			<-done

			final, err := store.GetByID(cmd.Context(), record.ID)
			if err != nil {
				return err
			}
			if final == nil {
				return fmt.Errorf("job %s disappeared", record.ID)
			}
			if final.Status != jobs.StatusComplete {
				return fmt.Errorf("conversion failed: %s", final.ErrorMessage)
			}

			if final.DetectedColor != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "detected color: %s\n", final.DetectedColor)
			}
			fmt.Fprintln(cmd.OutOrStdout(), final.ResultPath)
			return nil
		},
	}

	cmd.Flags().IntVarP(&quality, "quality", "q", 30, "VP9 CRF quality (0-63)")
	cmd.Flags().StringVar(&audioBitrate, "audio-bitrate", "128k", "Opus audio bitrate")
	cmd.Flags().BoolVar(&detect, "detect", false, "Detect the background color before encoding")

	return cmd
}

// printProgress echoes progress changes until ctx is cancelled or the job
// reaches a terminal status.
func printProgress(ctx context.Context, cmd *cobra.Command, store *jobs.Store, id string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record, err := store.GetByID(ctx, id)
			if err != nil || record == nil {
				continue
			}
			if record.Progress != last {
				last = record.Progress
				fmt.Fprintf(cmd.ErrOrStderr(), "progress: %d%%\n", last)
			}
			if record.IsTerminal() {
				return
			}
		}
	}
}
