package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"webmill/internal/jobs"
)

func newJobsCommand(cmdCtx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var filter []jobs.Status
			if statusFilter != "" {
				status, ok := jobs.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				filter = append(filter, status)
			}

			records, err := store.List(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}

			renderJobsTable(cmd, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	cmd.AddCommand(newJobsStatsCommand(cmdCtx))

	return cmd
}

func renderJobsTable(cmd *cobra.Command, records []*jobs.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Status", "Progress", "Color", "Created", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Progress", Align: text.AlignRight},
	})

	for _, record := range records {
		detail := record.ResultPath
		if record.Status == jobs.StatusFailed {
			detail = record.ErrorMessage
		}
		t.AppendRow(table.Row{
			record.ID,
			record.Status,
			fmt.Sprintf("%d%%", record.Progress),
			record.DetectedColor,
			record.CreatedAt.Local().Format(time.DateTime),
			detail,
		})
	}
	t.Render()
}

func newJobsStatsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-status job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			for _, status := range jobs.AllStatuses() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", status, stats[status])
			}
			return nil
		},
	}
}
