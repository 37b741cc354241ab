package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anthropic/agentwatch/internal/daemon"
	"github.com/anthropic/agentwatch/internal/report"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Generate and list activity reports"}
	cmd.AddCommand(reportGenerateCmd())
	cmd.AddCommand(reportListCmd())
	return cmd
}

func reportGenerateCmd() *cobra.Command {
	var (
		req        report.Request
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile a report and write its artifact",
		Example: `  agentwatch report generate --timeframe last_week --format markdown
  agentwatch report generate --start 2026-10-01T00:00:00Z --end 2026-10-08T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (start == "") != (end == "") {
				return fmt.Errorf("--start and --end must be given together")
			}
			if start != "" {
				s, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				e, err := time.Parse(time.RFC3339, end)
				if err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				req.Start, req.End = &s, &e
			}
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				rep, err := c.Reports.Generate(ctx, req)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(rep)
				}
				fmt.Println(rep.SummaryText)
				fmt.Printf("written to %s\n", rep.StorageLocation)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.ProjectPath, "project", "", "project path (default all)")
	cmd.Flags().StringVar(&req.Timeframe, "timeframe", "", "last_hour, last_day, last_week or last_month (default last_day)")
	cmd.Flags().StringVar(&req.Format, "format", "", "json, markdown, html or pdf (default json)")
	cmd.Flags().BoolVar(&req.IncludeMetrics, "include-metrics", false, "include metric series")
	cmd.Flags().StringVar(&start, "start", "", "explicit window start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "explicit window end (RFC 3339)")
	return cmd
}

func reportListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the latest generated reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				reps, err := c.Reports.ListLatest(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(reps)
				}
				tw := newTable("ID", "Format", "Project", "Window", "Created", "Location")
				for _, r := range reps {
					window := fmtTime(r.WindowStart) + " .. " + fmtTime(r.WindowEnd)
					tw.AppendRow(table.Row{r.ID, r.Format, orDash(r.ProjectPath), window, fmtTime(r.CreatedAt), r.StorageLocation})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of reports")
	return cmd
}
