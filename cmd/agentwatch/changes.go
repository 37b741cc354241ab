package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/daemon"
	"github.com/anthropic/agentwatch/internal/ingest"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

func changesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "changes", Short: "Track and inspect file changes"}
	cmd.AddCommand(changesTrackCmd())
	cmd.AddCommand(changesListCmd())
	cmd.AddCommand(changesStatsCmd())
	return cmd
}

func changesTrackCmd() *cobra.Command {
	var b analyzer.ChangeBatch
	cmd := &cobra.Command{
		Use:   "track <file>...",
		Short: "Record changed files through the daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := map[string]any{
				"kind":        ingest.KindChangeBatch,
				"projectPath": b.ProjectPath,
				"changeType":  b.ChangeType,
				"files":       args,
			}
			for k, val := range map[string]string{
				"impact":    b.Impact,
				"agentId":   b.AgentID,
				"gitCommit": b.GitCommit,
				"reason":    b.Reason,
			} {
				if val != "" {
					env[k] = val
				}
			}
			var recs []store.ChangeRecord
			return submit(cmd, env, &recs, func() { printChanges(recs) })
		},
	}
	cmd.Flags().StringVar(&b.ProjectPath, "project", ".", "project root")
	cmd.Flags().StringVar(&b.ChangeType, "type", "modify", "create, modify, delete or rename")
	cmd.Flags().StringVar(&b.Impact, "impact", "", "impact hint: low, medium, high or critical")
	cmd.Flags().StringVar(&b.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&b.GitCommit, "commit", "", "git commit")
	cmd.Flags().StringVar(&b.Reason, "reason", "", "reason for the change")
	return cmd
}

func changesListCmd() *cobra.Command {
	var (
		f         store.ChangeFilter
		impact    string
		timeframe string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded changes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := windowStart(timeframe)
			if err != nil {
				return err
			}
			f.Since = start
			f.Newest = true
			if impact != "" {
				f.ImpactLevels = strings.Split(impact, ",")
			}
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				recs, err := c.Analyzer.ListChanges(ctx, f)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(recs)
				}
				printChanges(recs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectPath, "project", "", "project root")
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&f.FilePath, "file", "", "project-relative file path")
	cmd.Flags().StringVar(&f.ChangeType, "type", "", "change type")
	cmd.Flags().StringVar(&impact, "impact", "", "comma separated impact levels")
	cmd.Flags().StringVar(&timeframe, "timeframe", "", "last_hour, last_day, last_week or last_month")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func changesStatsCmd() *cobra.Command {
	var (
		project, timeframe string
		top                int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize changes by type, agent, impact and path",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := windowStart(timeframe)
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				st, err := c.Analyzer.ChangeStats(ctx, project, start, top)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(st)
				}
				fmt.Printf("%d changes since %s, %d high risk\n", st.Total, fmtTime(st.Since), st.HighRisk)
				groups := []struct {
					title string
					rows  []store.GroupCount
				}{
					{"Type", st.ByType},
					{"Agent", st.ByAgent},
					{"Impact", st.ByImpact},
					{"Path", st.TopPaths},
				}
				for _, g := range groups {
					if len(g.rows) == 0 {
						continue
					}
					tw := newTable(g.title, "Count")
					for _, r := range g.rows {
						tw.AppendRow(table.Row{orDash(r.Key), r.Count})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project root (default all)")
	cmd.Flags().StringVar(&timeframe, "timeframe", "last_day", "last_hour, last_day, last_week or last_month")
	cmd.Flags().IntVar(&top, "top", analyzer.DefaultTopPaths, "number of paths to list")
	return cmd
}

// windowStart resolves a timeframe flag to the start of its window; "" is unbounded.
func windowStart(timeframe string) (time.Time, error) {
	if timeframe == "" {
		return time.Time{}, nil
	}
	tf, err := pipeline.ParseTimeframe(timeframe)
	if err != nil {
		return time.Time{}, err
	}
	start, _ := tf.Window(time.Now().UTC())
	return start, nil
}

func printChanges(recs []store.ChangeRecord) {
	tw := newTable("File", "Type", "Impact", "Risk", "+/-", "Agent", "When")
	for _, r := range recs {
		tw.AppendRow(table.Row{
			r.FilePath, r.ChangeType, r.ImpactLevel, fmt.Sprintf("%.1f", r.RiskScore),
			fmt.Sprintf("+%d/-%d", r.LinesAdded, r.LinesDeleted), orDash(r.AgentID), fmtTime(r.Timestamp),
		})
	}
	tw.Render()
}

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "monitor", Short: "Manage filesystem monitoring sessions in the daemon"}
	cmd.AddCommand(monitorStartCmd())
	cmd.AddCommand(monitorStopCmd())
	cmd.AddCommand(monitorListCmd())
	return cmd
}

func monitorStartCmd() *cobra.Command {
	var (
		patterns   []string
		thresholds string
	)
	cmd := &cobra.Command{
		Use:   "start <project>",
		Short: "Watch a project directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := parseObject("thresholds", thresholds)
			if err != nil {
				return err
			}
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			var out struct {
				SessionID string `json:"sessionId"`
			}
			cfg, err := json.Marshal(analyzer.MonitorConfig{ProjectPath: args[0], WatchPatterns: patterns, Thresholds: th})
			if err != nil {
				return err
			}
			if err := c.StartMonitor(cfg, &out); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(out)
			}
			fmt.Printf("monitoring %s (session %s)\n", args[0], out.SessionID)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "glob of files to watch (repeatable, default all)")
	cmd.Flags().StringVar(&thresholds, "thresholds", "", `thresholds as a JSON object, e.g. '{"riskScore": 7}'`)
	return cmd
}

func monitorStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop a monitoring session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			if err := c.StopMonitor(args[0]); err != nil {
				return err
			}
			fmt.Printf("stopped %s\n", args[0])
			return nil
		},
	}
}

func monitorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitoring sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			var sessions []analyzer.SessionInfo
			if err := c.ListMonitors(&sessions); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(sessions)
			}
			tw := newTable("Session", "Project", "Status", "Live", "Dropped", "Last activity")
			for _, s := range sessions {
				dropped := "-"
				if s.Queue != nil {
					dropped = fmt.Sprint(s.Queue.Dropped)
				}
				last := "-"
				if s.LastActivity != nil {
					last = fmtTime(*s.LastActivity)
				}
				tw.AppendRow(table.Row{s.ID, s.ProjectPath, s.Status, s.Live, dropped, last})
			}
			tw.Render()
			return nil
		},
	}
}
