package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anthropic/agentwatch/internal/daemon"
	"github.com/anthropic/agentwatch/internal/ingest"
	"github.com/anthropic/agentwatch/internal/ledger"
	"github.com/anthropic/agentwatch/internal/store"
)

// parseObject decodes a JSON object flag; "" is nil.
func parseObject(flag, s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return m, nil
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "activity", Short: "Record agent activities"}
	cmd.AddCommand(activityRecordCmd())
	return cmd
}

func activityRecordCmd() *cobra.Command {
	var (
		agent, text, project, metadata string
		duration                       float64
		tags                           []string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one activity through the daemon",
		Example: `  agentwatch activity record --agent claude-1 --text "completed auth refactor" \
    --metadata '{"linesChanged": 120, "filesModified": 4}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseObject("metadata", metadata)
			if err != nil {
				return err
			}
			env := map[string]any{
				"kind":     ingest.KindActivity,
				"agentId":  agent,
				"activity": text,
			}
			if meta != nil {
				env["metadata"] = meta
			}
			if project != "" {
				env["projectPath"] = project
			}
			if cmd.Flags().Changed("duration") {
				env["duration"] = duration
			}
			if len(tags) > 0 {
				env["tags"] = tags
			}
			var rec ledger.Recorded
			return submit(cmd, env, &rec, func() {
				fmt.Printf("recorded activity %s (%d metric samples)\n", rec.Activity.ID, len(rec.Metrics))
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().StringVar(&text, "text", "", "activity description")
	cmd.Flags().StringVar(&project, "project", "", "project path")
	cmd.Flags().StringVar(&metadata, "metadata", "", "metadata as a JSON object")
	cmd.Flags().Float64Var(&duration, "duration", 0, "duration in seconds")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage agent tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskListCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var (
		in       ledger.TaskInput
		estimate float64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task through the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := map[string]any{
				"kind":        ingest.KindTaskCreate,
				"description": in.Description,
			}
			if in.Priority != "" {
				env["priority"] = in.Priority
			}
			if in.AssignedAgent != "" {
				env["assignedAgent"] = in.AssignedAgent
			}
			if in.ProjectPath != "" {
				env["projectPath"] = in.ProjectPath
			}
			if len(in.Dependencies) > 0 {
				env["dependencies"] = in.Dependencies
			}
			if len(in.Milestones) > 0 {
				env["milestones"] = in.Milestones
			}
			if cmd.Flags().Changed("estimate") {
				env["estimatedDuration"] = estimate
			}
			var t store.Task
			return submit(cmd, env, &t, func() {
				fmt.Printf("created task %s (%s priority)\n", t.ID, t.Priority)
			})
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "task description")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "low, medium, high or critical (default medium)")
	cmd.Flags().StringVar(&in.AssignedAgent, "agent", "", "assigned agent id")
	cmd.Flags().StringVar(&in.ProjectPath, "project", "", "project path")
	cmd.Flags().StringArrayVar(&in.Dependencies, "depends", nil, "task id this depends on (repeatable)")
	cmd.Flags().StringArrayVar(&in.Milestones, "milestone", nil, "milestone name (repeatable)")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated duration in seconds")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var (
		status, notes        string
		progress             int
		blockers, milestones []string
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change a task's status through the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := map[string]any{
				"kind":   ingest.KindTaskUpdateStatus,
				"taskId": args[0],
				"status": status,
			}
			if cmd.Flags().Changed("progress") {
				env["progress"] = progress
			}
			if cmd.Flags().Changed("notes") {
				env["notes"] = notes
			}
			if len(blockers) > 0 {
				env["blockers"] = blockers
			}
			if len(milestones) > 0 {
				env["completedMilestones"] = milestones
			}
			var t store.Task
			return submit(cmd, env, &t, func() {
				fmt.Printf("task %s is %s (%d%%)\n", t.ID, t.Status, t.Progress)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, in_progress, blocked, completed, failed or cancelled")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringArrayVar(&blockers, "blocker", nil, "blocker (repeatable)")
	cmd.Flags().StringArrayVar(&milestones, "milestone-done", nil, "completed milestone (repeatable)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskListCmd() *cobra.Command {
	var (
		f      store.TaskFilter
		status string
		active bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				var (
					tasks []store.Task
					err   error
				)
				if active {
					tasks, err = c.Ledger.ActiveTasks(ctx, f.ProjectPath)
				} else {
					if status != "" {
						f.Statuses = strings.Split(status, ",")
					}
					tasks, err = c.Ledger.ListTasks(ctx, f)
				}
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(tasks)
				}
				tw := newTable("ID", "Description", "Priority", "Status", "Progress", "Agent", "Updated")
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Description, t.Priority, t.Status, fmt.Sprintf("%d%%", t.Progress), orDash(t.AssignedAgent), fmtTime(t.UpdatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "comma separated statuses")
	cmd.Flags().StringVar(&f.AssignedAgent, "agent", "", "assigned agent")
	cmd.Flags().StringVar(&f.ProjectPath, "project", "", "project path")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	cmd.Flags().BoolVar(&active, "active", false, "pending, in-progress and blocked tasks by priority")
	return cmd
}
