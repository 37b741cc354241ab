package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/daemon"
	"github.com/anthropic/agentwatch/internal/store"
)

func alertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage notification channels and rules, and send alerts",
	}
	cmd.AddCommand(alertChannelAddCmd())
	cmd.AddCommand(alertChannelsCmd())
	cmd.AddCommand(alertRuleAddCmd())
	cmd.AddCommand(alertRulesCmd())
	cmd.AddCommand(alertDeleteCmd("channel-delete", "Delete a channel no rule uses",
		func(ctx context.Context, c *daemon.Components, id string) error { return c.Alerts.DeleteChannel(ctx, id) }))
	cmd.AddCommand(alertDeleteCmd("rule-delete", "Delete an alert rule",
		func(ctx context.Context, c *daemon.Components, id string) error { return c.Alerts.DeleteRule(ctx, id) }))
	cmd.AddCommand(alertSendCmd())
	cmd.AddCommand(alertTestCmd())
	cmd.AddCommand(alertSentCmd())
	cmd.AddCommand(alertSeedCmd())
	return cmd
}

func alertChannelAddCmd() *cobra.Command {
	var (
		in       alerting.ChannelInput
		cfg      string
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "channel-add",
		Short: "Add a notification channel",
		Example: `  agentwatch alert channel-add --name ops-hook --type webhook \
    --config '{"url": "https://hooks.example.com/agentwatch"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := parseObject("config", cfg)
			if err != nil {
				return err
			}
			in.Configuration = conf
			if disabled {
				off := false
				in.Enabled = &off
			}
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				ch, err := c.Alerts.AddChannel(ctx, in)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(ch)
				}
				fmt.Printf("added %s channel %s (%s)\n", ch.Type, ch.Name, ch.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "channel name")
	cmd.Flags().StringVar(&in.Type, "type", "", "email, slack, webhook, console or redis")
	cmd.Flags().StringVar(&cfg, "config", "", "channel configuration as a JSON object")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the channel disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func alertChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List notification channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				chans, err := c.Alerts.ListChannels(ctx)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(chans)
				}
				tw := newTable("ID", "Name", "Type", "Enabled", "Last used")
				for _, ch := range chans {
					last := "-"
					if ch.LastUsed != nil {
						last = fmtTime(*ch.LastUsed)
					}
					tw.AppendRow(table.Row{ch.ID, ch.Name, ch.Type, ch.Enabled, last})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func alertRuleAddCmd() *cobra.Command {
	var (
		in         alerting.RuleInput
		conditions string
		channels   []string
		template   string
	)
	cmd := &cobra.Command{
		Use:   "rule-add",
		Short: "Add an alert rule",
		Example: `  agentwatch alert rule-add --name high-impact --channel <channel-id> \
    --conditions '{"type": "high_impact_change", "priority": ["high", "critical"]}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := parseObject("conditions", conditions)
			if err != nil {
				return err
			}
			in.Conditions = cond
			for _, id := range channels {
				in.Actions = append(in.Actions, store.RuleAction{ChannelID: id, TemplateID: template})
			}
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				r, err := c.Alerts.AddRule(ctx, in)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(r)
				}
				fmt.Printf("added rule %s (%s) with %d actions\n", r.Name, r.ID, len(r.Actions))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "rule name")
	cmd.Flags().StringVar(&in.Description, "description", "", "rule description")
	cmd.Flags().StringVar(&conditions, "conditions", "", "conditions as a JSON object")
	cmd.Flags().StringArrayVar(&channels, "channel", nil, "channel id to notify (repeatable)")
	cmd.Flags().StringVar(&template, "template", "", "template id used by every action")
	cmd.Flags().IntVar(&in.Priority, "priority", 0, "evaluation order, highest first")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func alertRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List alert rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				rules, err := c.Alerts.ListRules(ctx)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(rules)
				}
				tw := newTable("ID", "Name", "Priority", "Enabled", "Actions", "Triggered")
				for _, r := range rules {
					tw.AppendRow(table.Row{r.ID, r.Name, r.Priority, r.Enabled, len(r.Actions), r.TriggerCount})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func alertDeleteCmd(use, short string, del func(ctx context.Context, c *daemon.Components, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				if err := del(ctx, c, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func alertSendCmd() *cobra.Command {
	var (
		a        alerting.Alert
		metadata string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Evaluate an ad-hoc alert against the rules and dispatch it",
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseObject("metadata", metadata)
			if err != nil {
				return err
			}
			a.Metadata = meta
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				res, err := c.Alerts.SendAlert(ctx, a)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(res)
				}
				fmt.Printf("matched %d rules: %d sent, %d failed\n", len(res.MatchedRules), res.Sent, res.Failed)
				printActions(res.Results)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&a.Type, "type", "", "alert type")
	cmd.Flags().StringVar(&a.Message, "message", "", "alert message")
	cmd.Flags().StringVar(&a.Priority, "priority", "", "low, medium, high or critical (default medium)")
	cmd.Flags().StringVar(&a.ProjectPath, "project", "", "project path")
	cmd.Flags().StringVar(&a.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&metadata, "metadata", "", "metadata as a JSON object")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func alertTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <channel-id>",
		Short: "Send a test notification through one channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				res, err := c.Alerts.TestChannel(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(res)
				}
				printActions([]alerting.ActionResult{res})
				return nil
			})
		},
	}
}

func alertSentCmd() *cobra.Command {
	var f alerting.SentFilter
	cmd := &cobra.Command{
		Use:   "sent",
		Short: "List sent notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				sent, err := c.Alerts.ListSent(ctx, f)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(sent)
				}
				tw := newTable("ID", "Rule", "Channel", "Status", "Sent", "Error")
				for _, n := range sent {
					tw.AppendRow(table.Row{n.ID, orDash(n.RuleID), n.ChannelID, n.Status, fmtTime(n.SentAt), orDash(n.ErrorMessage)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.RuleID, "rule", "", "rule id")
	cmd.Flags().StringVar(&f.ChannelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&f.Status, "status", "", "sent or failed")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func alertSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Import channels, templates and rules from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withComponents(cmd, func(ctx context.Context, c *daemon.Components) error {
				res, err := c.Alerts.LoadSeed(ctx, data)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(res)
				}
				fmt.Printf("imported %d channels, %d templates, %d rules (%d skipped)\n",
					res.Channels, res.Templates, res.Rules, res.Skipped)
				return nil
			})
		},
	}
}

func printActions(results []alerting.ActionResult) {
	if len(results) == 0 {
		return
	}
	tw := newTable("Rule", "Channel", "Status", "Error")
	for _, r := range results {
		msg := r.Error
		if r.ErrorCode != "" {
			msg = strings.TrimSpace(r.ErrorCode + ": " + msg)
		}
		tw.AppendRow(table.Row{orDash(r.RuleName), r.ChannelID, r.Status, orDash(msg)})
	}
	tw.Render()
}
