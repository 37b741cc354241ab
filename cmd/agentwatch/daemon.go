package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anthropic/agentwatch/internal/daemon"
	"github.com/anthropic/agentwatch/internal/ipc"
	"github.com/anthropic/agentwatch/internal/logger"
)

func startCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the agentwatch daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Check if daemon is already running.
			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err == nil {
				fmt.Println("daemon is already running")
				return nil
			}

			log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			// Remove stale socket file (from a prior crash).
			if _, err := os.Stat(cfg.SocketPath); err == nil {
				log.Info("removing stale socket file", "socket", cfg.SocketPath)
				_ = os.Remove(cfg.SocketPath)
			}

			if !foreground {
				fmt.Println("hint: use --foreground to run in the current terminal")
				fmt.Println("background daemonization not yet implemented, running in foreground")
			}

			// The daemon hands itself to the IPC server once its pipeline is up.
			ipcServer := ipc.NewServer(nil, log.With("component", "ipc"))
			d := daemon.New(cfg, ipcServer, log)

			// Start blocks until signal or error.
			return d.Start()
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in the foreground (don't daemonize)")

	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the agentwatch daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			if err := c.RequestStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}
			fmt.Println("daemon stopping")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			if err := c.Ping(); err != nil {
				fmt.Println("daemon is not running")
				return err
			}
			fmt.Println("daemon is alive")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial(cmd)
			if err != nil {
				return err
			}
			st, err := c.Status()
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}
			if jsonOutput(cmd) {
				return printJSON(st)
			}
			tw := newTable("Field", "Value")
			tw.AppendRow(table.Row{"Uptime", st.Uptime})
			tw.AppendRow(table.Row{"PID", st.PID})
			tw.AppendRow(table.Row{"Database", fmt.Sprintf("%s (%.1f KB, schema v%d)", st.DBPath, float64(st.DBSizeBytes)/1024, st.SchemaVersion)})
			tw.AppendRow(table.Row{"HTTP", orDash(st.HTTPAddr)})
			tw.AppendRow(table.Row{"Inbox", orDash(st.InboxPath)})
			tw.AppendSeparator()
			tw.AppendRow(table.Row{"Activities", st.Counts.Activities})
			tw.AppendRow(table.Row{"Tasks", st.Counts.Tasks})
			tw.AppendRow(table.Row{"Changes", st.Counts.Changes})
			tw.AppendRow(table.Row{"Notifications", st.Counts.Notifications})
			tw.AppendRow(table.Row{"Reports", st.Counts.Reports})
			tw.AppendSeparator()
			for _, m := range st.ActiveMonitors {
				tw.AppendRow(table.Row{"Monitoring", m})
			}
			if len(st.ActiveMonitors) == 0 {
				tw.AppendRow(table.Row{"Monitoring", "-"})
			}
			tw.Render()
			return nil
		},
	}
}
