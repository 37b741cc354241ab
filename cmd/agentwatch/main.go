package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anthropic/agentwatch/internal/config"
	"github.com/anthropic/agentwatch/internal/daemon"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/ipc"
	"github.com/anthropic/agentwatch/internal/logger"
)

// v carries flag values into config.LoadWith, so flags beat file and env.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "agentwatch",
	Short: "Observe what coding agents do and what they change",
	Long: `agentwatch records agent activities and tasks, analyzes file changes for
impact and risk, routes alerts to notification channels, and compiles
activity reports.

Writes (activity, task, changes, monitor) go through the running daemon so
alert rules see them. Reads and alert administration open the database
directly; the daemon does not need to be running for those.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", errorCode(err), err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", config.ConfigPath(), "config file (JSON or YAML)")
	pf.String("data-dir", "", "data directory (default ~/.agentwatch)")
	pf.String("db", "", "database path (default <data-dir>/agentwatch.db)")
	pf.String("socket", "", "daemon socket path")
	pf.Bool("json", false, "output JSON")
	_ = v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = v.BindPFlag("db_path", pf.Lookup("db"))
	_ = v.BindPFlag("socket_path", pf.Lookup("socket"))
}

func registerCommands() {
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(changesCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(reportCmd())
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWith(v, path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	b, _ := cmd.Flags().GetBool("json")
	return b
}

// dial returns an IPC client for the configured daemon socket.
func dial(cmd *cobra.Command) (*ipc.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return ipc.NewClient(cfg.SocketPath), nil
}

// withComponents opens the database directly and runs fn.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *daemon.Components) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode, "warn")
	if err != nil {
		return err
	}
	defer log.Sync()
	c, err := daemon.Open(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(cmd.Context(), c)
}

// submit sends one envelope to the daemon and prints the result.
func submit(cmd *cobra.Command, envelope map[string]any, out any, render func()) error {
	c, err := dial(cmd)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := c.Ingest(raw, out); err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return printJSON(out)
	}
	render()
	return nil
}

func printJSON(val any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// errorCode names the failure kind, including kinds reported by the daemon.
func errorCode(err error) string {
	var re *ipc.RemoteError
	if errors.As(err, &re) && re.Code != "" {
		return re.Code
	}
	return errs.Code(err)
}
