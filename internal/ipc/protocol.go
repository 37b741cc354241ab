package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/anthropic/agentwatch/internal/store"
)

// Commands understood by the server.
const (
	CmdPing         = "ping"
	CmdStatus       = "status"
	CmdStop         = "stop"
	CmdIngest       = "ingest"
	CmdMonitorStart = "monitor.start"
	CmdMonitorStop  = "monitor.stop"
	CmdMonitorList  = "monitor.list"
)

// Request is a JSON message sent from client to server.
type Request struct {
	Command string            `json:"command"`
	Args    map[string]string `json:"args,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// Response is a JSON message sent from server to client.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// RemoteError is a failure reported by the daemon.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "daemon error: " + e.Message
	}
	return fmt.Sprintf("daemon error (%s): %s", e.Code, e.Message)
}

// StatusData is returned by the "status" command.
type StatusData struct {
	Uptime         string       `json:"uptime"`
	PID            int          `json:"pid"`
	DBPath         string       `json:"db_path"`
	DBSizeBytes    int64        `json:"db_size_bytes"`
	SchemaVersion  int          `json:"schema_version"`
	Counts         store.Counts `json:"counts"`
	ActiveMonitors []string     `json:"active_monitors"`
	InboxPath      string       `json:"inbox_path,omitempty"`
	HTTPAddr       string       `json:"http_addr,omitempty"`
}
