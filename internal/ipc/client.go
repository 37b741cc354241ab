package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client communicates with the daemon over a Unix domain socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client that connects to the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// Ping tests if the daemon is alive.
func (c *Client) Ping() error {
	return c.call(Request{Command: CmdPing}, nil)
}

// Status returns the daemon's status data.
func (c *Client) Status() (*StatusData, error) {
	var status StatusData
	if err := c.call(Request{Command: CmdStatus}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RequestStop asks the daemon to shut down gracefully.
func (c *Client) RequestStop() error {
	return c.call(Request{Command: CmdStop}, nil)
}

// Ingest sends one envelope and decodes the result into out.
func (c *Client) Ingest(envelope []byte, out any) error {
	return c.call(Request{Command: CmdIngest, Payload: envelope}, out)
}

// StartMonitor starts a monitoring session from a JSON config.
func (c *Client) StartMonitor(config []byte, out any) error {
	return c.call(Request{Command: CmdMonitorStart, Payload: config}, out)
}

// StopMonitor stops a monitoring session.
func (c *Client) StopMonitor(id string) error {
	return c.call(Request{Command: CmdMonitorStop, Args: map[string]string{"id": id}}, nil)
}

// ListMonitors decodes the daemon's monitoring sessions into out.
func (c *Client) ListMonitors(out any) error {
	return c.call(Request{Command: CmdMonitorList}, out)
}

// call sends req and decodes the response data into out when out is non-nil.
func (c *Client) call(req Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", req.Command, err)
	}
	return nil
}

// send dials the socket, sends a JSON request, reads the JSON response.
func (c *Client) send(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("empty response from daemon")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.OK {
		return nil, &RemoteError{Code: resp.Code, Message: resp.Error}
	}
	return &resp, nil
}
