package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kolo/xmlrpc"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// Sentinel errors for supervisor operations.
var (
	// ErrMissingProcess is returned when a start or stop is requested
	// without a process name.
	ErrMissingProcess = errors.New("supervisor: process name required")
)

// ProcessInfo is one supervised process as reported by supervisord.
type ProcessInfo struct {
	Name        string `xmlrpc:"name"`
	Group       string `xmlrpc:"group"`
	StateName   string `xmlrpc:"statename"`
	Description string `xmlrpc:"description"`
}

// rpcClient is the subset of the XML-RPC client used by the Client.
// Satisfied by *xmlrpc.Client.
type rpcClient interface {
	Call(serviceMethod string, args any, reply any) error
}

// Client talks to a local supervisord instance over its unix socket.
//
// supervisord exposes XML-RPC over HTTP on a unix domain socket; the HTTP
// host in the URL is a placeholder the daemon ignores.
type Client struct {
	rpc rpcClient
}

// New connects a Client to the supervisord socket.
func New(cfg config.SupervisorConfig) (*Client, error) {
	dialer := &net.Dialer{Timeout: cfg.RPCTimeout()}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", cfg.SocketPath)
		},
	}

	rpc, err := xmlrpc.NewClient("http://localhost/RPC2", transport)
	if err != nil {
		return nil, fmt.Errorf("creating supervisor client: %w", err)
	}

	return &Client{rpc: rpc}, nil
}

// GetAllProcessInfo returns the state of every supervised process.
func (c *Client) GetAllProcessInfo() ([]ProcessInfo, error) {
	var processes []ProcessInfo
	if err := c.rpc.Call("supervisor.getAllProcessInfo", nil, &processes); err != nil {
		return nil, fmt.Errorf("querying process info: %w", err)
	}
	return processes, nil
}

// StartProcess starts a supervised process by name.
func (c *Client) StartProcess(name string) error {
	if name == "" {
		return ErrMissingProcess
	}

	var started bool
	if err := c.rpc.Call("supervisor.startProcess", name, &started); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	return nil
}

// StopProcess stops a supervised process by name.
func (c *Client) StopProcess(name string) error {
	if name == "" {
		return ErrMissingProcess
	}

	var stopped bool
	if err := c.rpc.Call("supervisor.stopProcess", name, &stopped); err != nil {
		return fmt.Errorf("stopping %s: %w", name, err)
	}
	return nil
}

// Summary flattens process states into a single shadow-friendly string,
// "web (RUNNING), camera (STOPPED)".
func Summary(processes []ProcessInfo) string {
	parts := make([]string, 0, len(processes))
	for _, p := range processes {
		parts = append(parts, fmt.Sprintf("%s (%s)", p.Name, p.StateName))
	}
	return strings.Join(parts, ", ")
}
