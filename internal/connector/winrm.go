package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"

	"opsbridge/console/internal/secrets"
)

// winrmConnector runs commands on Windows hosts over WinRM. The client is
// stateless HTTP underneath, so there is no session to keep alive; the
// client object itself is reused across actions.
type winrmConnector struct {
	addr   string
	client *winrm.Client
}

// NewWinRM builds a WinRM connector for Windows targets. Settings:
// "https" enables TLS transport, "insecure" skips certificate checks.
func NewWinRM(ep Endpoint, cred secrets.Credential) (Connector, error) {
	port := ep.Port
	if port == 0 {
		port = 5985
	}
	useHTTPS := ep.Settings["https"] == "true"
	insecure := ep.Settings["insecure"] == "true"

	endpoint := winrm.NewEndpoint(ep.Host, port, useHTTPS, insecure, nil, nil, nil, 60*time.Second)
	client, err := winrm.NewClient(endpoint, cred.Username, cred.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create winrm client: %w", err)
	}

	return &winrmConnector{
		addr:   fmt.Sprintf("%s:%d", ep.Host, port),
		client: client,
	}, nil
}

func (c *winrmConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	type runResult struct {
		stdout   string
		stderr   string
		exitCode int
		err      error
	}
	done := make(chan runResult, 1)
	go func() {
		stdout, stderr, code, err := c.client.RunWithString(act.Command, "")
		done <- runResult{stdout, stderr, code, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, &TimeoutError{Protocol: "winrm", Action: act.Name}
		}
		return Outcome{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return Outcome{}, &ConnectionError{
				Protocol: "winrm",
				Addr:     c.addr,
				Auth:     strings.Contains(res.err.Error(), "401"),
				Err:      res.err,
			}
		}
		return Outcome{
			ExitCode:  res.exitCode,
			Output:    res.stdout,
			ErrOutput: res.stderr,
		}, nil
	}
}

func (c *winrmConnector) TestConnection(ctx context.Context) error {
	_, err := c.Execute(ctx, Action{Name: "test-connection", Command: "echo ok"})
	return err
}

func (c *winrmConnector) Close() error {
	return nil
}
