package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"opsbridge/console/internal/secrets"
)

// localConnector runs commands on the console host itself through the
// platform shell. Used for maintenance jobs targeting the server and as
// the simplest end-to-end path in development.
type localConnector struct {
	workDir string
}

// NewLocal builds a local shell connector. Settings: "work_dir" sets the
// command working directory.
func NewLocal(ep Endpoint, _ secrets.Credential) (Connector, error) {
	return &localConnector{workDir: ep.Settings["work_dir"]}, nil
}

func (c *localConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	var shell string
	var shellArgs []string
	switch runtime.GOOS {
	case "windows":
		shell = "powershell"
		shellArgs = []string{"-Command", act.Command}
	default:
		shell = "/bin/sh"
		shellArgs = []string{"-c", act.Command}
	}

	cmd := exec.CommandContext(ctx, shell, shellArgs...)
	if c.workDir != "" {
		cmd.Dir = c.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	outcome := Outcome{
		Output:    stdout.String(),
		ErrOutput: stderr.String(),
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome, &TimeoutError{Protocol: "local", Action: act.Name}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		// Spawn failures are not transient; the shell is either there or
		// it is not.
		return outcome, fmt.Errorf("failed to start shell: %w", err)
	}
	return outcome, nil
}

func (c *localConnector) TestConnection(ctx context.Context) error {
	_, err := exec.LookPath("/bin/sh")
	if err != nil && runtime.GOOS == "windows" {
		_, err = exec.LookPath("powershell")
	}
	return err
}

func (c *localConnector) Close() error {
	return nil
}
