package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"opsbridge/console/internal/secrets"
)

const sshDialTimeout = 15 * time.Second

// sshConnector runs shell commands over an SSH session. The TCP client is
// dialed on first use and kept for the branch's lifetime; each action runs
// in a fresh session on that client.
type sshConnector struct {
	addr   string
	config *ssh.ClientConfig
	client *ssh.Client
}

// NewSSH builds an SSH connector for Linux and network-gear targets.
func NewSSH(ep Endpoint, cred secrets.Credential) (Connector, error) {
	port := ep.Port
	if port == 0 {
		port = 22
	}

	var auth []ssh.AuthMethod
	if len(cred.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cred.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cred.Password != "" {
		auth = append(auth, ssh.Password(cred.Password))
	}

	return &sshConnector{
		addr: fmt.Sprintf("%s:%d", ep.Host, port),
		config: &ssh.ClientConfig{
			User:            cred.Username,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         sshDialTimeout,
		},
	}, nil
}

func (c *sshConnector) dial() error {
	if c.client != nil {
		return nil
	}
	client, err := ssh.Dial("tcp", c.addr, c.config)
	if err != nil {
		return &ConnectionError{
			Protocol: "ssh",
			Addr:     c.addr,
			Auth:     strings.Contains(err.Error(), "unable to authenticate"),
			Err:      err,
		}
	}
	c.client = client
	return nil
}

func (c *sshConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	if err := c.dial(); err != nil {
		return Outcome{}, err
	}

	session, err := c.client.NewSession()
	if err != nil {
		// A dead keep-alive connection surfaces here; drop the client so
		// the next attempt re-dials.
		c.Close()
		return Outcome{}, &ConnectionError{Protocol: "ssh", Addr: c.addr, Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(act.Command)
	}()

	select {
	case <-ctx.Done():
		// Hard-cancel: closing the session tears down the channel, which
		// aborts the in-flight command on our side.
		session.Close()
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, &TimeoutError{Protocol: "ssh", Action: act.Name}
		}
		return Outcome{}, ctx.Err()
	case err = <-done:
	}

	outcome := Outcome{
		Output:    stdout.String(),
		ErrOutput: stderr.String(),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitStatus()
			return outcome, nil
		}
		return outcome, &ConnectionError{Protocol: "ssh", Addr: c.addr, Err: err}
	}
	return outcome, nil
}

func (c *sshConnector) TestConnection(ctx context.Context) error {
	if err := c.dial(); err != nil {
		return err
	}
	session, err := c.client.NewSession()
	if err != nil {
		return &ConnectionError{Protocol: "ssh", Addr: c.addr, Err: err}
	}
	return session.Close()
}

func (c *sshConnector) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
