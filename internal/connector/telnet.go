package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziutek/telnet"

	"opsbridge/console/internal/secrets"
)

const telnetDialTimeout = 15 * time.Second

// telnetConnector drives legacy network gear that only speaks telnet.
// One connection is held for the branch's lifetime; commands are written
// and output is read until the device prompt reappears.
type telnetConnector struct {
	addr   string
	user   string
	pass   string
	prompt string
	conn   *telnet.Conn
}

// NewTelnet builds a telnet connector. Settings: "prompt" is the device
// prompt to read up to after each command (default "$").
func NewTelnet(ep Endpoint, cred secrets.Credential) (Connector, error) {
	port := ep.Port
	if port == 0 {
		port = 23
	}
	prompt := ep.Settings["prompt"]
	if prompt == "" {
		prompt = "$"
	}
	return &telnetConnector{
		addr:   fmt.Sprintf("%s:%d", ep.Host, port),
		user:   cred.Username,
		pass:   cred.Password,
		prompt: prompt,
	}, nil
}

func (c *telnetConnector) dial() error {
	if c.conn != nil {
		return nil
	}
	conn, err := telnet.DialTimeout("tcp", c.addr, telnetDialTimeout)
	if err != nil {
		return &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
	}
	conn.SetUnixWriteMode(true)

	if c.user != "" {
		if err := c.login(conn); err != nil {
			conn.Close()
			return err
		}
	} else if _, err := conn.ReadUntil(c.prompt); err != nil {
		conn.Close()
		return &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
	}

	c.conn = conn
	return nil
}

func (c *telnetConnector) login(conn *telnet.Conn) error {
	steps := []struct{ await, send string }{
		{"login:", c.user},
		{"Password:", c.pass},
	}
	for _, step := range steps {
		if _, err := conn.ReadUntil(step.await); err != nil {
			return &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
		}
		if _, err := conn.Write([]byte(step.send + "\n")); err != nil {
			return &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
		}
	}
	data, err := conn.ReadUntil(c.prompt, "incorrect")
	if err != nil {
		return &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
	}
	if strings.Contains(string(data), "incorrect") {
		return &ConnectionError{
			Protocol: "telnet",
			Addr:     c.addr,
			Auth:     true,
			Err:      errors.New("login incorrect"),
		}
	}
	return nil
}

func (c *telnetConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	if err := c.dial(); err != nil {
		return Outcome{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}

	if _, err := c.conn.Write([]byte(act.Command + "\n")); err != nil {
		c.Close()
		return Outcome{}, &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
	}
	data, err := c.conn.ReadUntil(c.prompt)
	if err != nil {
		// A deadline error leaves the stream mid-response; the connection
		// cannot be reused.
		c.Close()
		if isDeadline(err) {
			return Outcome{}, &TimeoutError{Protocol: "telnet", Action: act.Name}
		}
		return Outcome{}, &ConnectionError{Protocol: "telnet", Addr: c.addr, Err: err}
	}

	output := string(data)
	// Drop the echoed command line and the trailing prompt.
	if idx := strings.Index(output, "\n"); idx >= 0 {
		output = output[idx+1:]
	}
	output = strings.TrimSuffix(output, c.prompt)

	return Outcome{Output: strings.TrimSpace(output)}, nil
}

func isDeadline(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *telnetConnector) TestConnection(ctx context.Context) error {
	if err := c.dial(); err != nil {
		return err
	}
	return nil
}

func (c *telnetConnector) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
