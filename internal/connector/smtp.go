package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"opsbridge/console/internal/secrets"
)

// smtpConnector sends mail through a target mail server. The action command
// is the subject line; recipients and body come from the action parameters.
type smtpConnector struct {
	addr   string
	from   string
	dialer *gomail.Dialer
}

// NewSMTP builds an SMTP connector. Settings: "from" is the envelope
// sender (default the credential username).
func NewSMTP(ep Endpoint, cred secrets.Credential) (Connector, error) {
	port := ep.Port
	if port == 0 {
		port = 25
	}
	from := ep.Settings["from"]
	if from == "" {
		from = cred.Username
	}
	if from == "" {
		return nil, fmt.Errorf("smtp connector requires a sender address")
	}

	return &smtpConnector{
		addr:   fmt.Sprintf("%s:%d", ep.Host, port),
		from:   from,
		dialer: gomail.NewDialer(ep.Host, port, cred.Username, cred.Password),
	}, nil
}

func (c *smtpConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	to := strings.Split(act.Params["to"], ",")
	for i := range to {
		to[i] = strings.TrimSpace(to[i])
	}
	if len(to) == 0 || to[0] == "" {
		return Outcome{ExitCode: 1, ErrOutput: "no recipients given"}, nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", act.Command)
	m.SetBody("text/plain", act.Params["body"])

	done := make(chan error, 1)
	go func() {
		done <- c.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, &TimeoutError{Protocol: "smtp", Action: act.Name}
		}
		return Outcome{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return Outcome{}, &ConnectionError{
				Protocol: "smtp",
				Addr:     c.addr,
				Auth:     strings.Contains(err.Error(), "535"),
				Err:      err,
			}
		}
	}
	return Outcome{Output: fmt.Sprintf("mail sent to %s\n", strings.Join(to, ", "))}, nil
}

func (c *smtpConnector) TestConnection(ctx context.Context) error {
	closer, err := c.dialer.Dial()
	if err != nil {
		return &ConnectionError{Protocol: "smtp", Addr: c.addr, Err: err}
	}
	return closer.Close()
}

func (c *smtpConnector) Close() error {
	return nil
}
