package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"opsbridge/console/internal/secrets"
)

// httpConnector calls REST APIs exposed by a target. The action command is
// the request path; method and body come from the action parameters.
type httpConnector struct {
	addr   string
	client *resty.Client
}

// NewHTTP builds an HTTP connector. Settings: "scheme" (default http),
// "base_path" is prefixed to every action path. Bearer token or basic auth
// comes from the credential.
func NewHTTP(ep Endpoint, cred secrets.Credential) (Connector, error) {
	scheme := ep.Settings["scheme"]
	if scheme == "" {
		scheme = "http"
	}
	port := ep.Port
	if port == 0 {
		if scheme == "https" {
			port = 443
		} else {
			port = 80
		}
	}

	addr := fmt.Sprintf("%s:%d", ep.Host, port)
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s://%s%s", scheme, addr, ep.Settings["base_path"]))
	if cred.Token != "" {
		client.SetAuthToken(cred.Token)
	} else if cred.Username != "" {
		client.SetBasicAuth(cred.Username, cred.Password)
	}

	return &httpConnector{addr: addr, client: client}, nil
}

func (c *httpConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	method := strings.ToUpper(act.Params["method"])
	if method == "" {
		method = "GET"
	}

	req := c.client.R().SetContext(ctx)
	if body := act.Params["body"]; body != "" {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, act.Command)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{}, &TimeoutError{Protocol: "http", Action: act.Name}
		}
		return Outcome{}, &ConnectionError{Protocol: "http", Addr: c.addr, Err: err}
	}

	outcome := Outcome{Output: resp.String()}
	if resp.IsError() {
		// The call completed; a 4xx/5xx is an execution failure, not a
		// connection problem, and is never retried.
		outcome.ExitCode = resp.StatusCode()
		outcome.ErrOutput = resp.Status()
	}
	return outcome, nil
}

func (c *httpConnector) TestConnection(ctx context.Context) error {
	if _, err := c.client.R().SetContext(ctx).Head("/"); err != nil {
		return &ConnectionError{Protocol: "http", Addr: c.addr, Err: err}
	}
	return nil
}

func (c *httpConnector) Close() error {
	return nil
}
