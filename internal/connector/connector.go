package connector

import (
	"context"
)

// Action is the execution-time view of one job step, with its type-specific
// parameters already decoded from the job definition.
type Action struct {
	Type    string // command, query, snmp-get, snmp-set, http-call, mail
	Name    string
	Ordinal int
	Command string            // command text, SQL query, OID, URL path or mail subject
	Params  map[string]string // remaining type-specific parameters
}

// Outcome is what one action produced on the remote end. ExitCode 0 means
// the action succeeded; connectors for protocols without native exit codes
// normalize their own notion of failure onto a non-zero code.
type Outcome struct {
	ExitCode  int
	Output    string
	ErrOutput string
}

// Connector is a protocol-specific client bound to one target. A connector
// is owned by the branch that resolved it and is never shared: it dials
// lazily on first use, keeps the session alive for the branch's lifetime
// and is closed when the branch finishes.
type Connector interface {
	Execute(ctx context.Context, act Action) (Outcome, error)
	TestConnection(ctx context.Context) error
	Close() error
}

// Endpoint is the dial information of one communication method, with the
// protocol-specific settings decoded and the credential already resolved
// by the secret provider.
type Endpoint struct {
	Protocol string
	Host     string
	Port     int
	Settings map[string]string
}
