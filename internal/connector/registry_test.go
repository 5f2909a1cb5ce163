package connector

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsbridge/console/internal/models"
	"opsbridge/console/internal/secrets"
)

type nopConn struct{ protocol string }

func (c *nopConn) Execute(context.Context, Action) (Outcome, error) { return Outcome{}, nil }
func (c *nopConn) TestConnection(context.Context) error             { return nil }
func (c *nopConn) Close() error                                     { return nil }

func testRegistry(creds map[string]secrets.Credential) *Registry {
	r := NewRegistry(secrets.NewStaticProvider(creds))
	for _, protocol := range []string{"ssh", "winrm"} {
		p := protocol
		r.Register(p, func(ep Endpoint, cred secrets.Credential) (Connector, error) {
			return &nopConn{protocol: p}, nil
		})
	}
	return r
}

func TestResolvePicksFirstSupportedMethod(t *testing.T) {
	r := testRegistry(nil)
	target := &models.Target{
		Name: "router1",
		Methods: []models.CommunicationMethod{
			{Protocol: "carrier-pigeon", Host: "r1", Port: 1},
			{Protocol: "ssh", Host: "r1", Port: 22},
			{Protocol: "winrm", Host: "r1", Port: 5985},
		},
	}

	conn, method, err := r.Resolve(target, "")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "ssh", method.Protocol)
}

func TestResolveHonorsDesiredProtocol(t *testing.T) {
	r := testRegistry(nil)
	target := &models.Target{
		Name: "win1",
		Methods: []models.CommunicationMethod{
			{Protocol: "ssh", Host: "w1", Port: 22},
			{Protocol: "winrm", Host: "w1", Port: 5985},
		},
	}

	conn, method, err := r.Resolve(target, "winrm")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "winrm", method.Protocol)

	_, _, err = r.Resolve(target, "telnet")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "win1", resErr.Target)
	assert.Equal(t, "telnet", resErr.Protocol)
}

func TestResolveNoUsableMethod(t *testing.T) {
	r := testRegistry(nil)
	target := &models.Target{Name: "bare"}

	_, _, err := r.Resolve(target, "")
	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestResolveMissingCredential(t *testing.T) {
	r := testRegistry(nil)
	target := &models.Target{
		Name: "db1",
		Methods: []models.CommunicationMethod{
			{Protocol: "ssh", Host: "db1", Port: 22, CredentialRef: "prod-db"},
		},
	}

	_, _, err := r.Resolve(target, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential")
}

func TestResolveRejectsMalformedSettings(t *testing.T) {
	r := testRegistry(nil)
	target := &models.Target{
		Name: "web1",
		Methods: []models.CommunicationMethod{
			{Protocol: "ssh", Host: "w1", Port: 22, Settings: "{not json"},
		},
	}

	_, _, err := r.Resolve(target, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings")
}

func TestDecodeSettings(t *testing.T) {
	settings, err := decodeSettings(`{"work_dir":"/tmp","port":5432,"tls":true}`)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", settings["work_dir"])
	assert.Equal(t, "5432", settings["port"])
	assert.Equal(t, "true", settings["tls"])

	settings, err = decodeSettings("")
	require.NoError(t, err)
	assert.Empty(t, settings)

	_, err = decodeSettings("{broken")
	assert.Error(t, err)
}

func TestTransientClassification(t *testing.T) {
	network := &ConnectionError{Protocol: "ssh", Addr: "h:22", Err: errors.New("connection refused")}
	assert.True(t, Transient(network))

	auth := &ConnectionError{Protocol: "ssh", Addr: "h:22", Auth: true, Err: errors.New("bad password")}
	assert.False(t, Transient(auth))

	assert.False(t, Transient(&TimeoutError{Protocol: "ssh", Action: "step"}))
	assert.False(t, Transient(errors.New("arbitrary")))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&TimeoutError{Protocol: "sql", Action: "query"}))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("other")))
}

func TestDefaultRegistryProtocols(t *testing.T) {
	r := NewDefaultRegistry(secrets.NewStaticProvider(nil))
	for _, protocol := range []string{"ssh", "winrm", "telnet", "local", "sql", "snmp", "http", "smtp"} {
		assert.True(t, r.Supports(protocol), protocol)
	}
	assert.False(t, r.Supports("carrier-pigeon"))
}

func TestLocalConnectorRunsCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell assertions assume a POSIX shell")
	}
	conn, err := NewLocal(Endpoint{Protocol: "local"}, secrets.Credential{})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	outcome, err := conn.Execute(ctx, Action{Name: "echo", Command: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, "hello\n", outcome.Output)

	outcome, err = conn.Execute(ctx, Action{Name: "fail", Command: "exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.ExitCode)
}

func TestLocalConnectorTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell assertions assume a POSIX shell")
	}
	conn, err := NewLocal(Endpoint{Protocol: "local"}, secrets.Credential{})
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.Execute(ctx, Action{Name: "sleep", Command: "sleep 5"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}
