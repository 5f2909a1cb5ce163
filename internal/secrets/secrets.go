package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Credential is the material needed to open a session on a target. Which
// fields are set depends on the protocol: SSH needs a user plus password or
// private key, SNMP needs a community string, SQL needs a DSN user/password.
type Credential struct {
	Username   string
	Password   string
	PrivateKey []byte // PEM, SSH only
	Community  string // SNMP
	Token      string // HTTP bearer auth
}

// Provider resolves a credential reference to credential material.
// Credential data lives outside the engine; the engine only ever holds a
// reference and resolves it at dial time.
type Provider interface {
	Lookup(ref string) (Credential, error)
}

// EnvProvider resolves references against environment variables:
// ref "web-prod" reads OPSBRIDGE_CRED_WEB_PROD_USER, ..._PASSWORD,
// ..._KEYFILE (path to a PEM file), ..._COMMUNITY and ..._TOKEN.
type EnvProvider struct {
	Prefix string // defaults to OPSBRIDGE_CRED
}

func (p EnvProvider) Lookup(ref string) (Credential, error) {
	if ref == "" {
		return Credential{}, nil
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = "OPSBRIDGE_CRED"
	}
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(ref))
	base := prefix + "_" + key

	cred := Credential{
		Username:  os.Getenv(base + "_USER"),
		Password:  os.Getenv(base + "_PASSWORD"),
		Community: os.Getenv(base + "_COMMUNITY"),
		Token:     os.Getenv(base + "_TOKEN"),
	}
	if keyFile := os.Getenv(base + "_KEYFILE"); keyFile != "" {
		pem, err := os.ReadFile(keyFile)
		if err != nil {
			return Credential{}, fmt.Errorf("failed to read key file for credential %s: %w", ref, err)
		}
		cred.PrivateKey = pem
	}
	if cred.Username == "" && cred.Password == "" && cred.Community == "" &&
		cred.Token == "" && len(cred.PrivateKey) == 0 {
		return Credential{}, fmt.Errorf("credential %s not found in environment", ref)
	}
	return cred, nil
}

// StaticProvider serves credentials from a fixed map. Used in tests and as
// a stand-in when no external secret store is configured.
type StaticProvider struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

func NewStaticProvider(creds map[string]Credential) *StaticProvider {
	if creds == nil {
		creds = make(map[string]Credential)
	}
	return &StaticProvider{creds: creds}
}

func (p *StaticProvider) Set(ref string, cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds[ref] = cred
}

func (p *StaticProvider) Lookup(ref string) (Credential, error) {
	if ref == "" {
		return Credential{}, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	cred, ok := p.creds[ref]
	if !ok {
		return Credential{}, fmt.Errorf("credential %s not found", ref)
	}
	return cred, nil
}
