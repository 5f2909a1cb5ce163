package connector

import (
	"fmt"
	"sync"

	"opsbridge/console/internal/models"
	"opsbridge/console/internal/secrets"
)

// Factory builds a connector for one endpoint. The credential has already
// been resolved; the connector must not dial until first use.
type Factory func(ep Endpoint, cred secrets.Credential) (Connector, error)

// Registry maps protocol names to connector factories. Resolution happens
// once per target at branch start, never per action.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	secrets   secrets.Provider
}

// NewRegistry creates an empty registry using the given credential provider.
func NewRegistry(provider secrets.Provider) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		secrets:   provider,
	}
}

// Register adds a factory for a protocol, replacing any existing one.
func (r *Registry) Register(protocol string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[protocol] = f
}

// Supports reports whether a protocol has a registered factory.
func (r *Registry) Supports(protocol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[protocol]
	return ok
}

// Resolve picks a communication method for the target and builds its
// connector. When desiredProtocol is set only that method is considered;
// otherwise the first method with a registered factory wins.
func (r *Registry) Resolve(target *models.Target, desiredProtocol string) (Connector, *models.CommunicationMethod, error) {
	var method *models.CommunicationMethod
	for i := range target.Methods {
		m := &target.Methods[i]
		if desiredProtocol != "" && m.Protocol != desiredProtocol {
			continue
		}
		if r.Supports(m.Protocol) {
			method = m
			break
		}
	}
	if method == nil {
		return nil, nil, &ResolutionError{Target: target.Name, Protocol: desiredProtocol}
	}

	cred, err := r.secrets.Lookup(method.CredentialRef)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve credential for target %s: %w", target.Name, err)
	}

	settings, err := decodeSettings(method.Settings)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid settings on target %s method %s: %w", target.Name, method.Protocol, err)
	}

	r.mu.RLock()
	factory := r.factories[method.Protocol]
	r.mu.RUnlock()

	conn, err := factory(Endpoint{
		Protocol: method.Protocol,
		Host:     method.Host,
		Port:     method.Port,
		Settings: settings,
	}, cred)
	if err != nil {
		return nil, nil, err
	}
	return conn, method, nil
}

// NewDefaultRegistry registers every built-in protocol family.
func NewDefaultRegistry(provider secrets.Provider) *Registry {
	r := NewRegistry(provider)
	r.Register("ssh", NewSSH)
	r.Register("winrm", NewWinRM)
	r.Register("telnet", NewTelnet)
	r.Register("local", NewLocal)
	r.Register("sql", NewSQL)
	r.Register("snmp", NewSNMP)
	r.Register("http", NewHTTP)
	r.Register("smtp", NewSMTP)
	return r
}
