package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"opsbridge/console/internal/secrets"
)

// snmpConnector serves get/set actions against SNMP devices. The UDP
// "connection" is opened lazily and reused across a branch.
type snmpConnector struct {
	addr   string
	client *gosnmp.GoSNMP
	open   bool
}

// NewSNMP builds an SNMP connector. Settings: "version" selects 1 or 2c
// (default 2c). The community string comes from the credential.
func NewSNMP(ep Endpoint, cred secrets.Credential) (Connector, error) {
	port := ep.Port
	if port == 0 {
		port = 161
	}

	version := gosnmp.Version2c
	if ep.Settings["version"] == "1" {
		version = gosnmp.Version1
	}

	community := cred.Community
	if community == "" {
		community = "public"
	}

	return &snmpConnector{
		addr: fmt.Sprintf("%s:%d", ep.Host, port),
		client: &gosnmp.GoSNMP{
			Target:    ep.Host,
			Port:      uint16(port),
			Community: community,
			Version:   version,
			Timeout:   10 * time.Second,
			Retries:   0,
		},
	}, nil
}

func (c *snmpConnector) dial() error {
	if c.open {
		return nil
	}
	if err := c.client.Connect(); err != nil {
		return &ConnectionError{Protocol: "snmp", Addr: c.addr, Err: err}
	}
	c.open = true
	return nil
}

func (c *snmpConnector) Execute(ctx context.Context, act Action) (Outcome, error) {
	if err := c.dial(); err != nil {
		return Outcome{}, err
	}
	c.client.Context = ctx

	oids := strings.Fields(act.Command)
	if len(oids) == 0 {
		return Outcome{ExitCode: 1, ErrOutput: "no OID given"}, nil
	}

	var packet *gosnmp.SnmpPacket
	var err error
	switch act.Type {
	case "snmp-set":
		value := act.Params["value"]
		packet, err = c.client.Set([]gosnmp.SnmpPDU{{
			Name:  oids[0],
			Type:  gosnmp.OctetString,
			Value: value,
		}})
	default:
		packet, err = c.client.Get(oids)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Outcome{}, &TimeoutError{Protocol: "snmp", Action: act.Name}
		}
		return Outcome{}, &ConnectionError{Protocol: "snmp", Addr: c.addr, Err: err}
	}
	if packet.Error != gosnmp.NoError {
		return Outcome{
			ExitCode:  int(packet.Error),
			ErrOutput: fmt.Sprintf("snmp error: %v", packet.Error),
		}, nil
	}

	var b strings.Builder
	for _, v := range packet.Variables {
		fmt.Fprintf(&b, "%s = %s\n", v.Name, formatPDU(v))
	}
	return Outcome{Output: b.String()}, nil
}

func formatPDU(v gosnmp.SnmpPDU) string {
	switch v.Type {
	case gosnmp.OctetString:
		if data, ok := v.Value.([]byte); ok {
			return string(data)
		}
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return "no such object"
	}
	return fmt.Sprintf("%v", v.Value)
}

func (c *snmpConnector) TestConnection(ctx context.Context) error {
	if err := c.dial(); err != nil {
		return err
	}
	c.client.Context = ctx
	// sysDescr.0, answered by anything that speaks SNMP at all.
	if _, err := c.client.Get([]string{".1.3.6.1.2.1.1.1.0"}); err != nil {
		return &ConnectionError{Protocol: "snmp", Addr: c.addr, Err: err}
	}
	return nil
}

func (c *snmpConnector) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	return c.client.Conn.Close()
}
