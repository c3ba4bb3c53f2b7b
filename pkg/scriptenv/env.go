// Package scriptenv parses the environment a third-party VPN process (the
// "script mode" collaborator named in spec.md §6) sets when invoking this
// tool as its connect/disconnect helper. Shape and field names follow the
// original implementation's openconnect/env.rs.
package scriptenv

import (
	"net"
	"os"
	"strings"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// Reason is the lifecycle event the invoking process is reporting.
type Reason string

const (
	ReasonPreInit    Reason = "pre-init"
	ReasonConnect    Reason = "connect"
	ReasonDisconnect Reason = "disconnect"
	ReasonReconnect  Reason = "reconnect"
)

func parseReason(s string) (Reason, error) {
	switch Reason(s) {
	case ReasonPreInit, ReasonConnect, ReasonDisconnect, ReasonReconnect:
		return Reason(s), nil
	default:
		return "", vpnerr.ConfigInvalid.Newf("scriptenv: unknown reason %q", s)
	}
}

// Env is the parsed set of variables the invoking process provides, per
// spec.md §6's script-mode contract.
type Env struct {
	Reason       Reason
	TunnelDevice string
	Gateway      net.IP
	InternalIP   net.IP
	DNSServers   []net.IP
	Netmask      string
}

// Getter abstracts os.LookupEnv so tests can supply a fixed environment.
type Getter func(key string) (string, bool)

// FromOSEnv parses the current process environment.
func FromOSEnv() (*Env, error) {
	return FromGetter(os.LookupEnv)
}

// FromGetter parses an environment through an arbitrary Getter.
func FromGetter(get Getter) (*Env, error) {
	reasonStr, ok := get("reason")
	if !ok {
		return nil, vpnerr.ConfigInvalid.New("scriptenv: missing reason")
	}
	reason, err := parseReason(reasonStr)
	if err != nil {
		return nil, err
	}

	if reason == ReasonPreInit {
		return &Env{Reason: reason}, nil
	}

	tunDev, ok := get("TUNDEV")
	if !ok {
		return nil, vpnerr.ConfigInvalid.New("scriptenv: missing TUNDEV")
	}

	gatewayStr, ok := get("VPNGATEWAY")
	if !ok {
		return nil, vpnerr.ConfigInvalid.New("scriptenv: missing VPNGATEWAY")
	}
	gateway := net.ParseIP(gatewayStr)
	if gateway == nil {
		return nil, vpnerr.ConfigInvalid.Newf("scriptenv: invalid VPNGATEWAY %q", gatewayStr)
	}

	internalStr, ok := get("INTERNAL_IP4_ADDRESS")
	if !ok {
		return nil, vpnerr.ConfigInvalid.New("scriptenv: missing INTERNAL_IP4_ADDRESS")
	}
	internal := net.ParseIP(internalStr)
	if internal == nil {
		return nil, vpnerr.ConfigInvalid.Newf("scriptenv: invalid INTERNAL_IP4_ADDRESS %q", internalStr)
	}

	var dnsServers []net.IP
	if dnsStr, ok := get("INTERNAL_IP4_DNS"); ok {
		for _, field := range strings.Fields(dnsStr) {
			if ip := net.ParseIP(field); ip != nil {
				dnsServers = append(dnsServers, ip)
			}
		}
	}

	netmask, _ := get("INTERNAL_IP4_NETMASK")

	return &Env{
		Reason:       reason,
		TunnelDevice: tunDev,
		Gateway:      gateway,
		InternalIP:   internal,
		DNSServers:   dnsServers,
		Netmask:      netmask,
	}, nil
}
