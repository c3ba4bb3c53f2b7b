package scriptenv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func getterFrom(vars map[string]string) Getter {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromGetterConnect(t *testing.T) {
	env, err := FromGetter(getterFrom(map[string]string{
		"reason":               "connect",
		"TUNDEV":               "utun9",
		"VPNGATEWAY":           "10.0.0.1",
		"INTERNAL_IP4_ADDRESS": "10.0.0.100",
		"INTERNAL_IP4_DNS":     "10.0.0.2 10.0.0.3",
		"INTERNAL_IP4_NETMASK": "255.255.255.0",
	}))
	require.NoError(t, err)
	require.Equal(t, ReasonConnect, env.Reason)
	require.Equal(t, "utun9", env.TunnelDevice)
	require.Equal(t, "10.0.0.1", env.Gateway.String())
	require.Equal(t, "10.0.0.100", env.InternalIP.String())
	require.Len(t, env.DNSServers, 2)
	require.Equal(t, "255.255.255.0", env.Netmask)
}

func TestFromGetterPreInit(t *testing.T) {
	env, err := FromGetter(getterFrom(map[string]string{"reason": "pre-init"}))
	require.NoError(t, err)
	require.Equal(t, ReasonPreInit, env.Reason)
	require.Empty(t, env.TunnelDevice)
}

func TestFromGetterMissingReason(t *testing.T) {
	_, err := FromGetter(getterFrom(map[string]string{}))
	require.Error(t, err)
}

func TestFromGetterUnknownReason(t *testing.T) {
	_, err := FromGetter(getterFrom(map[string]string{"reason": "nonsense"}))
	require.Error(t, err)
}

func TestFromGetterInvalidGateway(t *testing.T) {
	_, err := FromGetter(getterFrom(map[string]string{
		"reason":               "connect",
		"TUNDEV":               "utun9",
		"VPNGATEWAY":           "not-an-ip",
		"INTERNAL_IP4_ADDRESS": "10.0.0.100",
	}))
	require.Error(t, err)
}
