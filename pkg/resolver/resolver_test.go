package resolver

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryByteLayout(t *testing.T) {
	query, err := BuildQuery("example.com")
	require.NoError(t, err)
	require.Len(t, query, 29)

	assert.Equal(t, byte(0x01), query[2])
	assert.Equal(t, byte(0x00), query[3])
	assert.Equal(t, byte(0x00), query[4])
	assert.Equal(t, byte(0x01), query[5])
	assert.Equal(t, byte(7), query[12]) // len("example")
	assert.Equal(t, byte(3), query[20]) // len("com")
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x01}, query[24:29])
}

func startFakeServer(t *testing.T, answer string) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 512)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		req := new(dns.Msg)
		if err := req.Unpack(buf[:n]); err != nil {
			return
		}
		resp := new(dns.Msg)
		resp.SetReply(req)
		if answer != "" {
			rr, err := dns.NewRR(answer)
			if err == nil {
				resp.Answer = append(resp.Answer, rr)
			}
		}
		out, err := resp.Pack()
		if err != nil {
			return
		}
		_, _ = pc.WriteTo(out, addr)
	}()

	return pc
}

func TestQueryServerAddrReturnsAnswer(t *testing.T) {
	pc := startFakeServer(t, "routed.example.com. 60 IN A 10.0.1.50")
	defer pc.Close()

	query, err := BuildQuery("routed.example.com")
	require.NoError(t, err)

	ip, err := queryServerAddr(query, pc.LocalAddr().String())
	require.NoError(t, err)
	assert.True(t, ip.Equal(net.ParseIP("10.0.1.50")))
}

func TestQueryServerAddrNoAnswerRecord(t *testing.T) {
	pc := startFakeServer(t, "")
	defer pc.Close()

	query, err := BuildQuery("routed.example.com")
	require.NoError(t, err)

	_, err = queryServerAddr(query, pc.LocalAddr().String())
	require.Error(t, err)
}

func TestResolveNoServersConfigured(t *testing.T) {
	r := New(nil)
	_, err := r.Resolve("example.com")
	require.Error(t, err)
}
