// Package resolver implements a minimal stub DNS client that issues A
// queries directly to a specified server over UDP, bypassing the host's
// system resolver so routed hostnames resolve through the tunnel's own
// DNS servers.
package resolver

import (
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// queryTimeout is the per-server read deadline; the spec requires 5
// seconds.
const queryTimeout = 5 * time.Second

// Resolver queries a fixed, ordered list of DNS servers for A records,
// returning the first server's successful answer.
type Resolver struct {
	Servers []net.IP
}

// New creates a Resolver over the given ordered DNS server list.
func New(servers []net.IP) *Resolver {
	return &Resolver{Servers: servers}
}

// BuildQuery constructs the minimal A-record query packet for hostname:
// a 12-byte header (random transaction ID, RD=1 standard query, QDCOUNT=1,
// other counts zero) followed by the QNAME as length-prefixed labels and
// QTYPE=A/QCLASS=IN. Delegated to miekg/dns's wire packer, which produces
// byte-for-byte the same layout this protocol expects.
func BuildQuery(hostname string) ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(hostname), dns.TypeA)
	m.RecursionDesired = true
	m.Id = dns.Id()
	return m.Pack()
}

// Resolve issues the query to each configured server in order, returning
// the first successful A record. Failure modes map to DnsQueryFailed.
func (r *Resolver) Resolve(hostname string) (net.IP, error) {
	if len(r.Servers) == 0 {
		return nil, vpnerr.DnsQueryFailed.New("resolver: no DNS servers configured")
	}
	query, err := BuildQuery(hostname)
	if err != nil {
		return nil, vpnerr.DnsQueryFailed.Newf("resolver: build query for %s: %w", hostname, err)
	}

	var lastErr error
	for _, server := range r.Servers {
		ip, err := queryServerAddr(query, net.JoinHostPort(server.String(), "53"))
		if err == nil {
			return ip, nil
		}
		lastErr = err
	}
	return nil, vpnerr.DnsQueryFailed.Newf("resolver: all servers failed for %s: %w", hostname, lastErr)
}

func queryServerAddr(query []byte, addr string) (net.IP, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(queryTimeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(buf[:n]); err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, vpnerr.DnsQueryFailed.Newf("resolver: server %s returned rcode %s", addr, dns.RcodeToString[resp.Rcode])
	}
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, vpnerr.DnsQueryFailed.Newf("resolver: no A record in answer from %s", addr)
}
