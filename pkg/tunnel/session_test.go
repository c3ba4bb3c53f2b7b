package tunnel

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrivasLab/pmacs-utils/pkg/gpframe"
)

type fakeNic struct {
	mtu     int
	inbound chan []byte
	written chan []byte
}

func newFakeNic(mtu int) *fakeNic {
	return &fakeNic{mtu: mtu, inbound: make(chan []byte, 8), written: make(chan []byte, 8)}
}

func (f *fakeNic) MTU() int { return f.mtu }

func (f *fakeNic) Read(ctx context.Context, buf []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case p := <-f.inbound:
		return copy(buf, p), nil
	}
}

func (f *fakeNic) Write(ctx context.Context, packet []byte) error {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	select {
	case f.written <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TestHandshakeTransitionsToRunning covers spec scenario 6: a mock TLS
// peer that replies with START_TUNNEL on receiving the preamble causes the
// session to reach StateRunning within one second.
func TestHandshakeTransitionsToRunning(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverDone := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(server)
		line, _ := reader.ReadString('\n')
		serverDone <- line
		// Drain the rest of the header block.
		for {
			l, err := reader.ReadString('\n')
			if err != nil || l == "\r\n" {
				break
			}
		}
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\n\r\nSTART_TUNNEL\n"))
	}()

	nic := newFakeNic(1400)
	sess := NewWithConn(client, nic)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.Handshake(context.Background(), "U", "C")
	}()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(1 * time.Second):
		t.Fatal("handshake did not complete within 1s")
	}

	assert.Equal(t, StateRunning, sess.State())

	requestLine := <-serverDone
	assert.Contains(t, requestLine, "GET /ssl-tunnel-connect.sslvpn?user=U&authcookie=C HTTP/1.1")
}

func TestHandshakeFailsWithoutStartTunnel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 4096)
		_, _ = server.Read(buf)
		_, _ = server.Write([]byte("HTTP/1.1 403 Forbidden\r\n\r\n"))
	}()

	nic := newFakeNic(1400)
	sess := NewWithConn(client, nic)
	err := sess.Handshake(context.Background(), "U", "C")
	require.Error(t, err)
}

// TestRunForwardsNicToNet verifies a packet read from the NIC is written
// to the stream as a correctly framed GP data frame.
func TestRunForwardsNicToNet(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	nic := newFakeNic(1400)
	sess := NewWithConn(client, nic)
	sess.state = StateRunning

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	packet := []byte{0x45, 0x00, 0x00, 0x14, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	nic.inbound <- packet

	header := make([]byte, gpframe.HeaderLen)
	_, err := readFullHelper(server, header)
	require.NoError(t, err)
	length, err := gpframe.PayloadLength(header)
	require.NoError(t, err)
	require.EqualValues(t, len(packet), length)

	payload := make([]byte, length)
	_, err = readFullHelper(server, payload)
	require.NoError(t, err)
	assert.Equal(t, packet, payload)

	cancel()
	<-runErr
}

// TestRunForwardsNetToNic verifies a data frame arriving on the stream is
// written to the NIC with its payload unwrapped.
func TestRunForwardsNetToNic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	nic := newFakeNic(1400)
	sess := NewWithConn(client, nic)
	sess.state = StateRunning

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	packet := []byte{0x45, 0x00, 0x00, 0x14}
	_, err := server.Write(gpframe.Encode(packet))
	require.NoError(t, err)

	select {
	case got := <-nic.written:
		assert.Equal(t, packet, got)
	case <-time.After(1 * time.Second):
		t.Fatal("nic did not receive forwarded packet")
	}

	cancel()
	<-runErr
}

// TestSetAggressiveKeepaliveChangesInterval covers spec scenario where the
// 10s "aggressive keepalive" flag is set: the keepalive arm must tick at
// the shorter interval instead of the 30s default.
func TestSetAggressiveKeepaliveChangesInterval(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	nic := newFakeNic(1400)
	sess := NewWithConn(client, nic)
	assert.Equal(t, defaultKeepaliveInterval, sess.keepaliveInterval)

	sess.SetAggressiveKeepalive(true)
	assert.Equal(t, aggressiveKeepaliveInterval, sess.keepaliveInterval)

	sess.SetAggressiveKeepalive(false)
	assert.Equal(t, defaultKeepaliveInterval, sess.keepaliveInterval)
}

func readFullHelper(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
