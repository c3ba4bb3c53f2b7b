// Package tunnel drives the established GP tunnel: the HTTP-style
// handshake preamble over a TLS stream, and the steady-state bidirectional
// packet-forwarding loop between a virtual NIC and that stream.
package tunnel

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"

	"github.com/DrivasLab/pmacs-utils/pkg/gpframe"
	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// State is the lifecycle state of a Session, per the component's state
// machine: Init -> NicReady -> TcpUp -> TlsUp -> HandshakeSent -> Running
// -> Closed.
type State int

const (
	StateInit State = iota
	StateNicReady
	StateTcpUp
	StateTlsUp
	StateHandshakeSent
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateNicReady:
		return "nic-ready"
	case StateTcpUp:
		return "tcp-up"
	case StateTlsUp:
		return "tls-up"
	case StateHandshakeSent:
		return "handshake-sent"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	handshakeReadTimeout = 10 * time.Second
	tlsHandshakeTimeout  = 30 * time.Second

	// defaultKeepaliveInterval and aggressiveKeepaliveInterval are the two
	// ticks a Session can run its keepalive arm at; SetAggressiveKeepalive
	// switches between them before Run starts the arm.
	defaultKeepaliveInterval    = 30 * time.Second
	aggressiveKeepaliveInterval = 10 * time.Second
)

// Nic is the single-packet virtual NIC contract the forwarding loop reads
// from and writes to; satisfied by *vnic.Nic.
type Nic interface {
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, packet []byte) error
	MTU() int
}

// Session holds one established tunnel and its forwarding loop state.
// The zero value is not usable; construct with Dial or NewWithConn.
type Session struct {
	conn  net.Conn
	nic   Nic
	state State

	keepaliveInterval time.Duration

	// writeMu serializes outbound data frames against keepalive frames,
	// satisfying the spec's single-writer rule for the TLS stream.
	writeMu sync.Mutex
}

// Dial establishes the TCP+TLS connection to gateway:443 and returns a
// Session still in StateTlsUp, ready for Handshake. nic must already be
// created (StateNicReady is assumed reached by the caller before Dial).
func Dial(ctx context.Context, gateway string, nic Nic) (*Session, error) {
	dlog.Infof(ctx, "dialing %s:443", gateway)

	dialer := &net.Dialer{}
	tcpConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(gateway, "443"))
	if err != nil {
		return nil, vpnerr.SetupFailed.Newf("tunnel: tcp connect to %s: %w", gateway, err)
	}
	if tc, ok := tcpConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	tlsConn := tls.Client(tcpConn, &tls.Config{ServerName: gateway})
	handshakeCtx, cancel := context.WithTimeout(ctx, tlsHandshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		_ = tcpConn.Close()
		return nil, vpnerr.TlsHandshake.Newf("tunnel: tls handshake with %s: %w", gateway, err)
	}

	return NewWithConn(tlsConn, nic), nil
}

// NewWithConn wraps an already-established connection (typically a
// *tls.Conn, but any net.Conn works — tests supply an in-memory pipe).
func NewWithConn(conn net.Conn, nic Nic) *Session {
	return &Session{conn: conn, nic: nic, state: StateTlsUp, keepaliveInterval: defaultKeepaliveInterval}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// SetAggressiveKeepalive switches the keepalive tick between its default
// 30s interval and the 10s "aggressive keepalive" interval. Must be called
// before Run; the keepalive arm reads the interval once when it starts.
func (s *Session) SetAggressiveKeepalive(on bool) {
	if on {
		s.keepaliveInterval = aggressiveKeepaliveInterval
		return
	}
	s.keepaliveInterval = defaultKeepaliveInterval
}

// Handshake sends the ssl-tunnel-connect preamble and blocks until the
// gateway replies with a response containing "START_TUNNEL", or until
// handshakeReadTimeout elapses.
func (s *Session) Handshake(ctx context.Context, username, authCookie string) error {
	request := fmt.Sprintf(
		"GET /ssl-tunnel-connect.sslvpn?user=%s&authcookie=%s HTTP/1.1\r\n"+
			"Host: gateway\r\n"+
			"Connection: keep-alive\r\n"+
			"User-Agent: PAN GlobalProtect\r\n"+
			"\r\n",
		username, authCookie,
	)

	if err := s.conn.SetWriteDeadline(time.Now().Add(handshakeReadTimeout)); err == nil {
		defer func() { _ = s.conn.SetWriteDeadline(time.Time{}) }()
	}
	if _, err := io.WriteString(s.conn, request); err != nil {
		return vpnerr.SetupFailed.Newf("tunnel: write handshake request: %w", err)
	}
	s.state = StateHandshakeSent

	if err := s.conn.SetReadDeadline(time.Now().Add(handshakeReadTimeout)); err == nil {
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	}

	buf := make([]byte, 4096)
	n, err := s.conn.Read(buf)
	if err != nil {
		return vpnerr.SetupFailed.Newf("tunnel: read handshake response: %w", err)
	}
	if !bytes.Contains(buf[:n], []byte("START_TUNNEL")) {
		return vpnerr.SetupFailed.Newf("tunnel: expected START_TUNNEL, got %q", buf[:n])
	}

	s.state = StateRunning
	return nil
}

// Run drives the bidirectional forwarding loop until ctx is cancelled or
// an unrecoverable I/O error occurs. It returns a Cancelled-kind error on
// clean cancellation and an IoError/FrameError-kind error otherwise. Run
// owns three concurrent arms (NIC read, stream read, keepalive tick)
// coordinated through a dgroup.Group so that any arm's failure tears down
// the other two.
func (s *Session) Run(ctx context.Context) error {
	if s.state != StateRunning {
		return vpnerr.SetupFailed.Newf("tunnel: Run called in state %s, want running", s.state)
	}

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})

	grp.Go("nic-to-net", func(ctx context.Context) error {
		return s.pumpNicToNet(ctx)
	})
	grp.Go("net-to-nic", func(ctx context.Context) error {
		return s.pumpNetToNic(ctx)
	})
	grp.Go("keepalive", func(ctx context.Context) error {
		return s.keepaliveLoop(ctx)
	})

	err := grp.Wait()
	s.state = StateClosed
	if err == nil || ctx.Err() != nil {
		return vpnerr.Cancelled.New("tunnel: session cancelled")
	}
	return err
}

func (s *Session) pumpNicToNet(ctx context.Context) error {
	buf := make([]byte, s.nic.MTU()+128)
	for {
		n, err := s.nic.Read(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return vpnerr.IoError.Newf("tunnel: nic read: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := s.writeFrame(gpframe.Encode(buf[:n])); err != nil {
			return err
		}
	}
}

func (s *Session) pumpNetToNic(ctx context.Context) error {
	header := make([]byte, gpframe.HeaderLen)
	for {
		if err := s.readFull(ctx, header); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return vpnerr.IoError.Newf("tunnel: disconnected: %w", err)
			}
			return vpnerr.IoError.Newf("tunnel: read header: %w", err)
		}

		length, err := gpframe.PayloadLength(header)
		if err != nil {
			return err
		}

		var payload []byte
		if length > 0 {
			payload = make([]byte, length)
			if err := s.readFull(ctx, payload); err != nil {
				return vpnerr.IoError.Newf("tunnel: read payload: %w", err)
			}
		}

		frame, err := gpframe.Decode(header, payload)
		if err != nil {
			return err
		}
		if frame.Kind == gpframe.KindKeepalive {
			dlog.Debug(ctx, "received keepalive from gateway")
			continue
		}
		if len(frame.Payload) == 0 {
			continue
		}
		if err := s.nic.Write(ctx, frame.Payload); err != nil {
			return vpnerr.IoError.Newf("tunnel: nic write: %w", err)
		}
	}
}

func (s *Session) keepaliveLoop(ctx context.Context) error {
	for {
		if err := dtime.SleepWithContext(ctx, s.keepaliveInterval); err != nil {
			return nil
		}
		if err := s.writeFrame(gpframe.EncodeKeepalive()); err != nil {
			return err
		}
	}
}

// writeFrame serializes outbound data frames against keepalive frames on
// the same underlying stream, per the single-writer rule.
func (s *Session) writeFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(frame); err != nil {
		return vpnerr.IoError.Newf("tunnel: write frame: %w", err)
	}
	return nil
}

func (s *Session) readFull(ctx context.Context, buf []byte) error {
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := io.ReadFull(s.conn, buf)
		done <- result{err}
	}()
	select {
	case <-ctx.Done():
		_ = s.conn.SetReadDeadline(time.Now())
		<-done
		return ctx.Err()
	case r := <-done:
		return r.err
	}
}

// Close tears down the underlying connection. Safe to call more than
// once.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.state = StateClosed
	return err
}
