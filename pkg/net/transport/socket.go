package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"
)

// Socket is a stream socket driven by the exchange state machine.
//
// Connect may be called repeatedly on the same socket; each call reports the
// current state of the connection attempt through its error (see Classify).
// Read returns ErrWouldBlock when no bytes are available yet and io.EOF once
// the peer has closed the connection.
type Socket interface {
	Connect(ctx context.Context, addr netip.AddrPort) error
	SetNonblocking() error
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// TLSUpgrader is implemented by sockets that can wrap an established
// connection in TLS.
type TLSUpgrader interface {
	UpgradeTLS(ctx context.Context, config *tls.Config) (Socket, error)
}

// SocketFactory allocates a fresh socket for ep.
type SocketFactory func(ep Endpoint) (Socket, error)

// ConnectTimeout bounds a single blocking connect call made by the default
// sockets.
var ConnectTimeout = 3 * time.Second

// isResourceExhausted reports socket allocation failures worth waiting out.
func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}

// connSocket adapts a net.Conn to the Socket contract.
type connSocket struct {
	conn   net.Conn
	dialer net.Dialer
}

// NewConnSocket returns a Socket backed by the net package dialer.
func NewConnSocket(Endpoint) (Socket, error) {
	return &connSocket{
		dialer: net.Dialer{Timeout: ConnectTimeout},
	}, nil
}

func (s *connSocket) Connect(ctx context.Context, addr netip.AddrPort) error {
	if s.conn != nil {
		return syscall.EISCONN
	}
	c, err := s.dialer.DialContext(ctx, "tcp4", addr.String())
	if err != nil {
		return err
	}
	s.conn = c
	return nil
}

func (s *connSocket) SetNonblocking() error {
	return nil
}

func (s *connSocket) Read(p []byte) (int, error) {
	if s.conn == nil {
		return 0, syscall.ENOTCONN
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := s.conn.Read(p)
	if 0 < n {
		return n, nil
	}
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return 0, ErrWouldBlock
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	}
	return n, err
}

func (s *connSocket) Write(p []byte) (int, error) {
	if s.conn == nil {
		return 0, syscall.ENOTCONN
	}
	_ = s.conn.SetWriteDeadline(time.Time{})
	return s.conn.Write(p)
}

func (s *connSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *connSocket) UpgradeTLS(ctx context.Context, config *tls.Config) (Socket, error) {
	if s.conn == nil {
		return nil, syscall.ENOTCONN
	}
	return upgradeConn(ctx, s.conn, config)
}

func upgradeConn(ctx context.Context, c net.Conn, config *tls.Config) (Socket, error) {
	tc := tls.Client(c, config)
	if err := tc.HandshakeContext(ctx); err != nil {
		tc.Close()
		return nil, err
	}
	return &connSocket{conn: tc}, nil
}
