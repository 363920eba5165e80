//go:build unix

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultSocketFactory allocates raw non-blocking sockets.
var DefaultSocketFactory SocketFactory = NewRawSocket

// rawSocket is a BSD socket that stays in blocking mode, bounded by a send
// timeout, until a connect attempt succeeds or reports EISCONN. Switching to
// non-blocking mode before the first connect makes some network stacks fail
// every attempt with EAGAIN or ETIMEDOUT.
type rawSocket struct {
	fd     int
	closed bool
}

func NewRawSocket(Endpoint) (Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	return &rawSocket{fd: fd}, nil
}

func (s *rawSocket) Connect(ctx context.Context, addr netip.AddrPort) error {
	if s.closed {
		return unix.EBADF
	}
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return fmt.Errorf("address %s is not ipv4", addr)
	}

	timeout := ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if 0 < timeout {
		tv := unix.NsecToTimeval(timeout.Nanoseconds())
		_ = unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
	}

	return unix.Connect(s.fd, &unix.SockaddrInet4{
		Port: int(addr.Port()),
		Addr: ip.As4(),
	})
}

func (s *rawSocket) SetNonblocking() error {
	return unix.SetNonblock(s.fd, true)
}

func (s *rawSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return 0, ErrWouldBlock
	case err == unix.ENOTCONN:
		return 0, io.EOF
	case err != nil:
		return 0, err
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (s *rawSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (s *rawSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// UpgradeTLS hands the connected descriptor to the runtime poller and runs
// the TLS handshake over it. The raw socket is closed either way.
func (s *rawSocket) UpgradeTLS(ctx context.Context, config *tls.Config) (Socket, error) {
	f := os.NewFile(uintptr(s.fd), "knob-tls")
	c, err := net.FileConn(f)
	f.Close()
	s.closed = true
	if err != nil {
		return nil, err
	}
	return upgradeConn(ctx, c, config)
}
