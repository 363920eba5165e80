package transport

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/matryer/is"
)

// fakeSocket replays scripted connect results and response reads.
type fakeSocket struct {
	mu sync.Mutex

	connects []error
	// reads are returned in order; nil entries mean ErrWouldBlock
	reads  [][]byte
	writes []error

	sent     []byte
	closed   bool
	nonblock bool
}

func (s *fakeSocket) Connect(context.Context, netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connects) == 0 {
		return syscall.EISCONN
	}
	err := s.connects[0]
	s.connects = s.connects[1:]
	return err
}

func (s *fakeSocket) SetNonblocking() error {
	s.nonblock = true
	return nil
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) > 0 {
		err := s.writes[0]
		s.writes = s.writes[1:]
		if err != nil {
			return 0, err
		}
	}
	s.sent = append(s.sent, p...)
	return len(p), nil
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reads) == 0 {
		return 0, io.EOF
	}
	next := s.reads[0]
	if next == nil {
		s.reads = s.reads[1:]
		return 0, ErrWouldBlock
	}
	n := copy(p, next)
	if n < len(next) {
		s.reads[0] = next[n:]
	} else {
		s.reads = s.reads[1:]
	}
	return n, nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// script hands out sockets in order and remembers them.
type script struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	made    []*fakeSocket
}

func (sc *script) factory(Endpoint) (Socket, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	s := sc.sockets[0]
	if len(sc.sockets) > 1 {
		sc.sockets = sc.sockets[1:]
	}
	sc.made = append(sc.made, s)
	return s, nil
}

type recorder struct {
	mu           sync.Mutex
	states       []State
	retries      []ErrorClass
	replacements []string
	done         int
}

func (r *recorder) OnState(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) OnRetry(c ErrorClass, _ error) {
	r.mu.Lock()
	r.retries = append(r.retries, c)
	r.mu.Unlock()
}

func (r *recorder) OnSocketReplaced(reason string) {
	r.mu.Lock()
	r.replacements = append(r.replacements, reason)
	r.mu.Unlock()
}

func (r *recorder) OnDone(string, error) {
	r.mu.Lock()
	r.done++
	r.mu.Unlock()
}

func (r *recorder) reached(s State) bool {
	for _, st := range r.states {
		if st == s {
			return true
		}
	}
	return false
}

func testClient(sc *script, obs Observer) *Client {
	return &Client{
		Timeout:        2 * time.Second,
		ConnectBackoff: time.Millisecond,
		ReadPoll:       time.Millisecond,
		NewSocket:      sc.factory,
		Observer:       obs,
	}
}

const okResponse = "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"

func TestClient_ConnectRetryStates(t *testing.T) {
	var (
		is = is.New(t)

		ctx   = context.Background()
		rec   = recorder{}
		first = &fakeSocket{
			connects: []error{syscall.ECONNRESET},
		}
		second = &fakeSocket{
			connects: []error{syscall.EINPROGRESS, syscall.EALREADY, syscall.EISCONN},
			reads:    [][]byte{[]byte(okResponse)},
		}
		sc = script{sockets: []*fakeSocket{first, second}}
	)

	resp, err := testClient(&sc, &rec).Get(ctx, "http://192.168.1.20:1400/status", nil)
	is.NoErr(err)
	is.Equal(resp.StatusCode, 200)
	is.Equal(resp.Text, "hello")

	is.True(rec.reached(StateSending))
	is.Equal(len(rec.replacements), 1) // one hard reset, one replacement
	is.Equal(rec.replacements[0], "hard-reset")
	is.Equal(rec.retries, []ErrorClass{ClassHardReset, ClassTransient, ClassTransient})
	is.Equal(rec.states[len(rec.states)-1], StateDone)
	is.Equal(rec.done, 1)

	is.True(first.closed)
	is.True(second.closed)
	is.True(second.nonblock)
	is.True(strings.HasPrefix(string(second.sent), "GET /status HTTP/1.1\r\n"))
}

func TestClient_OtherErrorsAreBounded(t *testing.T) {
	var (
		is = is.New(t)

		ctx  = context.Background()
		boom = errors.New("boom")
		sock = &fakeSocket{
			connects: []error{boom, boom, boom, boom, boom, boom},
		}
		sc = script{sockets: []*fakeSocket{sock}}
	)

	c := testClient(&sc, nil)
	c.MaxOtherErrors = 3
	_, err := c.Get(ctx, "http://10.0.0.2/", nil)
	is.True(err != nil)

	var ce *ConnectError
	is.True(errors.As(err, &ce))
	is.Equal(ce.Attempts, 3)
	is.True(errors.Is(err, boom))
	is.True(sock.closed)
}

func TestClient_SendFailureReplacesSocket(t *testing.T) {
	var (
		is = is.New(t)

		ctx   = context.Background()
		rec   = recorder{}
		first = &fakeSocket{
			writes: []error{syscall.EPIPE},
		}
		second = &fakeSocket{
			reads: [][]byte{[]byte(okResponse)},
		}
		sc = script{sockets: []*fakeSocket{first, second}}
	)

	resp, err := testClient(&sc, &rec).Post(ctx, "http://10.0.0.2:1400/ctl", Header{{"Content-Type", "text/xml"}}, []byte("<x/>"))
	is.NoErr(err)
	is.Equal(resp.StatusCode, 200)
	is.Equal(rec.replacements, []string{"send"})
	is.True(first.closed)

	sent := string(second.sent)
	is.True(strings.Contains(sent, "Content-Length: 4\r\n"))
	is.True(strings.HasSuffix(sent, "\r\n\r\n<x/>"))
}

func TestClient_WouldBlockReads(t *testing.T) {
	var (
		is = is.New(t)

		ctx  = context.Background()
		sock = &fakeSocket{
			reads: [][]byte{
				nil,
				[]byte("HTTP/1.1 200 OK\r\nTransfer-"),
				nil,
				[]byte("Encoding: chunked\r\n\r\n5\r\nhel"),
				nil, nil,
				[]byte("lo\r\n6\r\n world\r\n0\r\n\r\n"),
			},
		}
		sc = script{sockets: []*fakeSocket{sock}}
	)

	resp, err := testClient(&sc, nil).Get(ctx, "http://10.0.0.2/", nil)
	is.NoErr(err)
	is.Equal(string(resp.Body), "hello world")
	is.True(!resp.IsText) // no content type
}

func TestClient_Timeout(t *testing.T) {
	var (
		is = is.New(t)

		ctx  = context.Background()
		sock = &fakeSocket{}
		sc   = script{sockets: []*fakeSocket{sock}}
	)
	// nothing but would-block reads
	for i := 0; i < 10000; i++ {
		sock.reads = append(sock.reads, nil)
	}

	c := testClient(&sc, nil)
	c.Timeout = 50 * time.Millisecond
	_, err := c.Get(ctx, "http://10.0.0.2/", nil)
	is.True(errors.Is(err, ErrTimeout))
	is.True(sock.closed)
}

func TestClient_Canceled(t *testing.T) {
	var (
		is = is.New(t)

		ctx, cancel = context.WithCancel(context.Background())
		sock        = &fakeSocket{
			connects: []error{syscall.EINPROGRESS, syscall.EINPROGRESS, syscall.EINPROGRESS},
		}
		sc = script{sockets: []*fakeSocket{sock}}
	)
	cancel()

	_, err := testClient(&sc, nil).Get(ctx, "http://10.0.0.2/", nil)
	is.True(errors.Is(err, context.Canceled))
	is.True(!errors.Is(err, ErrTimeout))
}

func TestClient_HeadersBeforeClose(t *testing.T) {
	var (
		is = is.New(t)

		ctx  = context.Background()
		sock = &fakeSocket{
			reads: [][]byte{[]byte("HTTP/1.1 200 OK\r\nContent-Len")},
		}
		sc = script{sockets: []*fakeSocket{sock}}
	)

	_, err := testClient(&sc, nil).Get(ctx, "http://10.0.0.2/", nil)
	var fe *FramingError
	is.True(errors.As(err, &fe))
}

func TestClassify(t *testing.T) {
	is := is.New(t)

	is.Equal(Classify(nil), ClassConnected)
	is.Equal(Classify(syscall.EISCONN), ClassConnected)
	is.Equal(Classify(syscall.ECONNABORTED), ClassHardReset)
	is.Equal(Classify(syscall.EBADF), ClassHardReset)
	is.Equal(Classify(syscall.ETIMEDOUT), ClassTransient)
	is.Equal(Classify(syscall.EAGAIN), ClassTransient)
	is.Equal(Classify(syscall.ECONNREFUSED), ClassOther)
	is.Equal(Classify(errors.New("x")), ClassOther)
}
