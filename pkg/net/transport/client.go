// Package transport is an HTTP/1.1 client built directly on sockets.
//
// Each call to Client.Do runs one exchange on its own socket:
//
//	Idle -> Connecting (-> Retrying -> Connecting)* -> Connected -> Sending
//	     -> ReadingHeaders -> ReadingBody -> Done
//
// Connect attempts are polled rather than awaited, and every loop that can
// spin yields or sleeps once per iteration so concurrent exchanges progress.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultConnectBackoff = 250 * time.Millisecond
	DefaultReadPoll       = 100 * time.Millisecond
	DefaultMaxOtherErrors = 5

	readBufferSize = 4096
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRetrying
	StateConnected
	StateSending
	StateReadingHeaders
	StateReadingBody
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRetrying:
		return "retrying"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	case StateReadingHeaders:
		return "reading-headers"
	case StateReadingBody:
		return "reading-body"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Observer receives exchange lifecycle notifications. Implementations must be
// safe for concurrent use since exchanges run in parallel.
type Observer interface {
	OnState(State)
	OnRetry(ErrorClass, error)
	OnSocketReplaced(reason string)
	OnDone(method string, err error)
}

// Client performs HTTP exchanges. The zero value is usable.
type Client struct {
	// Timeout bounds a whole exchange: connect, send and response.
	Timeout time.Duration
	// ConnectBackoff is the pause between polls of a connect in progress.
	ConnectBackoff time.Duration
	// ReadPoll is the pause after a read finds no bytes available.
	ReadPoll time.Duration
	// MaxOtherErrors bounds retries of unclassified connect errors. Zero
	// means DefaultMaxOtherErrors; negative means no bound.
	MaxOtherErrors int

	NewSocket SocketFactory
	Resolve   func(ctx context.Context, host string) (netip.Addr, error)
	TLSConfig *tls.Config
	Observer  Observer
	UserAgent string
}

var DefaultClient = &Client{}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) connectBackoff() backoff.BackOff {
	d := c.ConnectBackoff
	if d <= 0 {
		d = DefaultConnectBackoff
	}
	return backoff.NewConstantBackOff(d)
}

func (c *Client) readPoll() time.Duration {
	if c.ReadPoll > 0 {
		return c.ReadPoll
	}
	return DefaultReadPoll
}

func (c *Client) maxOtherErrors() int {
	if c.MaxOtherErrors == 0 {
		return DefaultMaxOtherErrors
	}
	return c.MaxOtherErrors
}

func (c *Client) socketFactory() SocketFactory {
	if c.NewSocket != nil {
		return c.NewSocket
	}
	return DefaultSocketFactory
}

func (c *Client) resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}
	if c.Resolve != nil {
		return c.Resolve(ctx, host)
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no ipv4 address for %s", host)
	}
	return addrs[0], nil
}

func (c *Client) Get(ctx context.Context, url string, header Header) (*Response, error) {
	return c.Do(ctx, NewRequest("GET", url, header, nil))
}

func (c *Client) Post(ctx context.Context, url string, header Header, body []byte) (*Response, error) {
	return c.Do(ctx, NewRequest("POST", url, header, body))
}

// Do runs one request/response exchange. A response is returned for every
// status code; only transport, framing and timeout failures are errors.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	ex := exchange{
		client: c,
		req:    req,
	}
	log := zerolog.Ctx(ctx).With().
		Str("exchange", uuid.NewString()[:8]).
		Str("method", req.Method).
		Str("url", req.URL).
		Logger()
	ex.log = &log

	resp, err := ex.run(ctx)
	if ex.sock != nil {
		ex.sock.Close()
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				err = fmt.Errorf("%s %s: %w", req.Method, req.URL, ErrTimeout)
			} else {
				err = fmt.Errorf("%s %s: %w", req.Method, req.URL, ctxErr)
			}
		} else {
			err = fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		}
	}
	if o := c.Observer; o != nil {
		o.OnDone(req.Method, err)
	}
	if err != nil {
		ex.log.Debug().Err(err).
			Msg("exchange failed")
		return nil, err
	}

	ex.log.Debug().
		Int("status", resp.StatusCode).
		Int("socket-replacements", ex.replacements).
		Msg("exchange done")

	return resp, nil
}

type exchange struct {
	client *Client
	req    *Request
	log    *zerolog.Logger

	ep   Endpoint
	addr netip.AddrPort
	sock Socket

	state        State
	replacements int
}

func (ex *exchange) setState(s State) {
	ex.state = s
	if o := ex.client.Observer; o != nil {
		o.OnState(s)
	}
}

func (ex *exchange) run(ctx context.Context) (*Response, error) {
	ex.setState(StateIdle)

	ep, path, err := ParseURL(ex.req.URL)
	if err != nil {
		return nil, err
	}
	ex.ep = ep

	ip, err := ex.client.resolve(ctx, ep.Host)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve %s: %w", ep.Host, err)
	}
	ex.addr = netip.AddrPortFrom(ip, uint16(ep.Port))

	header := ex.req.Header
	if ua := ex.client.UserAgent; ua != "" && header.Get("User-Agent") == "" {
		header = header.Clone()
		header.Set("User-Agent", ua)
	}
	raw := (&Request{Method: ex.req.Method, Header: header, Body: ex.req.Body}).format(ep, path)

	if ex.sock, err = ex.newSocket(ctx); err != nil {
		return nil, err
	}

	for {
		if err := ex.connect(ctx); err != nil {
			return nil, err
		}

		ex.setState(StateSending)
		err := ex.send(ctx, raw)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, err
		}
		// a connect that looked successful may not have been; start over
		ex.log.Debug().Err(err).
			Msg("send failed, reconnecting")
		if err := ex.replaceSocket(ctx, "send"); err != nil {
			return nil, err
		}
	}

	if err := yield(ctx); err != nil {
		return nil, err
	}

	resp, err := ex.readResponse(ctx)
	if err != nil {
		return nil, err
	}
	resp.URL = ex.req.URL
	ex.setState(StateDone)

	return resp, nil
}

func (ex *exchange) newSocket(ctx context.Context) (Socket, error) {
	newSocket := ex.client.socketFactory()
	for {
		s, err := newSocket(ex.ep)
		if err == nil {
			return s, nil
		}
		if !isResourceExhausted(err) {
			return nil, fmt.Errorf("unable to allocate socket: %w", err)
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

func (ex *exchange) replaceSocket(ctx context.Context, reason string) error {
	if ex.sock != nil {
		ex.sock.Close()
		ex.sock = nil
	}
	s, err := ex.newSocket(ctx)
	if err != nil {
		return err
	}
	ex.sock = s
	ex.replacements++
	if o := ex.client.Observer; o != nil {
		o.OnSocketReplaced(reason)
	}
	return nil
}

// connect polls the socket's connect until it reports a connection, then
// switches it to non-blocking mode.
func (ex *exchange) connect(ctx context.Context) error {
	var (
		bo         = ex.client.connectBackoff()
		others     int
		maxOthers  = ex.client.maxOtherErrors()
		attempts   int
		observer   = ex.client.Observer
		lastLogged ErrorClass
	)
	ex.setState(StateConnecting)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := ex.sock.Connect(ctx, ex.addr)
		class := Classify(err)
		if class != ClassConnected && observer != nil {
			observer.OnRetry(class, err)
		}
		if class != lastLogged {
			ex.log.Debug().Err(err).
				Stringer("class", class).
				Int("attempt", attempts).
				Msg("connect attempt")
			lastLogged = class
		}

		switch class {
		case ClassConnected:
			ex.setState(StateConnected)
			if err := ex.sock.SetNonblocking(); err != nil {
				return fmt.Errorf("unable to set non-blocking mode: %w", err)
			}
			if ex.ep.Secure() {
				return ex.upgradeTLS(ctx)
			}
			return nil
		case ClassHardReset:
			ex.setState(StateRetrying)
			if err := yield(ctx); err != nil {
				return err
			}
			if err := ex.replaceSocket(ctx, class.String()); err != nil {
				return err
			}
		case ClassTransient:
			ex.setState(StateRetrying)
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return err
			}
		default:
			others++
			if 0 < maxOthers && maxOthers <= others {
				return &ConnectError{Addr: ex.addr, Attempts: attempts, Err: err}
			}
			ex.setState(StateRetrying)
			if err := sleep(ctx, bo.NextBackOff()); err != nil {
				return err
			}
		}
		ex.setState(StateConnecting)
	}
}

func (ex *exchange) upgradeTLS(ctx context.Context) error {
	up, ok := ex.sock.(TLSUpgrader)
	if !ok {
		return errors.New("socket does not support tls")
	}
	config := ex.client.TLSConfig
	if config == nil {
		config = &tls.Config{}
	}
	config = config.Clone()
	if config.ServerName == "" {
		config.ServerName = ex.ep.Host
	}
	s, err := up.UpgradeTLS(ctx, config)
	if err != nil {
		ex.sock = nil
		return fmt.Errorf("tls handshake failed: %w", err)
	}
	ex.sock = s
	return nil
}

func (ex *exchange) send(ctx context.Context, raw []byte) error {
	for 0 < len(raw) {
		n, err := ex.sock.Write(raw)
		raw = raw[n:]
		switch {
		case errors.Is(err, ErrWouldBlock):
			if err := sleep(ctx, ex.client.readPoll()); err != nil {
				return err
			}
		case err != nil:
			return err
		}
	}
	return nil
}

// read pulls the next bytes off the socket, sleeping while none are
// available. It returns io.EOF once the peer has closed.
func (ex *exchange) read(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := yield(ctx); err != nil {
			return 0, err
		}
		n, err := ex.sock.Read(buf)
		switch {
		case 0 < n:
			return n, nil
		case errors.Is(err, ErrWouldBlock):
			if err := sleep(ctx, ex.client.readPoll()); err != nil {
				return 0, err
			}
		case errors.Is(err, io.EOF):
			return 0, io.EOF
		case err != nil:
			return 0, err
		default:
			return 0, io.EOF
		}
	}
}

func (ex *exchange) readResponse(ctx context.Context) (*Response, error) {
	ex.setState(StateReadingHeaders)

	var (
		buf     = make([]byte, readBufferSize)
		headers []byte
	)
	for {
		n, err := ex.read(ctx, buf)
		if err == io.EOF {
			return nil, &FramingError{Msg: "connection closed before end of headers"}
		} else if err != nil {
			return nil, err
		}
		headers = append(headers, buf[:n]...)
		if bytes.Contains(headers, headerTerminator) {
			break
		}
	}

	idx := bytes.Index(headers, headerTerminator)
	br := &bodyReader{
		// bytes already read past the terminator start the body
		buf: append([]byte(nil), headers[idx+len(headerTerminator):]...),
		fill: func() ([]byte, error) {
			n, err := ex.read(ctx, buf)
			if err != nil {
				return nil, err
			}
			return append([]byte(nil), buf[:n]...), nil
		},
	}

	ex.setState(StateReadingBody)
	return assemble(ex.req.Method, string(headers[:idx]), br)
}

func yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return yield(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
