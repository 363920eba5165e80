// Package ssdp finds players with SSDP M-SEARCH announcements.
package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

const (
	DefaultSearchTarget    = "urn:schemas-upnp-org:device:ZonePlayer:1"
	DefaultHouseholdHeader = "X-RINCON-HOUSEHOLD"
	DefaultMX              = 3
	DefaultAnnounce        = 300 * time.Second
	DefaultQuietWindow     = 15 * time.Second
	DefaultReadPoll        = 100 * time.Millisecond
	DefaultTTL             = 2
)

var (
	MulticastAddr = net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900}

	// ErrClosed is returned by Next once the Discoverer has been closed.
	ErrClosed = errors.New("discoverer closed")
)

// Record is one discovery response from a player.
type Record struct {
	SourceIP    string
	Location    string
	Endpoint    transport.Endpoint
	Path        string
	HouseholdID string
	Header      transport.HeaderMap
}

func (r Record) USN() string {
	return r.Header.Get("usn")
}

// Base is the location's scheme://host:port.
func (r Record) Base() string {
	return r.Endpoint.Base()
}

type Config struct {
	SearchTarget    string
	HouseholdHeader string
	MX              int
	// Announce is the interval between M-SEARCH datagrams.
	Announce time.Duration
	// QuietWindow is how long to keep reading after the last response
	// before sleeping until the next announce.
	QuietWindow time.Duration
	ReadPoll    time.Duration
	TTL         int
	// Interface names the multicast interface. Empty uses the system default.
	Interface string
}

func (c *Config) setDefaults() {
	if c.SearchTarget == "" {
		c.SearchTarget = DefaultSearchTarget
	}
	if c.HouseholdHeader == "" {
		c.HouseholdHeader = DefaultHouseholdHeader
	}
	if c.MX <= 0 {
		c.MX = DefaultMX
	}
	if c.Announce <= 0 {
		c.Announce = DefaultAnnounce
	}
	if c.QuietWindow <= 0 {
		c.QuietWindow = DefaultQuietWindow
	}
	if c.ReadPoll <= 0 {
		c.ReadPoll = DefaultReadPoll
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
}

func (c *Config) search() []byte {
	tmplt := `M-SEARCH * HTTP/1.1
HOST: %s
MAN: "ssdp:discover"
MX: %d
ST: %s

`
	payload := fmt.Sprintf(tmplt,
		MulticastAddr.String(),
		c.MX,
		c.SearchTarget,
	)
	return []byte(strings.ReplaceAll(payload, "\n", "\r\n"))
}

// Discoverer yields players as they answer. It is not safe for concurrent
// calls to Next.
type Discoverer struct {
	conn   net.PacketConn
	target net.Addr
	cfg    Config
	now    func() time.Time

	lastSend    time.Time
	lastReceive time.Time
	ignore      map[string]struct{}
	buf         []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New opens a UDP socket for discovery.
func New(cfg Config) (*Discoverer, error) {
	cfg.setDefaults()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("unable to open discovery socket: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to set multicast ttl: %w", err)
	}
	if cfg.Interface != "" {
		iface, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("unable to find interface %s: %w", cfg.Interface, err)
		}
		if err := pc.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("unable to set multicast interface %s: %w", cfg.Interface, err)
		}
	}

	return NewWithConn(conn, &MulticastAddr, cfg), nil
}

// NewWithConn runs discovery over conn, sending searches to target.
func NewWithConn(conn net.PacketConn, target net.Addr, cfg Config) *Discoverer {
	cfg.setDefaults()
	return &Discoverer{
		conn:   conn,
		target: target,
		cfg:    cfg,
		now:    time.Now,
		ignore: make(map[string]struct{}),
		buf:    make([]byte, 2048),
		done:   make(chan struct{}),
	}
}

func (d *Discoverer) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close releases the socket. It is safe to call more than once.
func (d *Discoverer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.done)
	return d.conn.Close()
}

// Next blocks until a player answers, ctx is done or the Discoverer is
// closed. Sources that answer without a household id are not players and
// are ignored for the rest of the run.
func (d *Discoverer) Next(ctx context.Context) (Record, error) {
	log := zerolog.Ctx(ctx)

	for {
		if d.isClosed() {
			return Record{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		now := d.now()
		if d.lastSend.IsZero() || d.cfg.Announce < now.Sub(d.lastSend) {
			if _, err := d.conn.WriteTo(d.cfg.search(), d.target); err != nil {
				if d.isClosed() {
					return Record{}, ErrClosed
				}
				return Record{}, fmt.Errorf("unable to send search: %w", err)
			}
			log.Debug().
				Str("st", d.cfg.SearchTarget).
				Msg("sent search")
			d.lastSend = now
			d.lastReceive = time.Time{}
		}

		if !d.lastReceive.IsZero() && d.cfg.QuietWindow < now.Sub(d.lastReceive) {
			wake := d.lastSend.Add(d.cfg.Announce)
			log.Debug().
				Time("until", wake).
				Msg("discovery quiet, sleeping")
			if err := d.sleep(ctx, wake.Sub(now)); err != nil {
				return Record{}, err
			}
			d.lastSend = time.Time{}
			continue
		}

		rec, ok, err := d.read(ctx)
		if err != nil {
			return Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
}

func (d *Discoverer) sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	case <-t.C:
		return nil
	}
}

// read makes one bounded read attempt. It reports false when nothing usable
// arrived.
func (d *Discoverer) read(ctx context.Context) (Record, bool, error) {
	log := zerolog.Ctx(ctx)

	if err := d.conn.SetReadDeadline(time.Now().Add(d.cfg.ReadPoll)); err != nil {
		if d.isClosed() {
			return Record{}, false, ErrClosed
		}
		return Record{}, false, err
	}
	n, addr, err := d.conn.ReadFrom(d.buf)
	if err != nil {
		if d.isClosed() {
			return Record{}, false, ErrClosed
		}
		var ne net.Error
		if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("unable to read discovery response: %w", err)
	}
	d.lastReceive = d.now()

	host := addrIP(addr)
	if _, ignored := d.ignore[host]; ignored {
		return Record{}, false, nil
	}

	_, header := transport.ParseHeaderBlock(string(d.buf[:n]))
	household := header.Get(d.cfg.HouseholdHeader)
	if household == "" {
		log.Debug().
			Str("source", host).
			Msg("ignoring non-player")
		d.ignore[host] = struct{}{}
		return Record{}, false, nil
	}

	location := header.Get("location")
	ep, path, err := transport.ParseURL(location)
	if err != nil {
		log.Debug().Err(err).
			Str("source", host).
			Msg("ignoring response with bad location")
		return Record{}, false, nil
	}
	header.Del(d.cfg.HouseholdHeader)

	return Record{
		SourceIP:    host,
		Location:    location,
		Endpoint:    ep,
		Path:        path,
		HouseholdID: household,
		Header:      header,
	}, true, nil
}

func addrIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Discover runs a Discoverer in the background and delivers each player
// once, keyed by USN. The returned function stops discovery.
func Discover(ctx context.Context, cfg Config) (<-chan Record, func() error, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	records := Stream(ctx, d)
	return records, d.Close, nil
}

// Stream delivers deduplicated records from d until ctx is done or d is
// closed.
func Stream(ctx context.Context, d *Discoverer) <-chan Record {
	var (
		log = zerolog.Ctx(ctx)
		out = make(chan Record)
	)
	go func() {
		defer close(out)
		seen := make(map[string]struct{})
		for {
			rec, err := d.Next(ctx)
			if err != nil {
				if !errors.Is(err, ErrClosed) && ctx.Err() == nil {
					log.Error().Err(err).
						Msg("discovery stopped")
				}
				return
			}
			key := rec.USN()
			if key == "" {
				key = rec.Location
			}
			if _, already := seen[key]; already {
				continue
			}
			seen[key] = struct{}{}

			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
