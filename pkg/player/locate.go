package player

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/forestnode-io/knob/pkg/net/ssdp"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HouseholdPrefix marks household ids that belong to players.
const HouseholdPrefix = "Sonos_"

var ErrRoomNotFound = errors.New("room not found")

// MACFromUSN reads the hardware address embedded in a player USN such as
// uuid:RINCON_000E58A1B2C301400::urn:...
func MACFromUSN(usn string) (string, bool) {
	const prefix = "uuid:RINCON_"
	if !strings.HasPrefix(usn, prefix) || len(usn) < len(prefix)+12 {
		return "", false
	}
	hex := strings.ToUpper(usn[len(prefix) : len(prefix)+12])
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, hex[i:i+2])
	}
	return strings.Join(parts, ":"), true
}

// Room is the set of players sharing a room name.
type Room struct {
	Name    string
	Players map[string]*Player
	Primary *Player
}

// Rooms accumulates connected players by MAC and by room.
type Rooms struct {
	mu      sync.Mutex
	players map[string]*Player
	rooms   map[string]*Room
}

func NewRooms() *Rooms {
	return &Rooms{
		players: make(map[string]*Player),
		rooms:   make(map[string]*Room),
	}
}

func (r *Rooms) has(mac string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[mac]
	return ok
}

// Add records p under mac.
func (r *Rooms) Add(mac string, p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.players[mac] = p
	name := p.RoomName()
	room, ok := r.rooms[name]
	if !ok {
		room = &Room{Name: name, Players: make(map[string]*Player)}
		r.rooms[name] = room
	}
	room.Players[mac] = p
	if p.IsPrimary() {
		room.Primary = p
	}
}

// Primary returns the room's primary player, if one has been found.
func (r *Rooms) Primary(name string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok || room.Primary == nil {
		return nil, false
	}
	return room.Primary, true
}

// Names returns the rooms seen so far.
func (r *Rooms) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

// Locator connects to discovered players until a room's primary is found.
type Locator struct {
	Client *transport.Client
	Rooms  *Rooms
	// Concurrency bounds simultaneous connects. Zero means 4.
	Concurrency int
}

// Locate consumes records, connecting once to each new player, and returns
// the primary player of room. It returns ErrRoomNotFound if records closes
// first.
func (l *Locator) Locate(ctx context.Context, records <-chan ssdp.Record, room string) (*Player, error) {
	if l.Rooms == nil {
		l.Rooms = NewRooms()
	}
	if p, ok := l.Rooms.Primary(room); ok {
		return p, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		log     = zerolog.Ctx(ctx)
		found   = make(chan *Player, 1)
		pending sync.Map
		g, gctx = errgroup.WithContext(ctx)
	)
	limit := l.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	defer func() {
		cancel()
		_ = g.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p := <-found:
			return p, nil
		case rec, ok := <-records:
			if !ok {
				// let connects in flight finish
				_ = g.Wait()
				if p, ok := l.Rooms.Primary(room); ok {
					return p, nil
				}
				return nil, ErrRoomNotFound
			}
			if !strings.HasPrefix(rec.HouseholdID, HouseholdPrefix) {
				continue
			}
			mac, ok := MACFromUSN(rec.USN())
			if !ok {
				mac = rec.Location
			}
			if l.Rooms.has(mac) {
				log.Debug().
					Str("source", rec.SourceIP).
					Msg("existing player")
				continue
			}
			if _, busy := pending.LoadOrStore(mac, struct{}{}); busy {
				continue
			}
			log.Debug().
				Str("source", rec.SourceIP).
				Msg("found player")

			g.Go(func() error {
				defer pending.Delete(mac)
				p, err := l.connect(gctx, rec)
				if err != nil {
					log.Warn().Err(err).
						Str("location", rec.Location).
						Msg("unable to connect to player")
					return nil
				}
				l.Rooms.Add(mac, p)
				log.Info().
					Str("room", p.RoomName()).
					Str("model", p.ModelName()).
					Str("address", rec.SourceIP).
					Msg("player belongs to room")
				if p.RoomName() == room && p.IsPrimary() {
					select {
					case found <- p:
					default:
					}
				}
				return nil
			})
		}
	}
}

// connect retries timeouts, which a busy player produces routinely.
func (l *Locator) connect(ctx context.Context, rec ssdp.Record) (*Player, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Minute

	return backoff.RetryWithData(func() (*Player, error) {
		p, err := Connect(ctx, l.Client, rec.Location, rec.HouseholdID)
		if err != nil && !errors.Is(err, transport.ErrTimeout) {
			return nil, backoff.Permanent(err)
		}
		return p, err
	}, backoff.WithContext(b, ctx))
}
