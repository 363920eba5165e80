// Package player drives Sonos-style zone players through their UPnP
// services.
package player

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/forestnode-io/knob/pkg/xmltree"
	"golang.org/x/sync/errgroup"
)

const (
	MinVolume = 0
	MaxVolume = 100
)

// Player is a connected zone player.
type Player struct {
	*upnp.Device

	HouseholdID    string
	ZoneAttributes map[string]string
}

// Connect describes the player at location and loads its zone attributes.
// householdID may be empty, in which case it is read from the player.
func Connect(ctx context.Context, client *transport.Client, location, householdID string) (*Player, error) {
	d, err := upnp.Connect(ctx, client, location)
	if err != nil {
		return nil, err
	}

	p := Player{
		Device:      d,
		HouseholdID: householdID,
	}
	if err := p.loadZoneAttributes(ctx); err != nil {
		return nil, err
	}
	if p.HouseholdID == "" {
		p.HouseholdID = p.ZoneAttributes["CurrentMuseHouseholdId"]
	}

	return &p, nil
}

func (p *Player) loadZoneAttributes(ctx context.Context) error {
	res, err := p.Invoke(ctx, "ZoneGroupTopology", "GetZoneGroupAttributes", nil)
	if err != nil {
		return fmt.Errorf("unable to load zone attributes: %w", err)
	}

	attrs := make(map[string]string)
	for _, k := range res.Keys() {
		v, _ := res.Get(k.Name, k.Index)
		if k.Index != 0 || v.Kind() == xmltree.KindAttrs {
			continue
		}
		attrs[k.Name] = strings.TrimSpace(xmltree.Unescape(v.Text()))
	}
	p.ZoneAttributes = attrs
	return nil
}

func (p *Player) RoomName() string {
	return p.Info("roomName")
}

// IsPrimary reports whether the player coordinates a zone group. Bonded
// satellites and subwoofers are not.
func (p *Player) IsPrimary() bool {
	return p.ZoneAttributes["CurrentZoneGroupID"] != ""
}

// MAC returns the player's hardware address, from the description or else
// from its UDN.
func (p *Player) MAC() string {
	if mac := p.Info("MACAddress"); mac != "" {
		return strings.ToUpper(mac)
	}
	mac, _ := MACFromUSN(p.Info("UDN"))
	return mac
}

func (p *Player) ModelName() string {
	if name := p.Info("modelName"); name != "" {
		return name
	}
	for _, d := range p.RootDevice().Child("deviceList").Children("device") {
		if name := strings.TrimSpace(d.Text("modelName")); name != "" {
			return name
		}
	}
	return ""
}

func instance() xmltree.Fields {
	return xmltree.Fields{xmltree.F("InstanceID", 0)}
}

func field(res *xmltree.Node, name string) (string, error) {
	s, err := res.LookupText(xmltree.K(name, 0))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(xmltree.Unescape(s)), nil
}

// State returns the transport state, e.g. PLAYING or PAUSED_PLAYBACK.
func (p *Player) State(ctx context.Context) (string, error) {
	res, err := p.Invoke(ctx, "AVTransport", "GetTransportInfo", instance())
	if err != nil {
		return "", err
	}
	return field(res, "CurrentTransportState")
}

func (p *Player) Volume(ctx context.Context) (int, error) {
	res, err := p.Invoke(ctx, "RenderingControl", "GetVolume", instance().With("Channel", "Master"))
	if err != nil {
		return 0, err
	}
	raw, err := field(res, "CurrentVolume")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// SetVolume sets the master volume, clamped to [MinVolume, MaxVolume], and
// returns the volume that was set.
func (p *Player) SetVolume(ctx context.Context, volume int) (int, error) {
	volume = max(MinVolume, min(volume, MaxVolume))
	_, err := p.Invoke(ctx, "RenderingControl", "SetVolume", instance().
		With("Channel", "Master").
		With("DesiredVolume", volume))
	if err != nil {
		return 0, err
	}
	return volume, nil
}

func (p *Player) avTransport(ctx context.Context, action string) error {
	_, err := p.Invoke(ctx, "AVTransport", action, instance().With("Speed", 1))
	return err
}

func (p *Player) Play(ctx context.Context) error {
	return p.avTransport(ctx, "Play")
}

func (p *Player) Pause(ctx context.Context) error {
	return p.avTransport(ctx, "Pause")
}

func (p *Player) Next(ctx context.Context) error {
	return p.avTransport(ctx, "Next")
}

func (p *Player) Previous(ctx context.Context) error {
	return p.avTransport(ctx, "Previous")
}

// SeekTrack jumps to a zero-based queue position.
func (p *Player) SeekTrack(ctx context.Context, track int) error {
	_, err := p.Invoke(ctx, "AVTransport", "Seek", instance().
		With("Unit", "TRACK_NR").
		With("Target", track+1))
	return err
}

// SeekPosition seeks within the current track. position is H:MM:SS.
func (p *Player) SeekPosition(ctx context.Context, position string) error {
	_, err := p.Invoke(ctx, "AVTransport", "Seek", instance().
		With("Unit", "REL_TIME").
		With("Target", position))
	return err
}

// CurrentTrack returns the playing track, or nil when the source does not
// report one.
func (p *Player) CurrentTrack(ctx context.Context) (*Track, error) {
	res, err := p.Invoke(ctx, "AVTransport", "GetPositionInfo", instance().With("Channel", "Master"))
	if err != nil {
		return nil, err
	}
	if !res.Has("TrackMetaData", 0) {
		return nil, nil
	}

	meta := strings.TrimSpace(res.Text("TrackMetaData"))
	if meta == "" || xmltree.Unescape(meta) == "NOT_IMPLEMENTED" {
		return nil, nil
	}
	items, err := parseDIDL(meta, p.Base())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	t := items[0]
	t.Position = res.Text("RelTime")
	if d := res.Text("TrackDuration"); d != "" {
		t.Duration = d
	}
	if n, err := strconv.Atoi(strings.TrimSpace(res.Text("Track"))); err == nil {
		t.QueuePosition = n - 1
	}
	return &t, nil
}

func (p *Player) MediaInfo(ctx context.Context) (Media, error) {
	res, err := p.Invoke(ctx, "AVTransport", "GetMediaInfo", instance())
	if err != nil {
		return Media{}, err
	}

	m := Media{
		Medium: strings.TrimSpace(res.Text("PlayMedium")),
		URI:    xmltree.Unescape(res.Text("CurrentURI")),
	}
	if meta := strings.TrimSpace(res.Text("CurrentURIMetaData")); meta != "" {
		items, err := parseDIDL(meta, p.Base())
		if err != nil {
			return Media{}, err
		}
		if len(items) > 0 {
			m.Title = items[0].Title
			m.Art = items[0].AlbumArt
		}
	}
	return m, nil
}

// Queue returns count queue entries starting at offset.
func (p *Player) Queue(ctx context.Context, count, offset int) ([]Track, error) {
	res, err := p.Invoke(ctx, "Queue", "Browse", xmltree.Fields{
		xmltree.F("QueueID", 0),
		xmltree.F("StartingIndex", offset),
		xmltree.F("RequestedCount", count),
	})
	if err != nil {
		return nil, err
	}
	result, err := res.LookupText(xmltree.K("Result", 0))
	if err != nil {
		return nil, err
	}

	items, err := parseDIDL(result, p.Base())
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].QueuePosition = offset + i
	}
	return items, nil
}

// Status is a point-in-time view of a player.
type Status struct {
	Room   string `json:"room"`
	State  string `json:"state"`
	Volume int    `json:"volume"`
	Track  *Track `json:"track,omitempty"`
	Media  Media  `json:"media"`
}

// Status queries the player's transport, volume and track concurrently.
func (p *Player) Status(ctx context.Context) (*Status, error) {
	s := Status{Room: p.RoomName()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.State, err = p.State(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Volume, err = p.Volume(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Track, err = p.CurrentTrack(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Media, err = p.MediaInfo(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}
