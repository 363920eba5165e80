package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forestnode-io/knob/pkg/net/ssdp"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/xmltree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptionTmpl = `<?xml version="1.0" encoding="utf-8" ?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:ZonePlayer:1</deviceType>
    <roomName>%s</roomName>
    <modelName>Sonos One</modelName>
    <UDN>uuid:RINCON_%s01400</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:ZoneGroupTopology:1</serviceType>
        <controlURL>/ZoneGroupTopology/Control</controlURL>
        <eventSubURL>/ZoneGroupTopology/Event</eventSubURL>
      </service>
    </serviceList>
    <deviceList>
      <device>
        <serviceList>
          <service>
            <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
            <controlURL>/MediaRenderer/RenderingControl/Control</controlURL>
            <eventSubURL>/MediaRenderer/RenderingControl/Event</eventSubURL>
          </service>
          <service>
            <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
            <controlURL>/MediaRenderer/AVTransport/Control</controlURL>
            <eventSubURL>/MediaRenderer/AVTransport/Event</eventSubURL>
          </service>
          <service>
            <serviceType>urn:schemas-sonos-com:service:Queue:1</serviceType>
            <controlURL>/MediaRenderer/Queue/Control</controlURL>
            <eventSubURL>/MediaRenderer/Queue/Event</eventSubURL>
          </service>
        </serviceList>
      </device>
    </deviceList>
  </device>
</root>`

const trackDIDL = `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">` +
	`<item id="-1" parentID="-1" restricted="true">` +
	`<res protocolInfo="sonos.com-http:*:audio/mp4:*" duration="0:03:24">x-sonos-http:track.mp4?sid=12&amp;flags=8</res>` +
	`<upnp:albumArtURI>/getaa?s=1&amp;u=x-sonos-http</upnp:albumArtURI>` +
	`<dc:title>Rock &amp; Roll</dc:title>` +
	`<dc:creator>The Band</dc:creator>` +
	`<upnp:album>Live</upnp:album>` +
	`</item></DIDL-Lite>`

const queueDIDL = `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">` +
	`<item id="Q:0/3"><res duration="0:02:00">a</res><upnp:albumArtURI>http://art/1.jpg</upnp:albumArtURI><dc:title>One</dc:title><dc:creator>X</dc:creator><upnp:album>A</upnp:album></item>` +
	`<item id="Q:0/4"><res duration="0:04:00">b</res><upnp:albumArtURI>/getaa?2</upnp:albumArtURI><dc:title>Two</dc:title><dc:creator>Y</dc:creator><upnp:album>B</upnp:album></item>` +
	`</DIDL-Lite>`

var argPattern = regexp.MustCompile(`<(\w+)>([^<]*)</(\w+)>`)

type fakeSonos struct {
	room    string
	mac     string
	primary bool

	mu      sync.Mutex
	actions []string
	args    []map[string]string
}

func (f *fakeSonos) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprintf(w, descriptionTmpl, f.room, f.mac)
		return
	}

	body, _ := io.ReadAll(r.Body)
	soapAction := r.Header.Get("SOAPACTION")
	action := soapAction[strings.Index(soapAction, "#")+1:]
	args := make(map[string]string)
	for _, m := range argPattern.FindAllStringSubmatch(string(body), -1) {
		args[m[1]] = m[2]
	}

	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.args = append(f.args, args)
	f.mu.Unlock()

	var result string
	switch action {
	case "GetZoneGroupAttributes":
		groupID := ""
		if f.primary {
			groupID = "RINCON_" + f.mac + "01400:12"
		}
		result = `<CurrentZoneGroupName>` + f.room + `</CurrentZoneGroupName>` +
			`<CurrentZoneGroupID>` + groupID + `</CurrentZoneGroupID>` +
			`<CurrentMuseHouseholdId>Sonos_abc.def</CurrentMuseHouseholdId>`
	case "GetTransportInfo":
		result = `<CurrentTransportState>PLAYING</CurrentTransportState><CurrentTransportStatus>OK</CurrentTransportStatus>`
	case "GetVolume":
		result = `<CurrentVolume>17</CurrentVolume>`
	case "GetPositionInfo":
		result = `<Track>3</Track><TrackDuration>0:03:24</TrackDuration>` +
			`<TrackMetaData>` + xmltree.Escape(trackDIDL) + `</TrackMetaData>` +
			`<RelTime>0:01:02</RelTime>`
	case "GetMediaInfo":
		result = `<NrTracks>10</NrTracks><CurrentURI>x-rincon-queue:RINCON_` + f.mac + `01400#0</CurrentURI>` +
			`<CurrentURIMetaData></CurrentURIMetaData><PlayMedium>NETWORK</PlayMedium>`
	case "Browse":
		result = `<Result>` + xmltree.Escape(queueDIDL) + `</Result><NumberReturned>2</NumberReturned>`
	}

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	io.WriteString(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>`+
		`<u:`+action+`Response xmlns:u="urn:x">`+result+`</u:`+action+`Response>`+
		`</s:Body></s:Envelope>`)
}

func (f *fakeSonos) lastArgs() (string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions[len(f.actions)-1], f.args[len(f.args)-1]
}

func testClient() *transport.Client {
	return &transport.Client{
		Timeout:  5 * time.Second,
		ReadPoll: time.Millisecond,
	}
}

func connectFake(t *testing.T, f *fakeSonos) (*Player, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	p, err := Connect(context.Background(), testClient(), srv.URL+"/xml/device_description.xml", "")
	require.NoError(t, err)
	return p, srv
}

func TestConnect(t *testing.T) {
	p, _ := connectFake(t, &fakeSonos{room: "Kitchen", mac: "000E58A1B2C3", primary: true})

	assert.Equal(t, "Kitchen", p.RoomName())
	assert.Equal(t, "Sonos_abc.def", p.HouseholdID)
	assert.True(t, p.IsPrimary())
	assert.Equal(t, "00:0E:58:A1:B2:C3", p.MAC())
	assert.Equal(t, "Sonos One", p.ModelName())
}

func TestTransportControls(t *testing.T) {
	ctx := context.Background()
	f := &fakeSonos{room: "Kitchen", mac: "000E58A1B2C3"}
	p, _ := connectFake(t, f)

	state, err := p.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PLAYING", state)

	vol, err := p.Volume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, vol)

	vol, err = p.SetVolume(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, 100, vol)
	action, args := f.lastArgs()
	assert.Equal(t, "SetVolume", action)
	assert.Equal(t, map[string]string{"InstanceID": "0", "Channel": "Master", "DesiredVolume": "100"}, args)

	vol, err = p.SetVolume(ctx, -3)
	require.NoError(t, err)
	assert.Equal(t, 0, vol)

	require.NoError(t, p.Play(ctx))
	action, args = f.lastArgs()
	assert.Equal(t, "Play", action)
	assert.Equal(t, "1", args["Speed"])

	require.NoError(t, p.Previous(ctx))
	action, _ = f.lastArgs()
	assert.Equal(t, "Previous", action)

	require.NoError(t, p.SeekTrack(ctx, 4))
	_, args = f.lastArgs()
	assert.Equal(t, map[string]string{"InstanceID": "0", "Unit": "TRACK_NR", "Target": "5"}, args)

	require.NoError(t, p.SeekPosition(ctx, "0:01:30"))
	_, args = f.lastArgs()
	assert.Equal(t, "REL_TIME", args["Unit"])
	assert.Equal(t, "0:01:30", args["Target"])
}

func TestCurrentTrack(t *testing.T) {
	p, srv := connectFake(t, &fakeSonos{room: "Kitchen", mac: "000E58A1B2C3"})

	track, err := p.CurrentTrack(context.Background())
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, Track{
		Title:         "Rock & Roll",
		Artist:        "The Band",
		Album:         "Live",
		AlbumArt:      srv.URL + "/getaa?s=1&u=x-sonos-http",
		URI:           "x-sonos-http:track.mp4?sid=12&flags=8",
		Position:      "0:01:02",
		Duration:      "0:03:24",
		QueuePosition: 2,
	}, *track)
}

func TestQueue(t *testing.T) {
	p, srv := connectFake(t, &fakeSonos{room: "Kitchen", mac: "000E58A1B2C3"})

	items, err := p.Queue(context.Background(), 2, 3)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "One", items[0].Title)
	assert.Equal(t, 3, items[0].QueuePosition)
	assert.Equal(t, "http://art/1.jpg", items[0].AlbumArt)
	assert.Equal(t, "0:04:00", items[1].Duration)
	assert.Equal(t, 4, items[1].QueuePosition)
	assert.Equal(t, srv.URL+"/getaa?2", items[1].AlbumArt)
}

func TestStatus(t *testing.T) {
	p, _ := connectFake(t, &fakeSonos{room: "Den", mac: "000E58A1B2C3"})

	s, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Den", s.Room)
	assert.Equal(t, "PLAYING", s.State)
	assert.Equal(t, 17, s.Volume)
	require.NotNil(t, s.Track)
	assert.Equal(t, "NETWORK", s.Media.Medium)
	assert.Equal(t, "x-rincon-queue:RINCON_000E58A1B2C301400#0", s.Media.URI)
}

func TestMACFromUSN(t *testing.T) {
	mac, ok := MACFromUSN("uuid:RINCON_000E58A1B2C301400::urn:schemas-upnp-org:device:ZonePlayer:1")
	assert.True(t, ok)
	assert.Equal(t, "00:0E:58:A1:B2:C3", mac)

	_, ok = MACFromUSN("uuid:2fac1234-31f8-11b4-a222-08002b34c003")
	assert.False(t, ok)
}

func record(srv *httptest.Server, mac, household string) ssdp.Record {
	location := srv.URL + "/xml/device_description.xml"
	ep, path, _ := transport.ParseURL(location)
	header := make(transport.HeaderMap)
	header.Add("USN", "uuid:RINCON_"+mac+"01400::urn:schemas-upnp-org:device:ZonePlayer:1")
	return ssdp.Record{
		SourceIP:    ep.Host,
		Location:    location,
		Endpoint:    ep,
		Path:        path,
		HouseholdID: household,
		Header:      header,
	}
}

func TestLocate(t *testing.T) {
	var (
		satellite = httptest.NewServer(&fakeSonos{room: "Living Room", mac: "000E58000001"})
		other     = httptest.NewServer(&fakeSonos{room: "Kitchen", mac: "000E58000002", primary: true})
		primary   = httptest.NewServer(&fakeSonos{room: "Living Room", mac: "000E58000003", primary: true})
		records   = make(chan ssdp.Record, 8)
		locator   = Locator{Client: testClient()}
	)
	defer satellite.Close()
	defer other.Close()
	defer primary.Close()

	records <- record(satellite, "000E58000001", "Sonos_abc")
	records <- record(satellite, "000E58000001", "Sonos_abc")
	records <- record(other, "000E58000002", "Sonos_abc")
	records <- record(other, "000E58000009", "Other_household")
	records <- record(primary, "000E58000003", "Sonos_abc")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := locator.Locate(ctx, records, "Living Room")
	require.NoError(t, err)
	assert.Equal(t, "00:0E:58:00:00:03", p.MAC())

	// a second lookup is served from what was already found
	again, err := locator.Locate(ctx, records, "Living Room")
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestLocate_RecordsClosed(t *testing.T) {
	srv := httptest.NewServer(&fakeSonos{room: "Kitchen", mac: "000E58000002", primary: true})
	defer srv.Close()

	records := make(chan ssdp.Record, 1)
	records <- record(srv, "000E58000002", "Sonos_abc")
	close(records)

	locator := Locator{Client: testClient()}
	_, err := locator.Locate(context.Background(), records, "Attic")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Contains(t, locator.Rooms.Names(), "Kitchen")
}
