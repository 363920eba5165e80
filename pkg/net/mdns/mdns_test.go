package mdns

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_FromText(t *testing.T) {
	entry := zeroconf.NewServiceEntry("RINCON_000E58A1B2C301400@Kitchen", ServiceType, Domain)
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.Port = 1443
	entry.Text = []string{
		"info=/api/v1/players/RINCON_000E58A1B2C301400/info",
		"location=http://192.168.1.20:1400/xml/device_description.xml",
		"hhid=Sonos_abc",
	}

	rec, ok := Record(entry)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.20", rec.SourceIP)
	assert.Equal(t, "Sonos_abc", rec.HouseholdID)
	assert.Equal(t, 1400, rec.Endpoint.Port)
	assert.Equal(t, "/xml/device_description.xml", rec.Path)
	assert.Equal(t, "RINCON_000E58A1B2C301400@Kitchen", rec.Header.Get("server"))
}

func TestRecord_DerivedLocation(t *testing.T) {
	entry := zeroconf.NewServiceEntry("Kitchen", ServiceType, Domain)
	entry.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.9")}

	rec, ok := Record(entry)
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.9:1400/xml/device_description.xml", rec.Location)
	assert.Empty(t, rec.HouseholdID)
}

func TestRecord_NoAddress(t *testing.T) {
	_, ok := Record(zeroconf.NewServiceEntry("Kitchen", ServiceType, Domain))
	assert.False(t, ok)
}
