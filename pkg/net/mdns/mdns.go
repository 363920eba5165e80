// Package mdns finds players that advertise themselves over multicast DNS.
// Players publish the same description location they answer SSDP searches
// with, so results are delivered as ssdp.Record values.
package mdns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/forestnode-io/knob/pkg/net/ssdp"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

const (
	ServiceType = "_sonos._tcp"
	Domain      = "local."

	descriptionPath = "/xml/device_description.xml"
)

// Browse streams players until ctx is done. The channel is closed when
// browsing stops.
func Browse(ctx context.Context) (<-chan ssdp.Record, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize mdns resolver: %w", err)
	}

	var (
		log     = zerolog.Ctx(ctx)
		entries = make(chan *zeroconf.ServiceEntry)
		out     = make(chan ssdp.Record)
	)

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("unable to browse %s: %w", ServiceType, err)
	}

	go func() {
		defer close(out)
		for entry := range entries {
			rec, ok := Record(entry)
			if !ok {
				log.Debug().
					Str("instance", entry.Instance).
					Msg("ignoring mdns entry without a usable address")
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				// keep draining so the resolver can finish
			}
		}
	}()

	return out, nil
}

// Record converts a service entry. The TXT "location" key is preferred; the
// description location is otherwise derived from the entry's address.
func Record(entry *zeroconf.ServiceEntry) (ssdp.Record, bool) {
	var (
		txt    = parseText(entry.Text)
		header = make(transport.HeaderMap)
	)

	location := txt["location"]
	if location == "" {
		if len(entry.AddrIPv4) == 0 {
			return ssdp.Record{}, false
		}
		port := entry.Port
		if port == 0 {
			port = 1400
		}
		location = "http://" + net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(port)) + descriptionPath
	}

	ep, path, err := transport.ParseURL(location)
	if err != nil {
		return ssdp.Record{}, false
	}

	for k, v := range txt {
		header.Set(k, v)
	}
	header.Set("location", location)
	if entry.Instance != "" {
		header.Set("server", entry.Instance)
	}

	sourceIP := ep.Host
	if len(entry.AddrIPv4) > 0 {
		sourceIP = entry.AddrIPv4[0].String()
	}

	return ssdp.Record{
		SourceIP:    sourceIP,
		Location:    location,
		Endpoint:    ep,
		Path:        path,
		HouseholdID: txt["hhid"],
		Header:      header,
	}, true
}

func parseText(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, kv := range text {
		k, v, _ := strings.Cut(kv, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}
