package upnp

import (
	"context"
	"fmt"

	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/xmltree"
	"github.com/rs/zerolog"
)

// Device is a described UPnP device and the client used to reach it.
type Device struct {
	Location string
	Endpoint transport.Endpoint
	// Description is the description's root element.
	Description *xmltree.Node
	Services    ServiceMap

	client *transport.Client
}

// Connect fetches and maps the device description at location.
func Connect(ctx context.Context, client *transport.Client, location string) (*Device, error) {
	if client == nil {
		client = transport.DefaultClient
	}

	if _, _, err := transport.ParseURL(location); err != nil {
		return nil, err
	}

	resp, err := client.Get(ctx, location, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch device description: %w", err)
	}
	if !resp.OK() {
		return nil, newStatusError("GET", resp)
	}

	doc, err := resp.XML()
	if err != nil {
		return nil, fmt.Errorf("unable to parse device description: %w", err)
	}

	d, err := NewDevice(client, location, doc)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("location", location).
		Int("services", len(d.Services)).
		Msg("connected to device")

	return d, nil
}

// NewDevice builds a device from an already parsed description document.
func NewDevice(client *transport.Client, location string, doc *xmltree.Node) (*Device, error) {
	ep, _, err := transport.ParseURL(location)
	if err != nil {
		return nil, err
	}

	root := doc
	if _, r, ok := doc.FindLocal("root"); ok {
		root = r
	}
	services, err := MapServices(root)
	if err != nil {
		return nil, fmt.Errorf("unable to map services: %w", err)
	}

	return &Device{
		Location:    location,
		Endpoint:    ep,
		Description: root,
		Services:    services,
		client:      client,
	}, nil
}

// Base is the scheme://host:port the device is reached on.
func (d *Device) Base() string {
	return d.Endpoint.Base()
}

// RootDevice returns the description's top-level device element.
func (d *Device) RootDevice() *xmltree.Node {
	return d.Description.Child("device")
}

// Info returns the trimmed, entity-decoded text of a root device field such
// as friendlyName, roomName or UDN.
func (d *Device) Info(name string) string {
	return text(d.RootDevice(), name)
}

// Client returns the transport used for this device.
func (d *Device) Client() *transport.Client {
	return d.client
}

func (d *Device) controlURL(s Service) string {
	return transport.ResolveReference(d.Endpoint, s.ControlURL)
}

func (d *Device) eventURL(s Service) string {
	return transport.ResolveReference(d.Endpoint, s.EventSubURL)
}
