// Package upnp is a control point for UPnP media players: it maps the
// services a device describes, invokes SOAP actions on them and maintains
// GENA event subscriptions.
package upnp

import (
	"errors"
	"strings"

	"github.com/forestnode-io/knob/pkg/xmltree"
)

var ErrServiceNotFound = errors.New("service not found")

// Service is one entry of a device description's serviceList.
type Service struct {
	// Name is the short service name, e.g. AVTransport.
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	ControlURL  string `json:"controlURL" yaml:"controlURL"`
	EventSubURL string `json:"eventSubURL" yaml:"eventSubURL"`
}

// ServiceMap is keyed by short service name.
type ServiceMap map[string]Service

// Lookup returns the named service or an error wrapping ErrServiceNotFound.
func (m ServiceMap) Lookup(name string) (Service, error) {
	s, ok := m[name]
	if !ok {
		return Service{}, &serviceError{name: name}
	}
	return s, nil
}

type serviceError struct {
	name string
}

func (e *serviceError) Error() string {
	return "service " + e.name + ": " + ErrServiceNotFound.Error()
}

func (e *serviceError) Unwrap() error {
	return ErrServiceNotFound
}

// ServiceName returns the short name carried by a service type URN, the
// segment after "service":
//
//	urn:schemas-upnp-org:service:AVTransport:1 -> AVTransport
func ServiceName(serviceType string) string {
	parts := strings.Split(serviceType, ":")
	for i, p := range parts {
		if p == "service" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	if len(parts) > 3 {
		return parts[3]
	}
	return serviceType
}

// MapServices collects the services of the root device and, recursively,
// of every embedded device. description is either a parsed document or its
// root element.
//
// When two devices describe services with the same short name the one
// encountered last wins.
func MapServices(description *xmltree.Node) (ServiceMap, error) {
	root := description
	if _, r, ok := description.FindLocal("root"); ok {
		root = r
	}
	device, err := root.LookupNode(xmltree.K("device", 0))
	if err != nil {
		return nil, err
	}

	services := make(ServiceMap)
	mapDevice(device, services)
	return services, nil
}

func mapDevice(device *xmltree.Node, services ServiceMap) {
	for _, svc := range device.Child("serviceList").Children("service") {
		serviceType := text(svc, "serviceType")
		if serviceType == "" {
			continue
		}
		name := ServiceName(serviceType)
		services[name] = Service{
			Name:        name,
			Type:        serviceType,
			ControlURL:  text(svc, "controlURL"),
			EventSubURL: text(svc, "eventSubURL"),
		}
	}
	for _, embedded := range device.Child("deviceList").Children("device") {
		mapDevice(embedded, services)
	}
}

func text(n *xmltree.Node, name string) string {
	return strings.TrimSpace(xmltree.Unescape(n.Text(name)))
}
