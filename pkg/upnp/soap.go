package upnp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/xmltree"
	"github.com/rs/zerolog"
)

// FaultError is a SOAP Fault returned by an action.
type FaultError struct {
	Action          string
	Code            string
	String          string
	UPnPCode        int
	UPnPDescription string
}

func (e *FaultError) Error() string {
	msg := fmt.Sprintf("%s failed: %s (%s)", e.Action, e.String, e.Code)
	if e.UPnPCode != 0 {
		msg += fmt.Sprintf(": upnp error %d", e.UPnPCode)
		if e.UPnPDescription != "" {
			msg += " " + e.UPnPDescription
		}
	}
	return msg
}

// StatusError is an HTTP error status without a SOAP fault body.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Reason     string
}

func newStatusError(method string, resp *transport.Response) *StatusError {
	return &StatusError{
		Method:     method,
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason,
	}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, e.Reason)
}

func envelope(serviceType, action string, args xmltree.Fields) string {
	return `<?xml version="1.0"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"` +
		` s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">` +
		`<s:Body>` +
		`<u:` + action + ` xmlns:u="` + serviceType + `">` +
		xmltree.Marshal(args) +
		`</u:` + action + `>` +
		`</s:Body>` +
		`</s:Envelope>`
}

func soapHeader(serviceType, action string) transport.Header {
	return transport.Header{
		{Name: "Content-Type", Value: `text/xml; charset="utf-8"`},
		{Name: "SOAPACTION", Value: serviceType + "#" + action},
	}
}

// Invoke calls action on the named service. It returns the
// {action}Response element, or the whole envelope Body when the device
// answered without one.
func (d *Device) Invoke(ctx context.Context, service, action string, args xmltree.Fields) (*xmltree.Node, error) {
	svc, err := d.Services.Lookup(service)
	if err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx).With().
		Str("service", service).
		Str("action", action).
		Logger()

	url := d.controlURL(svc)
	resp, err := d.client.Post(ctx, url, soapHeader(svc.Type, action), []byte(envelope(svc.Type, action, args)))
	if err != nil {
		return nil, fmt.Errorf("unable to invoke %s.%s: %w", service, action, err)
	}

	body, parseErr := responseBody(resp)
	if body != nil {
		if fault := findFault(action, body); fault != nil {
			log.Debug().Err(fault).
				Msg("action faulted")
			return nil, fault
		}
	}
	if !resp.OK() {
		return nil, newStatusError("POST", resp)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("unable to read %s response: %w", action, parseErr)
	}

	if _, result, ok := body.FindLocal(action + "Response"); ok {
		return result, nil
	}
	log.Debug().
		Msg("no action response element, returning envelope body")
	return body, nil
}

func responseBody(resp *transport.Response) (*xmltree.Node, error) {
	doc, err := resp.XML()
	if err != nil {
		return nil, err
	}
	_, env, ok := doc.FindLocal("Envelope")
	if !ok {
		return nil, &xmltree.LookupError{Path: []xmltree.Key{xmltree.K("s:Envelope", 0)}}
	}
	_, body, ok := env.FindLocal("Body")
	if !ok {
		return nil, &xmltree.LookupError{
			Path:    []xmltree.Key{xmltree.K("s:Envelope", 0), xmltree.K("s:Body", 0)},
			Missing: 1,
		}
	}
	return body, nil
}

// findFault reads s:Fault and, when present, the detail/UPnPError within it.
func findFault(action string, body *xmltree.Node) *FaultError {
	_, fault, ok := body.FindLocal("Fault")
	if !ok {
		return nil
	}

	fe := FaultError{
		Action: action,
		Code:   text(fault, "faultcode"),
		String: text(fault, "faultstring"),
	}
	if _, detail, ok := fault.FindLocal("detail"); ok {
		if _, upnpErr, ok := detail.FindLocal("UPnPError"); ok {
			fe.UPnPCode, _ = strconv.Atoi(strings.TrimSpace(upnpErr.Text("errorCode")))
			fe.UPnPDescription = text(upnpErr, "errorDescription")
		}
	}
	return &fe
}
