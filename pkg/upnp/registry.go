package upnp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/xmltree"
)

const DefaultServiceHeader = "X-SONOS-SERVICETYPE"

var ErrUnknownSubscription = errors.New("unknown subscription")

// Subscriber holds the most recent event delivered for one subscription.
// A new event replaces one that has not been read yet.
type Subscriber struct {
	Service string

	mu     sync.Mutex
	latest *xmltree.Node
	fresh  bool
	seq    int
	signal chan struct{}
}

func NewSubscriber(service string) *Subscriber {
	return &Subscriber{
		Service: service,
		seq:     -1,
		signal:  make(chan struct{}, 1),
	}
}

func (s *Subscriber) deliver(event *xmltree.Node, seq int) {
	s.mu.Lock()
	s.latest = event
	s.fresh = true
	s.seq = seq
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Latest returns the newest event if it has not been consumed yet.
func (s *Subscriber) Latest() (*xmltree.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return nil, false
	}
	s.fresh = false
	return s.latest, true
}

// Peek returns the newest event without consuming it.
func (s *Subscriber) Peek() (*xmltree.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// Seq is the SEQ header of the newest event, or -1 before the first one.
func (s *Subscriber) Seq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// C is signalled after each delivery. Deliveries that arrive before the
// signal is received are coalesced.
func (s *Subscriber) C() <-chan struct{} {
	return s.signal
}

// Wait blocks until an unconsumed event is available and consumes it.
func (s *Subscriber) Wait(ctx context.Context) (*xmltree.Node, error) {
	for {
		if event, ok := s.Latest(); ok {
			return event, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.signal:
		}
	}
}

type registryKey struct {
	sid     string
	service string
}

// Registry routes inbound NOTIFY requests to subscribers by SID and
// service name.
type Registry struct {
	// ServiceHeader names the request header carrying the service name.
	ServiceHeader string

	mu   sync.RWMutex
	subs map[registryKey]*Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		ServiceHeader: DefaultServiceHeader,
		subs:          make(map[registryKey]*Subscriber),
	}
}

func (r *Registry) Register(sid, service string, s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[registryKey{sid: sid, service: service}] = s
}

// Remove deletes (sid, service) and reports whether it was registered.
func (r *Registry) Remove(sid, service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := registryKey{sid: sid, service: service}
	_, ok := r.subs[k]
	delete(r.subs, k)
	return ok
}

func (r *Registry) Lookup(sid, service string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[registryKey{sid: sid, service: service}]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// resolve finds the subscriber for a NOTIFY. Devices that do not send the
// service header are matched on SID alone when it is unambiguous.
func (r *Registry) resolve(sid, service string) (*Subscriber, bool) {
	if service != "" {
		return r.Lookup(sid, service)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Subscriber
	for k, s := range r.subs {
		if k.sid != sid {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = s
	}
	return found, found != nil
}

// HandleNotify delivers an inbound NOTIFY and returns the status code to
// answer it with.
func (r *Registry) HandleNotify(header transport.HeaderMap, body []byte) (int, error) {
	sid := header.Get("sid")
	if sid == "" {
		return http.StatusPreconditionFailed, fmt.Errorf("notify without sid: %w", ErrUnknownSubscription)
	}
	serviceHeader := r.ServiceHeader
	if serviceHeader == "" {
		serviceHeader = DefaultServiceHeader
	}
	service := header.Get(serviceHeader)

	sub, ok := r.resolve(sid, service)
	if !ok {
		return http.StatusPreconditionFailed, fmt.Errorf("sid %s service %q: %w", sid, service, ErrUnknownSubscription)
	}

	event, err := ParseEvent(string(body))
	if err != nil {
		return http.StatusBadRequest, err
	}

	seq := -1
	if raw := header.Get("seq"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			seq = n
		}
	}
	sub.deliver(event, seq)

	return http.StatusOK, nil
}

// ParseEvent decodes a GENA property set. Each LastChange property is
// entity-decoded and parsed, and its elements are merged into the result;
// other properties keep their own names.
func ParseEvent(body string) (*xmltree.Node, error) {
	doc, err := xmltree.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse event: %w", err)
	}
	_, propertySet, ok := doc.FindLocal("propertyset")
	if !ok {
		return nil, &xmltree.LookupError{Path: []xmltree.Key{xmltree.K("e:propertyset", 0)}}
	}

	event := xmltree.NewNode()
	for _, k := range propertySet.Keys() {
		if xmltree.LocalName(k.Name) != "property" {
			continue
		}
		property := propertySet.ChildAt(k.Name, k.Index)
		for _, pk := range property.Keys() {
			v, _ := property.Get(pk.Name, pk.Index)
			if pk.Name == "LastChange"+xmltree.AttrsSuffix {
				continue
			}
			if pk.Name != "LastChange" {
				event.Set(xmltree.K(pk.Name, event.Count(pk.Name)), v)
				continue
			}
			change, err := xmltree.ParseEmbedded(v.Text())
			if err != nil {
				return nil, fmt.Errorf("unable to parse LastChange: %w", err)
			}
			for _, ck := range change.Keys() {
				cv, _ := change.Get(ck.Name, ck.Index)
				event.Set(xmltree.K(ck.Name, event.Count(ck.Name)), cv)
			}
		}
	}
	return event, nil
}

// Handler adapts HandleNotify to net/http.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != "NOTIFY" {
			w.Header().Set("Allow", "NOTIFY")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		header := make(transport.HeaderMap)
		for name, values := range req.Header {
			for _, v := range values {
				header.Add(name, v)
			}
		}

		code, err := r.HandleNotify(header, body)
		if err != nil {
			http.Error(w, err.Error(), code)
			return
		}
		w.WriteHeader(code)
	})
}
