package upnp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/rs/zerolog"
)

const (
	DefaultSubscriptionTimeout = 3600 * time.Second
	DefaultRenewMargin         = 10 * time.Second
)

var ErrNoSubscription = errors.New("no subscription")

// Subscription is the state of one GENA subscription.
type Subscription struct {
	Service  string
	SID      string
	Timeout  time.Duration
	Deadline time.Time

	subscriber *Subscriber
}

// ControlPoint subscribes to a device's events and keeps the subscriptions
// alive. Inbound NOTIFY requests reach subscribers through Registry.
type ControlPoint struct {
	Device *Device
	// CallbackURL is where the device sends NOTIFY requests.
	CallbackURL string
	// Timeout is the subscription duration requested from the device.
	Timeout time.Duration
	// RenewMargin is how long before a deadline Maintain renews.
	RenewMargin time.Duration
	Registry    *Registry

	now func() time.Time

	mu      sync.Mutex
	subs    map[string]*Subscription
	pending map[string]*pendingSubscribe
	changed chan struct{}
}

// pendingSubscribe holds a service's slot while its SUBSCRIBE is in flight.
type pendingSubscribe struct {
	done chan struct{}
	sub  *Subscriber
	err  error
}

func NewControlPoint(device *Device, registry *Registry, callbackURL string) *ControlPoint {
	if registry == nil {
		registry = NewRegistry()
	}
	return &ControlPoint{
		Device:      device,
		CallbackURL: callbackURL,
		Timeout:     DefaultSubscriptionTimeout,
		RenewMargin: DefaultRenewMargin,
		Registry:    registry,
		now:         time.Now,
		subs:        make(map[string]*Subscription),
		pending:     make(map[string]*pendingSubscribe),
		changed:     make(chan struct{}, 1),
	}
}

func (cp *ControlPoint) timeout() time.Duration {
	if cp.Timeout > 0 {
		return cp.Timeout
	}
	return DefaultSubscriptionTimeout
}

func (cp *ControlPoint) renewMargin() time.Duration {
	if cp.RenewMargin > 0 {
		return cp.RenewMargin
	}
	return DefaultRenewMargin
}

func (cp *ControlPoint) notifyChanged() {
	select {
	case cp.changed <- struct{}{}:
	default:
	}
}

// Subscription returns a copy of the named service's subscription state.
func (cp *ControlPoint) Subscription(service string) (Subscription, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	s, ok := cp.subs[service]
	if !ok {
		return Subscription{}, false
	}
	return *s, true
}

// Subscriptions returns the subscribed service names.
func (cp *ControlPoint) Subscriptions() []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	names := make([]string, 0, len(cp.subs))
	for name := range cp.subs {
		names = append(names, name)
	}
	return names
}

// Subscribe starts receiving events for service. Subscribing to a service
// twice returns the existing subscriber, and concurrent calls for one
// service share a single SUBSCRIBE.
func (cp *ControlPoint) Subscribe(ctx context.Context, service string) (*Subscriber, error) {
	cp.mu.Lock()
	if existing, ok := cp.subs[service]; ok {
		cp.mu.Unlock()
		return existing.subscriber, nil
	}
	if p, ok := cp.pending[service]; ok {
		cp.mu.Unlock()
		select {
		case <-p.done:
			return p.sub, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingSubscribe{done: make(chan struct{})}
	if cp.pending == nil {
		cp.pending = make(map[string]*pendingSubscribe)
	}
	cp.pending[service] = p
	cp.mu.Unlock()

	sub := NewSubscriber(service)
	if err := cp.subscribe(ctx, service, sub); err != nil {
		p.err = err
	} else {
		p.sub = sub
	}

	cp.mu.Lock()
	delete(cp.pending, service)
	cp.mu.Unlock()
	close(p.done)

	return p.sub, p.err
}

func (cp *ControlPoint) subscribe(ctx context.Context, service string, sub *Subscriber) error {
	svc, err := cp.Device.Services.Lookup(service)
	if err != nil {
		return err
	}
	if cp.CallbackURL == "" {
		return errors.New("no callback url to subscribe with")
	}

	header := transport.Header{
		{Name: "CALLBACK", Value: "<" + cp.CallbackURL + ">"},
		{Name: "NT", Value: "upnp:event"},
		{Name: "TIMEOUT", Value: formatTimeout(cp.timeout())},
	}
	resp, err := cp.Device.client.Do(ctx, transport.NewRequest("SUBSCRIBE", cp.Device.eventURL(svc), header, nil))
	if err != nil {
		return fmt.Errorf("unable to subscribe to %s: %w", service, err)
	}
	if !resp.OK() {
		return newStatusError("SUBSCRIBE", resp)
	}

	sid := resp.Header.Get("sid")
	if sid == "" {
		return fmt.Errorf("subscribe to %s: response has no SID", service)
	}
	timeout := parseTimeout(resp.Header.Get("timeout"), cp.timeout())

	s := Subscription{
		Service:    service,
		SID:        sid,
		Timeout:    timeout,
		Deadline:   cp.now().Add(timeout),
		subscriber: sub,
	}

	cp.mu.Lock()
	if old, ok := cp.subs[service]; ok {
		cp.Registry.Remove(old.SID, service)
	}
	cp.subs[service] = &s
	cp.mu.Unlock()
	cp.Registry.Register(sid, service, sub)
	cp.notifyChanged()

	zerolog.Ctx(ctx).Info().
		Str("service", service).
		Str("sid", sid).
		Dur("timeout", timeout).
		Msg("subscribed")

	return nil
}

// Renew extends the named subscription. The SID does not change.
func (cp *ControlPoint) Renew(ctx context.Context, service string) error {
	cp.mu.Lock()
	s, ok := cp.subs[service]
	var sid string
	if ok {
		sid = s.SID
	}
	cp.mu.Unlock()
	if !ok {
		return fmt.Errorf("renew %s: %w", service, ErrNoSubscription)
	}

	svc, err := cp.Device.Services.Lookup(service)
	if err != nil {
		return err
	}

	header := transport.Header{
		{Name: "SID", Value: sid},
		{Name: "TIMEOUT", Value: formatTimeout(cp.timeout())},
	}
	resp, err := cp.Device.client.Do(ctx, transport.NewRequest("SUBSCRIBE", cp.Device.eventURL(svc), header, nil))
	if err != nil {
		return fmt.Errorf("unable to renew %s: %w", service, err)
	}
	if !resp.OK() {
		return newStatusError("SUBSCRIBE", resp)
	}

	timeout := parseTimeout(resp.Header.Get("timeout"), cp.timeout())

	cp.mu.Lock()
	if s, ok := cp.subs[service]; ok && s.SID == sid {
		s.Timeout = timeout
		s.Deadline = cp.now().Add(timeout)
	}
	cp.mu.Unlock()
	cp.notifyChanged()

	zerolog.Ctx(ctx).Debug().
		Str("service", service).
		Str("sid", sid).
		Dur("timeout", timeout).
		Msg("renewed subscription")

	return nil
}

// Unsubscribe cancels the named subscription. The subscription is
// forgotten even when the device cannot be reached.
func (cp *ControlPoint) Unsubscribe(ctx context.Context, service string) error {
	cp.mu.Lock()
	s, ok := cp.subs[service]
	delete(cp.subs, service)
	cp.mu.Unlock()
	if !ok {
		return fmt.Errorf("unsubscribe %s: %w", service, ErrNoSubscription)
	}
	cp.Registry.Remove(s.SID, service)
	cp.notifyChanged()

	svc, err := cp.Device.Services.Lookup(service)
	if err != nil {
		return err
	}

	header := transport.Header{
		{Name: "SID", Value: s.SID},
	}
	resp, err := cp.Device.client.Do(ctx, transport.NewRequest("UNSUBSCRIBE", cp.Device.eventURL(svc), header, nil))
	if err != nil {
		return fmt.Errorf("unable to unsubscribe from %s: %w", service, err)
	}
	if !resp.OK() {
		return newStatusError("UNSUBSCRIBE", resp)
	}

	zerolog.Ctx(ctx).Info().
		Str("service", service).
		Str("sid", s.SID).
		Msg("unsubscribed")

	return nil
}

// Close unsubscribes from every service and returns the first error.
func (cp *ControlPoint) Close(ctx context.Context) error {
	var first error
	for _, service := range cp.Subscriptions() {
		if err := cp.Unsubscribe(ctx, service); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Maintain renews subscriptions ahead of their deadlines until ctx is done.
// Failed renewals are retried with exponential backoff; a renewal the
// device rejects with 412 is replaced by a fresh subscription that keeps
// the same Subscriber.
func (cp *ControlPoint) Maintain(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	for {
		service, due, ok := cp.nextDue()
		var (
			wait  <-chan time.Time
			timer *time.Timer
			fired bool
		)
		if ok {
			timer = time.NewTimer(due.Sub(cp.now()))
			wait = timer.C
		}

		select {
		case <-ctx.Done():
		case <-cp.changed:
		case <-wait:
			fired = true
		}
		if timer != nil {
			timer.Stop()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fired {
			continue
		}

		err := backoff.Retry(func() error {
			err := cp.Renew(ctx, service)
			var se *StatusError
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrNoSubscription):
				return backoff.Permanent(err)
			case errors.As(err, &se) && se.StatusCode == http.StatusPreconditionFailed:
				log.Info().
					Str("service", service).
					Msg("subscription expired on device, resubscribing")
				cp.mu.Lock()
				s, ok := cp.subs[service]
				cp.mu.Unlock()
				if !ok {
					return backoff.Permanent(ErrNoSubscription)
				}
				return cp.subscribe(ctx, service, s.subscriber)
			}
			log.Warn().Err(err).
				Str("service", service).
				Msg("unable to renew subscription, retrying")
			return err
		}, backoff.WithContext(renewBackOff(), ctx))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, ErrNoSubscription) {
				return fmt.Errorf("unable to maintain %s subscription: %w", service, err)
			}
		}
	}
}

func renewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = time.Minute
	return b
}

// nextDue returns the service with the earliest renewal time.
func (cp *ControlPoint) nextDue() (string, time.Time, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	var (
		service string
		due     time.Time
		margin  = cp.renewMargin()
	)
	for name, s := range cp.subs {
		at := s.Deadline.Add(-margin)
		if service == "" || at.Before(due) {
			service, due = name, at
		}
	}
	return service, due, service != ""
}

func formatTimeout(d time.Duration) string {
	return "Second-" + strconv.Itoa(int(d/time.Second))
}

// parseTimeout reads a TIMEOUT header such as "Second-300". Missing or
// unreadable values fall back to def.
func parseTimeout(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "infinite") || strings.EqualFold(raw, "second-infinite") {
		return def
	}
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "second-") {
		return def
	}
	n, err := strconv.Atoi(raw[7:])
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
