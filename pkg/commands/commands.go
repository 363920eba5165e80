package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/metrics"
	"github.com/forestnode-io/knob/pkg/net/mdns"
	"github.com/forestnode-io/knob/pkg/net/ssdp"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/player"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type closersKey struct{}

func WithClosers(ctx context.Context, closers *[]io.Closer) context.Context {
	return context.WithValue(ctx, closersKey{}, closers)
}

// MarkForClose registers c to be closed when the root command exits.
func MarkForClose(ctx context.Context, c io.Closer) {
	if closers, ok := ctx.Value(closersKey{}).(*[]io.Closer); ok {
		*closers = append(*closers, c)
	}
}

type metricsKey struct{}

type metricsBundle struct {
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func WithMetrics(ctx context.Context, m *metrics.Metrics, reg *prometheus.Registry) context.Context {
	return context.WithValue(ctx, metricsKey{}, &metricsBundle{metrics: m, registry: reg})
}

// Metrics returns the process metrics, or nil if none were attached.
func Metrics(ctx context.Context) (*metrics.Metrics, *prometheus.Registry) {
	b, ok := ctx.Value(metricsKey{}).(*metricsBundle)
	if !ok {
		return nil, nil
	}
	return b.metrics, b.registry
}

// Client builds the transport client for a command, observed by the process
// metrics when present.
func Client(ctx context.Context, config *configuration.Root) *transport.Client {
	var observer transport.Observer
	if m, _ := Metrics(ctx); m != nil {
		observer = m
	}
	return config.Transport.Client(observer)
}

// Discover streams distinct player records from SSDP, and from mDNS when
// configured, until ctx is done.
func Discover(ctx context.Context, config *configuration.Root) (<-chan ssdp.Record, error) {
	log := zerolog.Ctx(ctx)

	records, closeSSDP, err := ssdp.Discover(ctx, config.Discovery.SSDP())
	if err != nil {
		return nil, fmt.Errorf("unable to start discovery: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := closeSSDP(); err != nil {
			log.Debug().Err(err).
				Msg("error closing discoverer")
		}
	}()

	if !config.Discovery.MDNS {
		return records, nil
	}

	browsed, err := mdns.Browse(ctx)
	if err != nil {
		log.Warn().Err(err).
			Msg("mdns unavailable, using ssdp only")
		return records, nil
	}
	return merge(ctx, records, browsed), nil
}

func merge(ctx context.Context, a, b <-chan ssdp.Record) <-chan ssdp.Record {
	out := make(chan ssdp.Record)
	go func() {
		defer close(out)
		seen := make(map[string]struct{})
		for a != nil || b != nil {
			var (
				rec ssdp.Record
				ok  bool
			)
			select {
			case <-ctx.Done():
				return
			case rec, ok = <-a:
				if !ok {
					a = nil
					continue
				}
			case rec, ok = <-b:
				if !ok {
					b = nil
					continue
				}
			}
			if _, dup := seen[rec.Location]; dup {
				continue
			}
			seen[rec.Location] = struct{}{}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// FindRoom discovers players until the primary of room is connected. A
// non-empty location skips discovery.
func FindRoom(ctx context.Context, config *configuration.Root, room, location string, timeout time.Duration) (*player.Player, error) {
	client := Client(ctx, config)
	if location != "" {
		return player.Connect(ctx, client, location, "")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records, err := Discover(ctx, config)
	if err != nil {
		return nil, err
	}
	l := player.Locator{
		Client:      client,
		Concurrency: config.Discovery.Concurrency,
	}
	p, err := l.Locate(ctx, records, room)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("room %q: %w", room, player.ErrRoomNotFound)
	}
	return p, err
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	var (
		fault  *upnp.FaultError
		status *upnp.StatusError
	)
	switch {
	case err == nil:
		return events.ExitCodeSuccess
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return events.ExitCodeTimeoutFailure
	case errors.Is(err, player.ErrRoomNotFound), errors.Is(err, upnp.ErrServiceNotFound):
		return events.ExitCodeNotFound
	case errors.As(err, &fault), errors.As(err, &status):
		return events.ExitCodeFault
	}
	return events.ExitCodeGenericFailure
}
