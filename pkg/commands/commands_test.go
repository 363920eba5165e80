package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/metrics"
	"github.com/forestnode-io/knob/pkg/net/ssdp"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/player"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	a := make(chan ssdp.Record, 2)
	b := make(chan ssdp.Record, 2)
	a <- ssdp.Record{Location: "http://10.0.0.5:1400/xml/device_description.xml"}
	a <- ssdp.Record{Location: "http://10.0.0.6:1400/xml/device_description.xml"}
	b <- ssdp.Record{Location: "http://10.0.0.5:1400/xml/device_description.xml"}
	close(a)
	close(b)

	var got []string
	for rec := range merge(context.Background(), a, b) {
		got = append(got, rec.Location)
	}
	assert.ElementsMatch(t, []string{
		"http://10.0.0.5:1400/xml/device_description.xml",
		"http://10.0.0.6:1400/xml/device_description.xml",
	}, got)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, events.ExitCodeSuccess},
		{fmt.Errorf("GET x: %w", transport.ErrTimeout), events.ExitCodeTimeoutFailure},
		{fmt.Errorf("room: %w", player.ErrRoomNotFound), events.ExitCodeNotFound},
		{fmt.Errorf("x: %w", upnp.ErrServiceNotFound), events.ExitCodeNotFound},
		{&upnp.FaultError{Action: "Seek", UPnPCode: 711}, events.ExitCodeFault},
		{errors.New("other"), events.ExitCodeGenericFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ExitCode(tt.err), "%v", tt.err)
	}
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestContextHelpers(t *testing.T) {
	var closers []io.Closer
	ctx := WithClosers(context.Background(), &closers)
	c := closer{}
	MarkForClose(ctx, &c)
	require.Len(t, closers, 1)

	config, err := configuration.ReadConfig("")
	require.NoError(t, err)

	assert.Nil(t, Client(ctx, config).Observer)

	reg := prometheus.NewRegistry()
	m := metrics.New("knob", reg)
	ctx = WithMetrics(ctx, m, reg)
	gotM, gotReg := Metrics(ctx)
	assert.Same(t, m, gotM)
	assert.Same(t, reg, gotReg)
	assert.Equal(t, m, Client(ctx, config).Observer)
}
