package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeline(t *testing.T, cfg configuration.Output, raise func(context.Context)) (string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	ctx := events.WithEvents(context.Background())
	ctx = WithWriters(ctx, &stdout, &stderr)
	events.RegisterEventListener(ctx, SetEventsChan)
	require.NoError(t, Configure(ctx, &cfg))
	Run(ctx)

	raise(ctx)
	events.Stop(ctx)
	Wait(ctx)
	return stdout.String(), stderr.String()
}

func TestHuman(t *testing.T) {
	stdout, stderr := pipeline(t, configuration.Output{NoColor: true}, func(ctx context.Context) {
		events.Raise(ctx, &events.PlayerFound{SourceIP: "10.0.0.5", HouseholdID: "Sonos_x", Location: "http://10.0.0.5:1400/xml/device_description.xml"})
		events.Raise(ctx, &events.Result{Kind: "volume", Value: 25})
		events.Raise(ctx, &events.Notification{
			Service:    "RenderingControl",
			Seq:        3,
			Time:       time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
			Properties: map[string]string{"Volume": "25", "Mute": "0"},
		})
		events.Raise(ctx, &events.Failure{Err: errors.New("boom")})
	})

	assert.Contains(t, stdout, "10.0.0.5\tSonos_x\thttp://10.0.0.5:1400/xml/device_description.xml\n")
	assert.Contains(t, stdout, "25\n")
	assert.Contains(t, stdout, "RenderingControl #3 12:30:00\n")
	assert.Less(t, strings.Index(stdout, "Mute"), strings.Index(stdout, "Volume"))
	assert.Equal(t, "error: boom\n", stderr)
}

func TestJSON(t *testing.T) {
	stdout, _ := pipeline(t, configuration.Output{Format: "json=compact"}, func(ctx context.Context) {
		events.Raise(ctx, &events.Result{Kind: "state", Value: "PLAYING"})
		events.Raise(ctx, &events.Failure{Err: errors.New("boom")})
	})

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)

	var r events.Result
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &r))
	assert.Equal(t, "state", r.Kind)
	assert.Equal(t, "PLAYING", r.Value)
	assert.JSONEq(t, `{"error":"boom"}`, lines[1])
}

func TestQuiet(t *testing.T) {
	stdout, stderr := pipeline(t, configuration.Output{Quiet: true, NoColor: true}, func(ctx context.Context) {
		events.Raise(ctx, &events.Result{Kind: "state", Value: "PLAYING"})
		events.Raise(ctx, &events.Failure{Err: errors.New("boom")})
	})
	assert.Empty(t, stdout)
	assert.Equal(t, "error: boom\n", stderr)
}
