package output

import (
	"context"
	"encoding/json"

	"github.com/forestnode-io/knob/pkg/events"
	"github.com/rs/zerolog"
)

type jsonFailure struct {
	Error string `json:"error"`
}

func runJSON(ctx context.Context, o *output) {
	enc := json.NewEncoder(o.stdout)
	if !o.format.Has("compact") {
		enc.SetIndent("", "  ")
	}

	for e := range o.events {
		var payload any = e
		if f, ok := e.(*events.Failure); ok {
			payload = jsonFailure{Error: f.Error()}
		}
		if err := enc.Encode(payload); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Msg("error encoding json")
		}
	}
}
