package player

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forestnode-io/knob/pkg/commands"
	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/flagargs"
	"github.com/forestnode-io/knob/pkg/player"
	"github.com/spf13/cobra"
)

func New(config *configuration.Root) *Cmd {
	return &Cmd{
		config: config,
	}
}

type Cmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root

	location    string
	findTimeout time.Duration
	count       int
	offset      int
}

// action runs against a connected player with the arguments that follow
// the action name.
type action func(ctx context.Context, p *player.Player, args []string) (any, error)

var actions = map[string]action{
	"state":  state,
	"volume": volume,
	"play":   control((*player.Player).Play),
	"pause":  control((*player.Player).Pause),
	"next":   control((*player.Player).Next),
	"prev":   control((*player.Player).Previous),
	"seek":   seek,
	"track":  track,
	"status": status,
	"room":   room,
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "player room action [args]",
		Short: "Control the primary player of a room",
		Long: `Control the primary player of a room.

Actions:
	state           print the transport state
	volume [n]      print the volume, or set it; +n and -n change it relatively
	play, pause     start or pause playback
	next, prev      skip within the queue
	seek n|H:MM:SS  jump to a queue position or to a time in the current track
	track           print the current track
	queue           print the queue, see --count and --offset
	status          print state, volume, track and source together
	room            print the room's zone attributes`,
		Args: cobra.MinimumNArgs(2),
		RunE: c.run,
	}

	fs := c.cobraCommand.Flags()
	fs.StringVarP(&c.location, "location", "l", "", "Description URL of the player. Skips discovery")
	fs.DurationVar(&c.findTimeout, "find-timeout", 30*time.Second, "How long to search for the room")
	fs.IntVar(&c.count, "count", 20, "Queue entries to list")
	fs.IntVar(&c.offset, "offset", 0, "First queue entry to list")

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	var (
		ctx      = cmd.Context()
		roomName = args[0]
		name     = strings.ToLower(args[1])
	)

	act, ok := actions[name]
	if name == "queue" {
		act, ok = c.queue, true
	}
	if !ok {
		return fmt.Errorf("unknown action %q", args[1])
	}

	p, err := commands.FindRoom(ctx, c.config, roomName, c.location, c.findTimeout)
	if err != nil {
		return err
	}

	value, err := act(ctx, p, args[2:])
	if err != nil {
		return err
	}
	if value != nil {
		events.Raise(ctx, &events.Result{Kind: name, Value: value})
	}
	return nil
}

func control(f func(*player.Player, context.Context) error) action {
	return func(ctx context.Context, p *player.Player, _ []string) (any, error) {
		return nil, f(p, ctx)
	}
}

func state(ctx context.Context, p *player.Player, _ []string) (any, error) {
	return p.State(ctx)
}

func volume(ctx context.Context, p *player.Player, args []string) (any, error) {
	current, err := p.Volume(ctx)
	if err != nil || len(args) == 0 {
		return current, err
	}

	var v flagargs.Volume
	if err := v.Set(args[0]); err != nil {
		return nil, err
	}
	return p.SetVolume(ctx, v.Apply(current))
}

func seek(ctx context.Context, p *player.Player, args []string) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("seek needs a queue position or a time")
	}
	if strings.Contains(args[0], ":") {
		return nil, p.SeekPosition(ctx, args[0])
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid queue position %q", args[0])
	}
	return nil, p.SeekTrack(ctx, n)
}

func track(ctx context.Context, p *player.Player, _ []string) (any, error) {
	t, err := p.CurrentTrack(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return "nothing playing", nil
	}
	return t, nil
}

func status(ctx context.Context, p *player.Player, _ []string) (any, error) {
	return p.Status(ctx)
}

func room(_ context.Context, p *player.Player, _ []string) (any, error) {
	attrs := map[string]string{
		"room":      p.RoomName(),
		"mac":       p.MAC(),
		"model":     p.ModelName(),
		"household": p.HouseholdID,
		"location":  p.Location,
	}
	for k, v := range p.ZoneAttributes {
		attrs[k] = v
	}
	return attrs, nil
}

func (c *Cmd) queue(ctx context.Context, p *player.Player, _ []string) (any, error) {
	return p.Queue(ctx, c.count, c.offset)
}
