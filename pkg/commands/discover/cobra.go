package discover

import (
	"context"
	"errors"
	"time"

	"github.com/forestnode-io/knob/pkg/commands"
	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
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

	count    int
	duration time.Duration
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "discover",
		Short: "List players on the local network",
		Long: `List players on the local network.

Players are found with SSDP M-SEARCH, and with mDNS when --mdns is set.
Each player is listed once, as it answers.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}

	fs := c.cobraCommand.Flags()
	fs.IntVarP(&c.count, "count", "n", 0, "Stop after this many players. Zero lists until --duration elapses")
	fs.DurationVarP(&c.duration, "duration", "d", 10*time.Second, "How long to listen. Zero listens until interrupted")

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if c.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	records, err := commands.Discover(ctx, c.config)
	if err != nil {
		return err
	}

	found := 0
	for rec := range records {
		events.Raise(cmd.Context(), &events.PlayerFound{
			Location:    rec.Location,
			SourceIP:    rec.SourceIP,
			HouseholdID: rec.HouseholdID,
			USN:         rec.USN(),
			Header:      rec.Header.Flatten(),
		})
		found++
		if 0 < c.count && c.count <= found {
			break
		}
	}

	if found == 0 {
		return errors.New("no players responded")
	}
	return nil
}
