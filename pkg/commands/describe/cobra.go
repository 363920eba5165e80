package describe

import (
	"github.com/forestnode-io/knob/pkg/commands"
	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/upnp"
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
}

// Description summarizes a device description.
type Description struct {
	Location     string          `json:"location"`
	FriendlyName string          `json:"friendlyName,omitempty"`
	Room         string          `json:"room,omitempty"`
	Model        string          `json:"model,omitempty"`
	UDN          string          `json:"udn,omitempty"`
	Services     upnp.ServiceMap `json:"services"`
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "describe location",
		Short: "Fetch a device description and list its services",
		Long: `Fetch a device description and list its services.

location is the description URL a player announced, for example
http://192.168.1.20:1400/xml/device_description.xml`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := upnp.Connect(ctx, commands.Client(ctx, c.config), args[0])
	if err != nil {
		return err
	}

	events.Raise(ctx, &events.Result{
		Kind: "description",
		Value: Description{
			Location:     d.Location,
			FriendlyName: d.Info("friendlyName"),
			Room:         d.Info("roomName"),
			Model:        d.Info("modelName"),
			UDN:          d.Info("UDN"),
			Services:     d.Services,
		},
	})
	return nil
}
