package invoke

import (
	"fmt"
	"strings"

	"github.com/forestnode-io/knob/pkg/commands"
	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/forestnode-io/knob/pkg/xmltree"
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

	instance bool
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "invoke location service action [name=value...]",
		Short: "Invoke a SOAP action on a device service",
		Long: `Invoke a SOAP action on a device service.

Arguments are sent in the order given. The response arguments are printed.

Example:
	knob invoke http://192.168.1.20:1400/xml/device_description.xml RenderingControl GetVolume InstanceID=0 Channel=Master`,
		Args: cobra.MinimumNArgs(3),
		RunE: c.run,
	}

	c.cobraCommand.Flags().BoolVar(&c.instance, "instance", false, "Prepend InstanceID=0 to the arguments")

	return c.cobraCommand
}

// ParseArgs converts name=value pairs into ordered action arguments.
func ParseArgs(pairs []string) (xmltree.Fields, error) {
	fields := make(xmltree.Fields, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q, expected name=value", pair)
		}
		fields = append(fields, xmltree.F(name, value))
	}
	return fields, nil
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fields, err := ParseArgs(args[3:])
	if err != nil {
		return err
	}
	if c.instance {
		fields = append(xmltree.Fields{xmltree.F("InstanceID", 0)}, fields...)
	}

	d, err := upnp.Connect(ctx, commands.Client(ctx, c.config), args[0])
	if err != nil {
		return err
	}
	res, err := d.Invoke(ctx, args[1], args[2], fields)
	if err != nil {
		return err
	}

	events.Raise(ctx, &events.Result{
		Kind:  args[2] + "Response",
		Value: upnp.Properties(res),
	})
	return nil
}
