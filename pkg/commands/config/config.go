package config

import (
	"github.com/forestnode-io/knob/pkg/configuration"
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

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "config",
		Short: "Inspect the knob configuration",
		Long: `Inspect the knob configuration.

The configuration file is read from $KNOB_CONFIG, or else from knob/config.yaml
in the user configuration directory. Any setting can also be given in the
environment as KNOB_<SECTION>_<KEY>, e.g. KNOB_SERVER_PORT.`,
	}

	c.cobraCommand.AddCommand(
		newGet().Cobra(),
		newShow(c.config).Cobra(),
		newPath().Cobra(),
	)

	return c.cobraCommand
}
