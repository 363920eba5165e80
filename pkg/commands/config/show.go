package config

import (
	"fmt"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/spf13/cobra"
)

type showCmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root
}

func newShow(config *configuration.Root) *showCmd {
	return &showCmd{config: config}
}

func (c *showCmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the effective configuration after defaults, the configuration file, the environment and flags are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.config.YAML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	return c.cobraCommand
}

type pathCmd struct {
	cobraCommand *cobra.Command
}

func newPath() *pathCmd {
	return &pathCmd{}
}

func (c *pathCmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "path",
		Short: "Print the path of the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configuration.ConfigPath == "" {
				return fmt.Errorf("no configuration file found (KNOB_CONFIG)")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), configuration.ConfigPath)
			return err
		},
	}

	return c.cobraCommand
}
