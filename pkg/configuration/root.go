package configuration

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Root struct {
	Output    Output    `mapstructure:"output" yaml:"output"`
	Transport Transport `mapstructure:"transport" yaml:"transport"`
	Discovery Discovery `mapstructure:"discovery" yaml:"discovery"`
	Control   Control   `mapstructure:"control" yaml:"control"`
	Server    Server    `mapstructure:"server" yaml:"server"`

	v *viper.Viper
}

func EmptyRoot() *Root {
	return &Root{v: newViper()}
}

// Init registers the defaults. It must run before SetFlags so that flag
// defaults reflect them.
func (c *Root) Init() {
	c.Output.init(c.v)
	c.Transport.init(c.v)
	c.Discovery.init(c.v)
	c.Control.init(c.v)
	c.Server.init(c.v)
}

func (c *Root) SetFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	c.Output.setFlags(cmd, fs, c.v)
	c.Transport.setFlags(cmd, fs, c.v)
	c.Discovery.setFlags(cmd, fs, c.v)
	c.Control.setFlags(cmd, fs, c.v)
	c.Server.setFlags(cmd, fs, c.v)
}

// MergeFlags resolves defaults, file, environment and flags, in increasing
// precedence, into c.
func (c *Root) MergeFlags() error {
	if err := c.v.Unmarshal(c); err != nil {
		return fmt.Errorf("error merging configuration: %w", err)
	}
	return nil
}

func (c *Root) Validate() error {
	if err := c.Output.validate(); err != nil {
		return err
	}
	if err := c.Transport.validate(); err != nil {
		return err
	}
	if err := c.Discovery.validate(); err != nil {
		return err
	}
	if err := c.Control.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}

	return nil
}

// Viper exposes the layered settings for commands that bind their own flags.
func (c *Root) Viper() *viper.Viper {
	return c.v
}
