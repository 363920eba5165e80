package configuration

import (
	"github.com/forestnode-io/knob/pkg/flagargs"
	"github.com/forestnode-io/knob/pkg/flags"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Output struct {
	Quiet   bool   `mapstructure:"quiet" yaml:"quiet"`
	Format  string `mapstructure:"format" yaml:"format"`
	NoColor bool   `mapstructure:"noColor" yaml:"noColor"`
}

func (c *Output) init(v *viper.Viper) {
	v.SetDefault("output.quiet", false)
	v.SetDefault("output.format", "")
	v.SetDefault("output.noColor", false)
}

func (c *Output) setFlags(cmd *cobra.Command, fs *pflag.FlagSet, v *viper.Viper) {
	ofs := pflag.NewFlagSet("Output Flags", pflag.ExitOnError)
	defer fs.AddFlagSet(ofs)

	flags.BoolP(v, ofs, "output.quiet", "quiet", "q", "Disable all output except for errors")
	flags.StringP(v, ofs, "output.format", "output", "o", `Set output format. Valid formats are: json[=opts].
Valid json opts are:
	- compact
		Disables tabbed, pretty printed json.`)
	flags.Bool(v, ofs, "output.noColor", "no-color", "Disable color output")

	cobra.AddTemplateFunc("outputFlags", func() *pflag.FlagSet {
		return ofs
	})
}

// Parsed returns the output format flag value.
func (c *Output) Parsed() flagargs.OutputFormat {
	var of flagargs.OutputFormat
	_ = of.Set(c.Format)
	return of
}

func (c *Output) validate() error {
	var of flagargs.OutputFormat
	return of.Set(c.Format)
}
