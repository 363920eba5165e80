package configuration

import (
	"fmt"
	"time"

	"github.com/forestnode-io/knob/pkg/flags"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Control struct {
	SubscriptionTimeout time.Duration `mapstructure:"subscriptionTimeout" yaml:"subscriptionTimeout"`
	RenewMargin         time.Duration `mapstructure:"renewMargin" yaml:"renewMargin"`
	ServiceHeader       string        `mapstructure:"serviceHeader" yaml:"serviceHeader"`
	Services            []string      `mapstructure:"services" yaml:"services"`
}

func (c *Control) init(v *viper.Viper) {
	v.SetDefault("control.subscriptionTimeout", upnp.DefaultSubscriptionTimeout)
	v.SetDefault("control.renewMargin", upnp.DefaultRenewMargin)
	v.SetDefault("control.serviceHeader", upnp.DefaultServiceHeader)
	v.SetDefault("control.services", []string{"AVTransport", "RenderingControl"})
}

func (c *Control) setFlags(cmd *cobra.Command, fs *pflag.FlagSet, v *viper.Viper) {
	cfs := pflag.NewFlagSet("Control Flags", pflag.ExitOnError)
	defer fs.AddFlagSet(cfs)

	flags.Duration(v, cfs, "control.subscriptionTimeout", "subscription-timeout", "Subscription lifetime requested from the player")
	flags.Duration(v, cfs, "control.renewMargin", "renew-margin", "Renew subscriptions this long before they expire")
	flags.StringSlice(v, cfs, "control.services", "service", "Services to subscribe to")

	cobra.AddTemplateFunc("controlFlags", func() *pflag.FlagSet {
		return cfs
	})
}

func (c *Control) validate() error {
	if c.SubscriptionTimeout < time.Second {
		return fmt.Errorf("invalid subscription timeout: %s", c.SubscriptionTimeout)
	}
	if c.RenewMargin < 0 || c.RenewMargin >= c.SubscriptionTimeout {
		return fmt.Errorf("renew margin %s must be shorter than the subscription timeout %s", c.RenewMargin, c.SubscriptionTimeout)
	}
	return nil
}

// Apply copies the subscription settings onto cp.
func (c *Control) Apply(cp *upnp.ControlPoint) {
	cp.Timeout = c.SubscriptionTimeout
	cp.RenewMargin = c.RenewMargin
	if cp.Registry != nil && c.ServiceHeader != "" {
		cp.Registry.ServiceHeader = c.ServiceHeader
	}
}
