package configuration

import (
	"fmt"
	"time"

	"github.com/forestnode-io/knob/pkg/flags"
	"github.com/forestnode-io/knob/pkg/net/ssdp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Discovery struct {
	SearchTarget    string        `mapstructure:"searchTarget" yaml:"searchTarget"`
	HouseholdHeader string        `mapstructure:"householdHeader" yaml:"householdHeader"`
	MX              int           `mapstructure:"mx" yaml:"mx"`
	Announce        time.Duration `mapstructure:"announce" yaml:"announce"`
	QuietWindow     time.Duration `mapstructure:"quietWindow" yaml:"quietWindow"`
	TTL             int           `mapstructure:"ttl" yaml:"ttl"`
	Interface       string        `mapstructure:"interface" yaml:"interface"`
	MDNS            bool          `mapstructure:"mdns" yaml:"mdns"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
}

func (c *Discovery) init(v *viper.Viper) {
	v.SetDefault("discovery.searchTarget", ssdp.DefaultSearchTarget)
	v.SetDefault("discovery.householdHeader", ssdp.DefaultHouseholdHeader)
	v.SetDefault("discovery.mx", ssdp.DefaultMX)
	v.SetDefault("discovery.announce", ssdp.DefaultAnnounce)
	v.SetDefault("discovery.quietWindow", ssdp.DefaultQuietWindow)
	v.SetDefault("discovery.ttl", ssdp.DefaultTTL)
	v.SetDefault("discovery.interface", "")
	v.SetDefault("discovery.mdns", false)
	v.SetDefault("discovery.concurrency", 4)
}

func (c *Discovery) setFlags(cmd *cobra.Command, fs *pflag.FlagSet, v *viper.Viper) {
	dfs := pflag.NewFlagSet("Discovery Flags", pflag.ExitOnError)
	defer fs.AddFlagSet(dfs)

	flags.String(v, dfs, "discovery.searchTarget", "search-target", "SSDP search target")
	flags.String(v, dfs, "discovery.interface", "interface", "Network interface for multicast. Empty uses the system default")
	flags.Bool(v, dfs, "discovery.mdns", "mdns", "Browse for players over mDNS as well as SSDP")

	cobra.AddTemplateFunc("discoveryFlags", func() *pflag.FlagSet {
		return dfs
	})
}

func (c *Discovery) validate() error {
	if c.MX < 1 || c.MX > 5 {
		return fmt.Errorf("invalid mx: %d, must be between 1 and 5", c.MX)
	}
	if c.TTL < 1 {
		return fmt.Errorf("invalid ttl: %d", c.TTL)
	}
	if c.QuietWindow >= c.Announce {
		return fmt.Errorf("quiet window %s must be shorter than the announce interval %s", c.QuietWindow, c.Announce)
	}
	return nil
}

// SSDP builds the discoverer settings.
func (c *Discovery) SSDP() ssdp.Config {
	return ssdp.Config{
		SearchTarget:    c.SearchTarget,
		HouseholdHeader: c.HouseholdHeader,
		MX:              c.MX,
		Announce:        c.Announce,
		QuietWindow:     c.QuietWindow,
		TTL:             c.TTL,
		Interface:       c.Interface,
	}
}
