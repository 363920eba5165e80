package configuration

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/forestnode-io/knob/pkg/flags"
	"github.com/forestnode-io/knob/pkg/net/transport"
	"github.com/forestnode-io/knob/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Transport struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ConnectBackoff     time.Duration `mapstructure:"connectBackoff" yaml:"connectBackoff"`
	ReadPoll           time.Duration `mapstructure:"readPoll" yaml:"readPoll"`
	MaxOtherErrors     int           `mapstructure:"maxOtherErrors" yaml:"maxOtherErrors"`
	UserAgent          string        `mapstructure:"userAgent" yaml:"userAgent"`
	Socket             string        `mapstructure:"socket" yaml:"socket"`
	InsecureSkipVerify bool          `mapstructure:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

func (c *Transport) init(v *viper.Viper) {
	v.SetDefault("transport.timeout", transport.DefaultTimeout)
	v.SetDefault("transport.connectBackoff", transport.DefaultConnectBackoff)
	v.SetDefault("transport.readPoll", transport.DefaultReadPoll)
	v.SetDefault("transport.maxOtherErrors", transport.DefaultMaxOtherErrors)
	v.SetDefault("transport.userAgent", version.Agent())
	v.SetDefault("transport.socket", "raw")
	v.SetDefault("transport.insecureSkipVerify", false)
}

func (c *Transport) setFlags(cmd *cobra.Command, fs *pflag.FlagSet, v *viper.Viper) {
	tfs := pflag.NewFlagSet("Transport Flags", pflag.ExitOnError)
	defer fs.AddFlagSet(tfs)

	flags.Duration(v, tfs, "transport.timeout", "timeout", "Time limit for a whole request, from connect to the last body byte")
	flags.Duration(v, tfs, "transport.connectBackoff", "connect-backoff", "Pause between polls of a connect in progress")
	flags.Int(v, tfs, "transport.maxOtherErrors", "max-connect-errors", "Unclassified connect errors tolerated per request. Negative means unbounded")
	flags.String(v, tfs, "transport.socket", "socket", `Socket implementation: "raw" for non-blocking sockets, "conn" for the net package`)
	flags.Bool(v, tfs, "transport.insecureSkipVerify", "insecure", "Skip certificate verification for https locations")

	cobra.AddTemplateFunc("transportFlags", func() *pflag.FlagSet {
		return tfs
	})
}

func (c *Transport) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}
	switch c.Socket {
	case "", "raw", "conn":
	default:
		return fmt.Errorf(`invalid socket %q, must be "raw" or "conn"`, c.Socket)
	}
	return nil
}

// Client builds a transport client from the settings.
func (c *Transport) Client(observer transport.Observer) *transport.Client {
	client := transport.Client{
		Timeout:        c.Timeout,
		ConnectBackoff: c.ConnectBackoff,
		ReadPoll:       c.ReadPoll,
		MaxOtherErrors: c.MaxOtherErrors,
		UserAgent:      c.UserAgent,
		Observer:       observer,
	}
	if c.Socket == "conn" {
		client.NewSocket = transport.NewConnSocket
	}
	if c.InsecureSkipVerify {
		client.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &client
}
