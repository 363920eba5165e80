package configuration

import (
	"fmt"
	"strings"

	"github.com/forestnode-io/knob/pkg/flags"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Server configures the callback listener that receives NOTIFY requests.
type Server struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	CallbackHost string `mapstructure:"callbackHost" yaml:"callbackHost"`
	NotifyPath   string `mapstructure:"notifyPath" yaml:"notifyPath"`
	MetricsPath  string `mapstructure:"metricsPath" yaml:"metricsPath"`
}

func (c *Server) init(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3400)
	v.SetDefault("server.callbackHost", "")
	v.SetDefault("server.notifyPath", "/notify")
	v.SetDefault("server.metricsPath", "/metrics")
}

func (c *Server) setFlags(cmd *cobra.Command, fs *pflag.FlagSet, v *viper.Viper) {
	sfs := pflag.NewFlagSet("Server Flags", pflag.ExitOnError)
	defer fs.AddFlagSet(sfs)

	flags.String(v, sfs, "server.host", "host", "Host to listen on for event notifications")
	flags.IntP(v, sfs, "server.port", "port", "p", "Port to listen on for event notifications")
	flags.String(v, sfs, "server.callbackHost", "callback-host", "Address players should send events to. Empty picks the source address toward the player")
	flags.String(v, sfs, "server.metricsPath", "metrics-path", "Path serving Prometheus metrics. Empty disables it")

	cobra.AddTemplateFunc("serverFlags", func() *pflag.FlagSet {
		return sfs
	})
}

func (c *Server) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if !strings.HasPrefix(c.NotifyPath, "/") {
		return fmt.Errorf("invalid notify path: %q", c.NotifyPath)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("invalid metrics path: %q", c.MetricsPath)
	}
	if c.MetricsPath == c.NotifyPath {
		return fmt.Errorf("metrics and notify paths must differ")
	}
	return nil
}

// Addr is the listen address.
func (c *Server) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
