package version

import (
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/version"
	"github.com/spf13/cobra"
)

func New() *Cmd {
	return &Cmd{}
}

type Cmd struct {
	cobraCommand *cobra.Command
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}
	c.cobraCommand = &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			payload := map[string]string{}
			if ver := version.Version; ver != "" {
				payload["version"] = ver
			}
			if commit := version.Commit; commit != "" {
				payload["commit"] = commit
			}
			if license := version.License; license != "" {
				payload["license"] = license
			}
			payload["userAgent"] = version.Agent()

			events.Raise(cmd.Context(), &events.Result{
				Kind:  "version",
				Value: payload,
			})
		},
	}

	return c.cobraCommand
}
