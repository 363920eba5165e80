package root

import (
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalNonPersistentFlags}}

Flags:
{{.LocalNonPersistentFlags | wrappedFlagUsages | trimTrailingWhitespaces}}{{end}}

Global Flags:
{{ "Output Flags:" | indent 4 }}
{{outputFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Transport Flags:" | indent 4 }}
{{transportFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Discovery Flags:" | indent 4 }}
{{discoveryFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Control Flags:" | indent 4 }}
{{controlFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}

{{ "Server Flags:" | indent 4 }}
{{serverFlags | wrappedFlagUsages | trimTrailingWhitespaces | indent 8}}{{if eq .Name "knob" }}

Use "knob [command] --help" for more information about a command.{{end}}
`

const defaultUsageWidth = 80

// wrappedFlagUsages wraps flag usages to the terminal width.
func wrappedFlagUsages(fs *pflag.FlagSet) string {
	width := defaultUsageWidth
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w - 8
		}
	}
	return fs.FlagUsagesWrapped(width)
}
