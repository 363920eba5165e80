package root

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/forestnode-io/knob/pkg/commands"
	configcmd "github.com/forestnode-io/knob/pkg/commands/config"
	"github.com/forestnode-io/knob/pkg/commands/describe"
	"github.com/forestnode-io/knob/pkg/commands/discover"
	"github.com/forestnode-io/knob/pkg/commands/invoke"
	playercmd "github.com/forestnode-io/knob/pkg/commands/player"
	"github.com/forestnode-io/knob/pkg/commands/version"
	"github.com/forestnode-io/knob/pkg/commands/watch"
	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/metrics"
	"github.com/forestnode-io/knob/pkg/output"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootCommand struct {
	cobra.Command
	closers []io.Closer

	config *configuration.Root

	outputRunning bool
}

func ExecuteContext(ctx context.Context) error {
	// template funcs need to be added before any commands are created
	// since they register usage templates
	addTemplateFuncs()

	var (
		root = newRoot()
		reg  = prometheus.NewRegistry()
	)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx = commands.WithMetrics(ctx, metrics.New("knob", reg), reg)
	ctx = commands.WithClosers(ctx, &root.closers)
	ctx = output.WithOutput(ctx)
	events.RegisterEventListener(ctx, output.SetEventsChan)

	err := root.ExecuteContext(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Msg("failed to execute root command")
		events.SetExitCode(ctx, commands.ExitCode(err))
		if root.outputRunning {
			events.Raise(ctx, &events.Failure{Err: err})
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}

	events.Stop(ctx)
	if root.outputRunning {
		output.Wait(ctx)
	}
	for _, closer := range root.closers {
		closer.Close()
	}

	return err
}

// CobraCommand builds the command tree without running it, for generating
// documentation.
func CobraCommand() *cobra.Command {
	addTemplateFuncs()
	return &newRoot().Command
}

func newRoot() *rootCommand {
	var root rootCommand
	root.Use = "knob"
	root.Short = "Discover and control UPnP zone players"
	root.Long = `knob discovers UPnP zone players on the local network, invokes their
service actions and follows their events.`
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentPreRunE = root.init

	root.config = configuration.EmptyRoot()
	root.config.Init()
	root.config.SetFlags(&root.Command, root.PersistentFlags())

	root.setSubCommands()

	root.SetHelpTemplate(helpTemplate)
	root.SetUsageTemplate(usageTemplate)
	return &root
}

func addTemplateFuncs() {
	cobra.AddTemplateFunc("wrappedFlagUsages", wrappedFlagUsages)
	cobra.AddTemplateFunc("indent", func(p int, s string) string {
		padding := strings.Repeat(" ", p)
		return padding + strings.ReplaceAll(s, "\n", "\n"+padding)
	})
}

// init merges the configuration and starts the output before any
// subcommand runs.
func (r *rootCommand) init(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := r.config.Load(); err != nil {
		return err
	}
	if err := r.config.MergeFlags(); err != nil {
		return err
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	if err := output.Configure(ctx, &r.config.Output); err != nil {
		return err
	}
	output.Run(ctx)
	r.outputRunning = true

	zerolog.Ctx(ctx).Debug().
		Str("command", cmd.CommandPath()).
		Str("config", configuration.ConfigPath).
		Msg("configuration loaded")
	return nil
}

func (r *rootCommand) setSubCommands() {
	for _, sc := range subCommands(r.config) {
		sc.Flags().BoolP("help", "h", false, "Show this help message.")
		r.AddCommand(sc)
	}
}

func subCommands(config *configuration.Root) []*cobra.Command {
	return []*cobra.Command{
		configcmd.New(config).Cobra(),
		discover.New(config).Cobra(),
		describe.New(config).Cobra(),
		invoke.New(config).Cobra(),
		playercmd.New(config).Cobra(),
		watch.New(config).Cobra(),
		version.New().Cobra(),
	}
}
