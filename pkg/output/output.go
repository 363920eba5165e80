// Package output renders events raised by commands on stdout, as text or
// JSON.
package output

import (
	"context"
	"io"
	"os"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/flagargs"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
)

type key struct{}

func getOutput(ctx context.Context) *output {
	o, _ := ctx.Value(key{}).(*output)
	if o == nil {
		panic("no output set")
	}
	return o
}

type output struct {
	events chan events.Event

	stdout     io.Writer
	stderr     *termenv.Output
	stderrFile *os.File
	errw       io.Writer

	format flagargs.OutputFormat
	quiet  bool

	failColor termenv.Color

	restoreConsole []func() error
	doneChan       chan struct{}
}

// WithOutput attaches an output writing to stdout and stderr.
func WithOutput(ctx context.Context) context.Context {
	return WithWriters(ctx, os.Stdout, os.Stderr)
}

// WithWriters attaches an output writing to the given streams.
func WithWriters(ctx context.Context, stdout, stderr io.Writer) context.Context {
	o := output{
		stdout:   stdout,
		stderr:   termenv.NewOutput(stderr),
		doneChan: make(chan struct{}),
	}
	o.errw = stderr
	o.stderrFile, _ = stderr.(*os.File)
	return context.WithValue(ctx, key{}, &o)
}

// SetEventsChan is an events.SetEventChanFunc.
func SetEventsChan(ctx context.Context, ec chan events.Event) {
	getOutput(ctx).events = ec
}

// Configure applies the output settings. It must be called before Run.
func Configure(ctx context.Context, c *configuration.Output) error {
	o := getOutput(ctx)
	o.format = c.Parsed()
	o.quiet = c.Quiet

	if o.stderrFile != nil && isatty.IsTerminal(o.stderrFile.Fd()) {
		restore, err := termenv.EnableVirtualTerminalProcessing(o.stderr)
		if err != nil {
			return err
		}
		o.restoreConsole = append(o.restoreConsole, restore)
	}
	if !c.NoColor && !o.stderr.EnvNoColor() {
		o.failColor = o.stderr.Color("#ff0000")
	}
	return nil
}

// Run renders events until the event stream closes.
func Run(ctx context.Context) {
	o := getOutput(ctx)
	go o.run(ctx)
}

// Wait blocks until Run has drained the event stream.
func Wait(ctx context.Context) {
	<-getOutput(ctx).doneChan
}

func (o *output) run(ctx context.Context) {
	log := zerolog.Ctx(ctx)
	defer close(o.doneChan)

	switch {
	case o.quiet:
		log.Debug().
			Msg("output running in quiet mode")
		runQuiet(o)
	case o.format.Format == "json":
		log.Debug().
			Msg("output running in json mode")
		runJSON(ctx, o)
	default:
		log.Debug().
			Msg("output running in human mode")
		runHuman(o)
	}

	for _, f := range o.restoreConsole {
		if err := f(); err != nil {
			log.Error().Err(err).
				Msg("error from console restore func")
		}
	}
}

func (o *output) fail(msg string) string {
	if o.failColor == nil {
		return msg
	}
	return o.stderr.String(msg).Foreground(o.failColor).String()
}
