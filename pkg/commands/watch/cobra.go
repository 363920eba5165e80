package watch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/forestnode-io/knob/pkg/commands"
	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/forestnode-io/knob/pkg/events"
	"github.com/forestnode-io/knob/pkg/net/network"
	"github.com/forestnode-io/knob/pkg/upnp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func New(config *configuration.Root) *Cmd {
	return &Cmd{
		config: config,
	}
}

type Cmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "watch location [service...]",
		Short: "Subscribe to device services and print their events",
		Long: `Subscribe to device services and print their events.

knob listens for NOTIFY requests on --port and keeps each subscription
renewed until interrupted, then unsubscribes. Services default to the
control.services configuration.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.run,
	}

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	var (
		ctx      = cmd.Context()
		log      = zerolog.Ctx(ctx)
		services = args[1:]
		server   = &c.config.Server
	)
	if len(services) == 0 {
		services = c.config.Control.Services
	}
	if len(services) == 0 {
		return errors.New("no services to watch")
	}

	d, err := upnp.Connect(ctx, commands.Client(ctx, c.config), args[0])
	if err != nil {
		return err
	}
	for _, service := range services {
		if _, err := d.Services.Lookup(service); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", server.Addr())
	if err != nil {
		return fmt.Errorf("unable to listen for events: %w", err)
	}
	callback, err := c.callbackURL(d, ln)
	if err != nil {
		ln.Close()
		return err
	}

	registry := upnp.NewRegistry()
	cp := upnp.NewControlPoint(d, registry, callback)
	c.config.Control.Apply(cp)

	m, reg := commands.Metrics(ctx)
	srv := http.Server{
		Handler:           NewRouter(server, registry, m, reg),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := cp.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).
				Msg("unable to unsubscribe")
		}
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().
		Str("callback", callback).
		Strs("services", services).
		Msg("watching")

	for _, service := range services {
		sub, err := cp.Subscribe(gctx, service)
		if err != nil {
			g.Go(func() error { return err })
			break
		}
		g.Go(func() error {
			return relay(gctx, sub)
		})
	}
	g.Go(func() error {
		return cp.Maintain(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// interrupted
		return nil
	}
	return err
}

func (c *Cmd) callbackURL(d *upnp.Device, ln net.Listener) (string, error) {
	var (
		server = c.config.Server
		port   = ln.Addr().(*net.TCPAddr).Port
	)
	if server.CallbackHost != "" {
		return "http://" + net.JoinHostPort(server.CallbackHost, strconv.Itoa(port)) + server.NotifyPath, nil
	}
	callback, err := network.CallbackURL(d.Endpoint.Host, port, server.NotifyPath)
	if err != nil {
		return "", fmt.Errorf("unable to pick a callback address: %w", err)
	}
	return callback, nil
}

// relay raises a notification for each event delivered to sub.
func relay(ctx context.Context, sub *upnp.Subscriber) error {
	for {
		event, err := sub.Wait(ctx)
		if err != nil {
			return err
		}
		events.Raise(ctx, &events.Notification{
			Service:    sub.Service,
			Seq:        sub.Seq(),
			Time:       time.Now(),
			Properties: upnp.Properties(event),
		})
	}
}
