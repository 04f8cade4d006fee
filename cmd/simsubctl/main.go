// simsubctl queries and changes the subscriptions of a running simsubd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nkkko/simsub/internal/config"
	"github.com/nkkko/simsub/internal/logging"
	"github.com/nkkko/simsub/internal/subscription"
	"github.com/nkkko/simsub/pkg/client"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var configFile, url, caller string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("simsubctl", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "path to YAML configuration file")
	flagSet.StringVar(&url, "url", "", "daemon base URL")
	flagSet.StringVar(&caller, "caller", "", "package name to call as")
	flagSet.DurationVar(&timeout, "timeout", 0, "per call timeout")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: simsubctl [flags] <command> [args]\n\ncommands:\n%s\nflags:\n", commandHelp())
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.LoadConfig(configFile, config.Overrides{LogLevel: "warn"})
	if err != nil {
		return err
	}
	cfg.Logging.Format = "console"
	if err := logging.Setup(cfg.ToLoggingConfig()); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if url != "" {
		cfg.Client.URL = url
	}
	if caller != "" {
		cfg.Client.Caller = caller
	}
	if timeout > 0 {
		cfg.Client.CallTimeoutMs = int(timeout / time.Millisecond)
	}

	remote, err := client.New(cfg.Client.URL,
		client.WithTimeout(time.Duration(cfg.Client.CallTimeoutMs)*time.Millisecond),
		client.WithDevice(client.Device{Sims: cfg.Service.SimCount, Phones: cfg.Service.PhoneCount}),
		client.WithReconnect(100*time.Millisecond, time.Duration(cfg.Client.ReconnectMaxMs)*time.Millisecond, 0),
	)
	if err != nil {
		return err
	}

	cmd := &command{
		remote: remote,
		config: cfg.ToSubscriptionConfig(),
		out:    out,
	}
	return cmd.execute(ctx, flagSet.Arg(0), flagSet.Args()[1:])
}

// connect builds a subscription client over the daemon. Listener support is
// only wired for commands that watch.
func (c *command) connect(ctx context.Context, watch bool) (*subscription.Client, func(), error) {
	if !watch {
		return subscription.NewClient(c.config, c.remote.Subscriptions(), c.remote.Policy(), nil, c.remote.Device()), func() {}, nil
	}

	n, err := c.remote.Notifications(ctx)
	if err != nil {
		return nil, nil, err
	}
	sc := subscription.NewClient(c.config, c.remote.Subscriptions(), c.remote.Policy(), n, c.remote.Device())
	return sc, func() { _ = n.Close() }, nil
}
