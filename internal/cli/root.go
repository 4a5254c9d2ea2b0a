// Package cli wires the console together behind the ptz-console command.
package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ptz-console/internal/ptz"
	"ptz-console/internal/status"
	"ptz-console/internal/visca"
	"ptz-console/internal/watchdog"
)

type options struct {
	configPath string
	target     string
	address    int
	logLevel   string
	logFile    string

	movementTimeout time.Duration
	zoomTimeout     time.Duration
	focusTimeout    time.Duration
	statusInterval  time.Duration

	mqttBroker string
	mqttTopic  string

	// dialer opens cameras; tests swap in a fake.
	dialer ptz.Dialer
}

// NewRootCmd builds the command tree. static holds the web console under web/.
func NewRootCmd(static fs.FS) *cobra.Command {
	return newRootCmd(static, &options{})
}

func newRootCmd(static fs.FS, opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "ptz-console",
		Short: "Operator console for VISCA PTZ cameras",
		Long: `Drive a VISCA pan/tilt/zoom camera from the terminal or a browser.
The target is a serial device path, host:port (RFC 2217 serial-over-telnet),
tcp://host:port for raw VISCA, or udp://host:port for VISCA over IP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.config/ptz-console/config.json)")
	pf.StringVar(&opts.target, "target", "", "camera connection string, overrides the saved one")
	pf.IntVar(&opts.address, "visca-address", 1, "VISCA camera address (1-7)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&opts.logFile, "log-file", "", "append logs to this file")
	pf.DurationVar(&opts.movementTimeout, "movement-timeout", watchdog.DefaultTimeout, "auto-stop pan/tilt after this long without a refresh")
	pf.DurationVar(&opts.zoomTimeout, "zoom-timeout", watchdog.DefaultTimeout, "auto-stop zoom after this long without a refresh")
	pf.DurationVar(&opts.focusTimeout, "focus-timeout", watchdog.DefaultTimeout, "auto-stop focus after this long without a refresh")
	pf.DurationVar(&opts.statusInterval, "status-interval", status.DefaultInterval, "minimum time between status queries")
	pf.StringVar(&opts.mqttBroker, "mqtt-broker", "", "publish status and log lines to this MQTT broker, e.g. tcp://localhost:1883")
	pf.StringVar(&opts.mqttTopic, "mqtt-topic", "ptz", "MQTT topic prefix")

	root.AddCommand(
		newConsoleCmd(opts),
		newServeCmd(opts, static),
		newStatusCmd(opts),
	)
	return root
}

func (o *options) cameraDialer() ptz.Dialer {
	if o.dialer != nil {
		return o.dialer
	}
	return visca.Dialer(visca.WithAddress(o.address))
}

// Execute runs the command line and returns the process exit code.
func Execute(static fs.FS) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(static).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
