package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ptz-console/internal/connection"
	"ptz-console/internal/preview"
	"ptz-console/internal/server"
	"ptz-console/internal/status"
	"ptz-console/internal/tui"
)

const shutdownTimeout = 5 * time.Second

func newConsoleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Full-screen terminal console (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, opts)
		},
	}
}

func runConsole(cmd *cobra.Command, opts *options) error {
	// The screen belongs to the console; logs only go to --log-file.
	a, err := opts.newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	a.start(ctx)
	return tui.Run(ctx, a.console)
}

func newServeCmd(opts *options, static fs.FS) *cobra.Command {
	var (
		listen     string
		rtspURL    string
		iceServers []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web console",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			a.start(ctx)

			var hub *preview.Hub
			if rtspURL != "" {
				var stopPreview func()
				hub, stopPreview, err = startPreview(a, rtspURL)
				if err != nil {
					a.log.Warn().Err(err).Msg("video preview disabled")
				} else {
					defer stopPreview()
				}
			}

			srv, err := server.New(server.Config{
				ListenAddr: listen,
				Console:    a.console,
				Preview:    hub,
				ICEServers: iceServers,
				Gatherer:   a.registry,
				Metrics:    a.metrics,
				Logger:     a.log,
			}, static)
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				a.log.Info().Msg("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Stop(sctx); err != nil {
					a.log.Warn().Err(err).Msg("graceful shutdown")
				}
			}()

			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&rtspURL, "rtsp", "", "RTSP URL of the camera stream for the video preview")
	cmd.Flags().StringSliceVar(&iceServers, "ice-server", preview.DefaultICEServers, "STUN/TURN server URLs for WebRTC")
	return cmd
}

// startPreview connects the RTSP source. The hub outlives reconnects of the
// source; stop closes both.
func startPreview(a *app, rtspURL string) (hub *preview.Hub, stop func(), err error) {
	hub = preview.NewHub(preview.DefaultBuffer, a.metrics)
	src, err := preview.NewSource(rtspURL, hub, a.log)
	if err != nil {
		return nil, nil, err
	}
	if err := src.Connect(); err != nil {
		src.Close()
		return nil, nil, err
	}
	stop = func() {
		src.Close()
		hub.Close()
	}
	return hub, stop, nil
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect once and print the camera status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			conn := connection.New(connection.Config{
				Target:  a.settings.Target,
				Dialer:  opts.cameraDialer(),
				Logger:  a.log,
				Metrics: a.metrics,
			})
			if _, err := conn.Connect(cmd.Context(), a.settings.Target); err != nil {
				return err
			}
			defer conn.Disconnect()

			snap := status.NewPoller(status.Config{
				Conn:    conn,
				Logger:  a.log,
				Metrics: a.metrics,
			}).Poll()
			snap.Speeds = a.settings.Speeds

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSnapshot(cmd.OutOrStdout(), a.settings.Target, snap)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

func printSnapshot(out io.Writer, target string, s status.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TARGET\t%s\n", target)
	fmt.Fprintf(w, "CONNECTED\t%t\n", s.Connected)
	fmt.Fprintf(w, "POWER\t%s\n", s.Power)
	fmt.Fprintf(w, "PAN/TILT\t%d / %d\n", s.Pan, s.Tilt)
	fmt.Fprintf(w, "ZOOM\t%d\n", s.Zoom)
	fmt.Fprintf(w, "VIDEO FORMAT\t%s\n", s.VideoFormat)
	fmt.Fprintf(w, "AE MODE\t%s\n", s.AEMode)
	fmt.Fprintf(w, "WHITE BALANCE\t%s\n", s.WhiteBalance)
	fmt.Fprintf(w, "SPEEDS\tpan %d  tilt %d  zoom %d  focus %d\n", s.Speeds.Pan, s.Speeds.Tilt, s.Speeds.Zoom, s.Speeds.Focus)
	if s.Error != "" {
		fmt.Fprintf(w, "ERROR\t%s\n", s.Error)
	}
	return w.Flush()
}
