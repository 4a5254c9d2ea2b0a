package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"ptz-console/internal/config"
	"ptz-console/internal/metrics"
	"ptz-console/internal/session"
	"ptz-console/internal/telemetry"
)

// newLogger builds the process logger. With a log file the output is JSON
// appended to the file; otherwise a console writer on out, or nothing when
// out is nil.
func newLogger(level, file string, out io.Writer) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	closer := func() error { return nil }
	var w io.Writer = io.Discard
	switch {
	case file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f.Close
	case out != nil:
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), closer, nil
}

// app is everything one command invocation shares.
type app struct {
	log      zerolog.Logger
	store    *config.Store
	settings config.Settings
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	console  *session.Orchestrator
	mqtt     *telemetry.Publisher
	closeLog func() error
}

// newApp loads the configuration and builds the session. logOut receives
// console-formatted logs when no log file is set.
func (o *options) newApp(logOut io.Writer) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	log, closeLog, err := newLogger(o.logLevel, o.logFile, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, closeLog: closeLog}

	a.store, err = config.Open(o.configPath)
	if err != nil {
		closeLog()
		return nil, err
	}
	a.settings, err = a.store.Load()
	if err != nil {
		// Defaults are still usable.
		log.Warn().Err(err).Str("path", a.store.Path()).Msg("config")
	}
	if o.target != "" {
		// An explicit target is a request to connect to it.
		a.settings.Target = o.target
		a.settings.AutoConnect = true
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.console = session.New(session.Config{
		Target:          a.settings.Target,
		Dialer:          o.cameraDialer(),
		Speeds:          a.settings.Speeds,
		MovementTimeout: o.movementTimeout,
		ZoomTimeout:     o.zoomTimeout,
		FocusTimeout:    o.focusTimeout,
		StatusInterval:  o.statusInterval,
		OnConnected:     a.store.SaveConnected,
		Logger:          log,
		Metrics:         a.metrics,
	})

	if o.mqttBroker != "" {
		pub, err := telemetry.Dial(telemetry.Config{
			Broker: o.mqttBroker,
			Topic:  o.mqttTopic,
			Logger: log,
		})
		if err != nil {
			// Telemetry is optional; the console runs without it.
			log.Warn().Err(err).Msg("mqtt disabled")
		} else {
			a.mqtt = pub
			a.console.AddObserver(pub)
		}
	}
	return a, nil
}

// start launches the background cycle and, when enabled, connects to the
// saved target.
func (a *app) start(ctx context.Context) {
	a.console.Start(ctx)
	if !a.settings.AutoConnect {
		a.log.Info().Str("target", a.settings.Target).Msg("auto-connect off")
		return
	}
	if err := a.console.Connect(ctx, a.settings.Target); err != nil {
		a.log.Warn().Err(err).Str("target", a.settings.Target).Msg("auto-connect failed")
	}
}

func (a *app) close() {
	if err := a.console.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close session")
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	a.closeLog()
}
